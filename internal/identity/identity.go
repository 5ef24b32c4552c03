// Package identity computes the deterministic key that recognizes "the same
// business" across search producers. It is the only place in the repo where
// lead identity is derived; every writer and deduplicator must go through
// Key so that the normalization rules cannot drift apart.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize canonicalizes a name or address component for key computation:
// NFKC normalization, Unicode case folding, punctuation stripped, runs of
// whitespace collapsed to a single space. Stored fields keep their original
// casing; this form exists only for identity.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped: "Joe's Cafe" and "Joes Cafe" are the same business
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Key returns the identity key for a business: a hex SHA-256 over the
// normalized name and address joined by a non-printing separator so that
// ("ab", "c") and ("a", "bc") cannot collide.
func Key(name, address string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(name)))
	h.Write([]byte{0x1f})
	h.Write([]byte(Normalize(address)))
	return hex.EncodeToString(h.Sum(nil))
}
