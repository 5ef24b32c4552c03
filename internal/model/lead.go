package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// SourceProvider identifies which search backend produced a raw record.
type SourceProvider string

const (
	SourceMapSearch     SourceProvider = "map_search"
	SourceClusterSearch SourceProvider = "cluster_search"
)

// LeadStatus represents the lifecycle state of a stored lead.
type LeadStatus string

const (
	LeadStatusNew     LeadStatus = "new"
	LeadStatusUpdated LeadStatus = "updated"
)

// RawRecord is an untrusted place-like record as emitted by a search
// producer. Only Name, Address and Source are required; everything else
// passes through opaquely into the optional Lead fields.
type RawRecord struct {
	Name     string         `json:"name"`
	Address  string         `json:"address"`
	Phone    string         `json:"phone,omitempty"`
	Email    string         `json:"email,omitempty"`
	Website  string         `json:"website,omitempty"`
	Category string         `json:"category,omitempty"`
	Rating   *float64       `json:"rating,omitempty"`
	Source   SourceProvider `json:"source"`
}

// Validate checks the minimal producer schema. A failing record is rejected
// individually; it never aborts the batch it arrived in.
func (r RawRecord) Validate() error {
	if r.Name == "" {
		return eris.New("record: missing required field name")
	}
	if r.Address == "" {
		return eris.New("record: missing required field address")
	}
	switch r.Source {
	case SourceMapSearch, SourceClusterSearch:
	case "":
		return eris.New("record: missing required field source")
	default:
		return eris.Errorf("record: invalid source %q", r.Source)
	}
	if r.Rating != nil && (*r.Rating < 0 || *r.Rating > 5) {
		return eris.Errorf("record: rating %v out of range 0..5", *r.Rating)
	}
	return nil
}

// PopulatedFields counts the optional fields a record carries. Used by the
// most-complete-wins collapse when two records in one batch share an
// identity key.
func (r RawRecord) PopulatedFields() int {
	n := 0
	if r.Phone != "" {
		n++
	}
	if r.Email != "" {
		n++
	}
	if r.Website != "" {
		n++
	}
	if r.Category != "" {
		n++
	}
	if r.Rating != nil {
		n++
	}
	return n
}

// UnionWith returns the union of two records sharing an identity key. The
// receiver's populated fields win; the other record only fills gaps.
func (r RawRecord) UnionWith(other RawRecord) RawRecord {
	if r.Phone == "" {
		r.Phone = other.Phone
	}
	if r.Email == "" {
		r.Email = other.Email
	}
	if r.Website == "" {
		r.Website = other.Website
	}
	if r.Category == "" {
		r.Category = other.Category
	}
	if r.Rating == nil {
		r.Rating = other.Rating
	}
	return r
}

// Lead is the canonical deduplicated business record.
type Lead struct {
	ID          string         `json:"id"`
	IdentityKey string         `json:"identity_key"`
	Name        string         `json:"name"`
	Address     string         `json:"address"`
	Phone       string         `json:"phone,omitempty"`
	Email       string         `json:"email,omitempty"`
	Website     string         `json:"website,omitempty"`
	Category    string         `json:"category,omitempty"`
	Rating      *float64       `json:"rating,omitempty"`
	Source      SourceProvider `json:"source"`
	SessionID   string         `json:"session_id"`
	Status      LeadStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// MergeFrom applies a record's populated fields onto the lead. Empty values
// never erase existing data; the caller's non-empty values win. Name and
// Address keep their stored casing since the identity key already matched.
func (l *Lead) MergeFrom(r RawRecord) {
	if r.Phone != "" {
		l.Phone = r.Phone
	}
	if r.Email != "" {
		l.Email = r.Email
	}
	if r.Website != "" {
		l.Website = r.Website
	}
	if r.Category != "" {
		l.Category = r.Category
	}
	if r.Rating != nil {
		l.Rating = r.Rating
	}
	if r.Source != "" {
		l.Source = r.Source
	}
}
