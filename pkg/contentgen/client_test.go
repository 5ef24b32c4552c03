package contentgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost_Sonnet(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")
	// input: 1M * $3.00 = $3.00
	// output: 1M * $15.00 = $15.00
	// total: $18.00
	assert.InDelta(t, 18.00, cost, 0.001)
}

func TestEstimateCost_Haiku(t *testing.T) {
	usage := TokenUsage{InputTokens: 500_000, OutputTokens: 100_000}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	// input: 0.5M * $0.80 = $0.40
	// output: 0.1M * $4.00 = $0.40
	// total: $0.80
	assert.InDelta(t, 0.80, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.Equal(t, 0.0, usage.EstimateCost("unknown-model"))
}

func TestEstimateCost_ZeroTokens(t *testing.T) {
	usage := TokenUsage{}
	assert.Equal(t, 0.0, usage.EstimateCost("claude-sonnet-4-5-20250929"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		usage := TokenUsage{InputTokens: 100, OutputTokens: 50}
		usage.LogCost("claude-sonnet-4-5-20250929", "research")
	})

	assert.NotPanics(t, func() {
		usage := TokenUsage{InputTokens: 100, OutputTokens: 50}
		usage.LogCost("unknown-model", "research")
	})

	assert.NotPanics(t, func() {
		usage := TokenUsage{}
		usage.LogCost("claude-sonnet-4-5-20250929", "")
	})
}
