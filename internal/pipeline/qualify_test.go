package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualified(t *testing.T) {
	tests := []struct {
		name           string
		meetingRequest bool
		hotLead        bool
		want           bool
	}{
		{"both signals", true, true, true},
		{"meeting ask only", true, false, false},
		{"hot lead only", false, true, false},
		{"neither", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Qualified(tt.meetingRequest, tt.hotLead))
		})
	}
}
