package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "single contact id",
			input:    []string{"ct-100"},
			expected: []string{"ct-100"},
		},
		{
			name:     "trims pasted whitespace",
			input:    []string{"  ns1.parks.gov  ", "ns2.parks.gov  ", "  ns3.parks.gov"},
			expected: []string{"ns1.parks.gov", "ns2.parks.gov", "ns3.parks.gov"},
		},
		{
			name:     "drops repeated nameservers keeping order",
			input:    []string{"ns1.parks.gov", "ns2.parks.gov", "ns1.parks.gov"},
			expected: []string{"ns1.parks.gov", "ns2.parks.gov"},
		},
		{
			name:     "drops blank entries",
			input:    []string{"ct-100", "", "  ", "ct-200"},
			expected: []string{"ct-100", "ct-200"},
		},
		{
			name:     "case differences survive",
			input:    []string{"serverHold", "serverhold"},
			expected: []string{"serverHold", "serverhold"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeAndTrim(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "folds hostname case before deduping",
			input:    []string{"NS1.Parks.GOV", "ns1.parks.gov"},
			expected: []string{"ns1.parks.gov"},
		},
		{
			name:     "trims and folds a mixed set",
			input:    []string{"  NS1.parks.gov ", "ns2.parks.gov", "Ns1.Parks.Gov", "NS2.PARKS.GOV"},
			expected: []string{"ns1.parks.gov", "ns2.parks.gov"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeAndTrimLower(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
