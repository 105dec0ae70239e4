package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single account",
			input:    "U1234567",
			expected: []string{"U1234567"},
		},
		{
			name:     "accounts with varied spacing",
			input:    "U1,  U2 , U3",
			expected: []string{"U1", "U2", "U3"},
		},
		{
			name:     "only spaces",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "multiple commas",
			input:    ",,SPY:400,,QQQ:300,,",
			expected: []string{"SPY:400", "QQQ:300"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}
