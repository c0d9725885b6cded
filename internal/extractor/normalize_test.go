package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocaleNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"15 999 $", 15999, true},
		{"15999", 15999, true},
		{"1.250", 1250, true},
		{"12,5", 12.5, true},
		{"12.5", 12.5, true},
		{"15 999", 15999, true},
		{"ціну уточнюйте", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLocaleNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(067) 123 45 67", "+380671234567"},
		{"0671234567", "+380671234567"},
		{"380671234567", "+380671234567"},
		{"+380671234567", "+380671234567"},
		{"671234567", "+380671234567"},
		{"показати", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePhone(tt.in), "input %q", tt.in)
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Example Car 2022", cleanText("  Example\n\t Car  2022  "))
	assert.Equal(t, "", cleanText("   \n\t "))
}
