package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVendor(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercase with punctuation",
			input: "Amazon.com*12345",
			want:  "AMAZON COM 12345",
		},
		{
			name:  "square processor prefix",
			input: "SQ *BLUE BOTTLE COFFEE",
			want:  "BLUE BOTTLE COFFEE",
		},
		{
			name:  "toast processor prefix",
			input: "TST* NEIGHBORHOOD DINER",
			want:  "NEIGHBORHOOD DINER",
		},
		{
			name:  "pos purchase prefix",
			input: "POS PURCHASE TRADER JOES #552",
			want:  "TRADER JOES 552",
		},
		{
			name:  "whitespace collapse",
			input: "  DELTA   AIR  LINES  ",
			want:  "DELTA AIR LINES",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVendor(tt.input))
		})
	}
}

func TestNormalizeVendorIdempotent(t *testing.T) {
	inputs := []string{
		"SQ *BLUE BOTTLE COFFEE",
		"Amazon.com*12345",
		"RDUAA PUBLIC PARKING",
	}
	for _, input := range inputs {
		once := NormalizeVendor(input)
		assert.Equal(t, once, NormalizeVendor(once), "normalizing twice must not change %q", input)
	}
}
