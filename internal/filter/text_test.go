package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Diacritics and punctuation", input: "Réf. No: RFP–2024/01", expected: "ref no rfp 2024 01"},
		{name: "Whitespace collapse", input: "  Road   Repair\n RFP ", expected: "road repair rfp"},
		{name: "Case fold", input: "STRASSE", expected: "strasse"},
		{name: "Only symbols", input: "»", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://bids.example.gov/Detail/42", NormalizeURL(" HTTPS://Bids.Example.GOV/Detail/42/#top "))
	assert.Equal(t, "relative/path", NormalizeURL("relative/path/"))
}

func TestTokens(t *testing.T) {
	stop := map[string]bool{"the": true, "button": true}
	assert.Equal(t, []string{"next", "page"}, Tokens("The Next-Page button", stop))
}
