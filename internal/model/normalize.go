package model

import "strings"

// Processor prefixes that carry no vendor information.
var noisePrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
	"SQ ",
	"TST ",
	"PAYPAL ",
}

// NormalizeVendor canonicalizes raw statement text for alias matching and
// embedding lookups: uppercase, punctuation collapsed to spaces, processor
// noise prefixes stripped. Idempotent.
func NormalizeVendor(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	s = strings.Join(strings.Fields(b.String()), " ")

	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			s = s[len(prefix):]
			break
		}
	}

	return s
}
