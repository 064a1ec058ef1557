package importer

import (
	"strings"

	"github.com/shopspring/decimal"
)

// currencyRunes are stripped from amount strings before parsing.
const currencyRunes = "$€£¥₹"

// CleanAmount canonicalizes an amount string: currency symbols, spaces,
// and thousands separators are removed, and a parenthesized value becomes
// a negated one. Cleaning is idempotent: cleaning an already-clean string
// returns it unchanged.
func CleanAmount(s string) string {
	s = strings.TrimSpace(s)

	negate := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = s[1 : len(s)-1]
		negate = true
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ',' || r == '\'' || r == ' ' || r == ' ':
			// thousands separators
		case strings.ContainsRune(currencyRunes, r):
			// currency symbols
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())

	if negate && !strings.HasPrefix(cleaned, "-") {
		cleaned = "-" + cleaned
	}
	return cleaned
}

// ParseAmount parses a source amount string into an exact decimal. A value
// that still fails to parse after cleaning is a row-level error for the
// caller to attribute.
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(CleanAmount(s))
}
