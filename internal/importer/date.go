package importer

import (
	"fmt"
	"strings"
	"time"
)

// autoDateFormats is the fixed list tried when no explicit format is
// configured. ISO-8601 comes first; ambiguous strings like "01/02/03"
// resolve by list order, not locale inference.
var autoDateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"01-02-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"01/02/06",
	"02/01/06",
}

// tokenReplacer translates the column-mapping date tokens (yyyy, MM, dd,
// and friends) into a Go reference layout. Longest tokens first so "yyyy"
// is not consumed as two "yy".
var tokenReplacer = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MMM", "Jan",
	"MM", "01",
	"M", "1",
	"dd", "02",
	"d", "2",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

// LayoutFromTokens converts a token-style date format such as
// "MM/dd/yyyy" into a Go layout. Strings that already look like a Go
// reference layout pass through unchanged.
func LayoutFromTokens(format string) string {
	if strings.Contains(format, "2006") {
		return format
	}
	return tokenReplacer.Replace(format)
}

// ParseDate parses a source date string. With an explicit format only that
// format is tried; otherwise the fixed auto-detect list applies and the
// first matching format wins.
func ParseDate(s, explicitFormat string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if explicitFormat != "" {
		t, err := time.Parse(LayoutFromTokens(explicitFormat), s)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q does not match format %q", s, explicitFormat)
		}
		return t, nil
	}

	for _, layout := range autoDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q does not match any known format", s)
}
