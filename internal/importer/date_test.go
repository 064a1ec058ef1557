package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutFromTokens(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "yyyy-MM-dd", want: "2006-01-02"},
		{format: "MM/dd/yyyy", want: "01/02/2006"},
		{format: "dd.MM.yy", want: "02.01.06"},
		{format: "d MMM yyyy", want: "2 Jan 2006"},
		// Go layouts pass through untouched.
		{format: "2006-01-02 15:04:05", want: "2006-01-02 15:04:05"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, LayoutFromTokens(tt.format))
		})
	}
}

func TestParseDateAutoDetect(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{name: "iso", input: "2024-03-15", want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{name: "us slash", input: "03/15/2024", want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{name: "long month", input: "Mar 15, 2024", want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{name: "datetime", input: "2024-03-15 09:30:00", want: time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)},
		// Ambiguous: 01/02/2006 is tried before 02/01/2006, so this is
		// January 2nd, by list order rather than locale.
		{name: "ambiguous resolves by list order", input: "01/02/2024", want: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input, "")
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestParseDateExplicitFormat(t *testing.T) {
	got, err := ParseDate("15/03/2024", "dd/MM/yyyy")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)

	// An explicit format disables auto-detection entirely.
	_, err = ParseDate("2024-03-15", "dd/MM/yyyy")
	assert.Error(t, err)
}

func TestParseDateErrors(t *testing.T) {
	_, err := ParseDate("", "")
	assert.Error(t, err)

	_, err = ParseDate("the ides of march", "")
	assert.Error(t, err)
}
