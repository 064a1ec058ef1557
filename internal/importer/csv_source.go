package importer

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVSource converts a delimited byte stream into staged rows for the
// normalizer. Tokenizing is all it does; interpretation belongs to the
// column mapping.
type CSVSource struct {
	reader     io.Reader
	comma      rune
	skipHeader bool
}

// CSVOption configures a CSVSource.
type CSVOption func(*CSVSource)

// WithHeaderRow skips the first row of the stream.
func WithHeaderRow() CSVOption {
	return func(s *CSVSource) { s.skipHeader = true }
}

// WithComma sets the field delimiter.
func WithComma(comma rune) CSVOption {
	return func(s *CSVSource) { s.comma = comma }
}

// NewCSVSource wraps a reader producing delimited text.
func NewCSVSource(r io.Reader, opts ...CSVOption) *CSVSource {
	s := &CSVSource{reader: r, comma: ','}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rows reads the whole stream into staged rows. Ragged rows are allowed;
// the normalizer treats short rows as having empty trailing cells.
func (s *CSVSource) Rows() ([][]string, error) {
	r := csv.NewReader(s.reader)
	r.Comma = s.comma
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		if first && s.skipHeader {
			first = false
			continue
		}
		first = false
		rows = append(rows, rec)
	}
	return rows, nil
}
