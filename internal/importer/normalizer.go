package importer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iammattholland/escapebudget/internal/common"
	"github.com/iammattholland/escapebudget/internal/model"
)

// Normalizer turns one raw delimited row into a candidate transaction
// according to a column mapping, a date format option, and an amount sign
// convention. A row yields either a candidate or a row-level parse error,
// never both.
type Normalizer struct {
	mapping    ColumnMapping
	dateFormat string // empty means auto-detect
	sign       SignConvention
}

// NewNormalizer builds a normalizer. The mapping must already be
// validated; see ColumnMapping.Validate.
func NewNormalizer(mapping ColumnMapping, dateFormat string, sign SignConvention) *Normalizer {
	return &Normalizer{
		mapping:    mapping,
		dateFormat: dateFormat,
		sign:       sign,
	}
}

// cell returns the trimmed cell mapped to the field, or "" when the field
// is unmapped or the row is short.
func (n *Normalizer) cell(row []string, ft FieldType) string {
	idx, ok := n.mapping.Column(ft)
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// NormalizeRow parses one staged row into a candidate. Parse failures come
// back as *common.RowParseError attributed to the row; the batch continues
// past them.
func (n *Normalizer) NormalizeRow(row []string, rowIndex int) (model.Candidate, error) {
	c := model.NewCandidate(rowIndex)

	rawDate := n.cell(row, FieldDate)
	date, err := ParseDate(rawDate, n.dateFormat)
	if err != nil {
		return model.Candidate{}, &common.RowParseError{Row: rowIndex, Field: "date", Value: rawDate, Err: err}
	}
	c.Date = date

	amount, err := n.parseRowAmount(row, rowIndex)
	if err != nil {
		return model.Candidate{}, err
	}
	if n.sign == PositiveIsExpense {
		amount = amount.Neg()
	}
	c.Amount = amount

	c.RawPayee = n.cell(row, FieldPayee)
	c.Payee = NormalizePayee(c.RawPayee)
	c.Memo = n.cell(row, FieldMemo)
	c.RawCategory = n.cell(row, FieldCategory)
	c.RawAccount = n.cell(row, FieldAccount)
	c.RawTags = ParseTags(n.cell(row, FieldTags))
	c.Status = model.ParseTransactionStatus(n.cell(row, FieldStatus))
	c.Kind = model.ParseTransactionKind(n.cell(row, FieldKind))
	c.IntendedTransferAccount = n.cell(row, FieldTransferID)

	return c, nil
}

// parseRowAmount resolves the signed amount from either a single amount
// column or the inflow/outflow pair: inflow counts positive, outflow
// negative, and both present means inflow minus outflow.
func (n *Normalizer) parseRowAmount(row []string, rowIndex int) (decimal.Decimal, error) {
	if raw := n.cell(row, FieldAmount); raw != "" {
		amount, err := ParseAmount(raw)
		if err != nil {
			return decimal.Zero, &common.RowParseError{Row: rowIndex, Field: "amount", Value: raw, Err: err}
		}
		return amount, nil
	}

	total := decimal.Zero
	parsed := false
	if raw := n.cell(row, FieldInflow); raw != "" {
		inflow, err := ParseAmount(raw)
		if err != nil {
			return decimal.Zero, &common.RowParseError{Row: rowIndex, Field: "inflow", Value: raw, Err: err}
		}
		total = total.Add(inflow)
		parsed = true
	}
	if raw := n.cell(row, FieldOutflow); raw != "" {
		outflow, err := ParseAmount(raw)
		if err != nil {
			return decimal.Zero, &common.RowParseError{Row: rowIndex, Field: "outflow", Value: raw, Err: err}
		}
		total = total.Sub(outflow)
		parsed = true
	}
	if !parsed {
		return decimal.Zero, &common.RowParseError{Row: rowIndex, Field: "amount", Value: "", Err: fmt.Errorf("no amount present")}
	}
	return total, nil
}

// NormalizePayee collapses internal whitespace and trims the raw payee.
// Substring and prefix heuristics downstream work on this form.
func NormalizePayee(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// ParseTags splits a source tag cell on comma or semicolon, trims each
// tag, drops empties, preserves order, and does not dedupe.
func ParseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tags = append(tags, p)
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
