package importer

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammattholland/escapebudget/internal/common"
	"github.com/iammattholland/escapebudget/internal/model"
)

func TestNormalizeRow(t *testing.T) {
	mapping := ColumnMapping{
		0: FieldDate,
		1: FieldPayee,
		2: FieldAmount,
		3: FieldMemo,
		4: FieldCategory,
	}
	n := NewNormalizer(mapping, "MM/dd/yyyy", PositiveIsIncome)

	c, err := n.NormalizeRow([]string{"03/15/2024", "STARBUCKS #123", "-4.75", "", "Coffee"}, 0)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), c.Date)
	assert.Equal(t, "STARBUCKS #123", c.RawPayee)
	assert.Equal(t, "STARBUCKS #123", c.Payee)
	assert.True(t, c.Amount.Equal(decimal.NewFromFloat(-4.75)))
	assert.Equal(t, "", c.Memo)
	assert.Equal(t, "Coffee", c.RawCategory)
	assert.Equal(t, model.KindStandard, c.Kind)
	assert.Equal(t, model.StatusPending, c.Status)
	assert.True(t, c.Include)
	assert.False(t, c.IsDuplicate)
}

func TestNormalizeRowInflowOutflow(t *testing.T) {
	mapping := ColumnMapping{
		0: FieldDate,
		1: FieldPayee,
		2: FieldInflow,
		3: FieldOutflow,
	}
	n := NewNormalizer(mapping, "", PositiveIsIncome)

	tests := []struct {
		name    string
		inflow  string
		outflow string
		want    decimal.Decimal
	}{
		{name: "outflow only", outflow: "25.00", want: decimal.NewFromInt(-25)},
		{name: "inflow only", inflow: "100.00", want: decimal.NewFromInt(100)},
		{name: "both present nets out", inflow: "100.00", outflow: "25.00", want: decimal.NewFromInt(75)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := n.NormalizeRow([]string{"2024-03-15", "PAYEE", tt.inflow, tt.outflow}, 0)
			require.NoError(t, err)
			assert.True(t, c.Amount.Equal(tt.want), "got %s want %s", c.Amount, tt.want)
		})
	}
}

func TestNormalizeRowSignConvention(t *testing.T) {
	mapping := ColumnMapping{0: FieldDate, 1: FieldPayee, 2: FieldAmount}

	n := NewNormalizer(mapping, "", PositiveIsExpense)
	c, err := n.NormalizeRow([]string{"2024-03-15", "CARD PURCHASE", "4.75"}, 0)
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(decimal.NewFromFloat(-4.75)))

	// A refund reported negative becomes money in.
	c, err = n.NormalizeRow([]string{"2024-03-15", "REFUND", "-10.00"}, 1)
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(10)))
}

func TestNormalizeRowErrors(t *testing.T) {
	mapping := ColumnMapping{0: FieldDate, 1: FieldPayee, 2: FieldAmount}
	n := NewNormalizer(mapping, "", PositiveIsIncome)

	tests := []struct {
		name      string
		row       []string
		wantField string
	}{
		{name: "bad date", row: []string{"not a date", "PAYEE", "1.00"}, wantField: "date"},
		{name: "bad amount", row: []string{"2024-03-15", "PAYEE", "abc"}, wantField: "amount"},
		{name: "missing amount cell", row: []string{"2024-03-15", "PAYEE", ""}, wantField: "amount"},
		{name: "short row", row: []string{"2024-03-15"}, wantField: "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.NormalizeRow(tt.row, 7)
			var rowErr *common.RowParseError
			require.True(t, errors.As(err, &rowErr), "want RowParseError, got %v", err)
			assert.Equal(t, tt.wantField, rowErr.Field)
			assert.Equal(t, 7, rowErr.Row)
		})
	}
}

func TestNormalizePayee(t *testing.T) {
	assert.Equal(t, "STARBUCKS #123", NormalizePayee("  STARBUCKS   #123 "))
	assert.Equal(t, "", NormalizePayee("   "))
}

func TestParseTags(t *testing.T) {
	assert.Nil(t, ParseTags(""))
	assert.Nil(t, ParseTags(" ; , "))
	assert.Equal(t, []string{"travel", "work"}, ParseTags("travel, work"))
	assert.Equal(t, []string{"b", "a", "b"}, ParseTags("b;a;b")) // order kept, no dedupe
}

func TestMappingValidate(t *testing.T) {
	tests := []struct {
		name      string
		mapping   ColumnMapping
		wantField string
	}{
		{name: "missing date", mapping: ColumnMapping{0: FieldPayee, 1: FieldAmount}, wantField: "date"},
		{name: "missing payee", mapping: ColumnMapping{0: FieldDate, 1: FieldAmount}, wantField: "payee"},
		{name: "missing amount", mapping: ColumnMapping{0: FieldDate, 1: FieldPayee}, wantField: "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate()
			var mapErr *common.MappingError
			require.True(t, errors.As(err, &mapErr))
			assert.Equal(t, tt.wantField, mapErr.Field)
		})
	}

	// Outflow alone satisfies the amount requirement.
	ok := ColumnMapping{0: FieldDate, 1: FieldPayee, 2: FieldOutflow}
	assert.NoError(t, ok.Validate())
}

func TestParseMapping(t *testing.T) {
	mapping, err := ParseMapping([]string{"date", "payee", "amount", "skip", "memo"})
	require.NoError(t, err)
	assert.Equal(t, ColumnMapping{
		0: FieldDate,
		1: FieldPayee,
		2: FieldAmount,
		3: FieldSkip,
		4: FieldMemo,
	}, mapping)

	_, err = ParseMapping([]string{"date", "payeee"})
	assert.Error(t, err)
}
