// Package importer turns staged rows from bank exports into candidate
// transactions ready for deduplication, pattern matching, and commit.
package importer

import (
	"fmt"
	"strings"

	"github.com/iammattholland/escapebudget/internal/common"
)

// FieldType identifies what a source column contains.
type FieldType int

// Field types a column can be mapped to.
const (
	FieldSkip FieldType = iota
	FieldDate
	FieldPayee
	FieldAmount
	FieldInflow
	FieldOutflow
	FieldMemo
	FieldCategory
	FieldAccount
	FieldTags
	FieldStatus
	FieldKind
	FieldTransferID
)

var fieldTypeNames = map[string]FieldType{
	"skip":       FieldSkip,
	"date":       FieldDate,
	"payee":      FieldPayee,
	"amount":     FieldAmount,
	"inflow":     FieldInflow,
	"outflow":    FieldOutflow,
	"memo":       FieldMemo,
	"category":   FieldCategory,
	"account":    FieldAccount,
	"tags":       FieldTags,
	"status":     FieldStatus,
	"kind":       FieldKind,
	"transferid": FieldTransferID,
}

// ParseFieldType decodes a field type name as used in CLI mappings.
func ParseFieldType(s string) (FieldType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", "")
	key = strings.ReplaceAll(key, "-", "")
	if ft, ok := fieldTypeNames[key]; ok {
		return ft, nil
	}
	return FieldSkip, fmt.Errorf("unknown field type %q", s)
}

// ColumnMapping maps source column index to the field it carries.
type ColumnMapping map[int]FieldType

// ParseMapping builds a mapping from an ordered list of field names, one
// per source column.
func ParseMapping(fields []string) (ColumnMapping, error) {
	mapping := make(ColumnMapping, len(fields))
	for i, name := range fields {
		ft, err := ParseFieldType(name)
		if err != nil {
			return nil, err
		}
		mapping[i] = ft
	}
	return mapping, nil
}

// Column returns the index mapped to the given field, if any.
func (m ColumnMapping) Column(ft FieldType) (int, bool) {
	for idx, mapped := range m {
		if mapped == ft {
			return idx, true
		}
	}
	return 0, false
}

// Validate checks that the required fields are mapped: date, payee, and
// either a signed amount column or at least one of inflow/outflow. A
// failure here is fatal to the whole batch before processing starts.
func (m ColumnMapping) Validate() error {
	if _, ok := m.Column(FieldDate); !ok {
		return &common.MappingError{Field: "date"}
	}
	if _, ok := m.Column(FieldPayee); !ok {
		return &common.MappingError{Field: "payee"}
	}
	_, hasAmount := m.Column(FieldAmount)
	_, hasInflow := m.Column(FieldInflow)
	_, hasOutflow := m.Column(FieldOutflow)
	if !hasAmount && !hasInflow && !hasOutflow {
		return &common.MappingError{Field: "amount"}
	}
	return nil
}

// SignConvention says which direction a positive source amount means.
type SignConvention int

// Sign conventions.
const (
	// PositiveIsIncome keeps source signs as-is: positive amounts are
	// money into the account.
	PositiveIsIncome SignConvention = iota
	// PositiveIsExpense negates source amounts: positive amounts are
	// money out of the account, as some card exports report.
	PositiveIsExpense
)
