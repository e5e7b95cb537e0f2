// Package model defines the data that flows between the import pipeline stages.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field is a canonical transaction field a file column can be mapped onto.
type Field string

const (
	FieldDate        Field = "date"
	FieldAmount      Field = "amount"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
	FieldDescription Field = "description"
	FieldBalance     Field = "balance"
	FieldType        Field = "type"
	FieldCategory    Field = "category"
	FieldAccount     Field = "account"
)

// Fields lists every canonical field in detection priority order.
var Fields = []Field{
	FieldDate, FieldAmount, FieldDebit, FieldCredit, FieldDescription,
	FieldBalance, FieldType, FieldCategory, FieldAccount,
}

// Valid reports whether f is a known canonical field.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// RawRow is one data record keyed by original header name.
type RawRow struct {
	Line   int               `json:"line"` // 1-based source line, header is line 1
	Values map[string]string `json:"values"`
}

// Get returns the cell for header, or "" when the row has no such cell.
func (r RawRow) Get(header string) string {
	return r.Values[header]
}

// RawTable is the parser output. It is never modified after parsing.
type RawTable struct {
	Headers []string `json:"headers"`
	Rows    []RawRow `json:"rows"`
}

// Sample returns at most n leading rows.
func (t *RawTable) Sample(n int) []RawRow {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// FieldMapping ties a canonical field to one source column.
type FieldMapping struct {
	SourceColumnIndex int     `json:"sourceColumnIndex"`
	SourceHeaderName  string  `json:"sourceHeaderName"`
	Confidence        float64 `json:"confidence"`
}

// ColumnMapping holds at most one source column per canonical field.
type ColumnMapping struct {
	Fields map[Field]FieldMapping `json:"fields"`
	// DecimalSeparator overrides the bank hint when set ("," or ".").
	DecimalSeparator string `json:"decimalSeparator,omitempty"`
}

// NewColumnMapping returns an empty mapping.
func NewColumnMapping() ColumnMapping {
	return ColumnMapping{Fields: make(map[Field]FieldMapping)}
}

// Get returns the mapping for f.
func (m ColumnMapping) Get(f Field) (FieldMapping, bool) {
	fm, ok := m.Fields[f]
	return fm, ok
}

// Has reports whether f is mapped.
func (m ColumnMapping) Has(f Field) bool {
	_, ok := m.Fields[f]
	return ok
}

// Set maps f, replacing any previous mapping.
func (m *ColumnMapping) Set(f Field, fm FieldMapping) {
	if m.Fields == nil {
		m.Fields = make(map[Field]FieldMapping)
	}
	m.Fields[f] = fm
}

// Clone returns a deep copy.
func (m ColumnMapping) Clone() ColumnMapping {
	out := ColumnMapping{
		Fields:           make(map[Field]FieldMapping, len(m.Fields)),
		DecimalSeparator: m.DecimalSeparator,
	}
	for f, fm := range m.Fields {
		out.Fields[f] = fm
	}
	return out
}

// DualAmount reports whether the signed amount comes from debit and credit columns.
func (m ColumnMapping) DualAmount() bool {
	return m.Has(FieldDebit) && m.Has(FieldCredit)
}

// ColumnDetection is the column detector's result.
type ColumnDetection struct {
	Mapping           ColumnMapping `json:"mapping"`
	OverallConfidence float64       `json:"overallConfidence"`
}

// BankSignature is a static catalog entry describing one bank's export format.
type BankSignature struct {
	ID              string   `json:"id" yaml:"id"`
	DisplayName     string   `json:"displayName" yaml:"display_name"`
	ExpectedHeaders []string `json:"expectedHeaders" yaml:"expected_headers"`
	// DateFormatHint is a dd/MM/yyyy style pattern.
	DateFormatHint string `json:"dateFormatHint,omitempty" yaml:"date_format"`
	// DecimalSeparator is "," or ".".
	DecimalSeparator string `json:"decimalSeparator" yaml:"decimal_separator"`
	// DescriptionColumns are concatenated in order when more than one is listed.
	DescriptionColumns []string `json:"descriptionColumns,omitempty" yaml:"description_columns"`
}

// BankDetectionResult carries the detected bank, if any.
type BankDetectionResult struct {
	Bank       *BankSignature `json:"bank,omitempty"`
	Confidence float64        `json:"confidence"`
}

// TxType is the direction of a transaction.
type TxType string

const (
	TypeCredit TxType = "credit"
	TypeDebit  TxType = "debit"
)

// Valid reports whether t is credit or debit.
func (t TxType) Valid() bool {
	return t == TypeCredit || t == TypeDebit
}

// TransformedRow is a row in canonical shape. Amount is never negative;
// the direction lives in Type. Absent values are zero (Date), invalid (Amount)
// or empty (Type).
type TransformedRow struct {
	Line         int                 `json:"line"`
	Date         time.Time           `json:"date"`
	Amount       decimal.NullDecimal `json:"amount"`
	Type         TxType              `json:"type,omitempty"`
	Description  string              `json:"description"`
	AccountName  string              `json:"accountName,omitempty"`
	CategoryName string              `json:"categoryName,omitempty"`
	Balance      decimal.NullDecimal `json:"balance"`
}

// HasDate reports whether the date was parsed.
func (r TransformedRow) HasDate() bool {
	return !r.Date.IsZero()
}

// SignedAmount returns the amount with debits negated.
func (r TransformedRow) SignedAmount() decimal.Decimal {
	if r.Type == TypeDebit {
		return r.Amount.Decimal.Neg()
	}
	return r.Amount.Decimal
}

// ValidatedRow is a transformed row whose references resolved for the tenant.
type ValidatedRow struct {
	TransformedRow
	AccountID  uuid.UUID  `json:"accountId"`
	CategoryID *uuid.UUID `json:"categoryId,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// Severity grades a per-row issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is a line-numbered problem reported back to the user.
type Issue struct {
	Line     int      `json:"line" csv:"line"`
	Field    string   `json:"field,omitempty" csv:"field"`
	Message  string   `json:"message" csv:"message"`
	Severity Severity `json:"severity" csv:"severity"`
}

// ImportOutcome summarizes a confirmed import.
type ImportOutcome struct {
	Imported   int     `json:"imported"`
	Duplicates int     `json:"duplicates"`
	Failed     int     `json:"failed"`
	Issues     []Issue `json:"issues"`
}
