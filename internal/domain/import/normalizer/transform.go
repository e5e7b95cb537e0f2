package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
)

// MaxDescriptionLength is measured in characters, not bytes.
const MaxDescriptionLength = 255

const (
	descriptionSeparator = " - "
	ellipsis             = "…"
)

var (
	ErrNoAmountStrategy = errors.New("mapping needs an amount column or both debit and credit columns")
	ErrEmptyRow         = errors.New("row has no values in the mapped columns")
)

// RowError is a transform failure confined to one row.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// typeTokens maps explicit direction markers found in type columns.
var typeTokens = map[string]model.TxType{
	"debit": model.TypeDebit, "d": model.TypeDebit, "db": model.TypeDebit, "dr": model.TypeDebit,
	"out": model.TypeDebit, "expense": model.TypeDebit, "withdrawal": model.TypeDebit,
	"sortie": model.TypeDebit, "retrait": model.TypeDebit, "depense": model.TypeDebit,
	"debito": model.TypeDebit, "cargo": model.TypeDebit, "soll": model.TypeDebit,

	"credit": model.TypeCredit, "c": model.TypeCredit, "cr": model.TypeCredit,
	"in": model.TypeCredit, "income": model.TypeCredit, "deposit": model.TypeCredit,
	"entree": model.TypeCredit, "versement": model.TypeCredit, "recette": model.TypeCredit,
	"credito": model.TypeCredit, "abono": model.TypeCredit, "haben": model.TypeCredit,
}

// ParseType reads an explicit direction token such as "Débit", "CR" or "out".
func ParseType(raw string) (model.TxType, bool) {
	t, ok := typeTokens[FoldAccents(strings.ToLower(strings.TrimSpace(raw)))]
	return t, ok
}

// FoldAccents strips combining marks, so "Dépôt" becomes "Depot".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// DecimalSeparator picks the separator for amount parsing: the mapping's
// own separator, then the bank hint, then ".".
func DecimalSeparator(mapping model.ColumnMapping, bank *model.BankSignature) string {
	if mapping.DecimalSeparator != "" {
		return mapping.DecimalSeparator
	}
	if bank != nil && bank.DecimalSeparator != "" {
		return bank.DecimalSeparator
	}
	return DefaultDecimalSeparator
}

// Transform converts one raw row into canonical shape. It is pure: unparseable
// dates and amounts leave the field absent for the validator to report. It
// fails only when the mapping cannot yield an amount or the row is empty in
// every mapped column.
func Transform(row model.RawRow, mapping model.ColumnMapping, bank *model.BankSignature) (model.TransformedRow, error) {
	out := model.TransformedRow{Line: row.Line}

	if !mapping.Has(model.FieldAmount) && !mapping.DualAmount() {
		return out, &RowError{Line: row.Line, Err: ErrNoAmountStrategy}
	}
	if mappedCellsBlank(row, mapping) {
		return out, &RowError{Line: row.Line, Err: ErrEmptyRow}
	}

	cell := func(f model.Field) string {
		fm, ok := mapping.Get(f)
		if !ok {
			return ""
		}
		return strings.TrimSpace(row.Get(fm.SourceHeaderName))
	}

	hint := ""
	if bank != nil {
		hint = bank.DateFormatHint
	}
	if date, err := ParseDate(cell(model.FieldDate), hint); err == nil {
		out.Date = date
	}

	sep := DecimalSeparator(mapping, bank)
	if mapping.DualAmount() {
		out.Amount, out.Type = dualAmount(cell(model.FieldDebit), cell(model.FieldCredit), sep)
	} else {
		out.Amount, out.Type = singleAmount(cell(model.FieldAmount), cell(model.FieldType), sep)
	}

	out.Description = TruncateDescription(description(row, mapping, bank))
	out.AccountName = cell(model.FieldAccount)
	out.CategoryName = cell(model.FieldCategory)

	if raw := cell(model.FieldBalance); raw != "" {
		if b, err := ParseAmount(raw, sep); err == nil {
			out.Balance = decimal.NewNullDecimal(b)
		}
	}

	return out, nil
}

// dualAmount reads separate debit and credit columns. Only a positive value
// counts; when neither column holds one, amount and type stay absent.
func dualAmount(debitRaw, creditRaw, sep string) (decimal.NullDecimal, model.TxType) {
	if debit, err := ParseAmount(debitRaw, sep); err == nil && debit.IsPositive() {
		return decimal.NewNullDecimal(debit), model.TypeDebit
	}
	if credit, err := ParseAmount(creditRaw, sep); err == nil && credit.IsPositive() {
		return decimal.NewNullDecimal(credit), model.TypeCredit
	}
	return decimal.NullDecimal{}, ""
}

// singleAmount derives the direction from the sign. An unsigned value takes
// its direction from an explicit type column when one is mapped.
func singleAmount(raw, typeRaw, sep string) (decimal.NullDecimal, model.TxType) {
	value, err := ParseAmount(raw, sep)
	if err != nil {
		return decimal.NullDecimal{}, ""
	}
	if value.IsNegative() {
		return decimal.NewNullDecimal(value.Abs()), model.TypeDebit
	}
	if t, ok := ParseType(typeRaw); ok {
		return decimal.NewNullDecimal(value), t
	}
	return decimal.NewNullDecimal(value), model.TypeCredit
}

func description(row model.RawRow, mapping model.ColumnMapping, bank *model.BankSignature) string {
	if bank != nil && len(bank.DescriptionColumns) > 1 {
		parts := make([]string, 0, len(bank.DescriptionColumns))
		found := false
		for _, col := range bank.DescriptionColumns {
			header, ok := findHeader(row, col)
			if !ok {
				continue
			}
			found = true
			if v := strings.TrimSpace(row.Get(header)); v != "" {
				parts = append(parts, v)
			}
		}
		if found {
			return strings.Join(parts, descriptionSeparator)
		}
	}

	fm, ok := mapping.Get(model.FieldDescription)
	if !ok {
		return ""
	}
	return strings.TrimSpace(row.Get(fm.SourceHeaderName))
}

// findHeader matches a catalog column name against the row's headers,
// ignoring case and surrounding space.
func findHeader(row model.RawRow, name string) (string, bool) {
	if _, ok := row.Values[name]; ok {
		return name, true
	}
	for header := range row.Values {
		if strings.EqualFold(strings.TrimSpace(header), strings.TrimSpace(name)) {
			return header, true
		}
	}
	return "", false
}

// TruncateDescription caps s at MaxDescriptionLength characters, the last
// one being an ellipsis when anything was cut.
func TruncateDescription(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxDescriptionLength {
		return s
	}
	return string(runes[:MaxDescriptionLength-1]) + ellipsis
}

func mappedCellsBlank(row model.RawRow, mapping model.ColumnMapping) bool {
	for _, fm := range mapping.Fields {
		if strings.TrimSpace(row.Get(fm.SourceHeaderName)) != "" {
			return false
		}
	}
	return true
}
