package normalizer

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
)

func mappingFor(fields map[model.Field]string) model.ColumnMapping {
	m := model.NewColumnMapping()
	i := 0
	for f, header := range fields {
		m.Set(f, model.FieldMapping{SourceColumnIndex: i, SourceHeaderName: header, Confidence: 1})
		i++
	}
	return m
}

func row(line int, values map[string]string) model.RawRow {
	return model.RawRow{Line: line, Values: values}
}

func TestTransform_DebitCredit(t *testing.T) {
	mapping := mappingFor(map[model.Field]string{
		model.FieldDate:        "Date",
		model.FieldDescription: "Libellé",
		model.FieldDebit:       "Débit",
		model.FieldCredit:      "Crédit",
	})

	t.Run("credit row", func(t *testing.T) {
		out, err := Transform(row(2, map[string]string{
			"Date": "31/01/2024", "Libellé": "Virement reçu", "Débit": "", "Crédit": "150.00",
		}), mapping, nil)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), out.Date)
		assert.Equal(t, "Virement reçu", out.Description)
		require.True(t, out.Amount.Valid)
		assert.True(t, decimal.RequireFromString("150").Equal(out.Amount.Decimal))
		assert.Equal(t, model.TypeCredit, out.Type)
		assert.Equal(t, 2, out.Line)
	})

	t.Run("debit wins when both positive", func(t *testing.T) {
		out, err := Transform(row(3, map[string]string{
			"Date": "01/02/2024", "Libellé": "CB", "Débit": "10.00", "Crédit": "5.00",
		}), mapping, nil)

		require.NoError(t, err)
		assert.Equal(t, model.TypeDebit, out.Type)
		assert.True(t, decimal.RequireFromString("10").Equal(out.Amount.Decimal))
	})

	t.Run("negative debit without credit leaves amount absent", func(t *testing.T) {
		out, err := Transform(row(3, map[string]string{
			"Date": "01/02/2024", "Libellé": "CB", "Débit": "-10.00", "Crédit": "",
		}), mapping, nil)

		require.NoError(t, err)
		assert.False(t, out.Amount.Valid)
		assert.Empty(t, out.Type)
	})

	t.Run("neither positive leaves amount absent", func(t *testing.T) {
		out, err := Transform(row(4, map[string]string{
			"Date": "01/02/2024", "Libellé": "Zero", "Débit": "0,00", "Crédit": "",
		}), mapping, nil)

		require.NoError(t, err)
		assert.False(t, out.Amount.Valid)
		assert.Empty(t, out.Type)
	})
}

func TestTransform_SingleAmount(t *testing.T) {
	mapping := mappingFor(map[model.Field]string{
		model.FieldDate:        "Date",
		model.FieldDescription: "Label",
		model.FieldAmount:      "Amount",
		model.FieldType:        "Sens",
		model.FieldCategory:    "Category",
		model.FieldAccount:     "Account",
		model.FieldBalance:     "Balance",
	})
	mapping.DecimalSeparator = ","

	tests := []struct {
		name     string
		amount   string
		typ      string
		wantAmt  string
		wantType model.TxType
	}{
		{"negative is debit", "-45,20", "", "45.2", model.TypeDebit},
		{"accounting negative is debit", "(45,20)", "", "45.2", model.TypeDebit},
		{"positive is credit", "1.200,00", "", "1200", model.TypeCredit},
		{"type column decides unsigned value", "45,20", "Débit", "45.2", model.TypeDebit},
		{"negative stays debit despite type column", "-45,20", "credit", "45.2", model.TypeDebit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Transform(row(2, map[string]string{
				"Date": "2024-03-01", "Label": "  Loyer  ", "Amount": tt.amount, "Sens": tt.typ,
				"Category": "Logement", "Account": "Courant", "Balance": "2.000,00",
			}), mapping, nil)

			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.wantAmt).Equal(out.Amount.Decimal), "got %s", out.Amount.Decimal)
			assert.Equal(t, tt.wantType, out.Type)
			assert.False(t, out.Amount.Decimal.IsNegative())
			assert.Equal(t, "Loyer", out.Description)
			assert.Equal(t, "Logement", out.CategoryName)
			assert.Equal(t, "Courant", out.AccountName)
			assert.True(t, decimal.RequireFromString("2000").Equal(out.Balance.Decimal))
		})
	}

	t.Run("unparseable values stay absent", func(t *testing.T) {
		out, err := Transform(row(9, map[string]string{
			"Date": "not a date", "Label": "X", "Amount": "abc",
		}), mapping, nil)

		require.NoError(t, err)
		assert.False(t, out.HasDate())
		assert.False(t, out.Amount.Valid)
	})
}

func TestTransform_BankHints(t *testing.T) {
	bank := &model.BankSignature{
		ID:                 "test_bank",
		DateFormatHint:     "MM/dd/yyyy",
		DecimalSeparator:   ",",
		DescriptionColumns: []string{"Libellé simplifié", "Libellé opération"},
	}
	mapping := mappingFor(map[model.Field]string{
		model.FieldDate:        "Date",
		model.FieldDescription: "Libellé simplifié",
		model.FieldAmount:      "Montant",
	})
	raw := row(2, map[string]string{
		"Date": "03/04/2024", "Libellé simplifié": "CARREFOUR", "Libellé opération": "CB CARREFOUR 02/04", "Montant": "-1.234,50",
	})

	out, err := Transform(raw, mapping, bank)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), out.Date)
	assert.Equal(t, "CARREFOUR - CB CARREFOUR 02/04", out.Description)
	assert.True(t, decimal.RequireFromString("1234.5").Equal(out.Amount.Decimal))

	t.Run("mapping separator overrides bank", func(t *testing.T) {
		m := mapping.Clone()
		m.DecimalSeparator = "."
		assert.Equal(t, ".", DecimalSeparator(m, bank))
		assert.Equal(t, ",", DecimalSeparator(mapping, bank))
		assert.Equal(t, ".", DecimalSeparator(model.NewColumnMapping(), nil))
	})

	t.Run("empty parts are skipped", func(t *testing.T) {
		r := row(3, map[string]string{"Date": "03/04/2024", "Libellé simplifié": "", "Libellé opération": "PRLV EDF", "Montant": "-1"})
		out, err := Transform(r, mapping, bank)
		require.NoError(t, err)
		assert.Equal(t, "PRLV EDF", out.Description)
	})
}

func TestTransform_RowErrors(t *testing.T) {
	t.Run("no amount strategy", func(t *testing.T) {
		mapping := mappingFor(map[model.Field]string{model.FieldDate: "Date", model.FieldDebit: "Débit"})
		_, err := Transform(row(2, map[string]string{"Date": "01/01/2024"}), mapping, nil)
		assert.ErrorIs(t, err, ErrNoAmountStrategy)
	})

	t.Run("blank mapped cells", func(t *testing.T) {
		mapping := mappingFor(map[model.Field]string{model.FieldDate: "Date", model.FieldAmount: "Amount"})
		_, err := Transform(row(7, map[string]string{"Date": " ", "Amount": "", "Notes": "footer"}), mapping, nil)

		var rowErr *RowError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, 7, rowErr.Line)
	})
}

func TestTransform_IsDeterministic(t *testing.T) {
	mapping := mappingFor(map[model.Field]string{model.FieldDate: "Date", model.FieldAmount: "Amount", model.FieldDescription: "Label"})
	raw := row(2, map[string]string{"Date": "31/12/2024", "Amount": "-9.99", "Label": "Netflix"})

	first, err := Transform(raw, mapping, nil)
	require.NoError(t, err)
	second, err := Transform(raw, mapping, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTruncateDescription(t *testing.T) {
	short := "Virement reçu"
	assert.Equal(t, short, TruncateDescription(short))

	long := strings.Repeat("é", 300)
	got := TruncateDescription(long)
	assert.Equal(t, MaxDescriptionLength, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestFoldAccents(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dépôt", "Depot"},
		{"français", "francais"},
		{"à", "a"},
		{"û", "u"},
		{"Crédit Agricole", "Credit Agricole"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldAccents(tt.in))
		})
	}
}

func TestParseType(t *testing.T) {
	for raw, want := range map[string]model.TxType{
		"Débit": model.TypeDebit, " CR ": model.TypeCredit, "sortie": model.TypeDebit, "Crédit": model.TypeCredit,
		"DÉBIT": model.TypeDebit, "crédit": model.TypeCredit,
	} {
		got, ok := ParseType(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseType("virement")
	assert.False(t, ok)
}
