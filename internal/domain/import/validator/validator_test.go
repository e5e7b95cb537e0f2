package validator

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
	"github.com/FACorreiaa/smart-import/internal/domain/import/repository"
)

type fixture struct {
	validator *Validator
	tenant    uuid.UUID
	main      repository.Account
	savings   repository.Account
	salary    repository.Category
	groceries repository.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	f := &fixture{
		tenant:    tenant,
		main:      ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Compte courant"}),
		savings:   ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Livret A"}),
		salary:    ledger.AddCategory(repository.Category{TenantID: tenant, Name: "Salaire", Kind: repository.KindIncome}),
		groceries: ledger.AddCategory(repository.Category{TenantID: tenant, Name: "Courses", Kind: repository.KindExpense}),
	}
	f.validator = New(ledger, slog.New(slog.DiscardHandler))
	f.validator.now = func() time.Time { return time.Date(2024, 6, 15, 23, 0, 0, 0, time.UTC) }
	return f
}

func row(line int, date string, amount string, typ model.TxType, desc string) model.TransformedRow {
	r := model.TransformedRow{Line: line, Type: typ, Description: desc}
	if date != "" {
		r.Date, _ = time.Parse("2006-01-02", date)
	}
	if amount != "" {
		r.Amount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	return r
}

func TestValidate_FatalChecks(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		row   model.TransformedRow
		field model.Field
	}{
		{"missing date", row(2, "", "10.00", model.TypeDebit, "x"), model.FieldDate},
		{"missing amount", row(3, "2024-01-31", "", model.TypeDebit, "x"), model.FieldAmount},
		{"zero amount", row(4, "2024-01-31", "0", model.TypeDebit, "x"), model.FieldAmount},
		{"negative amount", row(5, "2024-01-31", "-3", model.TypeDebit, "x"), model.FieldAmount},
		{"missing type", row(6, "2024-01-31", "3", "", "x"), model.FieldType},
		{"long description", row(7, "2024-01-31", "3", model.TypeCredit, strings.Repeat("é", 256)), model.FieldDescription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.validator.Validate(context.Background(), []model.TransformedRow{tt.row}, f.tenant, f.main.ID)
			require.NoError(t, err)
			assert.Empty(t, res.Valid)
			assert.Equal(t, 1, res.Rejected)
			require.Len(t, res.Issues, 1)
			assert.Equal(t, tt.row.Line, res.Issues[0].Line)
			assert.Equal(t, string(tt.field), res.Issues[0].Field)
			assert.Equal(t, model.SeverityError, res.Issues[0].Severity)
		})
	}
}

func TestValidate_Resolution(t *testing.T) {
	f := newFixture(t)

	t.Run("plain row uses the default account", func(t *testing.T) {
		res, err := f.validator.Validate(context.Background(),
			[]model.TransformedRow{row(2, "2024-01-31", "150.00", model.TypeCredit, "Virement reçu")}, f.tenant, f.main.ID)
		require.NoError(t, err)
		require.Len(t, res.Valid, 1)
		assert.Empty(t, res.Issues)
		assert.Equal(t, f.main.ID, res.Valid[0].AccountID)
		assert.Nil(t, res.Valid[0].CategoryID)
		assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), res.Valid[0].OccurredAt)
	})

	t.Run("account and category names resolve case-insensitively", func(t *testing.T) {
		r := row(2, "2024-01-31", "2500", model.TypeCredit, "Paie")
		r.AccountName = "  livret a "
		r.CategoryName = "SALAIRE"

		res, err := f.validator.Validate(context.Background(), []model.TransformedRow{r}, f.tenant, f.main.ID)
		require.NoError(t, err)
		require.Len(t, res.Valid, 1)
		assert.Empty(t, res.Issues)
		assert.Equal(t, f.savings.ID, res.Valid[0].AccountID)
		require.NotNil(t, res.Valid[0].CategoryID)
		assert.Equal(t, f.salary.ID, *res.Valid[0].CategoryID)
	})

	t.Run("unknown names are warnings", func(t *testing.T) {
		r := row(9, "2024-01-31", "12", model.TypeDebit, "Boulangerie")
		r.AccountName = "Compte joint"
		r.CategoryName = "Loisirs"

		res, err := f.validator.Validate(context.Background(), []model.TransformedRow{r}, f.tenant, f.main.ID)
		require.NoError(t, err)
		require.Len(t, res.Valid, 1)
		assert.Equal(t, f.main.ID, res.Valid[0].AccountID)
		assert.Nil(t, res.Valid[0].CategoryID)
		require.Len(t, res.Issues, 2)
		for _, issue := range res.Issues {
			assert.Equal(t, model.SeverityWarning, issue.Severity)
			assert.Equal(t, 9, issue.Line)
		}
	})

	t.Run("category kind mismatch discards the category", func(t *testing.T) {
		r := row(4, "2024-01-31", "40", model.TypeCredit, "Remboursement")
		r.CategoryName = "Courses"

		res, err := f.validator.Validate(context.Background(), []model.TransformedRow{r}, f.tenant, f.main.ID)
		require.NoError(t, err)
		require.Len(t, res.Valid, 1)
		assert.Nil(t, res.Valid[0].CategoryID)
		require.Len(t, res.Issues, 1)
		assert.Equal(t, string(model.FieldCategory), res.Issues[0].Field)
	})

	t.Run("future date is kept with a warning", func(t *testing.T) {
		res, err := f.validator.Validate(context.Background(), []model.TransformedRow{
			row(2, "2024-06-15", "1", model.TypeDebit, "today"),
			row(3, "2024-06-16", "1", model.TypeDebit, "tomorrow"),
		}, f.tenant, f.main.ID)
		require.NoError(t, err)
		assert.Len(t, res.Valid, 2)
		require.Len(t, res.Issues, 1)
		assert.Equal(t, 3, res.Issues[0].Line)
		assert.Equal(t, model.SeverityWarning, res.Issues[0].Severity)
	})
}

func TestValidate_ForeignDefaultAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.validator.Validate(context.Background(), nil, f.tenant, uuid.New())
	require.Error(t, err)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))

	_, err = f.validator.Validate(context.Background(), nil, uuid.New(), f.main.ID)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}
