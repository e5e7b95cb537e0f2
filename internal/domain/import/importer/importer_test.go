package importer

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
	"github.com/FACorreiaa/smart-import/internal/domain/import/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fakeRows(t *testing.T, n int, accountID uuid.UUID) []model.ValidatedRow {
	t.Helper()
	faker := gofakeit.New(42)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := make([]model.ValidatedRow, n)
	for i := range rows {
		date := start.AddDate(0, 0, i%365)
		typ := model.TypeDebit
		if i%5 == 0 {
			typ = model.TypeCredit
		}
		rows[i] = model.ValidatedRow{
			TransformedRow: model.TransformedRow{
				Line:        i + 2,
				Date:        date,
				Amount:      decimal.NewNullDecimal(decimal.NewFromFloat(faker.Price(1, 500)).Round(2)),
				Type:        typ,
				Description: faker.Company() + " " + faker.Sentence(3),
			},
			AccountID:  accountID,
			OccurredAt: date,
		}
	}
	return rows
}

func TestImport_SingleCreditRow(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	account := ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Courant"})
	date := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	row := model.ValidatedRow{
		TransformedRow: model.TransformedRow{
			Line: 2, Date: date, Type: model.TypeCredit, Description: "Virement reçu",
			Amount: decimal.NewNullDecimal(decimal.RequireFromString("150.00")),
		},
		AccountID:  account.ID,
		OccurredAt: date,
	}

	out := New(ledger, discardLogger()).Import(context.Background(), []model.ValidatedRow{row}, tenant)

	assert.Equal(t, model.ImportOutcome{Imported: 1}, out)
	txns := ledger.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, int64(15000), txns[0].AmountMinor)
	assert.Equal(t, "EUR", txns[0].CurrencyCode)
	assert.Equal(t, repository.StatusConfirmed, txns[0].Status)
	assert.Equal(t, repository.SourceImport, txns[0].Source)
}

func TestImport_DebitIsStoredNegative(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	account := ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Courant", CurrencyCode: "CHF"})

	row := fakeRows(t, 1, account.ID)[0]
	row.Type = model.TypeDebit
	row.Amount = decimal.NewNullDecimal(decimal.RequireFromString("45.00"))

	out := New(ledger, discardLogger()).Import(context.Background(), []model.ValidatedRow{row}, tenant)
	require.Equal(t, 1, out.Imported)
	assert.Equal(t, int64(-4500), ledger.Transactions()[0].AmountMinor)
	assert.Equal(t, "CHF", ledger.Transactions()[0].CurrencyCode)
}

func TestImport_Idempotent(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	account := ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Courant"})
	imp := New(ledger, discardLogger())
	rows := fakeRows(t, 3, account.ID)

	first := imp.Import(context.Background(), rows, tenant)
	second := imp.Import(context.Background(), rows, tenant)

	assert.Equal(t, 3, first.Imported)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 3, second.Duplicates)
	assert.Equal(t, 0, second.Failed)
	for _, issue := range second.Issues {
		assert.Equal(t, model.SeverityInfo, issue.Severity)
	}
	assert.Len(t, ledger.Transactions(), 3)
}

func TestImport_DuplicateWithinFile(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	account := ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Courant"})
	row := fakeRows(t, 1, account.ID)[0]
	twin := row
	twin.Line = 3

	out := New(ledger, discardLogger()).Import(context.Background(), []model.ValidatedRow{row, twin}, tenant)
	assert.Equal(t, 1, out.Imported)
	assert.Equal(t, 1, out.Duplicates)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, 3, out.Issues[0].Line)
}

func TestImport_ForeignAccountFailsOnlyThatRow(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	mine := ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Courant"})
	theirs := ledger.AddAccount(repository.Account{TenantID: uuid.New(), Name: "Other"})

	rows := fakeRows(t, 3, mine.ID)
	rows[1].AccountID = theirs.ID

	out := New(ledger, discardLogger()).Import(context.Background(), rows, tenant)
	assert.Equal(t, 2, out.Imported)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, rows[1].Line, out.Issues[0].Line)
	assert.Equal(t, model.SeverityError, out.Issues[0].Severity)
}

func TestImport_PartialBatchFailure(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	account := ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Courant"})
	ledger.SetCommitHook(func(n int) error {
		if n == 2 {
			return errors.New("connection lost")
		}
		return nil
	})

	var batches []int
	imp := New(ledger, discardLogger(), WithBatchObserver(func(batch int, _ time.Duration, err error) {
		batches = append(batches, batch)
	}))
	rows := fakeRows(t, 150, account.ID)

	out := imp.Import(context.Background(), rows, tenant)

	assert.Equal(t, 100, out.Imported)
	assert.Equal(t, 50, out.Failed)
	assert.Equal(t, 0, out.Duplicates)
	assert.Equal(t, []int{1, 2}, batches)
	require.Len(t, out.Issues, 50)
	assert.Equal(t, 102, out.Issues[0].Line)
	assert.Equal(t, "batch 2 failed: connection lost", out.Issues[0].Message)
	assert.Len(t, ledger.Transactions(), 100)
}

func TestImport_LaterBatchesStillRun(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	account := ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Courant"})
	ledger.SetCommitHook(func(n int) error {
		if n == 1 {
			return errors.New("deadlock detected")
		}
		return nil
	})

	out := New(ledger, discardLogger(), WithBatchSize(10)).Import(context.Background(), fakeRows(t, 25, account.ID), tenant)
	assert.Equal(t, 15, out.Imported)
	assert.Equal(t, 10, out.Failed)
}

func TestImport_BatchTimeout(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	account := ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Courant"})
	ledger.SetCommitHook(func(n int) error {
		if n == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		return nil
	})

	rows := fakeRows(t, 25, account.ID)
	imp := New(ledger, discardLogger(), WithBatchSize(10), WithBatchTimeout(50*time.Millisecond))

	out := imp.Import(context.Background(), rows, tenant)

	assert.Equal(t, 15, out.Imported)
	assert.Equal(t, 10, out.Failed)
	require.Len(t, out.Issues, 10)
	for i, issue := range out.Issues {
		assert.Equal(t, rows[i].Line, issue.Line)
		assert.Equal(t, "batch 1 failed: timed out after 50ms", issue.Message)
		assert.Equal(t, model.SeverityError, issue.Severity)
	}

	txns := ledger.Transactions()
	require.Len(t, txns, 15)
	stored := make(map[string]bool, len(txns))
	for _, txn := range txns {
		stored[txn.Description] = true
	}
	for _, row := range rows[:10] {
		assert.False(t, stored[row.Description], "row %d of the timed out batch was stored", row.Line)
	}
}

func TestImport_UnrepresentableAmounts(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tenant := uuid.New()
	account := ledger.AddAccount(repository.Account{TenantID: tenant, Name: "Courant"})

	rows := fakeRows(t, 3, account.ID)
	rows[0].Amount = decimal.NewNullDecimal(decimal.RequireFromString("99999999999999999999.00"))
	rows[2].Amount = decimal.NewNullDecimal(decimal.RequireFromString("0.001"))

	out := New(ledger, discardLogger()).Import(context.Background(), rows, tenant)

	assert.Equal(t, 1, out.Imported)
	assert.Equal(t, 2, out.Failed)
	require.Len(t, out.Issues, 2)
	assert.Equal(t, rows[0].Line, out.Issues[0].Line)
	assert.Equal(t, "amount is too large", out.Issues[0].Message)
	assert.Equal(t, rows[2].Line, out.Issues[1].Line)
	assert.Equal(t, "amount is smaller than the account currency's minor unit", out.Issues[1].Message)
	for _, issue := range out.Issues {
		assert.Equal(t, string(model.FieldAmount), issue.Field)
		assert.Equal(t, model.SeverityError, issue.Severity)
	}

	txns := ledger.Transactions()
	require.Len(t, txns, 1)
	assert.NotZero(t, txns[0].AmountMinor)
}

func TestBatchMessage(t *testing.T) {
	assert.Equal(t, "timed out after 1m0s", batchMessage(context.DeadlineExceeded, time.Minute))
	assert.Equal(t, "boom", batchMessage(errors.New("boom"), time.Minute))
}
