// Package importer commits validated rows to the ledger in fixed-size batches.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
	"github.com/FACorreiaa/smart-import/internal/domain/import/repository"
	"github.com/FACorreiaa/smart-import/pkg/money"
)

const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 60 * time.Second
)

// BatchObserver is told about every finished batch.
type BatchObserver func(batch int, elapsed time.Duration, err error)

// Importer writes rows to a ledger. Batches run sequentially.
type Importer struct {
	ledger    repository.Ledger
	logger    *slog.Logger
	batchSize int
	timeout   time.Duration
	observe   BatchObserver
}

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize sets the number of rows per transaction.
func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithBatchTimeout bounds each batch transaction.
func WithBatchTimeout(d time.Duration) Option {
	return func(i *Importer) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithBatchObserver installs a per-batch callback.
func WithBatchObserver(fn BatchObserver) Option {
	return func(i *Importer) { i.observe = fn }
}

// New creates an importer.
func New(ledger repository.Ledger, logger *slog.Logger, opts ...Option) *Importer {
	i := &Importer{
		ledger:    ledger,
		logger:    logger,
		batchSize: DefaultBatchSize,
		timeout:   DefaultBatchTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type batchResult struct {
	imported   int
	duplicates int
	failed     int
	issues     []model.Issue
}

// Import commits rows for tenantID. A failed batch marks all of its rows
// failed and the remaining batches are still attempted.
func (i *Importer) Import(ctx context.Context, rows []model.ValidatedRow, tenantID uuid.UUID) model.ImportOutcome {
	var out model.ImportOutcome

	for start, n := 0, 1; start < len(rows); start, n = start+i.batchSize, n+1 {
		end := min(start+i.batchSize, len(rows))
		batch := rows[start:end]

		began := time.Now()
		res, err := i.runBatch(ctx, batch, tenantID)
		if i.observe != nil {
			i.observe(n, time.Since(began), err)
		}

		if err != nil {
			msg := fmt.Sprintf("batch %d failed: %s", n, batchMessage(err, i.timeout))
			i.logger.Error("import batch failed",
				slog.Int("batch", n),
				slog.Int("rows", len(batch)),
				slog.String("tenant_id", tenantID.String()),
				slog.Any("error", err))
			for _, row := range batch {
				out.Issues = append(out.Issues, model.Issue{Line: row.Line, Message: msg, Severity: model.SeverityError})
			}
			out.Failed += len(batch)
			continue
		}

		out.Imported += res.imported
		out.Duplicates += res.duplicates
		out.Failed += res.failed
		out.Issues = append(out.Issues, res.issues...)
	}

	i.logger.Info("import finished",
		slog.String("tenant_id", tenantID.String()),
		slog.Int("imported", out.Imported),
		slog.Int("duplicates", out.Duplicates),
		slog.Int("failed", out.Failed))
	return out
}

func (i *Importer) runBatch(ctx context.Context, batch []model.ValidatedRow, tenantID uuid.UUID) (*batchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	var res *batchResult
	err := i.ledger.WithinTx(ctx, func(tx repository.Tx) error {
		res = &batchResult{}
		for _, row := range batch {
			account, err := tx.GetAccount(ctx, row.AccountID, tenantID)
			if err != nil {
				return fmt.Errorf("failed to verify account: %w", err)
			}
			if account == nil {
				i.logger.Warn("row targets an account outside the tenant",
					slog.Bool("security", true),
					slog.String("tenant_id", tenantID.String()),
					slog.String("account_id", row.AccountID.String()),
					slog.Int("line", row.Line))
				res.failed++
				res.issues = append(res.issues, model.Issue{
					Line: row.Line, Field: string(model.FieldAccount),
					Message: "account not found", Severity: model.SeverityError,
				})
				continue
			}

			amount, err := money.NewFromDecimal(row.SignedAmount(), account.CurrencyCode)
			if err != nil {
				res.failed++
				res.issues = append(res.issues, model.Issue{
					Line: row.Line, Field: string(model.FieldAmount),
					Message: amountMessage(err), Severity: model.SeverityError,
				})
				continue
			}
			txn := &repository.Transaction{
				TenantID:     tenantID,
				AccountID:    account.ID,
				CategoryID:   row.CategoryID,
				OccurredAt:   row.OccurredAt,
				AmountMinor:  amount.Amount(),
				CurrencyCode: amount.Currency(),
				Description:  row.Description,
				Status:       repository.StatusConfirmed,
				Source:       repository.SourceImport,
			}

			exists, err := tx.TransactionExists(ctx, txn.Key())
			if err != nil {
				return fmt.Errorf("failed to check duplicate: %w", err)
			}
			if exists {
				res.duplicates++
				res.issues = append(res.issues, model.Issue{
					Line: row.Line, Message: "duplicate of an existing transaction, skipped", Severity: model.SeverityInfo,
				})
				continue
			}

			if err := tx.InsertTransaction(ctx, txn); err != nil {
				return fmt.Errorf("failed to insert transaction: %w", err)
			}
			res.imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func amountMessage(err error) string {
	if errors.Is(err, money.ErrBelowMinorUnit) {
		return "amount is smaller than the account currency's minor unit"
	}
	return "amount is too large"
}

func batchMessage(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("timed out after %s", timeout)
	}
	var e *common.Error
	if errors.As(err, &e) {
		return common.MessageOf(err)
	}
	return err.Error()
}
