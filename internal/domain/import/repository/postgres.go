package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Pool is the subset of pgxpool.Pool the ledger uses. pgxmock satisfies it in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger implements Ledger using PostgreSQL
type PostgresLedger struct {
	pool Pool
}

// NewPostgresLedger creates a new PostgreSQL ledger
func NewPostgresLedger(pool Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// ListAccounts returns every account owned by the tenant
func (r *PostgresLedger) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]Account, error) {
	query := `
		SELECT id, tenant_id, name, currency_code, created_at
		FROM accounts
		WHERE tenant_id = $1
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.CurrencyCode, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// ListCategories returns every category owned by the tenant
func (r *PostgresLedger) ListCategories(ctx context.Context, tenantID uuid.UUID) ([]Category, error) {
	query := `
		SELECT id, tenant_id, name, kind
		FROM categories
		WHERE tenant_id = $1
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		var kind string
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Kind = CategoryKind(kind)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// GetAccount retrieves an account scoped to its tenant
func (r *PostgresLedger) GetAccount(ctx context.Context, accountID, tenantID uuid.UUID) (*Account, error) {
	return getAccount(ctx, r.pool, accountID, tenantID)
}

// WithinTx runs fn inside a database transaction
func (r *PostgresLedger) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) GetAccount(ctx context.Context, accountID, tenantID uuid.UUID) (*Account, error) {
	return getAccount(ctx, t.tx, accountID, tenantID)
}

func (t *postgresTx) TransactionExists(ctx context.Context, key DedupKey) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE account_id = $1 AND occurred_at = $2 AND amount_minor = $3 AND description = $4
		)`

	var exists bool
	err := t.tx.QueryRow(ctx, query, key.AccountID, key.OccurredAt, key.AmountMinor, key.Description).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate transaction: %w", err)
	}
	return exists, nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, txn *Transaction) error {
	query := `
		INSERT INTO transactions (id, tenant_id, account_id, category_id, occurred_at, amount_minor, currency_code, description, status, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}

	err := t.tx.QueryRow(ctx, query,
		txn.ID,
		txn.TenantID,
		txn.AccountID,
		txn.CategoryID,
		txn.OccurredAt,
		txn.AmountMinor,
		txn.CurrencyCode,
		txn.Description,
		txn.Status,
		txn.Source,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func getAccount(ctx context.Context, q querier, accountID, tenantID uuid.UUID) (*Account, error) {
	query := `
		SELECT id, tenant_id, name, currency_code, created_at
		FROM accounts
		WHERE id = $1 AND tenant_id = $2`

	a := &Account{}
	err := q.QueryRow(ctx, query, accountID, tenantID).Scan(&a.ID, &a.TenantID, &a.Name, &a.CurrencyCode, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}
