// Package repository provides access to the ledger the import pipeline reads
// accounts and categories from and writes transactions to.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CategoryKind says which transaction direction a category applies to.
type CategoryKind string

const (
	KindIncome  CategoryKind = "income"
	KindExpense CategoryKind = "expense"
)

// TransactionStatus values stored on ledger rows.
const (
	StatusConfirmed = "confirmed"
	SourceImport    = "import"
)

// Account is a tenant-owned ledger account.
type Account struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Name         string
	CurrencyCode string
	CreatedAt    time.Time
}

// Category is a tenant-owned transaction category.
type Category struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Kind     CategoryKind
}

// Transaction is a ledger entry. AmountMinor is signed: debits are negative.
type Transaction struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	AccountID    uuid.UUID
	CategoryID   *uuid.UUID
	OccurredAt   time.Time
	AmountMinor  int64
	CurrencyCode string
	Description  string
	Status       string
	Source       string
	CreatedAt    time.Time
}

// DedupKey identifies a transaction for duplicate suppression.
type DedupKey struct {
	AccountID   uuid.UUID
	OccurredAt  time.Time
	AmountMinor int64
	Description string
}

// Key returns the transaction's dedup key.
func (t *Transaction) Key() DedupKey {
	return DedupKey{
		AccountID:   t.AccountID,
		OccurredAt:  t.OccurredAt,
		AmountMinor: t.AmountMinor,
		Description: t.Description,
	}
}

// Directory reads a tenant's accounts and categories.
type Directory interface {
	ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]Account, error)
	ListCategories(ctx context.Context, tenantID uuid.UUID) ([]Category, error)
	// GetAccount returns nil without error when the account does not exist
	// or belongs to another tenant.
	GetAccount(ctx context.Context, accountID, tenantID uuid.UUID) (*Account, error)
}

// Tx is the unit of work a batch runs in.
type Tx interface {
	GetAccount(ctx context.Context, accountID, tenantID uuid.UUID) (*Account, error)
	TransactionExists(ctx context.Context, key DedupKey) (bool, error)
	InsertTransaction(ctx context.Context, txn *Transaction) error
}

// Ledger is the store the importer commits to. WithinTx commits when fn
// returns nil and rolls back otherwise.
type Ledger interface {
	Directory
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
