package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process Ledger for local runs and tests. Transactions
// are serialized and staged writes are discarded on rollback.
type MemoryLedger struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]Account
	categories   map[uuid.UUID]Category
	transactions []Transaction
	keys         map[DedupKey]bool
	txCount      int
	commitHook   func(n int) error
	now          func() time.Time
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts:   make(map[uuid.UUID]Account),
		categories: make(map[uuid.UUID]Category),
		keys:       make(map[DedupKey]bool),
		now:        time.Now,
	}
}

// AddAccount stores an account, assigning an ID when it has none.
func (m *MemoryLedger) AddAccount(a Account) Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CurrencyCode == "" {
		a.CurrencyCode = "EUR"
	}
	a.CreatedAt = m.now()
	m.accounts[a.ID] = a
	return a
}

// AddCategory stores a category, assigning an ID when it has none.
func (m *MemoryLedger) AddCategory(c Category) Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.categories[c.ID] = c
	return c
}

// SetCommitHook installs a function called before the n-th transaction
// (1-based) commits. A non-nil return rolls that transaction back.
func (m *MemoryLedger) SetCommitHook(hook func(n int) error) {
	m.mu.Lock()
	m.commitHook = hook
	m.mu.Unlock()
}

// Transactions returns a copy of the committed transactions.
func (m *MemoryLedger) Transactions() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

func (m *MemoryLedger) ListAccounts(_ context.Context, tenantID uuid.UUID) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Account
	for _, a := range m.accounts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (m *MemoryLedger) ListCategories(_ context.Context, tenantID uuid.UUID) ([]Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Category
	for _, c := range m.categories {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (m *MemoryLedger) GetAccount(_ context.Context, accountID, tenantID uuid.UUID) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account(accountID, tenantID), nil
}

// WithinTx holds the ledger lock for the whole unit of work.
func (m *MemoryLedger) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txCount++
	tx := &memoryTx{ledger: m, staged: make(map[DedupKey]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.commitHook != nil {
		if err := m.commitHook(m.txCount); err != nil {
			return err
		}
		// A slow commit can still run past the caller's deadline.
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	for _, t := range tx.inserts {
		m.transactions = append(m.transactions, t)
		m.keys[t.Key()] = true
	}
	return nil
}

func (m *MemoryLedger) account(accountID, tenantID uuid.UUID) *Account {
	a, ok := m.accounts[accountID]
	if !ok || a.TenantID != tenantID {
		return nil
	}
	return &a
}

// memoryTx runs with the ledger lock held.
type memoryTx struct {
	ledger  *MemoryLedger
	inserts []Transaction
	staged  map[DedupKey]bool
}

func (t *memoryTx) GetAccount(ctx context.Context, accountID, tenantID uuid.UUID) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.ledger.account(accountID, tenantID), nil
}

func (t *memoryTx) TransactionExists(ctx context.Context, key DedupKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key.OccurredAt = key.OccurredAt.UTC()
	return t.ledger.keys[key] || t.staged[key], nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, txn *Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.OccurredAt = txn.OccurredAt.UTC()
	txn.CreatedAt = t.ledger.now()

	t.inserts = append(t.inserts, *txn)
	t.staged[txn.Key()] = true
	return nil
}
