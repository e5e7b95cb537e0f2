// Package session keeps parsed uploads between the analyze, preview and
// confirm steps. Entries live in process memory for a fixed TTL and are
// only ever handed to the tenant that created them.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
)

// DefaultTTL is how long a session survives after creation.
const DefaultTTL = 15 * time.Minute

const (
	lockStripes = 32
	tokenBytes  = 32
)

// ErrNotFound covers missing, expired and foreign sessions alike.
var ErrNotFound = errors.New("import session not found")

// Session is the state cached between pipeline steps.
type Session struct {
	ID         string
	TenantID   uuid.UUID
	UploaderID uuid.UUID
	Filename   string
	Table      *model.RawTable
	Bank       model.BankDetectionResult
	Columns    model.ColumnDetection
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Patch updates the review-time parts of a session. Tenant and content are
// fixed at creation.
type Patch struct {
	Columns *model.ColumnDetection
	Bank    *model.BankDetectionResult
}

// Store is a TTL cache of sessions keyed by bearer token. Reads never extend
// an entry's lifetime. Update and Take hold a per-token lock so the tenant
// check and the write happen together.
type Store struct {
	cache   *ttlcache.Cache[string, *Session]
	locks   [lockStripes]sync.Mutex
	ttl     time.Duration
	gaugeMu sync.Mutex
	live    int
	gauge   func(int)
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithActiveGauge reports the live session count on every insert and eviction.
func WithActiveGauge(fn func(int)) Option {
	return func(s *Store) {
		s.gauge = fn
	}
}

// NewStore creates a store whose entries expire ttl after creation.
func NewStore(ttl time.Duration, logger *slog.Logger, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		cache: ttlcache.New[string, *Session](
			ttlcache.WithTTL[string, *Session](ttl),
			ttlcache.WithDisableTouchOnHit[string, *Session](),
		),
		ttl:    ttl,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Handlers run on their own goroutines, so the count is kept here.
	s.cache.OnInsertion(func(_ context.Context, _ *ttlcache.Item[string, *Session]) {
		s.track(1)
	})
	s.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		s.track(-1)
		if reason == ttlcache.EvictionReasonExpired {
			s.logger.Debug("import session expired", slog.String("session_prefix", prefix(item.Key())))
		}
	})
	return s
}

// Create stores sess under a fresh random token and returns the token.
func (s *Store) Create(sess Session) (string, error) {
	if sess.TenantID == uuid.Nil {
		return "", common.E(common.KindInvalidInput, "session requires a tenant")
	}

	id, err := newToken()
	if err != nil {
		return "", common.Wrap(common.KindInternal, "failed to create session", err)
	}

	now := time.Now()
	sess.ID = id
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(s.ttl)

	s.cache.Set(id, &sess, s.ttl)
	return id, nil
}

// Get returns a copy of the session when it exists, has not expired and
// belongs to tenantID.
func (s *Store) Get(id string, tenantID uuid.UUID) (*Session, error) {
	sess, err := s.owned(id, tenantID, "get")
	if err != nil {
		return nil, err
	}
	cp := *sess
	return &cp, nil
}

// Update applies patch to a live session owned by tenantID. The last writer
// wins and the expiry is left unchanged.
func (s *Store) Update(id string, tenantID uuid.UUID, patch Patch) bool {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.owned(id, tenantID, "update")
	if err != nil {
		return false
	}
	remaining := time.Until(sess.ExpiresAt)
	if remaining <= 0 {
		return false
	}

	updated := *sess
	if patch.Columns != nil {
		cols := *patch.Columns
		cols.Mapping = cols.Mapping.Clone()
		updated.Columns = cols
	}
	if patch.Bank != nil {
		updated.Bank = *patch.Bank
	}
	s.cache.Set(id, &updated, remaining)
	return true
}

// Take removes and returns a live session owned by tenantID. Of two
// concurrent callers only one receives the session.
func (s *Store) Take(id string, tenantID uuid.UUID) (*Session, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.owned(id, tenantID, "take"); err != nil {
		return nil, err
	}
	item, ok := s.cache.GetAndDelete(id)
	if !ok {
		return nil, common.Wrap(common.KindNotFound, "import session not found", ErrNotFound)
	}
	return item.Value(), nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
}

// Sweep evicts expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	before := s.cache.Len()
	s.cache.DeleteExpired()
	return max(before-s.cache.Len(), 0)
}

// Len returns the number of stored sessions, expired ones included until swept.
func (s *Store) Len() int {
	return s.cache.Len()
}

func (s *Store) owned(id string, tenantID uuid.UUID, op string) (*Session, error) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, common.Wrap(common.KindNotFound, "import session not found", ErrNotFound)
	}
	sess := item.Value()
	if sess.TenantID != tenantID {
		s.logForeignAccess(id, sess.TenantID, tenantID, op)
		return nil, common.Wrap(common.KindNotFound, "import session not found", ErrNotFound)
	}
	return sess, nil
}

func (s *Store) track(delta int) {
	s.gaugeMu.Lock()
	defer s.gaugeMu.Unlock()
	s.live += delta
	if s.gauge != nil {
		s.gauge(s.live)
	}
}

func (s *Store) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *Store) logForeignAccess(id string, owner, requester uuid.UUID, op string) {
	s.logger.Warn("import session accessed by another tenant",
		slog.Bool("security", true),
		slog.String("op", op),
		slog.String("session_prefix", prefix(id)),
		slog.String("owner_tenant_id", owner.String()),
		slog.String("requester_tenant_id", requester.String()),
	)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// prefix keeps bearer tokens out of logs.
func prefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
