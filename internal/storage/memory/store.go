// Package memory is an in-process store with the same behaviour as the
// SQLite repository. It backs DATA_BACKEND=memory and the tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"moneyflow/internal/core"
	"moneyflow/internal/storage"
)

type Store struct {
	mu         sync.Mutex
	recurring  map[string]core.RecurringTransaction
	order      []string
	txs        map[string]core.Transaction
	txOrder    []string
	syncStatus map[string]storage.SyncStatus

	newID func() string
	now   func() time.Time
}

type Option func(*Store)

// WithIDs replaces the UUID generator, mostly for deterministic tests.
func WithIDs(next func() string) Option {
	return func(s *Store) { s.newID = next }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// SequentialIDs returns a generator producing prefix-1, prefix-2, ...
func SequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		recurring:  map[string]core.RecurringTransaction{},
		txs:        map[string]core.Transaction{},
		syncStatus: map[string]storage.SyncStatus{},
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) CreateRecurring(_ context.Context, rt core.RecurringTransaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt.ID == "" {
		rt.ID = s.newID()
	}
	if _, ok := s.recurring[rt.ID]; ok {
		return "", fmt.Errorf("recurring transaction %s already exists", rt.ID)
	}
	now := s.now().UTC()
	rt.CreatedAt, rt.UpdatedAt = now, now
	s.recurring[rt.ID] = rt
	s.order = append(s.order, rt.ID)
	return rt.ID, nil
}

func (s *Store) GetRecurring(_ context.Context, id string) (core.RecurringTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.recurring[id]
	if !ok {
		return core.RecurringTransaction{}, fmt.Errorf("recurring transaction %s: %w", id, storage.ErrNotFound)
	}
	return rt, nil
}

func (s *Store) ListActiveRecurring(context.Context) ([]core.RecurringTransaction, error) {
	return s.filterRecurring(func(rt core.RecurringTransaction) bool { return rt.IsActive }), nil
}

func (s *Store) ListRecurring(_ context.Context, userID string) ([]core.RecurringTransaction, error) {
	return s.filterRecurring(func(rt core.RecurringTransaction) bool {
		return userID == "" || rt.UserID == userID
	}), nil
}

func (s *Store) filterRecurring(keep func(core.RecurringTransaction) bool) []core.RecurringTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RecurringTransaction, 0, len(s.order))
	for _, id := range s.order {
		if rt := s.recurring[id]; keep(rt) {
			out = append(out, rt)
		}
	}
	return out
}

func (s *Store) UpdateLastGenerated(_ context.Context, id string, d core.Date) error {
	return s.updateRecurring(id, func(rt *core.RecurringTransaction) { rt.LastGenerated = d })
}

func (s *Store) SetRecurringActive(_ context.Context, id string, active bool) error {
	return s.updateRecurring(id, func(rt *core.RecurringTransaction) { rt.IsActive = active })
}

func (s *Store) updateRecurring(id string, apply func(*core.RecurringTransaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.recurring[id]
	if !ok {
		return fmt.Errorf("recurring transaction %s: %w", id, storage.ErrNotFound)
	}
	apply(&rt)
	rt.UpdatedAt = s.now().UTC()
	s.recurring[id] = rt
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == "" {
		tx.ID = s.newID()
	}
	if _, ok := s.txs[tx.ID]; ok {
		return "", fmt.Errorf("transaction %s already exists", tx.ID)
	}
	tx.CreatedAt = s.now().UTC()
	s.txs[tx.ID] = tx
	s.txOrder = append(s.txOrder, tx.ID)
	s.syncStatus[tx.ID] = storage.SyncPending
	return tx.ID, nil
}

func (s *Store) ExistsTransaction(_ context.Context, key core.DuplicateKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		k := tx.Key()
		if k.UserID == key.UserID && k.Type == key.Type && k.CategoryKey == key.CategoryKey &&
			k.Date == key.Date && k.Amount.Equal(key.Amount) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) ListTransactionsByDate(_ context.Context, d core.Date) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, id := range s.txOrder {
		if tx := s.txs[id]; tx.Date == d {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Transactions returns every stored transaction in insertion order.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.txOrder))
	for _, id := range s.txOrder {
		out = append(out, s.txs[id])
	}
	return out
}

func (s *Store) ListPendingSync(_ context.Context, limit int) ([]storage.PendingSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.PendingSync
	for _, id := range s.txOrder {
		if len(out) >= limit {
			break
		}
		if st := s.syncStatus[id]; st == storage.SyncPending || st == storage.SyncError {
			out = append(out, storage.PendingSync{ID: id, Version: 1, CreatedAt: s.txs[id].CreatedAt})
		}
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id string) error {
	return s.setSyncStatus(id, storage.SyncDone)
}

func (s *Store) MarkSyncError(_ context.Context, id string) error {
	return s.setSyncStatus(id, storage.SyncError)
}

func (s *Store) GetSyncStatus(_ context.Context, id string) (storage.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.syncStatus[id]
	if !ok {
		return "", fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return st, nil
}

func (s *Store) setSyncStatus(id string, st storage.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	s.syncStatus[id] = st
	return nil
}

// Seed inserts definitions as-is, keeping their IDs and timestamps.
func (s *Store) Seed(items ...core.RecurringTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range items {
		if !slices.Contains(s.order, rt.ID) {
			s.order = append(s.order, rt.ID)
		}
		s.recurring[rt.ID] = rt
	}
}
