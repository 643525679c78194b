package backend

import (
	"context"

	"moneyflow/internal/core"
	"moneyflow/internal/services"
	"moneyflow/internal/worker"
)

// Store is everything the processes need from persistence. Both the SQLite
// repository and the in-memory store satisfy it.
type Store interface {
	services.RecurringStore
	services.TransactionStore
	worker.Store

	CreateRecurring(ctx context.Context, rt core.RecurringTransaction) (string, error)
	GetRecurring(ctx context.Context, id string) (core.RecurringTransaction, error)
	ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error)
	SetRecurringActive(ctx context.Context, id string, active bool) error
	ListTransactionsByDate(ctx context.Context, d core.Date) ([]core.Transaction, error)

	Ping(ctx context.Context) error
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store and its cleanup function
type BackendResult struct {
	Store   Store
	Cleanup CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
