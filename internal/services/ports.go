package services

import (
	"context"

	"moneyflow/internal/core"
)

// RecurringStore is the part of the repository the job runner reads and advances.
type RecurringStore interface {
	ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error)
	UpdateLastGenerated(ctx context.Context, id string, d core.Date) error
}

// TransactionStore persists generated transactions.
type TransactionStore interface {
	ExistsTransaction(ctx context.Context, key core.DuplicateKey) (bool, error)
	CreateTransaction(ctx context.Context, tx core.Transaction) (string, error)
}

// EventPublisher announces new transactions to the sync worker.
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, id string) error
}
