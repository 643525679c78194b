package services

import (
	"context"
	"fmt"
	"log/slog"

	"moneyflow/internal/core"
	"moneyflow/internal/log"
)

// TransactionService saves transactions locally and announces them for the
// spreadsheet mirror.
type TransactionService struct {
	store     TransactionStore
	publisher EventPublisher
}

// NewTransactionService accepts a nil publisher; events are then skipped and
// the pending-sync sweep picks the rows up instead.
func NewTransactionService(store TransactionStore, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		store:     store,
		publisher: publisher,
	}
}

// Create saves tx and publishes a sync event. Publishing is best effort.
func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (string, error) {
	id, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("save transaction: %w", err)
	}

	if err := s.publish(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldTransactionID, id, log.FieldError, err)
	}
	return id, nil
}

// Exists reports whether a transaction with the same duplicate key is stored.
func (s *TransactionService) Exists(ctx context.Context, key core.DuplicateKey) (bool, error) {
	return s.store.ExistsTransaction(ctx, key)
}

func (s *TransactionService) publish(ctx context.Context, id string) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping transaction event",
			log.FieldTransactionID, id)
		return nil
	}
	return s.publisher.PublishTransactionCreated(ctx, id)
}
