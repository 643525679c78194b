package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"moneyflow/internal/amqp"
	"moneyflow/internal/core"
	"moneyflow/internal/log"
	"moneyflow/internal/sheets"
	"moneyflow/internal/storage"
)

// Store is the slice of the repository the sync worker needs.
type Store interface {
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	GetSyncStatus(ctx context.Context, id string) (storage.SyncStatus, error)
	ListPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}

// SyncWorker mirrors transactions from the database to the spreadsheet.
type SyncWorker struct {
	storage   Store
	sheets    sheets.TransactionWriter
	batchSize int
}

func NewSyncWorker(storage Store, sheets sheets.TransactionWriter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		storage:   storage,
		sheets:    sheets,
		batchSize: batchSize,
	}
}

// HandleTransactionCreated processes a single transaction.created message.
// A returned error requeues the message.
func (w *SyncWorker) HandleTransactionCreated(ctx context.Context, msg *amqp.TransactionCreatedMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		log.FieldTransactionID, msg.ID,
		"version", msg.Version)

	status, err := w.storage.GetSyncStatus(ctx, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// Nothing to mirror; requeueing would loop forever.
		slog.WarnContext(ctx, "Dropping sync message for unknown transaction",
			log.FieldTransactionID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get sync status: %w", err)
	}
	if status == storage.SyncDone {
		slog.DebugContext(ctx, "Transaction already synced", log.FieldTransactionID, msg.ID)
		return nil
	}

	return w.syncTransaction(ctx, msg.ID)
}

// ProcessPending mirrors transactions that haven't been synced yet and
// returns how many were synced. This is a backup mechanism in case AMQP
// messages are lost or the broker is not configured.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processBatch(ctx, w.batchSize)
}

// StartupSyncCheck syncs a larger backlog at worker startup, to recover from
// missed messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, err := w.processBatch(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

func (w *SyncWorker) processBatch(ctx context.Context, limit int) (int, error) {
	pending, err := w.storage.ListPendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", log.FieldTotal, len(pending))

	synced := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.syncTransaction(ctx, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction",
				log.FieldTransactionID, p.ID, log.FieldError, err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (w *SyncWorker) syncTransaction(ctx context.Context, id string) error {
	tx, err := w.storage.GetTransaction(ctx, id)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", log.FieldTransactionID, id, log.FieldError, markErr)
		}
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	ref, err := w.sheets.AppendTransaction(ctx, tx)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", log.FieldTransactionID, id, log.FieldError, markErr)
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, id); err != nil {
		// The row is in the sheet; a retry would duplicate it, so only log.
		slog.ErrorContext(ctx, "Failed to mark as synced", log.FieldTransactionID, id, log.FieldError, err)
	}

	slog.InfoContext(ctx, "Successfully synced transaction",
		log.FieldTransactionID, id,
		log.FieldRecurringID, tx.RecurringID,
		log.FieldSheetsRef, ref,
		log.FieldAmount, tx.Amount.Key(),
		log.FieldCurrency, string(tx.Amount.Currency))

	return nil
}
