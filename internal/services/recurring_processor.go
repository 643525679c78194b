package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"moneyflow/internal/core"
	"moneyflow/internal/log"
	"moneyflow/internal/recurrence"
)

// RecurringProcessor materializes the transactions of recurring definitions
// that are due on a given day.
type RecurringProcessor struct {
	recurring    RecurringStore
	transactions *TransactionService
	logger       *log.StructuredLogger
	now          func() time.Time
}

// NewRecurringProcessor creates a new recurring transaction processor
func NewRecurringProcessor(recurring RecurringStore, transactions *TransactionService, logger *log.Logger) *RecurringProcessor {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &RecurringProcessor{
		recurring:    recurring,
		transactions: transactions,
		logger:       log.NewStructuredLogger(logger.WithComponent(log.ComponentRecurring)),
		now:          time.Now,
	}
}

// WithClock replaces the clock used for the summary timestamp and run
// duration.
func (p *RecurringProcessor) WithClock(now func() time.Time) *RecurringProcessor {
	p.now = now
	return p
}

// Run processes every active definition for today. Failures of a single
// definition are recorded in the summary and the batch continues; only a
// failure to list definitions or a cancelled context aborts the run.
func (p *RecurringProcessor) Run(ctx context.Context, today core.Date) (core.RunSummary, error) {
	summary := core.NewRunSummary()
	if p.recurring == nil || p.transactions == nil {
		return summary, errors.New("processor not properly initialized")
	}
	started := p.now()

	items, err := p.recurring.ListActiveRecurring(ctx)
	if err != nil {
		summary.Success = false
		summary.Timestamp = p.now().UTC()
		return summary, fmt.Errorf("list active recurring transactions: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		log.FieldTotal, len(items),
		log.FieldDate, today.String())

	for _, rt := range items {
		if err := ctx.Err(); err != nil {
			summary.Success = false
			summary.Timestamp = p.now().UTC()
			return summary, err
		}
		p.processOne(ctx, rt, today, &summary)
	}

	summary.Timestamp = p.now().UTC()
	p.logger.LogRunCompleted(ctx, today.String(), len(items), summary.Created,
		summary.SkippedCount, len(summary.Errors), p.now().Sub(started).Milliseconds())
	return summary, nil
}

func (p *RecurringProcessor) processOne(ctx context.Context, rt core.RecurringTransaction, today core.Date, summary *core.RunSummary) {
	def, err := recurrence.FromRecord(rt)
	if err != nil {
		slog.ErrorContext(ctx, "Invalid recurring definition",
			log.FieldRecurringID, rt.ID, log.FieldError, err)
		summary.AddError(rt.ID, today, fmt.Errorf("invalid definition: %w", err))
		return
	}

	if !recurrence.ShouldGenerateToday(def, today) {
		summary.AddSkipped(rt.ID, core.SkipNotToday)
		return
	}

	tx := rt.NewTransaction(today)
	exists, err := p.transactions.Exists(ctx, tx.Key())
	if err != nil {
		slog.ErrorContext(ctx, "Failed to check for existing transaction",
			log.FieldRecurringID, rt.ID, log.FieldError, err)
		summary.AddError(rt.ID, today, fmt.Errorf("check duplicate: %w", err))
		return
	}
	if exists {
		// Written by an earlier, partially failed run. Advance the anchor so
		// the cadence continues from today.
		if err := p.recurring.UpdateLastGenerated(ctx, rt.ID, today); err != nil {
			slog.ErrorContext(ctx, "Failed to update last generated date",
				log.FieldRecurringID, rt.ID, log.FieldError, err)
			summary.AddError(rt.ID, today, fmt.Errorf("update last generated: %w", err))
		}
		slog.InfoContext(ctx, "Skipping recurring transaction, already generated",
			log.FieldRecurringID, rt.ID, log.FieldReason, core.SkipExisting)
		summary.AddSkipped(rt.ID, core.SkipExisting)
		return
	}

	id, err := p.transactions.Create(ctx, tx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create transaction from recurring definition",
			log.FieldRecurringID, rt.ID, log.FieldError, err)
		summary.AddError(rt.ID, today, fmt.Errorf("create transaction: %w", err))
		return
	}
	summary.AddCreated(id)

	if err := p.recurring.UpdateLastGenerated(ctx, rt.ID, today); err != nil {
		// The transaction exists; the next run finds it and repairs the anchor.
		slog.ErrorContext(ctx, "Failed to update last generated date",
			log.FieldRecurringID, rt.ID, log.FieldTransactionID, id, log.FieldError, err)
		summary.AddError(rt.ID, today, fmt.Errorf("update last generated: %w", err))
	}

	p.logger.LogTransactionCreated(ctx, rt.ID, string(rt.Frequency), id,
		today.String(), rt.Amount.Key(), string(rt.Amount.Currency))
}
