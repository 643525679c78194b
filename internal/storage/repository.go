package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"moneyflow/internal/core"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// SyncStatus tracks mirroring of a transaction to the spreadsheet.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncDone    SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// PendingSync represents minimal data needed for sync queue messages
type PendingSync struct {
	ID        string
	Version   int64
	CreatedAt time.Time
}

type SQLiteRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// DSN builds the modernc connection string with the pragmas the
// repository relies on.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	if err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the job runner and the sync worker.
	db.SetMaxOpenConns(1)

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type recurringRow struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	Type             string    `db:"type"`
	CategoryKey      string    `db:"category_key"`
	Amount           string    `db:"amount"`
	Currency         string    `db:"currency"`
	Description      string    `db:"description"`
	Frequency        string    `db:"frequency"`
	Weekday          *int      `db:"weekday"`
	DayOfMonth       *int      `db:"day_of_month"`
	RandomEveryXDays *int      `db:"random_every_x_days"`
	StartDate        core.Date `db:"start_date"`
	EndDate          core.Date `db:"end_date"`
	LastGenerated    core.Date `db:"last_generated"`
	IsActive         bool      `db:"is_active"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

const recurringColumns = `id, user_id, type, category_key, amount, currency, description, frequency,
	weekday, day_of_month, random_every_x_days, start_date, end_date, last_generated,
	is_active, created_at, updated_at`

func (row recurringRow) toCore() (core.RecurringTransaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("recurring %s: parse amount %q: %w", row.ID, row.Amount, err)
	}
	return core.RecurringTransaction{
		ID:               row.ID,
		UserID:           row.UserID,
		Type:             core.TransactionType(row.Type),
		CategoryKey:      row.CategoryKey,
		Amount:           core.Money{Amount: amount, Currency: core.Currency(row.Currency)},
		Description:      row.Description,
		Frequency:        core.Frequency(row.Frequency),
		Weekday:          row.Weekday,
		DayOfMonth:       row.DayOfMonth,
		RandomEveryXDays: row.RandomEveryXDays,
		StartDate:        row.StartDate,
		EndDate:          row.EndDate,
		LastGenerated:    row.LastGenerated,
		IsActive:         row.IsActive,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

func recurringFromCore(rt core.RecurringTransaction) recurringRow {
	return recurringRow{
		ID:               rt.ID,
		UserID:           rt.UserID,
		Type:             string(rt.Type),
		CategoryKey:      rt.CategoryKey,
		Amount:           rt.Amount.Key(),
		Currency:         string(rt.Amount.Currency),
		Description:      rt.Description,
		Frequency:        string(rt.Frequency),
		Weekday:          rt.Weekday,
		DayOfMonth:       rt.DayOfMonth,
		RandomEveryXDays: rt.RandomEveryXDays,
		StartDate:        rt.StartDate,
		EndDate:          rt.EndDate,
		LastGenerated:    rt.LastGenerated,
		IsActive:         rt.IsActive,
		CreatedAt:        rt.CreatedAt,
		UpdatedAt:        rt.UpdatedAt,
	}
}

// CreateRecurring stores a new definition and returns its ID. The caller
// validates the definition first.
func (r *SQLiteRepository) CreateRecurring(ctx context.Context, rt core.RecurringTransaction) (string, error) {
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	now := r.now().UTC()
	rt.CreatedAt, rt.UpdatedAt = now, now

	_, err := r.db.NamedExecContext(ctx, `INSERT INTO recurring_transactions (`+recurringColumns+`)
		VALUES (:id, :user_id, :type, :category_key, :amount, :currency, :description, :frequency,
			:weekday, :day_of_month, :random_every_x_days, :start_date, :end_date, :last_generated,
			:is_active, :created_at, :updated_at)`, recurringFromCore(rt))
	if err != nil {
		return "", fmt.Errorf("create recurring transaction: %w", err)
	}

	slog.InfoContext(ctx, "Recurring transaction saved to SQLite",
		"id", rt.ID,
		"frequency", rt.Frequency,
		"start_date", rt.StartDate.String())
	return rt.ID, nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, id string) (core.RecurringTransaction, error) {
	var row recurringRow
	err := r.db.GetContext(ctx, &row, `SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringTransaction{}, fmt.Errorf("recurring transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("get recurring transaction: %w", err)
	}
	return row.toCore()
}

// ListActiveRecurring returns every active definition ordered by creation.
func (r *SQLiteRepository) ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error) {
	return r.selectRecurring(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions
		WHERE is_active = 1 ORDER BY created_at, id`)
}

// ListRecurring returns the definitions of userID, or of every user when
// userID is empty.
func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error) {
	if userID == "" {
		return r.selectRecurring(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions ORDER BY created_at, id`)
	}
	return r.selectRecurring(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions
		WHERE user_id = ? ORDER BY created_at, id`, userID)
}

func (r *SQLiteRepository) selectRecurring(ctx context.Context, query string, args ...any) ([]core.RecurringTransaction, error) {
	var rows []recurringRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list recurring transactions: %w", err)
	}
	out := make([]core.RecurringTransaction, 0, len(rows))
	for _, row := range rows {
		rt, err := row.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateLastGenerated(ctx context.Context, id string, d core.Date) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET last_generated = ?, updated_at = ? WHERE id = ?`,
		d, r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update last generated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update last generated: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recurring transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) SetRecurringActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set recurring active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recurring transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

type transactionRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Type        string         `db:"type"`
	CategoryKey string         `db:"category_key"`
	Amount      string         `db:"amount"`
	Currency    string         `db:"currency"`
	Description string         `db:"description"`
	Date        core.Date      `db:"date"`
	RecurringID sql.NullString `db:"recurring_id"`
	Version     int64          `db:"version"`
	SyncStatus  string         `db:"sync_status"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (row transactionRow) toCore() (core.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: parse amount %q: %w", row.ID, row.Amount, err)
	}
	return core.Transaction{
		ID:          row.ID,
		UserID:      row.UserID,
		Type:        core.TransactionType(row.Type),
		CategoryKey: row.CategoryKey,
		Amount:      core.Money{Amount: amount, Currency: core.Currency(row.Currency)},
		Description: row.Description,
		Date:        row.Date,
		RecurringID: row.RecurringID.String,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// CreateTransaction inserts tx with a pending sync status and returns its ID.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (string, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	row := transactionRow{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Type:        string(tx.Type),
		CategoryKey: tx.CategoryKey,
		Amount:      tx.Amount.Key(),
		Currency:    string(tx.Amount.Currency),
		Description: tx.Description,
		Date:        tx.Date,
		RecurringID: sql.NullString{String: tx.RecurringID, Valid: tx.RecurringID != ""},
		Version:     1,
		SyncStatus:  string(SyncPending),
		CreatedAt:   r.now().UTC(),
	}

	_, err := r.db.NamedExecContext(ctx, `INSERT INTO transactions
		(id, user_id, type, category_key, amount, currency, description, date, recurring_id, version, sync_status, created_at)
		VALUES (:id, :user_id, :type, :category_key, :amount, :currency, :description, :date, :recurring_id, :version, :sync_status, :created_at)`,
		row)
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", row.ID,
		"recurring_id", tx.RecurringID,
		"amount", row.Amount,
		"currency", row.Currency,
		"date", row.Date.String())
	return row.ID, nil
}

// ExistsTransaction reports whether a transaction with the same duplicate
// key is already stored.
func (r *SQLiteRepository) ExistsTransaction(ctx context.Context, key core.DuplicateKey) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (
		SELECT 1 FROM transactions
		WHERE user_id = ? AND type = ? AND category_key = ? AND amount = ? AND currency = ? AND date = ?)`,
		key.UserID, string(key.Type), key.CategoryKey, key.Amount.Key(), string(key.Amount.Currency), key.Date)
	if err != nil {
		return false, fmt.Errorf("check duplicate transaction: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var row transactionRow
	err := r.db.GetContext(ctx, &row, `SELECT id, user_id, type, category_key, amount, currency, description,
		date, recurring_id, version, sync_status, created_at FROM transactions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by id: %w", err)
	}
	return row.toCore()
}

// ListTransactionsByDate returns the transactions materialized on d, oldest first.
func (r *SQLiteRepository) ListTransactionsByDate(ctx context.Context, d core.Date) ([]core.Transaction, error) {
	var rows []transactionRow
	err := r.db.SelectContext(ctx, &rows, `SELECT id, user_id, type, category_key, amount, currency, description,
		date, recurring_id, version, sync_status, created_at FROM transactions WHERE date = ? ORDER BY created_at, id`, d)
	if err != nil {
		return nil, fmt.Errorf("list transactions by date: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// ListPendingSync returns transactions that still need to reach the spreadsheet.
func (r *SQLiteRepository) ListPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	var rows []struct {
		ID        string    `db:"id"`
		Version   int64     `db:"version"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT id, version, created_at FROM transactions
		WHERE sync_status IN (?, ?) ORDER BY created_at, id LIMIT ?`,
		string(SyncPending), string(SyncError), limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}

	out := make([]PendingSync, len(rows))
	for i, row := range rows {
		out[i] = PendingSync{ID: row.ID, Version: row.Version, CreatedAt: row.CreatedAt}
	}
	return out, nil
}

// GetSyncStatus reports whether a transaction has reached the spreadsheet.
func (r *SQLiteRepository) GetSyncStatus(ctx context.Context, id string) (SyncStatus, error) {
	var status string
	err := r.db.GetContext(ctx, &status, `SELECT sync_status FROM transactions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get sync status: %w", err)
	}
	return SyncStatus(status), nil
}

// MarkSynced marks a transaction as successfully synced
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if err := r.setSyncStatus(ctx, id, SyncDone); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a transaction as having sync errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if err := r.setSyncStatus(ctx, id, SyncError); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id string, status SyncStatus) error {
	var syncedAt any
	if status == SyncDone {
		syncedAt = r.now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ?, synced_at = ? WHERE id = ?`,
		string(status), syncedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}
