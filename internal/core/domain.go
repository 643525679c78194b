package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxDescriptionLength is counted in characters, not bytes.
const MaxDescriptionLength = 200

type (
	TransactionType string

	Frequency string

	Transaction struct {
		ID          string
		UserID      string
		Type        TransactionType
		CategoryKey string
		Amount      Money
		Description string
		Date        Date
		RecurringID string // empty for manual entries
		CreatedAt   time.Time
	}

	// RecurringTransaction is the stored definition of a recurring transaction.
	// Anchor fields are nil when the frequency does not use them.
	RecurringTransaction struct {
		ID               string
		UserID           string
		Type             TransactionType
		CategoryKey      string
		Amount           Money
		Description      string
		Frequency        Frequency
		Weekday          *int // 0=Sunday
		DayOfMonth       *int
		RandomEveryXDays *int
		StartDate        Date
		EndDate          Date
		LastGenerated    Date
		IsActive         bool
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// DuplicateKey identifies a generated transaction for idempotence checks.
	DuplicateKey struct {
		UserID      string
		Type        TransactionType
		CategoryKey string
		Amount      Money
		Date        Date
	}
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	BiWeekly  Frequency = "bi-weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
	Random    Frequency = "random"
)

// Frequencies lists every supported frequency.
var Frequencies = []Frequency{Daily, Weekly, BiWeekly, Monthly, Quarterly, Yearly, Random}

var (
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyUser          = errors.New("empty user")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrMissingWeekday     = errors.New("weekday is required")
	ErrMissingDayOfMonth  = errors.New("day of month is required")
	ErrMissingInterval    = errors.New("random interval is required")
	ErrInvalidWeekday     = errors.New("weekday must be between 0 and 6")
	ErrInvalidDayOfMonth  = errors.New("day of month must be between 1 and 31")
	ErrInvalidInterval    = errors.New("random interval must be between 1 and 365")
	ErrMissingStartDate   = errors.New("start date is required")
	ErrEndBeforeStart     = errors.New("end date must be after start date")
	ErrExpiredActive      = errors.New("cannot activate a recurring transaction that has already expired")
	ErrLastGeneratedRange = errors.New("last generated date outside start/end range")
	ErrWeekdayMismatch    = errors.New("bi-weekly start date must fall on the selected weekday")
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
	return f, nil
}

func (f Frequency) Valid() bool {
	for _, v := range Frequencies {
		if v == f {
			return true
		}
	}
	return false
}

// NormalizeText trims and applies Unicode NFC so equal-looking strings
// compare equal in storage.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func validateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.CategoryKey) == "" {
		return ErrEmptyCategory
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := validateDescription(t.Description); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	return nil
}

// Key returns the duplicate-detection key of the transaction.
func (t Transaction) Key() DuplicateKey {
	return DuplicateKey{
		UserID:      t.UserID,
		Type:        t.Type,
		CategoryKey: t.CategoryKey,
		Amount:      t.Amount,
		Date:        t.Date,
	}
}

// Normalize applies NormalizeText to the free-text fields.
func (rt *RecurringTransaction) Normalize() {
	rt.Description = NormalizeText(rt.Description)
	rt.CategoryKey = NormalizeText(rt.CategoryKey)
}

// Validate applies the write-path rules. today is used for the
// expired-but-active check.
func (rt RecurringTransaction) Validate(today Date) error {
	if strings.TrimSpace(rt.UserID) == "" {
		return ErrEmptyUser
	}
	if !rt.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(rt.CategoryKey) == "" {
		return ErrEmptyCategory
	}
	if err := rt.Amount.Validate(); err != nil {
		return err
	}
	if err := validateDescription(rt.Description); err != nil {
		return err
	}
	if err := rt.validateSchedule(); err != nil {
		return err
	}

	if rt.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if err := rt.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if !rt.EndDate.IsZero() {
		if err := rt.EndDate.Validate(); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if !rt.EndDate.After(rt.StartDate) {
			return ErrEndBeforeStart
		}
		if rt.IsActive && rt.EndDate.Before(today) {
			return ErrExpiredActive
		}
	}
	if !rt.LastGenerated.IsZero() {
		if rt.LastGenerated.Before(rt.StartDate) ||
			(!rt.EndDate.IsZero() && rt.LastGenerated.After(rt.EndDate)) {
			return ErrLastGeneratedRange
		}
	}
	if rt.Frequency == BiWeekly && int(rt.StartDate.Weekday()) != *rt.Weekday {
		return ErrWeekdayMismatch
	}
	return nil
}

func (rt RecurringTransaction) validateSchedule() error {
	switch rt.Frequency {
	case Daily:
		return nil
	case Weekly, BiWeekly:
		if rt.Weekday == nil {
			return ErrMissingWeekday
		}
		if *rt.Weekday < 0 || *rt.Weekday > 6 {
			return ErrInvalidWeekday
		}
	case Monthly, Quarterly, Yearly:
		if rt.DayOfMonth == nil {
			return ErrMissingDayOfMonth
		}
		if *rt.DayOfMonth < 1 || *rt.DayOfMonth > 31 {
			return ErrInvalidDayOfMonth
		}
	case Random:
		if rt.RandomEveryXDays == nil {
			return ErrMissingInterval
		}
		if *rt.RandomEveryXDays < 1 || *rt.RandomEveryXDays > 365 {
			return ErrInvalidInterval
		}
	default:
		return ErrInvalidFrequency
	}
	return nil
}

// NewTransaction builds the occurrence materialized on date.
func (rt RecurringTransaction) NewTransaction(date Date) Transaction {
	return Transaction{
		UserID:      rt.UserID,
		Type:        rt.Type,
		CategoryKey: rt.CategoryKey,
		Amount:      rt.Amount,
		Description: rt.Description,
		Date:        date,
		RecurringID: rt.ID,
	}
}

// IntPtr is a helper for the optional anchor fields.
func IntPtr(v int) *int {
	return &v
}
