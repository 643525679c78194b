package core

import "time"

// SkipReason explains why a definition produced no transaction in a run.
type SkipReason string

const (
	SkipNotToday SkipReason = "notToday"
	SkipExisting SkipReason = "existing"
)

// Skipped is one entry of RunSummary.SkippedReason.
type Skipped struct {
	ID     string     `json:"id"`
	Reason SkipReason `json:"reason"`
}

// ItemError records a per-definition failure; the batch continues.
type ItemError struct {
	ID    string `json:"id"`
	Date  Date   `json:"date"`
	Error string `json:"error"`
}

// RunSummary is the result of one recurring-transaction run. Field names are
// part of the public cron endpoint contract.
type RunSummary struct {
	Success       bool        `json:"success"`
	Created       int         `json:"created"`
	CreatedIDs    []string    `json:"createdIds"`
	SkippedCount  int         `json:"skippedCount"`
	SkippedReason []Skipped   `json:"skippedReason"`
	Errors        []ItemError `json:"errors,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// NewRunSummary returns an empty summary with non-nil slices so they encode as [].
func NewRunSummary() RunSummary {
	return RunSummary{
		Success:       true,
		CreatedIDs:    []string{},
		SkippedReason: []Skipped{},
	}
}

func (s *RunSummary) AddCreated(id string) {
	s.Created++
	s.CreatedIDs = append(s.CreatedIDs, id)
}

func (s *RunSummary) AddSkipped(id string, reason SkipReason) {
	s.SkippedReason = append(s.SkippedReason, Skipped{ID: id, Reason: reason})
	s.SkippedCount = len(s.SkippedReason)
}

func (s *RunSummary) AddError(id string, date Date, err error) {
	s.Errors = append(s.Errors, ItemError{ID: id, Date: date, Error: err.Error()})
}
