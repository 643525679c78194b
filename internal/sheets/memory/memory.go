package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"moneyflow/internal/core"
	ports "moneyflow/internal/sheets"
)

// Store records mirrored rows in memory. It backs local runs without a
// spreadsheet and the worker tests.
type Store struct {
	mu   sync.Mutex
	rows [][]any
	fail error
}

var _ ports.TransactionWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendTransaction stores the row and returns a synthetic row reference.
func (s *Store) AppendTransaction(_ context.Context, tx core.Transaction) (string, error) {
	if tx.ID == "" {
		return "", errors.New("transaction has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.rows = append(s.rows, ports.Row(tx))
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// FailWith makes subsequent appends return err; nil restores normal behaviour.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Rows returns a copy of the appended rows.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.rows...)
}
