package sheets

import (
	"context"

	"moneyflow/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionWriter mirrors a stored transaction as one spreadsheet row.
	TransactionWriter interface {
		AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}
)

// Header is the column layout of the mirror sheet.
var Header = []string{"Date", "Type", "Category", "Description", "Amount", "Currency", "ID"}

// Row renders tx in Header order. Text cells that a spreadsheet would
// evaluate as formulas are quoted.
func Row(tx core.Transaction) []any {
	return []any{
		tx.Date.String(),
		string(tx.Type),
		sanitizeCell(tx.CategoryKey),
		sanitizeCell(tx.Description),
		tx.Amount.Key(),
		string(tx.Amount.Currency),
		tx.ID,
	}
}

func sanitizeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}
