// Package ledger declares the storage and export ports of the group ledger.
package ledger

import (
	"context"
	"errors"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
)

var (
	ErrDuplicateParticipant = errors.New("participant already exists")
	ErrDuplicateExpense     = errors.New("expense already exists")
)

// Ports for outbound adapters.
type (
	ParticipantStore interface {
		AddParticipant(ctx context.Context, name string) error
		// ListParticipants returns names sorted ascending.
		ListParticipants(ctx context.Context) ([]string, error)
	}

	ExpenseStore interface {
		// AddExpense stores e, assigning an ID when e.ID is zero.
		AddExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		// ListExpenses returns expenses ordered by ID ascending.
		ListExpenses(ctx context.Context) ([]core.Expense, error)
	}

	// Versioner reports a counter that grows on every successful write.
	Versioner interface {
		Version(ctx context.Context) (int64, error)
	}

	Store interface {
		ParticipantStore
		ExpenseStore
		Versioner
	}

	ReportExporter interface {
		ExportReport(ctx context.Context, r settlement.Report) error
	}
)

// NextExpenseID picks the ID for a new expense: the creation timestamp,
// bumped past last when two expenses land in the same millisecond.
func NextExpenseID(candidate, last int64) int64 {
	if candidate <= last {
		return last + 1
	}
	return candidate
}
