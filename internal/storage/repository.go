package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"

	_ "modernc.org/sqlite"
)

var _ ledger.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) AddParticipant(ctx context.Context, name string) error {
	n, err := r.queries.InsertParticipant(ctx, name)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("add %q: %w", name, ledger.ErrDuplicateParticipant)
	}
	slog.InfoContext(ctx, "Participant saved to SQLite", "name", name)
	return nil
}

func (r *SQLiteRepository) ListParticipants(ctx context.Context) ([]string, error) {
	names, err := r.queries.ListParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// AddExpense stores the expense row and its ordered payments in one transaction.
func (r *SQLiteRepository) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if e.ID == 0 {
		last, err := q.MaxExpenseID(ctx)
		if err != nil {
			return core.Expense{}, fmt.Errorf("max expense id: %w", err)
		}
		e.ID = ledger.NextExpenseID(core.NewExpenseID(r.now()), last)
	}

	n, err := q.InsertExpense(ctx, Expense{ID: e.ID, Description: e.Description})
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	if n == 0 {
		return core.Expense{}, fmt.Errorf("add expense %d: %w", e.ID, ledger.ErrDuplicateExpense)
	}

	for i, p := range e.Payments {
		err := q.InsertPayment(ctx, Payment{
			ExpenseID: e.ID,
			Position:  int64(i),
			Payer:     p.Payer,
			Amount:    p.Amount,
		})
		if err != nil {
			return core.Expense{}, fmt.Errorf("insert payment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"description", e.Description,
		"payments", len(e.Payments))

	e.Payments = append([]core.Payment(nil), e.Payments...)
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.queries.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	payments, err := r.queries.ListPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	byExpense := make(map[int64][]core.Payment, len(rows))
	for _, p := range payments {
		byExpense[p.ExpenseID] = append(byExpense[p.ExpenseID], core.Payment{Payer: p.Payer, Amount: p.Amount})
	}

	expenses := make([]core.Expense, len(rows))
	for i, row := range rows {
		expenses[i] = core.Expense{
			ID:          row.ID,
			Description: row.Description,
			Payments:    byExpense[row.ID],
		}
	}
	return expenses, nil
}

func (r *SQLiteRepository) Version(ctx context.Context) (int64, error) {
	v, err := r.queries.LedgerVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger version: %w", err)
	}
	return v, nil
}
