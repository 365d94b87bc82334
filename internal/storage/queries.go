package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Expense struct {
	ID          int64
	Description string
}

type Payment struct {
	ExpenseID int64
	Position  int64
	Payer     string
	Amount    float64
}

const insertParticipant = `
INSERT INTO participants (name) VALUES (?)
ON CONFLICT(name) DO NOTHING
`

// InsertParticipant returns the number of inserted rows (0 on conflict).
func (q *Queries) InsertParticipant(ctx context.Context, name string) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertParticipant, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listParticipants = `
SELECT name FROM participants ORDER BY name
`

func (q *Queries) ListParticipants(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listParticipants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const maxExpenseID = `
SELECT COALESCE(MAX(id), 0) FROM expenses
`

func (q *Queries) MaxExpenseID(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, maxExpenseID)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertExpense = `
INSERT INTO expenses (id, description) VALUES (?, ?)
ON CONFLICT(id) DO NOTHING
`

// InsertExpense returns the number of inserted rows (0 on conflict).
func (q *Queries) InsertExpense(ctx context.Context, arg Expense) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertExpense, arg.ID, arg.Description)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertPayment = `
INSERT INTO payments (expense_id, position, payer, amount) VALUES (?, ?, ?, ?)
`

func (q *Queries) InsertPayment(ctx context.Context, arg Payment) error {
	_, err := q.db.ExecContext(ctx, insertPayment, arg.ExpenseID, arg.Position, arg.Payer, arg.Amount)
	return err
}

const listExpenses = `
SELECT id, description FROM expenses ORDER BY id
`

func (q *Queries) ListExpenses(ctx context.Context) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		var i Expense
		if err := rows.Scan(&i.ID, &i.Description); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPayments = `
SELECT expense_id, position, payer, amount FROM payments ORDER BY expense_id, position
`

func (q *Queries) ListPayments(ctx context.Context) ([]Payment, error) {
	rows, err := q.db.QueryContext(ctx, listPayments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Payment
	for rows.Next() {
		var i Payment
		if err := rows.Scan(&i.ExpenseID, &i.Position, &i.Payer, &i.Amount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const ledgerVersion = `
SELECT (SELECT COUNT(*) FROM participants) + (SELECT COUNT(*) FROM expenses)
`

func (q *Queries) LedgerVersion(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, ledgerVersion)
	var v int64
	err := row.Scan(&v)
	return v, err
}
