package google

import (
	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
)

var (
	balancesHeader  = []any{"Debtor", "Creditor", "Amount", "Display"}
	breakdownHeader = []any{"Debtor", "Creditor", "Expense ID", "Description", "Share"}
)

// balanceRows renders one row per settlement edge. A report without edges
// still yields a single "No balances to show" row below the header.
func balanceRows(r settlement.Report, currency string) [][]any {
	rows := [][]any{balancesHeader}
	if len(r.Edges) == 0 {
		return append(rows, []any{"No balances to show"})
	}
	for _, e := range r.Edges {
		rows = append(rows, []any{
			e.Debtor,
			e.Creditor,
			core.RoundAmount(e.Amount),
			core.FormatAmount(e.Amount, currency),
		})
	}
	return rows
}

func breakdownRows(r settlement.Report) [][]any {
	rows := [][]any{breakdownHeader}
	for _, e := range r.Edges {
		for _, a := range e.Expenses {
			rows = append(rows, []any{
				e.Debtor,
				e.Creditor,
				a.ExpenseID,
				a.Description,
				core.RoundAmount(a.Share),
			})
		}
	}
	return rows
}
