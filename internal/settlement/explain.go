package settlement

import "tripsplit/internal/core"

// Attribution links a settlement edge back to one expense.
type Attribution struct {
	ExpenseID   int64
	Description string
	Share       float64
}

// Explain lists the expenses that justify debtor owing creditor: those paid
// (at least in part) by creditor where debtor paid nothing. Share is the
// debtor's nominal even share of each expense.
//
// This is a display aid. Netting may route a debtor's share to a different
// creditor, so the shares need not add up to the matrix amount.
func Explain(debtor, creditor string, participants []string, expenses []core.Expense) []Attribution {
	if len(participants) == 0 {
		return nil
	}
	n := float64(len(participants))
	var out []Attribution
	for _, e := range expenses {
		if !e.HasPayer(creditor) || e.HasPayer(debtor) {
			continue
		}
		out = append(out, Attribution{
			ExpenseID:   e.ID,
			Description: e.Description,
			Share:       e.Total() / n,
		})
	}
	return out
}
