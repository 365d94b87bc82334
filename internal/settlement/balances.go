// Package settlement computes who owes whom for a group of participants
// sharing expenses evenly.
//
// Every function here is a pure computation over an immutable snapshot of
// participants and expenses: nothing is cached, nothing blocks and the inputs
// are never modified.
package settlement

import (
	"math"

	"tripsplit/internal/core"
)

// Epsilon is the tolerance below which a residual is treated as zero.
const Epsilon = 1e-9

// Matrix maps debtor -> creditor -> amount owed.
// Entries are never negative and the diagonal is always zero.
type Matrix map[string]map[string]float64

// Edge is a single settlement: Debtor owes Creditor Amount.
type Edge struct {
	Debtor   string
	Creditor string
	Amount   float64
}

// NewMatrix returns a zero matrix covering participants x participants.
func NewMatrix(participants []string) Matrix {
	m := make(Matrix, len(participants))
	for _, a := range participants {
		row := make(map[string]float64, len(participants))
		for _, b := range participants {
			row[b] = 0
		}
		m[a] = row
	}
	return m
}

// ComputeBalances splits every expense evenly among all participants and
// nets each expense greedily: creditors are served in participants order,
// and each creditor absorbs debtors in participants order.
//
// Payers that are not in participants still count towards the expense total
// but take no part in the netting. With no participants the result is empty.
func ComputeBalances(participants []string, expenses []core.Expense) Matrix {
	m := NewMatrix(participants)
	if len(participants) == 0 {
		return m
	}
	for _, e := range expenses {
		settleExpense(m, participants, e)
	}
	return m
}

func settleExpense(m Matrix, participants []string, e core.Expense) {
	total := e.Total()
	share := total / float64(len(participants))
	tol := tolerance(total)

	net := make(map[string]float64, len(participants))
	for _, p := range participants {
		net[p] = e.Paid(p) - share
	}

	var creditors, debtors []string
	for _, p := range participants {
		switch {
		case net[p] > tol:
			creditors = append(creditors, p)
		case net[p] < -tol:
			debtors = append(debtors, p)
		}
	}

	for _, cr := range creditors {
		for _, dr := range debtors {
			if net[cr] <= tol {
				break
			}
			if net[dr] >= -tol {
				continue
			}
			amt := math.Min(net[cr], -net[dr])
			m[dr][cr] += amt
			net[cr] -= amt
			net[dr] += amt
		}
	}
}

// tolerance scales Epsilon with the magnitude of the amounts involved so
// that large totals do not leave floating point dust behind.
func tolerance(scale float64) float64 {
	return math.Max(Epsilon, Epsilon*math.Abs(scale))
}

// Amount returns what debtor owes creditor, zero for unknown names.
func (m Matrix) Amount(debtor, creditor string) float64 {
	row, ok := m[debtor]
	if !ok {
		return 0
	}
	return row[creditor]
}

// Net cancels opposing debts between every pair, leaving at most one
// direction non-zero. The receiver is not modified.
func (m Matrix) Net() Matrix {
	out := make(Matrix, len(m))
	for a, row := range m {
		out[a] = make(map[string]float64, len(row))
		for b := range row {
			out[a][b] = 0
		}
	}
	for a, row := range m {
		for b, ab := range row {
			if a == b {
				continue
			}
			ba := m.Amount(b, a)
			diff := ab - ba
			if diff > tolerance(math.Max(ab, ba)) {
				out[a][b] = diff
			}
		}
	}
	return out
}

// Edges lists the non-zero entries in participants order, debtor first.
func (m Matrix) Edges(participants []string) []Edge {
	var edges []Edge
	for _, d := range participants {
		for _, c := range participants {
			if d == c {
				continue
			}
			amt := m.Amount(d, c)
			if amt > Epsilon {
				edges = append(edges, Edge{Debtor: d, Creditor: c, Amount: amt})
			}
		}
	}
	return edges
}

// Sum returns the total of all entries.
func (m Matrix) Sum() float64 {
	var s float64
	for _, row := range m {
		for _, v := range row {
			s += v
		}
	}
	return s
}
