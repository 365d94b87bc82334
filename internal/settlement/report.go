package settlement

import "tripsplit/internal/core"

// ReportOptions tunes BuildReport.
type ReportOptions struct {
	// Net applies the pairwise global netting pass before edges are listed.
	Net bool
}

// ExplainedEdge is an Edge together with its contributing expenses.
type ExplainedEdge struct {
	Edge
	Expenses []Attribution
}

// Report is the full balance view for one snapshot.
type Report struct {
	Participants []string
	Expenses     []core.Expense
	Total        float64
	Matrix       Matrix
	Edges        []ExplainedEdge
}

// BuildReport computes balances, optionally nets them and explains each
// remaining edge. No edges are reported when nobody has spent anything.
func BuildReport(participants []string, expenses []core.Expense, opts ReportOptions) Report {
	r := Report{
		Participants: append([]string(nil), participants...),
		Expenses:     append([]core.Expense(nil), expenses...),
	}
	for _, e := range expenses {
		r.Total += e.Total()
	}

	m := ComputeBalances(participants, expenses)
	if opts.Net {
		m = m.Net()
	}
	r.Matrix = m

	if len(participants) == 0 || r.Total <= Epsilon {
		return r
	}
	for _, edge := range m.Edges(participants) {
		r.Edges = append(r.Edges, ExplainedEdge{
			Edge:     edge,
			Expenses: Explain(edge.Debtor, edge.Creditor, participants, expenses),
		})
	}
	return r
}

// Owed returns the total each participant is owed minus what they owe,
// positive for net creditors.
func (r Report) Owed() map[string]float64 {
	out := make(map[string]float64, len(r.Participants))
	for _, p := range r.Participants {
		out[p] = 0
	}
	for _, e := range r.Edges {
		out[e.Creditor] += e.Amount
		out[e.Debtor] -= e.Amount
	}
	return out
}
