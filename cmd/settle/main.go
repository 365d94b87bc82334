// Command settle computes balances for a ledger snapshot file without a
// server or database.
//
//	settle -file trip.json
//	settle -net=false -currency EUR < trip.json
//
// The snapshot has the same shape as the API payloads:
//
//	{"participants":["A","B"],"expenses":[{"id":1,"desc":"Hotel","payments":[{"payer":"A","amount":90}]}]}
//
// Amounts may also be given as decimal strings ("12,50").
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
)

type amount float64

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		v, err := core.ParseAmount(s)
		if err != nil {
			return fmt.Errorf("amount %q: %w", s, err)
		}
		*a = amount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = amount(v)
	return nil
}

type snapshot struct {
	Participants []string `json:"participants"`
	Expenses     []struct {
		ID       int64  `json:"id"`
		Desc     string `json:"desc"`
		Payments []struct {
			Payer  string `json:"payer"`
			Amount amount `json:"amount"`
		} `json:"payments"`
	} `json:"expenses"`
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "settle:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	file := fs.String("file", "-", "snapshot file, - for stdin")
	net := fs.Bool("net", true, "apply global netting between each pair")
	currency := fs.String("currency", core.DefaultCurrency, "display currency code")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	participants, expenses, err := readSnapshot(in)
	if err != nil {
		return err
	}
	r := settlement.BuildReport(participants, expenses, settlement.ReportOptions{Net: *net})

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return printReport(stdout, r, *currency)
}

func readSnapshot(in io.Reader) ([]string, []core.Expense, error) {
	var snap snapshot
	if err := json.NewDecoder(in).Decode(&snap); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}

	seen := make(map[string]bool, len(snap.Participants))
	participants := make([]string, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		p = strings.TrimSpace(p)
		if err := core.ValidateParticipantName(p); err != nil {
			return nil, nil, fmt.Errorf("participant %q: %w", p, err)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		participants = append(participants, p)
	}

	expenses := make([]core.Expense, 0, len(snap.Expenses))
	for i, raw := range snap.Expenses {
		e := core.Expense{ID: raw.ID, Description: strings.TrimSpace(raw.Desc)}
		if e.ID == 0 {
			e.ID = int64(i + 1)
		}
		for _, p := range raw.Payments {
			e.Payments = append(e.Payments, core.Payment{Payer: strings.TrimSpace(p.Payer), Amount: float64(p.Amount)})
		}
		if err := e.Validate(); err != nil {
			return nil, nil, fmt.Errorf("expense %d: %w", i+1, err)
		}
		expenses = append(expenses, e)
	}
	return participants, expenses, nil
}

func printReport(w io.Writer, r settlement.Report, currency string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %s\n", core.FormatAmount(r.Total, currency))
	if len(r.Edges) == 0 {
		b.WriteString("No balances to show\n")
	}
	for _, e := range r.Edges {
		fmt.Fprintf(&b, "%s owes %s %s\n", e.Debtor, e.Creditor, core.FormatAmount(e.Amount, currency))
		for _, a := range e.Expenses {
			fmt.Fprintf(&b, "  - %s (#%d): %s\n", a.Description, a.ExpenseID, core.FormatAmount(a.Share, currency))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
