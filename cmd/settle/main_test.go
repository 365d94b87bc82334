package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trip = `{
  "participants": ["A", "B", "C"],
  "expenses": [
    {"id": 1, "desc": "Hotel", "payments": [{"payer": "A", "amount": 90}]},
    {"id": 2, "desc": "Fuel", "payments": [{"payer": "B", "amount": "30,00"}]}
  ]
}`

func TestRun_Text(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(nil, strings.NewReader(trip), &out))

	assert.Equal(t, `Total: PKR 120.00
B owes A PKR 20.00
  - Hotel (#1): PKR 30.00
C owes A PKR 30.00
  - Hotel (#1): PKR 30.00
C owes B PKR 10.00
  - Fuel (#2): PKR 10.00
`, out.String())
}

func TestRun_NoNettingFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trip.json")
	require.NoError(t, os.WriteFile(path, []byte(trip), 0o644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"-file", path, "-net=false", "-currency", "EUR"}, nil, &out))
	assert.Contains(t, out.String(), "A owes B EUR 10.00")
	assert.Contains(t, out.String(), "B owes A EUR 30.00")
}

func TestRun_JSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-json"}, strings.NewReader(trip), &out))

	var decoded struct {
		Total float64
		Edges []struct{ Debtor, Creditor string }
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, 120.0, decoded.Total)
	assert.Len(t, decoded.Edges, 3)
}

func TestRun_EmptyAndInvalid(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(nil, strings.NewReader(`{"participants":["A"],"expenses":[]}`), &out))
	assert.Equal(t, "Total: PKR 0.00\nNo balances to show\n", out.String())

	err := run(nil, strings.NewReader(`{"participants":["A"],"expenses":[{"desc":"x","payments":[{"payer":"A","amount":"-1"}]}]}`), &out)
	assert.ErrorContains(t, err, "invalid amount")

	err = run(nil, strings.NewReader(`{"participants":["A"],"expenses":[{"desc":"","payments":[{"payer":"A","amount":1}]}]}`), &out)
	assert.ErrorContains(t, err, "expense 1")

	err = run([]string{"-file", filepath.Join(t.TempDir(), "missing.json")}, nil, &out)
	assert.Error(t, err)
}
