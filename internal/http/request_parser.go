// Package http provides the JSON API server and its handlers.
//
// This file decodes and validates request bodies and query parameters.
// Messages returned here are sent to clients verbatim.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"tripsplit/internal/core"
)

const maxBodyBytes = 64 << 10

var (
	errMissingFields  = errors.New("Missing fields")
	errInvalidPayment = errors.New("Invalid payment entry")
	errInvalidID      = errors.New("Invalid expense id")
	errInvalidJSON    = errors.New("Invalid JSON body")
	errBodyTooLarge   = errors.New("Request body too large")
)

// readJSONObject reads a size-limited body and decodes it into a map of raw
// fields. Unknown fields are kept and ignored by the callers.
func readJSONObject(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, errInvalidJSON
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, errInvalidJSON
	}
	return fields, nil
}

// stringField returns the trimmed string stored under key. Missing keys,
// null and non-string values yield "".
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return sanitizeInput(s)
}

// ParsePersonRequest extracts the participant name from a POST body.
func ParsePersonRequest(fields map[string]json.RawMessage) string {
	return stringField(fields, "name")
}

// ParseExpenseRequest validates a POST /api/expenses body. An absent or
// null id yields 0 so the store assigns one.
func ParseExpenseRequest(fields map[string]json.RawMessage) (core.Expense, error) {
	desc := stringField(fields, "desc")

	var entries []json.RawMessage
	if raw, ok := fields["payments"]; ok {
		if err := json.Unmarshal(raw, &entries); err != nil {
			entries = nil
		}
	}
	if desc == "" || len(entries) == 0 {
		return core.Expense{}, errMissingFields
	}

	payments := make([]core.Payment, 0, len(entries))
	for _, entry := range entries {
		p, err := parsePayment(entry)
		if err != nil {
			return core.Expense{}, err
		}
		payments = append(payments, p)
	}

	id, err := parseExpenseID(fields["id"])
	if err != nil {
		return core.Expense{}, err
	}

	return core.Expense{ID: id, Description: desc, Payments: payments}, nil
}

func parsePayment(raw json.RawMessage) (core.Payment, error) {
	var entry map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil || entry == nil {
		return core.Payment{}, errInvalidPayment
	}
	payer := stringField(entry, "payer")
	if payer == "" {
		return core.Payment{}, errInvalidPayment
	}

	// amounts must be JSON numbers; "12.5" as a string is rejected
	var amount float64
	amountRaw := bytes.TrimSpace(entry["amount"])
	if len(amountRaw) == 0 || amountRaw[0] == '"' {
		return core.Payment{}, errInvalidPayment
	}
	if err := json.Unmarshal(amountRaw, &amount); err != nil {
		return core.Payment{}, errInvalidPayment
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return core.Payment{}, errInvalidPayment
	}
	return core.Payment{Payer: payer, Amount: amount}, nil
}

func parseExpenseID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errInvalidID
	}
	id, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// ParseNetParam reads the optional net query flag, falling back to def.
func ParseNetParam(r *http.Request, def bool) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get("net"))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("Invalid net parameter %q", v)
	}
	return b, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 {
			return -1
		}
		return r
	}, s)
}
