package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 200
)

type (
	// Participant is identified by its display name (exact string equality).
	Participant = string

	Payment struct {
		Payer  string
		Amount float64
	}

	Expense struct {
		ID          int64 // Ordering key, Unix milliseconds when generated
		Description string
		Payments    []Payment
	}
)

var (
	ErrEmptyName        = errors.New("empty participant name")
	ErrNameTooLong      = errors.New("participant name too long (max 100 characters)")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingPayer     = errors.New("missing payer")
	ErrEmptyDescription = errors.New("empty description")
	ErrNoPayments       = errors.New("expense has no payments")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
)

// ValidateParticipantName checks a name before it is added to the group.
func ValidateParticipantName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.Payer) == "" {
		return ErrMissingPayer
	}
	if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) || p.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > maxDescriptionLength {
		return ErrDescriptionLong
	}
	if len(e.Payments) == 0 {
		return ErrNoPayments
	}
	for _, p := range e.Payments {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Total returns the sum of all payment amounts.
func (e Expense) Total() float64 {
	var total float64
	for _, p := range e.Payments {
		total += p.Amount
	}
	return total
}

// Paid returns how much payer contributed to this expense.
// A payer listed more than once has the amounts summed.
func (e Expense) Paid(payer string) float64 {
	var paid float64
	for _, p := range e.Payments {
		if p.Payer == payer {
			paid += p.Amount
		}
	}
	return paid
}

// HasPayer reports whether name appears among the payers.
func (e Expense) HasPayer(name string) bool {
	for _, p := range e.Payments {
		if p.Payer == name {
			return true
		}
	}
	return false
}

// Payers returns the distinct payer names in first-seen order.
func (e Expense) Payers() []string {
	seen := make(map[string]struct{}, len(e.Payments))
	out := make([]string, 0, len(e.Payments))
	for _, p := range e.Payments {
		if _, ok := seen[p.Payer]; ok {
			continue
		}
		seen[p.Payer] = struct{}{}
		out = append(out, p.Payer)
	}
	return out
}

// NewExpenseID returns an orderable identifier derived from the creation time.
func NewExpenseID(now time.Time) int64 {
	return now.UnixMilli()
}
