package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Store keeps the ledger in process memory. Contents are lost on restart.
type Store struct {
	mu       sync.Mutex
	people   []string
	expenses []core.Expense
	version  int64
	now      func() time.Time
}

func New(people []string) *Store {
	return &Store{people: dedupe(people), now: time.Now}
}

// NewFromFiles seeds participants from base/seed_people.txt when present.
func NewFromFiles(base string) *Store {
	return New(readLines(filepath.Join(base, "seed_people.txt")))
}

func (s *Store) AddParticipant(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.people {
		if p == name {
			return fmt.Errorf("add %q: %w", name, ledger.ErrDuplicateParticipant)
		}
	}
	s.people = append(s.people, name)
	s.version++
	return nil
}

func (s *Store) ListParticipants(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.people...)
	sort.Strings(out)
	return out, nil
}

func (s *Store) AddExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last int64
	for _, x := range s.expenses {
		if e.ID != 0 && x.ID == e.ID {
			return core.Expense{}, fmt.Errorf("add expense %d: %w", e.ID, ledger.ErrDuplicateExpense)
		}
		last = max(last, x.ID)
	}
	if e.ID == 0 {
		e.ID = ledger.NextExpenseID(core.NewExpenseID(s.now()), last)
	}
	e.Payments = append([]core.Payment(nil), e.Payments...)

	// keep the slice ordered by id
	i := sort.Search(len(s.expenses), func(i int) bool { return s.expenses[i].ID > e.ID })
	s.expenses = append(s.expenses, core.Expense{})
	copy(s.expenses[i+1:], s.expenses[i:])
	s.expenses[i] = e
	s.version++
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, len(s.expenses))
	for i, e := range s.expenses {
		e.Payments = append([]core.Payment(nil), e.Payments...)
		out[i] = e
	}
	return out, nil
}

func (s *Store) Version(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
