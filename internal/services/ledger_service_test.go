package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsplit/internal/amqp"
	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/ledger/memory"
	"tripsplit/internal/metrics"
)

type recordedEvent struct{ kind, ref string }

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) PublishLedgerEvent(_ context.Context, kind, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, recordedEvent{kind, ref})
	return nil
}

// countingStore counts list calls to observe report caching.
type countingStore struct {
	*memory.Store
	mu    sync.Mutex
	lists int
}

func (c *countingStore) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.Store.ListExpenses(ctx)
}

type brokenStore struct{ ledger.Store }

func (brokenStore) ListParticipants(context.Context) ([]string, error) {
	return nil, errors.New("disk on fire")
}

func (brokenStore) Version(context.Context) (int64, error) { return 1, nil }

func newService(t *testing.T, people ...string) (*LedgerService, *fakePublisher, *countingStore) {
	t.Helper()
	store := &countingStore{Store: memory.New(people)}
	pub := &fakePublisher{}
	return NewLedgerService(store, Options{GlobalNetting: true, Publisher: pub}), pub, store
}

func expense(desc string, payments ...core.Payment) core.Expense {
	return core.Expense{Description: desc, Payments: payments}
}

func pay(payer string, amount float64) core.Payment {
	return core.Payment{Payer: payer, Amount: amount}
}

func TestLedgerService_AddParticipant(t *testing.T) {
	ctx := context.Background()
	svc, pub, _ := newService(t)

	name, err := svc.AddParticipant(ctx, "  Sara ")
	require.NoError(t, err)
	assert.Equal(t, "Sara", name)

	_, err = svc.AddParticipant(ctx, "Sara")
	assert.ErrorIs(t, err, ledger.ErrDuplicateParticipant)

	_, err = svc.AddParticipant(ctx, "   ")
	assert.ErrorIs(t, err, core.ErrEmptyName)

	people, err := svc.Participants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sara"}, people)
	assert.Equal(t, []recordedEvent{{amqp.EventParticipantAdded, "Sara"}}, pub.events)
}

func TestLedgerService_AddExpense(t *testing.T) {
	ctx := context.Background()
	svc, pub, _ := newService(t, "A", "B")

	saved, err := svc.AddExpense(ctx, expense(" Hotel ", pay(" A", 90)))
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "Hotel", saved.Description)
	assert.Equal(t, "A", saved.Payments[0].Payer)
	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.EventExpenseAdded, pub.events[0].kind)

	_, err = svc.AddExpense(ctx, expense("Fuel", pay("Zed", 10)))
	assert.ErrorIs(t, err, ErrUnknownPayer)

	_, err = svc.AddExpense(ctx, expense("", pay("A", 10)))
	assert.ErrorIs(t, err, core.ErrEmptyDescription)

	_, err = svc.AddExpense(ctx, expense("Fuel"))
	assert.ErrorIs(t, err, core.ErrNoPayments)

	_, err = svc.AddExpense(ctx, core.Expense{ID: saved.ID, Description: "Again", Payments: []core.Payment{pay("B", 1)}})
	assert.ErrorIs(t, err, ledger.ErrDuplicateExpense)

	expenses, err := svc.Expenses(ctx)
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
	assert.Len(t, pub.events, 1, "rejected writes publish nothing")
}

func TestLedgerService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewLedgerService(memory.New(nil), Options{Publisher: pub, Metrics: m})

	_, err := svc.AddParticipant(ctx, "A")
	require.NoError(t, err)
	_, err = svc.AddExpense(ctx, expense("Fuel", pay("A", 10)))
	require.NoError(t, err)

	// no publisher at all is fine too
	svc = NewLedgerService(memory.New(nil), Options{})
	_, err = svc.AddParticipant(ctx, "A")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "tripsplit_event_publish_failures_total 2")
}

func TestLedgerService_Report(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newService(t, "A", "B", "C")

	_, err := svc.AddExpense(ctx, expense("Hotel", pay("A", 90)))
	require.NoError(t, err)
	_, err = svc.AddExpense(ctx, expense("Fuel", pay("B", 30)))
	require.NoError(t, err)

	netted, err := svc.Report(ctx, true)
	require.NoError(t, err)
	assert.InDelta(t, 120, netted.Total, 1e-9)
	require.Len(t, netted.Edges, 3)
	assert.Equal(t, "B", netted.Edges[0].Debtor)
	assert.InDelta(t, 20, netted.Edges[0].Amount, 1e-9)

	raw, err := svc.Report(ctx, false)
	require.NoError(t, err)
	assert.InDelta(t, 10, raw.Matrix.Amount("A", "B"), 1e-9)

	before := store.lists
	_, err = svc.Report(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, before, store.lists, "unchanged ledger is served from cache")

	_, err = svc.AddParticipant(ctx, "D")
	require.NoError(t, err)
	after, err := svc.Report(ctx, true)
	require.NoError(t, err)
	assert.Greater(t, store.lists, before)
	assert.Len(t, after.Participants, 4)
}

func TestLedgerService_Snapshot(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, "B", "A")
	_, err := svc.AddExpense(ctx, expense("Tea", pay("A", 4)))
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, snap.Participants)
	assert.Len(t, snap.Expenses, 1)
	assert.Equal(t, int64(1), snap.Version)

	_, err = NewLedgerService(brokenStore{memory.New(nil)}, Options{}).Snapshot(ctx)
	assert.Error(t, err)
}

func TestLedgerService_Explain(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, "A", "B", "C")
	_, err := svc.AddExpense(ctx, expense("Hotel", pay("A", 90)))
	require.NoError(t, err)
	_, err = svc.AddExpense(ctx, expense("Dinner", pay("A", 30), pay("B", 30)))
	require.NoError(t, err)

	ex, err := svc.Explain(ctx, "C", "A", true)
	require.NoError(t, err)
	assert.InDelta(t, 40, ex.Amount, 1e-9)
	require.Len(t, ex.Expenses, 2)
	assert.Equal(t, "Hotel", ex.Expenses[0].Description)
	assert.InDelta(t, 20, ex.Expenses[1].Share, 1e-9)

	// no debt, still a well-formed answer
	ex, err = svc.Explain(ctx, "A", "C", true)
	require.NoError(t, err)
	assert.Zero(t, ex.Amount)
	assert.Empty(t, ex.Expenses)

	_, err = svc.Explain(ctx, "A", "Nobody", true)
	assert.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestLedgerService_StoreErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewLedgerService(brokenStore{memory.New(nil)}, Options{})

	_, err := svc.AddExpense(ctx, expense("Tea", pay("A", 4)))
	assert.ErrorContains(t, err, "disk on fire")

	_, err = svc.Report(ctx, true)
	assert.Error(t, err)
}
