package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tripsplit/internal/amqp"
	"tripsplit/internal/core"
	"tripsplit/internal/ledger/memory"
	"tripsplit/internal/services"
	"tripsplit/internal/settlement"
)

type fakeExporter struct {
	mu      sync.Mutex
	reports []settlement.Report
	err     error
}

func (f *fakeExporter) ExportReport(_ context.Context, r settlement.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeExporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

func newWorker(t *testing.T) (*ExportWorker, *services.LedgerService, *fakeExporter) {
	t.Helper()
	svc := services.NewLedgerService(memory.New([]string{"A", "B"}), services.Options{GlobalNetting: true})
	exp := &fakeExporter{}
	return NewExportWorker(svc, exp, nil), svc, exp
}

func TestExportWorker_ExportNowSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	w, svc, exp := newWorker(t)

	done, err := w.ExportNow(ctx)
	if err != nil || !done {
		t.Fatalf("first export: done=%v err=%v", done, err)
	}
	done, err = w.ExportNow(ctx)
	if err != nil || done {
		t.Fatalf("unchanged ledger should be skipped: done=%v err=%v", done, err)
	}

	if _, err := svc.AddExpense(ctx, core.Expense{Description: "Fuel", Payments: []core.Payment{{Payer: "A", Amount: 10}}}); err != nil {
		t.Fatal(err)
	}
	done, err = w.ExportNow(ctx)
	if err != nil || !done {
		t.Fatalf("changed ledger should export: done=%v err=%v", done, err)
	}

	if exp.count() != 2 {
		t.Fatalf("expected 2 exports, got %d", exp.count())
	}
	last := exp.reports[1]
	if len(last.Edges) != 1 || last.Edges[0].Debtor != "B" || last.Edges[0].Amount != 5 {
		t.Errorf("unexpected report edges: %+v", last.Edges)
	}
}

func TestExportWorker_HandleEvent(t *testing.T) {
	ctx := context.Background()
	w, _, exp := newWorker(t)
	ev := amqp.NewLedgerEvent(amqp.EventParticipantAdded, "A")

	if err := w.HandleEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if exp.count() != 2 {
		t.Errorf("every event exports, got %d", exp.count())
	}

	// the periodic path sees the version handled by the event
	if done, _ := w.ExportNow(ctx); done {
		t.Error("ExportNow should skip after an event export")
	}
}

func TestExportWorker_ExportFailure(t *testing.T) {
	ctx := context.Background()
	w, _, exp := newWorker(t)
	exp.err = errors.New("quota exceeded")

	if err := w.HandleEvent(ctx, amqp.NewLedgerEvent(amqp.EventExpenseAdded, "1")); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
	if _, err := w.ExportNow(ctx); err == nil {
		t.Fatal("expected export error")
	}

	exp.err = nil
	if done, err := w.ExportNow(ctx); err != nil || !done {
		t.Fatalf("failed exports must be retried: done=%v err=%v", done, err)
	}
}

func TestExportWorker_Run(t *testing.T) {
	w, _, exp := newWorker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Run(ctx, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v, want deadline exceeded", err)
	}
	if exp.count() != 1 {
		t.Errorf("startup export should run once and ticks should skip, got %d", exp.count())
	}
}
