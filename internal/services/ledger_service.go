package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tripsplit/internal/amqp"
	"tripsplit/internal/cache"
	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/log"
	"tripsplit/internal/metrics"
	"tripsplit/internal/settlement"
)

var (
	ErrUnknownPayer       = errors.New("payer is not a participant")
	ErrUnknownParticipant = errors.New("unknown participant")
)

const publishTimeout = 10 * time.Second

// EventPublisher announces ledger changes to other processes.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, kind, ref string) error
}

type Options struct {
	// GlobalNetting is the default for reports requested without an explicit choice.
	GlobalNetting bool
	CacheTTL      time.Duration
	CacheSize     int
	Publisher     EventPublisher
	Metrics       *metrics.Metrics
	Logger        *log.Logger
}

// LedgerService validates writes, keeps the report cache coherent and
// publishes change events.
type LedgerService struct {
	store     ledger.Store
	publisher EventPublisher
	reports   *cache.LRUCache[settlement.Report]
	metrics   *metrics.Metrics
	logger    *log.StructuredLogger
	net       bool

	// serializes writes so payer checks see the participant list they are stored against
	writeMu sync.Mutex
}

func NewLedgerService(store ledger.Store, opts Options) *LedgerService {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentLedger, Handler: slog.Default().Handler()})
	}
	return &LedgerService{
		store:     store,
		publisher: opts.Publisher,
		reports:   cache.NewLRUCache[settlement.Report](opts.CacheSize, opts.CacheTTL),
		metrics:   opts.Metrics,
		logger:    log.NewStructuredLogger(logger),
		net:       opts.GlobalNetting,
	}
}

// ReportCache exposes the cache so it can be registered for periodic cleanup.
func (s *LedgerService) ReportCache() cache.Cleaner {
	return s.reports
}

// GlobalNetting reports the default netting choice.
func (s *LedgerService) GlobalNetting() bool {
	return s.net
}

// AddParticipant registers a new group member and returns the stored name.
func (s *LedgerService) AddParticipant(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := core.ValidateParticipantName(name); err != nil {
		return "", err
	}

	s.writeMu.Lock()
	err := s.store.AddParticipant(ctx, name)
	s.writeMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("add participant: %w", err)
	}

	s.reports.Purge()
	s.metrics.LedgerWrite("participant")
	s.logger.LogParticipantAdded(ctx, name)
	s.publish(ctx, amqp.EventParticipantAdded, name)
	return name, nil
}

// AddExpense validates e, rejects payers that are not participants and stores it.
func (s *LedgerService) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Description = strings.TrimSpace(e.Description)
	payments := make([]core.Payment, len(e.Payments))
	for i, p := range e.Payments {
		p.Payer = strings.TrimSpace(p.Payer)
		payments[i] = p
	}
	e.Payments = payments
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	people, err := s.store.ListParticipants(ctx)
	if err != nil {
		return core.Expense{}, fmt.Errorf("list participants: %w", err)
	}
	known := make(map[string]struct{}, len(people))
	for _, p := range people {
		known[p] = struct{}{}
	}
	for _, payer := range e.Payers() {
		if _, ok := known[payer]; !ok {
			return core.Expense{}, fmt.Errorf("%w: %q", ErrUnknownPayer, payer)
		}
	}

	saved, err := s.store.AddExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}

	s.reports.Purge()
	s.metrics.LedgerWrite("expense")
	s.logger.LogExpenseCreated(ctx, saved.ID, saved.Description, saved.Total(), saved.Payers())
	s.publish(ctx, amqp.EventExpenseAdded, strconv.FormatInt(saved.ID, 10))
	return saved, nil
}

func (s *LedgerService) Participants(ctx context.Context) ([]string, error) {
	people, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return people, nil
}

func (s *LedgerService) Expenses(ctx context.Context) ([]core.Expense, error) {
	expenses, err := s.store.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

func (s *LedgerService) Version(ctx context.Context) (int64, error) {
	v, err := s.store.Version(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger version: %w", err)
	}
	return v, nil
}

// Snapshot is a consistent-enough view of the ledger: its contents are at
// least as new as Version.
type Snapshot struct {
	Version      int64
	Participants []string
	Expenses     []core.Expense
}

func (s *LedgerService) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	v, err := s.Version(ctx)
	if err != nil {
		return snap, err
	}
	snap.Version = v

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		people, err := s.Participants(gctx)
		snap.Participants = people
		return err
	})
	g.Go(func() error {
		expenses, err := s.Expenses(gctx)
		snap.Expenses = expenses
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Report returns the settlement report for the current ledger. Reports are
// shared between callers and must not be modified.
func (s *LedgerService) Report(ctx context.Context, net bool) (settlement.Report, error) {
	v, err := s.Version(ctx)
	if err != nil {
		return settlement.Report{}, err
	}
	key := fmt.Sprintf("v%d:net=%t", v, net)
	if r, ok := s.reports.Get(key); ok {
		s.metrics.ReportCacheLookup(true)
		return r, nil
	}
	s.metrics.ReportCacheLookup(false)

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return settlement.Report{}, err
	}

	start := time.Now()
	r := settlement.BuildReport(snap.Participants, snap.Expenses, settlement.ReportOptions{Net: net})
	elapsed := time.Since(start)
	s.metrics.ObserveReport(elapsed, len(r.Edges))
	slog.DebugContext(ctx, "Settlement report computed",
		log.FieldComponent, log.ComponentSettlement,
		"version", snap.Version,
		"participants", len(r.Participants),
		log.FieldEdges, len(r.Edges),
		log.FieldDuration, elapsed.Milliseconds())

	// key by the snapshot version so a write racing the load is not hidden
	s.reports.Set(fmt.Sprintf("v%d:net=%t", snap.Version, net), r)
	return r, nil
}

// Explanation is the amount one participant owes another together with
// the expenses that account for it.
type Explanation struct {
	Debtor   string
	Creditor string
	Amount   float64
	Expenses []settlement.Attribution
}

func (s *LedgerService) Explain(ctx context.Context, debtor, creditor string, net bool) (Explanation, error) {
	r, err := s.Report(ctx, net)
	if err != nil {
		return Explanation{}, err
	}
	for _, name := range []string{debtor, creditor} {
		if _, ok := r.Matrix[name]; !ok {
			return Explanation{}, fmt.Errorf("%w: %q", ErrUnknownParticipant, name)
		}
	}

	return Explanation{
		Debtor:   debtor,
		Creditor: creditor,
		Amount:   r.Matrix.Amount(debtor, creditor),
		Expenses: settlement.Explain(debtor, creditor, r.Participants, r.Expenses),
	}, nil
}

// publish never fails the write that triggered it.
func (s *LedgerService) publish(ctx context.Context, kind, ref string) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping ledger event", log.FieldEventKind, kind)
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishLedgerEvent(pctx, kind, ref); err != nil {
		s.metrics.PublishFailed()
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldComponent, log.ComponentAMQP,
			log.FieldEventKind, kind,
			"ref", ref,
			log.FieldError, err)
	}
}
