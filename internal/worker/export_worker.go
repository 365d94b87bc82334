package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tripsplit/internal/amqp"
	"tripsplit/internal/ledger"
	"tripsplit/internal/metrics"
	"tripsplit/internal/settlement"
)

// ReportSource is the part of the ledger service the worker reads from.
type ReportSource interface {
	Report(ctx context.Context, net bool) (settlement.Report, error)
	Version(ctx context.Context) (int64, error)
	GlobalNetting() bool
}

// ExportWorker pushes settlement reports to an exporter when the ledger changes.
type ExportWorker struct {
	source   ReportSource
	exporter ledger.ReportExporter
	metrics  *metrics.Metrics

	// serializes exports and guards the last exported version
	mu           sync.Mutex
	lastVersion  int64
	haveExported bool
}

func NewExportWorker(source ReportSource, exporter ledger.ReportExporter, m *metrics.Metrics) *ExportWorker {
	return &ExportWorker{
		source:   source,
		exporter: exporter,
		metrics:  m,
	}
}

// HandleEvent processes a single ledger event from AMQP.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"message_id", ev.MessageID,
		"kind", ev.Kind,
		"ref", ev.Ref)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.export(ctx); err != nil {
		return fmt.Errorf("export after %s: %w", ev.Kind, err)
	}
	return nil
}

// ExportNow exports the current report unless the ledger has not changed
// since the last successful export. It reports whether an export happened.
// This is the backup path in case AMQP messages are lost.
func (w *ExportWorker) ExportNow(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	v, err := w.source.Version(ctx)
	if err != nil {
		return false, fmt.Errorf("ledger version: %w", err)
	}
	if w.haveExported && v == w.lastVersion {
		slog.DebugContext(ctx, "Ledger unchanged, skipping export", "version", v)
		return false, nil
	}
	if err := w.export(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// export must be called with w.mu held.
func (w *ExportWorker) export(ctx context.Context) error {
	v, err := w.source.Version(ctx)
	if err != nil {
		return fmt.Errorf("ledger version: %w", err)
	}
	r, err := w.source.Report(ctx, w.source.GlobalNetting())
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	err = w.exporter.ExportReport(ctx, r)
	w.metrics.Export(err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to export report", "version", v, "error", err)
		return fmt.Errorf("export report: %w", err)
	}

	w.lastVersion = v
	w.haveExported = true
	slog.InfoContext(ctx, "Report exported", "version", v, "edges", len(r.Edges))
	return nil
}

// Run calls ExportNow at startup and then every interval until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.ExportNow(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup export failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping periodic export", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ExportNow(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		}
	}
}
