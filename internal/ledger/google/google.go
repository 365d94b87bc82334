package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/settlement"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Exporter writes settlement reports to a spreadsheet.
type Exporter struct {
	svc            *gsheet.Service
	spreadsheetID  string
	balancesSheet  string
	breakdownSheet string
	currency       string
}

var _ ledger.ReportExporter = (*Exporter)(nil)

// Options configures the target spreadsheet.
type Options struct {
	SpreadsheetID  string
	BalancesSheet  string
	BreakdownSheet string
	Currency       string
}

// New creates a Sheets exporter. Credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, opts Options) (*Exporter, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newExporter(svc, opts), nil
}

func newExporter(svc *gsheet.Service, opts Options) *Exporter {
	if opts.BalancesSheet == "" {
		opts.BalancesSheet = "Balances"
	}
	if opts.BreakdownSheet == "" {
		opts.BreakdownSheet = "Breakdown"
	}
	if opts.Currency == "" {
		opts.Currency = core.DefaultCurrency
	}
	return &Exporter{
		svc:            svc,
		spreadsheetID:  strings.TrimSpace(opts.SpreadsheetID),
		balancesSheet:  opts.BalancesSheet,
		breakdownSheet: opts.BreakdownSheet,
		currency:       opts.Currency,
	}
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportReport replaces the contents of the balances and breakdown sheets.
func (x *Exporter) ExportReport(ctx context.Context, r settlement.Report) error {
	if x.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := x.replace(ctx, x.balancesSheet, balanceRows(r, x.currency)); err != nil {
		return err
	}
	if err := x.replace(ctx, x.breakdownSheet, breakdownRows(r)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Report exported to Google Sheets",
		"spreadsheet_id", x.spreadsheetID,
		"edges", len(r.Edges))
	return nil
}

func (x *Exporter) replace(ctx context.Context, sheet string, rows [][]any) error {
	all := fmt.Sprintf("%s!A:F", sheet)
	_, err := x.svc.Spreadsheets.Values.Clear(x.spreadsheetID, all, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", all, err)
	}

	rng := fmt.Sprintf("%s!A1", sheet)
	_, err = x.svc.Spreadsheets.Values.Update(x.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}
