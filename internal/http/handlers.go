package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/log"
	"tripsplit/internal/services"
	"tripsplit/internal/settlement"
)

// Ledger is the service surface the handlers need.
type Ledger interface {
	AddParticipant(ctx context.Context, name string) (string, error)
	AddExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	Participants(ctx context.Context) ([]string, error)
	Expenses(ctx context.Context) ([]core.Expense, error)
	Report(ctx context.Context, net bool) (settlement.Report, error)
	Explain(ctx context.Context, debtor, creditor string, net bool) (services.Explanation, error)
	GlobalNetting() bool
}

type personJSON struct {
	Name string `json:"name"`
}

type paymentJSON struct {
	Payer  string  `json:"payer"`
	Amount float64 `json:"amount"`
}

type expenseJSON struct {
	ID       int64         `json:"id"`
	Desc     string        `json:"desc"`
	Payments []paymentJSON `json:"payments"`
}

type attributionJSON struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type edgeJSON struct {
	Debtor   string            `json:"debtor"`
	Creditor string            `json:"creditor"`
	Amount   float64           `json:"amount"`
	Display  string            `json:"display"`
	Expenses []attributionJSON `json:"expenses"`
}

type balancesJSON struct {
	Net          bool              `json:"net"`
	Currency     string            `json:"currency"`
	Total        float64           `json:"total"`
	TotalDisplay string            `json:"total_display"`
	Participants []string          `json:"participants"`
	Matrix       settlement.Matrix `json:"matrix"`
	Edges        []edgeJSON        `json:"edges"`
}

type explanationJSON struct {
	Debtor   string            `json:"debtor"`
	Creditor string            `json:"creditor"`
	Amount   float64           `json:"amount"`
	Display  string            `json:"display"`
	Expenses []attributionJSON `json:"expenses"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	out := expenseJSON{ID: e.ID, Desc: e.Description, Payments: make([]paymentJSON, len(e.Payments))}
	for i, p := range e.Payments {
		out.Payments[i] = paymentJSON{Payer: p.Payer, Amount: p.Amount}
	}
	return out
}

func toAttributionsJSON(in []settlement.Attribution) []attributionJSON {
	out := make([]attributionJSON, len(in))
	for i, a := range in {
		out[i] = attributionJSON{ID: a.ExpenseID, Description: a.Description, Amount: core.RoundAmount(a.Share)}
	}
	return out
}

func (s *Server) toBalancesJSON(r settlement.Report, net bool) balancesJSON {
	out := balancesJSON{
		Net:          net,
		Currency:     s.currency,
		Total:        core.RoundAmount(r.Total),
		TotalDisplay: core.FormatAmount(r.Total, s.currency),
		Participants: r.Participants,
		Matrix:       r.Matrix,
		Edges:        make([]edgeJSON, len(r.Edges)),
	}
	if out.Participants == nil {
		out.Participants = []string{}
	}
	for i, e := range r.Edges {
		out.Edges[i] = edgeJSON{
			Debtor:   e.Debtor,
			Creditor: e.Creditor,
			Amount:   core.RoundAmount(e.Amount),
			Display:  core.FormatAmount(e.Amount, s.currency),
			Expenses: toAttributionsJSON(e.Expenses),
		}
	}
	return out
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		people, err := s.ledger.Participants(r.Context())
		if err != nil {
			s.writeError(w, r, err, log.OpList)
			return
		}
		if people == nil {
			people = []string{}
		}
		NewJSONResponse().JSON(people).Write(w)

	case http.MethodPost:
		fields, err := readJSONObject(w, r)
		if err != nil {
			writeParseError(w, err)
			return
		}
		name, err := s.ledger.AddParticipant(r.Context(), ParsePersonRequest(fields))
		if err != nil {
			s.writeError(w, r, err, log.OpCreate)
			return
		}
		NewJSONResponse().Status(http.StatusCreated).JSON(personJSON{Name: name}).Write(w)

	default:
		MethodNotAllowedError(r.Method, http.MethodGet, http.MethodPost).Write(w)
	}
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		expenses, err := s.ledger.Expenses(r.Context())
		if err != nil {
			s.writeError(w, r, err, log.OpList)
			return
		}
		out := make([]expenseJSON, len(expenses))
		for i, e := range expenses {
			out[i] = toExpenseJSON(e)
		}
		NewJSONResponse().JSON(out).Write(w)

	case http.MethodPost:
		fields, err := readJSONObject(w, r)
		if err != nil {
			writeParseError(w, err)
			return
		}
		e, err := ParseExpenseRequest(fields)
		if err != nil {
			writeParseError(w, err)
			return
		}
		saved, err := s.ledger.AddExpense(r.Context(), e)
		if err != nil {
			s.writeError(w, r, err, log.OpCreate)
			return
		}
		NewJSONResponse().Status(http.StatusCreated).JSON(toExpenseJSON(saved)).Write(w)

	default:
		MethodNotAllowedError(r.Method, http.MethodGet, http.MethodPost).Write(w)
	}
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowedError(r.Method, http.MethodGet).Write(w)
		return
	}
	net, err := ParseNetParam(r, s.ledger.GlobalNetting())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	report, err := s.ledger.Report(r.Context(), net)
	if err != nil {
		s.writeError(w, r, err, log.OpCompute)
		return
	}
	NewJSONResponse().JSON(s.toBalancesJSON(report, net)).Write(w)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowedError(r.Method, http.MethodGet).Write(w)
		return
	}
	q := r.URL.Query()
	debtor := strings.TrimSpace(q.Get("debtor"))
	creditor := strings.TrimSpace(q.Get("creditor"))
	if debtor == "" || creditor == "" {
		BadRequestError("debtor and creditor are required").Write(w)
		return
	}
	net, err := ParseNetParam(r, s.ledger.GlobalNetting())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ex, err := s.ledger.Explain(r.Context(), debtor, creditor, net)
	if err != nil {
		s.writeError(w, r, err, log.OpExplain)
		return
	}
	NewJSONResponse().JSON(explanationJSON{
		Debtor:   ex.Debtor,
		Creditor: ex.Creditor,
		Amount:   core.RoundAmount(ex.Amount),
		Display:  core.FormatAmount(ex.Amount, s.currency),
		Expenses: toAttributionsJSON(ex.Expenses),
	}).Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewJSONResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

func writeParseError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		ErrorResponse(http.StatusRequestEntityTooLarge, err.Error()).Write(w)
		return
	}
	BadRequestError(err.Error()).Write(w)
}

// writeError maps service and domain errors to status codes. Anything
// unrecognised is logged and reported as a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, core.ErrEmptyName):
		BadRequestError("Name required").Write(w)
	case errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrDescriptionLong),
		errors.Is(err, core.ErrNoPayments),
		errors.Is(err, core.ErrMissingPayer),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, services.ErrUnknownPayer):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, services.ErrUnknownParticipant):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, ledger.ErrDuplicateParticipant):
		ConflictError("Participant already exists").Write(w)
	case errors.Is(err, ledger.ErrDuplicateExpense):
		ConflictError("Expense id already exists").Write(w)
	case errors.Is(err, context.Canceled):
		slog.InfoContext(r.Context(), "Request cancelled by client", "path", r.URL.Path)
	default:
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")))
		InternalServerError("Internal server error").Write(w)
	}
}
