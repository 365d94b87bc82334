package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tripsplit/internal/ledger/memory"
	"tripsplit/internal/metrics"
	"tripsplit/internal/services"
)

func newTestServer(t *testing.T, opts Options, people ...string) *Server {
	t.Helper()
	svc := services.NewLedgerService(memory.New(people), services.Options{GlobalNetting: true})
	opts.Caches = append(opts.Caches, svc.ReportCache())
	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status=%d want %d body=%s", rr.Code, want, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, want int, msg string) {
	t.Helper()
	expectStatus(t, rr, want)
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %s", rr.Body.String())
	}
	if !strings.Contains(body.Error, msg) {
		t.Fatalf("error=%q want it to contain %q", body.Error, msg)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		expectStatus(t, do(srv, http.MethodGet, path, ""), http.StatusOK)
	}
	expectStatus(t, do(srv, http.MethodGet, "/nope", ""), http.StatusNotFound)

	down := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("db gone") }})
	expectStatus(t, do(down, http.MethodGet, "/readyz", ""), http.StatusServiceUnavailable)
	expectStatus(t, do(down, http.MethodGet, "/healthz", ""), http.StatusOK)
}

func TestPeopleEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(srv, http.MethodGet, "/api/people", "")
	expectStatus(t, rr, http.StatusOK)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty list body=%s", rr.Body.String())
	}

	rr = do(srv, http.MethodPost, "/api/people", `{"name":" Sara "}`)
	expectStatus(t, rr, http.StatusCreated)
	if strings.TrimSpace(rr.Body.String()) != `{"name":"Sara"}` {
		t.Fatalf("create body=%s", rr.Body.String())
	}
	expectStatus(t, do(srv, http.MethodPost, "/api/people", `{"name":"Ali"}`), http.StatusCreated)

	expectError(t, do(srv, http.MethodPost, "/api/people", `{}`), http.StatusBadRequest, "Name required")
	expectError(t, do(srv, http.MethodPost, "/api/people", `{"name":"   "}`), http.StatusBadRequest, "Name required")
	expectError(t, do(srv, http.MethodPost, "/api/people", `not json`), http.StatusBadRequest, "Invalid JSON body")
	expectError(t, do(srv, http.MethodPost, "/api/people", `{"name":"Sara"}`), http.StatusConflict, "already exists")

	rr = do(srv, http.MethodGet, "/api/people", "")
	var people []string
	if err := json.Unmarshal(rr.Body.Bytes(), &people); err != nil {
		t.Fatal(err)
	}
	if len(people) != 2 || people[0] != "Ali" || people[1] != "Sara" {
		t.Fatalf("people=%v, want sorted [Ali Sara]", people)
	}

	rr = do(srv, http.MethodPut, "/api/people", `{"name":"X"}`)
	expectError(t, rr, http.StatusMethodNotAllowed, "Method PUT Not Allowed")
	if rr.Header().Get("Allow") != "GET, POST" {
		t.Fatalf("Allow=%q", rr.Header().Get("Allow"))
	}
}

func TestExpensesEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{}, "A", "B")

	rr := do(srv, http.MethodPost, "/api/expenses", `{"desc":"Hotel","payments":[{"payer":"A","amount":90}]}`)
	expectStatus(t, rr, http.StatusCreated)
	var hotel expenseJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &hotel); err != nil {
		t.Fatal(err)
	}
	if hotel.ID == 0 || hotel.Desc != "Hotel" || len(hotel.Payments) != 1 {
		t.Fatalf("echo=%+v", hotel)
	}

	expectStatus(t, do(srv, http.MethodPost, "/api/expenses", `{"id":5,"desc":"Tea","payments":[{"payer":"B","amount":4}]}`), http.StatusCreated)

	expectError(t, do(srv, http.MethodPost, "/api/expenses", `{"desc":"Tea"}`), http.StatusBadRequest, "Missing fields")
	expectError(t, do(srv, http.MethodPost, "/api/expenses", `{"desc":"Tea","payments":[{"payer":"A","amount":-1}]}`), http.StatusBadRequest, "Invalid payment entry")
	expectError(t, do(srv, http.MethodPost, "/api/expenses", `{"desc":"Tea","payments":[{"payer":"Zed","amount":1}]}`), http.StatusBadRequest, "not a participant")
	expectError(t, do(srv, http.MethodPost, "/api/expenses", `{"id":5,"desc":"Again","payments":[{"payer":"A","amount":1}]}`), http.StatusConflict, "already exists")
	expectError(t, do(srv, http.MethodPost, "/api/expenses", `{"desc":"`+strings.Repeat("x", 201)+`","payments":[{"payer":"A","amount":1}]}`), http.StatusBadRequest, "too long")

	rr = do(srv, http.MethodGet, "/api/expenses", "")
	expectStatus(t, rr, http.StatusOK)
	var list []expenseJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != 5 || list[1].ID != hotel.ID {
		t.Fatalf("list not sorted by id: %+v", list)
	}

	expectStatus(t, do(srv, http.MethodDelete, "/api/expenses", ""), http.StatusMethodNotAllowed)
}

func TestBalancesEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{Currency: "EUR"}, "A", "B", "C")

	rr := do(srv, http.MethodGet, "/api/balances", "")
	expectStatus(t, rr, http.StatusOK)
	var empty balancesJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &empty); err != nil {
		t.Fatal(err)
	}
	if len(empty.Edges) != 0 || empty.Total != 0 {
		t.Fatalf("no expenses should mean no edges: %+v", empty)
	}

	expectStatus(t, do(srv, http.MethodPost, "/api/expenses", `{"id":1,"desc":"Hotel","payments":[{"payer":"A","amount":90}]}`), http.StatusCreated)

	rr = do(srv, http.MethodGet, "/api/balances", "")
	expectStatus(t, rr, http.StatusOK)
	var got balancesJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Net || got.Total != 90 || got.TotalDisplay != "EUR 90.00" {
		t.Fatalf("summary=%+v", got)
	}
	if len(got.Edges) != 2 {
		t.Fatalf("edges=%+v", got.Edges)
	}
	first := got.Edges[0]
	if first.Debtor != "B" || first.Creditor != "A" || first.Amount != 30 || first.Display != "EUR 30.00" {
		t.Fatalf("first edge=%+v", first)
	}
	if len(first.Expenses) != 1 || first.Expenses[0].Description != "Hotel" || first.Expenses[0].Amount != 30 {
		t.Fatalf("attributions=%+v", first.Expenses)
	}
	if got.Matrix["C"]["A"] != 30 {
		t.Fatalf("matrix=%v", got.Matrix)
	}

	rr = do(srv, http.MethodGet, "/api/balances?net=false", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `"net":false`) {
		t.Fatalf("net=false not honoured: %s", rr.Body.String())
	}
	expectError(t, do(srv, http.MethodGet, "/api/balances?net=maybe", ""), http.StatusBadRequest, "Invalid net parameter")
	expectStatus(t, do(srv, http.MethodPost, "/api/balances", `{}`), http.StatusMethodNotAllowed)
}

func TestExplainEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{}, "A", "B", "C")
	expectStatus(t, do(srv, http.MethodPost, "/api/expenses", `{"id":1,"desc":"Hotel","payments":[{"payer":"A","amount":90}]}`), http.StatusCreated)

	rr := do(srv, http.MethodGet, "/api/balances/explain?debtor=C&creditor=A", "")
	expectStatus(t, rr, http.StatusOK)
	var ex explanationJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &ex); err != nil {
		t.Fatal(err)
	}
	if ex.Amount != 30 || ex.Display != "PKR 30.00" || len(ex.Expenses) != 1 || ex.Expenses[0].ID != 1 {
		t.Fatalf("explanation=%+v", ex)
	}

	expectError(t, do(srv, http.MethodGet, "/api/balances/explain?debtor=C", ""), http.StatusBadRequest, "required")
	expectError(t, do(srv, http.MethodGet, "/api/balances/explain?debtor=C&creditor=Nobody", ""), http.StatusNotFound, "unknown participant")
}

func TestMiddlewareChain(t *testing.T) {
	m := metrics.New()
	srv := newTestServer(t, Options{Metrics: m, RateLimitPerMinute: 1, CORSAllowedOrigins: []string{"https://app.example"}}, "A")

	rr := do(srv, http.MethodGet, "/api/people", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("security headers missing: %v", rr.Header())
	}

	expectStatus(t, do(srv, http.MethodPost, "/api/people", `{"name":"B"}`), http.StatusCreated)
	rr = do(srv, http.MethodPost, "/api/people", `{"name":"C"}`)
	expectError(t, rr, http.StatusTooManyRequests, "Rate limit exceeded")
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	expectStatus(t, do(srv, http.MethodGet, "/api/people", ""), http.StatusOK)

	req := httptest.NewRequest(http.MethodOptions, "/api/people", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	pre := httptest.NewRecorder()
	srv.Handler.ServeHTTP(pre, req)
	if pre.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Errorf("preflight not answered: %d %v", pre.Code, pre.Header())
	}

	expectStatus(t, do(srv, "TRACE", "/api/people", ""), http.StatusMethodNotAllowed)

	rr = do(srv, http.MethodGet, "/metrics", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `tripsplit_http_requests_total{method="POST",route="/api/people",status="201"} 1`) {
		t.Errorf("request metrics missing:\n%s", rr.Body.String())
	}
}

func TestBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, Options{}, "A")
	body := `{"desc":"` + strings.Repeat("x", maxBodyBytes) + `","payments":[]}`
	expectError(t, do(srv, http.MethodPost, "/api/expenses", body), http.StatusRequestEntityTooLarge, "too large")
}
