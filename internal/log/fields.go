package log

// Field names shared by every log record.
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldReferer      = "referer"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldParticipant  = "participant"
	FieldExpenseID    = "expense_id"
	FieldExpenseDesc  = "expense_description"
	FieldExpenseTotal = "expense_total"
	FieldPayers       = "payers"
	FieldEdges        = "edges"
	FieldEventKind    = "event_kind"
)

const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentLedger     = "ledger"
	ComponentSettlement = "settlement"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentRateLimit  = "rate_limit"
	ComponentTrace      = "trace"
)

const (
	OpCreate  = "create"
	OpList    = "list"
	OpCompute = "compute"
	OpExplain = "explain"
)

// LogFields accumulates attributes for a single record.
type LogFields map[string]any

func NewFields() LogFields {
	return LogFields{}
}

func (f LogFields) set(k string, v any) LogFields {
	f[k] = v
	return f
}

func (f LogFields) WithComponent(c string) LogFields   { return f.set(FieldComponent, c) }
func (f LogFields) WithRequestID(id string) LogFields  { return f.set(FieldRequestID, id) }
func (f LogFields) WithClientIP(ip string) LogFields   { return f.set(FieldClientIP, ip) }
func (f LogFields) WithOperation(op string) LogFields  { return f.set(FieldOperation, op) }
func (f LogFields) WithParticipant(n string) LogFields { return f.set(FieldParticipant, n) }

// WithError is a no-op for a nil err.
func (f LogFields) WithError(err error) LogFields {
	if err == nil {
		return f
	}
	return f.set(FieldError, err.Error())
}

func (f LogFields) WithExpense(id int64, desc string, total float64, payers []string) LogFields {
	return f.set(FieldExpenseID, id).
		set(FieldExpenseDesc, desc).
		set(FieldExpenseTotal, total).
		set(FieldPayers, payers)
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	return f.set(FieldMethod, method).
		set(FieldPath, path).
		set(FieldQuery, query).
		set(FieldUserAgent, userAgent).
		set(FieldReferer, referer)
}

func (f LogFields) WithHTTPResponse(status int, durationMs int64, success bool) LogFields {
	return f.set(FieldStatusCode, status).
		set(FieldDuration, durationMs).
		set(FieldSuccess, success)
}

// ToSlice flattens f into slog key/value arguments.
func (f LogFields) ToSlice() []any {
	out := make([]any, 0, 2*len(f))
	for k, v := range f {
		out = append(out, k, v)
	}
	return out
}
