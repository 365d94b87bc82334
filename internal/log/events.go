package log

import "context"

// StructuredLogger logs ledger events with a consistent field set.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogParticipantAdded(ctx context.Context, name string) {
	f := NewFields().WithParticipant(name).WithOperation(OpCreate).WithComponent(ComponentLedger)
	sl.logger.InfoContext(ctx, "Participant added", f.ToSlice()...)
}

func (sl *StructuredLogger) LogExpenseCreated(ctx context.Context, id int64, desc string, total float64, payers []string) {
	f := NewFields().WithExpense(id, desc, total, payers).WithOperation(OpCreate).WithComponent(ComponentLedger)
	sl.logger.InfoContext(ctx, "Expense recorded", f.ToSlice()...)
}

// LogError logs err under component and operation. fields may be nil.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	f := fields.WithError(err).WithOperation(operation).WithComponent(component)
	sl.logger.ErrorContext(ctx, msg, f.ToSlice()...)
}
