package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event kinds published after successful ledger writes.
const (
	EventParticipantAdded = "participant.added"
	EventExpenseAdded     = "expense.added"
)

// LedgerEvent announces that the ledger changed. Ref names the participant
// or the expense id; consumers reload the ledger rather than trusting it.
type LedgerEvent struct {
	MessageID string    `json:"message_id"`
	Kind      string    `json:"kind"`
	Ref       string    `json:"ref"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind, ref string) *LedgerEvent {
	return &LedgerEvent{
		MessageID: uuid.NewString(),
		Kind:      kind,
		Ref:       ref,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and checks a message body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case EventParticipantAdded, EventExpenseAdded:
	default:
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if _, err := uuid.Parse(msg.MessageID); err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", msg.MessageID, err)
	}
	return &msg, nil
}
