package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ChangeEvent announces that a record in one of the ledger tables was
// written. It carries no record data; consumers read the tables themselves.
type ChangeEvent struct {
	Table     string    `json:"table"`
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeEvent stamps a change with the current time.
func NewChangeEvent(table, id, op string) *ChangeEvent {
	return &ChangeEvent{
		Table:     table,
		ID:        id,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeEventFromJSON decodes a change message. A message without a table is
// rejected.
func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var msg ChangeEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Table == "" {
		return nil, errors.New("change event without table")
	}
	return &msg, nil
}
