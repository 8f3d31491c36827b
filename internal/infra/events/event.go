package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is the interface that all ledger events implement.
type Event interface {
	// EventID returns the unique identifier for this event instance.
	EventID() uuid.UUID

	// EventType returns the type name of the event (e.g., "credits.issued").
	EventType() string

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AccountID returns the ledger account the event concerns.
	AccountID() string
}

// BaseEvent provides the common fields. Embed it in concrete events.
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Account   string    `json:"account_id"`
}

// EventID returns the unique identifier for this event instance.
func (e BaseEvent) EventID() uuid.UUID {
	return e.ID
}

// EventType returns the type name of the event.
func (e BaseEvent) EventType() string {
	return e.Type
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AccountID returns the ledger account the event concerns.
func (e BaseEvent) AccountID() string {
	return e.Account
}

// NewBaseEvent creates a new BaseEvent with the given parameters.
func NewBaseEvent(eventType, accountID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Account:   accountID,
	}
}
