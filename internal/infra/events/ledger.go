package events

// Ledger event types.
const (
	CreditsIssuedType      = "credits.issued"
	DeficitRecordedType    = "billing.deficit_recorded"
	ReservationExpiredType = "reservation.expired"
	AmbiguousQueuedType    = "gateway.ambiguous"
)

// CreditsIssuedEvent is emitted when a credit grant is applied.
type CreditsIssuedEvent struct {
	BaseEvent

	GrantEventID string `json:"grant_event_id"`
	Source       string `json:"source"`
	Credits      int64  `json:"credits"`
	Balance      int64  `json:"balance"`
}

// NewCreditsIssuedEvent creates a new CreditsIssuedEvent.
func NewCreditsIssuedEvent(accountID, grantEventID, source string, credits, balance int64) *CreditsIssuedEvent {
	return &CreditsIssuedEvent{
		BaseEvent:    NewBaseEvent(CreditsIssuedType, accountID),
		GrantEventID: grantEventID,
		Source:       source,
		Credits:      credits,
		Balance:      balance,
	}
}

// DeficitRecordedEvent is emitted when a settlement could not be fully charged.
type DeficitRecordedEvent struct {
	BaseEvent

	ReservationID string `json:"reservation_id"`
	ActualCost    int64  `json:"actual_cost"`
	Shortfall     int64  `json:"shortfall"`
}

// NewDeficitRecordedEvent creates a new DeficitRecordedEvent.
func NewDeficitRecordedEvent(accountID, reservationID string, actualCost, shortfall int64) *DeficitRecordedEvent {
	return &DeficitRecordedEvent{
		BaseEvent:     NewBaseEvent(DeficitRecordedType, accountID),
		ReservationID: reservationID,
		ActualCost:    actualCost,
		Shortfall:     shortfall,
	}
}

// ReservationsExpiredEvent is emitted once per sweep that expired reservations.
type ReservationsExpiredEvent struct {
	BaseEvent

	Count int `json:"count"`
}

// NewReservationsExpiredEvent creates a new ReservationsExpiredEvent.
// Sweeps span accounts, so the account id is empty.
func NewReservationsExpiredEvent(count int) *ReservationsExpiredEvent {
	return &ReservationsExpiredEvent{
		BaseEvent: NewBaseEvent(ReservationExpiredType, ""),
		Count:     count,
	}
}

// AmbiguousQueuedEvent is emitted when a gateway outcome is queued for reconciliation.
type AmbiguousQueuedEvent struct {
	BaseEvent

	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}

// NewAmbiguousQueuedEvent creates a new AmbiguousQueuedEvent.
func NewAmbiguousQueuedEvent(accountID, reservationID, reason string) *AmbiguousQueuedEvent {
	return &AmbiguousQueuedEvent{
		BaseEvent:     NewBaseEvent(AmbiguousQueuedType, accountID),
		ReservationID: reservationID,
		Reason:        reason,
	}
}
