package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quizforge/server/internal/model"
)

// EventTypePaymentCompleted is the only normalized event type that credits.
const EventTypePaymentCompleted = "payment.completed"

// NormalizedEvent is the vendor-neutral payment notification accepted on
// /api/v1/credits/events.
type NormalizedEvent struct {
	EventType string          `json:"event_type"`
	Amount    decimal.Decimal `json:"amount"`
	AccountID string          `json:"account_id"`
	EventID   string          `json:"event_id"`
}

// ParseNormalized decodes a normalized event body.
func ParseNormalized(body []byte) (*model.GrantRequest, error) {
	var evt NormalizedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if evt.EventType != EventTypePaymentCompleted {
		return nil, fmt.Errorf("%w: event type %q", ErrIgnored, evt.EventType)
	}
	if strings.TrimSpace(evt.AccountID) == "" || strings.TrimSpace(evt.EventID) == "" {
		return nil, fmt.Errorf("%w: account_id and event_id are required", ErrInvalidPayload)
	}
	return &model.GrantRequest{
		AccountID: evt.AccountID,
		Amount:    evt.Amount,
		EventID:   evt.EventID,
		Source:    model.GrantSourceAPI,
	}, nil
}
