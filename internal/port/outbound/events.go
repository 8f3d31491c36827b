package outbound

import (
	"context"

	"github.com/quizforge/server/internal/infra/events"
)

// EventPublisherPort publishes domain events to in-process subscribers.
type EventPublisherPort interface {
	Publish(ctx context.Context, event events.Event)
}
