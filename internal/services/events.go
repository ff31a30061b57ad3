package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/simaland/userapi/internal/logutil"
	"github.com/simaland/userapi/types"
)

// EventPublisher is the broker operation used to emit events.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Events emits user and session lifecycle events. Delivery is best effort:
// failures are logged and never change the outcome of the operation.
type Events struct {
	publisher EventPublisher
	channel   string
	now       func() time.Time
}

func NewEvents(publisher EventPublisher, channel string) *Events {
	return &Events{publisher: publisher, channel: channel, now: time.Now}
}

func (e *Events) emit(ctx context.Context, eventType string, userID int, login string) {
	if e == nil || e.publisher == nil {
		return
	}
	log := logutil.GetOrDefault(ctx)

	data, err := json.Marshal(types.Event{
		Type:   eventType,
		UserID: userID,
		Login:  login,
		At:     e.now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to encode event")
		return
	}

	attrs := map[string]string{"type": eventType}
	if _, err := e.publisher.Publish(ctx, e.channel, data, attrs); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
