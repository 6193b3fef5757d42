package relay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/emberline/catalogstore/internal/storage"
)

// StreamPublisher appends outbox events to a Redis stream.
type StreamPublisher struct {
	client rueidis.Client
	stream string
}

func NewStreamPublisher(client rueidis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

// Publish appends one event to the stream. Consumers dedupe on event_id;
// delivery is at-least-once.
func (p *StreamPublisher) Publish(ctx context.Context, row storage.OutboxRecord) error {
	cmd := p.client.B().Xadd().Key(p.stream).Id("*").
		FieldValue().
		FieldValue("event_id", row.ID).
		FieldValue("event_type", row.EventType).
		FieldValue("aggregate_id", row.AggregateID).
		FieldValue("attempt", strconv.Itoa(row.AttemptCount+1)).
		FieldValue("payload", string(row.PayloadJSON)).
		Build()
	if err := p.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
