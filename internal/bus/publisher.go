package bus

import (
	"context"
	"time"

	"github.com/da-stoaz/carrera-dash/internal/platform/retry"
)

// raceStartPayload is the literal control payload the sensor bridge expects.
const raceStartPayload = "GO"

var publishPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 50 * time.Millisecond,
}

// Publisher emits control messages on the bus.
type Publisher struct {
	client *Client
	topic  string
}

// NewPublisher creates a publisher for the race-start control topic.
func NewPublisher(client *Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// PublishRaceStart publishes the "GO" control message, sent exactly once per
// race at lights-out. Transient publish failures are retried briefly; the
// start signal is time-critical, so the policy stays short.
func (p *Publisher) PublishRaceStart(ctx context.Context) error {
	return retry.DoVoid(ctx, publishPolicy, transientOnly, func() error {
		return p.client.rdb.Publish(ctx, p.topic, raceStartPayload).Err()
	})
}

// Publish errors against a live broker are transient by nature; context
// cancellation aborts the retry loop on its own.
func transientOnly(error) retry.Action { return retry.Retry }
