package bus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/da-stoaz/carrera-dash/internal/metrics"
	"github.com/da-stoaz/carrera-dash/internal/platform/correlation"
	"github.com/da-stoaz/carrera-dash/internal/race"
)

// ErrSubscriptionLost is returned by Run when the bus delivery channel closes
// unexpectedly, i.e. sensor input is gone until the process owner restores it.
var ErrSubscriptionLost = errors.New("bus subscription lost")

// FinishSink receives translated finish-line events and the sensor-loss
// signal. Implemented by the coordinator.
type FinishSink interface {
	HandleFinish(ctx context.Context, track race.Track, observedAt time.Time)
	SensorsLost(ctx context.Context)
}

// Listener consumes the two finish topics and dispatches finish events.
// Payloads are opaque; only the topic name identifies the track.
type Listener struct {
	client *Client
	clock  clockwork.Clock
	topics map[string]race.Track
	sink   FinishSink
}

// NewListener creates a listener for the given finish topic names.
func NewListener(client *Client, clock clockwork.Clock, track1Topic, track2Topic string, sink FinishSink) *Listener {
	return &Listener{
		client: client,
		clock:  clock,
		topics: map[string]race.Track{
			track1Topic: race.Track1,
			track2Topic: race.Track2,
		},
		sink: sink,
	}
}

// Run subscribes and consumes until ctx is cancelled or the subscription
// breaks. On an unexpected break it signals the sink via SensorsLost and
// returns ErrSubscriptionLost; it never reconnects on its own.
func (l *Listener) Run(ctx context.Context) error {
	channels := make([]string, 0, len(l.topics))
	for topic := range l.topics {
		channels = append(channels, topic)
	}

	sub := l.client.rdb.Subscribe(ctx, channels...)
	defer func() { _ = sub.Close() }()

	// Fail fast if the subscription itself cannot be established.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	slog.Info("Bus listener subscribed", "topics", channels)

	msgCh := sub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				slog.Error("Bus subscription lost, sensor input unavailable")
				metrics.BusDisconnects.Inc()
				l.sink.SensorsLost(context.WithoutCancel(ctx))
				return ErrSubscriptionLost
			}
			// Stamp arrival before any dispatch work; this timestamp is
			// the lap finish time.
			observedAt := l.clock.Now()

			track, ok := l.topics[msg.Channel]
			if !ok {
				continue
			}

			metrics.BusMessagesTotal.WithLabelValues(msg.Channel).Inc()
			msgCtx := correlation.WithID(ctx, correlation.NewID())
			slog.DebugContext(msgCtx, "Finish event received", "topic", msg.Channel, "track", int(track))
			l.sink.HandleFinish(msgCtx, track, observedAt)

		case <-ctx.Done():
			slog.Info("Bus listener stopping")
			return ctx.Err()
		}
	}
}
