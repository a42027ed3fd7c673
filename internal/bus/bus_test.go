package bus

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/da-stoaz/carrera-dash/internal/race"
)

const (
	testTrack1Topic = "sensor/schiene_1"
	testTrack2Topic = "sensor/schiene_2"
	testStartTopic  = "carrera/race/start"
)

var testRedisURL string

func TestMain(m *testing.M) {
	flag.Parse()

	// Short mode runs only the container-free tests; don't touch Docker.
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func setupTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client, err := NewClient(context.Background(), testRedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// recordingSink captures finish events and sensor-loss signals.
type recordingSink struct {
	mu       sync.Mutex
	finishes chan race.Track
	lost     bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{finishes: make(chan race.Track, 16)}
}

func (s *recordingSink) HandleFinish(_ context.Context, track race.Track, observedAt time.Time) {
	if observedAt.IsZero() {
		panic("finish event without timestamp")
	}
	s.finishes <- track
}

func (s *recordingSink) SensorsLost(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost = true
}

func (s *recordingSink) sensorsLost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}

// publishWhenSubscribed publishes on topic, retrying until the broker reports
// at least one subscriber. Pub/sub subscriptions establish asynchronously.
func publishWhenSubscribed(t *testing.T, client *Client, topic, payload string) {
	t.Helper()
	ctx := context.Background()
	for range 200 {
		n, err := client.rdb.Publish(ctx, topic, payload).Result()
		require.NoError(t, err)
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber appeared on %s", topic)
}

func expectFinish(t *testing.T, sink *recordingSink, want race.Track) {
	t.Helper()
	select {
	case track := <-sink.finishes:
		assert.Equal(t, want, track)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for finish on track %d", want)
	}
}

func TestClient_ConnectAndPing(t *testing.T) {
	client := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestClient_UnreachableBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, "redis://127.0.0.1:1")
	assert.Error(t, err)
}

func TestListener_DispatchesFinishEventsByTopic(t *testing.T) {
	listenClient := setupTestClient(t)
	pubClient := setupTestClient(t)

	sink := newRecordingSink()
	listener := NewListener(listenClient, clockwork.NewRealClock(), testTrack1Topic, testTrack2Topic, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- listener.Run(ctx) }()

	// Payload content is irrelevant; the topic carries the track identity.
	publishWhenSubscribed(t, pubClient, testTrack1Topic, "1")
	expectFinish(t, sink, race.Track1)

	publishWhenSubscribed(t, pubClient, testTrack2Topic, "hit")
	expectFinish(t, sink, race.Track2)

	publishWhenSubscribed(t, pubClient, testTrack1Topic, "")
	expectFinish(t, sink, race.Track1)

	cancel()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on context cancel")
	}
	assert.False(t, sink.sensorsLost())
}

func TestListener_SubscriptionLostSignalsSink(t *testing.T) {
	listenClient := setupTestClient(t)
	pubClient := setupTestClient(t)

	sink := newRecordingSink()
	listener := NewListener(listenClient, clockwork.NewRealClock(), testTrack1Topic, testTrack2Topic, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- listener.Run(ctx) }()

	publishWhenSubscribed(t, pubClient, testTrack1Topic, "1")
	expectFinish(t, sink, race.Track1)

	// Tear the connection down underneath the subscription.
	require.NoError(t, listenClient.Close())

	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, ErrSubscriptionLost)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not report lost subscription")
	}
	assert.True(t, sink.sensorsLost())
}

func TestListener_FailsFastWhenBrokerGone(t *testing.T) {
	client := setupTestClient(t)
	require.NoError(t, client.Close())

	listener := NewListener(client, clockwork.NewRealClock(), testTrack1Topic, testTrack2Topic, newRecordingSink())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := listener.Run(ctx)
	assert.Error(t, err)
}

func TestPublisher_EmitsGoSignal(t *testing.T) {
	pubClient := setupTestClient(t)
	subClient := setupTestClient(t)

	ctx := context.Background()
	sub := subClient.rdb.Subscribe(ctx, testStartTopic)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewPublisher(pubClient, testStartTopic)
	require.NoError(t, publisher.PublishRaceStart(ctx))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, testStartTopic, msg.Channel)
		assert.Equal(t, "GO", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("go signal never arrived")
	}
}

func TestPublisher_FailsWithoutBroker(t *testing.T) {
	client := setupTestClient(t)
	require.NoError(t, client.Close())

	publisher := NewPublisher(client, testStartTopic)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, publisher.PublishRaceStart(ctx))
}
