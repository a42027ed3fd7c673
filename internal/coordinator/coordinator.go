package coordinator

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/da-stoaz/carrera-dash/internal/metrics"
	"github.com/da-stoaz/carrera-dash/internal/protocol"
	"github.com/da-stoaz/carrera-dash/internal/race"
)

// ControlPublisher emits the race-start control message on the sensor bus.
// Implemented by bus.Publisher.
type ControlPublisher interface {
	PublishRaceStart(ctx context.Context) error
}

// ViewerHub is the fan-out side the coordinator pushes race events into.
// Implemented by broadcast.Broadcaster.
type ViewerHub interface {
	Join(conn *websocket.Conn, snapshot protocol.Message) error
	Leave(conn *websocket.Conn)
	Publish(msg protocol.Message)
}

// Coordinator owns the race state. Every read-modify-write of the state —
// viewer commands, sensor finish events, light-sequence steps — runs under
// one mutex, so none of them can interleave. Light sequences run as separate
// goroutines and revalidate their generation token under that same mutex
// before every state-mutating step; a superseded sequence discards its
// remaining work.
type Coordinator struct {
	mu           sync.Mutex
	state        *race.State
	generation   uint64
	countingDown bool
	busDown      bool

	clock   clockwork.Clock
	control ControlPublisher
	viewers ViewerHub

	// randomHold returns the randomized wait between the fifth light and
	// lights-out. Overridable in tests.
	randomHold func() time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	seqWG  sync.WaitGroup
}

// New creates a coordinator over a fresh idle race state.
func New(clock clockwork.Clock, control ControlPublisher, viewers ViewerHub) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		state:      race.NewState(),
		clock:      clock,
		control:    control,
		viewers:    viewers,
		randomHold: defaultRandomHold,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Stop cancels any in-flight light sequence and waits for it to drain.
func (c *Coordinator) Stop() {
	c.cancel()
	c.seqWG.Wait()
}

// AttachViewer registers a viewer connection and hands it a full-state
// snapshot consistent with the race state at this instant. The snapshot and
// all subsequent deltas reach the viewer in order.
func (c *Coordinator) AttachViewer(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewers.Join(conn, protocol.NewFullState(c.state.Snapshot()))
}

// DetachViewer unregisters a viewer connection. Idempotent.
func (c *Coordinator) DetachViewer(conn *websocket.Conn) {
	c.viewers.Leave(conn)
}

// HandleCommand dispatches one inbound viewer command token. Unknown tokens
// are silently ignored.
func (c *Coordinator) HandleCommand(ctx context.Context, command string) {
	switch command {
	case protocol.CommandStart:
		c.StartRace(ctx)
	case protocol.CommandStop:
		c.StopRace(ctx)
	case protocol.CommandReset:
		c.ResetRace(ctx)
	default:
		slog.DebugContext(ctx, "Ignoring unknown viewer command", "command", command)
	}
}

// StartRace begins a new race: resets state, broadcasts the reset, and
// launches the light sequence. While a race is actually running (lights out,
// laps counting) it is a silent no-op. A start arriving during a countdown
// supersedes that countdown: the stale sequence is invalidated and a fresh
// one begins.
func (c *Coordinator) StartRace(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busDown {
		slog.WarnContext(ctx, "Refusing race start: sensor bus unavailable")
		c.viewers.Publish(protocol.NewError("sensor bus unavailable, cannot start race"))
		return
	}

	if c.state.Status() == race.StatusRunning && !c.countingDown {
		slog.DebugContext(ctx, "Ignoring start: race already running")
		return
	}

	if c.countingDown {
		slog.InfoContext(ctx, "Superseding in-flight light sequence", "generation", c.generation)
		metrics.SequenceAbortsTotal.Inc()
	}

	c.state.Reset()
	if err := c.state.Start(); err != nil {
		// Unreachable after the reset above, but never start two races.
		slog.ErrorContext(ctx, "Failed to start race", "error", err)
		return
	}

	c.generation++
	c.countingDown = true
	gen := c.generation

	c.viewers.Publish(protocol.NewReset())
	slog.InfoContext(ctx, "Race starting, launching light sequence", "generation", gen)

	c.seqWG.Add(1)
	go func() {
		defer c.seqWG.Done()
		c.runLightSequence(c.ctx, gen)
	}()
}

// StopRace ends a running race and broadcasts the final summary. While idle
// or finished it is a silent no-op. Stopping mid-countdown invalidates the
// countdown.
func (c *Coordinator) StopRace(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary, ok := c.state.Stop()
	if !ok {
		slog.DebugContext(ctx, "Ignoring stop: no race running")
		return
	}

	// A countdown still in flight must not fire lights-out after the
	// summary went out.
	c.generation++
	if c.countingDown {
		metrics.SequenceAbortsTotal.Inc()
	}
	c.countingDown = false

	slog.InfoContext(ctx, "Race stopped",
		"track_1_laps", len(summary.Track1Laps),
		"track_2_laps", len(summary.Track2Laps),
		"track_1_fastest", summary.Track1Fastest,
		"track_2_fastest", summary.Track2Fastest,
	)
	c.viewers.Publish(protocol.NewRaceFinished(summary))
}

// ResetRace clears the race state unconditionally, regardless of current
// status. Used by viewers to recover from a stuck state.
func (c *Coordinator) ResetRace(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.countingDown {
		metrics.SequenceAbortsTotal.Inc()
	}
	c.countingDown = false
	c.state.Reset()

	slog.InfoContext(ctx, "Race state reset")
	c.viewers.Publish(protocol.NewReset())
}

// HandleFinish consumes one finish event from the bus. Events outside a
// running race, or before lights-out armed the lap, are dropped silently.
func (c *Coordinator) HandleFinish(ctx context.Context, track race.Track, observedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lap, ok := c.state.RecordFinish(track, observedAt)
	if !ok {
		metrics.FinishEventsDropped.WithLabelValues(trackLabel(track)).Inc()
		slog.DebugContext(ctx, "Dropping finish event: no active lap", "track", int(track))
		return
	}

	metrics.LapsRecorded.WithLabelValues(trackLabel(track)).Inc()
	slog.InfoContext(ctx, "Lap finished", "track", int(track), "lap_time_sec", lap)
	c.viewers.Publish(protocol.NewLapFinish(track, lap))
}

// SensorsLost marks sensor input as unavailable: viewers are notified and
// new race starts are refused until the owning process restores the bus.
func (c *Coordinator) SensorsLost(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.busDown = true
	slog.ErrorContext(ctx, "Sensor input unavailable, refusing new race starts")
	c.viewers.Publish(protocol.NewError("sensor input unavailable"))
}

// Snapshot exposes the current state view, e.g. for the readiness endpoint.
func (c *Coordinator) Snapshot() race.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

func trackLabel(track race.Track) string {
	return strconv.Itoa(int(track))
}
