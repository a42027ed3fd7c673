package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/da-stoaz/carrera-dash/internal/metrics"
	"github.com/da-stoaz/carrera-dash/internal/protocol"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type joinCmd struct {
	baseBroadcasterCmd
	connection   *websocket.Conn
	snapshot     []byte
	errorChannel chan error
}

type leaveCmd struct {
	baseBroadcasterCmd
	connection *websocket.Conn
}

type publishCmd struct {
	baseBroadcasterCmd
	messageType string
	data        []byte
}

type viewerCountCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster fans race events out to all connected viewers. It runs as a
// single goroutine consuming a command channel; per-connection write
// goroutines absorb slow clients so one stuck viewer never stalls the rest.
type Broadcaster struct {
	cmdCh      chan broadcasterCmd
	clock      clockwork.Clock
	viewers    map[*websocket.Conn]*viewerWriter
	maxViewers int
	done       chan struct{}
}

// NewBroadcaster creates and starts a broadcaster.
// maxViewers bounds concurrent connections (resource exhaustion guard).
func NewBroadcaster(clock clockwork.Clock, maxViewers int) *Broadcaster {
	b := &Broadcaster{
		cmdCh:      make(chan broadcasterCmd, 256),
		clock:      clock,
		viewers:    make(map[*websocket.Conn]*viewerWriter),
		maxViewers: maxViewers,
		done:       make(chan struct{}),
	}
	go b.run()
	return b
}

// Join registers a viewer connection and queues the given snapshot message as
// its first delivery, so a viewer attaching mid-race starts consistent with
// current state. Returns an error if the viewer limit is reached; the
// connection is closed in that case.
func (b *Broadcaster) Join(conn *websocket.Conn, snapshot protocol.Message) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	errCh := make(chan error, 1)
	b.cmdCh <- joinCmd{connection: conn, snapshot: data, errorChannel: errCh}

	// Timeout guards against a wedged actor loop holding the caller forever.
	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		// The actor may still process the join later. Close the socket so
		// any stray registration fails on first write, and queue a leave to
		// reap it. Non-blocking: if the command channel is full the actor is
		// wedged anyway and Stop will clean up.
		_ = conn.Close()
		select {
		case b.cmdCh <- leaveCmd{connection: conn}:
		default:
		}
		return fmt.Errorf("join command timed out after %v", commandTimeout)
	}
}

// Leave unregisters a viewer connection. Idempotent if already removed.
func (b *Broadcaster) Leave(conn *websocket.Conn) {
	b.cmdCh <- leaveCmd{connection: conn}
}

// Publish delivers msg to every currently registered viewer. A failing or
// slow viewer is evicted without affecting delivery to the others. Each
// single viewer observes messages in Publish order.
func (b *Broadcaster) Publish(msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "type", msg.MessageType(), "error", err)
		return
	}
	b.cmdCh <- publishCmd{messageType: msg.MessageType(), data: data}
}

// ViewerCount returns the number of connected viewers, or -1 on timeout.
func (b *Broadcaster) ViewerCount() int {
	replyCh := make(chan int, 1)
	b.cmdCh <- viewerCountCmd{replyChannel: replyCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ViewerCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the broadcaster, closing all viewer connections. Blocks
// until the actor goroutine has exited or the stop timeout is reached.
func (b *Broadcaster) Stop() {
	b.cmdCh <- stopCmd{}

	timer := b.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case joinCmd:
			b.handleJoin(c)
		case leaveCmd:
			b.handleLeave(c.connection)
		case publishCmd:
			b.handlePublish(c)
		case viewerCountCmd:
			c.replyChannel <- len(b.viewers)
		case stopCmd:
			b.handleStop()
			return
		default:
			slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (b *Broadcaster) handleJoin(c joinCmd) {
	if len(b.viewers) >= b.maxViewers {
		slog.Warn("Rejecting viewer: max viewers reached", "max_viewers", b.maxViewers)
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max viewers (%d) reached", b.maxViewers)
		return
	}

	viewerID := uuid.New()
	vw := newViewerWriter(viewerID, c.connection, b.clock, func() {
		// Write failure: schedule an implicit leave. Buffered command
		// channel, never blocks the writer goroutine on its way out.
		metrics.ViewerSendFailures.Inc()
		b.Leave(c.connection)
	})
	b.viewers[c.connection] = vw

	// The snapshot goes through the writer like any broadcast, so it is
	// FIFO-ordered ahead of every delta published after this join.
	vw.sendChannel <- c.snapshot

	metrics.ConnectedViewers.Set(float64(len(b.viewers)))
	slog.Info("Viewer joined", "viewer_id", viewerID.String(), "total_viewers", len(b.viewers))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleLeave(conn *websocket.Conn) {
	vw, exists := b.viewers[conn]
	if !exists {
		return
	}

	vw.stop()
	delete(b.viewers, conn)

	metrics.ConnectedViewers.Set(float64(len(b.viewers)))
	slog.Info("Viewer left", "viewer_id", vw.id.String(), "remaining_viewers", len(b.viewers))
}

func (b *Broadcaster) handlePublish(c publishCmd) {
	metrics.BroadcastsTotal.WithLabelValues(c.messageType).Inc()

	var slow []*websocket.Conn
	for conn, vw := range b.viewers {
		select {
		case vw.sendChannel <- c.data:
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow viewer", "viewer_id", b.viewers[conn].id.String())
		metrics.SlowViewersEvicted.Inc()
		b.handleLeave(conn)
	}
}

func (b *Broadcaster) handleStop() {
	slog.Info("Broadcaster shutting down", "viewers", len(b.viewers))
	for conn, vw := range b.viewers {
		vw.stopGraceful("server shutting down")
		delete(b.viewers, conn)
	}
	metrics.ConnectedViewers.Set(0)
}
