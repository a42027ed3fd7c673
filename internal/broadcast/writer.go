package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// viewerWriter owns all writes to a single viewer connection, draining a
// bounded send buffer on its own goroutine. The broadcaster detects slow
// viewers by this buffer filling up.
type viewerWriter struct {
	id          uuid.UUID
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	onFail      func()
	failOnce    sync.Once
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newViewerWriter(id uuid.UUID, connection *websocket.Conn, clock clockwork.Clock, onFail func()) *viewerWriter {
	vw := &viewerWriter{
		id:          id,
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
		onFail:      onFail,
	}
	vw.configurePongHandler()
	vw.wg.Add(1)
	go vw.run()
	return vw
}

func (vw *viewerWriter) run() {
	ticker := vw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer vw.wg.Done()

	for {
		select {
		case msg, ok := <-vw.sendChannel:
			if !ok {
				return
			}
			vw.updateWriteDeadline()
			if err := vw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				vw.fail()
				return
			}
		case <-ticker.Chan():
			vw.updateWriteDeadline()
			if err := vw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				vw.fail()
				return
			}
		case <-vw.doneChannel:
			return
		}
	}
}

// fail reports a broken connection to the broadcaster exactly once.
func (vw *viewerWriter) fail() {
	vw.failOnce.Do(func() {
		if vw.onFail != nil {
			vw.onFail()
		}
	})
}

func (vw *viewerWriter) stop() {
	vw.stopOnce.Do(func() {
		close(vw.doneChannel)
		_ = vw.connection.Close()
	})
	vw.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (vw *viewerWriter) stopGraceful(reason string) {
	vw.stopOnce.Do(func() {
		close(vw.doneChannel)

		// Wait for run to exit so the close frame is not written
		// concurrently with a broadcast.
		vw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		vw.updateWriteDeadline()
		_ = vw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = vw.connection.Close()
	})
}

func (vw *viewerWriter) configurePongHandler() {
	vw.updateReadDeadline()
	vw.connection.SetPongHandler(func(string) error {
		vw.updateReadDeadline()
		return nil
	})
}

func (vw *viewerWriter) updateWriteDeadline() {
	_ = vw.connection.SetWriteDeadline(vw.clock.Now().Add(writeDeadline))
}

func (vw *viewerWriter) updateReadDeadline() {
	_ = vw.connection.SetReadDeadline(vw.clock.Now().Add(pongDeadline))
}
