package broadcast

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewerWriter_DeliversInOrder(t *testing.T) {
	server, client := newTestConnPair(t)

	vw := newViewerWriter(uuid.New(), server, clockwork.NewRealClock(), nil)
	t.Cleanup(vw.stop)

	vw.sendChannel <- []byte("one")
	vw.sendChannel <- []byte("two")
	vw.sendChannel <- []byte("three")

	for _, want := range []string{"one", "two", "three"} {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestViewerWriter_FailReportsOnce(t *testing.T) {
	server, client := newTestConnPair(t)

	var failures atomic.Int32
	vw := newViewerWriter(uuid.New(), server, clockwork.NewRealClock(), func() {
		failures.Add(1)
	})
	t.Cleanup(vw.stop)

	// Break the connection, then keep feeding until the write goroutine
	// notices. fail must fire exactly once.
	client.Close()
	server.Close()
	for range 20 {
		select {
		case vw.sendChannel <- []byte("x"):
		default:
		}
		if failures.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, int32(1), failures.Load())
}

func TestViewerWriter_GracefulStopSendsCloseFrame(t *testing.T) {
	server, client := newTestConnPair(t)

	vw := newViewerWriter(uuid.New(), server, clockwork.NewRealClock(), nil)
	vw.stopGraceful("server shutting down")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()

	if closeErr, ok := err.(*websocket.CloseError); ok {
		assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
		assert.Contains(t, closeErr.Text, "shutting down")
	} else {
		assert.Error(t, err, "connection should be closed")
	}
}

func TestViewerWriter_StopIdempotent(t *testing.T) {
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	vw := newViewerWriter(uuid.New(), server, clockwork.NewRealClock(), nil)

	vw.stop()
	vw.stop()
	vw.stop()
}

func TestViewerWriter_ConcurrentStop(t *testing.T) {
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	vw := newViewerWriter(uuid.New(), server, clockwork.NewRealClock(), nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vw.stop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent stop calls deadlocked")
	}
}
