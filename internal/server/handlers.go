package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/da-stoaz/carrera-dash/internal/metrics"
	"github.com/da-stoaz/carrera-dash/internal/platform/correlation"
)

// Per-connection command throttle. Race control is button presses, not a data
// stream; anything faster than this is a stuck key or a misbehaving client.
const (
	commandRate  rate.Limit = 5
	commandBurst            = 5
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboard may be opened from any host on the LAN
	},
}

// handleDashboard serves the race dashboard page. Renders to a buffer first
// so a template failure never sends partial HTML.
func (s *Server) handleDashboard(c echo.Context) error {
	var buf bytes.Buffer
	if err := s.dashboardTemplate.Execute(&buf, nil); err != nil {
		slog.Error("Dashboard template execution failed", "error", err)
		return c.String(http.StatusInternalServerError, "Failed to render page")
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// handleWebSocket attaches a viewer: upgrade, register with the broadcaster
// (which delivers the full-state snapshot), then loop reading command tokens
// until the connection drops.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("Failed to upgrade WebSocket", "error", err)
		return nil
	}

	if err := s.coordinator.AttachViewer(conn); err != nil {
		// Connection already closed by the broadcaster on rejection.
		slog.Warn("Failed to attach viewer", "error", err)
		return nil
	}
	defer s.coordinator.DetachViewer(conn)

	limiter := rate.NewLimiter(commandRate, commandBurst)
	ctx := c.Request().Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		command := strings.TrimSpace(string(data))
		if !limiter.Allow() {
			metrics.ViewerCommandsThrottled.Inc()
			slog.Warn("Throttling viewer command", "command", command)
			continue
		}

		cmdCtx := correlation.WithID(ctx, correlation.NewID())
		slog.DebugContext(cmdCtx, "Viewer command received", "command", command)
		s.coordinator.HandleCommand(cmdCtx, command)
	}

	return nil
}
