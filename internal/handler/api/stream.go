package api

import (
	"net/http"

	"PairPulse/internal/broadcast"
	xlogger "PairPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// StreamHandler upgrades /ws/live requests into broadcast sessions.
type StreamHandler struct {
	logger   *xlogger.Logger
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
}

func NewStreamHandler(logger *xlogger.Logger, hub *broadcast.Hub) *StreamHandler {
	return &StreamHandler{
		logger: logger.With("api.stream"),
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/live", h.Live)
}

// Live blocks for the lifetime of the session.
func (h *StreamHandler) Live(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	s, err := h.hub.Serve(c.Request().Context(), conn)
	if err != nil {
		h.logger.Warn("session rejected", xlogger.Error(err))
		return nil
	}
	<-s.Done()
	if err := s.Err(); err != nil {
		h.logger.Debug("session ended", xlogger.String("session", s.ID()), xlogger.Error(err))
	}
	return nil
}
