package progressfeed

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin is permissive here; the JWT gate is the actual
	// access control, not same-origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades subscription requests to WebSocket connections,
// gated by an Authenticator, and registers them with a Hub.
type Handler struct {
	hub    *Hub
	auth   Authenticator
	logger zerolog.Logger
}

func NewHandler(hub *Hub, auth Authenticator, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, auth: auth, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("progress feed upgrade failed")
		return
	}

	client := newClient(callerID, h.hub.runID, h.hub, conn)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}
