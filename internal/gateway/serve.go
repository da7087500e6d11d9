package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the frontend host is fixed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated request to a websocket connection and
// registers it with the hub. The auth middleware has already verified the
// bearer credential; unauthenticated requests never reach this point.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	username, ok2 := middleware.Username(r.Context())
	if !ok || !ok2 {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindUnauthorized, "missing identity"))
		return
	}

	u, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 256),
		UserID:      userID,
		Username:    username,
		DisplayName: u.DisplayName,
		rooms:       make(map[int64]bool),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
