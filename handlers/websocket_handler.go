package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Dosada05/competition-engine/brackets"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub    *brackets.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *brackets.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeTournamentFeed subscribes the caller to a tournament's live event
// stream.
func (h *WebSocketHandler) ServeTournamentFeed(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "tournamentID")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		errorResponse(w, r, http.StatusBadRequest, "invalid tournament ID")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("websocket upgrade failed", slog.Any("error", err))
		}
		return
	}

	client := &brackets.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: strconv.Itoa(id),
	}
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
