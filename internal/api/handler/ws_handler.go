package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/trasealla/delivery-tracking/internal/realtime"
)

// WSHandler upgrades GET /ws into a realtime channel connection.
type WSHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(hub *realtime.Hub, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tracking links are opened from arbitrary origins (shared
			// URLs, embedded views); room access is enforced per command.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Serve handles GET /ws.
//
// @Summary      Open the realtime tracking channel
// @Tags         realtime
// @Security     BearerAuth
// @Success      101  "Switching Protocols"
// @Failure      400  {object}  map[string]string
// @Router       /ws [get]
func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	client := realtime.NewClient(h.hub, conn, tenantID(c))
	go client.Run()
	return nil
}
