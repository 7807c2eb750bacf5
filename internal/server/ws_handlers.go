package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"playhub/internal/observability"
	"playhub/internal/models"
	"playhub/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const wsTicketTTL = 15 * time.Second

// IssueWSTicket mints a short-lived, single-use ticket a client exchanges for
// a WebSocket connection, avoiding a long-lived JWT in the query string of a
// ws:// URL (where it is more likely to be logged by an intermediary).
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("websocket tickets unavailable")))
	}

	ticket, err := randomTicket()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	key := fmt.Sprintf("ws_ticket:%s", ticket)
	if err := s.redis.Set(c.Context(), key, strconv.FormatUint(uint64(userID), 10), wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{"ticket": ticket, "expires_in": int(wsTicketTTL.Seconds())})
}

func randomTicket() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// WebsocketHandler serves the general-purpose notification stream (presence,
// friend-request-free account events). Board games and the multiplayer lobby
// engine have their own dedicated handlers.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		observability.WebSocketConnectionsTotal.Inc()
		defer observability.WebSocketConnectionsTotal.Dec()

		userIDVal := c.Locals("userID")
		userID, ok := userIDVal.(uint)
		if !ok {
			_ = c.Close()
			return
		}

		s.consumeWSTicket(context.Background(), c.Locals("wsTicket"))

		client, err := s.hub.Register(userID, c)
		if err != nil {
			_ = c.WriteJSON(fiber.Map{"type": "error", "payload": err.Error()})
			_ = c.Close()
			return
		}
		defer func() {
			s.hub.UnregisterClient(client)
			_ = c.Close()
		}()

		client.IncomingHandler = func(_ *notifications.Client, _ []byte) {
			// The notification stream is server-to-client only; inbound
			// frames are accepted (to keep the connection alive through
			// proxies) but otherwise ignored.
		}

		go client.WritePump()
		client.ReadPump()
	})
}
