package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"playhub/internal/events"
	"playhub/internal/gamecommand"
	"playhub/internal/observability"
	"playhub/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// lobbyMessage is the wire shape for one inbound command over the lobby
// websocket, mirroring notifications.GameAction's {type, payload} envelope
// generalized to the closed gamecommand.CommandKind vocabulary.
type lobbyMessage struct {
	Kind    string         `json:"kind"`
	RoomID  string         `json:"room_id"`
	Payload map[string]any `json:"payload"`
}

var lobbyWSLogger = observability.NewWSLogger("lobby")

// WebSocketLobbyHandler upgrades to a websocket carrying gamecommand.Command
// traffic for the multiplayer lobby engine — distinct from
// WebSocketGameHandler, which still serves the original synchronous
// two-player board games.
func (s *Server) WebSocketLobbyHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		observability.WebSocketConnectionsTotal.Inc()
		defer observability.WebSocketConnectionsTotal.Dec()

		userIDVal := conn.Locals("userID")
		userID, ok := userIDVal.(uint)
		if !ok {
			_ = conn.Close()
			return
		}

		s.consumeWSTicket(context.Background(), conn.Locals("wsTicket"))

		var user models.User
		username := ""
		if err := s.db.Select("username").First(&user, userID).Error; err == nil {
			username = user.Username
		}

		lobbyWSLogger.LogConnect(context.Background(), userID, "")
		disconnectReason := "client closed"
		defer func() {
			lobbyWSLogger.LogDisconnect(context.Background(), userID, "", disconnectReason)
			_ = conn.Close()
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				disconnectReason = "read error"
				return
			}

			var msg lobbyMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.writeLobbyError(conn, "invalid message")
				continue
			}

			cmd := gamecommand.Command{
				Kind:     gamecommand.CommandKind(msg.Kind),
				RoomID:   msg.RoomID,
				Actor:    events.Actor{UserID: userID, Username: username},
				Payload:  msg.Payload,
				IssuedAt: time.Now().UTC(),
			}

			lobbyWSLogger.LogMessage(context.Background(), userID, msg.RoomID, msg.Kind)
			result, err := s.lobbyHandler.Dispatch(context.Background(), cmd)
			if err != nil {
				lobbyWSLogger.LogError(context.Background(), userID, msg.RoomID, err, msg.Kind)
				s.writeLobbyError(conn, err.Error())
				continue
			}
			if result != nil && result.Response != nil {
				if writeErr := conn.WriteJSON(result.Response); writeErr != nil {
					disconnectReason = "write error"
					return
				}
			}
		}
	})
}

func (s *Server) writeLobbyError(conn *websocket.Conn, message string) {
	if err := conn.WriteJSON(fiber.Map{"kind": "error", "message": message}); err != nil {
		log.Printf("lobby ws: failed to write error response: %v", err)
	}
}

