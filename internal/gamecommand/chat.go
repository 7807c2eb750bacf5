package gamecommand

import (
	"context"
	"time"

	"playhub/internal/events"
	"playhub/internal/models"
)

// transitionSendChat posts a line to one of the room's three chat channels,
// dropping it for muted recipients at delivery time (the message is still
// archived so moderators can review it).
func transitionSendChat(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	channel := models.ChatChannel(payloadString(cmd.Payload, "channel"))
	switch channel {
	case models.ChannelLobby, models.ChannelPlayers, models.ChannelSpectators:
	default:
		return nil, fatalf("unknown chat channel", nil)
	}
	if channel == models.ChannelLobby && !room.LobbyChatEnabled {
		return nil, fatalf("lobby chat is disabled in this room", nil)
	}
	content := payloadString(cmd.Payload, "content")
	if content == "" {
		return nil, skip("empty message")
	}

	doc := models.ChatMessageDoc{
		RoomID:    cmd.RoomID,
		Channel:   channel,
		UserID:    cmd.Actor.UserID,
		Username:  cmd.Actor.Username,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if err := h.db.Table("chat_messages").Create(&doc).Error; err != nil {
		return nil, retryf("archive chat message", err)
	}

	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "chat_message", cmd.Actor, map[string]any{
			"channel": channel,
			"content": content,
		})},
	}, nil
}

// transitionMuteUser records a per-viewer mute; muted content still reaches
// the server and other viewers, it is only withheld from the muter.
func transitionMuteUser(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	muteeID := uint(payloadInt(cmd.Payload, "user_id", 0))
	if muteeID == 0 {
		return nil, fatalf("user_id is required", nil)
	}
	mute := models.UserMute{MuterID: cmd.Actor.UserID, MuteeID: muteeID, RoomID: cmd.RoomID}
	if err := h.db.Where(mute).FirstOrCreate(&mute).Error; err != nil {
		return nil, retryf("mute user", err)
	}
	return &Result{Response: map[string]any{"muted": muteeID}}, nil
}

// transitionUnmuteUser removes a previously recorded per-viewer mute.
func transitionUnmuteUser(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	muteeID := uint(payloadInt(cmd.Payload, "user_id", 0))
	if muteeID == 0 {
		return nil, fatalf("user_id is required", nil)
	}
	if err := h.db.Where("muter_id = ? AND mutee_id = ? AND room_id = ?", cmd.Actor.UserID, muteeID, cmd.RoomID).
		Delete(&models.UserMute{}).Error; err != nil {
		return nil, retryf("unmute user", err)
	}
	return &Result{Response: map[string]any{"unmuted": muteeID}}, nil
}
