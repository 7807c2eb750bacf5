package gamecommand

import (
	"context"

	"playhub/internal/events"
	"playhub/internal/models"
)

// HandlePresenceOffline opens a disconnect grace window (transitionDisconnect)
// for userID in every room where they currently hold a seat. It is meant to
// be wired as a ConnectionManager offline callback (see
// internal/notifications/hub.go's SetPresenceCallbacks) so that a dropped
// websocket — detected by the general presence layer, not by the room
// transport itself — still starts the room engine's own grace/auto-play
// clock instead of leaving a stale seat behind.
func (h *Handler) HandlePresenceOffline(ctx context.Context, userID uint) {
	for _, roomID := range h.roomsSeating(userID) {
		_, _ = h.Dispatch(ctx, Command{
			Kind:   CmdDisconnect,
			RoomID: roomID,
			Actor:  events.Actor{UserID: userID},
		})
	}
}

// HandlePresenceOnline cancels any pending disconnect window for userID
// across every room they hold a seat in, the mirror of
// HandlePresenceOffline for a ConnectionManager online callback.
func (h *Handler) HandlePresenceOnline(ctx context.Context, userID uint) {
	for _, roomID := range h.roomsSeating(userID) {
		_, _ = h.Dispatch(ctx, Command{
			Kind:   CmdReconnect,
			RoomID: roomID,
			Actor:  events.Actor{UserID: userID},
		})
	}
}

// roomsSeating returns the room IDs of every in_progress room where userID
// currently holds a selected seat.
func (h *Handler) roomsSeating(userID uint) []string {
	var rooms []models.LobbyRoom
	if err := h.db.Where("status = ?", models.RoomInProgress).Find(&rooms).Error; err != nil {
		return nil
	}
	var ids []string
	for _, r := range rooms {
		if containsUint(decodeUintSlice(r.SelectedPlayers), userID) {
			ids = append(ids, r.RoomID)
		}
	}
	return ids
}
