package gamecommand

import (
	"context"

	"playhub/internal/events"
	"playhub/internal/models"
)

// isRoomHostOrAdminSpectator implements the kick/ban precedence: check
// self-action first, then host/admin-spectator authority, then plain
// membership — never reordered, so a self-kick never falls through to an
// authority check that could behave differently.
func isRoomHostOrAdminSpectator(room *models.LobbyRoom, userID uint) bool {
	if room.HostID == userID {
		return true
	}
	return room.AdminSpectatorID != nil && *room.AdminSpectatorID == userID
}

// transitionKickPlayer removes a player from the active seat list without
// banning them; self-kick (leaving one's own seat) is always permitted.
func transitionKickPlayer(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	targetID := uint(payloadInt(cmd.Payload, "user_id", 0))
	if targetID == 0 {
		return nil, fatalf("user_id is required", nil)
	}
	if targetID != cmd.Actor.UserID && !isRoomHostOrAdminSpectator(room, cmd.Actor.UserID) {
		return nil, fatalf("not authorized to kick this player", nil)
	}
	if !containsUint(decodeUintSlice(room.SelectedPlayers), targetID) {
		return nil, fatalf("user is not a selected player", nil)
	}

	room.SelectedPlayers = encodeUintSlice(removeUint(decodeUintSlice(room.SelectedPlayers), targetID))
	if err := h.store.Put(room); err != nil {
		return nil, retryf("kick player", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "player_kicked", cmd.Actor, map[string]any{"user_id": targetID})},
	}, nil
}

// transitionBanUser permanently excludes a user from a room, recording the
// canonical room_bans row (joined username or null, never a synthesized
// placeholder).
func transitionBanUser(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	if targetID := uint(payloadInt(cmd.Payload, "user_id", 0)); targetID != 0 {
		if !isRoomHostOrAdminSpectator(room, cmd.Actor.UserID) {
			return nil, fatalf("not authorized to ban", nil)
		}
		banned := decodeUintSlice(room.BannedUsers)
		if containsUint(banned, targetID) {
			return nil, skip("already banned")
		}
		room.BannedUsers = encodeUintSlice(append(banned, targetID))
		room.SelectedPlayers = encodeUintSlice(removeUint(decodeUintSlice(room.SelectedPlayers), targetID))
		room.Spectators = encodeUintSlice(removeUint(decodeUintSlice(room.Spectators), targetID))

		var username *string
		if name := payloadString(cmd.Payload, "username"); name != "" {
			username = &name
		}
		ban := models.RoomBan{UserID: targetID, Username: username}
		if err := h.db.Create(&ban).Error; err != nil {
			return nil, retryf("record ban", err)
		}
		if err := h.store.Put(room); err != nil {
			return nil, retryf("ban user", err)
		}
		return &Result{
			Events: []events.Envelope{roomEvent(cmd.RoomID, "user_banned", cmd.Actor, map[string]any{"user_id": targetID})},
		}, nil
	}
	return nil, fatalf("user_id is required", nil)
}

// transitionPromoteSpectator moves a spectator into the selected-player
// list if a seat is open.
func transitionPromoteSpectator(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	targetID := uint(payloadInt(cmd.Payload, "user_id", 0))
	spectators := decodeUintSlice(room.Spectators)
	if !containsUint(spectators, targetID) {
		return nil, fatalf("user is not a spectator", nil)
	}
	selected := decodeUintSlice(room.SelectedPlayers)
	if len(selected) >= room.PlayerCount {
		return nil, fatalf("room is full", nil)
	}
	room.Spectators = encodeUintSlice(removeUint(spectators, targetID))
	room.SelectedPlayers = encodeUintSlice(append(selected, targetID))

	if err := h.store.Put(room); err != nil {
		return nil, retryf("promote spectator", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "spectator_promoted", cmd.Actor, map[string]any{"user_id": targetID})},
	}, nil
}

// transitionDemoteToSpectator moves a selected player into the spectator
// list, typically used by the host to free a seat without ejecting anyone.
func transitionDemoteToSpectator(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	targetID := uint(payloadInt(cmd.Payload, "user_id", 0))
	if targetID != cmd.Actor.UserID && !isRoomHostOrAdminSpectator(room, cmd.Actor.UserID) {
		return nil, fatalf("not authorized to demote this player", nil)
	}
	if !containsUint(decodeUintSlice(room.SelectedPlayers), targetID) {
		return nil, fatalf("user is not a selected player", nil)
	}
	room.SelectedPlayers = encodeUintSlice(removeUint(decodeUintSlice(room.SelectedPlayers), targetID))
	room.Spectators = encodeUintSlice(append(decodeUintSlice(room.Spectators), targetID))

	if err := h.store.Put(room); err != nil {
		return nil, retryf("demote player", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "player_demoted", cmd.Actor, map[string]any{"user_id": targetID})},
	}, nil
}

// transitionSetAdminSpectator designates the room's admin-spectator, who
// gains host-equivalent moderation authority without holding a seat.
func transitionSetAdminSpectator(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	if room.HostID != cmd.Actor.UserID {
		return nil, fatalf("only the host can designate an admin spectator", nil)
	}
	targetID := uint(payloadInt(cmd.Payload, "user_id", 0))
	room.AdminSpectatorID = &targetID

	if err := h.store.Put(room); err != nil {
		return nil, retryf("set admin spectator", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "admin_spectator_set", cmd.Actor, map[string]any{"user_id": targetID})},
	}, nil
}
