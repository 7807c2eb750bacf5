package gamecommand

import (
	"context"
	"time"

	"playhub/internal/events"
	"playhub/internal/models"
)

// transitionDisconnect opens a 30-second grace window for a dropped
// connection. If the player does not reconnect before it elapses, the
// caller (the sweep job in cmd/server or a background goroutine) is
// expected to issue CmdDeselectPlayer on their behalf.
func transitionDisconnect(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	var existing models.PlayerDisconnect
	err := h.db.Where("room_id = ? AND user_id = ?", cmd.RoomID, cmd.Actor.UserID).First(&existing).Error
	if err == nil && existing.Pending() {
		return nil, skip("disconnect already recorded")
	}

	pd := models.PlayerDisconnect{
		RoomID:         cmd.RoomID,
		UserID:         cmd.Actor.UserID,
		DisconnectedAt: time.Now().UTC(),
		TimeoutSeconds: 30,
	}
	if err := h.db.Create(&pd).Error; err != nil {
		return nil, retryf("record disconnect", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "player_disconnected", cmd.Actor, map[string]any{
			"user_id":         cmd.Actor.UserID,
			"timeout_seconds": pd.TimeoutSeconds,
		})},
	}, nil
}

// transitionReconnect cancels a pending disconnect window before it expires,
// or — if the grace window already lapsed into auto-play — clears the
// auto-play flag and hands control back to the rejoining player.
func transitionReconnect(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	var pd models.PlayerDisconnect
	err := h.db.Where("room_id = ? AND user_id = ? AND deselected = false AND reconnected = false", cmd.RoomID, cmd.Actor.UserID).
		First(&pd).Error
	wasAuto := false
	if err == nil {
		pd.Reconnected = true
		if err := h.db.Save(&pd).Error; err != nil {
			return nil, retryf("record reconnect", err)
		}
	} else if room, rerr := h.store.Get(cmd.RoomID); rerr == nil {
		auto := decodeUintSlice(room.AutoPlayers)
		if containsUint(auto, cmd.Actor.UserID) {
			room.AutoPlayers = encodeUintSlice(removeUint(auto, cmd.Actor.UserID))
			if err := h.store.Put(room); err != nil {
				return nil, retryf("clear auto-play", err)
			}
			wasAuto = true
		}
	}

	envs := []events.Envelope{roomEvent(cmd.RoomID, "player_rejoined", cmd.Actor, map[string]any{"user_id": cmd.Actor.UserID})}
	if wasAuto {
		envs = append(envs, roomEvent(cmd.RoomID, "player_auto_disabled", cmd.Actor, map[string]any{"user_id": cmd.Actor.UserID}))
	}
	return &Result{Events: envs}, nil
}

// transitionVoteKick records one selected player's vote to eject another
// (typically one stuck on auto-play). Once every other selected player has
// voted, the kick executes unanimously — no single player, including the
// host, can force it alone.
func transitionVoteKick(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	targetID := uint(payloadInt(cmd.Payload, "user_id", 0))
	if targetID == 0 {
		return nil, fatalf("user_id is required", nil)
	}
	selected := decodeUintSlice(room.SelectedPlayers)
	if !containsUint(selected, targetID) {
		return nil, fatalf("user is not a selected player", nil)
	}
	if targetID == cmd.Actor.UserID || !containsUint(selected, cmd.Actor.UserID) {
		return nil, fatalf("only a fellow selected player may vote to kick", nil)
	}

	votes := decodeVoteKicks(room.VoteKicks)
	voters := votes[targetID]
	if !containsUint(voters, cmd.Actor.UserID) {
		voters = append(voters, cmd.Actor.UserID)
		votes[targetID] = voters
	}

	required := len(selected) - 1
	if len(voters) < required {
		room.VoteKicks = encodeVoteKicks(votes)
		if err := h.store.Put(room); err != nil {
			return nil, retryf("record kick vote", err)
		}
		return &Result{
			Events: []events.Envelope{roomEvent(cmd.RoomID, "kick_vote_cast", cmd.Actor, map[string]any{
				"user_id": targetID, "votes": len(voters), "required": required,
			})},
		}, nil
	}

	room.SelectedPlayers = encodeUintSlice(removeUint(selected, targetID))
	room.AutoPlayers = encodeUintSlice(removeUint(decodeUintSlice(room.AutoPlayers), targetID))
	delete(votes, targetID)
	room.VoteKicks = encodeVoteKicks(votes)
	if err := h.store.Put(room); err != nil {
		return nil, retryf("vote kick player", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "player_kicked", cmd.Actor, map[string]any{
			"user_id": targetID, "reason": "vote_kick",
		})},
	}, nil
}

// SweepExpiredDisconnects enables auto-play for any player whose disconnect
// grace window has elapsed without a reconnect, then drives auto-rolls for
// every in_progress room with an auto-played seat on turn. It is meant to be
// called periodically by a background goroutine (see cmd/server).
func (h *Handler) SweepExpiredDisconnects(ctx context.Context) error {
	var pending []models.PlayerDisconnect
	if err := h.db.Where("deselected = false AND reconnected = false").Find(&pending).Error; err != nil {
		return err
	}
	now := time.Now()
	for _, pd := range pending {
		if now.Before(pd.TimeoutAt()) {
			continue
		}
		pd.Deselected = true
		if err := h.db.Save(&pd).Error; err != nil {
			continue
		}
		if err := h.enableAutoPlay(ctx, pd.RoomID, pd.UserID); err != nil {
			continue
		}
	}
	return h.runAutoRolls(ctx)
}

// enableAutoPlay marks userID's seat in roomID as auto-played and emits
// PlayerAutoEnabled, letting runAutoRolls roll on their behalf until they
// reconnect or a unanimous vote kicks them.
func (h *Handler) enableAutoPlay(ctx context.Context, roomID string, userID uint) error {
	room, err := h.store.Get(roomID)
	if err != nil {
		return err
	}
	auto := decodeUintSlice(room.AutoPlayers)
	if containsUint(auto, userID) {
		return nil
	}
	room.AutoPlayers = encodeUintSlice(append(auto, userID))
	if err := h.store.Put(room); err != nil {
		return err
	}
	if h.producer != nil {
		env := roomEvent(roomID, "player_auto_enabled", events.Actor{UserID: userID}, map[string]any{"user_id": userID})
		_, _ = h.producer.Publish(ctx, roomID, env)
	}
	return nil
}

// runAutoRolls dispatches CmdRoll on behalf of whichever auto-played seat
// currently holds the turn, for every in_progress room, bounded to
// maxAutoRollRounds consecutive rolls per room so an auto-play pair can
// never spin the sweep loop forever.
func (h *Handler) runAutoRolls(ctx context.Context) error {
	var rooms []models.LobbyRoom
	if err := h.db.Where("status = ?", models.RoomInProgress).Find(&rooms).Error; err != nil {
		return err
	}
	for _, r := range rooms {
		for i := 0; i < maxAutoRollRounds; i++ {
			room, err := h.store.Get(r.RoomID)
			if err != nil || room.Status != models.RoomInProgress || room.CurrentTurn == nil {
				break
			}
			if !containsUint(decodeUintSlice(room.AutoPlayers), *room.CurrentTurn) {
				break
			}
			if _, err := h.Dispatch(ctx, Command{
				Kind:   CmdRoll,
				RoomID: room.RoomID,
				Actor:  events.Actor{UserID: *room.CurrentTurn},
			}); err != nil {
				break
			}
		}
	}
	return nil
}
