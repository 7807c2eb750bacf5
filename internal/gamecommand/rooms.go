package gamecommand

import (
	"context"
	"fmt"
	"time"

	"playhub/internal/events"
	"playhub/internal/models"

	"github.com/google/uuid"
)

func payloadString(p map[string]any, key string) string {
	v, _ := p[key].(string)
	return v
}

func payloadInt(p map[string]any, key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func payloadBool(p map[string]any, key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func roomEvent(roomID, kind string, actor events.Actor, payload map[string]any) events.Envelope {
	return events.Envelope{
		EventType: kind,
		Producer:  "gamecommand",
		Actor:     actor,
		Audience:  events.Audience{Mode: events.AudienceRoom, Target: roomID},
		Payload:   payload,
	}
}

// transitionCreateRoom creates a new waiting room with the creator seated as
// its first player and its host.
func transitionCreateRoom(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	playerCount := payloadInt(cmd.Payload, "player_count", 2)
	if playerCount < models.MinPlayerCount || playerCount > models.MaxPlayerCount {
		return nil, fatalf(fmt.Sprintf("player_count %d out of range [%d,%d]", playerCount, models.MinPlayerCount, models.MaxPlayerCount), nil)
	}

	roomID := uuid.NewString()
	room := &models.LobbyRoom{
		RoomID:           roomID,
		RoomName:         payloadString(cmd.Payload, "room_name"),
		GameType:         models.BiggerDice,
		Status:           models.RoomWaiting,
		HostID:           cmd.Actor.UserID,
		PlayerCount:      playerCount,
		AllowSpectators:  payloadBool(cmd.Payload, "allow_spectators", true),
		MaxSpectators:    payloadInt(cmd.Payload, "max_spectators", 20),
		LobbyChatEnabled: true,
		Lobby: encodeMemberRefs([]models.MemberRef{{
			UserID: cmd.Actor.UserID, Username: cmd.Actor.Username,
		}}),
		SelectedPlayers:    encodeUintSlice([]uint{cmd.Actor.UserID}),
		Spectators:         encodeUintSlice(nil),
		SpectatorsData:     encodeMemberRefs(nil),
		BannedUsers:        encodeUintSlice(nil),
		RecordedPlayers:    encodeUintSlice([]uint{cmd.Actor.UserID}),
		RecordedSpectators: encodeUintSlice(nil),
		AutoPlayers:        encodeUintSlice(nil),
		VoteKicks:          encodeVoteKicks(nil),
		IsActive:           true,
	}
	if pw := payloadString(cmd.Payload, "password"); pw != "" {
		room.PasswordHash = hashRoomPassword(pw)
	}

	if err := h.store.Put(room); err != nil {
		return nil, retryf("create room", err)
	}

	return &Result{
		Events:   []events.Envelope{roomEvent(roomID, "room_created", cmd.Actor, map[string]any{"room_id": roomID})},
		Response: map[string]any{"room_id": roomID, "status": room.Status},
	}, nil
}

// transitionJoinLobby adds the caller to the lobby (not yet a selected
// player), rejecting banned users and closed rooms.
func transitionJoinLobby(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	if containsUint(decodeUintSlice(room.BannedUsers), cmd.Actor.UserID) {
		return nil, fatalf("user is banned from this room", nil)
	}
	if room.Status == models.RoomFinished || room.Status == models.RoomAbandoned {
		return nil, fatalf("room is no longer joinable", nil)
	}
	if room.PasswordHash != "" {
		if !checkRoomPassword(room.PasswordHash, payloadString(cmd.Payload, "password")) {
			return nil, fatalf("invalid room password", nil)
		}
	}

	lobby := decodeMemberRefs(room.Lobby)
	found := false
	for _, m := range lobby {
		if m.UserID == cmd.Actor.UserID {
			found = true
			break
		}
	}
	if !found {
		lobby = append(lobby, models.MemberRef{UserID: cmd.Actor.UserID, Username: cmd.Actor.Username})
		room.Lobby = encodeMemberRefs(lobby)
	}
	recorded := decodeUintSlice(room.RecordedPlayers)
	if !containsUint(recorded, cmd.Actor.UserID) {
		room.RecordedPlayers = encodeUintSlice(append(recorded, cmd.Actor.UserID))
	}

	if err := h.store.Put(room); err != nil {
		return nil, retryf("join lobby", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "lobby_joined", cmd.Actor, map[string]any{"user_id": cmd.Actor.UserID})},
	}, nil
}

// transitionSelectPlayer moves a lobby member into the active seat list, up
// to player_count.
func transitionSelectPlayer(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	if room.Status != models.RoomWaiting {
		return nil, fatalf("room is not accepting seat changes", nil)
	}
	selected := decodeUintSlice(room.SelectedPlayers)
	if containsUint(selected, cmd.Actor.UserID) {
		return nil, skip("already selected")
	}
	if len(selected) >= room.PlayerCount {
		return nil, fatalf("room is full", nil)
	}
	room.SelectedPlayers = encodeUintSlice(append(selected, cmd.Actor.UserID))

	if err := h.store.Put(room); err != nil {
		return nil, retryf("select player", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "player_selected", cmd.Actor, map[string]any{"user_id": cmd.Actor.UserID})},
	}, nil
}

// transitionDeselectPlayer returns a selected player to spectating/lobby
// status without removing them from the room.
func transitionDeselectPlayer(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	selected := decodeUintSlice(room.SelectedPlayers)
	if !containsUint(selected, cmd.Actor.UserID) {
		return nil, skip("not currently selected")
	}
	room.SelectedPlayers = encodeUintSlice(removeUint(selected, cmd.Actor.UserID))

	if err := h.store.Put(room); err != nil {
		return nil, retryf("deselect player", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "player_deselected", cmd.Actor, map[string]any{"user_id": cmd.Actor.UserID})},
	}, nil
}

// transitionSetReady records one selected player's readiness and advances
// the room to the starting status once every selected seat has readied up,
// or drops it back to waiting if a ready player un-readies.
func transitionSetReady(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	if room.Status != models.RoomWaiting && room.Status != models.RoomStarting {
		return nil, fatalf("room is not in the ready phase", nil)
	}
	selected := decodeUintSlice(room.SelectedPlayers)
	if !containsUint(selected, cmd.Actor.UserID) {
		return nil, fatalf("only a selected player can ready up", nil)
	}
	ready := payloadBool(cmd.Payload, "ready", true)

	lobby := decodeMemberRefs(room.Lobby)
	for i := range lobby {
		if lobby[i].UserID == cmd.Actor.UserID {
			lobby[i].Ready = ready
		}
	}
	room.Lobby = encodeMemberRefs(lobby)

	allReady := len(selected) == room.PlayerCount
	for _, uid := range selected {
		seatReady := false
		for _, m := range lobby {
			if m.UserID == uid && m.Ready {
				seatReady = true
				break
			}
		}
		if !seatReady {
			allReady = false
			break
		}
	}
	switch {
	case allReady:
		room.Status = models.RoomStarting
	case room.Status == models.RoomStarting:
		room.Status = models.RoomWaiting
	}

	if err := h.store.Put(room); err != nil {
		return nil, retryf("set ready", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "player_ready_set", cmd.Actor, map[string]any{
			"user_id": cmd.Actor.UserID, "ready": ready, "all_ready": allReady,
		})},
	}, nil
}

// transitionJoinAsSpectator adds the caller to a room's spectator roster,
// the only path that populates Spectators and so the only way the promote
// path in moderation.go ever has a candidate to work with.
func transitionJoinAsSpectator(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	if !room.AllowSpectators {
		return nil, fatalf("this room does not allow spectators", nil)
	}
	if containsUint(decodeUintSlice(room.BannedUsers), cmd.Actor.UserID) {
		return nil, fatalf("user is banned from this room", nil)
	}
	spectators := decodeUintSlice(room.Spectators)
	if containsUint(spectators, cmd.Actor.UserID) {
		return nil, skip("already spectating")
	}
	if len(spectators) >= room.MaxSpectators {
		return nil, fatalf("spectator capacity reached", nil)
	}
	room.Spectators = encodeUintSlice(append(spectators, cmd.Actor.UserID))
	room.SpectatorsData = encodeMemberRefs(append(decodeMemberRefs(room.SpectatorsData),
		models.MemberRef{UserID: cmd.Actor.UserID, Username: cmd.Actor.Username}))

	recorded := decodeUintSlice(room.RecordedSpectators)
	if !containsUint(recorded, cmd.Actor.UserID) {
		room.RecordedSpectators = encodeUintSlice(append(recorded, cmd.Actor.UserID))
	}

	if err := h.store.Put(room); err != nil {
		return nil, retryf("join as spectator", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "spectator_joined", cmd.Actor, map[string]any{"user_id": cmd.Actor.UserID})},
	}, nil
}

// transitionStartGame moves a readied room from starting to in_progress,
// seeding the Bigger Dice round for the first two players.
func transitionStartGame(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	if room.HostID != cmd.Actor.UserID {
		return nil, fatalf("only the host can start the game", nil)
	}
	if room.Status != models.RoomStarting {
		return nil, fatalf("all players must ready up before the game can start", nil)
	}
	selected := decodeUintSlice(room.SelectedPlayers)
	if len(selected) != room.PlayerCount {
		return nil, fatalf(fmt.Sprintf("need %d players selected, have %d", room.PlayerCount, len(selected)), nil)
	}

	now := time.Now().UTC()
	room.Status = models.RoomInProgress
	room.StartedAt = &now
	room.Players = encodeMemberRefs(filterLobbyBySelection(decodeMemberRefs(room.Lobby), selected))
	room.CurrentTurn = &selected[0]
	room.TurnNumber = 1
	room.LobbyChatEnabled = false

	h.roundsMu.Lock()
	h.rounds[cmd.RoomID] = &diceRound{Player1ID: selected[0], Player2ID: selected[1]}
	h.roundsMu.Unlock()

	if err := h.store.Put(room); err != nil {
		return nil, retryf("start game", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "game_started", cmd.Actor, map[string]any{
			"players": selected,
		})},
	}, nil
}

func filterLobbyBySelection(lobby []models.MemberRef, selected []uint) []models.MemberRef {
	out := make([]models.MemberRef, 0, len(selected))
	for _, s := range selected {
		for _, m := range lobby {
			if m.UserID == s {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// transitionLeaveRoom removes a player/spectator from a room, abandoning it
// if that empties every seat.
func transitionLeaveRoom(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	room.SelectedPlayers = encodeUintSlice(removeUint(decodeUintSlice(room.SelectedPlayers), cmd.Actor.UserID))
	room.Spectators = encodeUintSlice(removeUint(decodeUintSlice(room.Spectators), cmd.Actor.UserID))

	lobby := decodeMemberRefs(room.Lobby)
	remaining := make([]models.MemberRef, 0, len(lobby))
	for _, m := range lobby {
		if m.UserID != cmd.Actor.UserID {
			remaining = append(remaining, m)
		}
	}
	room.Lobby = encodeMemberRefs(remaining)

	if len(decodeUintSlice(room.SelectedPlayers)) == 0 && room.Status == models.RoomInProgress {
		room.Status = models.RoomAbandoned
		room.IsActive = false
	}

	if err := h.store.Put(room); err != nil {
		return nil, retryf("leave room", err)
	}
	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "member_left", cmd.Actor, map[string]any{"user_id": cmd.Actor.UserID})},
	}, nil
}

// transitionListRooms returns every room the caller is allowed to see along
// with their rejoin_role (host/lobby/player/spectator/none) for each: banned
// callers never see the room at all, and an in_progress room is hidden from
// anyone who isn't already a member of it.
func transitionListRooms(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	var rooms []models.LobbyRoom
	if err := h.db.Where("status IN ?", []models.LobbyRoomStatus{models.RoomWaiting, models.RoomStarting, models.RoomInProgress}).Find(&rooms).Error; err != nil {
		return nil, retryf("list rooms", err)
	}

	out := make([]map[string]any, 0, len(rooms))
	for _, r := range rooms {
		if containsUint(decodeUintSlice(r.BannedUsers), cmd.Actor.UserID) {
			continue
		}

		inLobby := false
		for _, m := range decodeMemberRefs(r.Lobby) {
			if m.UserID == cmd.Actor.UserID {
				inLobby = true
				break
			}
		}
		isPlayer := containsUint(decodeUintSlice(r.SelectedPlayers), cmd.Actor.UserID) || containsUint(decodeUintSlice(r.RecordedPlayers), cmd.Actor.UserID)
		isSpectator := containsUint(decodeUintSlice(r.Spectators), cmd.Actor.UserID) || containsUint(decodeUintSlice(r.RecordedSpectators), cmd.Actor.UserID)
		isHost := r.HostID == cmd.Actor.UserID
		isMember := isHost || inLobby || isPlayer || isSpectator

		if r.Status == models.RoomInProgress && !isMember {
			continue
		}

		role := "none"
		switch {
		case isHost:
			role = "host"
		case isPlayer:
			role = "player"
		case isSpectator:
			role = "spectator"
		case inLobby:
			role = "lobby"
		}

		out = append(out, map[string]any{
			"room_id":      r.RoomID,
			"room_name":    r.RoomName,
			"status":       r.Status,
			"player_count": r.PlayerCount,
			"rejoin_role":  role,
		})
	}
	return &Result{Response: map[string]any{"rooms": out}}, nil
}
