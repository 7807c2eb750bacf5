// Package gamecommand implements the event-driven multiplayer lobby engine:
// a closed command vocabulary dispatched against an in-memory, mutex-guarded
// room cache backed by the relational store, broadcasting resulting events
// over the games.events stream. It generalizes
// internal/notifications/game_hub.go's cache-then-DB-then-broadcast flow
// (and its per-action-type switch, replaced here with a closed CommandKind
// enum per the room-engine redesign) from one synchronous room per pair of
// players to many concurrent players and spectators per room.
package gamecommand

import (
	"context"
	"time"

	"playhub/internal/events"
)

// CommandKind is the closed set of commands the engine accepts.
type CommandKind string

const (
	CmdCreateRoom        CommandKind = "create_room"
	CmdJoinLobby         CommandKind = "join_lobby"
	CmdSelectPlayer       CommandKind = "select_player"
	CmdDeselectPlayer     CommandKind = "deselect_player"
	CmdSetReady          CommandKind = "set_ready"
	CmdStartGame         CommandKind = "start_game"
	CmdRoll              CommandKind = "roll"
	CmdLeaveRoom         CommandKind = "leave_room"
	CmdReconnect         CommandKind = "reconnect"
	CmdDisconnect        CommandKind = "disconnect"
	CmdVoteKick          CommandKind = "vote_kick"
	CmdKickPlayer        CommandKind = "kick_player"
	CmdBanUser           CommandKind = "ban_user"
	CmdJoinAsSpectator   CommandKind = "join_as_spectator"
	CmdPromoteSpectator  CommandKind = "promote_spectator"
	CmdDemoteToSpectator CommandKind = "demote_to_spectator"
	CmdSetAdminSpectator CommandKind = "set_admin_spectator"
	CmdSendChat          CommandKind = "send_chat"
	CmdMuteUser          CommandKind = "mute_user"
	CmdUnmuteUser        CommandKind = "unmute_user"
	CmdListRooms         CommandKind = "list_rooms"
)

// Command is one inbound request from a connected client, already
// authenticated — Actor carries the caller's identity.
type Command struct {
	Kind     CommandKind
	RoomID   string
	Actor    events.Actor
	Payload  map[string]any
	IssuedAt time.Time
}

// ErrorClass tells the transport layer how to react to a failed command.
type ErrorClass int

const (
	// Retryable indicates a transient failure (lock contention, DB hiccup);
	// the caller may resend the same command.
	Retryable ErrorClass = iota
	// Fatal indicates the command can never succeed as given (bad room,
	// invalid transition); the caller should surface it to the user.
	Fatal
	// Skip indicates the command is a harmless no-op (e.g. re-selecting an
	// already-selected seat) and should be silently dropped.
	Skip
)

// HandlerError wraps a transition failure with the class the dispatch loop
// needs to decide whether to retry, surface, or ignore it.
type HandlerError struct {
	Class ErrorClass
	Msg   string
	Err   error
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *HandlerError) Unwrap() error { return e.Err }

func fatalf(msg string, err error) *HandlerError {
	return &HandlerError{Class: Fatal, Msg: msg, Err: err}
}

func retryf(msg string, err error) *HandlerError {
	return &HandlerError{Class: Retryable, Msg: msg, Err: err}
}

func skip(msg string) *HandlerError {
	return &HandlerError{Class: Skip, Msg: msg}
}

// Result is what a transition produces: zero or more outbound envelopes to
// publish (to the room's event partition) plus whatever the caller's
// synchronous response should echo back.
type Result struct {
	Events   []events.Envelope
	Response map[string]any
}

// transition is implemented once per CommandKind.
type transition func(ctx context.Context, h *Handler, cmd Command) (*Result, error)
