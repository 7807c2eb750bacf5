package gamecommand

import (
	"context"
	"fmt"
	"sync"
	"time"

	"playhub/internal/config"
	"playhub/internal/events"
	"playhub/internal/observability"

	"gorm.io/gorm"
)

// Handler dispatches inbound commands to their transition function and
// publishes the resulting events. One Handler serves every room in the
// process; per-room isolation comes from RoomStore's cache, not from a
// Handler instance per room.
type Handler struct {
	db       *gorm.DB
	store    *RoomStore
	producer *events.Producer
	cfg      *config.Config

	registry map[CommandKind]transition

	roundsMu sync.Mutex
	rounds   map[string]*diceRound // roomID -> in-memory Bigger Dice state
}

// NewHandler wires a Handler against the relational store and the
// games.events producer.
func NewHandler(db *gorm.DB, producer *events.Producer, cfg *config.Config) *Handler {
	h := &Handler{
		db:       db,
		store:    NewRoomStore(db),
		producer: producer,
		cfg:      cfg,
		rounds:   make(map[string]*diceRound),
	}
	h.registry = map[CommandKind]transition{
		CmdCreateRoom:        transitionCreateRoom,
		CmdJoinLobby:         transitionJoinLobby,
		CmdSelectPlayer:      transitionSelectPlayer,
		CmdDeselectPlayer:    transitionDeselectPlayer,
		CmdSetReady:          transitionSetReady,
		CmdStartGame:         transitionStartGame,
		CmdRoll:              transitionRoll,
		CmdLeaveRoom:         transitionLeaveRoom,
		CmdReconnect:         transitionReconnect,
		CmdDisconnect:        transitionDisconnect,
		CmdVoteKick:          transitionVoteKick,
		CmdKickPlayer:        transitionKickPlayer,
		CmdBanUser:           transitionBanUser,
		CmdJoinAsSpectator:   transitionJoinAsSpectator,
		CmdPromoteSpectator:  transitionPromoteSpectator,
		CmdDemoteToSpectator: transitionDemoteToSpectator,
		CmdSetAdminSpectator: transitionSetAdminSpectator,
		CmdSendChat:          transitionSendChat,
		CmdMuteUser:          transitionMuteUser,
		CmdUnmuteUser:        transitionUnmuteUser,
		CmdListRooms:         transitionListRooms,
	}
	return h
}

var (
	gameCommandMetrics = observability.NewGameCommandMetrics()
	gameCommandTracer  = observability.GetTraceLayer()
)

// Dispatch routes cmd to its transition and publishes any resulting events
// to the room's partition on the games.events stream.
func (h *Handler) Dispatch(ctx context.Context, cmd Command) (*Result, error) {
	ctx, span := gameCommandTracer.TraceGameCommand(ctx, cmd.RoomID, string(cmd.Kind))
	defer span.End()

	done := gameCommandMetrics.TrackDispatch(string(cmd.Kind))
	outcome := "ok"
	defer func() { done(outcome) }()

	fn, ok := h.registry[cmd.Kind]
	if !ok {
		outcome = "error"
		return nil, fatalf(fmt.Sprintf("unknown command kind %q", cmd.Kind), nil)
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = time.Now().UTC()
	}

	result, err := fn(ctx, h, cmd)
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		observability.GlobalLogger.ErrorContext(ctx, "gamecommand dispatch failed",
			"kind", string(cmd.Kind), "room_id", cmd.RoomID, "error", err.Error())
		return nil, err
	}
	if h.producer != nil {
		for _, env := range result.Events {
			if _, pubErr := h.producer.Publish(ctx, cmd.RoomID, env); pubErr != nil {
				outcome = "error"
				return result, retryf("publish event", pubErr)
			}
		}
	}
	return result, nil
}

// disconnectTimeout returns the configured grace window before a
// disconnected player becomes kick-eligible.
func (h *Handler) disconnectTimeout() time.Duration {
	if h.cfg == nil {
		return 30 * time.Second
	}
	return 30 * time.Second
}
