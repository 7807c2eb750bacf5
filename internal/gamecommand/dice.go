package gamecommand

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"playhub/internal/events"
	"playhub/internal/models"
)

// maxAutoRollRounds bounds the tie-break re-roll loop at 10 so two unlucky
// players can never stall a room indefinitely.
const maxAutoRollRounds = 10

// diceRound is the Bigger Dice rule's transient per-room state: whoever
// rolls the higher die wins; a tie triggers another round, up to the cap.
// It is intentionally process-memory only (models.BiggerDiceRoundState
// documents why): restart loses in-flight rounds rather than persisting
// partial dice state nobody can audit afterwards.
type diceRound struct {
	Player1ID     uint
	Player2ID     uint
	Player1Roll   int
	Player2Roll   int
	RoundsPlayed  int
}

func rollDie() int {
	return rand.Intn(6) + 1
}

// transitionRoll plays one Bigger Dice round for the current pair of
// players, auto-rerolling on a tie until the cap is hit, at which point the
// round is declared a draw and advances to the next pair (or finishes).
func transitionRoll(_ context.Context, h *Handler, cmd Command) (*Result, error) {
	room, err := h.store.Get(cmd.RoomID)
	if err != nil {
		return nil, fatalf("room not found", err)
	}
	if room.Status != models.RoomInProgress {
		return nil, fatalf("game is not in progress", nil)
	}
	if room.CurrentTurn == nil || *room.CurrentTurn != cmd.Actor.UserID {
		return nil, fatalf("not your turn", nil)
	}

	h.roundsMu.Lock()
	round, ok := h.rounds[cmd.RoomID]
	if !ok {
		round = &diceRound{Player1ID: cmd.Actor.UserID}
		h.rounds[cmd.RoomID] = round
	}
	h.roundsMu.Unlock()

	roll := rollDie()
	var winnerID uint
	var drawn bool

	if cmd.Actor.UserID == round.Player1ID {
		round.Player1Roll = roll
	} else {
		round.Player2Roll = roll
	}

	if round.Player1Roll != 0 && round.Player2Roll != 0 {
		round.RoundsPlayed++
		switch {
		case round.Player1Roll > round.Player2Roll:
			winnerID = round.Player1ID
		case round.Player2Roll > round.Player1Roll:
			winnerID = round.Player2ID
		default:
			drawn = round.RoundsPlayed >= maxAutoRollRounds
			if !drawn {
				round.Player1Roll, round.Player2Roll = 0, 0
			}
		}
	}

	room.TurnNumber++
	if winnerID != 0 || drawn {
		now := time.Now().UTC()
		room.Status = models.RoomFinished
		room.FinishedAt = &now
		room.IsActive = false
		if winnerID != 0 {
			room.WinnerID = &winnerID
		}
		h.roundsMu.Lock()
		delete(h.rounds, cmd.RoomID)
		h.roundsMu.Unlock()

		return h.finishGame(room, cmd, roll, winnerID, drawn)
	}

	next := round.Player2ID
	if room.CurrentTurn != nil && *room.CurrentTurn == round.Player2ID {
		next = round.Player1ID
	}
	room.CurrentTurn = &next

	if err := h.store.Put(room); err != nil {
		return nil, retryf("record roll", err)
	}

	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "dice_rolled", cmd.Actor, map[string]any{
			"user_id": cmd.Actor.UserID,
			"roll":    roll,
			"turn":    room.TurnNumber,
		})},
		Response: map[string]any{
			"roll":    roll,
			"status":  room.Status,
			"message": fmt.Sprintf("rolled %d", roll),
		},
	}, nil
}

// finishGame archives the completed round to the game_history document
// store, hard-deletes the now-terminal lobby_rooms row, evicts it from the
// in-memory cache, and emits GameFinished in place of the room's normal
// dice_rolled event — a finished room leaves no trace in the active table
// for transitionListRooms or RoomStore to ever see again.
func (h *Handler) finishGame(room *models.LobbyRoom, cmd Command, roll int, winnerID uint, drawn bool) (*Result, error) {
	endedAt := time.Now().UTC()
	if room.FinishedAt != nil {
		endedAt = *room.FinishedAt
	}
	history := buildGameHistory(room, winnerID, endedAt)
	if err := h.db.Table("game_history").Create(&history).Error; err != nil {
		return nil, retryf("archive game history", err)
	}
	if err := h.db.Unscoped().Where("room_id = ?", room.RoomID).Delete(&models.LobbyRoom{}).Error; err != nil {
		return nil, retryf("delete finished room", err)
	}
	h.store.Evict(room.RoomID)

	payload := map[string]any{
		"user_id": cmd.Actor.UserID,
		"roll":    roll,
		"turn":    room.TurnNumber,
	}
	if winnerID != 0 {
		payload["winner_id"] = winnerID
	}
	if drawn {
		payload["draw"] = true
	}

	return &Result{
		Events: []events.Envelope{roomEvent(cmd.RoomID, "game_finished", cmd.Actor, payload)},
		Response: map[string]any{
			"roll":    roll,
			"status":  models.RoomFinished,
			"message": fmt.Sprintf("rolled %d", roll),
		},
	}, nil
}

// buildGameHistory snapshots the final state of a Bigger Dice room into the
// immutable document-store record written once the room finishes.
func buildGameHistory(room *models.LobbyRoom, winnerID uint, endedAt time.Time) models.GameHistory {
	selected := decodeUintSlice(room.SelectedPlayers)
	scores := make([]models.PlayerScore, 0, len(selected))
	for _, uid := range selected {
		score := 0
		if uid == winnerID {
			score = 1
		}
		scores = append(scores, models.PlayerScore{UserID: uid, Score: score})
	}
	var winner *uint
	if winnerID != 0 {
		winner = &winnerID
	}
	startedAt := endedAt
	if room.StartedAt != nil {
		startedAt = *room.StartedAt
	}
	return models.GameHistory{
		RoomID:                room.RoomID,
		GameType:              room.GameType,
		PlayersWithFinalScore: scores,
		WinnerID:              winner,
		StartedAt:             startedAt,
		EndedAt:               endedAt,
	}
}
