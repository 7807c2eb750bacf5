package gamecommand

import (
	"context"
	"testing"

	"playhub/internal/events"
	"playhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestHandler(t *testing.T) (*Handler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.LobbyRoom{}, &models.PlayerDisconnect{}))
	return NewHandler(db, nil, nil), db
}

func actor(userID uint, username string) events.Actor {
	return events.Actor{UserID: userID, Username: username}
}

func TestDispatch_UnknownCommandIsFatal(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := h.Dispatch(context.Background(), Command{Kind: "not_a_real_command"})
	require.Error(t, err)
	herr, ok := err.(*HandlerError)
	require.True(t, ok)
	assert.Equal(t, Fatal, herr.Class)
}

func TestDispatch_CreateRoomSeatsHostAsFirstPlayer(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")

	result, err := h.Dispatch(context.Background(), Command{
		Kind:    CmdCreateRoom,
		Actor:   host,
		Payload: map[string]any{"player_count": 2, "room_name": "table one"},
	})
	require.NoError(t, err)
	roomID, ok := result.Response["room_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, roomID)

	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomWaiting, room.Status)
	assert.Equal(t, host.UserID, room.HostID)
	assert.Equal(t, []uint{host.UserID}, decodeUintSlice(room.SelectedPlayers))
}

func TestDispatch_CreateRoomRejectsOutOfRangePlayerCount(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := h.Dispatch(context.Background(), Command{
		Kind:    CmdCreateRoom,
		Actor:   actor(1, "host"),
		Payload: map[string]any{"player_count": 1},
	})
	require.Error(t, err)
	herr, ok := err.(*HandlerError)
	require.True(t, ok)
	assert.Equal(t, Fatal, herr.Class)
}

func createTestRoom(t *testing.T, h *Handler, host events.Actor, playerCount int) string {
	t.Helper()
	result, err := h.Dispatch(context.Background(), Command{
		Kind:    CmdCreateRoom,
		Actor:   host,
		Payload: map[string]any{"player_count": playerCount},
	})
	require.NoError(t, err)
	return result.Response["room_id"].(string)
}

func TestDispatch_JoinLobbyThenSelectPlayer(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)

	guest := actor(2, "guest")
	_, err := h.Dispatch(context.Background(), Command{Kind: CmdJoinLobby, RoomID: roomID, Actor: guest})
	require.NoError(t, err)

	_, err = h.Dispatch(context.Background(), Command{Kind: CmdSelectPlayer, RoomID: roomID, Actor: guest})
	require.NoError(t, err)

	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	assert.Contains(t, decodeUintSlice(room.SelectedPlayers), guest.UserID)
}

func TestDispatch_SelectPlayer_RejectsWhenRoomFull(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)

	guest := actor(2, "guest")
	extra := actor(3, "extra")
	require.NoError(t, joinAndSelect(h, roomID, guest))

	_, err := h.Dispatch(context.Background(), Command{Kind: CmdJoinLobby, RoomID: roomID, Actor: extra})
	require.NoError(t, err)
	_, err = h.Dispatch(context.Background(), Command{Kind: CmdSelectPlayer, RoomID: roomID, Actor: extra})
	require.Error(t, err)
	herr, ok := err.(*HandlerError)
	require.True(t, ok)
	assert.Equal(t, Fatal, herr.Class)
}

func joinAndSelect(h *Handler, roomID string, a events.Actor) error {
	if _, err := h.Dispatch(context.Background(), Command{Kind: CmdJoinLobby, RoomID: roomID, Actor: a}); err != nil {
		return err
	}
	_, err := h.Dispatch(context.Background(), Command{Kind: CmdSelectPlayer, RoomID: roomID, Actor: a})
	return err
}

// readyUp dispatches CmdSetReady for every currently selected player, the
// precondition transitionStartGame now requires before the host can start.
func readyUp(t *testing.T, h *Handler, roomID string) {
	t.Helper()
	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	for _, uid := range decodeUintSlice(room.SelectedPlayers) {
		_, err := h.Dispatch(context.Background(), Command{
			Kind: CmdSetReady, RoomID: roomID, Actor: events.Actor{UserID: uid},
			Payload: map[string]any{"ready": true},
		})
		require.NoError(t, err)
	}
}

func TestDispatch_SelectPlayer_SkipsDoubleSelect(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)

	_, err := h.Dispatch(context.Background(), Command{Kind: CmdSelectPlayer, RoomID: roomID, Actor: host})
	require.Error(t, err)
	herr, ok := err.(*HandlerError)
	require.True(t, ok)
	assert.Equal(t, Skip, herr.Class)
}

func TestDispatch_StartGame_RequiresHostAndFullSeats(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)
	guest := actor(2, "guest")

	_, err := h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: host})
	require.Error(t, err, "expected start_game to fail before the seat is full")

	require.NoError(t, joinAndSelect(h, roomID, guest))

	_, err = h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: guest})
	require.Error(t, err, "non-host should not be able to start the game")

	_, err = h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: host})
	require.Error(t, err, "expected start_game to fail before every seat has readied up")

	readyUp(t, h, roomID)

	result, err := h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: host})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "game_started", result.Events[0].EventType)

	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomInProgress, room.Status)
	assert.NotNil(t, room.CurrentTurn)
}

func TestDispatch_LeaveRoom_AbandonsWhenLastPlayerLeaves(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)
	guest := actor(2, "guest")
	require.NoError(t, joinAndSelect(h, roomID, guest))
	readyUp(t, h, roomID)
	_, err := h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: host})
	require.NoError(t, err)

	_, err = h.Dispatch(context.Background(), Command{Kind: CmdLeaveRoom, RoomID: roomID, Actor: host})
	require.NoError(t, err)
	_, err = h.Dispatch(context.Background(), Command{Kind: CmdLeaveRoom, RoomID: roomID, Actor: guest})
	require.NoError(t, err)

	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomAbandoned, room.Status)
	assert.False(t, room.IsActive)
}

func TestDispatch_JoinLobby_RejectsBannedUser(t *testing.T) {
	h, db := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)
	banned := actor(4, "troll")

	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	room.BannedUsers = encodeUintSlice([]uint{banned.UserID})
	require.NoError(t, db.Save(room).Error)
	h.store.Evict(roomID)

	_, err = h.Dispatch(context.Background(), Command{Kind: CmdJoinLobby, RoomID: roomID, Actor: banned})
	require.Error(t, err)
	herr, ok := err.(*HandlerError)
	require.True(t, ok)
	assert.Equal(t, Fatal, herr.Class)
}

func TestDispatch_ListRooms_ReportsRejoinRole(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)

	result, err := h.Dispatch(context.Background(), Command{Kind: CmdListRooms, Actor: host})
	require.NoError(t, err)
	rooms, ok := result.Response["rooms"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, rooms, 1)
	assert.Equal(t, roomID, rooms[0]["room_id"])
	assert.Equal(t, "host", rooms[0]["rejoin_role"])
}

func TestDispatch_ListRooms_HidesInProgressRoomFromNonMembers(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)
	guest := actor(2, "guest")
	require.NoError(t, joinAndSelect(h, roomID, guest))
	readyUp(t, h, roomID)
	_, err := h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: host})
	require.NoError(t, err)

	outsider := actor(9, "outsider")
	result, err := h.Dispatch(context.Background(), Command{Kind: CmdListRooms, Actor: outsider})
	require.NoError(t, err)
	rooms := result.Response["rooms"].([]map[string]any)
	assert.Len(t, rooms, 0)

	result, err = h.Dispatch(context.Background(), Command{Kind: CmdListRooms, Actor: host})
	require.NoError(t, err)
	rooms = result.Response["rooms"].([]map[string]any)
	require.Len(t, rooms, 1)
}

func TestDispatch_StartGame_RequiresAllSelectedPlayersReady(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)
	guest := actor(2, "guest")
	require.NoError(t, joinAndSelect(h, roomID, guest))

	_, err := h.Dispatch(context.Background(), Command{
		Kind: CmdSetReady, RoomID: roomID, Actor: host, Payload: map[string]any{"ready": true},
	})
	require.NoError(t, err)

	_, err = h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: host})
	require.Error(t, err, "guest has not readied up yet")

	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomWaiting, room.Status)

	_, err = h.Dispatch(context.Background(), Command{
		Kind: CmdSetReady, RoomID: roomID, Actor: guest, Payload: map[string]any{"ready": true},
	})
	require.NoError(t, err)

	room, err = h.store.Get(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStarting, room.Status)

	_, err = h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: host})
	require.NoError(t, err)
}

func TestDispatch_JoinAsSpectatorThenPromote(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)
	spectator := actor(5, "looker")

	_, err := h.Dispatch(context.Background(), Command{Kind: CmdJoinAsSpectator, RoomID: roomID, Actor: spectator})
	require.NoError(t, err)

	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	assert.Contains(t, decodeUintSlice(room.Spectators), spectator.UserID)

	_, err = h.Dispatch(context.Background(), Command{
		Kind: CmdPromoteSpectator, RoomID: roomID, Actor: host,
		Payload: map[string]any{"user_id": spectator.UserID},
	})
	require.NoError(t, err)

	room, err = h.store.Get(roomID)
	require.NoError(t, err)
	assert.Contains(t, decodeUintSlice(room.SelectedPlayers), spectator.UserID)
	assert.NotContains(t, decodeUintSlice(room.Spectators), spectator.UserID)
}

func TestDispatch_DemoteToSpectator_RejectsUnauthorizedActor(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 3)
	guest := actor(2, "guest")
	bystander := actor(3, "bystander")
	require.NoError(t, joinAndSelect(h, roomID, guest))
	require.NoError(t, joinAndSelect(h, roomID, bystander))

	_, err := h.Dispatch(context.Background(), Command{
		Kind: CmdDemoteToSpectator, RoomID: roomID, Actor: bystander,
		Payload: map[string]any{"user_id": guest.UserID},
	})
	require.Error(t, err, "a fellow player may not demote someone else")

	_, err = h.Dispatch(context.Background(), Command{
		Kind: CmdDemoteToSpectator, RoomID: roomID, Actor: host,
		Payload: map[string]any{"user_id": guest.UserID},
	})
	require.NoError(t, err, "the host may demote any selected player")
}

func TestDispatch_Chat_LobbyGateDoesNotBlockPlayersChannel(t *testing.T) {
	h, db := newTestHandler(t)
	require.NoError(t, db.Table("chat_messages").AutoMigrate(&models.ChatMessageDoc{}))
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)
	guest := actor(2, "guest")
	require.NoError(t, joinAndSelect(h, roomID, guest))
	readyUp(t, h, roomID)
	_, err := h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: host})
	require.NoError(t, err)

	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	assert.False(t, room.LobbyChatEnabled, "lobby chat should close once the game starts")

	_, err = h.Dispatch(context.Background(), Command{
		Kind: CmdSendChat, RoomID: roomID, Actor: host,
		Payload: map[string]any{"channel": string(models.ChannelPlayers), "content": "gg"},
	})
	require.NoError(t, err, "the players channel stays open even though lobby chat is closed")

	_, err = h.Dispatch(context.Background(), Command{
		Kind: CmdSendChat, RoomID: roomID, Actor: host,
		Payload: map[string]any{"channel": string(models.ChannelLobby), "content": "hi"},
	})
	require.Error(t, err, "lobby chat itself should now be closed")
}

func TestDispatch_VoteKick_RequiresUnanimity(t *testing.T) {
	h, _ := newTestHandler(t)
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 3)
	guest := actor(2, "guest")
	target := actor(3, "afk")
	require.NoError(t, joinAndSelect(h, roomID, guest))
	require.NoError(t, joinAndSelect(h, roomID, target))

	_, err := h.Dispatch(context.Background(), Command{
		Kind: CmdVoteKick, RoomID: roomID, Actor: host, Payload: map[string]any{"user_id": target.UserID},
	})
	require.NoError(t, err)

	room, err := h.store.Get(roomID)
	require.NoError(t, err)
	assert.Contains(t, decodeUintSlice(room.SelectedPlayers), target.UserID, "one vote should not be enough")

	result, err := h.Dispatch(context.Background(), Command{
		Kind: CmdVoteKick, RoomID: roomID, Actor: guest, Payload: map[string]any{"user_id": target.UserID},
	})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "player_kicked", result.Events[0].EventType)

	room, err = h.store.Get(roomID)
	require.NoError(t, err)
	assert.NotContains(t, decodeUintSlice(room.SelectedPlayers), target.UserID)
}

func TestDispatch_Roll_FinishesGameAndArchivesHistory(t *testing.T) {
	h, db := newTestHandler(t)
	require.NoError(t, db.Table("game_history").AutoMigrate(&models.GameHistory{}))
	host := actor(1, "host")
	roomID := createTestRoom(t, h, host, 2)
	guest := actor(2, "guest")
	require.NoError(t, joinAndSelect(h, roomID, guest))
	readyUp(t, h, roomID)
	_, err := h.Dispatch(context.Background(), Command{Kind: CmdStartGame, RoomID: roomID, Actor: host})
	require.NoError(t, err)

	// Force a deterministic outcome: pre-exhaust the tie-break cap so this
	// roll settles the game whether it wins or ties, regardless of the
	// random face it lands on.
	h.roundsMu.Lock()
	h.rounds[roomID] = &diceRound{Player1ID: host.UserID, Player2ID: guest.UserID, Player1Roll: 2, RoundsPlayed: maxAutoRollRounds}
	h.roundsMu.Unlock()

	result, err := h.Dispatch(context.Background(), Command{Kind: CmdRoll, RoomID: roomID, Actor: guest})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "game_finished", result.Events[0].EventType)

	_, err = h.store.Get(roomID)
	assert.Error(t, err, "the finished room's row should be hard-deleted")

	var count int64
	require.NoError(t, db.Table("game_history").Where("room_id = ?", roomID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
