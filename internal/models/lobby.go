package models

import "time"

// LobbyRoomStatus is the closed set of room state-machine states.
type LobbyRoomStatus string

const (
	RoomWaiting    LobbyRoomStatus = "waiting"
	RoomStarting   LobbyRoomStatus = "starting"
	RoomInProgress LobbyRoomStatus = "in_progress"
	RoomFinished   LobbyRoomStatus = "finished"
	RoomAbandoned  LobbyRoomStatus = "abandoned"
)

// LobbyGameType is the closed set of games the event-driven engine runs.
// This is distinct from GameType, which names the older synchronous
// two-player board games (connect4/othello/battleship/checkers);
// the lobby engine currently hosts one game, Bigger Dice, with room for more.
type LobbyGameType string

const (
	BiggerDice LobbyGameType = "bigger_dice"
)

const (
	MinPlayerCount = 2
	MaxPlayerCount = 10
)

// MemberRef is a JSON-array element carrying just enough display data to
// render a rejoin screen without a join query.
type MemberRef struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Ready    bool   `json:"ready,omitempty"`
}

// LobbyRoom is the authoritative row for one event-engine multiplayer room.
// Unordered sets (players, lobby, spectators, banned_users) are stored as
// JSON arrays with insertion order preserved, generalizing the
// GameRoom.CurrentState JSON-column convention to several named fields
// instead of one opaque blob.
type LobbyRoom struct {
	ID                  uint            `gorm:"primaryKey" json:"-"`
	RoomID              string          `gorm:"uniqueIndex;not null" json:"room_id"` // uuid
	RoomName            string          `gorm:"index" json:"room_name"`
	GameType            LobbyGameType   `gorm:"not null" json:"game_type"`
	Status              LobbyRoomStatus `gorm:"index;not null;default:'waiting'" json:"status"`
	HostID              uint            `gorm:"not null" json:"host_id"`
	PasswordHash        string          `json:"-"`
	PlayerCount         int             `gorm:"not null" json:"player_count"`
	AllowSpectators     bool            `gorm:"default:true" json:"allow_spectators"`
	MaxSpectators       int             `gorm:"default:20" json:"max_spectators"`
	AdminSpectatorID    *uint           `json:"admin_spectator_id,omitempty"`
	LobbyChatEnabled    bool            `gorm:"default:true" json:"lobby_chat_enabled"`
	Players             string          `gorm:"type:json" json:"-"` // JSON []MemberRef
	Lobby               string          `gorm:"type:json" json:"-"` // JSON []MemberRef
	SelectedPlayers      string         `gorm:"type:json" json:"-"` // JSON []uint
	Spectators          string          `gorm:"type:json" json:"-"` // JSON []uint
	SpectatorsData      string          `gorm:"type:json" json:"-"` // JSON []MemberRef
	BannedUsers         string          `gorm:"type:json" json:"-"` // JSON []uint
	RecordedPlayers     string          `gorm:"type:json" json:"-"` // JSON []uint
	RecordedSpectators  string          `gorm:"type:json" json:"-"` // JSON []uint
	AutoPlayers         string          `gorm:"type:json" json:"-"` // JSON []uint, selected players currently on auto-play
	VoteKicks           string          `gorm:"type:json" json:"-"` // JSON map[uint][]uint, kick target -> voter user ids
	CurrentTurn         *uint           `json:"current_turn,omitempty"`
	TurnNumber          int             `gorm:"default:0" json:"turn_number"`
	IsActive            bool            `gorm:"default:true" json:"is_active"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	FinishedAt          *time.Time      `json:"finished_at,omitempty"`
	WinnerID            *uint           `json:"winner_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// PlayerDisconnect records a pending or resolved disconnect window for one
// (room, user) pair. At most one pending row (!Deselected && !Reconnected)
// may exist per pair.
type PlayerDisconnect struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	RoomID         string     `gorm:"index:idx_room_user,unique;not null" json:"room_id"`
	UserID         uint       `gorm:"index:idx_room_user,unique;not null" json:"user_id"`
	DisconnectedAt time.Time  `json:"disconnected_at"`
	TimeoutSeconds int        `gorm:"default:30" json:"timeout_seconds"`
	Deselected     bool       `gorm:"default:false" json:"deselected"`
	Reconnected    bool       `gorm:"default:false" json:"reconnected"`
}

// TimeoutAt is the instant after which the target becomes kick-eligible.
func (d *PlayerDisconnect) TimeoutAt() time.Time {
	return d.DisconnectedAt.Add(time.Duration(d.TimeoutSeconds) * time.Second)
}

// Pending reports whether the disconnect has not yet resolved either way.
func (d *PlayerDisconnect) Pending() bool {
	return !d.Deselected && !d.Reconnected
}

// UserMute is a per-viewer mute entry. A nil RoomID mutes globally across
// every room; a set RoomID scopes the mute to one room.
type UserMute struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	MuterID uint   `gorm:"index:idx_mute,unique;not null" json:"muter_id"`
	MuteeID uint   `gorm:"index:idx_mute,unique;not null" json:"mutee_id"`
	RoomID  string `gorm:"index:idx_mute,unique" json:"room_id,omitempty"`
}

// ChatChannel is the closed set of per-room chat channels.
type ChatChannel string

const (
	ChannelLobby      ChatChannel = "lobby"
	ChannelPlayers    ChatChannel = "players"
	ChannelSpectators ChatChannel = "spectators"
)

// ChatMessageDoc is an append-only document-store record of one chat line.
type ChatMessageDoc struct {
	RoomID      string      `json:"room_id"`
	Channel     ChatChannel `json:"channel"`
	UserID      uint        `json:"user_id"`
	Username    string      `json:"username"`
	Content     string      `json:"content"`
	IsSystem    bool        `json:"is_system"`
	IsModerated bool        `json:"is_moderated"`
	Timestamp   time.Time   `json:"timestamp"`
}

// TurnRecord captures one completed turn for the history snapshot's ordered
// turn list, when the game rule captures turn-by-turn detail.
type TurnRecord struct {
	UserID    uint      `json:"user_id"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// GameHistory is the immutable document-store snapshot written when a room
// completes; the active LobbyRoom row is hard-deleted once this is durable.
type GameHistory struct {
	RoomID              string        `json:"room_id"`
	GameType            LobbyGameType `json:"game_type"`
	PlayersWithFinalScore []PlayerScore `json:"players_with_final_score"`
	WinnerID            *uint         `json:"winner_id,omitempty"`
	Turns               []TurnRecord  `json:"turns,omitempty"`
	StartedAt           time.Time     `json:"started_at"`
	EndedAt             time.Time     `json:"ended_at"`
}

// PlayerScore pairs a player with their final score in a finished game.
type PlayerScore struct {
	UserID uint `json:"user_id"`
	Score  int  `json:"score"`
}

// BiggerDiceRoundState is transient, in-memory-only per-room round state for
// the Bigger Dice rule. It is never persisted to the relational store or
// the document store, so a process restart loses it.
type BiggerDiceRoundState struct {
	Player1ID         uint
	Player2ID         uint
	LastPlayer1Roll   *int
	LastPlayer2Roll   *int
	Player1Score      int
	Player2Score      int
}
