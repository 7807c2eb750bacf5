package gamecommand

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"playhub/internal/models"
	"playhub/internal/observability"

	"gorm.io/gorm"
)

var roomStoreLogger = observability.NewRepoLogger("lobby_rooms")

// RoomStore caches active LobbyRoom rows in memory, keyed by room_id, falling
// back to the database on a cache miss. This mirrors GameHub's
// mutex-guarded `rooms`/`userRooms` maps (internal/notifications/game_hub.go)
// generalized from websocket connection sets to full room state, since the
// lobby engine needs the whole row (not just a connection list) to decide
// every transition.
type RoomStore struct {
	mu    sync.RWMutex
	cache map[string]*models.LobbyRoom
	db    *gorm.DB
}

// NewRoomStore creates an empty, database-backed RoomStore.
func NewRoomStore(db *gorm.DB) *RoomStore {
	return &RoomStore{cache: make(map[string]*models.LobbyRoom), db: db}
}

// Get returns the cached room, loading it from the database on a miss.
func (s *RoomStore) Get(roomID string) (*models.LobbyRoom, error) {
	s.mu.RLock()
	room, ok := s.cache[roomID]
	s.mu.RUnlock()
	if ok {
		return room, nil
	}

	var loaded models.LobbyRoom
	if err := s.db.Where("room_id = ?", roomID).First(&loaded).Error; err != nil {
		roomStoreLogger.LogError(context.Background(), err, "read")
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}

	s.mu.Lock()
	s.cache[roomID] = &loaded
	s.mu.Unlock()
	return &loaded, nil
}

// Put persists room to the database and refreshes the cache entry.
func (s *RoomStore) Put(room *models.LobbyRoom) error {
	if err := s.db.Save(room).Error; err != nil {
		roomStoreLogger.LogError(context.Background(), err, "update")
		return fmt.Errorf("save room %s: %w", room.RoomID, err)
	}
	roomStoreLogger.LogUpdate(context.Background(), map[string]any{"room_id": room.RoomID, "status": room.Status})
	s.mu.Lock()
	s.cache[room.RoomID] = room
	s.mu.Unlock()
	return nil
}

// Evict drops a room from the cache, used once a room completes and its
// row has been hard-deleted.
func (s *RoomStore) Evict(roomID string) {
	s.mu.Lock()
	delete(s.cache, roomID)
	s.mu.Unlock()
}

// decodeUintSlice unmarshals one of LobbyRoom's JSON-array-of-uint columns.
func decodeUintSlice(raw string) []uint {
	if raw == "" {
		return nil
	}
	var out []uint
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeUintSlice(v []uint) string {
	if v == nil {
		v = []uint{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeMemberRefs(raw string) []models.MemberRef {
	if raw == "" {
		return nil
	}
	var out []models.MemberRef
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeMemberRefs(v []models.MemberRef) string {
	if v == nil {
		v = []models.MemberRef{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// decodeVoteKicks unmarshals LobbyRoom.VoteKicks, a kick-target user ID
// mapped to the set of user IDs who have voted to kick them.
func decodeVoteKicks(raw string) map[uint][]uint {
	out := make(map[uint][]uint)
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	if out == nil {
		out = make(map[uint][]uint)
	}
	return out
}

func encodeVoteKicks(v map[uint][]uint) string {
	if v == nil {
		v = make(map[uint][]uint)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func containsUint(set []uint, v uint) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

func removeUint(set []uint, v uint) []uint {
	out := make([]uint, 0, len(set))
	for _, x := range set {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
