// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"playhub/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by seed presets and tests.
type Factory struct {
	db   *gorm.DB
	opts Options
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{db: db, opts: opts, nextID: 1000}
}

func encodeJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// CreateUser constructs and persists a sample `models.User`.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	username := gofakeit.Username()
	user := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Bio:      gofakeit.Sentence(10),
		Avatar:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
	}

	if f.opts.SkipBcrypt {
		user.Password = "password123"
	} else {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		user.Password = string(hashedPassword)
	}

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		log.Printf("[dry-run] CreateUser: %+v", user)
		return user, nil
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateGameRoom constructs and persists a `models.GameRoom` with the given
// creator, type and status.
func (f *Factory) CreateGameRoom(creator *models.User, gameType models.GameType, status models.GameStatus, overrides ...func(*models.GameRoom)) (*models.GameRoom, error) {
	room := &models.GameRoom{
		Type:      gameType,
		Status:    status,
		CreatorID: &creator.ID,
	}

	for _, override := range overrides {
		override(room)
	}

	if f.opts.DryRun {
		f.nextID++
		room.ID = f.nextID
		log.Printf("[dry-run] CreateGameRoom: type=%s creator=%d", room.Type, creator.ID)
		return room, nil
	}

	if err := f.db.Create(room).Error; err != nil {
		return nil, err
	}
	return room, nil
}

// CreateLobbyRoom constructs and persists a `models.LobbyRoom` hosted by the
// given user, matching the shape gamecommand's transitionCreateRoom writes.
func (f *Factory) CreateLobbyRoom(host *models.User, overrides ...func(*models.LobbyRoom)) (*models.LobbyRoom, error) {
	hostRef := models.MemberRef{UserID: host.ID, Username: host.Username, Avatar: host.Avatar}
	room := &models.LobbyRoom{
		RoomID:           uuid.NewString(),
		RoomName:         fmt.Sprintf("%s's room", host.Username),
		GameType:         models.BiggerDice,
		Status:           models.RoomWaiting,
		HostID:           host.ID,
		PlayerCount:      4,
		AllowSpectators:  true,
		MaxSpectators:    20,
		LobbyChatEnabled: true,
		Players:          encodeJSON([]models.MemberRef{}),
		Lobby:            encodeJSON([]models.MemberRef{hostRef}),
		SelectedPlayers:  encodeJSON([]uint{}),
		Spectators:       encodeJSON([]uint{}),
		SpectatorsData:   encodeJSON([]models.MemberRef{}),
		BannedUsers:      encodeJSON([]uint{}),
		RecordedPlayers:  encodeJSON([]uint{}),
		RecordedSpectators: encodeJSON([]uint{}),
		IsActive:         true,
	}

	for _, override := range overrides {
		override(room)
	}

	if f.opts.DryRun {
		f.nextID++
		room.ID = f.nextID
		log.Printf("[dry-run] CreateLobbyRoom: room_id=%s host=%d", room.RoomID, host.ID)
		return room, nil
	}

	if err := f.db.Create(room).Error; err != nil {
		return nil, err
	}
	return room, nil
}

// CreateCompetition constructs and persists a `models.Competition`.
func (f *Factory) CreateCompetition(overrides ...func(*models.Competition)) (*models.Competition, error) {
	competition := &models.Competition{
		Name:            gofakeit.Sentence(3),
		EndDate:         time.Now().Add(30 * 24 * time.Hour),
		PrizeMinorUnits: 5000,
	}

	for _, override := range overrides {
		override(competition)
	}

	if f.opts.DryRun {
		f.nextID++
		competition.ID = f.nextID
		log.Printf("[dry-run] CreateCompetition: %s", competition.Name)
		return competition, nil
	}

	if err := f.db.Create(competition).Error; err != nil {
		return nil, err
	}
	return competition, nil
}

// CreateCompetitionEntry constructs and persists a `models.CompetitionEntry`
// submitted by user into competition.
func (f *Factory) CreateCompetitionEntry(competition *models.Competition, user *models.User, overrides ...func(*models.CompetitionEntry)) (*models.CompetitionEntry, error) {
	//nolint:gosec // weak RNG is fine for seeding
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	entry := &models.CompetitionEntry{
		CompetitionID:   competition.ID,
		UserID:          user.ID,
		LikesCount:      r.Intn(200),
		AdminVotesCount: r.Intn(10),
	}

	for _, override := range overrides {
		override(entry)
	}

	if f.opts.DryRun {
		f.nextID++
		entry.ID = f.nextID
		log.Printf("[dry-run] CreateCompetitionEntry: competition=%d user=%d", competition.ID, user.ID)
		return entry, nil
	}

	if err := f.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateOAuthClient constructs and persists a `models.OAuthClient` owned by
// the given user, with a single localhost redirect URI for local testing.
func (f *Factory) CreateOAuthClient(owner *models.User, overrides ...func(*models.OAuthClient)) (*models.OAuthClient, error) {
	client := &models.OAuthClient{
		ClientID:          uuid.NewString(),
		ClientType:        models.OAuthClientPublic,
		OwnerUserID:       owner.ID,
		RedirectURIs:      encodeJSON([]string{"http://localhost:3000/oauth/callback"}),
		AuthorizedDomains: encodeJSON([]string{"localhost"}),
	}

	for _, override := range overrides {
		override(client)
	}

	if f.opts.DryRun {
		f.nextID++
		client.ID = f.nextID
		log.Printf("[dry-run] CreateOAuthClient: client_id=%s owner=%d", client.ClientID, owner.ID)
		return client, nil
	}

	if err := f.db.Create(client).Error; err != nil {
		return nil, err
	}
	return client, nil
}
