// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"playhub/internal/models"

	"gorm.io/gorm"
)

// Options configures a demo-data seeding run.
type Options struct {
	NumUsers      int
	NumGameRooms  int
	NumLobbyRooms int
	ShouldClean   bool
	// DryRun builds entities in memory without writing to the database,
	// assigning synthetic IDs so callers can inspect the generated shape.
	DryRun bool
	// SkipBcrypt stores the demo password in cleartext to speed up large
	// seeding runs in local development.
	SkipBcrypt bool
	MaxDays    int
}

var (
	firstNames = []string{
		"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael", "Linda",
		"William", "Elizabeth", "David", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
		"Thomas", "Sarah", "Charles", "Karen", "Christopher", "Nancy", "Daniel", "Lisa",
		"Matthew", "Betty", "Anthony", "Margaret", "Mark", "Sandra", "Donald", "Ashley",
	}

	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
		"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson", "Thomas",
		"Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson", "White",
	}

	boardGameTypes = []models.GameType{
		models.ConnectFour, models.Othello, models.Battleship, models.Checkers,
	}

	roomNameAdjectives = []string{"Lucky", "Rolling", "High", "Midnight", "Golden", "Rowdy"}
	roomNameNouns       = []string{"Dice", "Table", "Lounge", "Arena", "Den", "Parlor"}
)

// Seed populates the database with demo users, board-game rooms, lobby
// rooms, and a sample competition. It is intended for development and
// integration-test fixtures, not production data.
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("seeding database with %d users, %d game rooms, %d lobby rooms...",
		opts.NumUsers, opts.NumGameRooms, opts.NumLobbyRooms)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Println("warning: could not clear all existing data, continuing anyway")
		}
	}

	f := NewFactory(db, opts)

	users, err := f.createUsers(opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("created %d demo users", len(users))

	if len(users) == 0 {
		return nil
	}

	rooms, err := f.createGameRooms(users, opts.NumGameRooms)
	if err != nil {
		return fmt.Errorf("failed to create game rooms: %w", err)
	}
	log.Printf("created %d board-game rooms", len(rooms))

	lobbies, err := f.createLobbyRooms(users, opts.NumLobbyRooms)
	if err != nil {
		return fmt.Errorf("failed to create lobby rooms: %w", err)
	}
	log.Printf("created %d lobby rooms", len(lobbies))

	competition, err := f.CreateCompetition(func(c *models.Competition) {
		c.Name = "Weekly Bigger Dice Showcase"
		c.EndDate = time.Now().Add(7 * 24 * time.Hour)
	})
	if err != nil {
		return fmt.Errorf("failed to create competition: %w", err)
	}
	for _, u := range users {
		if _, err := f.CreateCompetitionEntry(competition, &u); err != nil {
			return fmt.Errorf("failed to create competition entry: %w", err)
		}
	}
	log.Println("seeding completed successfully")
	return nil
}

// BuiltIns seeds the fixed, non-demo rows every environment needs to boot:
// the OAuth scope/API-product catalog guarding the galleries resource.
// It is idempotent and safe to run on every process start.
func BuiltIns(db *gorm.DB) error {
	scopes := []string{"galleries.read", "galleries.write", "galleries.delete"}
	for _, name := range scopes {
		scope := models.Scope{Name: name}
		if err := db.Where(models.Scope{Name: name}).FirstOrCreate(&scope).Error; err != nil {
			return fmt.Errorf("seed scope %q: %w", name, err)
		}
	}

	scopesJSON := `["galleries.read","galleries.write","galleries.delete"]`
	product := models.APIProduct{Key: "galleries"}
	if err := db.Where(models.APIProduct{Key: "galleries"}).
		Attrs(models.APIProduct{Scopes: scopesJSON}).
		FirstOrCreate(&product).Error; err != nil {
		return fmt.Errorf("seed galleries API product: %w", err)
	}
	return nil
}

func clearData(db *gorm.DB) error {
	log.Println("clearing existing demo data...")
	sql := `TRUNCATE TABLE competition_entries, competitions, lobby_rooms, game_rooms, users RESTART IDENTITY CASCADE;`
	return db.Exec(sql).Error
}

func generateRandomName() (string, string) {
	//nolint:gosec // weak RNG is fine for seeding
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return firstNames[r.Intn(len(firstNames))], lastNames[r.Intn(len(lastNames))]
}

func generateUsername(first, last string, salt int) string {
	return strings.ToLower(fmt.Sprintf("%s_%s%d", first, last, salt))
}

func generateRoomName() string {
	//nolint:gosec // weak RNG is fine for seeding
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return fmt.Sprintf("%s %s", roomNameAdjectives[r.Intn(len(roomNameAdjectives))], roomNameNouns[r.Intn(len(roomNameNouns))])
}

func (f *Factory) createUsers(count int) ([]models.User, error) {
	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		first, last := generateRandomName()
		username := generateUsername(first, last, i)
		user, err := f.CreateUser(func(u *models.User) {
			u.Username = username
			u.Email = fmt.Sprintf("%s@example.com", username)
			u.FirstName = first
			u.LastName = last
		})
		if err != nil {
			log.Printf("failed to create user %s: %v", username, err)
			continue
		}
		users = append(users, *user)
	}
	return users, nil
}

func (f *Factory) createGameRooms(users []models.User, count int) ([]models.GameRoom, error) {
	rooms := make([]models.GameRoom, 0, count)
	for i := 0; i < count; i++ {
		creator := users[i%len(users)]
		gameType := boardGameTypes[i%len(boardGameTypes)]
		room, err := f.CreateGameRoom(&creator, gameType, models.GamePending)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, nil
}

func (f *Factory) createLobbyRooms(users []models.User, count int) ([]models.LobbyRoom, error) {
	rooms := make([]models.LobbyRoom, 0, count)
	for i := 0; i < count; i++ {
		host := users[i%len(users)]
		room, err := f.CreateLobbyRoom(&host, func(r *models.LobbyRoom) {
			r.RoomName = generateRoomName()
		})
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, nil
}
