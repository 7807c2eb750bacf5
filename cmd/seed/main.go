// Command main runs the database seeder for PlayHub.
package main

import (
	"flag"
	"log"
	"playhub/internal/config"
	"playhub/internal/database"
	"playhub/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numGameRooms := flag.Int("game-rooms", 20, "Number of board-game rooms to create")
	numLobbyRooms := flag.Int("lobby-rooms", 10, "Number of lobby rooms to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("Database Seeder")
	log.Println("===============")
	log.Printf("Target: %d users, %d game rooms, %d lobby rooms, clean=%v\n",
		*numUsers, *numGameRooms, *numLobbyRooms, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if _, err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.BuiltIns(database.DB); err != nil {
		log.Fatalf("Failed to seed built-ins: %v", err)
	}

	opts := seed.Options{
		NumUsers:      *numUsers,
		NumGameRooms:  *numGameRooms,
		NumLobbyRooms: *numLobbyRooms,
		ShouldClean:   *shouldClean,
	}

	if err := seed.Seed(database.DB, opts); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("All done! Your database is now populated with test data.")
	log.Println("All test users have the password: password123")
}
