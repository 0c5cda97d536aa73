package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"github.com/tonemesh/backend/internal/database"
	"github.com/tonemesh/backend/internal/logger"
	"github.com/tonemesh/backend/internal/seed"
)

func main() {
	count := flag.Int("count", 120, "number of posts to seed")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	if err := logger.Initialize("info", "seed.log"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	seeder := seed.NewSeeder(database.DB)
	if err := seeder.SeedPosts(*count); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d posts", *count)
}
