package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tonemesh/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// Initialize creates and configures the database connection.
// DATABASE_URL selects PostgreSQL; without it the server falls back to a
// local SQLite file (SQLITE_PATH, default tonemesh.db) for development.
func Initialize() error {
	gormLogger := logger.Default
	if os.Getenv("ENVIRONMENT") == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	cfg := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)

	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		db, err = gorm.Open(postgres.Open(databaseURL), cfg)
	} else {
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "tonemesh.db"
		}
		db, err = gorm.Open(sqlite.Open(path), cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	log.Println("✅ Database connected successfully")

	return nil
}

// Migrate runs auto-migration for all models
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := DB.AutoMigrate(&models.Post{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Composite index backing the default feed ordering
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_posts_public_created ON posts (is_public, created_at DESC)")

	log.Println("✅ Database migrations completed")
	return nil
}
