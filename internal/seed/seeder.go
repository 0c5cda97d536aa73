package seed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/tonemesh/backend/internal/logger"
	"github.com/tonemesh/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var genres = []string{
	"house", "techno", "drum-and-bass", "hip-hop", "lofi",
	"ambient", "trap", "dubstep", "synthwave", "jazz",
}

var keys = []string{
	"C major", "A minor", "G major", "E minor", "D major",
	"B minor", "F major", "D minor", "A major", "F# minor",
}

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// SeedPosts creates count fake public posts spread over the last 30 days
func (s *Seeder) SeedPosts(count int) error {
	start := time.Now()

	for i := 0; i < count; i++ {
		post := models.Post{
			ID:         uuid.NewString(),
			UserID:     uuid.NewString(),
			Title:      gofakeit.Sentence(3),
			AuthorName: gofakeit.Username(),
			AudioURL:   fmt.Sprintf("https://cdn.tonemesh.io/audio/%s.mp3", uuid.NewString()),
			Duration:   float64(rand.Intn(240) + 30),
			BPM:        rand.Intn(120) + 60,
			Key:        keys[rand.Intn(len(keys))],
			Genres:     randomGenres(),
			LikeCount:  rand.Intn(200),
			PlayCount:  rand.Intn(2000),
			IsPublic:   true,
			CreatedAt:  time.Now().Add(-time.Duration(rand.Intn(30*24)) * time.Hour),
		}

		if err := s.db.Create(&post).Error; err != nil {
			logger.Error("Failed to seed post",
				logger.WithPostID(post.ID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to create post %d: %w", i, err)
		}
	}

	logger.Log.Info("✅ Seeded posts",
		zap.Int("count", count),
		logger.WithDuration(time.Since(start)),
	)
	return nil
}

func randomGenres() models.StringArray {
	n := rand.Intn(3) + 1
	picked := make(models.StringArray, 0, n)
	for _, i := range rand.Perm(len(genres))[:n] {
		picked = append(picked, genres[i])
	}
	return picked
}
