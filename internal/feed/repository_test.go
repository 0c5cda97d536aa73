package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonemesh/backend/internal/models"
	"github.com/tonemesh/backend/internal/pagination"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Post{}))
	return db
}

func seedPosts(t *testing.T, db *gorm.DB, count int) {
	base := time.Now().Add(-time.Duration(count) * time.Minute)
	for i := 0; i < count; i++ {
		genre := "house"
		bpm := 124
		if i%3 == 0 {
			genre = "drum-and-bass"
			bpm = 174
		}
		post := models.Post{
			ID:         fmt.Sprintf("seed-%03d", i),
			UserID:     fmt.Sprintf("user-%02d", i%5),
			Title:      fmt.Sprintf("Loop %d", i),
			AuthorName: fmt.Sprintf("producer%d", i%5),
			AudioURL:   fmt.Sprintf("https://cdn.example.com/%d.mp3", i),
			BPM:        bpm,
			Key:        "A minor",
			Genres:     models.StringArray{genre},
			IsPublic:   true,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&post).Error)
	}
}

func TestRepositoryPaging(t *testing.T) {
	db := setupTestDB(t)
	seedPosts(t, db, 40)
	repo := NewRepository(db)
	ctx := context.Background()

	first, err := repo.Page(ctx, 1, 15, "", pagination.Filters{})
	require.NoError(t, err)
	assert.Len(t, first.Posts, 15)
	assert.Equal(t, 40, first.TotalCount)

	// Newest first
	assert.Equal(t, "seed-039", first.Posts[0].ID)

	second, err := repo.Page(ctx, 2, 15, "", pagination.Filters{})
	require.NoError(t, err)
	assert.Len(t, second.Posts, 15)

	third, err := repo.Page(ctx, 3, 15, "", pagination.Filters{})
	require.NoError(t, err)
	assert.Len(t, third.Posts, 10)

	// Pages do not overlap
	seen := map[string]bool{}
	for _, page := range [][]models.Post{first.Posts, second.Posts, third.Posts} {
		for _, p := range page {
			assert.False(t, seen[p.ID], "post %s returned twice", p.ID)
			seen[p.ID] = true
		}
	}
	assert.Len(t, seen, 40)
}

func TestRepositoryExcludesPrivatePosts(t *testing.T) {
	db := setupTestDB(t)
	seedPosts(t, db, 5)

	private := models.Post{
		ID:       "private-1",
		UserID:   "user-00",
		AudioURL: "https://cdn.example.com/private.mp3",
	}
	require.NoError(t, db.Create(&private).Error)
	// IsPublic carries a DB default of true, so flip it explicitly
	require.NoError(t, db.Model(&private).Update("is_public", false).Error)

	repo := NewRepository(db)
	res, err := repo.Page(context.Background(), 1, 20, "", pagination.Filters{})
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalCount)
	for _, p := range res.Posts {
		assert.NotEqual(t, "private-1", p.ID)
	}
}

func TestRepositoryFilters(t *testing.T) {
	db := setupTestDB(t)
	seedPosts(t, db, 30)
	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("bpm range", func(t *testing.T) {
		res, err := repo.Page(ctx, 1, 50, "", pagination.Filters{BPMMin: 170})
		require.NoError(t, err)
		assert.NotEmpty(t, res.Posts)
		for _, p := range res.Posts {
			assert.GreaterOrEqual(t, p.BPM, 170)
		}
	})

	t.Run("genre", func(t *testing.T) {
		res, err := repo.Page(ctx, 1, 50, "", pagination.Filters{Genres: []string{"drum-and-bass"}})
		require.NoError(t, err)
		assert.NotEmpty(t, res.Posts)
		for _, p := range res.Posts {
			assert.True(t, p.HasGenre("drum-and-bass"))
		}
	})

	t.Run("key", func(t *testing.T) {
		res, err := repo.Page(ctx, 1, 50, "", pagination.Filters{Key: "a minor"})
		require.NoError(t, err)
		assert.Equal(t, 30, res.TotalCount)
	})

	t.Run("search query", func(t *testing.T) {
		res, err := repo.Page(ctx, 1, 50, "Loop 1", pagination.Filters{})
		require.NoError(t, err)
		// Loop 1 plus Loop 10..19
		assert.Equal(t, 11, res.TotalCount)
	})

	t.Run("combined", func(t *testing.T) {
		res, err := repo.Page(ctx, 1, 50, "Loop", pagination.Filters{BPMMin: 170, Genres: []string{"drum-and-bass"}})
		require.NoError(t, err)
		for _, p := range res.Posts {
			assert.GreaterOrEqual(t, p.BPM, 170)
			assert.True(t, p.HasGenre("drum-and-bass"))
		}
	})
}

func TestRepositoryFetchSatisfiesFetchFunc(t *testing.T) {
	db := setupTestDB(t)
	seedPosts(t, db, 10)
	repo := NewRepository(db)

	var fetch pagination.FetchFunc = repo.Fetch
	res, err := fetch(context.Background(), 1, 5, "", pagination.Filters{})
	require.NoError(t, err)
	assert.Len(t, res.Posts, 5)
	assert.Equal(t, 10, res.TotalCount)
}
