package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonemesh/backend/internal/feed"
	"github.com/tonemesh/backend/internal/models"
	"github.com/tonemesh/backend/internal/pagination"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type feedPage struct {
	Posts      []models.Post `json:"posts"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	HasMore    bool          `json:"has_more"`
}

func setupRouter(t *testing.T, postCount int) (*gin.Engine, *pagination.Optimizer) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Post{}))

	for i := 0; i < postCount; i++ {
		post := models.Post{
			ID:         fmt.Sprintf("post-%03d", i),
			UserID:     "user-01",
			Title:      fmt.Sprintf("Track %d", i),
			AuthorName: "tester",
			AudioURL:   fmt.Sprintf("https://cdn.example.com/%d.mp3", i),
			BPM:        120 + i,
			Genres:     models.StringArray{"techno"},
			IsPublic:   true,
		}
		require.NoError(t, db.Create(&post).Error)
	}

	optimizer := pagination.NewOptimizer(pagination.DefaultOptions())
	h := NewHandlers(feed.NewRepository(db), optimizer)

	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/api/v1/feed", h.GetFeed)
	router.GET("/api/v1/feed/stats", h.GetFeedStats)
	router.GET("/api/v1/posts/:id", h.GetPost)
	router.POST("/api/v1/posts", h.CreatePost)
	return router, optimizer
}

func doRequest(t *testing.T, router *gin.Engine, url string) *httptest.ResponseRecorder {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetFeedFirstPage(t *testing.T) {
	router, _ := setupRouter(t, 40)

	w := doRequest(t, router, "/api/v1/feed?page=1&page_size=15")
	require.Equal(t, http.StatusOK, w.Code)

	var body feedPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Posts, 15)
	assert.Equal(t, 40, body.TotalCount)
	assert.Equal(t, 1, body.Page)
	assert.True(t, body.HasMore)
}

func TestGetFeedLastPage(t *testing.T) {
	router, _ := setupRouter(t, 40)

	w := doRequest(t, router, "/api/v1/feed?page=3&page_size=15")
	require.Equal(t, http.StatusOK, w.Code)

	var body feedPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Posts, 10)
	assert.False(t, body.HasMore)
}

func TestGetFeedDefaults(t *testing.T) {
	router, _ := setupRouter(t, 20)

	w := doRequest(t, router, "/api/v1/feed")
	require.Equal(t, http.StatusOK, w.Code)

	var body feedPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, 15, body.PageSize)
	assert.Len(t, body.Posts, 15)
}

func TestGetFeedValidation(t *testing.T) {
	router, _ := setupRouter(t, 5)

	cases := []struct {
		name string
		url  string
	}{
		{"zero page", "/api/v1/feed?page=0"},
		{"negative page", "/api/v1/feed?page=-1"},
		{"zero page size", "/api/v1/feed?page_size=0"},
		{"oversized page size", "/api/v1/feed?page_size=500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, router, tc.url)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body, "error")
		})
	}
}

func TestGetFeedFilters(t *testing.T) {
	router, _ := setupRouter(t, 30)

	w := doRequest(t, router, "/api/v1/feed?bpm_min=140&page_size=50")
	require.Equal(t, http.StatusOK, w.Code)

	var body feedPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Posts)
	for _, p := range body.Posts {
		assert.GreaterOrEqual(t, p.BPM, 140)
	}
}

func TestGetFeedUsesCache(t *testing.T) {
	router, optimizer := setupRouter(t, 20)

	first := doRequest(t, router, "/api/v1/feed?page=1&page_size=15")
	require.Equal(t, http.StatusOK, first.Code)
	second := doRequest(t, router, "/api/v1/feed?page=1&page_size=15")
	require.Equal(t, http.StatusOK, second.Code)

	assert.JSONEq(t, first.Body.String(), second.Body.String())

	stats := optimizer.Metrics().GetStats()
	assert.Equal(t, int64(1), stats["cache_hits"])
	assert.Equal(t, int64(1), stats["cache_misses"])
}

func TestGetFeedStats(t *testing.T) {
	router, _ := setupRouter(t, 5)

	doRequest(t, router, "/api/v1/feed")
	w := doRequest(t, router, "/api/v1/feed/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Contains(t, stats, "request_count")
	assert.Contains(t, stats, "cache_hit_rate")
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t, 0)

	w := doRequest(t, router, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
