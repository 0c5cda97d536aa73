package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tonemesh/backend/internal/errors"
	"github.com/tonemesh/backend/internal/logger"
	"github.com/tonemesh/backend/internal/models"
	"gorm.io/gorm"
)

type createPostRequest struct {
	UserID     string   `json:"user_id" binding:"required"`
	Title      string   `json:"title"`
	AuthorName string   `json:"author_name"`
	AudioURL   string   `json:"audio_url" binding:"required"`
	Duration   float64  `json:"duration"`
	BPM        int      `json:"bpm"`
	Key        string   `json:"key"`
	Genres     []string `json:"genres"`
}

// CreatePost publishes a new post to the feed
// POST /api/v1/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.BadRequest("invalid request body").WithDetails(err.Error()))
		return
	}

	post := &models.Post{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Title:      req.Title,
		AuthorName: req.AuthorName,
		AudioURL:   req.AudioURL,
		Duration:   req.Duration,
		BPM:        req.BPM,
		Key:        req.Key,
		Genres:     models.StringArray(req.Genres),
		IsPublic:   true,
	}

	if err := h.feed.Create(c.Request.Context(), post); err != nil {
		logger.ErrorWithFields("Failed to create post", err)
		respondError(c, errors.InternalError("Failed to create post"))
		return
	}

	// Cached feed pages are stale once a new post exists
	h.optimizer.InvalidateCache(c.Request.Context())

	logger.Log.Info("Post created", logger.WithPostID(post.ID))
	c.JSON(http.StatusCreated, post)
}

// GetPost returns a single public post
// GET /api/v1/posts/:id
func (h *Handlers) GetPost(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondError(c, errors.ValidationError("id", "post id is required"))
		return
	}

	post, err := h.feed.GetByID(c.Request.Context(), id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, errors.NotFound("post"))
			return
		}
		logger.ErrorWithFields("Failed to load post", err)
		respondError(c, errors.InternalError("Failed to load post"))
		return
	}

	c.JSON(http.StatusOK, post)
}
