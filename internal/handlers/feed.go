package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tonemesh/backend/internal/errors"
	"github.com/tonemesh/backend/internal/logger"
	"github.com/tonemesh/backend/internal/pagination"
	"github.com/tonemesh/backend/internal/util"
)

const maxPageSize = 100

// GetFeed returns one page of the public feed
// GET /api/v1/feed?page=1&page_size=15&q=&genres=&bpm_min=&bpm_max=&key=
func (h *Handlers) GetFeed(c *gin.Context) {
	page := util.ParseInt(c.DefaultQuery("page", "1"), 1)
	pageSize := util.ParseInt(c.DefaultQuery("page_size", "15"), 15)

	if page < 1 {
		respondError(c, errors.ValidationError("page", "page must be >= 1"))
		return
	}
	if pageSize < 1 || pageSize > maxPageSize {
		respondError(c, errors.ValidationError("page_size", "page_size must be between 1 and 100"))
		return
	}

	query := c.Query("q")
	filters := pagination.Filters{
		Genres: util.ParseGenres(c.Query("genres")),
		BPMMin: util.ParseInt(c.Query("bpm_min"), 0),
		BPMMax: util.ParseInt(c.Query("bpm_max"), 0),
		Key:    c.Query("key"),
	}

	key := pagination.RequestKey(page, pageSize, query, filters)
	result, err := h.optimizer.OptimizeRequest(c.Request.Context(), key, func(ctx context.Context) (pagination.FetchResult, error) {
		return h.feed.Page(ctx, page, pageSize, query, filters)
	})
	if err != nil {
		logger.ErrorWithFields("Failed to load feed page", err)
		if stderrors.Is(err, context.DeadlineExceeded) {
			respondError(c, errors.Timeout("feed query"))
			return
		}
		respondError(c, errors.InternalError("Failed to load feed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts":       result.Posts,
		"total_count": result.TotalCount,
		"page":        page,
		"page_size":   pageSize,
		"has_more":    page*pageSize < result.TotalCount,
	})
}

// GetFeedStats returns the optimizer's advisory performance metrics
// GET /api/v1/feed/stats
func (h *Handlers) GetFeedStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.optimizer.Metrics().GetStats())
}

// Health reports liveness and database reachability
// GET /health
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.feed.Ping(ctx); err != nil {
		logger.ErrorWithFields("Health check failed", err)
		respondError(c, errors.ServiceUnavailable("database"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
