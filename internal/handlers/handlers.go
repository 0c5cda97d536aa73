package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/tonemesh/backend/internal/errors"
	"github.com/tonemesh/backend/internal/feed"
	"github.com/tonemesh/backend/internal/pagination"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	feed      *feed.Repository
	optimizer *pagination.Optimizer
}

// NewHandlers creates a new handlers instance
func NewHandlers(repo *feed.Repository, optimizer *pagination.Optimizer) *Handlers {
	return &Handlers{
		feed:      repo,
		optimizer: optimizer,
	}
}

// respondError writes a standardized API error
func respondError(c *gin.Context, apiErr *errors.APIError) {
	status := apiErr.Status
	if status == 0 {
		status = apiErr.Code.StatusCode()
	}
	c.JSON(status, gin.H{"error": apiErr})
}
