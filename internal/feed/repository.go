// Package feed implements the backend collaborators of the pagination
// core: a gorm-backed post repository and an HTTP fetch client.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/tonemesh/backend/internal/logger"
	"github.com/tonemesh/backend/internal/models"
	"github.com/tonemesh/backend/internal/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repository serves feed pages from the database. It is the query layer the
// pagination core treats as an opaque collaborator.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a feed repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Page returns one page of public posts matching the query and filters,
// newest first, along with the total matching count
func (r *Repository) Page(ctx context.Context, page, pageSize int, query string, filters pagination.Filters) (pagination.FetchResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 15
	}

	start := time.Now()

	q := r.db.WithContext(ctx).Model(&models.Post{}).Where("is_public = ?", true)

	if query != "" {
		like := "%" + query + "%"
		q = q.Where("title LIKE ? OR author_name LIKE ?", like, like)
	}
	if filters.BPMMin > 0 {
		q = q.Where("bpm >= ?", filters.BPMMin)
	}
	if filters.BPMMax > 0 {
		q = q.Where("bpm <= ?", filters.BPMMax)
	}
	if filters.Key != "" {
		q = q.Where("LOWER(key) = LOWER(?)", filters.Key)
	}
	if len(filters.Genres) > 0 {
		// Genres are stored as a JSON array; match any requested genre
		genreQ := r.db.Where("1 = 0")
		for _, g := range filters.Genres {
			genreQ = genreQ.Or("genres LIKE ?", fmt.Sprintf(`%%"%s"%%`, g))
		}
		q = q.Where(genreQ)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.FetchResult{}, fmt.Errorf("failed to count feed posts: %w", err)
	}

	var posts []models.Post
	err := q.
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&posts).Error
	if err != nil {
		return pagination.FetchResult{}, fmt.Errorf("failed to load feed page: %w", err)
	}

	logger.Log.Debug("Feed page loaded",
		logger.WithPage(page),
		zap.Int("count", len(posts)),
		zap.Int64("total", total),
		logger.WithDuration(time.Since(start)),
	)

	return pagination.FetchResult{Posts: posts, TotalCount: int(total)}, nil
}

// Fetch adapts the repository to the pagination core's injected fetch
// signature
func (r *Repository) Fetch(ctx context.Context, page, pageSize int, query string, filters pagination.Filters) (pagination.FetchResult, error) {
	return r.Page(ctx, page, pageSize, query, filters)
}

// GetByID returns one public post, or gorm.ErrRecordNotFound
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_public = ?", id, true).
		First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Create inserts a post (seeding and tests)
func (r *Repository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// Ping reports whether the underlying database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
