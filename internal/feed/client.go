package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tonemesh/backend/internal/models"
	"github.com/tonemesh/backend/internal/pagination"
)

// Client fetches feed pages over HTTP from a running tonemesh server. Its
// Fetch method satisfies pagination.FetchFunc, so UI processes can drive
// the pagination core against a remote backend.
type Client struct {
	http *resty.Client
}

// NewClient creates a feed HTTP client for the given base URL
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second).
			SetRetryCount(2).
			SetHeader("Accept", "application/json"),
	}
}

type feedResponse struct {
	Posts      []models.Post `json:"posts"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	HasMore    bool          `json:"has_more"`
}

// Fetch retrieves one feed page; it implements pagination.FetchFunc
func (c *Client) Fetch(ctx context.Context, page, pageSize int, query string, filters pagination.Filters) (pagination.FetchResult, error) {
	params := map[string]string{
		"page":      strconv.Itoa(page),
		"page_size": strconv.Itoa(pageSize),
	}
	if query != "" {
		params["q"] = query
	}
	if len(filters.Genres) > 0 {
		params["genres"] = strings.Join(filters.Genres, ",")
	}
	if filters.BPMMin > 0 {
		params["bpm_min"] = strconv.Itoa(filters.BPMMin)
	}
	if filters.BPMMax > 0 {
		params["bpm_max"] = strconv.Itoa(filters.BPMMax)
	}
	if filters.Key != "" {
		params["key"] = filters.Key
	}

	var body feedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		Get("/api/v1/feed")
	if err != nil {
		return pagination.FetchResult{}, fmt.Errorf("feed request failed: %w", err)
	}
	if resp.IsError() {
		return pagination.FetchResult{}, fmt.Errorf("feed request failed: %s", resp.Status())
	}

	return pagination.FetchResult{
		Posts:      body.Posts,
		TotalCount: body.TotalCount,
	}, nil
}
