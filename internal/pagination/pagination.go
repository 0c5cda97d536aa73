// Package pagination implements the unified Load-More system for the feed:
// a state manager that switches between server-side and client-side
// pagination, a state machine gating the Load-More control, a strategy
// handler, and a request/memory optimizer.
package pagination

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tonemesh/backend/internal/models"
)

// Mode is the active pagination mode
type Mode string

const (
	// ModeServer pages are fetched from the backend on demand
	ModeServer Mode = "server"
	// ModeClient all candidate posts are in memory; loading more reveals
	// more of the in-memory set
	ModeClient Mode = "client"
)

// Strategy is the action a load-more invocation takes
type Strategy string

const (
	StrategyServerFetch  Strategy = "server-fetch"
	StrategyClientReveal Strategy = "client-reveal"
)

// AutoFetchPolicy controls what happens when a client-side filter leaves
// fewer visible results than MinResultsForFilter while the server may still
// hold matching posts.
type AutoFetchPolicy int

const (
	// AutoFetchAuto emits a request on the manager's AutoFetch channel
	AutoFetchAuto AutoFetchPolicy = iota
	// AutoFetchPrompt only raises State.AutoFetchSuggested so the UI can
	// offer a "load more to see additional matches" affordance
	AutoFetchPrompt
)

// Sentinel errors surfaced as benign results, never as panics
var (
	// ErrAlreadyLoading means a load-more was triggered while another was
	// in flight; the trigger is a no-op
	ErrAlreadyLoading = errors.New("load more already in progress")
	// ErrNoMorePosts means there is nothing left to load in either mode
	ErrNoMorePosts = errors.New("no more posts to load")
	// ErrFetchTimeout is raised by the watchdog when a server fetch never
	// settles the state machine
	ErrFetchTimeout = errors.New("load more fetch timed out")
)

// Options configures a pagination instance. Zero fields take defaults.
type Options struct {
	PostsPerPage        int
	MinResultsForFilter int
	MaxAutoFetchPosts   int
	FetchTimeout        time.Duration
	MaxMemoryPosts      int
	CacheSize           int
	CacheTTL            time.Duration
	AutoFetchPolicy     AutoFetchPolicy
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		PostsPerPage:        15,
		MinResultsForFilter: 10,
		MaxAutoFetchPosts:   100,
		FetchTimeout:        10 * time.Second,
		MaxMemoryPosts:      500,
		CacheSize:           100,
		CacheTTL:            5 * time.Minute,
		AutoFetchPolicy:     AutoFetchAuto,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PostsPerPage <= 0 {
		o.PostsPerPage = def.PostsPerPage
	}
	if o.MinResultsForFilter <= 0 {
		o.MinResultsForFilter = def.MinResultsForFilter
	}
	if o.MaxAutoFetchPosts <= 0 {
		o.MaxAutoFetchPosts = def.MaxAutoFetchPosts
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = def.FetchTimeout
	}
	if o.MaxMemoryPosts <= 0 {
		o.MaxMemoryPosts = def.MaxMemoryPosts
	}
	if o.CacheSize <= 0 {
		o.CacheSize = def.CacheSize
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = def.CacheTTL
	}
	return o
}

// Filters is the feed filter set. The zero value means "no filtering".
type Filters struct {
	Genres []string `json:"genres,omitempty"`
	BPMMin int      `json:"bpm_min,omitempty"`
	BPMMax int      `json:"bpm_max,omitempty"`
	Key    string   `json:"key,omitempty"`
}

// IsZero reports whether no filter dimension is active
func (f Filters) IsZero() bool {
	return len(f.Genres) == 0 && f.BPMMin == 0 && f.BPMMax == 0 && f.Key == ""
}

// Match reports whether a post passes every active filter dimension
func (f Filters) Match(p *models.Post) bool {
	if len(f.Genres) > 0 {
		found := false
		for _, g := range f.Genres {
			if p.HasGenre(g) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.BPMMin > 0 && p.BPM < f.BPMMin {
		return false
	}
	if f.BPMMax > 0 && p.BPM > f.BPMMax {
		return false
	}
	if f.Key != "" && !strings.EqualFold(f.Key, p.Key) {
		return false
	}
	return true
}

// FetchResult is one page of posts from the backend collaborator
type FetchResult struct {
	Posts      []models.Post `json:"posts"`
	TotalCount int           `json:"total_count"`
}

// FetchFunc is the injected backend fetch. Implementations perform the
// actual query; the pagination core never constructs queries itself.
type FetchFunc func(ctx context.Context, page, pageSize int, query string, filters Filters) (FetchResult, error)
