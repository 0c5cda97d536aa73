package pagination

import (
	"fmt"
	"sync"
	"time"

	"github.com/tonemesh/backend/internal/logger"
	"github.com/tonemesh/backend/internal/metrics"
	"github.com/tonemesh/backend/internal/models"
	"go.uber.org/zap"
)

// Metadata is diagnostic state; never read for correctness
type Metadata struct {
	LastFetchAt  time.Time `json:"last_fetch_at"`
	CurrentBatch int       `json:"current_batch"`
}

// State is a point-in-time snapshot of the pagination state. Subscribers
// receive a copy; the contained slices must be treated as read-only.
type State struct {
	AllPosts       []models.Post
	DisplayPosts   []models.Post
	PaginatedPosts []models.Post

	CurrentPage  int
	PostsPerPage int

	Mode     Mode
	Strategy Strategy

	TotalPostsCount int
	HasMorePosts    bool

	IsSearchActive bool
	SearchQuery    string
	Filters        Filters

	// AutoFetchSuggested is raised under AutoFetchPrompt when a filtered
	// view is under-filled but the server may hold more matches
	AutoFetchSuggested bool

	Metadata Metadata
}

// TotalFilteredPosts is the number of posts passing the active predicate
func (s State) TotalFilteredPosts() int {
	return len(s.DisplayPosts)
}

// CurrentlyShowing is the number of posts currently rendered
func (s State) CurrentlyShowing() int {
	return len(s.PaginatedPosts)
}

// AutoFetchRequest asks the owning collaborator to fetch more server data
// and refilter, because the filtered view is under-filled.
type AutoFetchRequest struct {
	Have     int // posts currently passing the filter
	Want     int // MinResultsForFilter
	NextPage int // page the collaborator should fetch
	Query    string
	Filters  Filters
}

// UpdatePostsParams are the arguments to UpdatePosts
type UpdatePostsParams struct {
	NewPosts []models.Post
	// TotalCount is the backend's source-of-truth count; values <= 0 keep
	// the previous count
	TotalCount int
	// ResetPagination replaces the post set (fresh page load); false
	// appends a load-more continuation
	ResetPagination bool
	// UpdateMetadata stamps LastFetchAt and advances CurrentBatch
	UpdateMetadata bool
}

// Listener receives state snapshots on every mutation
type Listener func(State)

// Manager is the single source of truth for the post collection, the
// current page, and the pagination mode. All mutation goes through its
// methods. Listeners run synchronously on the mutating goroutine, in
// registration order, and must not call back into the Manager.
type Manager struct {
	mu sync.Mutex

	opts Options

	allPosts      []models.Post
	searchResults []models.Post // working set while a search is active
	displayPosts  []models.Post

	currentPage int
	serverTotal int

	searchQuery    string
	isSearchActive bool
	filters        Filters

	autoFetchSuggested bool
	metadata           Metadata

	autoFetchCh chan AutoFetchRequest

	nextListenerID int
	listenerOrder  []int
	listeners      map[int]Listener
}

// NewManager creates a pagination manager with the given options
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:        opts.withDefaults(),
		currentPage: 1,
		autoFetchCh: make(chan AutoFetchRequest, 1),
		listeners:   map[int]Listener{},
	}
}

// Options returns the effective options
func (m *Manager) Options() Options {
	return m.opts
}

// AutoFetch exposes the auto-fetch side channel. Under AutoFetchAuto the
// manager emits a request here whenever a filter change leaves the view
// under-filled; sends never block (buffer of one, latest wins).
func (m *Manager) AutoFetch() <-chan AutoFetchRequest {
	return m.autoFetchCh
}

// Subscribe registers a listener and returns an unsubscribe function
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = l
	m.listenerOrder = append(m.listenerOrder, id)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
		for i, v := range m.listenerOrder {
			if v == id {
				m.listenerOrder = append(m.listenerOrder[:i], m.listenerOrder[i+1:]...)
				break
			}
		}
	}
}

// Snapshot returns the current state
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// UpdatePosts merges or replaces the post collection. Continuations append
// and deduplicate by post ID; resets replace the set wholesale. The post
// buffer is trimmed to MaxMemoryPosts, keeping the newest window.
func (m *Manager) UpdatePosts(params UpdatePostsParams) {
	m.mu.Lock()

	if params.ResetPagination {
		m.allPosts = dedupePosts(nil, params.NewPosts)
		m.currentPage = 1
	} else {
		// A continuation advances the page counter in server mode only; in
		// client mode the appended posts refill the filtered pool without
		// moving the reveal window (auto-fetch cycles rely on this).
		if m.modeLocked() == ModeServer {
			m.currentPage++
		}
		m.allPosts = dedupePosts(m.allPosts, params.NewPosts)
	}

	if params.TotalCount > 0 {
		m.serverTotal = params.TotalCount
	}

	// Bounded post buffer: drop the earliest-fetched posts first
	if over := len(m.allPosts) - m.opts.MaxMemoryPosts; over > 0 {
		m.allPosts = append([]models.Post(nil), m.allPosts[over:]...)
		metrics.MemoryTrimsTotal.Inc()
		logger.Log.Debug("Post buffer trimmed",
			zap.Int("dropped", over),
			zap.Int("kept", len(m.allPosts)),
		)
	}

	if params.UpdateMetadata {
		m.metadata.LastFetchAt = time.Now()
		m.metadata.CurrentBatch++
	}

	m.recomputeLocked()
	// A refilled pool may still be under the filter threshold; keep the
	// fetch-more-then-refilter cycle going until the caps stop it
	m.maybeSignalAutoFetchLocked()
	m.notifyLocked()
	m.mu.Unlock()
}

// UpdateSearch replaces the working set with externally computed search
// results and re-detects the pagination mode
func (m *Manager) UpdateSearch(results []models.Post, query string, filters Filters) {
	m.mu.Lock()

	m.searchResults = dedupePosts(nil, results)
	m.searchQuery = query
	m.isSearchActive = query != ""
	m.filters = filters
	m.currentPage = 1

	m.recomputeLocked()
	m.maybeSignalAutoFetchLocked()
	m.notifyLocked()
	m.mu.Unlock()
}

// UpdateFilters applies a filter-only change over the current working set.
// When the filtered view falls below MinResultsForFilter and the server may
// hold more matching posts, an auto-fetch cycle is signalled according to
// the configured policy.
func (m *Manager) UpdateFilters(filters Filters) {
	m.mu.Lock()

	m.filters = filters
	m.currentPage = 1

	m.recomputeLocked()
	m.maybeSignalAutoFetchLocked()
	m.notifyLocked()
	m.mu.Unlock()
}

// ClearSearch reverts to server mode with allPosts as the working set
func (m *Manager) ClearSearch() {
	m.mu.Lock()

	m.searchResults = nil
	m.searchQuery = ""
	m.isSearchActive = false
	m.filters = Filters{}
	m.autoFetchSuggested = false
	m.currentPage = 1

	m.recomputeLocked()
	m.notifyLocked()
	m.mu.Unlock()
}

// AdvancePage reveals the next client-side page. It is the client-reveal
// strategy's only mutation and fails when nothing is left to reveal.
func (m *Manager) AdvancePage() error {
	m.mu.Lock()

	if !m.hasMoreLocked() {
		m.mu.Unlock()
		return ErrNoMorePosts
	}

	m.currentPage++
	m.recomputeLocked()
	m.notifyLocked()
	m.mu.Unlock()
	return nil
}

// Reset clears all state back to initial empty values
func (m *Manager) Reset() {
	m.mu.Lock()

	m.allPosts = nil
	m.searchResults = nil
	m.displayPosts = nil
	m.currentPage = 1
	m.serverTotal = 0
	m.searchQuery = ""
	m.isSearchActive = false
	m.filters = Filters{}
	m.autoFetchSuggested = false
	m.metadata = Metadata{}

	m.notifyLocked()
	m.mu.Unlock()
}

// ValidateAndRecover checks internal invariants. On violation the state is
// rebuilt from allPosts as the known-good baseline and the anomaly is
// logged. Returns whether the state was valid before recovery.
func (m *Manager) ValidateAndRecover() bool {
	m.mu.Lock()

	var violations []string

	if m.currentPage < 1 {
		violations = append(violations, fmt.Sprintf("currentPage=%d < 1", m.currentPage))
	}
	if hasDuplicateIDs(m.allPosts) {
		violations = append(violations, "duplicate post IDs in allPosts")
	}
	mode := m.modeLocked()
	if mode == ModeClient && !m.isSearchActive && m.filters.IsZero() {
		violations = append(violations, "client mode without search/filter context")
	}
	if wantLen := len(m.paginatedLocked()); len(m.displayPosts) < wantLen {
		violations = append(violations, "paginated window exceeds display set")
	}

	if len(violations) == 0 {
		m.mu.Unlock()
		return true
	}

	logger.Warn("Pagination state invariant violated, recovering",
		zap.Strings("violations", violations),
		zap.Int("all_posts", len(m.allPosts)),
		logger.WithPage(m.currentPage),
		logger.WithMode(string(mode)),
	)

	// Known-good baseline: deduped allPosts, first page, flags kept
	m.allPosts = dedupePosts(nil, m.allPosts)
	if m.currentPage < 1 {
		m.currentPage = 1
	}
	m.recomputeLocked()
	m.notifyLocked()
	m.mu.Unlock()
	return false
}

// ---- internal ----

// recomputeLocked derives displayPosts from the working set by applying the
// combined search-and-filter predicate in a single pass. Mode, totals, and
// the paginated window all derive from this.
func (m *Manager) recomputeLocked() {
	working := m.allPosts
	if m.isSearchActive {
		// Search results already embody the query; the filter dimensions
		// are applied over them in the same pass to avoid double-filtering
		working = m.searchResults
	}

	if m.filters.IsZero() {
		m.displayPosts = working
	} else {
		filtered := make([]models.Post, 0, len(working))
		for i := range working {
			if m.filters.Match(&working[i]) {
				filtered = append(filtered, working[i])
			}
		}
		m.displayPosts = filtered
	}
}

// modeLocked picks client mode iff an active search or a non-default filter
// set actually narrows (or replaces) the working set
func (m *Manager) modeLocked() Mode {
	if m.isSearchActive {
		return ModeClient
	}
	if !m.filters.IsZero() && len(m.displayPosts) != len(m.allPosts) {
		return ModeClient
	}
	return ModeServer
}

func (m *Manager) totalLocked() int {
	if m.modeLocked() == ModeClient {
		return len(m.displayPosts)
	}
	return m.serverTotal
}

func (m *Manager) hasMoreLocked() bool {
	if m.modeLocked() == ModeClient {
		return m.currentPage*m.opts.PostsPerPage < len(m.displayPosts)
	}
	return len(m.allPosts) < m.serverTotal
}

func (m *Manager) paginatedLocked() []models.Post {
	if m.modeLocked() == ModeClient {
		end := m.currentPage * m.opts.PostsPerPage
		if end > len(m.displayPosts) {
			end = len(m.displayPosts)
		}
		return m.displayPosts[:end]
	}
	// Server mode: the backend already returns only the current window,
	// appended cumulatively
	return m.allPosts
}

func (m *Manager) snapshotLocked() State {
	mode := m.modeLocked()
	strategy := StrategyServerFetch
	if mode == ModeClient {
		strategy = StrategyClientReveal
	}

	return State{
		AllPosts:           m.allPosts,
		DisplayPosts:       m.displayPosts,
		PaginatedPosts:     m.paginatedLocked(),
		CurrentPage:        m.currentPage,
		PostsPerPage:       m.opts.PostsPerPage,
		Mode:               mode,
		Strategy:           strategy,
		TotalPostsCount:    m.totalLocked(),
		HasMorePosts:       m.hasMoreLocked(),
		IsSearchActive:     m.isSearchActive,
		SearchQuery:        m.searchQuery,
		Filters:            m.filters,
		AutoFetchSuggested: m.autoFetchSuggested,
		Metadata:           m.metadata,
	}
}

// maybeSignalAutoFetchLocked fires the auto-fetch side channel when a
// client-mode filtered view is under-filled and the server may still hold
// matching posts
func (m *Manager) maybeSignalAutoFetchLocked() {
	m.autoFetchSuggested = false

	if m.modeLocked() != ModeClient {
		return
	}
	if len(m.displayPosts) >= m.opts.MinResultsForFilter {
		return
	}
	if len(m.allPosts) >= m.serverTotal || len(m.allPosts) >= m.opts.MaxAutoFetchPosts {
		return
	}

	metrics.AutoFetchSignalsTotal.Inc()

	if m.opts.AutoFetchPolicy == AutoFetchPrompt {
		m.autoFetchSuggested = true
		return
	}

	req := AutoFetchRequest{
		Have:     len(m.displayPosts),
		Want:     m.opts.MinResultsForFilter,
		NextPage: len(m.allPosts)/m.opts.PostsPerPage + 1,
		Query:    m.searchQuery,
		Filters:  m.filters,
	}

	// Latest request wins; never block the mutating goroutine
	select {
	case m.autoFetchCh <- req:
	default:
		select {
		case <-m.autoFetchCh:
		default:
		}
		select {
		case m.autoFetchCh <- req:
		default:
		}
	}
}

func (m *Manager) notifyLocked() {
	snap := m.snapshotLocked()
	for _, id := range m.listenerOrder {
		if l, ok := m.listeners[id]; ok {
			l(snap)
		}
	}
}

// dedupePosts appends newPosts to existing, keeping the first occurrence of
// each post ID
func dedupePosts(existing, newPosts []models.Post) []models.Post {
	seen := make(map[string]bool, len(existing)+len(newPosts))
	out := make([]models.Post, 0, len(existing)+len(newPosts))
	for _, p := range existing {
		if !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	for _, p := range newPosts {
		if !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out
}

func hasDuplicateIDs(posts []models.Post) bool {
	seen := make(map[string]bool, len(posts))
	for _, p := range posts {
		if seen[p.ID] {
			return true
		}
		seen[p.ID] = true
	}
	return false
}
