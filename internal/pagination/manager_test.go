package pagination

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonemesh/backend/internal/models"
)

// makePosts builds n posts with sequential IDs starting at start
func makePosts(start, n int) []models.Post {
	posts := make([]models.Post, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, models.Post{
			ID:     fmt.Sprintf("post-%03d", start+i),
			Title:  fmt.Sprintf("Loop %d", start+i),
			BPM:    120,
			Key:    "C major",
			Genres: models.StringArray{"house"},
		})
	}
	return posts
}

func TestUpdatePostsDeduplicates(t *testing.T) {
	mgr := NewManager(Options{})

	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 15), TotalCount: 40, ResetPagination: true})

	// Overlapping continuation: posts 10-24 repeat 10-14
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(10, 15), TotalCount: 40})

	snap := mgr.Snapshot()
	assert.Len(t, snap.AllPosts, 25)

	seen := map[string]bool{}
	for _, p := range snap.AllPosts {
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}

	// Insertion order is fetch order
	assert.Equal(t, "post-000", snap.AllPosts[0].ID)
	assert.Equal(t, "post-024", snap.AllPosts[24].ID)
}

func TestUpdatePostsResetReplacesWholesale(t *testing.T) {
	mgr := NewManager(Options{})

	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 15), TotalCount: 40, ResetPagination: true})
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(15, 15), TotalCount: 40})
	require.Equal(t, 2, mgr.Snapshot().CurrentPage)

	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(100, 5), TotalCount: 5, ResetPagination: true})

	snap := mgr.Snapshot()
	assert.Len(t, snap.AllPosts, 5)
	assert.Equal(t, 1, snap.CurrentPage)
}

func TestServerModeWorkedExample(t *testing.T) {
	// postsPerPage=15, totalPostsCount=40: 15 + 15 + 10, then exhausted
	mgr := NewManager(Options{PostsPerPage: 15})

	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 15), TotalCount: 40, ResetPagination: true})
	snap := mgr.Snapshot()
	assert.Equal(t, ModeServer, snap.Mode)
	assert.True(t, snap.HasMorePosts)
	assert.Equal(t, 40, snap.TotalPostsCount)

	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(15, 15), TotalCount: 40})
	snap = mgr.Snapshot()
	assert.True(t, snap.HasMorePosts)
	assert.Equal(t, 2, snap.CurrentPage)

	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(30, 10), TotalCount: 40})
	snap = mgr.Snapshot()
	assert.Len(t, snap.AllPosts, 40)
	assert.False(t, snap.HasMorePosts)
	assert.Equal(t, 3, snap.CurrentPage)

	// Server mode renders the cumulative window
	assert.Len(t, snap.PaginatedPosts, 40)
}

func TestModeDetection(t *testing.T) {
	mgr := NewManager(Options{PostsPerPage: 15})
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 40), TotalCount: 40, ResetPagination: true})

	// No search, no filters: server
	assert.Equal(t, ModeServer, mgr.Snapshot().Mode)
	assert.Equal(t, StrategyServerFetch, mgr.Snapshot().Strategy)

	// Active search forces client mode
	mgr.UpdateSearch(makePosts(0, 10), "loop", Filters{})
	snap := mgr.Snapshot()
	assert.Equal(t, ModeClient, snap.Mode)
	assert.Equal(t, StrategyClientReveal, snap.Strategy)
	assert.True(t, snap.IsSearchActive)
	assert.Equal(t, 1, snap.CurrentPage)

	// Clearing reverts to server mode over allPosts
	mgr.ClearSearch()
	snap = mgr.Snapshot()
	assert.Equal(t, ModeServer, snap.Mode)
	assert.False(t, snap.IsSearchActive)
	assert.Len(t, snap.DisplayPosts, 40)
	assert.Equal(t, 1, snap.CurrentPage)

	// A filter that narrows the set forces client mode
	mgr.UpdateFilters(Filters{BPMMin: 200})
	assert.Equal(t, ModeClient, mgr.Snapshot().Mode)

	// A filter that matches everything does not
	mgr.UpdateFilters(Filters{BPMMin: 60})
	assert.Equal(t, ModeServer, mgr.Snapshot().Mode)
}

func TestCombinedSearchAndFilterSinglePass(t *testing.T) {
	mgr := NewManager(Options{})
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 40), TotalCount: 40, ResetPagination: true})

	// Search results with mixed BPM; the filter applies over them, not over
	// allPosts
	results := makePosts(0, 6)
	for i := range results {
		if i%2 == 0 {
			results[i].BPM = 174
		}
	}
	mgr.UpdateSearch(results, "amen", Filters{BPMMin: 170})

	snap := mgr.Snapshot()
	assert.Equal(t, ModeClient, snap.Mode)
	assert.Len(t, snap.DisplayPosts, 3)
	assert.Equal(t, 3, snap.TotalPostsCount)
	for _, p := range snap.DisplayPosts {
		assert.GreaterOrEqual(t, p.BPM, 170)
	}
}

func TestClientModeHasMoreAndReveal(t *testing.T) {
	mgr := NewManager(Options{PostsPerPage: 5})
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 12), TotalCount: 12, ResetPagination: true})

	mgr.UpdateSearch(makePosts(0, 12), "loop", Filters{})

	snap := mgr.Snapshot()
	assert.Equal(t, ModeClient, snap.Mode)
	assert.Len(t, snap.PaginatedPosts, 5)
	assert.True(t, snap.HasMorePosts)

	require.NoError(t, mgr.AdvancePage())
	snap = mgr.Snapshot()
	assert.Equal(t, 2, snap.CurrentPage)
	assert.Len(t, snap.PaginatedPosts, 10)
	assert.True(t, snap.HasMorePosts)

	require.NoError(t, mgr.AdvancePage())
	snap = mgr.Snapshot()
	assert.Len(t, snap.PaginatedPosts, 12)
	assert.False(t, snap.HasMorePosts)

	// Nothing left to reveal
	assert.ErrorIs(t, mgr.AdvancePage(), ErrNoMorePosts)
	assert.Equal(t, 3, mgr.Snapshot().CurrentPage)
}

func TestAutoFetchSignal(t *testing.T) {
	mgr := NewManager(Options{MinResultsForFilter: 10, MaxAutoFetchPosts: 100})

	// 40 posts on the server, filter narrows the loaded 40 down to 6
	posts := makePosts(0, 40)
	for i := 0; i < 6; i++ {
		posts[i].BPM = 174
	}
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: posts, TotalCount: 80, ResetPagination: true})
	mgr.UpdateFilters(Filters{BPMMin: 170})

	snap := mgr.Snapshot()
	assert.Equal(t, ModeClient, snap.Mode)
	assert.Len(t, snap.DisplayPosts, 6)

	select {
	case req := <-mgr.AutoFetch():
		assert.Equal(t, 6, req.Have)
		assert.Equal(t, 10, req.Want)
		assert.Greater(t, req.NextPage, 1)
	default:
		t.Fatal("expected an auto-fetch request")
	}
}

func TestAutoFetchNotSignalledWhenExhausted(t *testing.T) {
	mgr := NewManager(Options{MinResultsForFilter: 10})

	// Everything the server has is already loaded
	posts := makePosts(0, 40)
	for i := 0; i < 6; i++ {
		posts[i].BPM = 174
	}
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: posts, TotalCount: 40, ResetPagination: true})
	mgr.UpdateFilters(Filters{BPMMin: 170})

	select {
	case <-mgr.AutoFetch():
		t.Fatal("auto-fetch must not fire when the server is exhausted")
	default:
	}
}

func TestAutoFetchPromptPolicy(t *testing.T) {
	mgr := NewManager(Options{MinResultsForFilter: 10, AutoFetchPolicy: AutoFetchPrompt})

	posts := makePosts(0, 40)
	for i := 0; i < 6; i++ {
		posts[i].BPM = 174
	}
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: posts, TotalCount: 80, ResetPagination: true})
	mgr.UpdateFilters(Filters{BPMMin: 170})

	snap := mgr.Snapshot()
	assert.True(t, snap.AutoFetchSuggested)

	select {
	case <-mgr.AutoFetch():
		t.Fatal("prompt policy must not emit on the channel")
	default:
	}
}

func TestSubscribeNotifiesInOrder(t *testing.T) {
	mgr := NewManager(Options{})

	var order []string
	mgr.Subscribe(func(State) { order = append(order, "first") })
	unsub := mgr.Subscribe(func(State) { order = append(order, "second") })

	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 3), TotalCount: 3, ResetPagination: true})
	require.Equal(t, []string{"first", "second"}, order)

	// Unsubscribed listeners stop firing
	unsub()
	order = nil
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(3, 3), TotalCount: 6})
	assert.Equal(t, []string{"first"}, order)
}

func TestSubscriberSeesDerivedState(t *testing.T) {
	mgr := NewManager(Options{PostsPerPage: 15})

	var last State
	mgr.Subscribe(func(s State) { last = s })

	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 15), TotalCount: 40, ResetPagination: true})

	assert.True(t, last.HasMorePosts)
	assert.Equal(t, 15, last.CurrentlyShowing())
	assert.Equal(t, 15, last.TotalFilteredPosts())
	assert.Equal(t, 40, last.TotalPostsCount)
}

func TestValidateAndRecover(t *testing.T) {
	mgr := NewManager(Options{})
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 10), TotalCount: 10, ResetPagination: true})

	assert.True(t, mgr.ValidateAndRecover(), "fresh state should be valid")

	// Corrupt the state directly, bypassing the mutation methods
	mgr.mu.Lock()
	mgr.currentPage = -2
	mgr.allPosts = append(mgr.allPosts, mgr.allPosts[0])
	mgr.mu.Unlock()

	assert.False(t, mgr.ValidateAndRecover(), "corrupted state must report invalid")

	snap := mgr.Snapshot()
	assert.GreaterOrEqual(t, snap.CurrentPage, 1)
	seen := map[string]bool{}
	for _, p := range snap.AllPosts {
		assert.False(t, seen[p.ID])
		seen[p.ID] = true
	}

	assert.True(t, mgr.ValidateAndRecover(), "recovered state should be valid")
}

func TestReset(t *testing.T) {
	mgr := NewManager(Options{})
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 10), TotalCount: 10, ResetPagination: true})
	mgr.UpdateSearch(makePosts(0, 4), "loop", Filters{Key: "C major"})

	mgr.Reset()

	snap := mgr.Snapshot()
	assert.Empty(t, snap.AllPosts)
	assert.Empty(t, snap.DisplayPosts)
	assert.Empty(t, snap.PaginatedPosts)
	assert.Equal(t, 1, snap.CurrentPage)
	assert.Equal(t, ModeServer, snap.Mode)
	assert.False(t, snap.IsSearchActive)
	assert.Equal(t, 0, snap.TotalPostsCount)
}

func TestMemoryBoundPreservesNewestWindow(t *testing.T) {
	mgr := NewManager(Options{MaxMemoryPosts: 50})

	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 40), TotalCount: 200, ResetPagination: true})
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(40, 40), TotalCount: 200})

	snap := mgr.Snapshot()
	assert.Len(t, snap.AllPosts, 50)
	// The most recently fetched window survives intact
	assert.Equal(t, "post-079", snap.AllPosts[len(snap.AllPosts)-1].ID)
	assert.Equal(t, "post-030", snap.AllPosts[0].ID)
}

func TestUpdateFiltersResetsPage(t *testing.T) {
	mgr := NewManager(Options{PostsPerPage: 5})
	mgr.UpdatePosts(UpdatePostsParams{NewPosts: makePosts(0, 30), TotalCount: 30, ResetPagination: true})
	mgr.UpdateSearch(makePosts(0, 30), "loop", Filters{})
	require.NoError(t, mgr.AdvancePage())
	require.Equal(t, 2, mgr.Snapshot().CurrentPage)

	mgr.UpdateFilters(Filters{Key: "C major"})
	assert.Equal(t, 1, mgr.Snapshot().CurrentPage)
}

func TestFiltersMatch(t *testing.T) {
	post := models.Post{
		BPM:    128,
		Key:    "A minor",
		Genres: models.StringArray{"techno", "house"},
	}

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"zero filters match all", Filters{}, true},
		{"genre hit", Filters{Genres: []string{"house"}}, true},
		{"genre miss", Filters{Genres: []string{"jazz"}}, false},
		{"any-of genres", Filters{Genres: []string{"jazz", "techno"}}, true},
		{"bpm in range", Filters{BPMMin: 120, BPMMax: 130}, true},
		{"bpm below min", Filters{BPMMin: 140}, false},
		{"bpm above max", Filters{BPMMax: 100}, false},
		{"key case-insensitive", Filters{Key: "a minor"}, true},
		{"key miss", Filters{Key: "C major"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filters.Match(&post))
		})
	}
}
