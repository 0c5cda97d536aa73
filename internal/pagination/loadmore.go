package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/tonemesh/backend/internal/logger"
	"go.uber.org/zap"
)

// Result is the outcome of a load-more invocation. A rejected trigger or an
// exhausted feed comes back as Success=false with the matching sentinel
// error; those are benign, not failures.
type Result struct {
	Success  bool     `json:"success"`
	Strategy Strategy `json:"strategy,omitempty"`
	Err      error    `json:"-"`

	// Cycle identifies the load this invocation started. Server-fetch
	// callers pass it back to CompleteServerFetch, which drops settlements
	// whose cycle already ended (watchdog timeout or a competing retry).
	Cycle uint64 `json:"-"`
}

// LoadMore is the single entry point for loading more posts. It gates every
// invocation through the state machine, reads the current mode from the
// manager, and executes the chosen strategy exactly once.
type LoadMore struct {
	mgr     *Manager
	machine *Machine

	// Optional: lets Run drive a complete server-fetch cycle
	fetch     FetchFunc
	optimizer *Optimizer
}

// NewLoadMore wires a handler to a manager and state machine
func NewLoadMore(mgr *Manager, machine *Machine) *LoadMore {
	return &LoadMore{mgr: mgr, machine: machine}
}

// WithFetcher injects the backend fetch collaborator and the optimizer used
// by Run
func (l *LoadMore) WithFetcher(fetch FetchFunc, optimizer *Optimizer) *LoadMore {
	l.fetch = fetch
	l.optimizer = optimizer
	return l
}

// Machine exposes the state machine for UI bindings (isLoading)
func (l *LoadMore) Machine() *Machine {
	return l.machine
}

// HandleLoadMore runs one load-more invocation.
//
// Client mode advances the reveal window synchronously and settles the
// machine before returning. Server mode returns StrategyServerFetch with
// the machine held in loading: the caller performs the fetch and settles
// via CompleteServerFetch (the watchdog fails the cycle if it never does).
func (l *LoadMore) HandleLoadMore() Result {
	snap := l.mgr.Snapshot()

	// An exhausted feed is a benign no-op; nothing may mutate
	if !snap.HasMorePosts {
		return Result{Success: false, Err: ErrNoMorePosts}
	}

	// Gate: at most one load in flight. Rejections are benign.
	cycle, ok := l.machine.TriggerCycle()
	if !ok {
		return Result{Success: false, Err: ErrAlreadyLoading}
	}

	switch snap.Strategy {
	case StrategyClientReveal:
		// Pure synchronous reveal; failures here are programming errors
		if err := l.mgr.AdvancePage(); err != nil {
			logger.Error("Client reveal failed",
				zap.Error(err),
				logger.WithPage(snap.CurrentPage),
			)
			l.machine.SettleCycle(cycle, err)
			return Result{Success: false, Strategy: StrategyClientReveal, Err: err}
		}
		l.machine.SettleCycle(cycle, nil)
		return Result{Success: true, Strategy: StrategyClientReveal, Cycle: cycle}

	case StrategyServerFetch:
		return Result{Success: true, Strategy: StrategyServerFetch, Cycle: cycle}

	default:
		err := fmt.Errorf("unknown load more strategy %q", snap.Strategy)
		l.machine.SettleCycle(cycle, err)
		return Result{Success: false, Err: err}
	}
}

// CompleteServerFetch settles the server-fetch cycle identified by the
// token from HandleLoadMore. On success the posts are appended as a
// continuation; on error the pagination state is left untouched so a retry
// is safe. A settlement whose cycle already ended — the watchdog timed it
// out, or a retry for the same page completed first — is dropped before
// touching the manager, so one page of data can never advance the page
// counter twice.
func (l *LoadMore) CompleteServerFetch(cycle uint64, res FetchResult, err error) {
	if err != nil {
		if l.machine.SettleCycle(cycle, err) {
			logger.WarnWithFields("Server fetch failed", err)
		}
		return
	}

	if !l.machine.SettleCycle(cycle, nil) {
		logger.Warn("Stale server fetch settlement dropped",
			zap.Uint64("cycle", cycle),
			zap.Int("posts", len(res.Posts)),
		)
		return
	}

	l.mgr.UpdatePosts(UpdatePostsParams{
		NewPosts:       res.Posts,
		TotalCount:     res.TotalCount,
		UpdateMetadata: true,
	})
}

// Run drives one complete load-more cycle using the injected fetch
// collaborator: trigger, fetch through the optimizer (dedup + cache), and
// settle. Client-mode invocations complete synchronously inside
// HandleLoadMore.
func (l *LoadMore) Run(ctx context.Context) Result {
	snap := l.mgr.Snapshot()

	res := l.HandleLoadMore()
	if !res.Success || res.Strategy != StrategyServerFetch {
		return res
	}
	if l.fetch == nil {
		err := fmt.Errorf("no fetch collaborator configured")
		l.machine.SettleCycle(res.Cycle, err)
		return Result{Success: false, Strategy: StrategyServerFetch, Err: err}
	}

	opts := l.mgr.Options()
	nextPage := snap.CurrentPage + 1

	fetchCtx, cancel := context.WithTimeout(ctx, opts.FetchTimeout)
	defer cancel()

	key := RequestKey(nextPage, opts.PostsPerPage, snap.SearchQuery, snap.Filters)

	var fr FetchResult
	var err error
	if l.optimizer != nil {
		fr, err = l.optimizer.OptimizeRequest(fetchCtx, key, func(c context.Context) (FetchResult, error) {
			return l.fetch(c, nextPage, opts.PostsPerPage, snap.SearchQuery, snap.Filters)
		})
	} else {
		fr, err = l.fetch(fetchCtx, nextPage, opts.PostsPerPage, snap.SearchQuery, snap.Filters)
	}

	l.CompleteServerFetch(res.Cycle, fr, err)
	if err != nil {
		return Result{Success: false, Strategy: StrategyServerFetch, Err: err}
	}

	logger.Log.Debug("Server fetch completed",
		logger.WithPage(nextPage),
		logger.WithStrategy(string(StrategyServerFetch)),
		zap.Int("posts", len(fr.Posts)),
		zap.Duration("timeout", opts.FetchTimeout),
	)
	return Result{Success: true, Strategy: StrategyServerFetch, Cycle: res.Cycle}
}

// ServeAutoFetch consumes the manager's auto-fetch side channel, running a
// fetch-more-then-refilter cycle for each request until ctx is cancelled.
// Intended to run on its own goroutine when AutoFetchPolicy is
// AutoFetchAuto.
func (l *LoadMore) ServeAutoFetch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-l.mgr.AutoFetch():
			l.runAutoFetch(ctx, req)
		}
	}
}

func (l *LoadMore) runAutoFetch(ctx context.Context, req AutoFetchRequest) {
	if l.fetch == nil {
		return
	}

	opts := l.mgr.Options()
	fetchCtx, cancel := context.WithTimeout(ctx, opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	// Auto-fetch pulls unfiltered server pages; the refilter happens inside
	// UpdatePosts' recompute
	fr, err := l.fetch(fetchCtx, req.NextPage, opts.PostsPerPage, "", Filters{})
	if err != nil {
		logger.WarnWithFields("Auto-fetch cycle failed", err)
		return
	}

	l.mgr.UpdatePosts(UpdatePostsParams{
		NewPosts:       fr.Posts,
		TotalCount:     fr.TotalCount,
		UpdateMetadata: true,
	})

	logger.Log.Debug("Auto-fetch cycle completed",
		zap.Int("had", req.Have),
		zap.Int("wanted", req.Want),
		logger.WithPage(req.NextPage),
		logger.WithDuration(time.Since(start)),
	)
}
