package searcher

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the interval a DebouncedSearcher waits after the
// most recent keystroke before actually issuing a query.
const DefaultDebounce = 150 * time.Millisecond

// DebouncedSearcher wraps a Searcher for interactive callers: each
// Type call logically supersedes any query still pending or in
// flight from a prior call, so a caller driving this from keystrokes
// never has to worry about out-of-order results arriving for a query
// the user has already moved past.
type DebouncedSearcher struct {
	searcher *Searcher
	debounce time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewDebouncedSearcher wraps s with a debounce window of the given
// length; a negative debounce selects DefaultDebounce (~150ms). A
// debounce of 0 disables the delay (the query fires immediately,
// though cancel-previous semantics still apply).
func NewDebouncedSearcher(s *Searcher, debounce time.Duration) *DebouncedSearcher {
	if debounce < 0 {
		debounce = DefaultDebounce
	}
	return &DebouncedSearcher{searcher: s, debounce: debounce}
}

// Type registers one keystroke's worth of query text. It cancels any
// query still pending or in flight from a previous call, waits out
// the debounce window, then runs Search. The result (or error) is
// delivered on the returned channel, which always receives exactly
// one value unless superseded first, in which case it is closed
// without a value.
//
// ctx governs the caller's own lifetime (e.g. the session exiting);
// it is not what cancels a superseded query — calling Type again does.
func (d *DebouncedSearcher) Type(ctx context.Context, q Query) <-chan Outcome {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)

		if d.debounce > 0 {
			timer := time.NewTimer(d.debounce)
			defer timer.Stop()
			select {
			case <-runCtx.Done():
				return
			case <-timer.C:
			}
		} else if runCtx.Err() != nil {
			return
		}

		results, err := d.searcher.Search(runCtx, q)
		if runCtx.Err() != nil {
			// Superseded or caller context done mid-query: drop the
			// result, the caller has already moved on.
			return
		}
		out <- Outcome{Results: results, Err: err}
	}()
	return out
}

// Outcome is the result of one debounced search: exactly one of
// Results or Err is meaningful, matching Search's own return shape.
type Outcome struct {
	Results []Result
	Err     error
}

// Stop cancels any query currently pending or in flight, leaving the
// DebouncedSearcher ready to accept further Type calls.
func (d *DebouncedSearcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
