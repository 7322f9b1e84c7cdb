/*
scheduler.go - Periodic feed refresh

PURPOSE:
  Periodically fetches the remote feed and rebuilds the index from it,
  through the same path as POST /api/reload.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - A failed fetch keeps the previous index and is retried next tick
  - Stop cancels an in-flight fetch and waits for the goroutine

CONFIGURATION:
  - Interval: POLICY_HISTORY_REFRESH_INTERVAL (0 disables)
  - Requires a feed; never starts in the mock environment

USAGE:
  scheduler := NewRefreshScheduler(handler, 5*time.Minute)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ReloadFeed (manual refresh)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RefreshScheduler reloads the feed on a fixed interval.
type RefreshScheduler struct {
	Handler  *Handler
	Interval time.Duration

	log     zerolog.Logger
	ticker  *time.Ticker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewRefreshScheduler creates a new scheduler.
func NewRefreshScheduler(handler *Handler, interval time.Duration) *RefreshScheduler {
	return &RefreshScheduler{
		Handler:  handler,
		Interval: interval,
		log:      handler.log.With().Str("job", "feed_refresh").Logger(),
	}
}

// Start begins the scheduler. It reports whether the scheduler is running.
func (rs *RefreshScheduler) Start() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.running {
		return true
	}
	if rs.Interval <= 0 || rs.Handler.source == nil {
		rs.log.Info().Msg("feed refresh disabled")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.ticker = time.NewTicker(rs.Interval)
	rs.running = true
	rs.wg.Add(1)

	go rs.run(ctx, rs.ticker)

	rs.log.Info().Dur("interval", rs.Interval).Msg("feed refresh started")
	return true
}

// Stop stops the scheduler and waits for an in-flight refresh to return.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	if !rs.running {
		rs.mu.Unlock()
		return
	}
	rs.ticker.Stop()
	rs.cancel()
	rs.running = false
	rs.mu.Unlock()

	rs.wg.Wait()
	rs.log.Info().Msg("feed refresh stopped")
}

func (rs *RefreshScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer rs.wg.Done()

	for {
		select {
		case <-ticker.C:
			rs.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow refreshes immediately (for testing/admin).
func (rs *RefreshScheduler) RunNow(ctx context.Context) (IngestResponse, error) {
	resp, err := rs.Handler.ReloadFeed(ctx)

	rs.mu.Lock()
	rs.lastRun = time.Now()
	rs.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			rs.log.Warn().Err(err).Msg("feed refresh failed, keeping previous index")
		}
		return IngestResponse{}, err
	}
	rs.log.Debug().Str("batch_id", resp.BatchID).Int("policies", resp.Policies).Msg("feed refreshed")
	return resp, nil
}

// Running reports whether the background loop is active.
func (rs *RefreshScheduler) Running() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.running
}

// NextRunTime returns when the next scheduled refresh will occur, or the
// zero time when the scheduler is not running.
func (rs *RefreshScheduler) NextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.running {
		return time.Time{}
	}
	if rs.lastRun.IsZero() {
		return time.Now().Add(rs.Interval)
	}
	return rs.lastRun.Add(rs.Interval)
}
