package pending

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultSweepInterval is how often expired entries are purged.
	DefaultSweepInterval = 10 * time.Minute
	// DefaultMaxSweepBatches caps the batches one RunOnce issues.
	DefaultMaxSweepBatches = 50
)

// SweeperOptions configures a Sweeper. MaxBatches bounds a single RunOnce.
type SweeperOptions struct {
	Interval   time.Duration
	BatchSize  int
	MaxBatches int
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// Sweeper periodically removes expired entries from a Store until stopped.
type Sweeper struct {
	store Store
	opts  SweeperOptions

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewSweeper constructs a stopped sweeper.
func NewSweeper(store Store, opts SweeperOptions) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepLimit
	}
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = DefaultMaxSweepBatches
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = func(context.Context, string, map[string]any) {}
	}
	return &Sweeper{store: store, opts: opts}
}

// Start launches the background loop. It returns immediately; calling Start twice is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				_, _ = s.RunOnce(runCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunOnce sweeps until a batch comes back short, so a backlog clears in one tick. It stops
// after MaxBatches and leaves any remainder to the next tick.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for batch := 0; batch < s.opts.MaxBatches; batch++ {
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		removed, err := s.store.SweepExpired(sweepCtx, s.opts.Clock().UTC(), s.opts.BatchSize)
		cancel()
		total += removed
		if err != nil {
			s.opts.Logger(ctx, "pending.sweep.failed", map[string]any{"error": err.Error(), "removed": total})
			return total, err
		}
		if removed < s.opts.BatchSize || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		s.opts.Logger(ctx, "pending.sweep.completed", map[string]any{"removed": total})
	}
	return total, nil
}
