package contexts

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultReapInterval is the default scan interval for the Reaper.
//
// The interval bounds how long an expired entry's resources may linger; it
// is never relied on for correctness. Shorter intervals tighten the
// worst-case overhang after client-side leaks at the cost of scan overhead.
const DefaultReapInterval = time.Minute

// ReaperOptions configures a Reaper.
type ReaperOptions struct {
	// Interval between scans. <= 0 uses DefaultReapInterval.
	Interval time.Duration

	// Logger for reap cycle reporting. nil disables logging.
	Logger *slog.Logger

	// OnReap is invoked after every cycle that reclaimed at least one
	// entry, with the number reclaimed. Metrics hook.
	OnReap func(reaped int)
}

// Reaper periodically removes expired entries from a Table.
type Reaper[H Handle] struct {
	table    *Table[H]
	interval time.Duration
	logger   *slog.Logger
	onReap   func(int)

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
}

// NewReaper creates a Reaper for the given table.
func NewReaper[H Handle](table *Table[H], optFns ...func(*ReaperOptions)) *Reaper[H] {
	opts := ReaperOptions{
		Interval: DefaultReapInterval,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultReapInterval
	}

	return &Reaper[H]{
		table:    table,
		interval: opts.Interval,
		logger:   opts.Logger,
		onReap:   opts.OnReap,
		stopCh:   make(chan struct{}),
	}
}

// Interval returns the configured scan interval.
func (r *Reaper[H]) Interval() time.Duration { return r.interval }

// Start launches the background scan loop. Idempotent.
func (r *Reaper[H]) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(1)
	go r.run()
}

func (r *Reaper[H]) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reapOnce(time.Now())
		}
	}
}

func (r *Reaper[H]) reapOnce(now time.Time) {
	reaped := r.table.ReapExpired(now)
	if reaped == 0 {
		return
	}
	if r.logger != nil {
		r.logger.Debug("reaped expired reader contexts",
			"reaped", reaped,
			"remaining", r.table.Len(),
		)
	}
	if r.onReap != nil {
		r.onReap(reaped)
	}
}

// Stop terminates the scan loop and waits for the in-flight cycle.
// Idempotent; safe to call before Start.
func (r *Reaper[H]) Stop() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	close(r.stopCh)
	r.wg.Wait()
}
