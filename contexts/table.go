// Package contexts implements the per-node reader-context table: creation,
// lease renewal, lookup, removal, and background reaping of expired entries.
//
// The table is the only shared mutable structure on the node's context path.
// Every entry owns its snapshot handles exclusively; handle release is
// single-fire, guarded by an atomic terminal-remove flag, so an explicit
// close racing a reap cycle on the same entry can never double-release.
package contexts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/pitgo/core"
)

var (
	// ErrNotFound is returned when a context key has no live entry
	// (expired, reaped, closed, or the node restarted).
	ErrNotFound = errors.New("search context missing")

	// ErrTooManyContexts is returned when the node's open-context limit is
	// reached.
	ErrTooManyContexts = errors.New("too many open reader contexts")

	// ErrOpenThrottled is returned when context creation exceeds the
	// configured rate.
	ErrOpenThrottled = errors.New("reader context creation throttled")
)

// KeepAliveError reports a keepalive outside the accepted range.
type KeepAliveError struct {
	KeepAlive time.Duration
	Max       time.Duration
}

func (e *KeepAliveError) Error() string {
	if e.KeepAlive <= 0 {
		return fmt.Sprintf("invalid keep_alive %v: must be positive", e.KeepAlive)
	}
	return fmt.Sprintf("invalid keep_alive %v: exceeds maximum %v", e.KeepAlive, e.Max)
}

// Handle is a releasable resource owned by a context entry, typically a
// partition snapshot.
type Handle interface {
	Release()
}

// Entry is one node's contribution to a reader context: an ordered set of
// snapshot handles plus a lease deadline.
type Entry[H Handle] struct {
	key     core.ContextKey
	handles []H
	created time.Time

	mu       sync.Mutex
	deadline time.Time

	// refs counts the table's own reference plus in-flight users; the
	// handles are released exactly once, when refs drops to zero after
	// the terminal remove.
	refs    atomic.Int32
	removed atomic.Bool
}

// Key returns the node-local context key.
func (e *Entry[H]) Key() core.ContextKey { return e.key }

// Handles returns the snapshot handles captured at open time.
// Callers must hold an acquired reference while using them.
func (e *Entry[H]) Handles() []H { return e.handles }

// Created returns the entry creation time.
func (e *Entry[H]) Created() time.Time { return e.created }

// Deadline returns the current lease deadline.
func (e *Entry[H]) Deadline() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deadline
}

// extend moves the deadline to now + keepAlive. Fails once the entry has
// been terminally removed.
func (e *Entry[H]) extend(keepAlive time.Duration, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed.Load() {
		return false
	}
	e.deadline = now.Add(keepAlive)
	return true
}

// acquire pins the entry for use. Returns false after the terminal remove.
func (e *Entry[H]) acquire() bool {
	for {
		n := e.refs.Load()
		if n <= 0 {
			return false
		}
		if e.refs.CompareAndSwap(n, n+1) {
			if e.removed.Load() {
				e.release()
				return false
			}
			return true
		}
	}
}

// release drops one pin. The final release frees the handles.
func (e *Entry[H]) release() {
	if e.refs.Add(-1) != 0 {
		return
	}
	for _, h := range e.handles {
		h.Release()
	}
}

// TableOptions configures a Table.
type TableOptions struct {
	// MaxKeepAlive is the ceiling for create/renew keepalives.
	MaxKeepAlive time.Duration

	// MaxOpenContexts bounds concurrently open entries. 0 means unlimited.
	MaxOpenContexts int64

	// OpenRatePerSec throttles entry creation. 0 means unlimited.
	OpenRatePerSec float64

	// OpenRateBurst is the burst allowance for OpenRatePerSec.
	OpenRateBurst int
}

// DefaultMaxKeepAlive is the default keepalive ceiling.
const DefaultMaxKeepAlive = 24 * time.Hour

// Table is the per-node context registry.
// All methods are safe for concurrent use, including with a running Reaper.
type Table[H Handle] struct {
	maxKeepAlive time.Duration
	sem          *semaphore.Weighted
	limiter      *rate.Limiter

	mu      sync.RWMutex
	entries map[core.ContextKey]*Entry[H]

	opened  atomic.Int64
	expired atomic.Int64
	closed  atomic.Int64
}

// NewTable creates an empty context table.
func NewTable[H Handle](optFns ...func(*TableOptions)) *Table[H] {
	opts := TableOptions{
		MaxKeepAlive: DefaultMaxKeepAlive,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxKeepAlive <= 0 {
		opts.MaxKeepAlive = DefaultMaxKeepAlive
	}

	t := &Table[H]{
		maxKeepAlive: opts.MaxKeepAlive,
		entries:      make(map[core.ContextKey]*Entry[H]),
	}
	if opts.MaxOpenContexts > 0 {
		t.sem = semaphore.NewWeighted(opts.MaxOpenContexts)
	}
	if opts.OpenRatePerSec > 0 {
		burst := opts.OpenRateBurst
		if burst <= 0 {
			burst = int(opts.OpenRatePerSec) + 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(opts.OpenRatePerSec), burst)
	}
	return t
}

// MaxKeepAlive returns the configured keepalive ceiling.
func (t *Table[H]) MaxKeepAlive() time.Duration { return t.maxKeepAlive }

func (t *Table[H]) validateKeepAlive(keepAlive time.Duration) error {
	if keepAlive <= 0 || keepAlive > t.maxKeepAlive {
		return &KeepAliveError{KeepAlive: keepAlive, Max: t.maxKeepAlive}
	}
	return nil
}

// Create registers a new entry owning the given handles with a lease of
// now + keepAlive.
//
// On error the handles are NOT adopted; the caller still owns them and must
// release them itself.
func (t *Table[H]) Create(handles []H, keepAlive time.Duration) (core.ContextKey, error) {
	if err := t.validateKeepAlive(keepAlive); err != nil {
		return "", err
	}
	if len(handles) == 0 {
		return "", fmt.Errorf("contexts: entry without handles is invalid")
	}
	if t.limiter != nil && !t.limiter.Allow() {
		return "", ErrOpenThrottled
	}
	if t.sem != nil && !t.sem.TryAcquire(1) {
		return "", ErrTooManyContexts
	}

	now := time.Now()
	e := &Entry[H]{
		key:      core.NewContextKey(),
		handles:  handles,
		created:  now,
		deadline: now.Add(keepAlive),
	}
	e.refs.Store(1)

	t.mu.Lock()
	t.entries[e.key] = e
	t.mu.Unlock()

	t.opened.Add(1)
	return e.key, nil
}

// Lookup returns the live entry for key. It does not renew the lease and
// does not pin the entry; use Acquire on the query path.
func (t *Table[H]) Lookup(key core.ContextKey) (*Entry[H], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	return e, ok
}

// Acquire returns the entry pinned for use. The caller must call
// ReleaseRef when done. Fails with ErrNotFound if the entry is gone or its
// terminal remove already fired.
func (t *Table[H]) Acquire(key core.ContextKey) (*Entry[H], error) {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok || !e.acquire() {
		return nil, ErrNotFound
	}
	return e, nil
}

// ReleaseRef drops a pin taken by Acquire.
func (t *Table[H]) ReleaseRef(e *Entry[H]) {
	e.release()
}

// Renew atomically extends the lease to now + keepAlive.
// A lookup without a renew leaves the deadline untouched.
func (t *Table[H]) Renew(key core.ContextKey, keepAlive time.Duration) error {
	if err := t.validateKeepAlive(keepAlive); err != nil {
		return err
	}
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok || !e.extend(keepAlive, time.Now()) {
		return ErrNotFound
	}
	return nil
}

// Remove terminally removes the entry and releases its handles (once all
// in-flight users drop their pins). Idempotent: removing an unknown or
// already-removed key returns false without error.
func (t *Table[H]) Remove(key core.ContextKey) bool {
	return t.remove(key, false)
}

func (t *Table[H]) remove(key core.ContextKey, viaReap bool) bool {
	t.mu.Lock()
	e, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	return t.terminate(e, viaReap)
}

func (t *Table[H]) terminate(e *Entry[H], viaReap bool) bool {
	if !e.removed.CompareAndSwap(false, true) {
		return false
	}
	if t.sem != nil {
		t.sem.Release(1)
	}
	if viaReap {
		t.expired.Add(1)
	} else {
		t.closed.Add(1)
	}
	e.release()
	return true
}

// ReapExpired removes every entry whose deadline has passed and returns how
// many were reclaimed. Safe to run concurrently with all other methods; an
// entry renewed between scan and removal is left alone.
func (t *Table[H]) ReapExpired(now time.Time) int {
	t.mu.RLock()
	var candidates []core.ContextKey
	for key, e := range t.entries {
		if !e.Deadline().After(now) {
			candidates = append(candidates, key)
		}
	}
	t.mu.RUnlock()

	reaped := 0
	for _, key := range candidates {
		t.mu.Lock()
		e, ok := t.entries[key]
		if ok {
			e.mu.Lock()
			stillExpired := !e.deadline.After(now)
			e.mu.Unlock()
			if !stillExpired {
				// Renewed since the scan.
				t.mu.Unlock()
				continue
			}
			delete(t.entries, key)
		}
		t.mu.Unlock()
		if ok && t.terminate(e, true) {
			reaped++
		}
	}
	return reaped
}

// Clear removes every entry. Used on node shutdown.
func (t *Table[H]) Clear() int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[core.ContextKey]*Entry[H])
	t.mu.Unlock()

	n := 0
	for _, e := range entries {
		if t.terminate(e, false) {
			n++
		}
	}
	return n
}

// Len returns the number of currently open entries.
func (t *Table[H]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// OpenedTotal returns the cumulative number of created entries.
func (t *Table[H]) OpenedTotal() int64 { return t.opened.Load() }

// ExpiredTotal returns the cumulative number of reaped entries.
func (t *Table[H]) ExpiredTotal() int64 { return t.expired.Load() }

// ClosedTotal returns the cumulative number of explicitly removed entries.
func (t *Table[H]) ClosedTotal() int64 { return t.closed.Load() }

// WaitEmpty blocks until the table drains or ctx is done. Test helper for
// observing reaper-driven cleanup.
func (t *Table[H]) WaitEmpty(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if t.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
