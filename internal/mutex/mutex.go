// Package mutex provides a process-local, named mutual-exclusion table.
//
// Lock names are arbitrary strings; the resource layer uses a resource
// reference's canonical string form, coupling each lock 1:1 with the file
// it guards. Acquisition polls rather than queueing, so FIFO ordering
// between contenders is not guaranteed, only mutual exclusion. Entries are
// never evicted; cardinality is bounded by the distinct names touched over
// the process lifetime.
package mutex

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds acquisition when the caller passes no timeout.
const DefaultTimeout = 5 * time.Second

// pollInterval is the sleep between acquisition attempts.
const pollInterval = 50 * time.Millisecond

// TimeoutError reports a lock that could not be acquired in time.
type TimeoutError struct {
	Name    string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lock %q not acquired after %s", e.Name, e.Elapsed.Round(time.Millisecond))
}

// Table is a named counting-semaphore table. Construct one per process (or
// per test) with NewTable and inject it; it is not a package singleton so
// tests get isolated tables.
type Table struct {
	mu      sync.Mutex
	permits map[string]int
}

// NewTable creates an empty mutex table.
func NewTable() *Table {
	return &Table{permits: make(map[string]int)}
}

// tryAcquire atomically takes the permit for name, initializing an unseen
// name with one available permit.
func (t *Table) tryAcquire(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, seen := t.permits[name]
	if !seen {
		n = 1
	}
	if n < 1 {
		return false
	}
	t.permits[name] = n - 1
	return true
}

// release returns the permit for name.
func (t *Table) release(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.permits[name]++
}

// WithLock runs fn while holding the named lock, releasing it on every
// exit path including panics. It polls for the permit and gives up with a
// *TimeoutError once timeout (DefaultTimeout if <= 0) has elapsed.
//
// Re-acquiring the same name from inside fn deadlocks until the inner
// timeout fires; reentrancy is intentionally unsupported.
func (t *Table) WithLock(name string, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	for !t.tryAcquire(name) {
		if elapsed := time.Since(start); elapsed >= timeout {
			return &TimeoutError{Name: name, Elapsed: elapsed}
		}
		time.Sleep(pollInterval)
	}
	defer t.release(name)
	return fn()
}

// Do runs fn while holding the named lock and returns its value. On
// acquisition timeout the zero value and a *TimeoutError are returned.
func Do[T any](t *Table, name string, timeout time.Duration, fn func() (T, error)) (T, error) {
	var out T
	err := t.WithLock(name, timeout, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
