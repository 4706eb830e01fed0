// Package guard provides non-blocking admission control for pipeline stages.
//
// Every stage that fans out over keys (sources, metrics, capabilities) runs
// each unit of work under a Guard. The guard bounds how many operations are
// in flight at once and how often the same key may be re-admitted. Denials
// are skips, not errors: the caller moves on and retries on a later pass.
package guard

import (
	"sync"
	"time"
)

// Guard tracks in-flight operations by key.
type Guard struct {
	mu        sync.Mutex
	maxDepth  int
	cooldown  time.Duration
	inflight  map[string]struct{}
	lastAdmit map[string]time.Time
	now       func() time.Time
}

// New returns a Guard admitting at most maxDepth concurrent operations and
// re-admitting a given key no sooner than cooldown after its last admission.
func New(maxDepth int, cooldown time.Duration) *Guard {
	return &Guard{
		maxDepth:  maxDepth,
		cooldown:  cooldown,
		inflight:  make(map[string]struct{}),
		lastAdmit: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Acquire admits key and reports whether the caller may proceed. It returns
// false without blocking when the key is already in flight, when the key was
// admitted within the cooldown window, or when the depth limit is reached.
func (g *Guard) Acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inflight[key]; ok {
		return false
	}
	if last, ok := g.lastAdmit[key]; ok && g.now().Sub(last) < g.cooldown {
		return false
	}
	if len(g.inflight) >= g.maxDepth {
		return false
	}

	g.inflight[key] = struct{}{}
	g.lastAdmit[key] = g.now()
	return true
}

// Release marks key's operation as finished. Releasing a key that is not in
// flight is a no-op, so Release is safe to defer unconditionally.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}

// Do runs fn under the guard and reports whether it was admitted. Denied
// calls return false without running fn.
func (g *Guard) Do(key string, fn func()) bool {
	if !g.Acquire(key) {
		return false
	}
	defer g.Release(key)
	fn()
	return true
}

// InFlight returns the number of currently admitted operations.
func (g *Guard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}
