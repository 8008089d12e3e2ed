// Package concurrency implements the two-level reservation the
// orchestrator uses to stay under both a global subprocess cap and each
// agent's own max_parallel cap.
package concurrency

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Controller enforces a global concurrency cap and, within it, a per-agent
// cap. Reserve is the single atomic external operation: it never leaves
// the global counter incremented without a matching per-agent increment,
// and vice versa.
type Controller struct {
	global *semaphore.Weighted

	mu       sync.Mutex
	perAgent map[string]*semaphore.Weighted
}

// New returns a Controller capped at maxConcurrent subprocesses in total.
func New(maxConcurrent int) *Controller {
	return &Controller{
		global:   semaphore.NewWeighted(int64(maxConcurrent)),
		perAgent: make(map[string]*semaphore.Weighted),
	}
}

// Reserve attempts to take one global slot and one slot for agent, in that
// order. It returns false immediately if either cap is exhausted, and
// unwinds the global acquisition if the per-agent one fails — the same
// two-step algorithm and rollback spec.md §4.6 requires, expressed with
// semaphore.Weighted.TryAcquire instead of hand-rolled counters.
func (c *Controller) Reserve(agent string, maxParallel int) bool {
	if !c.global.TryAcquire(1) {
		return false
	}

	sem := c.agentSemaphore(agent, maxParallel)
	if !sem.TryAcquire(1) {
		c.global.Release(1)
		return false
	}

	return true
}

// Release gives back one global slot and one per-agent slot for agent.
// Must be called exactly once for every Reserve that returned true.
func (c *Controller) Release(agent string) {
	c.global.Release(1)

	c.mu.Lock()
	sem := c.perAgent[agent]
	c.mu.Unlock()

	if sem != nil {
		sem.Release(1)
	}
}

// agentSemaphore returns the per-agent semaphore for agent, creating it
// lazily with weight maxParallel on first use. A change to an agent's
// max_parallel after the first reservation has no effect — agents are
// loaded once at startup and never reconfigured live.
func (c *Controller) agentSemaphore(agent string, maxParallel int) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()

	sem, ok := c.perAgent[agent]
	if !ok {
		sem = semaphore.NewWeighted(int64(maxParallel))
		c.perAgent[agent] = sem
	}
	return sem
}
