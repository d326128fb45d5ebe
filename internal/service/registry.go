package service

import "sync"

// runRegistry enforces the one-running-sync-per-target invariant. It is an
// owned component of the orchestrator, not process-wide state: claim before
// a run starts, release when it reaches a terminal state.
type runRegistry struct {
	mu     sync.Mutex
	active map[string]string
}

func newRunRegistry() *runRegistry {
	return &runRegistry{active: make(map[string]string)}
}

// claim registers runID as the active run for target. When another run
// already holds the target, claim fails and returns its ID.
func (r *runRegistry) claim(target, runID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.active[target]; ok {
		return current, false
	}
	r.active[target] = runID
	return runID, true
}

func (r *runRegistry) release(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, target)
}

func (r *runRegistry) current(target string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[target]
	return id, ok
}
