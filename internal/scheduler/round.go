package scheduler

import (
	"sync"
)

// Round coordinates producer stages with the join step that consumes their output.
// Stages may run concurrently with each other; the join runs alone and only once every
// stage has completed successfully since the previous join.
type Round struct {
	gate sync.RWMutex

	mu        sync.Mutex
	stages    []string
	completed map[string]uint64
	joined    map[string]uint64
}

// NewRound creates a round over the named stages
func NewRound(stages ...string) *Round {
	return &Round{
		stages:    stages,
		completed: make(map[string]uint64, len(stages)),
		joined:    make(map[string]uint64, len(stages)),
	}
}

// Stage runs fn as the named stage. A nil error marks the stage complete for this round.
func (r *Round) Stage(name string, fn func() error) error {
	r.gate.RLock()
	defer r.gate.RUnlock()

	if err := fn(); err != nil {
		return err
	}

	r.mu.Lock()
	r.completed[name]++
	r.mu.Unlock()
	return nil
}

// Ready reports whether every stage has completed since the last successful join
func (r *Round) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readyLocked()
}

func (r *Round) readyLocked() bool {
	for _, s := range r.stages {
		if r.completed[s] <= r.joined[s] {
			return false
		}
	}
	return true
}

// Join runs fn with no stage in flight. It reports false without calling fn when some
// stage has not completed since the previous join.
func (r *Round) Join(fn func() error) (bool, error) {
	r.gate.Lock()
	defer r.gate.Unlock()

	r.mu.Lock()
	ready := r.readyLocked()
	snapshot := make(map[string]uint64, len(r.completed))
	for k, v := range r.completed {
		snapshot[k] = v
	}
	r.mu.Unlock()

	if !ready {
		return false, nil
	}

	if err := fn(); err != nil {
		return true, err
	}

	r.mu.Lock()
	r.joined = snapshot
	r.mu.Unlock()
	return true, nil
}
