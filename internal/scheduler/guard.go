package scheduler

import (
	"sort"
	"sync"
)

// PhaseGuard provides per-phase mutual exclusion for activations and teardowns.
// Each phase gets its own mutex, so different phases never contend.
type PhaseGuard struct {
	mu    sync.Mutex            // Guards the locks map itself
	locks map[Phase]*sync.Mutex // Per-phase mutexes
}

// NewPhaseGuard creates a new PhaseGuard.
func NewPhaseGuard() *PhaseGuard {
	return &PhaseGuard{
		locks: make(map[Phase]*sync.Mutex),
	}
}

func (g *PhaseGuard) lockFor(phase Phase) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, exists := g.locks[phase]
	if !exists {
		l = &sync.Mutex{}
		g.locks[phase] = l
	}
	return l
}

// TryAcquire takes the phase lock without blocking. It returns false when
// another activation or teardown of the phase holds it.
func (g *PhaseGuard) TryAcquire(phase Phase) bool {
	return g.lockFor(phase).TryLock()
}

// Acquire blocks until the phase lock is held.
func (g *PhaseGuard) Acquire(phase Phase) {
	g.lockFor(phase).Lock()
}

// Release releases the phase lock.
func (g *PhaseGuard) Release(phase Phase) {
	g.mu.Lock()
	l, exists := g.locks[phase]
	g.mu.Unlock()

	if exists {
		l.Unlock()
	}
}

// AcquireAll blocks until every given phase lock is held.
// Locks are taken in ascending phase order to prevent deadlocks.
func (g *PhaseGuard) AcquireAll(phases []Phase) {
	for _, p := range sortedPhases(phases) {
		g.Acquire(p)
	}
}

// ReleaseAll releases every given phase lock in reverse acquisition order.
func (g *PhaseGuard) ReleaseAll(phases []Phase) {
	sorted := sortedPhases(phases)
	for i := len(sorted) - 1; i >= 0; i-- {
		g.Release(sorted[i])
	}
}

func sortedPhases(phases []Phase) []Phase {
	sorted := make([]Phase, len(phases))
	copy(sorted, phases)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}
