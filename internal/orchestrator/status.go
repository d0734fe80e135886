package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/lifecycle/internal/scheduler"
)

// Snapshot is an immutable view of the orchestrator's state. Maps must not be
// modified by callers.
type Snapshot struct {
	User    string
	Phases  map[scheduler.Phase]scheduler.PhaseStatus
	Tasks   map[string]scheduler.TaskStatus // Every registered task
	TakenAt time.Time
}

// snapshotter publishes copy-on-write snapshots. Writers serialize on mu;
// readers only load the pointer and never block.
type snapshotter struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

func (s *snapshotter) init(phases []scheduler.Phase) {
	snap := &Snapshot{
		Phases:  make(map[scheduler.Phase]scheduler.PhaseStatus, len(phases)),
		Tasks:   map[string]scheduler.TaskStatus{},
		TakenAt: time.Now(),
	}
	for _, p := range phases {
		snap.Phases[p] = scheduler.PhaseNotStarted
	}
	s.cur.Store(snap)
}

func (s *snapshotter) load() *Snapshot {
	return s.cur.Load()
}

func (s *snapshotter) update(fn func(next *Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	next := &Snapshot{
		User:    prev.User,
		Phases:  make(map[scheduler.Phase]scheduler.PhaseStatus, len(prev.Phases)),
		Tasks:   make(map[string]scheduler.TaskStatus, len(prev.Tasks)+1),
		TakenAt: time.Now(),
	}
	for k, v := range prev.Phases {
		next.Phases[k] = v
	}
	for k, v := range prev.Tasks {
		next.Tasks[k] = v
	}
	fn(next)
	s.cur.Store(next)
}

func (s *snapshotter) addTask(name string) {
	s.update(func(n *Snapshot) { n.Tasks[name] = scheduler.TaskPending })
}

func (s *snapshotter) setTask(name string, status scheduler.TaskStatus) {
	s.update(func(n *Snapshot) { n.Tasks[name] = status })
}

func (s *snapshotter) setPhase(phase scheduler.Phase, status scheduler.PhaseStatus) {
	s.update(func(n *Snapshot) { n.Phases[phase] = status })
}

func (s *snapshotter) setUser(user string) {
	s.update(func(n *Snapshot) { n.User = user })
}

// Snapshot returns the current state view. It never blocks.
func (o *Orchestrator) Snapshot() *Snapshot {
	return o.snap.load()
}

// ModuleStatus returns the status of every registered task. Tasks of phases
// that are not activated report Pending.
func (o *Orchestrator) ModuleStatus() map[string]scheduler.TaskStatus {
	tasks := o.snap.load().Tasks
	out := make(map[string]scheduler.TaskStatus, len(tasks))
	for k, v := range tasks {
		out[k] = v
	}
	return out
}

// IsTaskCompleted reports whether the task completed in its phase's current activation.
func (o *Orchestrator) IsTaskCompleted(name string) bool {
	return o.snap.load().Tasks[name] == scheduler.TaskCompleted
}

// PhaseStatus returns the state of a phase.
func (o *Orchestrator) PhaseStatus(phase scheduler.Phase) scheduler.PhaseStatus {
	return o.snap.load().Phases[phase]
}

// Result returns the result of the phase's current activation, if it finished.
func (o *Orchestrator) Result(phase scheduler.Phase) (*scheduler.PhaseResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.phases[phase]
	if !ok || st.result == nil {
		return nil, false
	}
	return st.result, true
}
