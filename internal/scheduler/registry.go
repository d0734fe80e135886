package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"
)

// Registry maps task names to their descriptors.
type Registry struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by name
	order      []string            // Registration order
	dependents map[string][]string // Maps name -> tasks that depend on it
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// Register stores a descriptor. It fails with a DuplicateTaskError if the name
// is already present; the registry is left unchanged on any error.
func (r *Registry) Register(task Task) error {
	if err := task.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.Name]; exists {
		return &DuplicateTaskError{Name: task.Name}
	}

	stored := cloneTask(&task)
	r.tasks[stored.Name] = stored
	r.order = append(r.order, stored.Name)

	for _, dep := range stored.DependsOn {
		r.dependents[dep] = append(r.dependents[dep], stored.Name)
	}

	return nil
}

// Get returns a copy of the named descriptor.
func (r *Registry) Get(name string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[name]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// TasksForPhase returns the phase's descriptors in registration order.
func (r *Registry) TasksForPhase(phase Phase) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := []*Task{}
	for _, name := range r.order {
		if t := r.tasks[name]; t.Phase == phase {
			tasks = append(tasks, cloneTask(t))
		}
	}
	return tasks
}

// Names returns all registered task names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Dependents returns the names of tasks that declare a dependency on name.
func (r *Registry) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.dependents[name]...)
}

// Validate checks the whole dependency graph across all phases: every
// dependency must be registered and the graph must be acyclic.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.order...)
	sort.Strings(names)

	// Verify all dependencies exist
	for _, name := range names {
		for _, dep := range r.tasks[name].DependsOn {
			if _, exists := r.tasks[dep]; !exists {
				return &MissingDependencyError{Task: name, Dependency: dep}
			}
			if dep == name {
				return &CyclicDependencyError{Cycle: []string{name, name}}
			}
		}
	}

	var edges []toposort.Edge
	for _, name := range names {
		task := r.tasks[name]
		if len(task.DependsOn) == 0 {
			// Nil edge keeps dependency-free tasks in the sort
			edges = append(edges, toposort.Edge{nil, name})
			continue
		}
		for _, dep := range task.DependsOn {
			// Edge (dep, name) means dep must come before name
			edges = append(edges, toposort.Edge{dep, name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		if cycle := findCycle(names, r.dependencyLookup()); len(cycle) > 0 {
			return &CyclicDependencyError{Cycle: cycle}
		}
		return fmt.Errorf("%w: %v", ErrCyclicDependency, err)
	}

	count := 0
	for _, id := range sorted {
		if id != nil {
			count++
		}
	}
	if count != len(r.tasks) {
		return fmt.Errorf("topological sort lost %d tasks", len(r.tasks)-count)
	}

	return nil
}

// dependencyLookup must be called with r.mu held.
func (r *Registry) dependencyLookup() func(string) []string {
	return func(name string) []string {
		if t, ok := r.tasks[name]; ok {
			return t.DependsOn
		}
		return nil
	}
}
