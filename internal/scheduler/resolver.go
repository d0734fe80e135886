package scheduler

import (
	"container/heap"
	"sort"
)

// Lookup finds a registered descriptor by name.
type Lookup func(name string) (*Task, bool)

// Resolve orders one phase's tasks so that every task comes after all of its
// same-phase dependencies. Ties are broken by ascending Priority, then Name.
//
// Dependencies on tasks of another phase are allowed only when phaseDone
// reports that phase as completed. Unknown dependencies fail before any
// ordering work is done.
func Resolve(tasks []*Task, lookup Lookup, phaseDone func(Phase) bool) ([]*Task, error) {
	byName := make(map[string]*Task, len(tasks))
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byName[t.Name] = t
		names = append(names, t.Name)
	}
	sort.Strings(names)

	local := make(map[string][]string, len(tasks))
	for _, name := range names {
		task := byName[name]
		deps := append([]string(nil), task.DependsOn...)
		sort.Strings(deps)
		for _, depName := range deps {
			if _, ok := byName[depName]; ok {
				local[name] = append(local[name], depName)
				continue
			}
			dep, ok := lookup(depName)
			if !ok {
				return nil, &MissingDependencyError{Task: name, Dependency: depName}
			}
			if dep.Phase == task.Phase {
				// Registered after the phase snapshot was taken
				return nil, &MissingDependencyError{Task: name, Dependency: depName}
			}
			if phaseDone == nil || !phaseDone(dep.Phase) {
				return nil, &PhaseOrderError{
					Task:            name,
					Phase:           task.Phase,
					Dependency:      depName,
					DependencyPhase: dep.Phase,
				}
			}
		}
	}

	indeg := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, name := range names {
		indeg[name] = len(local[name])
		for _, dep := range local[name] {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := &taskHeap{}
	heap.Init(ready)
	for _, name := range names {
		if indeg[name] == 0 {
			heap.Push(ready, byName[name])
		}
	}

	out := make([]*Task, 0, len(tasks))
	for ready.Len() > 0 {
		t := heap.Pop(ready).(*Task)
		out = append(out, t)
		for _, d := range dependents[t.Name] {
			indeg[d]--
			if indeg[d] == 0 {
				heap.Push(ready, byName[d])
			}
		}
	}

	if len(out) != len(tasks) {
		var remaining []string
		for _, name := range names {
			if indeg[name] > 0 {
				remaining = append(remaining, name)
			}
		}
		cycle := findCycle(remaining, func(name string) []string { return local[name] })
		return nil, &CyclicDependencyError{Cycle: cycle}
	}

	return out, nil
}

// Resolve orders the registered tasks of one phase.
func (r *Registry) Resolve(phase Phase, phaseDone func(Phase) bool) ([]*Task, error) {
	return Resolve(r.TasksForPhase(phase), r.Get, phaseDone)
}

// taskHeap is a min-heap by (Priority, Name).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Name < h[j].Name
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// findCycle walks "depends on" edges depth-first in name order and returns
// one closed cycle path, rotated to start at its smallest member.
func findCycle(names []string, deps func(string) []string) []string {
	const (
		white = iota
		gray
		black
	)

	nodes := append([]string(nil), names...)
	sort.Strings(nodes)
	inGraph := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inGraph[n] = true
	}

	color := make(map[string]int, len(nodes))
	var path []string

	var dfs func(u string) []string
	dfs = func(u string) []string {
		color[u] = gray
		path = append(path, u)

		next := append([]string(nil), deps(u)...)
		sort.Strings(next)
		for _, v := range next {
			if !inGraph[v] {
				continue
			}
			switch color[v] {
			case white:
				if c := dfs(v); c != nil {
					return c
				}
			case gray:
				start := 0
				for i, p := range path {
					if p == v {
						start = i
						break
					}
				}
				return closeCycle(path[start:])
			}
		}

		path = path[:len(path)-1]
		color[u] = black
		return nil
	}

	for _, n := range nodes {
		if color[n] != white {
			continue
		}
		if c := dfs(n); c != nil {
			return c
		}
	}
	return nil
}

func closeCycle(members []string) []string {
	if len(members) == 0 {
		return nil
	}
	min := 0
	for i, m := range members {
		if m < members[min] {
			min = i
		}
	}
	out := make([]string, 0, len(members)+1)
	out = append(out, members[min:]...)
	out = append(out, members[:min]...)
	return append(out, out[0])
}
