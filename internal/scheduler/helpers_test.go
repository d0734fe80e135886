package scheduler

import (
	"context"
	"errors"
	"sync"
)

// callLog records callback invocations across tasks in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// newTask builds a startup task whose initialize and cleanup append to log.
func newTask(log *callLog, name string, deps ...string) Task {
	return Task{
		Name:      name,
		Phase:     PhaseStartup,
		DependsOn: deps,
		Initialize: func(ctx context.Context, sess Session) error {
			log.add("init:" + name)
			return nil
		},
		Cleanup: func(ctx context.Context) error {
			log.add("cleanup:" + name)
			return nil
		},
	}
}

// failing returns t with an initialize that records the call and fails.
func failing(log *callLog, t Task) Task {
	name := t.Name
	t.Initialize = func(ctx context.Context, sess Session) error {
		log.add("init:" + name)
		return errors.New(name + " exploded")
	}
	return t
}

func mustRegister(t interface{ Fatalf(string, ...any) }, r *Registry, tasks ...Task) {
	for _, task := range tasks {
		if err := r.Register(task); err != nil {
			t.Fatalf("Register(%s): %v", task.Name, err)
		}
	}
}

func names(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name
	}
	return out
}

func noPhaseDone(Phase) bool { return false }
