package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/logging"
)

func newTestExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return NewExecutor(cfg)
}

func resolveAll(t *testing.T, tasks ...Task) []*Task {
	t.Helper()
	r := NewRegistry()
	mustRegister(t, r, tasks...)
	order, err := r.Resolve(PhaseStartup, noPhaseDone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return order
}

func TestExecutor_AllSucceed(t *testing.T) {
	log := &callLog{}
	order := resolveAll(t,
		newTask(log, "schedule", "notification"),
		newTask(log, "notification"),
		newTask(log, "db"),
	)

	res := newTestExecutor(ExecutorConfig{}).Run(context.Background(), PhaseStartup, order, Session{})

	if res.Status != PhaseCompleted || res.Err != nil {
		t.Fatalf("phase status = %s, err = %v", res.Status, res.Err)
	}
	want := []string{"init:db", "init:notification", "init:schedule"}
	if diff := cmp.Diff(want, log.list()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"db", "notification", "schedule"}, res.CompletionOrder); diff != "" {
		t.Errorf("completion order (-want +got):\n%s", diff)
	}
	if res.ActivationID == "" {
		t.Error("activation ID not assigned")
	}
	for name, rec := range res.Records {
		if rec.Attempts != 1 {
			t.Errorf("%s attempts = %d, want 1", name, rec.Attempts)
		}
		if rec.StartedAt.IsZero() || rec.FinishedAt.Before(rec.StartedAt) {
			t.Errorf("%s has bad timing: %+v", name, rec)
		}
	}
}

func TestExecutor_CriticalFailureContainment(t *testing.T) {
	log := &callLog{}
	order := resolveAll(t,
		newTask(log, "A"),
		failing(log, newTask(log, "B")),
		newTask(log, "C"),
	)

	res := newTestExecutor(ExecutorConfig{}).Run(context.Background(), PhaseStartup, order, Session{})

	want := map[string]TaskStatus{"A": TaskCompleted, "B": TaskFailed, "C": TaskSkipped}
	if diff := cmp.Diff(want, res.Statuses()); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"init:A", "init:B"}, log.list()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}

	if res.Status != PhaseFailed {
		t.Errorf("phase status = %s, want failed", res.Status)
	}
	var pe *PhaseError
	if !errors.As(res.Err, &pe) {
		t.Fatalf("Err = %v, want PhaseError", res.Err)
	}
	if pe.Task != "B" {
		t.Errorf("failing task = %q, want B", pe.Task)
	}
	if diff := cmp.Diff([]string{"C"}, pe.Skipped); diff != "" {
		t.Errorf("skipped (-want +got):\n%s", diff)
	}
	if !errors.Is(res.Err, ErrTaskExecution) {
		t.Errorf("Err does not wrap ErrTaskExecution: %v", res.Err)
	}

	rec, _ := res.Record("B")
	var te *TaskExecutionError
	if !errors.As(rec.Err, &te) || te.Err.Error() != "B exploded" {
		t.Errorf("B record error = %v", rec.Err)
	}
	if skipped, _ := res.Record("C"); !skipped.StartedAt.IsZero() {
		t.Error("skipped task has a start time")
	}
}

func TestExecutor_NonCriticalFailureIsolation(t *testing.T) {
	log := &callLog{}
	b := failing(log, newTask(log, "B"))
	b.NonCritical = true
	order := resolveAll(t,
		newTask(log, "A"),
		b,
		newTask(log, "C"),
		newTask(log, "D", "B"),
	)

	res := newTestExecutor(ExecutorConfig{}).Run(context.Background(), PhaseStartup, order, Session{})

	want := map[string]TaskStatus{"A": TaskCompleted, "B": TaskFailed, "C": TaskCompleted, "D": TaskSkipped}
	if diff := cmp.Diff(want, res.Statuses()); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if res.Status != PhaseCompleted || res.Err != nil {
		t.Errorf("phase = %s, err = %v; want completed", res.Status, res.Err)
	}

	rec, _ := res.Record("D")
	var dfe *DependencyFailedError
	if !errors.As(rec.Err, &dfe) {
		t.Fatalf("D error = %v, want DependencyFailedError", rec.Err)
	}
	if dfe.Dependency != "B" || dfe.Status != TaskFailed {
		t.Errorf("got %+v", dfe)
	}
	for _, call := range log.list() {
		if call == "init:D" {
			t.Error("D ran despite failed dependency")
		}
	}
}

func TestExecutor_SkipCascades(t *testing.T) {
	log := &callLog{}
	b := failing(log, newTask(log, "b"))
	b.NonCritical = true
	order := resolveAll(t, b, newTask(log, "c", "b"), newTask(log, "d", "c"))

	res := newTestExecutor(ExecutorConfig{}).Run(context.Background(), PhaseStartup, order, Session{})

	rec, _ := res.Record("d")
	var dfe *DependencyFailedError
	if !errors.As(rec.Err, &dfe) || dfe.Dependency != "c" || dfe.Status != TaskSkipped {
		t.Errorf("d error = %v, want dependency c skipped", rec.Err)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	slow := Task{
		Name:    "slow",
		Phase:   PhaseStartup,
		Timeout: 20 * time.Millisecond,
		Initialize: func(ctx context.Context, sess Session) error {
			<-release // ignores its context
			return nil
		},
	}
	log := &callLog{}
	order := resolveAll(t, slow, newTask(log, "z"))

	start := time.Now()
	res := newTestExecutor(ExecutorConfig{}).Run(context.Background(), PhaseStartup, order, Session{})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("executor waited %s for a 20ms timeout", elapsed)
	}

	rec, _ := res.Record("slow")
	var te *TimeoutError
	if !errors.As(rec.Err, &te) || te.Timeout != 20*time.Millisecond {
		t.Fatalf("slow error = %v, want TimeoutError", rec.Err)
	}
	if rec.Status != TaskFailed {
		t.Errorf("slow status = %s", rec.Status)
	}
	if !errors.Is(res.Err, ErrTimeout) {
		t.Errorf("phase error = %v, want ErrTimeout", res.Err)
	}
	if st := res.Statuses()["z"]; st != TaskSkipped {
		t.Errorf("z status = %s, want skipped", st)
	}
}

func TestExecutor_DefaultTimeoutHonoursContext(t *testing.T) {
	task := Task{
		Name:  "waits",
		Phase: PhaseStartup,
		Initialize: func(ctx context.Context, sess Session) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	order := resolveAll(t, task)

	res := newTestExecutor(ExecutorConfig{DefaultTimeout: 10 * time.Millisecond}).
		Run(context.Background(), PhaseStartup, order, Session{})

	rec, _ := res.Record("waits")
	if !errors.Is(rec.Err, ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", rec.Err)
	}
}

func TestExecutor_PanicIsFailure(t *testing.T) {
	task := Task{
		Name:  "panics",
		Phase: PhaseStartup,
		Initialize: func(ctx context.Context, sess Session) error {
			panic("boom")
		},
		NonCritical: true,
	}
	order := resolveAll(t, task)

	res := newTestExecutor(ExecutorConfig{}).Run(context.Background(), PhaseStartup, order, Session{})

	rec, _ := res.Record("panics")
	if rec.Status != TaskFailed || !errors.Is(rec.Err, ErrTaskExecution) {
		t.Errorf("record = %+v", rec)
	}
}

func TestExecutor_CancelledContextAbortsPhase(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	log := &callLog{}

	first := newTask(log, "a")
	first.Initialize = func(context.Context, Session) error {
		log.add("init:a")
		cancel()
		return nil
	}
	order := resolveAll(t, first, newTask(log, "b"))

	res := newTestExecutor(ExecutorConfig{}).Run(ctx, PhaseStartup, order, Session{})

	want := map[string]TaskStatus{"a": TaskCompleted, "b": TaskSkipped}
	if diff := cmp.Diff(want, res.Statuses()); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("phase error = %v, want context.Canceled", res.Err)
	}
}

func TestExecutor_SessionPassedThrough(t *testing.T) {
	var got Session
	task := Task{
		Name:  "auth",
		Phase: PhaseSession,
		Initialize: func(ctx context.Context, sess Session) error {
			got = sess
			return nil
		},
	}
	r := NewRegistry()
	mustRegister(t, r, task)
	order, _ := r.Resolve(PhaseSession, noPhaseDone)

	res := newTestExecutor(ExecutorConfig{}).Run(context.Background(), PhaseSession, order,
		Session{User: "ada", ActivationID: "act-1"})

	if got.User != "ada" || got.ActivationID != "act-1" {
		t.Errorf("session = %+v", got)
	}
	if res.User != "ada" || res.ActivationID != "act-1" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecutor_CrossPhaseDependencyStatus(t *testing.T) {
	log := &callLog{}
	r := NewRegistry()
	reminders := newTask(log, "reminders", "git")
	reminders.Phase = PhaseSession
	accounts := newTask(log, "accounts", "db")
	accounts.Phase = PhaseSession
	mustRegister(t, r, newTask(log, "db"), newTask(log, "git"), reminders, accounts)

	order, err := r.Resolve(PhaseSession, func(p Phase) bool { return p == PhaseStartup })
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	startup := map[string]TaskStatus{"db": TaskCompleted, "git": TaskFailed}
	exec := newTestExecutor(ExecutorConfig{
		DependencyStatus: func(name string) (TaskStatus, bool) {
			s, ok := startup[name]
			return s, ok
		},
	})
	res := exec.Run(context.Background(), PhaseSession, order, Session{User: "ada"})

	want := map[string]TaskStatus{"accounts": TaskCompleted, "reminders": TaskSkipped}
	if diff := cmp.Diff(want, res.Statuses()); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
}

func TestExecutor_InvokeWrapsAttempts(t *testing.T) {
	calls := 0
	task := Task{
		Name:  "flaky",
		Phase: PhaseStartup,
		Initialize: func(ctx context.Context, sess Session) error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		},
	}
	retry := func(ctx context.Context, _ *Task, call func(context.Context) error) error {
		var err error
		for i := 0; i < 5; i++ {
			if err = call(ctx); err == nil {
				return nil
			}
		}
		return err
	}
	order := resolveAll(t, task)

	res := newTestExecutor(ExecutorConfig{Invoke: retry}).Run(context.Background(), PhaseStartup, order, Session{})

	rec, _ := res.Record("flaky")
	if rec.Status != TaskCompleted || rec.Attempts != 3 {
		t.Errorf("record = %+v, want completed after 3 attempts", rec)
	}
}

func TestExecutor_EventsAndObserver(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.SubscribeAll(64)

	var mu sync.Mutex
	var transitions []string
	observe := func(p Phase, rec Record) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, rec.Task+":"+rec.Status.String())
	}

	log := &callLog{}
	b := failing(log, newTask(log, "b"))
	b.NonCritical = true
	order := resolveAll(t, newTask(log, "a"), b, newTask(log, "c", "b"))

	newTestExecutor(ExecutorConfig{Events: bus, Observe: observe}).
		Run(context.Background(), PhaseStartup, order, Session{})

	wantTransitions := []string{
		"a:running", "a:completed",
		"b:running", "b:failed",
		"c:skipped",
	}
	if diff := cmp.Diff(wantTransitions, transitions); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}

	var types []string
	for len(sub) > 0 {
		ev := <-sub
		if ev.EventType() == events.EventTypePhaseProgress {
			continue
		}
		types = append(types, ev.EventType()+":"+ev.Subject())
	}
	wantTypes := []string{
		"phase.started:startup",
		"task.started:a", "task.completed:a",
		"task.started:b", "task.failed:b",
		"task.skipped:c",
		"phase.finished:startup",
	}
	if diff := cmp.Diff(wantTypes, types); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}
