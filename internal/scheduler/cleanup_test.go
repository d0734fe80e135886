package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aristath/lifecycle/internal/logging"
)

func runPhase(t *testing.T, tasks ...Task) (*Registry, *PhaseResult) {
	t.Helper()
	r := NewRegistry()
	mustRegister(t, r, tasks...)
	order, err := r.Resolve(PhaseStartup, noPhaseDone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	res := newTestExecutor(ExecutorConfig{}).Run(context.Background(), PhaseStartup, order, Session{})
	return r, res
}

func TestCleanup_ReverseCompletionOrder(t *testing.T) {
	log := &callLog{}
	r, res := runPhase(t, newTask(log, "A"), newTask(log, "B", "A"), newTask(log, "C", "B"))

	out := NewCleanupCoordinator(CleanupConfig{Logger: logging.Nop()}).Run(context.Background(), res, r.Get)

	want := []string{"init:A", "init:B", "init:C", "cleanup:C", "cleanup:B", "cleanup:A"}
	if diff := cmp.Diff(want, log.list()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"C", "B", "A"}, out.Cleaned); diff != "" {
		t.Errorf("cleaned (-want +got):\n%s", diff)
	}
	if !out.OK() {
		t.Errorf("unexpected errors: %v", out.Errors)
	}
	if out.ActivationID != res.ActivationID {
		t.Errorf("activation = %q, want %q", out.ActivationID, res.ActivationID)
	}
}

func TestCleanup_OnlyCompletedTasks(t *testing.T) {
	log := &callLog{}
	r, res := runPhase(t,
		newTask(log, "A"),
		failing(log, newTask(log, "B")),
		newTask(log, "C"),
	)

	out := NewCleanupCoordinator(CleanupConfig{Logger: logging.Nop()}).Run(context.Background(), res, r.Get)

	if diff := cmp.Diff([]string{"A"}, out.Cleaned); diff != "" {
		t.Errorf("cleaned (-want +got):\n%s", diff)
	}
	for _, call := range log.list() {
		if call == "cleanup:B" || call == "cleanup:C" {
			t.Errorf("cleanup ran for a task that never completed: %s", call)
		}
	}
}

func TestCleanup_FailuresDoNotStopTeardown(t *testing.T) {
	log := &callLog{}
	b := newTask(log, "B")
	b.Cleanup = func(context.Context) error {
		log.add("cleanup:B")
		return errors.New("disk gone")
	}
	c := newTask(log, "C")
	c.Cleanup = func(context.Context) error {
		log.add("cleanup:C")
		panic("nil handle")
	}
	r, res := runPhase(t, newTask(log, "A"), b, c, newTask(log, "D"))

	out := NewCleanupCoordinator(CleanupConfig{Logger: logging.Nop()}).Run(context.Background(), res, r.Get)

	if diff := cmp.Diff([]string{"D", "C", "B", "A"}, out.Cleaned); diff != "" {
		t.Errorf("cleaned (-want +got):\n%s", diff)
	}
	if out.OK() || len(out.Errors) != 2 {
		t.Fatalf("errors = %v, want B and C", out.Errors)
	}

	var ce *CleanupError
	if !errors.As(out.Errors["B"], &ce) || ce.Task != "B" || ce.Err.Error() != "disk gone" {
		t.Errorf("B error = %v", out.Errors["B"])
	}
	if !errors.Is(out.Errors["C"], ErrCleanup) {
		t.Errorf("C error = %v, want ErrCleanup", out.Errors["C"])
	}
}

func TestCleanup_NoCallbackIsSkipped(t *testing.T) {
	log := &callLog{}
	bare := newTask(log, "bare")
	bare.Cleanup = nil
	r, res := runPhase(t, bare, newTask(log, "full"))

	out := NewCleanupCoordinator(CleanupConfig{Logger: logging.Nop()}).Run(context.Background(), res, r.Get)

	if diff := cmp.Diff([]string{"full"}, out.Cleaned); diff != "" {
		t.Errorf("cleaned (-want +got):\n%s", diff)
	}
}

func TestCleanup_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	log := &callLog{}
	stuck := newTask(log, "stuck")
	stuck.Cleanup = func(context.Context) error {
		<-release
		return nil
	}
	r, res := runPhase(t, newTask(log, "after"), stuck)

	out := NewCleanupCoordinator(CleanupConfig{DefaultTimeout: 10 * time.Millisecond, Logger: logging.Nop()}).
		Run(context.Background(), res, r.Get)

	if !errors.Is(out.Errors["stuck"], ErrTimeout) {
		t.Errorf("stuck error = %v, want ErrTimeout", out.Errors["stuck"])
	}
	// "stuck" completed last, so it is cleaned first; "after" must still run.
	if diff := cmp.Diff([]string{"stuck", "after"}, out.Cleaned); diff != "" {
		t.Errorf("cleaned (-want +got):\n%s", diff)
	}
}
