package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/orchestrator"
	"github.com/aristath/lifecycle/internal/scheduler"
)

func newOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	o := orchestrator.New(orchestrator.WithLogger(logging.Nop()))
	noop := func(context.Context, scheduler.Session) error { return nil }
	require.NoError(t, o.RegisterTask(scheduler.Task{Name: "db", Phase: scheduler.PhaseStartup, Initialize: noop}))
	require.NoError(t, o.RegisterTask(scheduler.Task{Name: "auth", Phase: scheduler.PhaseSession, Initialize: noop}))
	return o
}

func TestHealth(t *testing.T) {
	o := newOrchestrator(t)
	srv := httptest.NewServer(NewServer(o, logging.Nop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	_, err = o.ExecutePhase(context.Background(), scheduler.PhaseStartup)
	require.NoError(t, err)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatus_ClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t)
	srv := httptest.NewServer(NewServer(o, logging.Nop()).Handler())
	defer srv.Close()

	client := NewClient(srv.URL)

	report, err := client.Status(ctx)
	require.NoError(t, err)
	assert.False(t, report.Ready)
	assert.Equal(t, "not_started", report.Phases["startup"])
	assert.Equal(t, "pending", report.Tasks["db"])

	_, err = o.ExecutePhase(ctx, scheduler.PhaseStartup)
	require.NoError(t, err)
	_, err = o.StartSession(ctx, "alice")
	require.NoError(t, err)

	report, err = client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, report.Ready)
	assert.Equal(t, "alice", report.User)
	assert.Equal(t, map[string]string{"startup": "completed", "session": "completed"}, report.Phases)
	assert.Equal(t, map[string]string{"db": "completed", "auth": "completed"}, report.Tasks)

	healthy, err := client.Healthy(ctx)
	require.NoError(t, err)
	assert.True(t, healthy)
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(NewServer(newOrchestrator(t), logging.Nop()).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(newOrchestrator(t), logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, ln)
	}()

	client := NewClient(ln.Addr().String())
	require.Eventually(t, func() bool {
		_, err := client.Status(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestClient_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewClient(addr).Status(context.Background())
	assert.Error(t, err)
}

func TestStatus_BreakerStates(t *testing.T) {
	ctx := context.Background()
	o := orchestrator.New(
		orchestrator.WithLogger(logging.Nop()),
		orchestrator.WithBreaker(orchestrator.BreakerConfig{Enabled: true, ConsecutiveFailures: 1, OpenTimeout: time.Minute}),
	)
	noop := func(context.Context, scheduler.Session) error { return nil }
	require.NoError(t, o.RegisterTask(scheduler.Task{Name: "db", Phase: scheduler.PhaseStartup, Initialize: noop}))
	require.NoError(t, o.RegisterTask(scheduler.Task{
		Name:        "git",
		Phase:       scheduler.PhaseStartup,
		NonCritical: true,
		Initialize:  func(context.Context, scheduler.Session) error { return errors.New("no repo") },
	}))
	_, err := o.ExecutePhase(ctx, scheduler.PhaseStartup)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(o, logging.Nop()).Handler())
	defer srv.Close()

	report, err := NewClient(srv.URL).Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"db": "closed", "git": "open"}, report.Breakers)
}

func TestStatus_BreakersOmittedWhenDisabled(t *testing.T) {
	srv := httptest.NewServer(NewServer(newOrchestrator(t), logging.Nop()).Handler())
	defer srv.Close()

	report, err := NewClient(srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report.Breakers)
}
