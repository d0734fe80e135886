// Package status serves the orchestrator's introspection API over HTTP:
// /health for readiness probes and /status for a JSON snapshot.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/orchestrator"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// Source provides state snapshots. *orchestrator.Orchestrator implements it.
type Source interface {
	Snapshot() *orchestrator.Snapshot
	BreakerState(task string) string
}

const breakersDisabled = "disabled"

// Report is the JSON body of /status.
type Report struct {
	User     string            `json:"user"`
	Ready    bool              `json:"ready"`
	Phases   map[string]string `json:"phases"`
	Tasks    map[string]string `json:"tasks"`
	Breakers map[string]string `json:"breakers,omitempty"` // Omitted when breakers are disabled
	TakenAt  time.Time         `json:"taken_at"`
}

// NewReport converts a snapshot into its wire form.
func NewReport(snap *orchestrator.Snapshot) Report {
	r := Report{
		User:    snap.User,
		Ready:   snap.Phases[scheduler.PhaseStartup] == scheduler.PhaseCompleted,
		Phases:  make(map[string]string, len(snap.Phases)),
		Tasks:   make(map[string]string, len(snap.Tasks)),
		TakenAt: snap.TakenAt,
	}
	for p, st := range snap.Phases {
		r.Phases[p.String()] = st.String()
	}
	for name, st := range snap.Tasks {
		r.Tasks[name] = st.String()
	}
	return r
}

// collect builds the report for src, breaker states included.
func collect(src Source) Report {
	r := NewReport(src.Snapshot())
	for name := range r.Tasks {
		state := src.BreakerState(name)
		if state == breakersDisabled {
			return r
		}
		if r.Breakers == nil {
			r.Breakers = make(map[string]string, len(r.Tasks))
		}
		r.Breakers[name] = state
	}
	return r
}

// Server is the HTTP status surface.
type Server struct {
	src Source
	log *logging.Logger
}

// NewServer creates a status server reading from src.
func NewServer(src Source, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Component("status")
	}
	return &Server{src: src, log: log}
}

// Handler returns the status routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// handleHealth answers 200 once startup completed and 503 before that.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.log.Debugf("health check from %s", r.RemoteAddr)
	if s.src.Snapshot().Phases[scheduler.PhaseStartup] != scheduler.PhaseCompleted {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "STARTING")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(collect(s.src)); err != nil {
		s.log.Err(err).Msg("encoding status report")
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("status server listening on http://%s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	s.log.Debug("status server shut down gracefully")
	return nil
}
