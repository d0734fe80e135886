// Package orchestrator is the lifecycle façade. One Orchestrator is created by
// the host's entry point and handed to every feature module, which registers
// its tasks on it. The host then activates and tears down phases.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	logger         *logging.Logger
	bus            *events.EventBus
	defaultTimeout time.Duration
	retry          RetryConfig
	breaker        BreakerConfig
}

// WithLogger sets the logger. Defaults to the "orchestrator" component logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEventBus publishes lifecycle events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(o *options) { o.bus = bus }
}

// WithDefaultTimeout bounds initialize and cleanup for tasks without their own timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) { o.defaultTimeout = d }
}

// WithRetryConfig sets the backoff defaults for tasks with a RetryPolicy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithBreaker configures per-task circuit breakers.
func WithBreaker(cfg BreakerConfig) Option {
	return func(o *options) { o.breaker = cfg }
}

// ErrPhaseCleaningUp rejects an activation while the phase is being torn down.
var ErrPhaseCleaningUp = errors.New("phase cleanup in progress")

type phaseState struct {
	status   scheduler.PhaseStatus
	result   *scheduler.PhaseResult
	cleaning bool // Set while CleanupPhase or Shutdown tears the phase down
}

// Orchestrator owns the task registry, the per-phase execution records and the
// session context. Its methods are safe for concurrent use.
type Orchestrator struct {
	registry *scheduler.Registry
	guard    *scheduler.PhaseGuard
	executor *scheduler.Executor
	cleaner  *scheduler.CleanupCoordinator
	breakers *CircuitBreakerRegistry
	bus      *events.EventBus
	log      *logging.Logger

	mu     sync.Mutex // Guards phases and user
	phases map[scheduler.Phase]*phaseState
	user   string

	snap snapshotter
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	cfg := options{
		retry:   DefaultRetryConfig(),
		breaker: DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.Component("orchestrator")
	}

	o := &Orchestrator{
		registry: scheduler.NewRegistry(),
		guard:    scheduler.NewPhaseGuard(),
		bus:      cfg.bus,
		log:      cfg.logger,
		phases:   make(map[scheduler.Phase]*phaseState),
	}
	for _, p := range scheduler.Phases() {
		o.phases[p] = &phaseState{status: scheduler.PhaseNotStarted}
	}
	o.snap.init(scheduler.Phases())

	invoker := &resilientInvoker{retry: cfg.retry}
	if cfg.breaker.Enabled {
		o.breakers = NewCircuitBreakerRegistry(cfg.breaker, cfg.logger.WithComponent("breaker"))
		invoker.breakers = o.breakers
	}

	var pub events.Publisher
	if cfg.bus != nil {
		pub = cfg.bus
	}

	o.executor = scheduler.NewExecutor(scheduler.ExecutorConfig{
		Invoke:           invoker.invoke,
		DefaultTimeout:   cfg.defaultTimeout,
		Events:           pub,
		Logger:           cfg.logger.WithComponent("scheduler"),
		DependencyStatus: o.completedTaskStatus,
		Observe: o.observe,
	})
	o.cleaner = scheduler.NewCleanupCoordinator(scheduler.CleanupConfig{
		DefaultTimeout: cfg.defaultTimeout,
		Events:         pub,
		Logger:         cfg.logger.WithComponent("cleanup"),
	})

	return o
}

// RegisterTask adds a task descriptor. Registration order across modules is
// irrelevant. It fails with a DuplicateTaskError if the name is taken.
func (o *Orchestrator) RegisterTask(task scheduler.Task) error {
	if err := o.registry.Register(task); err != nil {
		return err
	}
	o.snap.addTask(task.Name)
	o.log.Debugf("registered task %s (%s)", task.Name, task.Phase)
	return nil
}

// ExecutePhase activates a phase: it validates the whole dependency graph,
// resolves the phase's order and runs its tasks.
//
// A phase that already finished returns its cached result (and, if it failed,
// its error) without running anything; CleanupPhase resets it. A concurrent
// activation of the same phase fails with a PhaseAlreadyRunningError, and an
// activation attempted while the phase is being torn down fails with
// ErrPhaseCleaningUp.
func (o *Orchestrator) ExecutePhase(ctx context.Context, phase scheduler.Phase) (*scheduler.PhaseResult, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("execute phase: unknown phase %d", int(phase))
	}
	if !o.guard.TryAcquire(phase) {
		return nil, o.busyError(phase)
	}
	defer o.guard.Release(phase)

	// The user is read and the phase marked Running in one critical section,
	// so SetCurrentUser cannot slip in between.
	o.mu.Lock()
	st := o.phases[phase]
	if st.status == scheduler.PhaseCompleted || st.status == scheduler.PhaseFailed {
		res := st.result
		o.mu.Unlock()
		o.log.Debugf("phase %s already %s, returning cached result", phase, res.Status)
		return res, res.Err
	}
	user := o.user
	if phase == scheduler.PhaseSession && user == "" {
		o.mu.Unlock()
		return nil, fmt.Errorf("execute phase %s: %w", phase, scheduler.ErrNoCurrentUser)
	}
	st.status = scheduler.PhaseRunning
	st.result = nil
	o.snap.setPhase(phase, scheduler.PhaseRunning)
	o.mu.Unlock()

	order, err := o.resolve(phase)
	if err != nil {
		o.setPhaseStatus(phase, scheduler.PhaseNotStarted, nil)
		return nil, err
	}

	res := o.executor.Run(ctx, phase, order, scheduler.Session{
		User:         user,
		ActivationID: uuid.NewString(),
	})

	o.setPhaseStatus(phase, res.Status, res)
	return res, res.Err
}

func (o *Orchestrator) resolve(phase scheduler.Phase) ([]*scheduler.Task, error) {
	if err := o.registry.Validate(); err != nil {
		o.log.Err(err).Str("phase", phase.String()).Msg("dependency graph rejected")
		return nil, err
	}
	order, err := o.registry.Resolve(phase, o.phaseCompleted)
	if err != nil {
		o.log.Err(err).Str("phase", phase.String()).Msg("phase order rejected")
		return nil, err
	}
	return order, nil
}

// busyError explains why the phase guard could not be taken.
func (o *Orchestrator) busyError(phase scheduler.Phase) error {
	o.mu.Lock()
	cleaning := o.phases[phase].cleaning
	o.mu.Unlock()
	if cleaning {
		return fmt.Errorf("execute phase %s: %w", phase, ErrPhaseCleaningUp)
	}
	return &scheduler.PhaseAlreadyRunningError{Phase: phase}
}

// CleanupPhase tears a phase down: every completed task's cleanup runs in
// reverse completion order, failures are logged and collected, and the phase
// returns to NotStarted. Cleaning up the session phase clears the current user.
// It never fails; a phase that was never activated yields an empty result.
func (o *Orchestrator) CleanupPhase(ctx context.Context, phase scheduler.Phase) *scheduler.CleanupResult {
	if !phase.Valid() {
		return &scheduler.CleanupResult{Phase: phase, Errors: map[string]error{}}
	}
	o.guard.Acquire(phase)
	defer o.guard.Release(phase)

	phases := []scheduler.Phase{phase}
	o.setCleaning(phases, true)
	defer o.setCleaning(phases, false)
	return o.cleanup(ctx, phase)
}

// cleanup must be called with the phase guard held.
func (o *Orchestrator) cleanup(ctx context.Context, phase scheduler.Phase) *scheduler.CleanupResult {
	o.mu.Lock()
	st := o.phases[phase]
	res := st.result
	o.mu.Unlock()

	var out *scheduler.CleanupResult
	if res == nil {
		now := time.Now()
		out = &scheduler.CleanupResult{Phase: phase, Errors: map[string]error{}, StartedAt: now, FinishedAt: now}
	} else {
		out = o.cleaner.Run(ctx, res, o.registry.Get)
	}

	// Status reset and user clear happen together so a SetCurrentUser racing
	// the teardown either fails or survives it.
	o.mu.Lock()
	st.status = scheduler.PhaseNotStarted
	st.result = nil
	o.snap.setPhase(phase, scheduler.PhaseNotStarted)
	prevUser := ""
	if phase == scheduler.PhaseSession {
		prevUser = o.user
		o.user = ""
		o.snap.setUser("")
	}
	o.mu.Unlock()

	for _, task := range o.registry.TasksForPhase(phase) {
		o.snap.setTask(task.Name, scheduler.TaskPending)
	}
	if prevUser != "" {
		o.userChanged(prevUser, "")
	}
	return out
}

// Plan returns the order in which a phase's tasks would run, assuming every
// earlier phase has completed. Nothing is executed.
func (o *Orchestrator) Plan(phase scheduler.Phase) ([]string, error) {
	if err := o.registry.Validate(); err != nil {
		return nil, err
	}
	order, err := o.registry.Resolve(phase, func(p scheduler.Phase) bool { return p < phase })
	if err != nil {
		return nil, err
	}
	out := make([]string, len(order))
	for i, t := range order {
		out[i] = t.Name
	}
	return out, nil
}

// Shutdown cleans up every activated phase, latest phase first. It holds
// every phase guard for the whole teardown, so no phase can be activated
// part way through.
func (o *Orchestrator) Shutdown(ctx context.Context) []*scheduler.CleanupResult {
	phases := scheduler.Phases()
	o.guard.AcquireAll(phases)
	defer o.guard.ReleaseAll(phases)

	o.setCleaning(phases, true)
	defer o.setCleaning(phases, false)

	var results []*scheduler.CleanupResult
	for i := len(phases) - 1; i >= 0; i-- {
		if o.PhaseStatus(phases[i]) == scheduler.PhaseNotStarted {
			continue
		}
		results = append(results, o.cleanup(ctx, phases[i]))
	}
	o.log.Info("shutdown complete")
	return results
}

func (o *Orchestrator) setCleaning(phases []scheduler.Phase, cleaning bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range phases {
		o.phases[p].cleaning = cleaning
	}
}

// Tasks returns the registered task names in registration order.
func (o *Orchestrator) Tasks() []string {
	return o.registry.Names()
}

// Task returns a copy of a registered descriptor.
func (o *Orchestrator) Task(name string) (*scheduler.Task, bool) {
	return o.registry.Get(name)
}

// BreakerState reports the circuit breaker state of a task; "disabled" when
// breakers are off.
func (o *Orchestrator) BreakerState(task string) string {
	if o.breakers == nil {
		return "disabled"
	}
	return o.breakers.State(task).String()
}

func (o *Orchestrator) setPhaseStatus(phase scheduler.Phase, status scheduler.PhaseStatus, res *scheduler.PhaseResult) {
	o.mu.Lock()
	st := o.phases[phase]
	st.status = status
	st.result = res
	o.snap.setPhase(phase, status)
	o.mu.Unlock()
}

// observe mirrors record changes into the snapshot and names the tasks a
// failure will hold back.
func (o *Orchestrator) observe(phase scheduler.Phase, rec scheduler.Record) {
	o.snap.setTask(rec.Task, rec.Status)
	if rec.Status != scheduler.TaskFailed {
		return
	}
	if deps := o.registry.Dependents(rec.Task); len(deps) > 0 {
		o.log.Warnf("task %s failed in %s; dependents %s will not run", rec.Task, phase, strings.Join(deps, ", "))
	}
}

// phaseCompleted must be called without o.mu held.
func (o *Orchestrator) phaseCompleted(p scheduler.Phase) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.phases[p]
	return ok && st.status == scheduler.PhaseCompleted
}

// completedTaskStatus looks a task up in the records of other phases.
func (o *Orchestrator) completedTaskStatus(name string) (scheduler.TaskStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, st := range o.phases {
		if st.result == nil {
			continue
		}
		if rec, ok := st.result.Records[name]; ok {
			return rec.Status, true
		}
	}
	return scheduler.TaskPending, false
}
