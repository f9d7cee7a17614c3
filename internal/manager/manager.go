// Package manager is the entry point used by collaborators: it ties the
// config loader, the team factory and the execution engine together and
// runs teams in the foreground or in the background.
package manager

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/component"
	"github.com/Iron-Ham/teamrun/internal/config"
	"github.com/Iron-Ham/teamrun/internal/event"
	"github.com/Iron-Ham/teamrun/internal/logging"
	"github.com/Iron-Ham/teamrun/internal/result"
	"github.com/Iron-Ham/teamrun/internal/runner"
	"github.com/Iron-Ham/teamrun/internal/teamconfig"
)

// Config holds the dependencies of a Manager. Nil dependencies are
// created with defaults.
type Config struct {
	Loader  *teamconfig.Loader
	Factory *component.Factory
	Engine  *runner.Engine
	Bus     *event.Bus
	Logger  *logging.Logger

	// DefaultTimeout bounds runs whose RunOptions carry no timeout. Zero
	// means no limit.
	DefaultTimeout time.Duration
	// MaxConcurrent caps background runs started with Submit. Zero means
	// unlimited.
	MaxConcurrent int
	// MaxHistory caps finished runs kept for Status and Result. The oldest
	// are evicted when a new run is registered. Zero means
	// DefaultMaxHistory.
	MaxHistory int
}

// DefaultMaxHistory is the number of finished runs a Manager remembers when
// Config.MaxHistory is zero.
const DefaultMaxHistory = 100

// RunOptions tune a single run.
type RunOptions struct {
	// Env overrides are visible to the team's components for this run only.
	Env map[string]string
	// RunID replaces the generated run ID.
	RunID string
	// Timeout bounds the run; on expiry it is cancelled.
	Timeout time.Duration
}

// Manager runs teams described by config sources: a file path, a decoded
// mapping, raw bytes or a teamconfig.TeamConfig. Every run builds a fresh
// team. It is safe for concurrent use.
type Manager struct {
	loader  *teamconfig.Loader
	factory *component.Factory
	engine  *runner.Engine
	logger  *logging.Logger
	timeout time.Duration
	history int

	sem chan struct{}
	wg  conc.WaitGroup

	mu    sync.RWMutex
	runs  map[string]*runner.Handle
	order []string // run IDs, oldest first
}

// New creates a Manager.
func New(cfg Config) (*Manager, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	if cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("manager: max concurrent must be non-negative, got %d", cfg.MaxConcurrent)
	}
	if cfg.MaxHistory < 0 {
		return nil, fmt.Errorf("manager: max history must be non-negative, got %d", cfg.MaxHistory)
	}
	history := cfg.MaxHistory
	if history == 0 {
		history = DefaultMaxHistory
	}

	loader := cfg.Loader
	if loader == nil {
		var err error
		loader, err = teamconfig.NewLoader(teamconfig.WithLogger(logger), teamconfig.WithBus(cfg.Bus))
		if err != nil {
			return nil, err
		}
	}
	factory := cfg.Factory
	if factory == nil {
		factory = component.NewFactory(loader, component.WithLogger(logger), component.WithBus(cfg.Bus))
	}
	engine := cfg.Engine
	if engine == nil {
		engine = runner.NewEngine(runner.WithLogger(logger), runner.WithBus(cfg.Bus))
	}

	m := &Manager{
		loader:  loader,
		factory: factory,
		engine:  engine,
		logger:  logger.WithComponent("manager"),
		timeout: cfg.DefaultTimeout,
		history: history,
		runs:    make(map[string]*runner.Handle),
	}
	if cfg.MaxConcurrent > 0 {
		m.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return m, nil
}

// NewFromConfig wires a Manager from application configuration.
func NewFromConfig(cfg *config.Config, logger *logging.Logger, bus *event.Bus) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	loader, err := teamconfig.NewLoader(
		teamconfig.WithLogger(logger),
		teamconfig.WithBus(bus),
		teamconfig.WithMatch(cfg.Teams.Match),
	)
	if err != nil {
		return nil, err
	}
	factory := component.NewFactory(loader,
		component.WithLogger(logger),
		component.WithBus(bus),
		component.WithModelDefaults(component.ModelDefaults{
			BaseURL: cfg.Model.BaseURL,
			Timeout: cfg.Model.RequestTimeout,
		}),
	)
	return New(Config{
		Loader:         loader,
		Factory:        factory,
		Engine:         runner.NewEngine(runner.WithLogger(logger), runner.WithBus(bus)),
		Bus:            bus,
		Logger:         logger,
		DefaultTimeout: cfg.Run.Timeout,
		MaxConcurrent:  cfg.Run.MaxConcurrent,
		MaxHistory:     cfg.Run.MaxHistory,
	})
}

// Loader returns the config loader.
func (m *Manager) Loader() *teamconfig.Loader { return m.loader }

// Factory returns the team factory.
func (m *Manager) Factory() *component.Factory { return m.factory }

// Engine returns the execution engine.
func (m *Manager) Engine() *runner.Engine { return m.engine }

// LoadOne loads a single team config file.
func (m *Manager) LoadOne(path string) (teamconfig.TeamConfig, error) {
	return m.loader.LoadOne(path)
}

// LoadDirectory loads every recognized team config in dir.
func (m *Manager) LoadDirectory(dir string) (teamconfig.DirectoryResult, error) {
	return m.loader.LoadDirectory(dir)
}

// Build constructs a team from source with scoped env overrides. The
// caller owns the team.
func (m *Manager) Build(ctx context.Context, source any, env map[string]string) (agentchat.Team, error) {
	return m.factory.Build(ctx, source, env)
}

// Run builds a team from source and runs it on task in the foreground.
// Configuration and construction errors are returned before anything
// runs; after that Run behaves like runner.Engine.Run.
func (m *Manager) Run(ctx context.Context, source any, task string, opts RunOptions) (*result.TeamResult, error) {
	team, err := m.factory.Build(ctx, source, opts.Env)
	if err != nil {
		return nil, err
	}
	h, err := m.prepare(ctx, team, task, opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx, opts.Timeout)
	defer cancel()
	return m.engine.Execute(ctx, h)
}

// RunStream builds a team from source and streams a run of it. The
// timeout, if any, starts now.
//
// The caller must drain the stream or call Close. An abandoned stream
// leaves the run pending and its team open until ctx is done.
func (m *Manager) RunStream(ctx context.Context, source any, task string, opts RunOptions) (*runner.Stream, error) {
	team, err := m.factory.Build(ctx, source, opts.Env)
	if err != nil {
		return nil, err
	}
	h, err := m.prepare(ctx, team, task, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := m.withTimeout(ctx, opts.Timeout)
	s := m.engine.ExecuteStream(ctx, h)
	s.OnEnd(cancel)
	return s, nil
}

// Submit builds a team from source and runs it in the background. It
// returns once the run is registered; the run itself may wait for a free
// slot when MaxConcurrent is set. The context governs the whole run.
func (m *Manager) Submit(ctx context.Context, source any, task string, opts RunOptions) (*runner.Handle, error) {
	team, err := m.factory.Build(ctx, source, opts.Env)
	if err != nil {
		return nil, err
	}
	h, err := m.prepare(ctx, team, task, opts)
	if err != nil {
		return nil, err
	}

	m.wg.Go(func() {
		if !m.acquire(ctx, h) {
			_, _ = m.engine.Execute(ctx, h)
			return
		}
		defer m.release()

		runCtx, cancel := m.withTimeout(ctx, opts.Timeout)
		defer cancel()
		if _, err := m.engine.Execute(runCtx, h); err != nil {
			m.logger.Debug("background run failed", "run_id", h.ID(), "error", err.Error())
		}
	})
	return h, nil
}

// acquire takes a concurrency slot. It gives up when ctx is done or the run
// is cancelled while queued; Execute then records it as cancelled.
func (m *Manager) acquire(ctx context.Context, h *runner.Handle) bool {
	if m.sem == nil {
		return true
	}
	select {
	case m.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	case <-h.CancelRequested():
		return false
	}
}

func (m *Manager) release() {
	if m.sem != nil {
		<-m.sem
	}
}

// Cancel requests cancellation of a run started by this manager. It
// reports whether the run is known; cancelling a finished run is a no-op.
func (m *Manager) Cancel(runID string) bool {
	h, ok := m.handle(runID)
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

// Status returns the state of a run started by this manager.
func (m *Manager) Status(runID string) (result.Status, bool) {
	h, ok := m.handle(runID)
	if !ok {
		return "", false
	}
	return h.Status(), true
}

// Result returns the result of a finished run. Only the most recent
// finished runs are kept; see Config.MaxHistory.
func (m *Manager) Result(runID string) (*result.TeamResult, bool) {
	h, ok := m.handle(runID)
	if !ok {
		return nil, false
	}
	return h.Result()
}

// Forget drops a finished run from the manager's history. In-flight runs
// are kept.
func (m *Manager) Forget(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.runs[runID]
	if !ok || !h.Status().Terminal() {
		return false
	}
	delete(m.runs, runID)
	if i := slices.Index(m.order, runID); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	return true
}

// Runs returns the in-flight runs.
func (m *Manager) Runs() []*runner.Handle {
	return m.engine.Registry().List()
}

// Wait blocks until every submitted run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every in-flight run and waits for background runs to
// finish or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, h := range m.engine.Registry().List() {
		h.Cancel()
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) handle(runID string) (*runner.Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.runs[runID]
	return h, ok
}

// prepare registers a run for team. The team is closed when the run cannot
// be registered.
func (m *Manager) prepare(ctx context.Context, team agentchat.Team, task string, opts RunOptions) (*runner.Handle, error) {
	var popts []runner.PrepareOption
	if opts.RunID != "" {
		popts = append(popts, runner.WithRunID(opts.RunID))
	}
	h, err := m.engine.Prepare(team, task, popts...)
	if err != nil {
		_ = team.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	m.mu.Lock()
	m.runs[h.ID()] = h
	m.order = append(m.order, h.ID())
	m.prune()
	m.mu.Unlock()
	return h, nil
}

// prune evicts the oldest finished runs beyond the history cap. In-flight
// runs are never evicted. Callers hold mu.
func (m *Manager) prune() {
	finished := 0
	for _, id := range m.order {
		if m.runs[id].Status().Terminal() {
			finished++
		}
	}
	excess := finished - m.history
	if excess <= 0 {
		return
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if excess > 0 && m.runs[id].Status().Terminal() {
			delete(m.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

func (m *Manager) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = m.timeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
