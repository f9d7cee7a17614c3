// Package runner executes teams. It drives a run through its lifecycle
// (pending, running, then completed, cancelled or failed), measures it,
// tears the team down exactly once, and reports the outcome as a
// result.TeamResult or a stream of result.StreamEvent values.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/event"
	"github.com/Iron-Ham/teamrun/internal/logging"
	"github.com/Iron-Ham/teamrun/internal/result"
)

// DefaultTeardownTimeout bounds how long closing a team may take.
const DefaultTeardownTimeout = 30 * time.Second

var errTeamReportedError = errors.New("team stopped with reason \"error\"")

// Engine runs teams. It is safe for concurrent use; every run gets its own
// Handle and a team instance must not be shared between runs.
type Engine struct {
	registry        *Registry
	logger          *logging.Logger
	bus             *event.Bus
	teardownTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the registry runs are tracked in.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithBus publishes run lifecycle events to bus.
func WithBus(b *event.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithTeardownTimeout bounds Team.Close.
func WithTeardownTimeout(d time.Duration) Option {
	return func(e *Engine) { e.teardownTimeout = d }
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		registry:        NewRegistry(),
		logger:          logging.NopLogger(),
		teardownTimeout: DefaultTeardownTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NopLogger()
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	e.logger = e.logger.WithComponent("runner")
	return e
}

// Registry returns the registry of in-flight runs.
func (e *Engine) Registry() *Registry { return e.registry }

// PrepareOption configures Prepare.
type PrepareOption func(*prepareOptions)

type prepareOptions struct {
	runID string
}

// WithRunID uses id instead of a generated UUID.
func WithRunID(id string) PrepareOption {
	return func(o *prepareOptions) { o.runID = id }
}

// Prepare registers a pending run of team on task. The run starts when the
// handle is passed to Execute or ExecuteStream; it may be cancelled before
// that with Handle.Cancel.
func (e *Engine) Prepare(team agentchat.Team, task string, opts ...PrepareOption) (*Handle, error) {
	if team == nil {
		return nil, errors.NewInvalidRunError("", errors.ErrTeamRequired)
	}
	var o prepareOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}

	h := newHandle(o.runID, team, task, e.logger)
	if !e.registry.add(h) {
		return nil, errors.NewInvalidRunError(o.runID, errors.ErrDuplicateRunID)
	}
	return h, nil
}

// Run executes team on task and blocks until the run is terminal and the
// team is torn down. ctx is the cancellation token.
//
// A result is returned on every path. The error is a *errors.RunFailure
// when the run failed and nil otherwise; a cancelled run reports
// Status == cancelled with a nil error.
func (e *Engine) Run(ctx context.Context, team agentchat.Team, task string, opts ...PrepareOption) (*result.TeamResult, error) {
	h, err := e.Prepare(team, task, opts...)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, h)
}

// Execute runs a prepared handle. See Run.
func (e *Engine) Execute(ctx context.Context, h *Handle) (*result.TeamResult, error) {
	runCtx, started, err := h.start(ctx)
	if err != nil {
		return nil, err
	}
	if !started {
		res := e.complete(ctx, h, cancelledResult(nil), nil)
		return &res, nil
	}

	e.announce(h, false)
	raw, runErr := e.invoke(runCtx, h)
	if raw == nil && runErr == nil {
		runErr = errors.ErrMissingResult
	}
	res, cause := classify(result.WrapResult(raw), runErr, runCtx.Err() != nil)

	final := e.complete(ctx, h, res, cause)
	if final.Status == result.StatusFailed {
		return &final, errors.NewRunFailure(h.id, cause)
	}
	return &final, nil
}

// invoke calls Team.Run, turning a panic into ErrTeamPanicked.
func (e *Engine) invoke(ctx context.Context, h *Handle) (raw *agentchat.TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("team panicked", "panic", fmt.Sprint(r))
			err = fmt.Errorf("%w: %v", errors.ErrTeamPanicked, r)
		}
	}()
	return h.team.Run(ctx, h.task)
}

// classify settles the terminal status from what the team produced.
// cancelled reports whether the run context was cancelled. The returned
// error is the failure cause, nil unless the status is failed.
func classify(res result.TeamResult, err error, cancelled bool) (result.TeamResult, error) {
	switch {
	case err == nil && res.Status != result.StatusFailed:
		return res, nil
	case err == nil:
		err = errTeamReportedError
	case cancelled || errors.IsCancelled(err):
		res.Status = result.StatusCancelled
		res.TaskResult.StopReason = result.StopCancelled
		res.TaskResult.StopDetail = ""
		res.Error = ""
		return res, nil
	}
	res.Status = result.StatusFailed
	res.TaskResult.StopReason = result.StopError
	res.Error = err.Error()
	return res, err
}

func cancelledResult(msgs []result.Message) result.TeamResult {
	if msgs == nil {
		msgs = []result.Message{}
	}
	return result.TeamResult{
		Status: result.StatusCancelled,
		TaskResult: result.TaskResult{
			Messages:   msgs,
			StopReason: result.StopCancelled,
		},
	}
}

func (e *Engine) announce(h *Handle, streaming bool) {
	h.logger.Info("run started", "streaming", streaming)
	e.bus.Publish(event.NewRunStartedEvent(h.id, h.team.Name(), h.task, streaming))
}

// complete records the terminal state, tears the team down, deregisters
// the run and reports it. Done is closed last.
func (e *Engine) complete(ctx context.Context, h *Handle, res result.TeamResult, cause error) result.TeamResult {
	final, err := h.finish(res)
	if err != nil {
		h.logger.Error("recording run outcome", "error", err.Error())
		final = res
	}
	h.teardown(ctx, e.teardownTimeout)
	e.registry.remove(h.id)
	e.report(h, final, cause)
	h.markDone()
	return final
}

func (e *Engine) report(h *Handle, res result.TeamResult, cause error) {
	switch res.Status {
	case result.StatusCompleted:
		h.logger.Info("run completed",
			"duration", res.Duration,
			"stop_reason", string(res.TaskResult.StopReason),
			"messages", len(res.TaskResult.Messages))
		e.bus.Publish(event.NewRunCompletedEvent(h.id, res.Duration, string(res.TaskResult.StopReason), len(res.TaskResult.Messages)))
	case result.StatusCancelled:
		h.logger.Info("run cancelled", "duration", res.Duration)
		e.bus.Publish(event.NewRunCancelledEvent(h.id, res.Duration))
	case result.StatusFailed:
		h.logger.Warn("run failed", "duration", res.Duration, "error", res.Error)
		e.bus.Publish(event.NewRunFailedEvent(h.id, res.Duration, cause))
	}
}
