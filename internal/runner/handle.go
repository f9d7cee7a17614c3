package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/logging"
	"github.com/Iron-Ham/teamrun/internal/result"
)

// ErrInvalidTransition is returned when a run is driven out of order, for
// example executed twice.
var ErrInvalidTransition = errors.New("invalid run state transition")

var allowedTransitions = map[result.Status]map[result.Status]struct{}{
	result.StatusPending: {
		result.StatusRunning:   {},
		result.StatusCancelled: {},
	},
	result.StatusRunning: {
		result.StatusCompleted: {},
		result.StatusCancelled: {},
		result.StatusFailed:    {},
	},
	result.StatusCompleted: {},
	result.StatusCancelled: {},
	result.StatusFailed:    {},
}

func validateTransition(from, to result.Status) error {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source status %q", ErrInvalidTransition, from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Handle tracks one run of one team. It owns the team: the team is torn
// down exactly once when the run ends, whatever the outcome.
type Handle struct {
	id     string
	team   agentchat.Team
	task   string
	logger *logging.Logger

	mu              sync.Mutex
	status          result.Status
	cancelRequested bool
	cancel          context.CancelFunc
	startedAt       time.Time
	endedAt         time.Time
	result          *result.TeamResult

	teardownOnce sync.Once
	cancelCh     chan struct{}
	done         chan struct{}
}

func newHandle(id string, team agentchat.Team, task string, logger *logging.Logger) *Handle {
	return &Handle{
		id:       id,
		team:     team,
		task:     task,
		logger:   logger.WithRun(id).With("team", team.Name()),
		status:   result.StatusPending,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the run ID.
func (h *Handle) ID() string { return h.id }

// Team returns the team being run.
func (h *Handle) Team() agentchat.Team { return h.team }

// Task returns the task text.
func (h *Handle) Task() string { return h.task }

// Status returns the current lifecycle state.
func (h *Handle) Status() result.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Duration returns the time spent running so far, or the final duration
// once terminal. It is zero for runs that never started.
func (h *Handle) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.durationLocked(time.Now())
}

func (h *Handle) durationLocked(now time.Time) time.Duration {
	switch {
	case h.startedAt.IsZero():
		return 0
	case !h.endedAt.IsZero():
		return h.endedAt.Sub(h.startedAt)
	default:
		return now.Sub(h.startedAt)
	}
}

// Result returns the final result once the run is terminal.
func (h *Handle) Result() (*result.TeamResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.result == nil {
		return nil, false
	}
	res := *h.result
	return &res, true
}

// Done is closed once the run is terminal and the team is torn down.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run ends or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*result.TeamResult, error) {
	select {
	case <-h.done:
		res, _ := h.Result()
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cooperative cancellation. A pending run is cancelled
// before it starts; a running run sees its context cancelled; a terminal
// run is unaffected. Cancel never blocks on the team.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() || h.cancelRequested {
		return
	}
	h.cancelRequested = true
	close(h.cancelCh)
	if h.cancel != nil {
		h.cancel()
	}
}

// CancelRequested is closed on the first effective call to Cancel.
func (h *Handle) CancelRequested() <-chan struct{} { return h.cancelCh }

// start moves a pending run to running, or straight to cancelled when
// cancellation was requested or ctx is already done. It returns the run
// context and whether the run started.
func (h *Handle) start(ctx context.Context) (context.Context, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status != result.StatusPending {
		return nil, false, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, h.id, h.status)
	}
	if h.cancelRequested || ctx.Err() != nil {
		return nil, false, nil
	}
	if err := validateTransition(h.status, result.StatusRunning); err != nil {
		return nil, false, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.status = result.StatusRunning
	h.startedAt = time.Now()
	return runCtx, true, nil
}

// finish records the terminal state and result. Exactly one call wins.
func (h *Handle) finish(res result.TeamResult) (result.TeamResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := validateTransition(h.status, res.Status); err != nil {
		return result.TeamResult{}, err
	}
	h.status = res.Status
	h.endedAt = time.Now()
	if h.cancel != nil {
		h.cancel()
	}
	res.RunID = h.id
	res.Duration = h.durationLocked(h.endedAt)
	h.result = &res
	return res, nil
}

// teardown closes the team once. Errors and panics are logged and
// swallowed so they never change the run's outcome.
func (h *Handle) teardown(ctx context.Context, timeout time.Duration) {
	h.teardownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Warn("teardown failed", "panic", fmt.Sprint(r))
			}
		}()
		if err := h.team.Close(ctx); err != nil {
			h.logger.Warn("teardown failed", "error", err.Error())
		}
	})
}

func (h *Handle) markDone() {
	close(h.done)
}
