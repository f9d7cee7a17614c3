package runner

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/result"
)

// Stream is a single-pass, pull-based view of a streamed run. The team
// only makes progress while the consumer calls Next, and the last event is
// always exactly one of run-completed, run-failed or run-cancelled. The
// team is torn down before that event is handed over.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	engine *Engine
	ctx    context.Context
	h      *Handle

	runCtx context.Context
	next   func() (any, error, bool)
	stop   func()

	started  bool
	finished bool
	queued   *result.StreamEvent
	cur      result.StreamEvent
	seq      int
	messages []result.Message
	usage    agentchat.Usage
	err      error
	onEnd    []func()
}

// RunStream starts team on task and returns its event stream. ctx is the
// cancellation token. Nothing runs until the first call to Next.
func (e *Engine) RunStream(ctx context.Context, team agentchat.Team, task string, opts ...PrepareOption) *Stream {
	h, err := e.Prepare(team, task, opts...)
	if err != nil {
		return &Stream{finished: true, err: err, queued: failedEvent(err)}
	}
	return e.ExecuteStream(ctx, h)
}

// ExecuteStream streams a prepared handle. See RunStream.
func (e *Engine) ExecuteStream(ctx context.Context, h *Handle) *Stream {
	return &Stream{engine: e, ctx: ctx, h: h, messages: []result.Message{}}
}

func failedEvent(err error) *result.StreamEvent {
	return &result.StreamEvent{Type: result.EventRunFailed, Timestamp: time.Now(), Error: err.Error()}
}

// RunID returns the run ID, or "" when the run could not be prepared.
func (s *Stream) RunID() string {
	if s.h == nil {
		return ""
	}
	return s.h.id
}

// Handle returns the run's handle, or nil when the run could not be
// prepared.
func (s *Stream) Handle() *Handle { return s.h }

// Next advances to the next event. It returns false once the terminal
// event has been consumed or the stream was closed.
func (s *Stream) Next() bool {
	if s.queued == nil && !s.finished {
		s.advance()
	}
	if s.queued == nil {
		return false
	}
	s.cur = *s.queued
	s.queued = nil
	return true
}

// OnEnd registers fn to run once the run has finished, after teardown and
// before the terminal event is handed over. It runs at once when the stream
// has already finished.
func (s *Stream) OnEnd(fn func()) {
	if s.finished {
		fn()
		return
	}
	s.onEnd = append(s.onEnd, fn)
}

// Event returns the event Next advanced to.
func (s *Stream) Event() result.StreamEvent { return s.cur }

// Err returns a *errors.RunFailure once the run has failed, nil otherwise.
func (s *Stream) Err() error { return s.err }

// All returns an iterator over the remaining events. Breaking out of the
// loop early closes the stream, which cancels the run.
func (s *Stream) All() iter.Seq[result.StreamEvent] {
	return func(yield func(result.StreamEvent) bool) {
		for s.Next() {
			if !yield(s.Event()) {
				s.Close()
				return
			}
		}
	}
}

// Close abandons the stream. An unfinished run is cancelled and torn down
// without producing further events. Close is safe to call more than once.
func (s *Stream) Close() {
	if s.finished {
		s.queued = nil
		return
	}
	if s.h != nil {
		s.h.Cancel()
	}
	if !s.started {
		s.started = true
		s.end(cancelledResult(nil), nil)
	} else {
		res, cause := classify(s.partial(), errors.ErrRunCancelled, true)
		s.end(res, cause)
	}
	s.queued = nil
}

func (s *Stream) advance() {
	if !s.started {
		s.started = true
		runCtx, started, err := s.h.start(s.ctx)
		if err != nil {
			s.finished = true
			s.err = err
			s.queued = failedEvent(err)
			s.runOnEnd()
			return
		}
		if !started {
			s.end(cancelledResult(nil), nil)
			return
		}
		s.runCtx = runCtx
		s.next, s.stop = iter.Pull2(s.h.team.RunStream(runCtx, s.h.task))
		s.engine.announce(s.h, true)
	}

	if s.runCtx.Err() != nil {
		s.end(classify(s.partial(), s.runCtx.Err(), true))
		return
	}

	item, err, ok := s.pull()
	switch {
	case !ok:
		s.end(classify(s.partial(), errors.ErrMissingResult, false))
	case err != nil:
		s.end(classify(s.partial(), err, s.runCtx.Err() != nil))
	default:
		s.handle(item)
	}
}

func (s *Stream) handle(item any) {
	switch v := item.(type) {
	case agentchat.TaskResult, *agentchat.TaskResult, result.TeamResult, *result.TeamResult:
		s.end(classify(result.WrapResult(v), nil, false))
		return
	}

	if s.runCtx.Err() != nil {
		s.end(classify(s.partial(), s.runCtx.Err(), true))
		return
	}
	if m, ok := item.(agentchat.Message); ok {
		s.messages = append(s.messages, result.FromMessage(m))
		if tm, ok := m.(agentchat.TextMessage); ok && tm.Usage != nil {
			s.usage = s.usage.Add(*tm.Usage)
		}
	}
	ev := result.WrapEvent(item)
	if ev.Type.Terminal() {
		// Only end may emit a terminal event.
		ev.Type = result.EventContentChunk
	}
	s.queue(ev)
}

// pull fetches the next item, turning a panic in the team into an error.
func (s *Stream) pull() (item any, err error, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.h.logger.Error("team panicked", "panic", fmt.Sprint(r))
			item, err, ok = nil, fmt.Errorf("%w: %v", errors.ErrTeamPanicked, r), true
		}
	}()
	return s.next()
}

func (s *Stream) partial() result.TeamResult {
	return result.TeamResult{
		TaskResult: result.TaskResult{Messages: s.messages},
		Usage:      s.usage,
	}
}

// end finishes the run and queues the terminal event. The producer is
// released and the team torn down before the event becomes visible.
func (s *Stream) end(res result.TeamResult, cause error) {
	if s.stop != nil {
		s.stop()
	}
	final := s.engine.complete(s.ctx, s.h, res, cause)
	s.finished = true
	if final.Status == result.StatusFailed {
		s.err = errors.NewRunFailure(s.h.id, cause)
	}
	s.runOnEnd()
	s.queue(result.TerminalEvent(final))
}

func (s *Stream) runOnEnd() {
	fns := s.onEnd
	s.onEnd = nil
	for _, fn := range fns {
		fn()
	}
}

func (s *Stream) queue(ev result.StreamEvent) {
	ev.RunID = s.h.id
	ev.Seq = s.seq
	s.seq++
	s.queued = &ev
}
