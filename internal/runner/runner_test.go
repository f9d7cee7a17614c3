package runner

import (
	"bytes"
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/agentchat/agents"
	"github.com/Iron-Ham/teamrun/internal/agentchat/teams"
	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/event"
	"github.com/Iron-Ham/teamrun/internal/logging"
	"github.com/Iron-Ham/teamrun/internal/result"
)

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

// fakeTeam lets a test script Run and RunStream directly.
type fakeTeam struct {
	run      func(ctx context.Context, task string) (*agentchat.TaskResult, error)
	stream   func(ctx context.Context, task string) iter.Seq2[any, error]
	closeErr error

	closes atomic.Int32
}

func (f *fakeTeam) Name() string { return "fake" }

func (f *fakeTeam) Run(ctx context.Context, task string) (*agentchat.TaskResult, error) {
	return f.run(ctx, task)
}

func (f *fakeTeam) RunStream(ctx context.Context, task string) iter.Seq2[any, error] {
	return f.stream(ctx, task)
}

func (f *fakeTeam) Close(context.Context) error {
	f.closes.Add(1)
	return f.closeErr
}

func textMsg(from, content string) agentchat.TextMessage {
	return agentchat.TextMessage{From: from, Content: content}
}

func scripted(t *testing.T, cfg agents.ScriptedConfig) *agents.Scripted {
	t.Helper()
	a, err := agents.NewScripted(cfg)
	if err != nil {
		t.Fatalf("NewScripted failed: %v", err)
	}
	return a
}

// writersTeam is a writer/critic round robin that stops when the critic
// says TERMINATE on its second turn.
func writersTeam(t *testing.T, maxTurns int, writer, critic agents.ScriptedConfig) (*teams.RoundRobin, []*agents.Scripted) {
	t.Helper()
	if writer.Name == "" {
		writer.Name = "writer"
	}
	if writer.Replies == nil {
		writer.Replies = []string{"first draft", "second draft"}
	}
	if critic.Name == "" {
		critic.Name = "critic"
	}
	if critic.Replies == nil {
		critic.Replies = []string{"needs work", "TERMINATE"}
	}
	participants := []*agents.Scripted{scripted(t, writer), scripted(t, critic)}
	team, err := teams.NewRoundRobin(teams.Config{
		Name:         "writers",
		Participants: []agentchat.Agent{participants[0], participants[1]},
		MaxTurns:     maxTurns,
		Termination:  &agentchat.TextMention{Text: "TERMINATE"},
	})
	if err != nil {
		t.Fatalf("NewRoundRobin failed: %v", err)
	}
	return team, participants
}

func assertClosedOnce(t *testing.T, participants []*agents.Scripted) {
	t.Helper()
	for _, p := range participants {
		if got := p.Closes(); got != 1 {
			t.Errorf("%s closed %d times, want 1", p.Name(), got)
		}
	}
}

// -----------------------------------------------------------------------------
// Run
// -----------------------------------------------------------------------------

func TestRun_Completed(t *testing.T) {
	team, participants := writersTeam(t, 10, agents.ScriptedConfig{}, agents.ScriptedConfig{})
	engine := NewEngine()

	res, err := engine.Run(context.Background(), team, "write a haiku")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != result.StatusCompleted {
		t.Errorf("Status = %q, want completed", res.Status)
	}
	if res.TaskResult.StopReason != result.StopTermination {
		t.Errorf("StopReason = %q, want %q", res.TaskResult.StopReason, result.StopTermination)
	}
	if res.TaskResult.StopDetail != "Text 'TERMINATE' mentioned" {
		t.Errorf("StopDetail = %q", res.TaskResult.StopDetail)
	}
	if len(res.TaskResult.Messages) != 6 {
		t.Errorf("len(Messages) = %d, want 6", len(res.TaskResult.Messages))
	}
	if res.Duration < 0 || res.RunID == "" || res.Error != "" {
		t.Errorf("res = %+v", res)
	}
	assertClosedOnce(t, participants)
	if engine.Registry().Len() != 0 {
		t.Errorf("registry holds %d runs after completion", engine.Registry().Len())
	}
}

func TestRun_MaxTurns(t *testing.T) {
	team, _ := writersTeam(t, 2, agents.ScriptedConfig{}, agents.ScriptedConfig{})

	res, err := NewEngine().Run(context.Background(), team, "draft")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.TaskResult.StopReason != result.StopMaxTurns || res.TaskResult.StopDetail != "" {
		t.Errorf("StopReason = %q, StopDetail = %q", res.TaskResult.StopReason, res.TaskResult.StopDetail)
	}
	if len(res.TaskResult.Messages) != 3 {
		t.Errorf("len(Messages) = %d, want 3", len(res.TaskResult.Messages))
	}
}

type ctxKey struct{}

func TestRun_PassesCancellationToken(t *testing.T) {
	var got context.Context
	team := &fakeTeam{run: func(ctx context.Context, _ string) (*agentchat.TaskResult, error) {
		got = ctx
		return &agentchat.TaskResult{StopReason: agentchat.StopMaxTurns}, nil
	}}
	ctx := context.WithValue(context.Background(), ctxKey{}, "token")

	if _, err := NewEngine().Run(ctx, team, "t"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got == nil || got.Value(ctxKey{}) != "token" {
		t.Error("team did not receive the caller's context")
	}
}

func TestRun_MeasuresDuration(t *testing.T) {
	const sleep = 50 * time.Millisecond
	team := &fakeTeam{run: func(context.Context, string) (*agentchat.TaskResult, error) {
		time.Sleep(sleep)
		return &agentchat.TaskResult{StopReason: "done"}, nil
	}}

	res, err := NewEngine().Run(context.Background(), team, "t")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Duration < sleep {
		t.Errorf("Duration = %v, want >= %v", res.Duration, sleep)
	}
	if res.TaskResult.StopReason != result.StopTermination || res.TaskResult.StopDetail != "done" {
		t.Errorf("stop = %q / %q", res.TaskResult.StopReason, res.TaskResult.StopDetail)
	}
}

func TestRun_Failure(t *testing.T) {
	cause := errors.New("model unavailable")
	team := &fakeTeam{run: func(context.Context, string) (*agentchat.TaskResult, error) {
		return &agentchat.TaskResult{Messages: []agentchat.Message{textMsg("user", "t")}}, cause
	}}

	res, err := NewEngine().Run(context.Background(), team, "t")

	var failure *errors.RunFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want RunFailure", err)
	}
	if !errors.Is(err, cause) || failure.RunID != res.RunID {
		t.Errorf("failure = %+v", failure)
	}
	if res.Status != result.StatusFailed || res.TaskResult.StopReason != result.StopError {
		t.Errorf("Status = %q, StopReason = %q", res.Status, res.TaskResult.StopReason)
	}
	if res.Error != "model unavailable" || len(res.TaskResult.Messages) != 1 {
		t.Errorf("res = %+v", res)
	}
	if team.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", team.closes.Load())
	}
}

func TestRun_FailingParticipantClosesTeam(t *testing.T) {
	team, participants := writersTeam(t, 10, agents.ScriptedConfig{FailAfter: 1}, agents.ScriptedConfig{})

	res, err := NewEngine().Run(context.Background(), team, "draft")
	if err == nil {
		t.Fatal("Run should fail")
	}
	if res.Status != result.StatusFailed {
		t.Errorf("Status = %q", res.Status)
	}
	assertClosedOnce(t, participants)
}

func TestRun_Panic(t *testing.T) {
	team := &fakeTeam{run: func(context.Context, string) (*agentchat.TaskResult, error) {
		panic("boom")
	}}

	res, err := NewEngine().Run(context.Background(), team, "t")
	if !errors.Is(err, errors.ErrTeamPanicked) {
		t.Fatalf("error = %v, want ErrTeamPanicked", err)
	}
	if res.Status != result.StatusFailed || team.closes.Load() != 1 {
		t.Errorf("Status = %q, closes = %d", res.Status, team.closes.Load())
	}
}

func TestRun_MissingResult(t *testing.T) {
	team := &fakeTeam{run: func(context.Context, string) (*agentchat.TaskResult, error) {
		return nil, nil
	}}

	res, err := NewEngine().Run(context.Background(), team, "t")
	if !errors.Is(err, errors.ErrMissingResult) {
		t.Fatalf("error = %v, want ErrMissingResult", err)
	}
	if res.Status != result.StatusFailed || res.TaskResult.Messages == nil {
		t.Errorf("res = %+v", res)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	called := false
	team := &fakeTeam{run: func(context.Context, string) (*agentchat.TaskResult, error) {
		called = true
		return nil, nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewEngine().Run(ctx, team, "t")
	if err != nil {
		t.Fatalf("Run returned error for a cancelled run: %v", err)
	}
	if called {
		t.Error("team ran despite cancellation")
	}
	if res.Status != result.StatusCancelled || res.TaskResult.StopReason != result.StopCancelled {
		t.Errorf("Status = %q, StopReason = %q", res.Status, res.TaskResult.StopReason)
	}
	if res.Duration != 0 {
		t.Errorf("Duration = %v, want 0", res.Duration)
	}
	if team.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", team.closes.Load())
	}
}

func TestRun_CancelAfterDispatch(t *testing.T) {
	const delay = 5 * time.Second
	team, participants := writersTeam(t, 10, agents.ScriptedConfig{Delay: delay}, agents.ScriptedConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	res, err := NewEngine().Run(ctx, team, "slow task")
	if err != nil {
		t.Fatalf("Run returned error for a cancelled run: %v", err)
	}
	if res.Status != result.StatusCancelled || res.TaskResult.StopReason != result.StopCancelled {
		t.Errorf("Status = %q, StopReason = %q", res.Status, res.TaskResult.StopReason)
	}
	if res.Duration < 0 || res.Duration >= delay {
		t.Errorf("Duration = %v, want in [0, %v)", res.Duration, delay)
	}
	assertClosedOnce(t, participants)
}

func TestRun_DeadlineIsCancellation(t *testing.T) {
	team, _ := writersTeam(t, 10, agents.ScriptedConfig{Delay: 5 * time.Second}, agents.ScriptedConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := NewEngine().Run(ctx, team, "t")
	if err != nil || res.Status != result.StatusCancelled {
		t.Errorf("Status = %q, err = %v; want cancelled, nil", res.Status, err)
	}
}

func TestRun_TeardownErrorIsSuppressed(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewFromHandler(slog.NewJSONHandler(&buf, nil))
	team := &fakeTeam{
		run: func(context.Context, string) (*agentchat.TaskResult, error) {
			return &agentchat.TaskResult{StopReason: agentchat.StopMaxTurns}, nil
		},
		closeErr: errors.New("connection reset"),
	}

	res, err := NewEngine(WithLogger(logger)).Run(context.Background(), team, "t")
	if err != nil || res.Status != result.StatusCompleted {
		t.Fatalf("Status = %q, err = %v; want completed, nil", res.Status, err)
	}
	out := buf.String()
	if !strings.Contains(out, "teardown failed") || !strings.Contains(out, "connection reset") {
		t.Errorf("log output missing suppressed teardown error: %s", out)
	}
}

func TestRun_PublishesEvents(t *testing.T) {
	bus := event.NewBus(nil)
	var types []string
	bus.SubscribeAll(func(e event.Event) { types = append(types, e.EventType()) })
	team, _ := writersTeam(t, 1, agents.ScriptedConfig{}, agents.ScriptedConfig{})

	if _, err := NewEngine(WithBus(bus)).Run(context.Background(), team, "t"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{event.TypeRunStarted, event.TypeRunCompleted}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", types, want)
	}
}

// -----------------------------------------------------------------------------
// Handle
// -----------------------------------------------------------------------------

func TestHandle_CancelPending(t *testing.T) {
	team := &fakeTeam{run: func(context.Context, string) (*agentchat.TaskResult, error) {
		t.Error("team ran after Cancel")
		return nil, nil
	}}
	engine := NewEngine()
	h, err := engine.Prepare(team, "t", WithRunID("run-1"))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if h.Status() != result.StatusPending {
		t.Errorf("Status = %q, want pending", h.Status())
	}
	if got, ok := engine.Registry().Get("run-1"); !ok || got != h {
		t.Error("prepared run missing from registry")
	}

	h.Cancel()
	res, err := engine.Execute(context.Background(), h)
	if err != nil || res.Status != result.StatusCancelled {
		t.Fatalf("Status = %q, err = %v", res.Status, err)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done not closed after terminal state")
	}
	h.Cancel()
	if h.Status() != result.StatusCancelled {
		t.Errorf("Cancel on a terminal run changed status to %q", h.Status())
	}
	if _, ok := engine.Registry().Get("run-1"); ok {
		t.Error("terminal run still registered")
	}
}

func TestHandle_ExecuteTwice(t *testing.T) {
	team := &fakeTeam{run: func(context.Context, string) (*agentchat.TaskResult, error) {
		return &agentchat.TaskResult{StopReason: agentchat.StopMaxTurns}, nil
	}}
	engine := NewEngine()
	h, _ := engine.Prepare(team, "t")

	if _, err := engine.Execute(context.Background(), h); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	if _, err := engine.Execute(context.Background(), h); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Execute error = %v, want ErrInvalidTransition", err)
	}
	if team.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", team.closes.Load())
	}
}

func TestHandle_WaitAndRegistry(t *testing.T) {
	release := make(chan struct{})
	team := &fakeTeam{run: func(ctx context.Context, _ string) (*agentchat.TaskResult, error) {
		<-release
		return &agentchat.TaskResult{StopReason: agentchat.StopMaxTurns}, nil
	}}
	engine := NewEngine()
	h, _ := engine.Prepare(team, "t")

	go func() { _, _ = engine.Execute(context.Background(), h) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.Status() != result.StatusRunning {
		if time.Now().After(deadline) {
			t.Fatal("run never started")
		}
		time.Sleep(time.Millisecond)
	}
	if list := engine.Registry().List(); len(list) != 1 || list[0].ID() != h.ID() {
		t.Errorf("List() = %v", list)
	}

	close(release)
	res, err := h.Wait(context.Background())
	if err != nil || res.Status != result.StatusCompleted {
		t.Fatalf("Wait = %+v, %v", res, err)
	}
	if engine.Registry().Len() != 0 {
		t.Error("registry not emptied")
	}
}

func TestPrepare_DuplicateRunID(t *testing.T) {
	engine := NewEngine()
	team := &fakeTeam{}
	if _, err := engine.Prepare(team, "t", WithRunID("dup")); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	tests := []struct {
		name  string
		team  agentchat.Team
		id    string
		cause error
	}{
		{"duplicate run ID", team, "dup", errors.ErrDuplicateRunID},
		{"nil team", nil, "", errors.ErrTeamRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Prepare(tt.team, "t", WithRunID(tt.id))
			if err == nil {
				t.Fatal("Prepare succeeded, want error")
			}
			if got := errors.KindOf(err); got != errors.KindInvalidRun {
				t.Errorf("KindOf() = %q, want %q", got, errors.KindInvalidRun)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("err = %v, want it to wrap %v", err, tt.cause)
			}
		})
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to result.Status
		ok       bool
	}{
		{result.StatusPending, result.StatusRunning, true},
		{result.StatusPending, result.StatusCancelled, true},
		{result.StatusPending, result.StatusCompleted, false},
		{result.StatusPending, result.StatusFailed, false},
		{result.StatusRunning, result.StatusCompleted, true},
		{result.StatusRunning, result.StatusCancelled, true},
		{result.StatusRunning, result.StatusFailed, true},
		{result.StatusRunning, result.StatusPending, false},
		{result.StatusCompleted, result.StatusRunning, false},
		{result.StatusCancelled, result.StatusFailed, false},
		{result.StatusFailed, result.StatusCompleted, false},
		{result.Status("bogus"), result.StatusRunning, false},
	}
	for _, tt := range tests {
		err := validateTransition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: err = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: error does not wrap ErrInvalidTransition", tt.from, tt.to)
		}
	}
}

// -----------------------------------------------------------------------------
// RunStream
// -----------------------------------------------------------------------------

func collect(s *Stream) []result.StreamEvent {
	var out []result.StreamEvent
	for ev := range s.All() {
		out = append(out, ev)
	}
	return out
}

func countTerminal(events []result.StreamEvent) int {
	n := 0
	for _, ev := range events {
		if ev.Type.Terminal() {
			n++
		}
	}
	return n
}

func TestRunStream_Completed(t *testing.T) {
	team, participants := writersTeam(t, 10, agents.ScriptedConfig{}, agents.ScriptedConfig{})
	stream := NewEngine().RunStream(context.Background(), team, "write")

	var events []result.StreamEvent
	for stream.Next() {
		ev := stream.Event()
		if ev.Type.Terminal() {
			assertClosedOnce(t, participants)
		}
		events = append(events, ev)
	}

	if len(events) == 0 {
		t.Fatal("no events")
	}
	if events[0].Type != result.EventContentChunk || events[0].Content != "write" {
		t.Errorf("first event = %+v, want the task message", events[0])
	}
	if events[1].Type != result.EventAgentTurnStarted || events[1].Source != "writer" {
		t.Errorf("second event = %+v, want writer's turn", events[1])
	}
	last := events[len(events)-1]
	if last.Type != result.EventRunCompleted || countTerminal(events) != 1 {
		t.Errorf("last = %q, terminal count = %d", last.Type, countTerminal(events))
	}
	if last.Result == nil || last.Result.TaskResult.StopReason != result.StopTermination {
		t.Errorf("terminal result = %+v", last.Result)
	}
	for i, ev := range events {
		if ev.Seq != i || ev.RunID != stream.RunID() {
			t.Errorf("event %d: Seq = %d, RunID = %q", i, ev.Seq, ev.RunID)
		}
	}
	if stream.Err() != nil {
		t.Errorf("Err() = %v", stream.Err())
	}
	if stream.Handle().Status() != result.StatusCompleted {
		t.Errorf("Status = %q", stream.Handle().Status())
	}
}

func TestRunStream_SinglePass(t *testing.T) {
	team, _ := writersTeam(t, 1, agents.ScriptedConfig{}, agents.ScriptedConfig{})
	stream := NewEngine().RunStream(context.Background(), team, "t")

	if first := collect(stream); len(first) == 0 {
		t.Fatal("first pass yielded nothing")
	}
	if second := collect(stream); len(second) != 0 {
		t.Errorf("second pass yielded %d events", len(second))
	}
	if stream.Next() {
		t.Error("Next after exhaustion returned true")
	}
}

func TestRunStream_CancelledBeforeStart(t *testing.T) {
	team := &fakeTeam{stream: func(context.Context, string) iter.Seq2[any, error] {
		t.Error("team streamed despite cancellation")
		return func(func(any, error) bool) {}
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(NewEngine().RunStream(ctx, team, "t"))
	if len(events) != 1 || events[0].Type != result.EventRunCancelled {
		t.Fatalf("events = %+v, want exactly one run-cancelled", events)
	}
	if events[0].Result.Duration != 0 {
		t.Errorf("Duration = %v, want 0", events[0].Result.Duration)
	}
	if team.closes.Load() != 1 {
		t.Errorf("closes = %d, want 1", team.closes.Load())
	}
}

func TestRunStream_MidRunFailure(t *testing.T) {
	team, participants := writersTeam(t, 10, agents.ScriptedConfig{FailAfter: 1}, agents.ScriptedConfig{})
	stream := NewEngine().RunStream(context.Background(), team, "draft")

	events := collect(stream)

	if len(events) < 2 {
		t.Fatalf("got %d events, want progress before the failure", len(events))
	}
	last := events[len(events)-1]
	if last.Type != result.EventRunFailed || countTerminal(events) != 1 {
		t.Fatalf("last = %q, terminal count = %d", last.Type, countTerminal(events))
	}
	if !strings.Contains(last.Error, "writer") {
		t.Errorf("Error = %q, want the failing participant", last.Error)
	}
	// task, writer's draft, critic's reply
	if got := len(last.Result.TaskResult.Messages); got != 3 {
		t.Errorf("partial messages = %d, want 3", got)
	}
	var failure *errors.RunFailure
	if !errors.As(stream.Err(), &failure) {
		t.Errorf("Err() = %v, want RunFailure", stream.Err())
	}
	assertClosedOnce(t, participants)
}

func TestRunStream_BreakCancels(t *testing.T) {
	team, participants := writersTeam(t, 10, agents.ScriptedConfig{}, agents.ScriptedConfig{})
	stream := NewEngine().RunStream(context.Background(), team, "t")

	n := 0
	for range stream.All() {
		n++
		if n == 2 {
			break
		}
	}

	if stream.Next() {
		t.Error("events produced after break")
	}
	h := stream.Handle()
	if h.Status() != result.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", h.Status())
	}
	res, _ := h.Result()
	if res.TaskResult.StopReason != result.StopCancelled || len(res.TaskResult.Messages) != 1 {
		t.Errorf("result = %+v", res.TaskResult)
	}
	assertClosedOnce(t, participants)
}

func TestRunStream_CloseBeforeNext(t *testing.T) {
	team := &fakeTeam{}
	stream := NewEngine().RunStream(context.Background(), team, "t")

	stream.Close()
	stream.Close()

	if stream.Next() {
		t.Error("closed stream produced an event")
	}
	if stream.Handle().Status() != result.StatusCancelled || team.closes.Load() != 1 {
		t.Errorf("Status = %q, closes = %d", stream.Handle().Status(), team.closes.Load())
	}
}

func TestRunStream_OnEnd(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		team, _ := writersTeam(t, 1, agents.ScriptedConfig{}, agents.ScriptedConfig{})
		stream := NewEngine().RunStream(context.Background(), team, "t")
		var calls int
		stream.OnEnd(func() { calls++ })

		for stream.Next() {
			if stream.Event().Type.Terminal() && calls != 1 {
				t.Errorf("OnEnd calls = %d when the terminal event arrived, want 1", calls)
			}
		}
		if calls != 1 {
			t.Errorf("OnEnd calls = %d, want 1", calls)
		}
	})

	t.Run("closed before start", func(t *testing.T) {
		stream := NewEngine().RunStream(context.Background(), &fakeTeam{}, "t")
		var calls int
		stream.OnEnd(func() { calls++ })
		stream.Close()
		stream.Close()
		if calls != 1 {
			t.Errorf("OnEnd calls = %d, want 1", calls)
		}
	})

	t.Run("already finished", func(t *testing.T) {
		stream := NewEngine().RunStream(context.Background(), nil, "t")
		var calls int
		stream.OnEnd(func() { calls++ })
		if calls != 1 {
			t.Errorf("OnEnd calls = %d, want 1", calls)
		}
	})
}

func TestRunStream_ContextCancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	team, participants := writersTeam(t, 10, agents.ScriptedConfig{}, agents.ScriptedConfig{})
	stream := NewEngine().RunStream(ctx, team, "t")

	var events []result.StreamEvent
	for stream.Next() {
		events = append(events, stream.Event())
		if len(events) == 1 {
			cancel()
		}
	}

	if len(events) != 2 || events[1].Type != result.EventRunCancelled {
		t.Fatalf("events = %v, want task message then run-cancelled", events)
	}
	assertClosedOnce(t, participants)
}

func TestRunStream_MissingResult(t *testing.T) {
	team := &fakeTeam{stream: func(context.Context, string) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			yield(textMsg("user", "t"), nil)
		}
	}}

	stream := NewEngine().RunStream(context.Background(), team, "t")
	events := collect(stream)

	if len(events) != 2 || events[1].Type != result.EventRunFailed {
		t.Fatalf("events = %+v", events)
	}
	if !errors.Is(stream.Err(), errors.ErrMissingResult) {
		t.Errorf("Err() = %v, want ErrMissingResult", stream.Err())
	}
}

func TestRunStream_Panic(t *testing.T) {
	team := &fakeTeam{stream: func(context.Context, string) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			if !yield(textMsg("user", "t"), nil) {
				return
			}
			panic("stream exploded")
		}
	}}

	stream := NewEngine().RunStream(context.Background(), team, "t")
	events := collect(stream)

	if last := events[len(events)-1]; last.Type != result.EventRunFailed {
		t.Fatalf("last event = %q, want run-failed", last.Type)
	}
	if !errors.Is(stream.Err(), errors.ErrTeamPanicked) || team.closes.Load() != 1 {
		t.Errorf("Err() = %v, closes = %d", stream.Err(), team.closes.Load())
	}
}

func TestRunStream_ErrorItemIsNotTerminal(t *testing.T) {
	team := &fakeTeam{stream: func(context.Context, string) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			if !yield(errors.New("tool warning payload"), nil) {
				return
			}
			yield(&agentchat.TaskResult{StopReason: agentchat.StopMaxTurns}, nil)
		}
	}}

	stream := NewEngine().RunStream(context.Background(), team, "t")
	events := collect(stream)

	if len(events) != 2 {
		t.Fatalf("events = %+v, want an item then the terminal event", events)
	}
	if countTerminal(events) != 1 {
		t.Errorf("terminal events = %d, want 1", countTerminal(events))
	}
	if events[0].Type != result.EventContentChunk || events[0].Content != "tool warning payload" {
		t.Errorf("first event = %+v, want a content-chunk carrying the error text", events[0])
	}
	if events[1].Type != result.EventRunCompleted {
		t.Errorf("last event = %q, want run-completed", events[1].Type)
	}
	if stream.Err() != nil {
		t.Errorf("Err() = %v", stream.Err())
	}
}

func TestRunStream_PullsOneItemPerEvent(t *testing.T) {
	var yielded atomic.Int32
	team := &fakeTeam{stream: func(context.Context, string) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for i := range 5 {
				yielded.Add(1)
				if !yield(textMsg("writer", strings.Repeat("x", i+1)), nil) {
					return
				}
			}
			yielded.Add(1)
			yield(&agentchat.TaskResult{StopReason: agentchat.StopMaxTurns}, nil)
		}
	}}

	stream := NewEngine().RunStream(context.Background(), team, "t")
	if n := yielded.Load(); n != 0 {
		t.Fatalf("team yielded %d items before the first Next", n)
	}

	consumed := 0
	for stream.Next() {
		consumed++
		if n := int(yielded.Load()); n > consumed+1 {
			t.Fatalf("after %d events the team had yielded %d items", consumed, n)
		}
	}
	if consumed != 6 {
		t.Errorf("consumed %d events, want 6", consumed)
	}
}

func TestRunStream_ToolEvents(t *testing.T) {
	call := agentchat.FunctionCall{ID: "c1", Name: "echo", Arguments: `{"text":"hi"}`}
	team := &fakeTeam{stream: func(context.Context, string) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			items := []any{
				agentchat.SpeakerSelected{Speaker: "helper", Turn: 1},
				agentchat.ToolCallRequest{From: "helper", Calls: []agentchat.FunctionCall{call}},
				agentchat.ToolCallResult{From: "helper", Results: []agentchat.FunctionResult{{CallID: "c1", Name: "echo", Content: "hi"}}},
				agentchat.ModelChunk{From: "helper", Content: "h"},
				textMsg("helper", "hi"),
				&agentchat.TaskResult{StopReason: agentchat.StopMaxTurns},
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}}

	var types []string
	for ev := range NewEngine().RunStream(context.Background(), team, "t").All() {
		types = append(types, string(ev.Type))
	}
	want := "agent-turn-started,tool-invoked,tool-result,content-chunk,content-chunk,run-completed"
	if got := strings.Join(types, ","); got != want {
		t.Errorf("event types = %s, want %s", got, want)
	}
}

func TestRunStream_ConcurrentRuns(t *testing.T) {
	engine := NewEngine()
	var wg sync.WaitGroup
	for range 8 {
		team, _ := writersTeam(t, 4, agents.ScriptedConfig{}, agents.ScriptedConfig{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			events := collect(engine.RunStream(context.Background(), team, "t"))
			if last := events[len(events)-1]; last.Type != result.EventRunCompleted {
				t.Errorf("last event = %q", last.Type)
			}
		}()
	}
	wg.Wait()
	if engine.Registry().Len() != 0 {
		t.Errorf("registry holds %d runs", engine.Registry().Len())
	}
}
