package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "run.started", "config.loaded")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeConfigLoaded   = "config.loaded"
	TypeConfigRejected = "config.rejected"
	TypeConfigReloaded = "config.reloaded"
	TypeTeamBuilt      = "team.built"
	TypeRunStarted     = "run.started"
	TypeRunCompleted   = "run.completed"
	TypeRunFailed      = "run.failed"
	TypeRunCancelled   = "run.cancelled"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Config Events
// -----------------------------------------------------------------------------

// ConfigLoadedEvent is emitted for each team configuration that parsed and
// validated successfully.
type ConfigLoadedEvent struct {
	baseEvent
	Source   string // File path, or "<inline>" for in-memory payloads
	Provider string
	Label    string
}

// NewConfigLoadedEvent creates a ConfigLoadedEvent.
func NewConfigLoadedEvent(source, provider, label string) ConfigLoadedEvent {
	return ConfigLoadedEvent{
		baseEvent: newBaseEvent(TypeConfigLoaded),
		Source:    source,
		Provider:  provider,
		Label:     label,
	}
}

// ConfigRejectedEvent is emitted when a directory scan skips a file.
type ConfigRejectedEvent struct {
	baseEvent
	Source string
	Err    error
}

// NewConfigRejectedEvent creates a ConfigRejectedEvent.
func NewConfigRejectedEvent(source string, err error) ConfigRejectedEvent {
	return ConfigRejectedEvent{
		baseEvent: newBaseEvent(TypeConfigRejected),
		Source:    source,
		Err:       err,
	}
}

// ConfigReloadedEvent is emitted after a watched directory is rescanned.
type ConfigReloadedEvent struct {
	baseEvent
	Dir     string
	Loaded  int
	Skipped int
}

// NewConfigReloadedEvent creates a ConfigReloadedEvent.
func NewConfigReloadedEvent(dir string, loaded, skipped int) ConfigReloadedEvent {
	return ConfigReloadedEvent{
		baseEvent: newBaseEvent(TypeConfigReloaded),
		Dir:       dir,
		Loaded:    loaded,
		Skipped:   skipped,
	}
}

// -----------------------------------------------------------------------------
// Team Events
// -----------------------------------------------------------------------------

// TeamBuiltEvent is emitted when the factory produces a runnable team.
type TeamBuiltEvent struct {
	baseEvent
	Provider     string
	Label        string
	Participants int
}

// NewTeamBuiltEvent creates a TeamBuiltEvent.
func NewTeamBuiltEvent(provider, label string, participants int) TeamBuiltEvent {
	return TeamBuiltEvent{
		baseEvent:    newBaseEvent(TypeTeamBuilt),
		Provider:     provider,
		Label:        label,
		Participants: participants,
	}
}

// -----------------------------------------------------------------------------
// Run Lifecycle Events
// -----------------------------------------------------------------------------

// RunStartedEvent is emitted when a run leaves pending.
type RunStartedEvent struct {
	baseEvent
	RunID     string
	Team      string
	Task      string
	Streaming bool
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID, team, task string, streaming bool) RunStartedEvent {
	return RunStartedEvent{
		baseEvent: newBaseEvent(TypeRunStarted),
		RunID:     runID,
		Team:      team,
		Task:      task,
		Streaming: streaming,
	}
}

// RunCompletedEvent is emitted when a run ends with a task result.
type RunCompletedEvent struct {
	baseEvent
	RunID      string
	Duration   time.Duration
	StopReason string
	Messages   int
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(runID string, d time.Duration, stopReason string, messages int) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent:  newBaseEvent(TypeRunCompleted),
		RunID:      runID,
		Duration:   d,
		StopReason: stopReason,
		Messages:   messages,
	}
}

// RunFailedEvent is emitted when the team raised an error.
type RunFailedEvent struct {
	baseEvent
	RunID    string
	Duration time.Duration
	Err      error
}

// NewRunFailedEvent creates a RunFailedEvent.
func NewRunFailedEvent(runID string, d time.Duration, err error) RunFailedEvent {
	return RunFailedEvent{
		baseEvent: newBaseEvent(TypeRunFailed),
		RunID:     runID,
		Duration:  d,
		Err:       err,
	}
}

// RunCancelledEvent is emitted when cancellation stopped a run.
type RunCancelledEvent struct {
	baseEvent
	RunID    string
	Duration time.Duration
}

// NewRunCancelledEvent creates a RunCancelledEvent.
func NewRunCancelledEvent(runID string, d time.Duration) RunCancelledEvent {
	return RunCancelledEvent{
		baseEvent: newBaseEvent(TypeRunCancelled),
		RunID:     runID,
		Duration:  d,
	}
}
