// Package errors provides centralized error definitions and error handling utilities
// for teamrun. It defines the failure taxonomy of the team lifecycle manager,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Every public operation fails with one of these named kinds:
//   - ConfigFormatError: a team document could not be read or parsed
//   - ConfigValidationError: a well-formed document has an invalid schema
//   - UnsupportedComponentError: the component type tag has no implementation
//   - ComponentConstructionError: the implementation rejected its payload
//   - InvalidRunError: a run could not be registered (no team, duplicate ID)
//   - RunFailure: the underlying team failed mid-run
//
// A cancelled run is not an error. It is reported through the run status and
// can be recognized with [IsCancelled] or the [ErrRunCancelled] sentinel.
//
// # Usage
//
// Checking errors:
//
//	var formatErr *errors.ConfigFormatError
//	if errors.As(err, &formatErr) { ... }
//
//	switch errors.KindOf(err) {
//	case errors.KindConfigValidation:
//	    ...
//	}
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Kind names a failure category so callers can branch without inspecting
// message text.
type Kind string

const (
	KindUnknown               Kind = "unknown"
	KindConfigFormat          Kind = "config_format"
	KindConfigValidation      Kind = "config_validation"
	KindUnsupportedComponent  Kind = "unsupported_component"
	KindComponentConstruction Kind = "component_construction"
	KindInvalidRun            Kind = "invalid_run"
	KindRunFailure            Kind = "run_failure"
	KindCancelled             Kind = "cancelled"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Config-related sentinel errors
var (
	// ErrUnsupportedFormat indicates the file extension or content type is not recognized.
	ErrUnsupportedFormat = New("unsupported file format")
	// ErrUnsupportedSource indicates the in-memory config value has an unsupported type.
	ErrUnsupportedSource = New("unsupported team config type")
	// ErrNotMapping indicates the document did not decode to a mapping.
	ErrNotMapping = New("document is not a mapping")
)

// Run-related sentinel errors
var (
	// ErrRunCancelled marks a run that reached the cancelled terminal state.
	ErrRunCancelled = New("run cancelled")
	// ErrMissingResult indicates the team finished streaming without a task result.
	ErrMissingResult = New("team produced no task result")
	// ErrTeamPanicked indicates the underlying team panicked during execution.
	ErrTeamPanicked = New("team panicked")
	// ErrTeamRequired indicates a run was prepared without a team.
	ErrTeamRequired = New("team is required")
	// ErrDuplicateRunID indicates the run ID is already registered.
	ErrDuplicateRunID = New("run ID already exists")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// TeamrunError is the base interface for all teamrun errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type TeamrunError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Kind returns the failure category.
	Kind() Kind

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func newBase(message string, cause error) baseError {
	return baseError{
		message:    message,
		cause:      cause,
		severity:   SeverityError,
		userFacing: true,
	}
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Message returns the message without context prefix or cause.
func (e *baseError) Message() string {
	return e.message
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "<prefix> [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Config Errors
// -----------------------------------------------------------------------------

// ConfigFormatError reports a team document that is missing, has an
// unrecognized extension, or cannot be parsed as a mapping.
//
// Example:
//
//	err := errors.NewConfigFormatError("unsupported file format", errors.ErrUnsupportedFormat)
//	err = err.WithSource("teams/writer.txt")
//	fmt.Println(err) // "config format error [source=teams/writer.txt]: unsupported file format: ..."
type ConfigFormatError struct {
	baseError
	Source string
}

// NewConfigFormatError creates a new ConfigFormatError.
func NewConfigFormatError(message string, cause error) *ConfigFormatError {
	return &ConfigFormatError{baseError: newBase(message, cause)}
}

// WithSource adds the originating path to the error context.
func (e *ConfigFormatError) WithSource(source string) *ConfigFormatError {
	e.Source = source
	return e
}

// Kind returns KindConfigFormat.
func (e *ConfigFormatError) Kind() Kind { return KindConfigFormat }

// Error returns the formatted error message.
func (e *ConfigFormatError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", e.Source))
	}
	return e.format("config format error", parts)
}

// ConfigValidationError reports a well-formed document whose schema is invalid.
//
// Example:
//
//	err := errors.NewConfigValidationError("at least one participant is required")
//	err = err.WithField("config.participants").WithSource("team.yaml")
type ConfigValidationError struct {
	baseError
	Source string
	Field  string
	Value  any
}

// NewConfigValidationError creates a new ConfigValidationError.
func NewConfigValidationError(message string) *ConfigValidationError {
	return &ConfigValidationError{baseError: newBase(message, nil)}
}

// WithSource adds the originating path to the error context.
func (e *ConfigValidationError) WithSource(source string) *ConfigValidationError {
	e.Source = source
	return e
}

// WithField adds a field path to the error context.
func (e *ConfigValidationError) WithField(field string) *ConfigValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ConfigValidationError) WithValue(value any) *ConfigValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ConfigValidationError) WithCause(cause error) *ConfigValidationError {
	e.cause = cause
	return e
}

// Kind returns KindConfigValidation.
func (e *ConfigValidationError) Kind() Kind { return KindConfigValidation }

// Error returns the formatted error message.
func (e *ConfigValidationError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", e.Source))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	return e.format("config validation error", parts)
}

// -----------------------------------------------------------------------------
// Component Errors
// -----------------------------------------------------------------------------

// UnsupportedComponentError reports a valid config whose type tag has no
// registered implementation.
type UnsupportedComponentError struct {
	baseError
	Provider string
}

// NewUnsupportedComponentError creates a new UnsupportedComponentError.
func NewUnsupportedComponentError(provider string) *UnsupportedComponentError {
	return &UnsupportedComponentError{
		baseError: newBase(fmt.Sprintf("no implementation registered for %q", provider), nil),
		Provider:  provider,
	}
}

// Kind returns KindUnsupportedComponent.
func (e *UnsupportedComponentError) Kind() Kind { return KindUnsupportedComponent }

// Error returns the formatted error message.
func (e *UnsupportedComponentError) Error() string {
	return e.format("unsupported component", nil)
}

// ComponentConstructionError reports a known component whose construction-time
// validation rejected the payload.
//
// Example:
//
//	err := errors.NewComponentConstructionError("building participant", cause)
//	err = err.WithProvider("round_robin")
type ComponentConstructionError struct {
	baseError
	Provider string
	Label    string
}

// NewComponentConstructionError creates a new ComponentConstructionError.
func NewComponentConstructionError(message string, cause error) *ComponentConstructionError {
	return &ComponentConstructionError{baseError: newBase(message, cause)}
}

// WithProvider adds the component type tag to the error context.
func (e *ComponentConstructionError) WithProvider(provider string) *ComponentConstructionError {
	e.Provider = provider
	return e
}

// WithLabel adds the component label to the error context.
func (e *ComponentConstructionError) WithLabel(label string) *ComponentConstructionError {
	e.Label = label
	return e
}

// Kind returns KindComponentConstruction.
func (e *ComponentConstructionError) Kind() Kind { return KindComponentConstruction }

// Error returns the formatted error message.
func (e *ComponentConstructionError) Error() string {
	var parts []string
	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.Provider))
	}
	if e.Label != "" {
		parts = append(parts, fmt.Sprintf("label=%s", e.Label))
	}
	return e.format("component construction error", parts)
}

// -----------------------------------------------------------------------------
// Run Errors
// -----------------------------------------------------------------------------

// InvalidRunError reports a run that was rejected before it started.
type InvalidRunError struct {
	baseError
	RunID string
}

// NewInvalidRunError creates a new InvalidRunError. cause is usually
// ErrTeamRequired or ErrDuplicateRunID.
func NewInvalidRunError(runID string, cause error) *InvalidRunError {
	return &InvalidRunError{
		baseError: newBase("cannot prepare run", cause),
		RunID:     runID,
	}
}

// Kind returns KindInvalidRun.
func (e *InvalidRunError) Kind() Kind { return KindInvalidRun }

// Error returns the formatted error message.
func (e *InvalidRunError) Error() string {
	var parts []string
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", e.RunID))
	}
	return e.format("invalid run", parts)
}

// RunFailure reports an unrecoverable error raised by the underlying team
// while a run was in progress. The original error is preserved as the cause.
type RunFailure struct {
	baseError
	RunID string
}

// temporary is implemented by transport errors that may clear up on retry,
// such as a rate-limited model endpoint.
type temporary interface {
	Temporary() bool
}

// NewRunFailure creates a new RunFailure. A panic in the team is critical
// and its message is not shown to users; a temporary cause makes the
// failure retryable.
func NewRunFailure(runID string, cause error) *RunFailure {
	e := &RunFailure{
		baseError: newBase("team execution failed", cause),
		RunID:     runID,
	}
	if Is(cause, ErrTeamPanicked) {
		e.severity = SeverityCritical
		e.userFacing = false
	}
	var t temporary
	if As(cause, &t) && t.Temporary() {
		e.retryable = true
	}
	return e
}

// Kind returns KindRunFailure.
func (e *RunFailure) Kind() Kind { return KindRunFailure }

// Error returns the formatted error message.
func (e *RunFailure) Error() string {
	var parts []string
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", e.RunID))
	}
	return e.format("run failure", parts)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// KindOf returns the failure category of err. Context cancellation and
// ErrRunCancelled map to KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var te TeamrunError
	if As(err, &te) {
		return te.Kind()
	}
	if IsCancelled(err) {
		return KindCancelled
	}
	return KindUnknown
}

// IsCancelled reports whether err represents cooperative cancellation.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrRunCancelled) || Is(err, context.Canceled) || Is(err, context.DeadlineExceeded)
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te TeamrunError
	if As(err, &te) {
		return te.IsRetryable()
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    displayToUser(err.Error())
//	} else {
//	    displayToUser("An internal error occurred")
//	    log.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var te TeamrunError
	if As(err, &te) {
		return te.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement TeamrunError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var te TeamrunError
	if As(err, &te) {
		return te.Severity()
	}
	return SeverityError
}

// IsConfigError returns true if the error came from loading or validating a
// team document.
func IsConfigError(err error) bool {
	switch KindOf(err) {
	case KindConfigFormat, KindConfigValidation:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the TeamrunError interface.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to process request")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
