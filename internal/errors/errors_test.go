package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Config Error Tests
// -----------------------------------------------------------------------------

func TestConfigFormatError(t *testing.T) {
	err := NewConfigFormatError("unsupported file format", ErrUnsupportedFormat).WithSource("teams/a.txt")

	want := "config format error [source=teams/a.txt]: unsupported file format: unsupported file format"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Error("errors.Is(err, ErrUnsupportedFormat) = false, want true")
	}
	if err.Kind() != KindConfigFormat {
		t.Errorf("Kind() = %q, want %q", err.Kind(), KindConfigFormat)
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestConfigFormatError_WrapsNotExist(t *testing.T) {
	err := NewConfigFormatError("reading document", fs.ErrNotExist)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("errors.Is(err, fs.ErrNotExist) = false, want true")
	}
}

func TestConfigValidationError(t *testing.T) {
	err := NewConfigValidationError("at least one participant is required").
		WithSource("team.yaml").
		WithField("config.participants").
		WithValue([]any{})

	msg := err.Error()
	for _, part := range []string{"config validation error", "source=team.yaml", "field=config.participants", "at least one participant"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, want containing %q", msg, part)
		}
	}
	if KindOf(err) != KindConfigValidation {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindConfigValidation)
	}
	if !IsConfigError(err) {
		t.Error("IsConfigError() = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Component Error Tests
// -----------------------------------------------------------------------------

func TestUnsupportedComponentError(t *testing.T) {
	err := NewUnsupportedComponentError("swarm")
	if err.Provider != "swarm" {
		t.Errorf("Provider = %q, want %q", err.Provider, "swarm")
	}
	if !strings.Contains(err.Error(), `"swarm"`) {
		t.Errorf("Error() = %q, want containing provider", err.Error())
	}
	if IsConfigError(err) {
		t.Error("IsConfigError() = true, want false")
	}
}

func TestComponentConstructionError(t *testing.T) {
	cause := fmt.Errorf("participant %q: no model client", "writer")
	err := NewComponentConstructionError("building team", cause).WithProvider("round_robin").WithLabel("Writers")

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	want := `component construction error [provider=round_robin, label=Writers]: building team: participant "writer": no model client`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// Run Error Tests
// -----------------------------------------------------------------------------

func TestRunFailure(t *testing.T) {
	cause := errors.New("model unavailable")
	err := NewRunFailure("run-1", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if got := err.Error(); got != "run failure [run=run-1]: team execution failed: model unavailable" {
		t.Errorf("Error() = %q", got)
	}
	if IsCancelled(err) {
		t.Error("IsCancelled() = true, want false")
	}
}

type rateLimited struct{}

func (rateLimited) Error() string   { return "rate limited" }
func (rateLimited) Temporary() bool { return true }

func TestRunFailure_Classification(t *testing.T) {
	tests := []struct {
		name          string
		cause         error
		wantRetryable bool
		wantUser      bool
		wantSeverity  Severity
	}{
		{"plain", errors.New("boom"), false, true, SeverityError},
		{"temporary", fmt.Errorf("model call: %w", rateLimited{}), true, true, SeverityError},
		{"panic", fmt.Errorf("%w: nil map", ErrTeamPanicked), false, false, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRunFailure("r", tt.cause)
			if got := IsRetryable(err); got != tt.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.wantRetryable)
			}
			if got := IsUserFacing(err); got != tt.wantUser {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.wantUser)
			}
			if got := GetSeverity(err); got != tt.wantSeverity {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.wantSeverity)
			}
		})
	}
}

func TestInvalidRunError(t *testing.T) {
	err := NewInvalidRunError("r1", ErrDuplicateRunID)

	if !errors.Is(err, ErrDuplicateRunID) {
		t.Error("errors.Is(err, ErrDuplicateRunID) = false, want true")
	}
	if got := err.Error(); got != "invalid run [run=r1]: cannot prepare run: run ID already exists" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewInvalidRunError("", ErrTeamRequired).Error(); got != "invalid run: cannot prepare run: team is required" {
		t.Errorf("Error() = %q", got)
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"format", NewConfigFormatError("x", nil), KindConfigFormat},
		{"validation wrapped", fmt.Errorf("loading: %w", NewConfigValidationError("x")), KindConfigValidation},
		{"unsupported", NewUnsupportedComponentError("x"), KindUnsupportedComponent},
		{"construction", NewComponentConstructionError("x", nil), KindComponentConstruction},
		{"invalid run", NewInvalidRunError("r", ErrTeamRequired), KindInvalidRun},
		{"run failure", NewRunFailure("r", nil), KindRunFailure},
		{"context canceled", context.Canceled, KindCancelled},
		{"deadline", context.DeadlineExceeded, KindCancelled},
		{"sentinel", ErrRunCancelled, KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true, want false")
	}
	if IsRetryable(NewRunFailure("r", nil)) {
		t.Error("IsRetryable(RunFailure) = true, want false")
	}
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(NewConfigFormatError("x", nil)) {
		t.Error("IsUserFacing(ConfigFormatError) = false, want true")
	}
	if IsUserFacing(errors.New("internal")) {
		t.Error("IsUserFacing(plain) = true, want false")
	}
}

func TestGetSeverity(t *testing.T) {
	if got := GetSeverity(nil); got != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want %v", got, SeverityDebug)
	}
	if got := GetSeverity(errors.New("x")); got != SeverityError {
		t.Errorf("GetSeverity(plain) = %v, want %v", got, SeverityError)
	}
	if got := GetSeverity(NewRunFailure("r", nil)); got != SeverityError {
		t.Errorf("GetSeverity(RunFailure) = %v, want %v", got, SeverityError)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	base := NewUnsupportedComponentError("x")
	wrapped := Wrapf(base, "building %s", "team")
	if !strings.HasPrefix(wrapped.Error(), "building team: ") {
		t.Errorf("Wrapf() = %q", wrapped.Error())
	}
	var target *UnsupportedComponentError
	if !errors.As(wrapped, &target) {
		t.Error("errors.As through Wrapf failed")
	}
}
