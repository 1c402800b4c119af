// Package errors provides the error taxonomy of the production pipeline and
// helpers to classify errors by severity, retryability and whether their
// message may be shown to an operator.
//
// # Taxonomy
//
// Each failure class the orchestrator reasons about has a sentinel:
//   - ErrCollaboratorUnavailable: a stage implementation could not be built;
//     recovered by substituting a stub.
//   - ErrStageTimeout: a stage exceeded its deadline.
//   - ErrStageException: a stage returned an error or panicked.
//   - ErrResourceExhaustion: the host crossed a CPU or RAM threshold.
//   - ErrRestartRequested: a source change asked for a fresh run.
//   - ErrRetryBudgetExhausted: every attempt failed; the run is Failed.
//
// Typed errors (StageError, RunError, CollaboratorError, TimeoutError) carry
// context and match their sentinel with errors.Is:
//
//	err := errors.NewStageError("script", errors.ErrStageTimeout, nil).WithAttempt(2)
//	errors.Is(err, errors.ErrStageTimeout) // true
//
// UserMessage turns any error into an operator-safe summary.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers import a single package.
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
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the lower-case name of the severity.
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

// Pipeline failure classes.
var (
	ErrCollaboratorUnavailable = New("collaborator unavailable")
	ErrStageTimeout            = New("stage timed out")
	ErrStageException          = New("stage failed")
	ErrResourceExhaustion      = New("resource exhaustion")
	ErrRestartRequested        = New("restart requested")
	ErrRetryBudgetExhausted    = New("retry budget exhausted")
)

// Orchestrator state errors.
var (
	// ErrRunActive is returned when a trigger arrives while a run is active.
	ErrRunActive = New("a run is already active")
	// ErrNotStarted is returned when the orchestrator control loop is not running.
	ErrNotStarted = New("orchestrator not started")
	// ErrStopped is returned once the orchestrator has been stopped.
	ErrStopped = New("orchestrator stopped")
)

// General sentinel errors
var (
	ErrTimeout      = New("operation timed out")
	ErrCanceled     = New("operation canceled")
	ErrInvalidInput = New("invalid input")
)

// ClassifiedError is implemented by every typed error in this package.
type ClassifiedError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error      { return e.cause }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// format renders "kind [k=v, ...]: message: cause".
func format(kind string, tags []string, message string, cause error) string {
	prefix := kind
	if len(tags) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(tags, ", "))
	}
	if message == "" && cause != nil {
		return fmt.Sprintf("%s: %v", prefix, cause)
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// StageError describes a failed stage invocation. Kind is one of
// ErrStageTimeout, ErrStageException or ErrCollaboratorUnavailable.
//
//	err := errors.NewStageError("music", errors.ErrStageException, cause)
//	fmt.Println(err) // "stage error [stage=music]: stage failed: <cause>"
type StageError struct {
	baseError
	Stage   string
	Attempt int
	Kind    error
}

// NewStageError creates a StageError of the given kind.
func NewStageError(stage string, kind, cause error) *StageError {
	if kind == nil {
		kind = ErrStageException
	}
	return &StageError{
		baseError: baseError{
			message:    kind.Error(),
			cause:      cause,
			severity:   SeverityError,
			retryable:  kind != ErrCollaboratorUnavailable,
			userFacing: true,
		},
		Stage: stage,
		Kind:  kind,
	}
}

// WithAttempt records the attempt the stage ran in.
func (e *StageError) WithAttempt(n int) *StageError {
	e.Attempt = n
	return e
}

// WithSeverity overrides the default severity.
func (e *StageError) WithSeverity(s Severity) *StageError {
	e.severity = s
	return e
}

func (e *StageError) Error() string {
	var tags []string
	if e.Stage != "" {
		tags = append(tags, "stage="+e.Stage)
	}
	if e.Attempt > 0 {
		tags = append(tags, fmt.Sprintf("attempt=%d", e.Attempt))
	}
	return format("stage error", tags, e.message, e.cause)
}

// Is matches *StageError targets and the error's Kind sentinel.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	return target == e.Kind
}

// RunError describes a pipeline run that ended without success. Kind is
// ErrRetryBudgetExhausted, ErrRestartRequested or ErrResourceExhaustion.
type RunError struct {
	baseError
	RunID    string
	Attempts int
	Kind     error
}

// NewRunError creates a RunError of the given kind wrapping the last cause.
func NewRunError(runID string, kind, cause error) *RunError {
	sev := SeverityWarning
	if kind == ErrRetryBudgetExhausted {
		sev = SeverityCritical
	}
	return &RunError{
		baseError: baseError{
			message:    kind.Error(),
			cause:      cause,
			severity:   sev,
			retryable:  kind != ErrRetryBudgetExhausted,
			userFacing: true,
		},
		RunID: runID,
		Kind:  kind,
	}
}

// WithAttempts records how many attempts the run consumed.
func (e *RunError) WithAttempts(n int) *RunError {
	e.Attempts = n
	return e
}

func (e *RunError) Error() string {
	var tags []string
	if e.RunID != "" {
		tags = append(tags, "run="+e.RunID)
	}
	if e.Attempts > 0 {
		tags = append(tags, fmt.Sprintf("attempts=%d", e.Attempts))
	}
	return format("run error", tags, e.message, e.cause)
}

// Is matches *RunError targets and the error's Kind sentinel.
func (e *RunError) Is(target error) bool {
	if _, ok := target.(*RunError); ok {
		return true
	}
	return target == e.Kind
}

// CollaboratorError reports why a live collaborator could not be built.
type CollaboratorError struct {
	baseError
	Stage        string
	Collaborator string
}

// NewCollaboratorError creates a CollaboratorError; it always matches
// ErrCollaboratorUnavailable.
func NewCollaboratorError(stage, collaborator string, cause error) *CollaboratorError {
	return &CollaboratorError{
		baseError: baseError{
			message:    ErrCollaboratorUnavailable.Error(),
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Stage:        stage,
		Collaborator: collaborator,
	}
}

func (e *CollaboratorError) Error() string {
	var tags []string
	if e.Stage != "" {
		tags = append(tags, "stage="+e.Stage)
	}
	if e.Collaborator != "" {
		tags = append(tags, "collaborator="+e.Collaborator)
	}
	return format("collaborator error", tags, e.message, e.cause)
}

// Is matches *CollaboratorError targets and ErrCollaboratorUnavailable.
func (e *CollaboratorError) Is(target error) bool {
	if _, ok := target.(*CollaboratorError); ok {
		return true
	}
	return target == ErrCollaboratorUnavailable
}

// TimeoutError represents an operation that timed out.
//
//	err := errors.NewTimeoutError("ollama health check", 5*time.Second)
//	fmt.Println(err) // "timeout error: ollama health check (timeout: 5s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, d time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  d,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is matches *TimeoutError targets and ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	return target == ErrTimeout
}

// IsRetryable reports whether err is transient: a ClassifiedError marked
// retryable, or anything wrapping ErrTimeout or ErrStageTimeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce ClassifiedError
	if As(err, &ce) {
		return ce.IsRetryable()
	}
	return Is(err, ErrTimeout) || Is(err, ErrStageTimeout)
}

// IsUserFacing reports whether err's message is safe to show an operator.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var ce ClassifiedError
	if As(err, &ce) {
		return ce.IsUserFacing()
	}
	return false
}

// GetSeverity returns err's severity, SeverityError for unclassified errors.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var ce ClassifiedError
	if As(err, &ce) {
		return ce.Severity()
	}
	return SeverityError
}

// UserMessage summarizes err for status output without exposing internals.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrRetryBudgetExhausted):
		var re *RunError
		if As(err, &re) && re.Attempts > 0 {
			return fmt.Sprintf("run failed after %d attempts", re.Attempts)
		}
		return "run failed after exhausting all attempts"
	case Is(err, ErrRestartRequested):
		return "run aborted: restart requested"
	case Is(err, ErrResourceExhaustion):
		return "run aborted: paused under resource pressure"
	case Is(err, ErrStageTimeout):
		var se *StageError
		if As(err, &se) {
			return fmt.Sprintf("stage %s timed out", se.Stage)
		}
		return "stage timed out"
	case Is(err, ErrStageException):
		var se *StageError
		if As(err, &se) {
			return fmt.Sprintf("stage %s failed", se.Stage)
		}
		return "stage failed"
	case Is(err, ErrCollaboratorUnavailable):
		return "collaborator unavailable, stub used"
	case Is(err, ErrRunActive):
		return ErrRunActive.Error()
	case Is(err, ErrNotStarted):
		return ErrNotStarted.Error()
	case Is(err, ErrStopped):
		return "run aborted: orchestrator stopped"
	case Is(err, ErrCanceled):
		return "operation canceled"
	case Is(err, ErrInvalidInput):
		return err.Error()
	}
	if IsUserFacing(err) {
		return err.Error()
	}
	return "internal error"
}

// Wrap wraps err with a context message. Returns nil when err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps err with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
