package router

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidates is returned by Decide when no healthy arm is available.
	ErrNoCandidates = errors.New("no healthy candidate arms")
	// ErrContextUnavailable is returned by a FeatureStore on timeout or lookup miss.
	// Router recovers from it locally and never returns it from Decide.
	ErrContextUnavailable = errors.New("context unavailable")
	// ErrSelectionFailed is returned when no candidate produced a finite score.
	ErrSelectionFailed = errors.New("selection failed")
	// ErrUnknownDecision is returned by IngestReward for ids that were never
	// recorded or fell outside the retention window.
	ErrUnknownDecision = errors.New("unknown decision")
	// ErrDuplicateReward is returned by IngestReward when the decision was already rewarded.
	ErrDuplicateReward = errors.New("duplicate reward")
	// ErrInvalidReward is returned for non-finite or out-of-bounds reward values.
	ErrInvalidReward = errors.New("invalid reward")
	// ErrUnknownArm is returned by registry operations on ids it does not hold.
	ErrUnknownArm = errors.New("unknown arm")
	// ErrInvalidHealth is returned when a health state is not recognized.
	ErrInvalidHealth = errors.New("invalid health state")
)

// SelectionError carries enough detail to diagnose which arm and request
// produced an unusable score. It unwraps to ErrSelectionFailed.
type SelectionError struct {
	ArmID      string // last arm whose score was rejected
	RequestKey string
	Reason     string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selection failed for request %q (arm %q): %s", e.RequestKey, e.ArmID, e.Reason)
}

// Unwrap lets errors.Is match ErrSelectionFailed.
func (e *SelectionError) Unwrap() error { return ErrSelectionFailed }

// Error codes used as metric labels.
const (
	CodeNoCandidates       = "NoCandidates"
	CodeContextUnavailable = "ContextUnavailable"
	CodeSelectionFailed    = "SelectionFailed"
	CodeUnknownDecision    = "UnknownDecision"
	CodeDuplicateReward    = "DuplicateReward"
	CodeInvalidReward      = "InvalidReward"
	CodeUnknownArm         = "UnknownArm"
	CodeCanceled           = "Canceled"
	CodeUnknown            = "Unknown"
)

// ErrorCode maps err to a stable code. Unrecognized errors map to CodeUnknown.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoCandidates):
		return CodeNoCandidates
	case errors.Is(err, ErrContextUnavailable):
		return CodeContextUnavailable
	case errors.Is(err, ErrSelectionFailed):
		return CodeSelectionFailed
	case errors.Is(err, ErrUnknownDecision):
		return CodeUnknownDecision
	case errors.Is(err, ErrDuplicateReward):
		return CodeDuplicateReward
	case errors.Is(err, ErrInvalidReward):
		return CodeInvalidReward
	case errors.Is(err, ErrUnknownArm):
		return CodeUnknownArm
	case errors.Is(err, errCanceled):
		return CodeCanceled
	default:
		return CodeUnknown
	}
}

// errCanceled tags caller cancellations on the reward path so they get their own code.
var errCanceled = errors.New("canceled")
