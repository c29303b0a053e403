package phase

import (
	"errors"
	"strings"
)

// Sentinel errors for timeline construction and phase transitions.
var (
	// ErrInvalidTemplateID indicates a missing or unknown timeline template id.
	ErrInvalidTemplateID = errors.New("invalid timeline template id")
	// ErrTemplateInactive indicates the timeline template exists but is not active.
	ErrTemplateInactive = errors.New("timeline template is inactive")
	// ErrUnknownPhase indicates a phase id that is not in the definition catalog.
	ErrUnknownPhase = errors.New("unknown phase id")
	// ErrPredecessorCycle indicates the predecessor graph is not a forest.
	ErrPredecessorCycle = errors.New("predecessor cycle")
	// ErrInvalidDuration indicates a negative phase duration.
	ErrInvalidDuration = errors.New("invalid phase duration")
	// ErrDateOrder indicates a start date after its matching end date.
	ErrDateOrder = errors.New("start date is after end date")
	// ErrOpenWithActualEnd indicates an open phase carrying an actual end date.
	ErrOpenWithActualEnd = errors.New("open phase cannot have an actual end date")
	// ErrStatusTransition indicates a challenge status change that is not allowed.
	ErrStatusTransition = errors.New("invalid challenge status transition")
	// ErrPredecessorNotSibling indicates a predecessor outside the challenge.
	ErrPredecessorNotSibling = errors.New("predecessor is not a phase of this challenge")
	// ErrForeignConstraint indicates a constraint id owned by another phase.
	ErrForeignConstraint = errors.New("constraint does not belong to this phase")
	// ErrUnknownField indicates a patch payload carrying an unsupported field.
	ErrUnknownField = errors.New("unknown field in patch")
	// ErrMalformed indicates a payload that could not be decoded.
	ErrMalformed = errors.New("malformed payload")
	// ErrPendingReviews indicates the phase still has unfinished reviews.
	ErrPendingReviews = errors.New("phase has pending reviews")
	// ErrChallengeNotFound indicates the challenge does not exist.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrPhaseNotFound indicates the phase instance does not exist.
	ErrPhaseNotFound = errors.New("phase not found")
)

// Kind classifies an engine error for callers that map errors to responses.
type Kind string

// Error kinds.
const (
	KindBadRequest Kind = "bad_request"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
)

// Error carries a Kind alongside the underlying sentinel and a detail string
// naming the offending values.
type Error struct {
	Kind   Kind
	Err    error
	Detail string
}

// Error returns the sentinel message followed by the detail, if any.
func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

// Unwrap returns the sentinel for use with errors.Is.
func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest wraps err as a caller error.
func BadRequest(err error, detail ...string) *Error {
	return &Error{Kind: KindBadRequest, Err: err, Detail: strings.Join(detail, " ")}
}

// NotFound wraps err as a missing-resource error.
func NotFound(err error, detail ...string) *Error {
	return &Error{Kind: KindNotFound, Err: err, Detail: strings.Join(detail, " ")}
}

// Forbidden wraps err as a rejected transition.
func Forbidden(err error, detail ...string) *Error {
	return &Error{Kind: KindForbidden, Err: err, Detail: strings.Join(detail, " ")}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when err
// carries none (storage failures, for example).
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsBadRequest reports whether err is a caller error.
func IsBadRequest(err error) bool { return KindOf(err) == KindBadRequest }

// IsNotFound reports whether err is a missing-resource error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsForbidden reports whether err is a rejected transition.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }
