package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing marks static catalog data that was absent and replaced by defaults.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrAuthenticationFailed disables voting but not browsing.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrDuplicateVote is returned when the user already voted for the location.
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrValidationFailed is returned for incomplete or malformed submissions.
	ErrValidationFailed = errors.New("validation failed")
	// ErrBackendUnavailable wraps storage and network failures.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// GenericRetryMessage is shown to users when the backend cannot be reached.
const GenericRetryMessage = "Грешка при запис на оценката. Моля опитайте отново."

// ValidationReason names the rule a submission broke.
type ValidationReason string

const (
	ReasonNotAuthenticated ValidationReason = "not_authenticated"
	ReasonMissingLocation  ValidationReason = "missing_location"
	ReasonPartialCriteria  ValidationReason = "partial_criteria"
	ReasonScoreOutOfRange  ValidationReason = "score_out_of_range"
	ReasonNoContent        ValidationReason = "no_content"
	ReasonUnknownCategory  ValidationReason = "unknown_category"
)

// ValidationError describes a rejected submission. It matches ErrValidationFailed.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// DuplicateVoteError carries the category so callers can pick the right message.
type DuplicateVoteError struct {
	Category Category
}

func (e *DuplicateVoteError) Error() string {
	return fmt.Sprintf("duplicate vote for %s", e.Category)
}

func (e *DuplicateVoteError) Unwrap() error { return ErrDuplicateVote }

// Message returns the category-specific text shown to the user.
func (e *DuplicateVoteError) Message() string {
	return e.Category.Kind().DuplicateMessage
}
