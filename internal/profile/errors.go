package profile

import (
	"errors"
	"fmt"
)

var (
	ErrMissingUserID   = errors.New("user id is missing")
	ErrUserIDMismatch  = errors.New("persona user id does not match the profile")
	ErrIncompleteDraft = errors.New("profile or persona is incomplete")
)

// SyncError reports that the backend did not accept a profile or persona.
// Persisted state is left as it was before the call.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// RetryPrompt is the user-facing text shown for a failed sync.
func (e *SyncError) RetryPrompt() string {
	switch e.Op {
	case OpSaveProfile:
		return "Failed to save user info. Please try again."
	case OpSavePersona:
		return "Failed to save AI personality. Please try again."
	default:
		return "Failed to complete onboarding. Please try again."
	}
}

const (
	OpSaveProfile = "save profile"
	OpSavePersona = "save persona"
	OpCommit      = "complete onboarding"
)
