package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("text must not be empty")
	// ErrProfileRequired is returned when an upsert has no profile id.
	ErrProfileRequired = errors.New("profile id is required")
)

// SynthesisError wraps a failed call to the speech service.
type SynthesisError struct {
	VoiceID string
	Err     error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed for voice %s: %v", e.VoiceID, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
