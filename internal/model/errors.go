package model

import (
	"errors"
	"fmt"
)

// ErrAuthExpired is returned by collaborators when the session credential
// was rejected. The current operation fails; callers refresh the credential
// and construct a new pipeline to retry.
var ErrAuthExpired = errors.New("auth expired")

// ErrNoCredential is returned when no usable credential is configured.
var ErrNoCredential = errors.New("no credential configured")

// ContentUnavailableError reports that a track cannot be streamed at the
// requested quality or is not entitled for the session.
type ContentUnavailableError struct {
	TrackID string
	Quality Quality
	Reason  string
}

func (e *ContentUnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("track %s unavailable at %s", e.TrackID, e.Quality)
	}
	return fmt.Sprintf("track %s unavailable at %s: %s", e.TrackID, e.Quality, e.Reason)
}
