package segment

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLengthMismatch reports a body whose size differs from the declared
// segment length. It is treated as transient.
var ErrLengthMismatch = errors.New("segment length mismatch")

// SegmentFetchError is returned once a segment has exhausted its attempts,
// hit a permanent error, or been interrupted.
type SegmentFetchError struct {
	Index     int
	Attempts  int
	LastCause error
}

func (e *SegmentFetchError) Error() string {
	return fmt.Sprintf("segment %d failed after %d attempt(s): %v", e.Index, e.Attempts, e.LastCause)
}

func (e *SegmentFetchError) Unwrap() error { return e.LastCause }

// TrackFetchError lists the segments of a track that could not be fetched.
type TrackFetchError struct {
	// FailedIndices is sorted ascending.
	FailedIndices []int

	// Errs holds one *SegmentFetchError per failed index, in the same order.
	Errs []error
}

func (e *TrackFetchError) Error() string {
	idx := make([]string, len(e.FailedIndices))
	for i, n := range e.FailedIndices {
		idx[i] = fmt.Sprint(n)
	}
	msg := fmt.Sprintf("fetch failed for segment(s) %s", strings.Join(idx, ","))
	if len(e.Errs) > 0 {
		msg += ": " + e.Errs[0].Error()
	}
	return msg
}

func (e *TrackFetchError) Unwrap() []error { return e.Errs }
