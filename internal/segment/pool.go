package segment

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/handiism/tidal-downloader/internal/manifest"
)

// Status is the lifecycle position of one segment.
type Status int

const (
	StatusPending Status = iota
	StatusInFlight
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "in-flight"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is the fetch state of one segment. A Run writes each element only
// from the goroutine fetching that index.
type State struct {
	Status  Status
	Retries int
	Bytes   int64
	Err     error
}

// DefaultPoolSize is the number of segments fetched concurrently per track.
const DefaultPoolSize = 4

// Pool fetches the segments of a track with bounded concurrency.
//
// Admission is a sliding window: a new segment starts as soon as any
// in-flight one finishes. The first definitive failure stops admission;
// segments already in flight run to completion.
type Pool struct {
	fetcher  *Fetcher
	size     int
	inFlight atomic.Int32
}

// NewPool creates a Pool running at most size fetches at a time.
func NewPool(f *Fetcher, size int) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	return &Pool{fetcher: f, size: size}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int { return p.size }

// InFlight returns the number of segments currently being fetched.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Run fetches every segment of m into ws and returns the per-index states.
//
// On failure the error is a *TrackFetchError. When ctx ends first the
// error wraps ctx.Err().
func (p *Pool) Run(ctx context.Context, m *manifest.Manifest, ws SlotWriter) ([]State, error) {
	states := make([]State, m.Len())
	hooks := p.fetcher.hooks

	var (
		g    errgroup.Group
		stop atomic.Bool
	)
	g.SetLimit(p.size)

	for i := range m.Segments {
		if stop.Load() || ctx.Err() != nil {
			break
		}
		ref := m.Segments[i]
		g.Go(func() error {
			// Admission may have waited for a free slot.
			if stop.Load() || ctx.Err() != nil {
				return nil
			}

			states[i].Status = StatusInFlight
			p.inFlight.Add(1)
			if hooks.Started != nil {
				hooks.Started(ref.Index)
			}

			res, err := p.fetcher.Fetch(ctx, ref, ws)

			p.inFlight.Add(-1)
			if hooks.Finished != nil {
				hooks.Finished(ref.Index, err)
			}

			if res.Attempts > 1 {
				states[i].Retries = res.Attempts - 1
			}
			if err != nil {
				states[i].Status = StatusFailed
				states[i].Err = err
				stop.Store(true)
				return nil
			}
			states[i].Status = StatusDone
			states[i].Bytes = res.Bytes
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return states, fmt.Errorf("segment fetch interrupted: %w", err)
	}

	var failed TrackFetchError
	for i, st := range states {
		if st.Status == StatusFailed {
			failed.FailedIndices = append(failed.FailedIndices, i)
			failed.Errs = append(failed.Errs, st.Err)
		}
	}
	if len(failed.FailedIndices) > 0 {
		return states, &failed
	}
	return states, nil
}
