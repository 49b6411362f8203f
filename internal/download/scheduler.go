package download

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/handiism/tidal-downloader/internal/model"
)

// DefaultTrackConcurrency is the number of tracks downloaded at once
// within an album.
const DefaultTrackConcurrency = 3

// AlbumScheduler runs the track pipelines of an album with bounded
// concurrency. A failed track never cancels its siblings.
type AlbumScheduler struct {
	cfg   PipelineConfig
	limit int
}

// NewAlbumScheduler creates a scheduler running at most limit tracks at
// a time, each with a pipeline built from cfg.
func NewAlbumScheduler(cfg PipelineConfig, limit int) *AlbumScheduler {
	if limit < 1 {
		limit = DefaultTrackConcurrency
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &AlbumScheduler{cfg: cfg, limit: limit}
}

// Run downloads every track of album and accounts for each of them.
//
// Tracks that were never admitted because ctx ended are reported failed
// at StageQueued with ctx.Err().
func (s *AlbumScheduler) Run(ctx context.Context, album *model.Album) AlbumResult {
	return s.RunJob(ctx, NewAlbumJob(album))
}

// RunJob is Run on a prepared job, letting the caller keep a handle for
// Snapshot while the album downloads.
func (s *AlbumScheduler) RunJob(ctx context.Context, job *AlbumJob) AlbumResult {
	outcomes := make([]TrackOutcome, len(job.Jobs))
	admitted := make([]bool, len(job.Jobs))

	cfg := s.cfg
	cfg.Observer = ObserverFunc(func(e Event) {
		if e.Kind == EventBytes {
			job.bytes.Add(e.Bytes)
		}
		s.cfg.Observer.Observe(e)
	})

	// No WithContext: a failed track must not cancel the others.
	var g errgroup.Group
	g.SetLimit(s.limit)

	for i, tj := range job.Jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			admitted[i] = true
			job.inProgress.Add(1)

			out := NewTrackPipeline(tj, cfg).Run(ctx)
			outcomes[i] = out

			job.inProgress.Add(-1)
			if out.OK() {
				job.succeeded.Add(1)
			} else {
				job.failed.Add(1)
			}
			view := job.Snapshot()
			emit(s.cfg.Observer, Event{Kind: EventAlbumProgress, Track: tj.Track, Album: &view, Level: LevelVerbose})
			return nil
		})
	}
	_ = g.Wait()

	result := AlbumResult{Album: job.Album}
	for i, tj := range job.Jobs {
		out := outcomes[i]
		if !admitted[i] {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			tj.FailedStage = StageQueued
			tj.Err = err
			tj.setStage(StageFailed)
			job.failed.Add(1)
			out = TrackOutcome{Track: tj.Track, Stage: StageFailed, FailedStage: StageQueued, Err: err}
		}
		if out.OK() {
			result.Succeeded = append(result.Succeeded, out)
		} else {
			result.Failed = append(result.Failed, TrackFailure{Track: out.Track, Stage: out.FailedStage, Err: out.Err})
		}
	}

	view := job.Snapshot()
	level := LevelSuccess
	msg := fmt.Sprintf("Successfully downloaded album: %s", job.Album.Title)
	if len(result.Failed) > 0 {
		level = LevelWarning
		msg = fmt.Sprintf("Finished %s, %d of %d tracks failed", job.Album.Title, len(result.Failed), result.Total())
	}
	emit(s.cfg.Observer, Event{Kind: EventAlbumDone, Album: &view, Level: level, Message: msg})
	return result
}
