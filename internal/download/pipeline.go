package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/handiism/tidal-downloader/internal/assemble"
	"github.com/handiism/tidal-downloader/internal/audio"
	ioutils "github.com/handiism/tidal-downloader/internal/io"
	"github.com/handiism/tidal-downloader/internal/manifest"
	"github.com/handiism/tidal-downloader/internal/model"
	"github.com/handiism/tidal-downloader/internal/segment"
	"github.com/handiism/tidal-downloader/internal/workspace"
)

const tracerName = "github.com/handiism/tidal-downloader/internal/download"

// ErrAlreadyRun is the error of a second Run on the same pipeline.
var ErrAlreadyRun = errors.New("track pipeline already ran")

// ManifestSource hands out the encoded stream manifest of a track.
type ManifestSource interface {
	Manifest(ctx context.Context, trackID string, q model.Quality) (manifest.Encoded, error)
}

// MetadataProvider returns the metadata embedded into a finished track.
type MetadataProvider interface {
	TrackMetadata(ctx context.Context, track *model.Track) (*model.Metadata, error)
}

// Tagger writes metadata into the file at path. *audio.Tagger implements it.
type Tagger interface {
	SaveTags(path string, c manifest.Container, md *model.Metadata) error
}

// PipelineConfig holds the collaborators and knobs shared by every track
// pipeline of a run.
type PipelineConfig struct {
	Manifests ManifestSource
	Transport segment.Transport

	// Metadata and Tagger are optional. Tagging is skipped unless both
	// are set.
	Metadata MetadataProvider
	Tagger   Tagger

	Quality            model.Quality
	Policy             segment.RetryPolicy
	AttemptTimeout     time.Duration
	SegmentConcurrency int

	// SegmentHooks are called in addition to the hooks the pipeline
	// installs to emit events.
	SegmentHooks segment.Hooks

	// SkipExisting reports a track Complete without fetching when its
	// final file already exists.
	SkipExisting bool

	// KeepFailedWorkspace leaves the segment slots of a failed track on
	// disk.
	KeepFailedWorkspace bool

	Observer Observer
	Logger   *slog.Logger
}

// TrackPipeline drives one track from manifest to tagged file.
//
// Stages advance strictly forward and a failure at any stage is final.
// Nothing is written at the final path before the file is complete and
// tagged; the segments live in a private workspace that is removed on
// every terminal path.
type TrackPipeline struct {
	job    *TrackJob
	cfg    PipelineConfig
	obs    Observer
	logger *slog.Logger
	tracer trace.Tracer

	ran     atomic.Bool
	retries atomic.Int32
	bytes   atomic.Int64
}

// NewTrackPipeline creates a pipeline for job.
func NewTrackPipeline(job *TrackJob, cfg PipelineConfig) *TrackPipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	if cfg.Quality == "" {
		cfg.Quality = model.QualityLossless
	}
	return &TrackPipeline{
		job:    job,
		cfg:    cfg,
		obs:    obs,
		logger: logger.With(slog.String("track_id", job.Track.ID)),
		tracer: otel.Tracer(tracerName),
	}
}

// Job returns the job the pipeline drives.
func (p *TrackPipeline) Job() *TrackJob { return p.job }

// Run executes the pipeline. It may be called once; later calls return
// a failed outcome wrapping ErrAlreadyRun without touching the job.
func (p *TrackPipeline) Run(ctx context.Context) TrackOutcome {
	track := p.job.Track
	if !p.ran.CompareAndSwap(false, true) {
		return TrackOutcome{Track: track, Stage: StageFailed, FailedStage: StageQueued, Err: ErrAlreadyRun}
	}

	ctx, span := p.tracer.Start(ctx, "track.pipeline", trace.WithAttributes(
		attribute.String("track.id", track.ID),
		attribute.String("track.title", track.Title),
		attribute.String("audio.quality", p.cfg.Quality.String()),
	))
	defer span.End()
	if track.Album != nil {
		span.SetAttributes(attribute.String("album.id", track.Album.ID))
	}

	out := p.run(ctx)
	out.Retries = int(p.retries.Load())
	out.Bytes = p.bytes.Load()

	span.SetAttributes(attribute.Int64("track.bytes", out.Bytes), attribute.Int("track.retries", out.Retries))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "track failed at "+out.FailedStage.String())
	}
	return out
}

func (p *TrackPipeline) run(ctx context.Context) TrackOutcome {
	started := time.Now()
	job := p.job

	if err := ctx.Err(); err != nil {
		return p.fail(StageQueued, err, started)
	}

	// Fetching
	p.enter(StageFetching)
	enc, err := p.cfg.Manifests.Manifest(ctx, job.Track.ID, p.cfg.Quality)
	if err != nil {
		return p.fail(StageFetching, err, started)
	}
	m, err := manifest.Decode(enc, p.cfg.Quality)
	if err != nil {
		return p.fail(StageFetching, err, started)
	}
	job.Manifest = m
	job.OutputPath = job.Track.FilePath(m.Container.Extension())

	if p.cfg.SkipExisting && ioutils.FileExists(job.OutputPath) {
		p.logger.Debug("final file exists, skipping", slog.String("path", job.OutputPath))
		return p.complete(job.OutputPath, true, started)
	}

	ws, err := workspace.New(filepath.Dir(job.OutputPath))
	if err != nil {
		return p.fail(StageFetching, err, started)
	}
	failed := true
	defer func() {
		if failed && p.cfg.KeepFailedWorkspace {
			p.logger.Info("keeping workspace of failed track", slog.String("dir", ws.Dir()))
			return
		}
		if err := ws.Remove(); err != nil {
			p.logger.Warn("remove workspace", slog.String("dir", ws.Dir()), slog.String("error", err.Error()))
		}
	}()

	fetcher := segment.NewFetcher(p.cfg.Transport, segment.FetcherConfig{
		Policy:         p.cfg.Policy,
		AttemptTimeout: p.cfg.AttemptTimeout,
		Hooks:          p.hooks(),
		Logger:         p.logger,
	})
	states, err := segment.NewPool(fetcher, p.cfg.SegmentConcurrency).Run(ctx, m, ws)
	job.Segments = states
	if err != nil {
		return p.fail(StageFetching, err, started)
	}

	// Assembling
	p.enter(StageAssembling)
	staged, err := assemble.Assemble(ctx, ws, m.Len(), job.OutputPath)
	if err != nil {
		return p.fail(StageAssembling, err, started)
	}
	defer func() {
		if failed {
			_ = staged.Discard()
		}
	}()

	// TaggingMetadata
	p.enter(StageTaggingMetadata)
	if err := p.tag(ctx, staged.Path(), m.Container); err != nil {
		return p.fail(StageTaggingMetadata, err, started)
	}

	if err := ctx.Err(); err != nil {
		return p.fail(StageTaggingMetadata, err, started)
	}
	if err := staged.Commit(); err != nil {
		return p.fail(StageAssembling, err, started)
	}
	failed = false
	return p.complete(job.OutputPath, false, started)
}

// tag embeds metadata into the staged file. Containers without a tag
// block are left untagged with a warning.
func (p *TrackPipeline) tag(ctx context.Context, path string, c manifest.Container) error {
	if p.cfg.Metadata == nil || p.cfg.Tagger == nil {
		return nil
	}
	md, err := p.cfg.Metadata.TrackMetadata(ctx, p.job.Track)
	if err != nil {
		return fmt.Errorf("track metadata: %w", err)
	}
	err = p.cfg.Tagger.SaveTags(path, c, md)
	if errors.Is(err, audio.ErrUnsupportedContainer) {
		p.logger.Warn("container cannot be tagged", slog.String("container", c.String()))
		emit(p.obs, Event{
			Kind:    EventMessage,
			Level:   LevelWarning,
			Track:   p.job.Track,
			Message: fmt.Sprintf("%s: %s files are left untagged", p.job.Track.DisplayTitle(), c),
		})
		return nil
	}
	return err
}

// hooks installs the segment callbacks that turn into events.
func (p *TrackPipeline) hooks() segment.Hooks {
	extra := p.cfg.SegmentHooks
	track := p.job.Track
	return segment.Hooks{
		Retry: func(index, attempt int, delay time.Duration, err error) {
			p.retries.Add(1)
			emit(p.obs, Event{
				Kind:    EventRetry,
				Level:   LevelWarning,
				Track:   track,
				Segment: index,
				Attempt: attempt,
				Delay:   delay,
				Err:     err,
				Message: fmt.Sprintf("Retrying segment %d of %s in %s (attempt %d): %v", index, track.DisplayTitle(), delay.Round(time.Millisecond), attempt, err),
			})
			if extra.Retry != nil {
				extra.Retry(index, attempt, delay, err)
			}
		},
		Fetched: func(index int, n int64) {
			p.bytes.Add(n)
			emit(p.obs, Event{Kind: EventBytes, Track: track, Segment: index, Bytes: n, Level: LevelVerbose})
			if extra.Fetched != nil {
				extra.Fetched(index, n)
			}
		},
		Started:  extra.Started,
		Finished: extra.Finished,
	}
}

func (p *TrackPipeline) enter(s Stage) {
	p.job.setStage(s)
	emit(p.obs, Event{Kind: EventStage, Track: p.job.Track, Stage: s, Level: LevelVerbose})
}

func (p *TrackPipeline) fail(stage Stage, err error, started time.Time) TrackOutcome {
	p.job.FailedStage = stage
	p.job.Err = err
	p.job.setStage(StageFailed)

	p.logger.Debug("track failed", slog.String("stage", stage.String()), slog.String("error", err.Error()))
	emit(p.obs, Event{
		Kind:     EventTrackFailed,
		Level:    LevelError,
		Track:    p.job.Track,
		Stage:    stage,
		Err:      err,
		Duration: time.Since(started),
		Message:  fmt.Sprintf("Failed %s at %s: %v", p.job.Track.DisplayTitle(), stage, err),
	})
	return TrackOutcome{Track: p.job.Track, Stage: StageFailed, FailedStage: stage, Err: err}
}

func (p *TrackPipeline) complete(path string, skipped bool, started time.Time) TrackOutcome {
	p.job.setStage(StageComplete)

	msg := "Downloaded: " + filepath.Base(path)
	if skipped {
		msg = "Skipping existing: " + filepath.Base(path)
	}
	emit(p.obs, Event{
		Kind:     EventTrackDone,
		Level:    LevelSuccess,
		Track:    p.job.Track,
		Stage:    StageComplete,
		Skipped:  skipped,
		Duration: time.Since(started),
		Message:  msg,
	})
	return TrackOutcome{Track: p.job.Track, Path: path, Stage: StageComplete, Skipped: skipped}
}
