package download

import (
	"sync/atomic"

	"github.com/handiism/tidal-downloader/internal/manifest"
	"github.com/handiism/tidal-downloader/internal/model"
	"github.com/handiism/tidal-downloader/internal/segment"
)

// Stage is a step of the track pipeline.
//
//	Queued → Fetching → Assembling → TaggingMetadata → Complete
//
// Any stage may end in Failed.
type Stage int

const (
	StageQueued Stage = iota
	StageFetching
	StageAssembling
	StageTaggingMetadata
	StageComplete
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageQueued:
		return "queued"
	case StageFetching:
		return "fetching"
	case StageAssembling:
		return "assembling"
	case StageTaggingMetadata:
		return "tagging"
	case StageComplete:
		return "complete"
	case StageFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// TrackJob is the state of one track download. It is owned by a single
// TrackPipeline; other goroutines only read Stage.
type TrackJob struct {
	Track *model.Track

	// Manifest, OutputPath and Segments are set during Fetching.
	Manifest   *manifest.Manifest
	OutputPath string
	Segments   []segment.State

	// FailedStage and Err are set when the job fails.
	FailedStage Stage
	Err         error

	stage atomic.Int32
}

// NewTrackJob creates a queued job for track.
func NewTrackJob(track *model.Track) *TrackJob {
	return &TrackJob{Track: track}
}

// Stage returns the current stage. It is safe for concurrent use.
func (j *TrackJob) Stage() Stage { return Stage(j.stage.Load()) }

func (j *TrackJob) setStage(s Stage) { j.stage.Store(int32(s)) }

// TrackOutcome is the result of a pipeline run.
type TrackOutcome struct {
	Track *model.Track

	// Path is the final file. It is empty when the run failed.
	Path string

	// Stage is StageComplete or StageFailed. On failure FailedStage
	// names the stage that failed.
	Stage       Stage
	FailedStage Stage
	Err         error

	// Skipped is set when the final file already existed.
	Skipped bool

	Bytes   int64
	Retries int
}

// OK reports whether the track completed.
func (o TrackOutcome) OK() bool { return o.Stage == StageComplete }

// TrackFailure names a failed track, the stage that failed and why.
type TrackFailure struct {
	Track *model.Track
	Stage Stage
	Err   error
}

// AlbumResult is the full accounting of an album run. Both lists are in
// album order and together cover every track.
type AlbumResult struct {
	Album     *model.Album
	Succeeded []TrackOutcome
	Failed    []TrackFailure
}

// Total returns the number of tracks accounted for.
func (r AlbumResult) Total() int { return len(r.Succeeded) + len(r.Failed) }

// AlbumJob holds the track jobs of one album and its live counters.
type AlbumJob struct {
	Album *model.Album
	Jobs  []*TrackJob

	succeeded  atomic.Int32
	failed     atomic.Int32
	inProgress atomic.Int32
	bytes      atomic.Int64
}

// NewAlbumJob creates one queued TrackJob per album track.
func NewAlbumJob(album *model.Album) *AlbumJob {
	job := &AlbumJob{Album: album, Jobs: make([]*TrackJob, len(album.Tracks))}
	for i, t := range album.Tracks {
		job.Jobs[i] = NewTrackJob(t)
	}
	return job
}

// AlbumView is a read-only copy of an AlbumJob's progress.
type AlbumView struct {
	AlbumID    string
	Title      string
	Artist     string
	Total      int
	Succeeded  int
	Failed     int
	InProgress int
	Bytes      int64
	Stages     []Stage
}

// Done reports whether every track reached a terminal state.
func (v AlbumView) Done() bool { return v.Succeeded+v.Failed == v.Total }

// Snapshot returns the current progress. It is safe for concurrent use.
func (j *AlbumJob) Snapshot() AlbumView {
	v := AlbumView{
		AlbumID:    j.Album.ID,
		Title:      j.Album.Title,
		Artist:     j.Album.Artist,
		Total:      len(j.Jobs),
		Succeeded:  int(j.succeeded.Load()),
		Failed:     int(j.failed.Load()),
		InProgress: int(j.inProgress.Load()),
		Bytes:      j.bytes.Load(),
		Stages:     make([]Stage, len(j.Jobs)),
	}
	for i, tj := range j.Jobs {
		v.Stages[i] = tj.Stage()
	}
	return v
}
