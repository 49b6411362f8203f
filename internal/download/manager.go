package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/handiism/tidal-downloader/internal/audio"
	"github.com/handiism/tidal-downloader/internal/config"
	ioutils "github.com/handiism/tidal-downloader/internal/io"
	"github.com/handiism/tidal-downloader/internal/model"
	"github.com/handiism/tidal-downloader/internal/segment"
	"github.com/handiism/tidal-downloader/internal/tidal"
)

// Catalog resolves inputs to albums and serves everything a track
// pipeline needs from the service. *tidal.Client implements it.
type Catalog interface {
	ManifestSource
	MetadataProvider
	Resolve(ctx context.Context, ref tidal.Ref) ([]*model.Album, error)
	Cover(ctx context.Context, album *model.Album, opts ioutils.CoverOptions) ([]byte, error)
}

// ManagerOptions holds the collaborators of a Manager.
type ManagerOptions struct {
	Catalog   Catalog
	Transport segment.Transport

	// Tagger defaults to an audio.Tagger built from the settings.
	Tagger Tagger

	// SegmentHooks are passed to every segment fetcher.
	SegmentHooks segment.Hooks

	Observer Observer
	Logger   *slog.Logger
}

// Manager coordinates album downloads.
type Manager struct {
	settings *config.Settings
	catalog  Catalog
	pipeline PipelineConfig
	playlist *audio.PlaylistCreator
	observer Observer
	logger   *slog.Logger

	albums []*model.Album
	jobs   []*AlbumJob

	receivedBytes   int64
	totalFiles      int32
	downloadedFiles int32

	mu sync.RWMutex
}

// NewManager creates a new download Manager.
func NewManager(settings *config.Settings, opts ManagerOptions) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	tagger := opts.Tagger
	if tagger == nil {
		tagCfg, err := settings.TagConfig()
		if err != nil {
			return nil, err
		}
		tagger = audio.NewTagger(tagCfg)
	}

	m := &Manager{
		settings: settings,
		catalog:  opts.Catalog,
		playlist: audio.NewPlaylistCreator(model.ParsePlaylistFormat(settings.PlaylistFormat), settings.M3UExtended),
		observer: observer,
		logger:   logger,
	}

	var metadata MetadataProvider
	if settings.ModifyTags || settings.SaveCoverArtInTags {
		metadata = opts.Catalog
	}
	m.pipeline = PipelineConfig{
		Manifests:           opts.Catalog,
		Transport:           opts.Transport,
		Metadata:            metadata,
		Tagger:              tagger,
		Quality:             settings.AudioQuality(),
		Policy:              settings.RetryPolicy(),
		AttemptTimeout:      settings.SegmentAttemptTimeout(),
		SegmentConcurrency:  settings.MaxConcurrentSegments,
		SegmentHooks:        opts.SegmentHooks,
		SkipExisting:        settings.SkipExisting,
		KeepFailedWorkspace: settings.KeepFailedWorkspace,
		Observer:            ObserverFunc(m.count),
		Logger:              logger,
	}
	return m, nil
}

// Initialize resolves every reference in input (one per line) to albums.
// Unparsable lines and unresolvable references are reported and skipped;
// an error is returned only when nothing could be resolved.
func (m *Manager) Initialize(ctx context.Context, input string) error {
	refs, errs := tidal.ParseRefs(input)
	for _, err := range errs {
		m.progress(LevelError, err.Error())
	}

	for _, ref := range refs {
		m.progress(LevelVerbose, fmt.Sprintf("Fetching album info: %s", ref))

		albums, err := m.catalog.Resolve(ctx, ref)
		if err != nil {
			if errors.Is(err, model.ErrAuthExpired) || errors.Is(err, model.ErrNoCredential) {
				return err
			}
			m.progress(LevelError, fmt.Sprintf("Error getting albums from %s: %v", ref, err))
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		m.mu.Lock()
		for _, album := range albums {
			m.albums = append(m.albums, album)
			atomic.AddInt32(&m.totalFiles, int32(len(album.Tracks)))
		}
		m.mu.Unlock()

		for _, album := range albums {
			m.progress(LevelInfo, fmt.Sprintf("Found album: %s - %s (%d tracks)", album.Artist, album.Title, len(album.Tracks)))
		}
	}

	if len(m.Albums()) == 0 {
		return fmt.Errorf("nothing to download: %w", tidal.ErrNoAlbumFound)
	}
	return nil
}

// Albums returns the initialized albums in input order.
func (m *Manager) Albums() []*model.Album {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*model.Album(nil), m.albums...)
}

// GetAlbumNames returns the names of all initialized albums.
func (m *Manager) GetAlbumNames() []string {
	albums := m.Albums()
	names := make([]string, len(albums))
	for i, album := range albums {
		names[i] = fmt.Sprintf("%s - %s (%d tracks)", album.Artist, album.Title, len(album.Tracks))
	}
	return names
}

// StartDownloads downloads all initialized albums and returns one result
// per album, in input order. Albums are isolated from each other like
// tracks are; the error is only set when ctx ended.
func (m *Manager) StartDownloads(ctx context.Context) ([]AlbumResult, error) {
	albums := m.Albums()
	jobs := make([]*AlbumJob, len(albums))
	for i, album := range albums {
		jobs[i] = NewAlbumJob(album)
	}
	m.mu.Lock()
	m.jobs = jobs
	m.mu.Unlock()

	results := make([]AlbumResult, len(albums))
	scheduler := NewAlbumScheduler(m.pipeline, m.settings.MaxConcurrentTracksDownload)

	var g errgroup.Group
	g.SetLimit(max(1, m.settings.MaxConcurrentAlbumsDownload))
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = m.downloadAlbum(ctx, scheduler, job)
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

// GetProgress returns the bytes received and the track counts so far.
func (m *Manager) GetProgress() (received int64, filesReceived, filesTotal int32) {
	return atomic.LoadInt64(&m.receivedBytes), atomic.LoadInt32(&m.downloadedFiles), atomic.LoadInt32(&m.totalFiles)
}

// Snapshots returns the progress of every album being downloaded.
func (m *Manager) Snapshots() []AlbumView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views := make([]AlbumView, len(m.jobs))
	for i, job := range m.jobs {
		views[i] = job.Snapshot()
	}
	return views
}

func (m *Manager) downloadAlbum(ctx context.Context, scheduler *AlbumScheduler, job *AlbumJob) AlbumResult {
	album := job.Album

	if err := ioutils.EnsureDir(album.Path); err != nil {
		m.progress(LevelError, fmt.Sprintf("Error creating directory: %v", err))
		return failAll(job, StageQueued, err)
	}

	if opts := m.settings.FolderCoverOptions(); opts != nil && album.HasArtwork() {
		m.saveCover(ctx, album, *opts)
	}

	result := scheduler.RunJob(ctx, job)

	if m.settings.CreatePlaylist && len(result.Succeeded) > 0 {
		m.writePlaylist(ctx, album, result.Succeeded)
	}
	return result
}

func (m *Manager) saveCover(ctx context.Context, album *model.Album, opts ioutils.CoverOptions) {
	if m.settings.SkipExisting && ioutils.FileExists(album.ArtworkPath) {
		return
	}
	data, err := m.catalog.Cover(ctx, album, opts)
	if err == nil {
		err = ioutils.WriteFileAtomic(ctx, album.ArtworkPath, data)
	}
	if err != nil {
		m.progress(LevelWarning, fmt.Sprintf("Error saving artwork for %s: %v", album.Title, err))
		return
	}
	m.progress(LevelVerbose, fmt.Sprintf("Downloaded artwork for %s", album.Title))
}

func (m *Manager) writePlaylist(ctx context.Context, album *model.Album, done []TrackOutcome) {
	entries := make([]audio.PlaylistEntry, len(done))
	for i, out := range done {
		entries[i] = audio.PlaylistEntry{Track: out.Track, FilePath: out.Path}
	}
	content := m.playlist.CreatePlaylist(album, entries)
	if err := ioutils.WriteFileAtomic(ctx, album.PlaylistPath, []byte(content)); err != nil {
		m.progress(LevelWarning, fmt.Sprintf("Error creating playlist: %v", err))
		return
	}
	m.progress(LevelSuccess, fmt.Sprintf("Created playlist for %s", album.Title))
}

// failAll accounts for every track of an album that could not start.
func failAll(job *AlbumJob, stage Stage, err error) AlbumResult {
	result := AlbumResult{Album: job.Album}
	for _, tj := range job.Jobs {
		tj.FailedStage, tj.Err = stage, err
		tj.setStage(StageFailed)
		job.failed.Add(1)
		result.Failed = append(result.Failed, TrackFailure{Track: tj.Track, Stage: stage, Err: err})
	}
	return result
}

// count keeps the manager totals and forwards e.
func (m *Manager) count(e Event) {
	switch e.Kind {
	case EventBytes:
		atomic.AddInt64(&m.receivedBytes, e.Bytes)
	case EventTrackDone:
		atomic.AddInt32(&m.downloadedFiles, 1)
	}
	m.observer.Observe(e)
}

func (m *Manager) progress(level ProgressLevel, msg string) {
	emit(m.observer, Event{Kind: EventMessage, Level: level, Message: msg})
}
