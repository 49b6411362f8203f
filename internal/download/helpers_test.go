package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/handiism/tidal-downloader/internal/manifest"
	"github.com/handiism/tidal-downloader/internal/model"
	"github.com/handiism/tidal-downloader/internal/segment"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("HTTP %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

// hlsManifest lists n mp3 segments of track id.
func hlsManifest(id string, n int) manifest.Encoded {
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-MEDIA-SEQUENCE:0\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "#EXTINF:10.0,\nhttps://cdn.test/%s/%d.mp3\n", id, i)
	}
	sb.WriteString("#EXT-X-ENDLIST\n")
	return manifest.Encoded{MimeType: manifest.MimeHLS, Data: sb.String()}
}

func segmentURL(id string, i int) string {
	return fmt.Sprintf("https://cdn.test/%s/%d.mp3", id, i)
}

func payload(location string) []byte {
	return []byte("payload:" + location + ";")
}

// expectedFile is the in-order concatenation of n segments of track id.
func expectedFile(id string, n int) []byte {
	var out []byte
	for i := 0; i < n; i++ {
		out = append(out, payload(segmentURL(id, i))...)
	}
	return out
}

// fakeSource serves HLS manifests; broken ids get an undecodable one.
type fakeSource struct {
	segments int
	broken   map[string]bool
	err      error
}

func (s *fakeSource) Manifest(_ context.Context, trackID string, _ model.Quality) (manifest.Encoded, error) {
	if s.err != nil {
		return manifest.Encoded{}, s.err
	}
	if s.broken[trackID] {
		return manifest.Encoded{MimeType: "application/x-unknown", Data: "{}"}, nil
	}
	return hlsManifest(trackID, s.segments), nil
}

type fakeTransport struct {
	mu        sync.Mutex
	failures  map[string]int
	permanent map[string]error
	calls     int

	// block holds every request to a location in the set until ctx ends.
	block   map[string]bool
	blocked chan struct{}
	once    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failures:  map[string]int{},
		permanent: map[string]error{},
		block:     map[string]bool{},
		blocked:   make(chan struct{}),
	}
}

func (f *fakeTransport) FetchSegment(ctx context.Context, location string, _ *manifest.ByteRange) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	block := f.block[location]
	f.mu.Unlock()

	if block {
		f.once.Do(func() { close(f.blocked) })
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.permanent[location]; ok {
		return nil, err
	}
	if f.failures[location] > 0 {
		f.failures[location]--
		return nil, errors.New("connection reset by peer")
	}
	return payload(location), nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMetadata struct {
	err error
}

func (m *fakeMetadata) TrackMetadata(_ context.Context, track *model.Track) (*model.Metadata, error) {
	if m.err != nil {
		return nil, m.err
	}
	return model.MetadataFromTrack(track), nil
}

type tagCall struct {
	path      string
	container manifest.Container
	md        *model.Metadata
}

type fakeTagger struct {
	mu    sync.Mutex
	calls []tagCall
	err   error
}

func (t *fakeTagger) SaveTags(path string, c manifest.Container, md *model.Metadata) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, tagCall{path: path, container: c, md: md})
	return t.err
}

// recorder collects events; it is safe for concurrent use.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) filter(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func testAlbum(t *testing.T, n int) *model.Album {
	t.Helper()
	pathCfg := &model.PathConfig{
		DownloadsPath:          filepath.Join(t.TempDir(), "{artist} - {album}"),
		CoverArtFileNameFormat: "cover",
		PlaylistFileNameFormat: "{album}",
		PlaylistFormat:         model.PlaylistFormatM3U,
	}
	trackCfg := &model.TrackConfig{FileNameFormat: "{tracknum}. {title}"}

	album := model.NewAlbum(model.AlbumInfo{
		ID:             "100",
		Artists:        []string{"Artist"},
		Title:          "Album",
		CoverID:        "aa-bb",
		ReleaseDate:    time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC),
		NumberOfTracks: n,
	}, pathCfg)
	for i := 1; i <= n; i++ {
		album.Tracks = append(album.Tracks, model.NewTrack(album, model.TrackInfo{
			ID:       fmt.Sprintf("t%d", i),
			Number:   i,
			Title:    fmt.Sprintf("Track %d", i),
			Duration: 100,
		}, trackCfg))
	}
	return album
}

func testConfig(src ManifestSource, tr segment.Transport, obs Observer) PipelineConfig {
	return PipelineConfig{
		Manifests:          src,
		Transport:          tr,
		Metadata:           &fakeMetadata{},
		Tagger:             &fakeTagger{},
		Quality:            model.QualityHigh,
		Policy:             segment.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2},
		SegmentConcurrency: 4,
		SkipExisting:       true,
		Observer:           obs,
	}
}

// leftovers lists workspace and temp files left in dir.
func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".temp_") || strings.HasPrefix(e.Name(), ".tmp-") {
			out = append(out, e.Name())
		}
	}
	return out
}
