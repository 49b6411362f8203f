package tidal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	httpc "github.com/handiism/tidal-downloader/internal/http"
	ioutils "github.com/handiism/tidal-downloader/internal/io"
	"github.com/handiism/tidal-downloader/internal/manifest"
	"github.com/handiism/tidal-downloader/internal/model"
	"github.com/handiism/tidal-downloader/internal/tidal/dto"
)

const (
	// DefaultBaseURL is the catalogue and playback API.
	DefaultBaseURL = "https://api.tidal.com"

	// DefaultCoverSize is the edge of the cover image requested, in pixels.
	DefaultCoverSize = 1280

	clientVersion = "2.167.0"
	pageSize      = 100
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	ImageBaseURL string
	CoverSize    int

	// TagCover controls how covers are prepared for embedding. A nil
	// value disables embedded covers.
	TagCover *ioutils.CoverOptions

	PathConfig  *model.PathConfig
	TrackConfig *model.TrackConfig

	Logger *slog.Logger
}

// Client talks to the Tidal API. It resolves albums and tracks, hands out
// stream manifests and builds track metadata.
//
// Example usage:
//
//	client := tidal.NewClient(httpClient, session, tidal.Config{PathConfig: pc, TrackConfig: tc})
//
//	album, err := client.Album(ctx, "77646168")
//	enc, err := client.Manifest(ctx, album.Tracks[0].ID, model.QualityLossless)
type Client struct {
	http    *httpc.Client
	session *Session
	cfg     Config
	logger  *slog.Logger
	images  *ioutils.ImageService

	covers     singleflight.Group
	mu         sync.Mutex
	coverCache map[string][]byte
}

// NewClient creates a Client.
func NewClient(hc *httpc.Client, session *Session, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = model.ImageBaseURL
	}
	if cfg.CoverSize <= 0 {
		cfg.CoverSize = DefaultCoverSize
	}
	if cfg.PathConfig == nil {
		cfg.PathConfig = &model.PathConfig{}
	}
	if cfg.TrackConfig == nil {
		cfg.TrackConfig = &model.TrackConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http:       hc,
		session:    session,
		cfg:        cfg,
		logger:     logger,
		images:     ioutils.NewImageService(),
		coverCache: make(map[string][]byte),
	}
}

// Album fetches an album and all of its streamable tracks.
func (c *Client) Album(ctx context.Context, id string) (*model.Album, error) {
	var doc dto.Album
	if err := c.get(ctx, "/v1/albums/"+url.PathEscape(id), nil, nil, &doc); err != nil {
		return nil, fmt.Errorf("get album %s: %w", id, err)
	}
	album := doc.ToAlbum(c.cfg.PathConfig)

	for offset := 0; ; {
		var page dto.AlbumItems
		query := url.Values{"limit": {strconv.Itoa(pageSize)}, "offset": {strconv.Itoa(offset)}}
		if err := c.get(ctx, "/v1/albums/"+url.PathEscape(id)+"/items", query, nil, &page); err != nil {
			return nil, fmt.Errorf("get album %s items: %w", id, err)
		}

		for _, item := range page.Items {
			if item.Type != "" && item.Type != "track" {
				continue
			}
			if !item.Item.Streamable() {
				c.logger.Warn("skipping track that is not streamable",
					slog.String("album", id),
					slog.String("track", string(item.Item.ID)),
				)
				continue
			}
			album.Tracks = append(album.Tracks, item.Item.ToTrack(album, c.cfg.TrackConfig))
		}

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.TotalNumberOfItems {
			break
		}
	}

	if album.NumberOfTracks == 0 {
		album.NumberOfTracks = len(album.Tracks)
	}
	return album, nil
}

// Track fetches a single track and wraps it in its album, which then
// holds only that track.
func (c *Client) Track(ctx context.Context, id string) (*model.Album, error) {
	var doc dto.Track
	if err := c.get(ctx, "/v1/tracks/"+url.PathEscape(id), nil, nil, &doc); err != nil {
		return nil, fmt.Errorf("get track %s: %w", id, err)
	}

	var album *model.Album
	if doc.Album != nil && doc.Album.ID != "" {
		var albumDoc dto.Album
		if err := c.get(ctx, "/v1/albums/"+url.PathEscape(string(doc.Album.ID)), nil, nil, &albumDoc); err != nil {
			return nil, fmt.Errorf("get album of track %s: %w", id, err)
		}
		album = albumDoc.ToAlbum(c.cfg.PathConfig)
	} else {
		album = (&dto.Album{Title: "Singles", Artists: doc.Artists, Artist: doc.Artist}).ToAlbum(c.cfg.PathConfig)
	}

	album.Tracks = []*model.Track{doc.ToTrack(album, c.cfg.TrackConfig)}
	return album, nil
}

// ArtistAlbums lists the ids of every album of an artist.
func (c *Client) ArtistAlbums(ctx context.Context, artistID string) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	for offset := 0; ; {
		var page dto.ArtistAlbums
		query := url.Values{"limit": {strconv.Itoa(pageSize)}, "offset": {strconv.Itoa(offset)}}
		if err := c.get(ctx, "/v1/artists/"+url.PathEscape(artistID)+"/albums", query, nil, &page); err != nil {
			return nil, fmt.Errorf("get albums of artist %s: %w", artistID, err)
		}
		for _, a := range page.Items {
			if id := string(a.ID); id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.TotalNumberOfItems {
			break
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoAlbumFound
	}
	return ids, nil
}

// Resolve turns an input reference into the albums it designates.
func (c *Client) Resolve(ctx context.Context, ref Ref) ([]*model.Album, error) {
	switch ref.Kind {
	case KindTrack:
		album, err := c.Track(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return []*model.Album{album}, nil
	case KindArtist:
		ids, err := c.ArtistAlbums(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		var albums []*model.Album
		for _, id := range ids {
			album, err := c.Album(ctx, id)
			if err != nil {
				return albums, err
			}
			albums = append(albums, album)
		}
		return albums, nil
	default:
		album, err := c.Album(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return []*model.Album{album}, nil
	}
}

// Manifest returns the encoded stream manifest of a track at quality q.
func (c *Client) Manifest(ctx context.Context, trackID string, q model.Quality) (manifest.Encoded, error) {
	query := url.Values{
		"playbackmode":      {"STREAM"},
		"assetpresentation": {"FULL"},
		"audioquality":      {q.String()},
	}
	header := http.Header{}
	header.Set("x-tidal-streamingsessionid", fmt.Sprintf("download-session-%d", time.Now().Unix()))

	var info dto.PlaybackInfo
	err := c.get(ctx, "/v1/tracks/"+url.PathEscape(trackID)+"/playbackinfo", query, header, &info)
	if err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusForbidden || se.Code == http.StatusNotFound) {
			return manifest.Encoded{}, &model.ContentUnavailableError{TrackID: trackID, Quality: q, Reason: apiReason(se)}
		}
		return manifest.Encoded{}, fmt.Errorf("get playback info for track %s: %w", trackID, err)
	}

	if info.Manifest == "" {
		return manifest.Encoded{}, &model.ContentUnavailableError{TrackID: trackID, Quality: q, Reason: "no manifest in playback info"}
	}
	if strings.EqualFold(info.AssetPresentation, "PREVIEW") {
		return manifest.Encoded{}, &model.ContentUnavailableError{TrackID: trackID, Quality: q, Reason: "only a preview is available"}
	}
	if info.AudioQuality != "" && info.AudioQuality != q.String() {
		c.logger.Debug("stream served at a different quality",
			slog.String("track", trackID),
			slog.String("requested", q.String()),
			slog.String("served", info.AudioQuality),
		)
	}
	return manifest.Encoded{MimeType: info.ManifestMimeType, Data: info.Manifest}, nil
}

// TrackMetadata builds the tags of a track. A cover that cannot be
// fetched is left out.
func (c *Client) TrackMetadata(ctx context.Context, track *model.Track) (*model.Metadata, error) {
	md := model.MetadataFromTrack(track)
	if c.cfg.TagCover == nil || track.Album == nil || !track.Album.HasArtwork() {
		return md, nil
	}

	cover, err := c.Cover(ctx, track.Album, *c.cfg.TagCover)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("cover unavailable, tagging without it",
			slog.String("album", track.Album.ID),
			slog.String("error", err.Error()),
		)
		return md, nil
	}
	md.Cover = cover
	return md, nil
}

// Cover downloads the album cover once and prepares it with opts. Results
// are cached per cover and options.
func (c *Client) Cover(ctx context.Context, album *model.Album, opts ioutils.CoverOptions) ([]byte, error) {
	if !album.HasArtwork() {
		return nil, errors.New("album has no artwork")
	}

	raw, err := c.cached(ctx, album.CoverID, func() ([]byte, error) {
		return c.http.Get(ctx, album.CoverURLAt(c.cfg.ImageBaseURL, c.cfg.CoverSize), nil)
	})
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:%t:%d:%t", album.CoverID, opts.Resize, opts.MaxSize, opts.JPEG)
	return c.cached(ctx, key, func() ([]byte, error) {
		return c.images.Prepare(ctx, raw, opts)
	})
}

func (c *Client) cached(ctx context.Context, key string, load func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	data, ok := c.coverCache[key]
	c.mu.Unlock()
	if ok {
		return data, nil
	}

	v, err, _ := c.covers.Do(key, func() (any, error) {
		c.mu.Lock()
		data, ok := c.coverCache[key]
		c.mu.Unlock()
		if ok {
			return data, nil
		}
		data, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.coverCache[key] = data
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, header http.Header, v any) error {
	cred, err := c.session.Credential(ctx)
	if err != nil {
		return err
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("countryCode", cred.CountryCode)
	if header == nil {
		header = http.Header{}
	}
	header.Set("Authorization", "Bearer "+cred.Token)
	header.Set("x-tidal-client-version", clientVersion)

	err = c.http.GetJSON(ctx, c.cfg.BaseURL+path+"?"+query.Encode(), header, v)
	var se *httpc.StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		c.session.Invalidate()
		return fmt.Errorf("%w: %v", model.ErrAuthExpired, err)
	}
	return err
}

// apiReason extracts the user message of an API error body.
func apiReason(se *httpc.StatusError) string {
	var body dto.APIError
	if err := json.Unmarshal([]byte(se.Body), &body); err == nil && body.UserMessage != "" {
		return body.UserMessage
	}
	return http.StatusText(se.Code)
}
