package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/handiism/tidal-downloader/internal/audio"
	httpc "github.com/handiism/tidal-downloader/internal/http"
	ioutils "github.com/handiism/tidal-downloader/internal/io"
	"github.com/handiism/tidal-downloader/internal/model"
	"github.com/handiism/tidal-downloader/internal/segment"
)

// Environment variables read by Load.
const (
	EnvToken       = "TIDAL_TOKEN"
	EnvCountryCode = "TIDAL_COUNTRY_CODE"
)

// Settings holds all configuration options.
type Settings struct {
	// Download settings
	DownloadsPath               string  `json:"downloads_path" yaml:"downloads_path"`
	Quality                     string  `json:"quality" yaml:"quality"`
	MaxConcurrentAlbumsDownload int     `json:"max_concurrent_albums" yaml:"max_concurrent_albums"`
	MaxConcurrentTracksDownload int     `json:"max_concurrent_tracks" yaml:"max_concurrent_tracks"`
	MaxConcurrentSegments       int     `json:"max_concurrent_segments" yaml:"max_concurrent_segments"`
	DownloadMaxRetries          int     `json:"download_max_retries" yaml:"download_max_retries"`
	DownloadRetryCooldown       float64 `json:"download_retry_cooldown" yaml:"download_retry_cooldown"`
	DownloadRetryExponent       float64 `json:"download_retry_exponent" yaml:"download_retry_exponent"`
	DownloadRetryMaxDelay       float64 `json:"download_retry_max_delay" yaml:"download_retry_max_delay"`
	DownloadRetryJitter         float64 `json:"download_retry_jitter" yaml:"download_retry_jitter"`
	SegmentTimeout              float64 `json:"segment_timeout" yaml:"segment_timeout"`
	RequestsPerSecond           float64 `json:"requests_per_second" yaml:"requests_per_second"`
	RequestsBurst               int     `json:"requests_burst" yaml:"requests_burst"`
	SkipExisting                bool    `json:"skip_existing" yaml:"skip_existing"`
	KeepFailedWorkspace         bool    `json:"keep_failed_workspace" yaml:"keep_failed_workspace"`

	// Session settings. The token itself is never written to the
	// settings file; it comes from the token file, TIDAL_TOKEN or a flag.
	Token       string `json:"-" yaml:"-"`
	TokenFile   string `json:"token_file" yaml:"token_file"`
	CountryCode string `json:"country_code" yaml:"country_code"`
	APIBaseURL  string `json:"api_base_url" yaml:"api_base_url"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level"`   // debug, info, warn, error
	LogFormat string `json:"log_format" yaml:"log_format"` // text, json

	// File naming
	FileNameFormat         string `json:"file_name_format" yaml:"file_name_format"`
	CoverArtFileNameFormat string `json:"cover_art_file_name_format" yaml:"cover_art_file_name_format"`
	PlaylistFileNameFormat string `json:"playlist_file_name_format" yaml:"playlist_file_name_format"`

	// Cover art settings
	CoverArtSize            int  `json:"cover_art_size" yaml:"cover_art_size"`
	SaveCoverArtInFolder    bool `json:"save_cover_art_in_folder" yaml:"save_cover_art_in_folder"`
	SaveCoverArtInTags      bool `json:"save_cover_art_in_tags" yaml:"save_cover_art_in_tags"`
	CoverArtInFolderResize  bool `json:"cover_art_in_folder_resize" yaml:"cover_art_in_folder_resize"`
	CoverArtInFolderMaxSize int  `json:"cover_art_in_folder_max_size" yaml:"cover_art_in_folder_max_size"`
	CoverArtInTagsResize    bool `json:"cover_art_in_tags_resize" yaml:"cover_art_in_tags_resize"`
	CoverArtInTagsMaxSize   int  `json:"cover_art_in_tags_max_size" yaml:"cover_art_in_tags_max_size"`
	ConvertCoverArtToJPG    bool `json:"convert_cover_art_to_jpg" yaml:"convert_cover_art_to_jpg"`

	// Playlist settings
	CreatePlaylist bool   `json:"create_playlist" yaml:"create_playlist"`
	PlaylistFormat string `json:"playlist_format" yaml:"playlist_format"` // m3u, pls, wpl, zpl
	M3UExtended    bool   `json:"m3u_extended" yaml:"m3u_extended"`

	// Tag settings. TagActions maps a field name (see TagFields) to
	// "modify", "empty" or "keep"; unlisted fields use the defaults.
	ModifyTags bool              `json:"modify_tags" yaml:"modify_tags"`
	TagActions map[string]string `json:"tag_actions,omitempty" yaml:"tag_actions,omitempty"`

	// Proxy settings
	ProxyType    string `json:"proxy_type" yaml:"proxy_type"` // none, system, manual
	ProxyAddress string `json:"proxy_address" yaml:"proxy_address"`
	ProxyPort    int    `json:"proxy_port" yaml:"proxy_port"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		DownloadsPath:               filepath.Join(homeDir, "Music", "Tidal", "{artist} - {album}"),
		Quality:                     string(model.QualityLossless),
		MaxConcurrentAlbumsDownload: 1,
		MaxConcurrentTracksDownload: 3,
		MaxConcurrentSegments:       segment.DefaultPoolSize,
		DownloadMaxRetries:          2,
		DownloadRetryCooldown:       1.0,
		DownloadRetryExponent:       2.0,
		DownloadRetryMaxDelay:       30,
		DownloadRetryJitter:         0.25,
		SegmentTimeout:              30,
		RequestsPerSecond:           0,
		RequestsBurst:               1,
		SkipExisting:                true,
		KeepFailedWorkspace:         false,

		TokenFile:   filepath.Join(homeDir, ".config", "tidal-downloader", "token.json"),
		CountryCode: "US",
		APIBaseURL:  "https://api.tidal.com",

		LogLevel:  "info",
		LogFormat: "text",

		FileNameFormat:         "{tracknum}. {artist} - {title}",
		CoverArtFileNameFormat: "cover",
		PlaylistFileNameFormat: "{album}",

		CoverArtSize:            1280,
		SaveCoverArtInFolder:    true,
		SaveCoverArtInTags:      true,
		CoverArtInFolderResize:  false,
		CoverArtInFolderMaxSize: 1280,
		CoverArtInTagsResize:    true,
		CoverArtInTagsMaxSize:   1000,
		ConvertCoverArtToJPG:    true,

		CreatePlaylist: false,
		PlaylistFormat: "m3u",
		M3UExtended:    true,

		ModifyTags: true,

		ProxyType: "system",
	}
}

// DefaultPath returns the settings file used when none is given.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "tidal-downloader", "settings.yaml")
}

// Load reads settings from a JSON or YAML file, chosen by extension
// (.yaml and .yml are YAML, anything else JSON). A missing file yields
// the defaults. Environment overrides are applied last.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if isYAML(path) {
			err = yaml.Unmarshal(data, settings)
		} else {
			err = json.Unmarshal(data, settings)
		}
		if err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}

	settings.ApplyEnv(os.Getenv)
	return settings, nil
}

// ApplyEnv overrides the session settings from the environment.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		s.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvCountryCode)); v != "" {
		s.CountryCode = strings.ToUpper(v)
	}
}

// Save writes settings to a JSON or YAML file, chosen by extension.
func (s *Settings) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return err
	}

	if err := ioutils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Validate reports every invalid setting at once.
func (s *Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.DownloadsPath) == "" {
		errs = append(errs, errors.New("downloads_path is empty"))
	}
	if _, err := model.ParseQuality(s.Quality); err != nil {
		errs = append(errs, err)
	}
	if s.MaxConcurrentAlbumsDownload < 1 {
		errs = append(errs, errors.New("max_concurrent_albums must be at least 1"))
	}
	if s.MaxConcurrentTracksDownload < 1 {
		errs = append(errs, errors.New("max_concurrent_tracks must be at least 1"))
	}
	if s.MaxConcurrentSegments < 1 {
		errs = append(errs, errors.New("max_concurrent_segments must be at least 1"))
	}
	if s.DownloadMaxRetries < 0 {
		errs = append(errs, errors.New("download_max_retries must not be negative"))
	}
	if s.DownloadRetryCooldown < 0 || s.DownloadRetryMaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if s.DownloadRetryExponent < 1 {
		errs = append(errs, errors.New("download_retry_exponent must be at least 1"))
	}
	if s.DownloadRetryJitter < 0 || s.DownloadRetryJitter > 1 {
		errs = append(errs, errors.New("download_retry_jitter must be within [0, 1]"))
	}
	if s.SegmentTimeout < 0 {
		errs = append(errs, errors.New("segment_timeout must not be negative"))
	}
	if s.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests_per_second must not be negative"))
	}
	if strings.TrimSpace(s.FileNameFormat) == "" {
		errs = append(errs, errors.New("file_name_format is empty"))
	}
	switch s.PlaylistFormat {
	case "m3u", "pls", "wpl", "zpl":
	default:
		errs = append(errs, fmt.Errorf("unknown playlist_format %q", s.PlaylistFormat))
	}
	switch s.ProxyType {
	case "none", "system":
	case "manual":
		if s.ProxyAddress == "" || s.ProxyPort <= 0 {
			errs = append(errs, errors.New("manual proxy needs proxy_address and proxy_port"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown proxy_type %q", s.ProxyType))
	}
	if _, err := s.TagConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AudioQuality returns the requested quality tier, falling back to
// lossless for an unknown value.
func (s *Settings) AudioQuality() model.Quality {
	q, err := model.ParseQuality(s.Quality)
	if err != nil {
		return model.QualityLossless
	}
	return q
}

// RetryPolicy converts the retry settings to a segment retry policy.
func (s *Settings) RetryPolicy() segment.RetryPolicy {
	return segment.RetryPolicy{
		MaxAttempts: s.DownloadMaxRetries + 1,
		BaseDelay:   seconds(s.DownloadRetryCooldown),
		Multiplier:  s.DownloadRetryExponent,
		MaxDelay:    seconds(s.DownloadRetryMaxDelay),
		Jitter:      s.DownloadRetryJitter,
	}
}

// SegmentAttemptTimeout returns the per-attempt deadline of a segment
// request. Zero means none.
func (s *Settings) SegmentAttemptTimeout() time.Duration {
	return seconds(s.SegmentTimeout)
}

func seconds(f float64) time.Duration {
	if f <= 0 || math.IsNaN(f) {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// ProxyURL returns the manual proxy URL, or "" for the other proxy types.
func (s *Settings) ProxyURL() string {
	if s.ProxyType != "manual" || s.ProxyAddress == "" {
		return ""
	}
	addr := s.ProxyAddress
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr + ":" + strconv.Itoa(s.ProxyPort)
}

// ToHTTPOptions converts the transport settings to client options.
func (s *Settings) ToHTTPOptions() httpc.Options {
	return httpc.Options{
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.RequestsBurst,
		Proxy:             s.ProxyURL(),
		DisableProxy:      s.ProxyType == "none",
	}
}

// ToPathConfig converts settings to PathConfig.
func (s *Settings) ToPathConfig() *model.PathConfig {
	return &model.PathConfig{
		DownloadsPath:          s.DownloadsPath,
		CoverArtFileNameFormat: s.CoverArtFileNameFormat,
		PlaylistFileNameFormat: s.PlaylistFileNameFormat,
		PlaylistFormat:         model.ParsePlaylistFormat(s.PlaylistFormat),
	}
}

// ToTrackConfig converts settings to TrackConfig.
func (s *Settings) ToTrackConfig() *model.TrackConfig {
	return &model.TrackConfig{
		FileNameFormat: s.FileNameFormat,
	}
}

// TagCoverOptions returns how covers are prepared for embedding, or nil
// when covers are not embedded.
func (s *Settings) TagCoverOptions() *ioutils.CoverOptions {
	if !s.SaveCoverArtInTags {
		return nil
	}
	return &ioutils.CoverOptions{
		Resize:  s.CoverArtInTagsResize,
		MaxSize: s.CoverArtInTagsMaxSize,
		JPEG:    true,
	}
}

// FolderCoverOptions returns how the cover file saved next to the
// tracks is prepared, or nil when no cover file is saved.
func (s *Settings) FolderCoverOptions() *ioutils.CoverOptions {
	if !s.SaveCoverArtInFolder {
		return nil
	}
	return &ioutils.CoverOptions{
		Resize:  s.CoverArtInFolderResize,
		MaxSize: s.CoverArtInFolderMaxSize,
		JPEG:    s.ConvertCoverArtToJPG,
	}
}

// TagFields lists the field names accepted in TagActions.
var TagFields = []string{
	"artist", "album_artist", "album", "title", "year", "date",
	"track_number", "disc_number", "isrc", "copyright", "genre",
	"comments", "cover",
}

// TagConfig builds the tagger configuration from ModifyTags and
// TagActions.
func (s *Settings) TagConfig() (*audio.TagConfig, error) {
	cfg := audio.DefaultTagConfig()
	cfg.ModifyTags = s.ModifyTags

	fields := map[string]*audio.TagEditAction{
		"artist":       &cfg.Artist,
		"album_artist": &cfg.AlbumArtist,
		"album":        &cfg.Album,
		"title":        &cfg.TrackTitle,
		"year":         &cfg.Year,
		"date":         &cfg.Date,
		"track_number": &cfg.TrackNumber,
		"disc_number":  &cfg.DiscNumber,
		"isrc":         &cfg.ISRC,
		"copyright":    &cfg.Copyright,
		"genre":        &cfg.Genre,
		"comments":     &cfg.Comments,
		"cover":        &cfg.Cover,
	}
	for name, raw := range s.TagActions {
		dst, ok := fields[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown tag field %q", name)
		}
		action, err := audio.ParseTagEditAction(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, fmt.Errorf("tag field %q: %w", name, err)
		}
		*dst = action
	}
	if !s.SaveCoverArtInTags {
		cfg.Cover = audio.TagDoNotModify
	}
	return cfg, nil
}
