package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/handiism/tidal-downloader/internal/audio"
	"github.com/handiism/tidal-downloader/internal/model"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvCountryCode, "")

	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.MaxConcurrentTracksDownload != 3 {
		t.Errorf("MaxConcurrentTracksDownload = %d, want 3", s.MaxConcurrentTracksDownload)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestLoad_Formats(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvCountryCode, "")

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"json", "config.json", `{"quality": "HI_RES_LOSSLESS", "max_concurrent_segments": 8}`},
		{"yaml", "config.yaml", "quality: HI_RES_LOSSLESS\nmax_concurrent_segments: 8\n"},
		{"yml", "config.yml", "quality: hires\nmax_concurrent_segments: 8\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			s, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if s.AudioQuality() != model.QualityHiRes {
				t.Errorf("AudioQuality() = %v, want %v", s.AudioQuality(), model.QualityHiRes)
			}
			if s.MaxConcurrentSegments != 8 {
				t.Errorf("MaxConcurrentSegments = %d, want 8", s.MaxConcurrentSegments)
			}
			// Unset keys keep their defaults.
			if s.MaxConcurrentTracksDownload != 3 {
				t.Errorf("MaxConcurrentTracksDownload = %d, want default 3", s.MaxConcurrentTracksDownload)
			}
		})
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for malformed file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvToken, "abc")
	t.Setenv(EnvCountryCode, "nl")

	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Token != "abc" {
		t.Errorf("Token = %q, want %q", s.Token, "abc")
	}
	if s.CountryCode != "NL" {
		t.Errorf("CountryCode = %q, want %q", s.CountryCode, "NL")
	}
}

func TestSave_RoundTripOmitsToken(t *testing.T) {
	for _, name := range []string{"out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(EnvToken, "")
			path := filepath.Join(t.TempDir(), "nested", name)

			s := DefaultSettings()
			s.Token = "secret"
			s.DownloadsPath = "/music/{album}"
			if err := s.Save(path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if strings.Contains(string(data), "secret") {
				t.Error("saved settings contain the token")
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded.DownloadsPath != "/music/{album}" {
				t.Errorf("DownloadsPath = %q, want %q", loaded.DownloadsPath, "/music/{album}")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"quality", func(s *Settings) { s.Quality = "ultra" }, "unknown quality"},
		{"tracks", func(s *Settings) { s.MaxConcurrentTracksDownload = 0 }, "max_concurrent_tracks"},
		{"segments", func(s *Settings) { s.MaxConcurrentSegments = 0 }, "max_concurrent_segments"},
		{"jitter", func(s *Settings) { s.DownloadRetryJitter = 2 }, "download_retry_jitter"},
		{"playlist", func(s *Settings) { s.PlaylistFormat = "xspf" }, "playlist_format"},
		{"proxy", func(s *Settings) { s.ProxyType = "manual" }, "manual proxy"},
		{"tag field", func(s *Settings) { s.TagActions = map[string]string{"mood": "modify"} }, "unknown tag field"},
		{"tag action", func(s *Settings) { s.TagActions = map[string]string{"genre": "drop"} }, "unknown tag action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	s := DefaultSettings()
	s.DownloadMaxRetries = 4
	s.DownloadRetryCooldown = 0.5
	s.DownloadRetryExponent = 3
	s.DownloadRetryMaxDelay = 10
	s.DownloadRetryJitter = 0

	p := s.RetryPolicy()
	if p.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", p.MaxAttempts)
	}
	if p.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 500ms", p.BaseDelay)
	}
	if p.MaxDelay != 10*time.Second {
		t.Errorf("MaxDelay = %v, want 10s", p.MaxDelay)
	}
	if p.Multiplier != 3 {
		t.Errorf("Multiplier = %v, want 3", p.Multiplier)
	}
}

func TestProxySettings(t *testing.T) {
	tests := []struct {
		name        string
		proxyType   string
		address     string
		port        int
		wantURL     string
		wantDisable bool
	}{
		{"system", "system", "", 0, "", false},
		{"none", "none", "", 0, "", true},
		{"manual", "manual", "127.0.0.1", 8080, "http://127.0.0.1:8080", false},
		{"manual with scheme", "manual", "socks5://proxy", 1080, "socks5://proxy:1080", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			s.ProxyType, s.ProxyAddress, s.ProxyPort = tt.proxyType, tt.address, tt.port

			opts := s.ToHTTPOptions()
			if opts.Proxy != tt.wantURL {
				t.Errorf("Proxy = %q, want %q", opts.Proxy, tt.wantURL)
			}
			if opts.DisableProxy != tt.wantDisable {
				t.Errorf("DisableProxy = %v, want %v", opts.DisableProxy, tt.wantDisable)
			}
		})
	}
}

func TestTagConfig(t *testing.T) {
	s := DefaultSettings()
	s.TagActions = map[string]string{"Genre": "keep", "comments": "modify"}

	cfg, err := s.TagConfig()
	if err != nil {
		t.Fatalf("TagConfig() error = %v", err)
	}
	if cfg.Genre != audio.TagDoNotModify {
		t.Errorf("Genre = %v, want keep", cfg.Genre)
	}
	if cfg.Comments != audio.TagModify {
		t.Errorf("Comments = %v, want modify", cfg.Comments)
	}
	if cfg.Artist != audio.TagModify {
		t.Errorf("Artist = %v, want default modify", cfg.Artist)
	}

	s.SaveCoverArtInTags = false
	cfg, _ = s.TagConfig()
	if cfg.Cover != audio.TagDoNotModify {
		t.Errorf("Cover = %v, want keep when covers are not embedded", cfg.Cover)
	}
	if s.TagCoverOptions() != nil {
		t.Error("TagCoverOptions() should be nil when covers are not embedded")
	}
}

func TestToPathConfig(t *testing.T) {
	s := DefaultSettings()
	s.PlaylistFormat = "zpl"

	pc := s.ToPathConfig()
	if pc.PlaylistFormat != model.PlaylistFormatZPL {
		t.Errorf("PlaylistFormat = %v, want ZPL", pc.PlaylistFormat)
	}
	if pc.DownloadsPath != s.DownloadsPath {
		t.Errorf("DownloadsPath = %q, want %q", pc.DownloadsPath, s.DownloadsPath)
	}
	if s.ToTrackConfig().FileNameFormat != s.FileNameFormat {
		t.Error("ToTrackConfig() lost FileNameFormat")
	}
}
