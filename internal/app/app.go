// Package app wires settings into a ready download.Manager. It is shared
// by the command line and terminal front ends.
package app

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/handiism/tidal-downloader/internal/config"
	"github.com/handiism/tidal-downloader/internal/download"
	httpc "github.com/handiism/tidal-downloader/internal/http"
	"github.com/handiism/tidal-downloader/internal/metrics"
	"github.com/handiism/tidal-downloader/internal/tidal"
)

// Options holds the front end collaborators of a Manager.
type Options struct {
	Logger   *slog.Logger
	Observer download.Observer
}

// NewManager builds the HTTP client, the Tidal session and catalogue
// client, and the download manager on top of them. Every event also
// feeds the Prometheus collectors in package metrics.
func NewManager(ctx context.Context, settings *config.Settings, opts Options) (*download.Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpOpts := settings.ToHTTPOptions()
	httpOpts.Logger = logger
	hc := httpc.NewClient(httpOpts)

	session, err := tidal.NewSession(ctx, tidal.SessionConfig{
		Token:       settings.Token,
		TokenFile:   settings.TokenFile,
		CountryCode: settings.CountryCode,
	})
	if err != nil {
		return nil, err
	}

	client := tidal.NewClient(hc, session, tidal.Config{
		BaseURL:     settings.APIBaseURL,
		CoverSize:   settings.CoverArtSize,
		TagCover:    settings.TagCoverOptions(),
		PathConfig:  settings.ToPathConfig(),
		TrackConfig: settings.ToTrackConfig(),
		Logger:      logger,
	})

	return download.NewManager(settings, download.ManagerOptions{
		Catalog:      client,
		Transport:    hc,
		SegmentHooks: metrics.SegmentHooks(),
		Observer:     download.MultiObserver{metrics.Observer(), opts.Observer},
		Logger:       logger,
	})
}

// NewLogger returns a text or JSON slog logger writing to w.
func NewLogger(w io.Writer, levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: ParseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func ParseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
