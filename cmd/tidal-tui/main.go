package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/handiism/tidal-downloader/internal/app"
	"github.com/handiism/tidal-downloader/internal/config"
	"github.com/handiism/tidal-downloader/internal/download"
	"github.com/handiism/tidal-downloader/internal/tui"
)

func main() {
	configPath := pflag.StringP("config", "c", config.DefaultPath(), "Path to settings file (JSON or YAML)")
	logFile := pflag.String("log-file", "", "Write logs to this file")
	pflag.Parse()

	settings, err := config.Load(*configPath)
	if err == nil {
		err = settings.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var w io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	logger := app.NewLogger(w, settings.LogLevel, settings.LogFormat)
	slog.SetDefault(logger)

	factory := func(ctx context.Context, s *config.Settings, obs download.Observer) (*download.Manager, error) {
		return app.NewManager(ctx, s, app.Options{Logger: logger, Observer: obs})
	}
	if err := tui.Run(settings, factory, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
