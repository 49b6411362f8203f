package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/handiism/tidal-downloader/internal/app"
	"github.com/handiism/tidal-downloader/internal/config"
	"github.com/handiism/tidal-downloader/internal/download"
	"github.com/handiism/tidal-downloader/internal/metrics"
	"github.com/handiism/tidal-downloader/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = pflag.StringP("config", "c", config.DefaultPath(), "Path to settings file (JSON or YAML)")
		output       = pflag.StringP("output", "o", "", "Output directory (overrides config)")
		quality      = pflag.StringP("quality", "q", "", "Audio quality: low, high, lossless, hires")
		token        = pflag.String("token", "", "Access token (saved to the token file)")
		country      = pflag.String("country", "", "Country code of the account")
		tracks       = pflag.IntP("tracks", "t", 0, "Tracks downloaded at once per album")
		segments     = pflag.IntP("segments", "s", 0, "Segments downloaded at once per track")
		playlist     = pflag.Bool("playlist", false, "Create a playlist file per album")
		noTags       = pflag.Bool("no-tags", false, "Do not write tags")
		overwrite    = pflag.Bool("overwrite", false, "Download tracks that already exist")
		keepFailed   = pflag.Bool("keep-failed", false, "Keep the workspace of failed tracks")
		verbose      = pflag.BoolP("verbose", "v", false, "Show verbose output")
		dryRun       = pflag.Bool("dry-run", false, "Resolve inputs without downloading")
		saveConfig   = pflag.Bool("save-config", false, "Write the effective settings to the config file")
		logLevel     = pflag.String("log-level", "", "Log level: debug, info, warn, error")
		logFormat    = pflag.String("log-format", "", "Log format: text, json")
		metricsAddr  = pflag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
		inputFile    = pflag.StringP("file", "f", "", "Read inputs from a file, one per line")
	)
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Tidal Downloader - Download albums and tracks from Tidal")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  tidal-dl [options] <url|id>...")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Inputs: album, track and artist URLs, album:<id>, track:<id>, artist:<id> or a bare album id.")
		fmt.Fprintln(os.Stderr, "For interactive mode, use: tidal-tui")
		fmt.Fprintln(os.Stderr)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	input := strings.Join(pflag.Args(), "\n")
	if *inputFile != "" {
		data, err := os.ReadFile(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading inputs: %v\n", err)
			return exitFailure
		}
		input += "\n" + string(data)
	}
	if strings.TrimSpace(input) == "" && !*saveConfig {
		pflag.Usage()
		return exitFailure
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return exitFailure
	}

	flags := pflag.CommandLine
	if *output != "" {
		settings.DownloadsPath = strings.TrimRight(*output, "/") + "/{artist} - {album}"
	}
	if *quality != "" {
		settings.Quality = *quality
	}
	if *token != "" {
		settings.Token = *token
	}
	if *country != "" {
		settings.CountryCode = strings.ToUpper(*country)
	}
	if flags.Changed("tracks") {
		settings.MaxConcurrentTracksDownload = *tracks
	}
	if flags.Changed("segments") {
		settings.MaxConcurrentSegments = *segments
	}
	if flags.Changed("playlist") {
		settings.CreatePlaylist = *playlist
	}
	if *noTags {
		settings.ModifyTags = false
		settings.SaveCoverArtInTags = false
	}
	if *overwrite {
		settings.SkipExisting = false
	}
	if *keepFailed {
		settings.KeepFailedWorkspace = true
	}
	if *logLevel != "" {
		settings.LogLevel = *logLevel
	}
	if *logFormat != "" {
		settings.LogFormat = *logFormat
	}
	if *verbose {
		settings.LogLevel = "debug"
	}

	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid settings:\n%v\n", err)
		return exitFailure
	}
	if *saveConfig {
		if err := settings.Save(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			return exitFailure
		}
		fmt.Printf("Settings saved to %s\n", *configPath)
		if strings.TrimSpace(input) == "" {
			return exitOK
		}
	}

	logger := app.NewLogger(os.Stderr, settings.LogLevel, settings.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(ctx, "tidal-dl")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(shutdownCtx)
		}
	}()

	metrics.Register(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	out := download.NewAsyncObserver(&printer{w: os.Stdout, verbose: *verbose})

	manager, err := app.NewManager(ctx, settings, app.Options{Logger: logger, Observer: out})
	if err != nil {
		out.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	fmt.Println("♪ Tidal Downloader")
	fmt.Println(strings.Repeat("━", 40))
	fmt.Println()

	if err := manager.Initialize(ctx, input); err != nil {
		out.Close()
		if errors.Is(err, context.Canceled) {
			return exitCancelled
		}
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		return exitFailure
	}

	if *dryRun {
		out.Close()
		fmt.Println("\n[Dry run - not downloading]")
		for _, name := range manager.GetAlbumNames() {
			fmt.Println("  " + name)
		}
		return exitOK
	}

	fmt.Println("\nStarting downloads...")
	fmt.Println()

	results, err := manager.StartDownloads(ctx)
	out.Close()

	received, filesReceived, filesTotal := manager.GetProgress()
	fmt.Println()
	printSummary(os.Stdout, results)
	fmt.Printf("\nDownloaded %d/%d files (%.2f MB)\n", filesReceived, filesTotal, float64(received)/1024/1024)

	code := exitCode(results, err)
	if code == exitCancelled {
		fmt.Println("Download cancelled.")
	}
	return code
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))
	return srv
}
