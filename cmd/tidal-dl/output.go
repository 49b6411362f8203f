package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/handiism/tidal-downloader/internal/download"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitPartial   = 2
	exitCancelled = 130
)

var (
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgCyan)
	dimColor     = color.New(color.Faint)
)

// printer writes human readable progress lines.
type printer struct {
	w       io.Writer
	verbose bool
}

func (p *printer) Observe(e download.Event) {
	if e.Message == "" {
		return
	}
	switch e.Kind {
	case download.EventMessage, download.EventTrackDone, download.EventTrackFailed, download.EventAlbumDone:
	case download.EventRetry:
		if !p.verbose {
			return
		}
	default:
		return
	}

	switch e.Level {
	case download.LevelError:
		errorColor.Fprintln(p.w, "✗ "+e.Message)
	case download.LevelWarning:
		warningColor.Fprintln(p.w, "! "+e.Message)
	case download.LevelSuccess:
		successColor.Fprintln(p.w, "✓ "+e.Message)
	case download.LevelInfo:
		infoColor.Fprintln(p.w, "› "+e.Message)
	default:
		if p.verbose {
			dimColor.Fprintln(p.w, "  "+e.Message)
		}
	}
}

// printSummary renders one row per album and one per failed track.
func printSummary(w io.Writer, results []download.AlbumResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Album", "Tracks", "Downloaded", "Failed"})
	table.SetRowLine(false)
	for _, r := range results {
		table.Append([]string{
			fmt.Sprintf("%s - %s", r.Album.Artist, r.Album.Title),
			strconv.Itoa(r.Total()),
			strconv.Itoa(len(r.Succeeded)),
			strconv.Itoa(len(r.Failed)),
		})
	}
	table.Render()

	var failed [][]string
	for _, r := range results {
		for _, f := range r.Failed {
			failed = append(failed, []string{r.Album.Title, f.Track.DisplayTitle(), f.Stage.String(), f.Err.Error()})
		}
	}
	if len(failed) == 0 {
		return
	}
	fmt.Fprintln(w)
	ft := tablewriter.NewWriter(w)
	ft.SetHeader([]string{"Album", "Track", "Stage", "Error"})
	ft.SetAutoWrapText(false)
	ft.AppendBulk(failed)
	ft.Render()
}

// exitCode maps the download outcome to the process status.
func exitCode(results []download.AlbumResult, err error) int {
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	if err != nil {
		return exitFailure
	}
	for _, r := range results {
		if len(r.Failed) > 0 {
			return exitPartial
		}
	}
	return exitOK
}
