package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/handiism/tidal-downloader/internal/download"
	"github.com/handiism/tidal-downloader/internal/model"
)

func testResult(failed int) download.AlbumResult {
	album := model.NewAlbum(model.AlbumInfo{ID: "1", Artists: []string{"Artist"}, Title: "Album"}, &model.PathConfig{})
	r := download.AlbumResult{Album: album}
	r.Succeeded = append(r.Succeeded, download.TrackOutcome{Track: model.NewTrack(album, model.TrackInfo{ID: "a", Number: 1, Title: "Ok"}, &model.TrackConfig{})})
	for i := 0; i < failed; i++ {
		r.Failed = append(r.Failed, download.TrackFailure{
			Track: model.NewTrack(album, model.TrackInfo{ID: "b", Number: 2, Title: "Broken"}, &model.TrackConfig{}),
			Stage: download.StageFetching,
			Err:   errors.New("HTTP 404"),
		})
	}
	return r
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		results []download.AlbumResult
		err     error
		want    int
	}{
		{"all ok", []download.AlbumResult{testResult(0)}, nil, exitOK},
		{"partial", []download.AlbumResult{testResult(0), testResult(1)}, nil, exitPartial},
		{"cancelled", []download.AlbumResult{testResult(1)}, context.Canceled, exitCancelled},
		{"fatal", nil, errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.results, tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, []download.AlbumResult{testResult(1)})

	out := buf.String()
	for _, want := range []string{"Artist - Album", "Broken", "fetching", "HTTP 404"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name    string
		verbose bool
		event   download.Event
		want    string
	}{
		{"error", false, download.Event{Kind: download.EventTrackFailed, Level: download.LevelError, Message: "Failed x"}, "✗ Failed x\n"},
		{"success", false, download.Event{Kind: download.EventAlbumDone, Level: download.LevelSuccess, Message: "done"}, "✓ done\n"},
		{"verbose hidden", false, download.Event{Kind: download.EventMessage, Level: download.LevelVerbose, Message: "detail"}, ""},
		{"verbose shown", true, download.Event{Kind: download.EventMessage, Level: download.LevelVerbose, Message: "detail"}, "  detail\n"},
		{"bytes ignored", true, download.Event{Kind: download.EventBytes, Message: "n"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := &printer{w: &buf, verbose: tt.verbose}
			p.Observe(tt.event)
			if got := buf.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}
