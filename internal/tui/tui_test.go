package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/handiism/tidal-downloader/internal/config"
	"github.com/handiism/tidal-downloader/internal/download"
	"github.com/handiism/tidal-downloader/internal/model"
)

func failingFactory(err error) ManagerFactory {
	return func(context.Context, *config.Settings, download.Observer) (*download.Manager, error) {
		return nil, err
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update() returned %T, want Model", next)
	}
	return nm, cmd
}

func TestModel_InputOptions(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Quality = "HIGH"
	m := NewModel(settings, failingFactory(errors.New("unused")))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.quality != model.QualityLossless {
		t.Errorf("quality after tab = %s, want LOSSLESS", m.quality)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlV})
	if !m.verbose {
		t.Error("ctrl+v did not enable verbose output")
	}

	view := m.View()
	for _, want := range []string{"Tidal Downloader", "Quality: LOSSLESS", "[x] Verbose output"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestModel_InitFailure(t *testing.T) {
	m := NewModel(config.DefaultSettings(), failingFactory(errors.New("no token")))
	m.textInput.SetValue("album:1")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != StateInitializing {
		t.Fatalf("state = %v, want initializing", m.state)
	}
	if cmd == nil {
		t.Fatal("enter returned no command")
	}

	msg := m.initializeDownload()()
	m, _ = update(t, m, msg)
	if m.state != StateError || m.err == nil || m.err.Error() != "no token" {
		t.Errorf("state = %v err = %v, want error state with the factory error", m.state, m.err)
	}
	if !strings.Contains(m.View(), "no token") {
		t.Error("View() does not show the error")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if m.state != StateInput || m.err != nil || m.textInput.Value() != "" {
		t.Errorf("reset left state = %v err = %v input = %q", m.state, m.err, m.textInput.Value())
	}
}

func TestModel_HandleEvent(t *testing.T) {
	m := NewModel(config.DefaultSettings(), nil)

	m.handleEvent(download.Event{Kind: download.EventMessage, Level: download.LevelVerbose, Message: "quiet"})
	m.handleEvent(download.Event{Kind: download.EventBytes, Bytes: 10})
	m.handleEvent(download.Event{Kind: download.EventTrackFailed, Level: download.LevelError, Message: "Failed x"})
	if len(m.logs) != 1 || m.logs[0].Message != "Failed x" {
		t.Errorf("logs = %+v, want only the failure", m.logs)
	}

	retry := download.Event{Kind: download.EventRetry, Level: download.LevelWarning, Message: "Retrying segment 3 of x"}
	m.handleEvent(retry)
	if len(m.logs) != 1 {
		t.Errorf("retry shown without verbose output: %+v", m.logs)
	}
	m.verbose = true
	m.handleEvent(retry)
	if len(m.logs) != 2 || m.logs[1].Message != retry.Message {
		t.Errorf("logs = %+v, want the retry in verbose mode", m.logs)
	}

	for i := 0; i < 2*maxLogs; i++ {
		m.handleEvent(download.Event{Kind: download.EventMessage, Level: download.LevelInfo, Message: "m"})
	}
	if len(m.logs) != maxLogs {
		t.Errorf("kept %d logs, want %d", len(m.logs), maxLogs)
	}
}

func TestNextQuality(t *testing.T) {
	tests := []struct {
		in, want model.Quality
	}{
		{model.QualityLow, model.QualityHigh},
		{model.QualityHiRes, model.QualityLow},
		{model.Quality("bogus"), model.QualityLow},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := nextQuality(tt.in); got != tt.want {
				t.Errorf("nextQuality(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
