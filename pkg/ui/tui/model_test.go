package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"zester/pkg/crawler"
	"zester/pkg/soundcloud"
)

func TestModel(t *testing.T) {
	model := NewModel([]soundcloud.Kind{soundcloud.KindLikes, soundcloud.KindPlaylists})

	if len(model.collections) != 2 {
		t.Fatalf("Expected 2 collections, got %d", len(model.collections))
	}

	model.ApplyEvent(crawler.Event{Type: crawler.EventPageFetched, Kind: soundcloud.KindLikes, Page: 1, Count: 200, Total: 200})
	likes := model.collections[soundcloud.KindLikes]
	if likes.State != StateCrawling {
		t.Errorf("Expected likes to be crawling, got %s", likes.State)
	}
	if likes.Records != 200 {
		t.Errorf("Expected 200 records, got %d", likes.Records)
	}

	model.ApplyEvent(crawler.Event{Type: crawler.EventBackoffPaused, Kind: soundcloud.KindLikes, Attempt: 1, Delay: time.Minute, Err: errors.New("429")})
	if likes.State != StateBackoff {
		t.Errorf("Expected likes to be backing off, got %s", likes.State)
	}
	if time.Until(likes.PausedUntil) <= 0 {
		t.Errorf("Expected a pause in the future, got %s", likes.PausedUntil)
	}

	model.ApplyEvent(crawler.Event{Type: crawler.EventPageFetched, Kind: soundcloud.KindLikes, Page: 2, Count: 50, Total: 250})
	model.ApplyEvent(crawler.Event{Type: crawler.EventDone, Kind: soundcloud.KindLikes, Page: 2, Total: 250})
	if likes.State != StateDone {
		t.Errorf("Expected likes to be done, got %s", likes.State)
	}

	model.ApplyEvent(crawler.Event{Type: crawler.EventFailed, Kind: soundcloud.KindPlaylists, Err: errors.New("boom")})

	stats := model.GetStats()
	if stats.Records != 250 || stats.Pages != 2 || stats.Retries != 1 {
		t.Errorf("Unexpected totals %+v", stats)
	}
	if stats.Done != 1 || stats.Failed != 1 || stats.Active != 0 {
		t.Errorf("Unexpected collection counts %+v", stats)
	}

	// one warning, one success, one error
	if len(model.logMessages) != 3 {
		t.Errorf("Expected 3 log messages, got %d", len(model.logMessages))
	}
}

func TestModelFollowUpSteps(t *testing.T) {
	model := NewModel([]soundcloud.Kind{soundcloud.KindPlaylists})
	item := model.collections[soundcloud.KindPlaylists]

	model.ApplyEvent(crawler.Event{Type: crawler.EventDone, Kind: soundcloud.KindPlaylists, Page: 1, Total: 2})
	model.ApplyEvent(crawler.Event{Type: crawler.EventExpandStarted, Kind: soundcloud.KindPlaylists, Total: 2})
	if item.State != StateExpanding {
		t.Fatalf("Expected expanding, got %s", item.State)
	}

	model.ApplyEvent(crawler.Event{Type: crawler.EventPlaylistStarted, Kind: soundcloud.KindPlaylists, Title: "night drive", Total: 2})
	if item.Current != "night drive" {
		t.Errorf("Expected current playlist to be named, got %q", item.Current)
	}

	model.ApplyEvent(crawler.Event{Type: crawler.EventBackoffPaused, Kind: soundcloud.KindPlaylists, Delay: time.Second})
	model.ApplyEvent(crawler.Event{Type: crawler.EventPlaylistExpanded, Kind: soundcloud.KindPlaylists, Count: 1, Total: 2})
	if item.State != StateExpanding {
		t.Errorf("Expected expansion to resume after the pause, got %s", item.State)
	}
	if got := item.stepFraction(); got != 0.5 {
		t.Errorf("Expected half way, got %v", got)
	}

	model.ApplyEvent(crawler.Event{Type: crawler.EventPlaylistExpanded, Kind: soundcloud.KindPlaylists, Count: 2, Total: 2})
	if item.State != StateDone {
		t.Errorf("Expected done after the last playlist, got %s", item.State)
	}
}

func TestModelAudioStep(t *testing.T) {
	model := NewModel(nil)

	model.ApplyEvent(crawler.Event{Type: crawler.EventAudioQueued, Kind: soundcloud.KindLikes, Total: 2})
	item := model.collections[soundcloud.KindLikes]
	if item == nil || item.State != StateDownloading {
		t.Fatalf("Expected an unknown kind to be added and downloading")
	}

	model.ApplyEvent(crawler.Event{Type: crawler.EventTrackSaved, Kind: soundcloud.KindLikes, Path: "audio/1.mp3"})
	model.ApplyEvent(crawler.Event{Type: crawler.EventTrackSkipped, Kind: soundcloud.KindLikes, Err: soundcloud.ErrNoTranscoding})
	if item.State != StateDone {
		t.Errorf("Expected done after every track, got %s", item.State)
	}
}

func TestModelEmptyExpansionIsDone(t *testing.T) {
	model := NewModel([]soundcloud.Kind{soundcloud.KindPlaylists})
	model.ApplyEvent(crawler.Event{Type: crawler.EventExpandStarted, Kind: soundcloud.KindPlaylists, Total: 0})

	if state := model.collections[soundcloud.KindPlaylists].State; state != StateDone {
		t.Errorf("Expected done, got %s", state)
	}
}

func TestLogMessagesAreCapped(t *testing.T) {
	model := NewModel(nil)
	for i := 0; i < 60; i++ {
		model.AddLogMessage("INFO", "message")
	}
	if len(model.logMessages) != 50 {
		t.Errorf("Expected 50 log messages, got %d", len(model.logMessages))
	}
}

func TestUpdateKeys(t *testing.T) {
	model := NewModel(nil)

	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if !model.showHelp {
		t.Errorf("Expected help to be shown")
	}

	model.AddLogMessage("INFO", "message")
	model.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(model.logMessages) != 0 {
		t.Errorf("Expected logs to be cleared, got %d", len(model.logMessages))
	}

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("Expected q to quit")
	}
}

func TestUpdateAppliesEvents(t *testing.T) {
	model := NewModel([]soundcloud.Kind{soundcloud.KindComments})

	model.Update(EventMsg{Event: crawler.Event{Type: crawler.EventDone, Kind: soundcloud.KindComments, Page: 1, Total: 3}})
	model.Update(LogMsg{Level: "INFO", Message: "hello"})

	if model.collections[soundcloud.KindComments].Records != 3 {
		t.Errorf("Expected event to be applied")
	}
	if last := model.logMessages[len(model.logMessages)-1]; last.Message != "hello" {
		t.Errorf("Expected log message, got %q", last.Message)
	}
}

func TestView(t *testing.T) {
	model := NewModel([]soundcloud.Kind{soundcloud.KindLikes})
	if got := model.View(); got != "Initializing..." {
		t.Errorf("Expected placeholder before the first resize, got %q", got)
	}

	model.Update(tea.WindowSizeMsg{Width: 160, Height: 60})
	model.ApplyEvent(crawler.Event{Type: crawler.EventBackoffPaused, Kind: soundcloud.KindLikes, Delay: time.Minute})

	view := model.View()
	for _, want := range []string{"COLLECTIONS", "likes", "backing off", "resumes in"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{-time.Second, "00:00"},
		{42 * time.Second, "00:42"},
		{125 * time.Second, "02:05"},
		{time.Hour + 61*time.Second, "01:01:01"},
	}

	for _, test := range tests {
		if result := formatDuration(test.d); result != test.expected {
			t.Errorf("formatDuration(%s) = %s, expected %s", test.d, result, test.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected short text unchanged, got %q", got)
	}
	if got := truncate("a rather long playlist title", 10); got != "a rathe..." {
		t.Errorf("Expected truncated text, got %q", got)
	}
}
