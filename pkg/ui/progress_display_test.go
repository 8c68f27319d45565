package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"zester/pkg/crawler"
	"zester/pkg/soundcloud"
)

func TestProgressDisplayStatusLine(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	var buf bytes.Buffer
	p := NewProgressDisplayWithWriter([]soundcloud.Kind{soundcloud.KindLikes, soundcloud.KindComments}, false, &buf)

	p.Observe(crawler.Event{Type: crawler.EventPageFetched, Kind: soundcloud.KindLikes, Page: 1, Count: 200, Total: 200})
	p.Observe(crawler.Event{Type: crawler.EventBackoffPaused, Kind: soundcloud.KindComments, Attempt: 1, Delay: 2 * time.Second})
	p.Observe(crawler.Event{Type: crawler.EventDone, Kind: soundcloud.KindLikes, Total: 250})

	line := p.statusLine()
	assert.Contains(t, line, "likes 250 ✓")
	assert.Contains(t, line, "comments 0 … (1 retries)")

	p.Observe(crawler.Event{Type: crawler.EventFailed, Kind: soundcloud.KindComments, Err: errors.New("boom")})
	p.Complete()

	out := buf.String()
	assert.Contains(t, out, "Archived 250 records from 1 collections")
	assert.Contains(t, out, "1 collections failed")
}

func TestProgressDisplayVerbose(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	var buf bytes.Buffer
	p := NewProgressDisplayWithWriter(nil, true, &buf)

	p.Observe(crawler.Event{Type: crawler.EventPageFetched, Kind: soundcloud.KindPlaylists, Page: 2, Count: 5, Total: 15})
	p.Observe(crawler.Event{Type: crawler.EventBackoffPaused, Kind: soundcloud.KindPlaylists, Attempt: 1, Delay: 90 * time.Second, Err: errors.New("server error")})
	p.Observe(crawler.Event{Type: crawler.EventDone, Kind: soundcloud.KindPlaylists, Total: 15})

	out := buf.String()
	assert.Contains(t, out, "playlists page 2 • +5 • 15 total")
	assert.Contains(t, out, "playlists paused 1m30s after attempt 1: server error")
	assert.Contains(t, out, "playlists complete • 15 records")
}

func TestProgressDisplayFollowUpSteps(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	var buf bytes.Buffer
	p := NewProgressDisplayWithWriter([]soundcloud.Kind{soundcloud.KindLikes, soundcloud.KindPlaylists}, false, &buf)

	p.Observe(crawler.Event{Type: crawler.EventDone, Kind: soundcloud.KindPlaylists, Total: 3})
	p.Observe(crawler.Event{Type: crawler.EventExpandStarted, Kind: soundcloud.KindPlaylists, Total: 3})
	p.Observe(crawler.Event{Type: crawler.EventPlaylistExpanded, Kind: soundcloud.KindPlaylists, ItemID: 1, Count: 1, Total: 3})

	p.Observe(crawler.Event{Type: crawler.EventDone, Kind: soundcloud.KindLikes, Total: 2})
	p.Observe(crawler.Event{Type: crawler.EventAudioQueued, Kind: soundcloud.KindLikes, Total: 2})
	p.Observe(crawler.Event{Type: crawler.EventTrackSaved, Kind: soundcloud.KindLikes, Path: "audio/1.mp3"})
	p.Observe(crawler.Event{Type: crawler.EventTrackSkipped, Kind: soundcloud.KindLikes, Err: soundcloud.ErrNoTranscoding})

	line := p.statusLine()
	assert.Contains(t, line, "playlists 3 ✓ expanding 1/3")
	assert.Contains(t, line, "likes 2 ✓ audio 2/2")
}

func TestProgressDisplayVerboseFollowUpSteps(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	var buf bytes.Buffer
	p := NewProgressDisplayWithWriter(nil, true, &buf)

	p.Observe(crawler.Event{Type: crawler.EventExpandStarted, Kind: soundcloud.KindPlaylists, Total: 2})
	p.Observe(crawler.Event{Type: crawler.EventPlaylistStarted, Kind: soundcloud.KindPlaylists, Title: "night drive", Count: 0, Total: 2})
	p.Observe(crawler.Event{Type: crawler.EventTrackSaved, Kind: soundcloud.KindLikes, Path: "audio/7-song.mp3"})

	out := buf.String()
	assert.Contains(t, out, "fetching full info of 2 playlists")
	assert.Contains(t, out, `playlist "night drive" (1/2)`)
	assert.Contains(t, out, "saved audio/7-song.mp3")
}

func TestColorToggle(t *testing.T) {
	SetColor(false)
	assert.Equal(t, "plain", Red("plain"))
	SetColor(true)
	assert.Equal(t, "\033[31mplain\033[0m", Red("plain"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h1m", formatDuration(61*time.Minute))
}
