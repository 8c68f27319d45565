package crawler

import (
	"time"

	"zester/pkg/soundcloud"
)

// EventType identifies a progress notification
type EventType int

const (
	// EventPageFetched follows every decoded page
	EventPageFetched EventType = iota
	// EventBackoffPaused precedes the pause before a retry
	EventBackoffPaused
	// EventDone is sent once when the collection is exhausted
	EventDone
	// EventFailed is sent once when the crawl ends with an error
	EventFailed

	// EventExpandStarted is sent once before playlists are expanded, with
	// Total set to the number of playlists
	EventExpandStarted
	// EventPlaylistStarted precedes the fetch of one playlist's full info
	EventPlaylistStarted
	// EventPlaylistExpanded follows the fetch of one playlist's full info
	EventPlaylistExpanded

	// EventAudioQueued is sent once before liked tracks are downloaded, with
	// Total set to the number of tracks
	EventAudioQueued
	// EventTrackStarted precedes the download of one track
	EventTrackStarted
	// EventTrackSaved follows a track written to Path
	EventTrackSaved
	// EventTrackSkipped reports a track that was not downloaded, with the
	// reason in Err
	EventTrackSkipped
)

func (t EventType) String() string {
	switch t {
	case EventPageFetched:
		return "page_fetched"
	case EventBackoffPaused:
		return "backoff_paused"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	case EventExpandStarted:
		return "expand_started"
	case EventPlaylistStarted:
		return "playlist_started"
	case EventPlaylistExpanded:
		return "playlist_expanded"
	case EventAudioQueued:
		return "audio_queued"
	case EventTrackStarted:
		return "track_started"
	case EventTrackSaved:
		return "track_saved"
	case EventTrackSkipped:
		return "track_skipped"
	default:
		return "unknown"
	}
}

// Event reports crawl progress. Only the fields relevant to Type are set.
type Event struct {
	Type EventType
	Kind soundcloud.Kind

	// Page is the number of pages decoded so far
	Page int
	// Count is the number of new records on this page. For playlist and
	// track steps it is the number of items finished so far.
	Count int
	// Total is the number of records emitted so far, or the number of items
	// a follow-up step will process
	Total int

	// Attempt and Delay describe a backoff pause
	Attempt int
	Delay   time.Duration

	// ItemID, Title and Path name the playlist or track a follow-up step is
	// working on
	ItemID int64
	Title  string
	Path   string

	Err error
}
