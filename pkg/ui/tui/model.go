package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"zester/pkg/crawler"
	"zester/pkg/soundcloud"
)

// CollectionState is where one collection is in its archive run
type CollectionState int

const (
	StatePending CollectionState = iota
	StateCrawling
	StateBackoff
	StateExpanding
	StateDownloading
	StateDone
	StateFailed
)

func (s CollectionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCrawling:
		return "crawling"
	case StateBackoff:
		return "backing off"
	case StateExpanding:
		return "expanding"
	case StateDownloading:
		return "downloading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CollectionItem is the display state of one collection
type CollectionItem struct {
	Kind        soundcloud.Kind
	State       CollectionState
	Pages       int
	Records     int
	Retries     int
	StartTime   time.Time
	PausedUntil time.Time
	// StepDone of StepTotal items of the follow-up step are finished
	StepDone  int
	StepTotal int
	// Current names the playlist or track being worked on
	Current string
	Error   error

	// resume is the state to return to once a backoff pause ends
	resume CollectionState
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the bubbletea model of an archive run
type Model struct {
	spinner      spinner.Model
	progressBars map[soundcloud.Kind]progress.Model

	collections map[soundcloud.Kind]*CollectionItem
	order       []soundcloud.Kind

	sessionStartTime time.Time

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// NewModel creates a model tracking kinds
func NewModel(kinds []soundcloud.Kind) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	m := &Model{
		spinner:          s,
		progressBars:     make(map[soundcloud.Kind]progress.Model),
		collections:      make(map[soundcloud.Kind]*CollectionItem),
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
	}
	for _, kind := range kinds {
		m.addCollection(kind)
	}
	return m
}

// Init starts the spinner
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// addCollection registers kind. m.mu must be held or m not yet shared.
func (m *Model) addCollection(kind soundcloud.Kind) *CollectionItem {
	if item, ok := m.collections[kind]; ok {
		return item
	}
	item := &CollectionItem{Kind: kind, State: StatePending}
	m.collections[kind] = item
	m.order = append(m.order, kind)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40
	m.progressBars[kind] = p
	return item
}

// ApplyEvent folds a crawl event into the collection it belongs to and
// logs the noteworthy ones
func (m *Model) ApplyEvent(e crawler.Event) {
	m.mu.Lock()
	item := m.addCollection(e.Kind)
	if item.StartTime.IsZero() {
		item.StartTime = time.Now()
	}

	var level, message string
	switch e.Type {
	case crawler.EventPageFetched:
		item.State = StateCrawling
		item.Pages = e.Page
		item.Records = e.Total
	case crawler.EventBackoffPaused:
		if item.State != StateBackoff {
			item.resume = item.State
			if item.resume == StatePending {
				item.resume = StateCrawling
			}
		}
		item.State = StateBackoff
		item.Retries++
		item.PausedUntil = time.Now().Add(e.Delay)
		level, message = "WARN", fmt.Sprintf("%s paused %s after attempt %d: %v", e.Kind, e.Delay, e.Attempt, e.Err)
	case crawler.EventDone:
		item.State = StateDone
		item.Pages = e.Page
		item.Records = e.Total
		level, message = "SUCCESS", fmt.Sprintf("%s crawled: %d records in %d pages", e.Kind, e.Total, e.Page)
	case crawler.EventFailed:
		item.State = StateFailed
		item.Error = e.Err
		level, message = "ERROR", fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
	case crawler.EventExpandStarted:
		item.State = StateExpanding
		item.StepDone, item.StepTotal = 0, e.Total
		level, message = "INFO", fmt.Sprintf("fetching full info of %d playlists", e.Total)
	case crawler.EventAudioQueued:
		item.State = StateDownloading
		item.StepDone, item.StepTotal = 0, e.Total
		level, message = "INFO", fmt.Sprintf("downloading audio of %d liked tracks", e.Total)
	case crawler.EventPlaylistStarted, crawler.EventTrackStarted:
		m.resumeFromBackoff(item)
		item.Current = e.Title
	case crawler.EventPlaylistExpanded:
		m.resumeFromBackoff(item)
		item.StepDone = e.Count
		item.Current = ""
	case crawler.EventTrackSaved:
		m.resumeFromBackoff(item)
		item.StepDone++
		item.Current = ""
		level, message = "SUCCESS", "saved "+e.Path
	case crawler.EventTrackSkipped:
		m.resumeFromBackoff(item)
		item.StepDone++
		item.Current = ""
	}

	// a follow-up step that finished all items leaves the collection done
	if (item.State == StateExpanding || item.State == StateDownloading) && item.StepDone >= item.StepTotal {
		item.State = StateDone
	}
	m.mu.Unlock()

	if message != "" {
		m.AddLogMessage(level, message)
	}
}

// resumeFromBackoff ends a backoff pause once progress is made again.
// m.mu must be held.
func (m *Model) resumeFromBackoff(item *CollectionItem) {
	if item.State == StateBackoff {
		item.State = item.resume
		item.PausedUntil = time.Time{}
	}
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := dimWhite
	switch level {
	case "ERROR":
		color = alertRed
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// GetCollections returns copies of the collection states in display order
func (m *Model) GetCollections() []CollectionItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]CollectionItem, 0, len(m.order))
	for _, kind := range m.order {
		items = append(items, *m.collections[kind])
	}
	return items
}

// Stats sums progress over every collection
type Stats struct {
	Records int
	Pages   int
	Retries int
	Done    int
	Failed  int
	Active  int
}

// GetStats returns the run totals
func (m *Model) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	for _, item := range m.collections {
		s.Records += item.Records
		s.Pages += item.Pages
		s.Retries += item.Retries
		switch item.State {
		case StateDone:
			s.Done++
		case StateFailed:
			s.Failed++
		case StatePending:
		default:
			s.Active++
		}
	}
	return s
}

// stepFraction reports how far a follow-up step is, between 0 and 1
func (item *CollectionItem) stepFraction() float64 {
	if item.StepTotal <= 0 {
		return 0
	}
	f := float64(item.StepDone) / float64(item.StepTotal)
	if f > 1 {
		f = 1
	}
	return f
}
