package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"zester/pkg/crawler"
	"zester/pkg/soundcloud"
)

// kindProgress is the display state of one collection
type kindProgress struct {
	pages   int
	records int
	retries int
	done    bool
	failed  bool

	// follow-up step after the crawl: playlist expansion or audio
	step      string
	stepDone  int
	stepTotal int
}

// ProgressDisplay renders crawl events of concurrent collections on one
// status line. In verbose mode every event gets its own line instead.
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	kinds     []soundcloud.Kind
	progress  map[soundcloud.Kind]*kindProgress
	startTime time.Time
	isVerbose bool
}

// NewProgressDisplay creates a display for kinds writing to stdout
func NewProgressDisplay(kinds []soundcloud.Kind, verbose bool) *ProgressDisplay {
	return NewProgressDisplayWithWriter(kinds, verbose, os.Stdout)
}

// NewProgressDisplayWithWriter creates a display writing to out
func NewProgressDisplayWithWriter(kinds []soundcloud.Kind, verbose bool, out io.Writer) *ProgressDisplay {
	p := &ProgressDisplay{
		out:       out,
		kinds:     kinds,
		progress:  make(map[soundcloud.Kind]*kindProgress, len(kinds)),
		startTime: time.Now(),
		isVerbose: verbose,
	}
	for _, k := range kinds {
		p.progress[k] = &kindProgress{}
	}
	return p
}

// Observe records a crawl event. Safe to call from several workers.
func (p *ProgressDisplay) Observe(e crawler.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kp, ok := p.progress[e.Kind]
	if !ok {
		kp = &kindProgress{}
		p.progress[e.Kind] = kp
		p.kinds = append(p.kinds, e.Kind)
	}

	switch e.Type {
	case crawler.EventPageFetched:
		kp.pages = e.Page
		kp.records = e.Total
	case crawler.EventBackoffPaused:
		kp.retries++
	case crawler.EventDone:
		kp.done = true
		kp.records = e.Total
	case crawler.EventFailed:
		kp.failed = true
	case crawler.EventExpandStarted:
		kp.step, kp.stepDone, kp.stepTotal = "expanding", 0, e.Total
	case crawler.EventAudioQueued:
		kp.step, kp.stepDone, kp.stepTotal = "audio", 0, e.Total
	case crawler.EventPlaylistExpanded, crawler.EventTrackSaved, crawler.EventTrackSkipped:
		kp.stepDone++
	}

	if p.isVerbose {
		p.printEvent(e)
	} else {
		p.printProgress()
	}
}

// printEvent prints one line per event
func (p *ProgressDisplay) printEvent(e crawler.Event) {
	switch e.Type {
	case crawler.EventPageFetched:
		fmt.Fprintf(p.out, "%s %s page %d • +%d • %d total\n",
			Magenta("→"), e.Kind, e.Page, e.Count, e.Total)
	case crawler.EventBackoffPaused:
		fmt.Fprintf(p.out, "%s %s paused %s after attempt %d: %v\n",
			Yellow("⚠"), e.Kind, formatDuration(e.Delay), e.Attempt, e.Err)
	case crawler.EventDone:
		fmt.Fprintf(p.out, "%s %s complete • %d records\n", Green("✓"), e.Kind, e.Total)
	case crawler.EventFailed:
		fmt.Fprintf(p.out, "%s %s failed: %v\n", Red("✗"), e.Kind, e.Err)
	case crawler.EventExpandStarted:
		fmt.Fprintf(p.out, "%s fetching full info of %d playlists\n", Magenta("→"), e.Total)
	case crawler.EventPlaylistStarted:
		fmt.Fprintf(p.out, "%s playlist %q (%d/%d)\n", Dim("•"), e.Title, e.Count+1, e.Total)
	case crawler.EventPlaylistExpanded:
		fmt.Fprintf(p.out, "%s playlist %q expanded\n", Green("✓"), e.Title)
	case crawler.EventAudioQueued:
		fmt.Fprintf(p.out, "%s downloading audio of %d liked tracks\n", Magenta("→"), e.Total)
	case crawler.EventTrackStarted:
		fmt.Fprintf(p.out, "%s track %q (%d/%d)\n", Dim("•"), e.Title, e.Count+1, e.Total)
	case crawler.EventTrackSaved:
		fmt.Fprintf(p.out, "%s saved %s\n", Green("✓"), e.Path)
	case crawler.EventTrackSkipped:
		fmt.Fprintf(p.out, "%s skipped track %q: %v\n", Yellow("•"), e.Title, e.Err)
	}
}

// printProgress redraws the status line
func (p *ProgressDisplay) printProgress() {
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 100), p.statusLine())
}

func (p *ProgressDisplay) statusLine() string {
	parts := make([]string, 0, len(p.kinds)+1)
	for _, kind := range p.kinds {
		kp := p.progress[kind]
		var mark string
		switch {
		case kp.failed:
			mark = Red("✗")
		case kp.done:
			mark = Green("✓")
		default:
			mark = Dim("…")
		}
		part := fmt.Sprintf("%s %d %s", Cyan(string(kind)), kp.records, mark)
		if kp.retries > 0 && !kp.done && !kp.failed {
			part += Yellow(fmt.Sprintf(" (%d retries)", kp.retries))
		}
		if kp.step != "" && !kp.failed {
			part += Dim(fmt.Sprintf(" %s %d/%d", kp.step, kp.stepDone, kp.stepTotal))
		}
		parts = append(parts, part)
	}
	parts = append(parts, Dim(formatDuration(time.Since(p.startTime))))
	return strings.Join(parts, " • ")
}

// Complete prints the final per-collection summary
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)
	total, failed := 0, 0
	for _, kind := range p.kinds {
		kp := p.progress[kind]
		if kp.failed {
			failed++
			continue
		}
		total += kp.records
	}

	if !p.isVerbose {
		fmt.Fprintln(p.out)
	}
	fmt.Fprintf(p.out, "\n%s Archived %d records from %d collections in %s\n",
		Green("✓"),
		total,
		len(p.kinds)-failed,
		formatDuration(elapsed),
	)
	if failed > 0 {
		fmt.Fprintf(p.out, "  %s %d collections failed\n", Dim("•"), failed)
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
