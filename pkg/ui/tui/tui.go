// Package tui is the full-screen progress view of an archive run.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"zester/pkg/crawler"
	"zester/pkg/soundcloud"
)

// TUI represents the terminal user interface
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a TUI tracking kinds. opts are passed to the program; the
// alternate screen is always used.
func NewTUI(kinds []soundcloud.Kind, opts ...tea.ProgramOption) *TUI {
	model := NewModel(kinds)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)

	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Start runs the TUI until it is stopped or the user quits
func (t *TUI) Start() error {
	go func() {
		time.Sleep(100 * time.Millisecond)
		t.program.Send(TickMsg(time.Now()))
	}()

	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// Observe forwards a crawl event. It fits archiver.Options.OnEvent and is
// safe to call from every worker.
func (t *TUI) Observe(e crawler.Event) {
	t.Send(EventMsg{Event: e})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}

// Collections returns the last known state of every collection
func (t *TUI) Collections() []CollectionItem {
	return t.model.GetCollections()
}
