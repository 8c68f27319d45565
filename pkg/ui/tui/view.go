package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"zester/pkg/ui"
)

// View renders the entire TUI
func (m *Model) View() string {
	m.mu.RLock()
	width, height, showHelp := m.width, m.height, m.showHelp
	m.mu.RUnlock()

	if width == 0 || height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, logoStyle.Width(width).Render(ui.ASCIILogo))

	columnWidth := (width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(columnWidth),
		m.renderCollectionsPanel(columnWidth),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderBackoffPanel(columnWidth),
		m.renderLogsPanel(columnWidth, height),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if showHelp {
		sections = append(sections, m.renderHelp(width))
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to stop the run"))
	}

	return baseStyle.Width(width).Height(height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderStatsPanel(width int) string {
	stats := m.GetStats()
	title := titleStyle.Render(" RUN STATS ")

	lines := []string{
		statLine("Session Time:", formatDuration(time.Since(m.sessionStartTime))),
		statLine("Records:", fmt.Sprintf("%d", stats.Records)),
		statLine("Pages:", fmt.Sprintf("%d", stats.Pages)),
		statLine("Retries:", fmt.Sprintf("%d", stats.Retries)),
		statLine("Collections:", fmt.Sprintf("%d done, %d active, %d failed", stats.Done, stats.Active, stats.Failed)),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, lines...)),
	)
}

func statLine(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), statsValueStyle.Render(value))
}

func (m *Model) renderCollectionsPanel(width int) string {
	title := titleStyle.Render(" COLLECTIONS ")
	items := m.GetCollections()

	if len(items) == 0 {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, dimStyle.Render("Nothing to archive")),
		)
	}

	var rows []string
	for i := range items {
		rows = append(rows, m.renderCollection(&items[i], width-6))
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

// renderCollection renders one collection, with a progress bar while a
// follow-up step runs
func (m *Model) renderCollection(item *CollectionItem, width int) string {
	var mark string
	switch item.State {
	case StateDone:
		mark = successStyle.Render("✓")
	case StateFailed:
		mark = errorStyle.Render("✗")
	case StatePending:
		mark = dimStyle.Render("…")
	default:
		mark = m.spinner.View()
	}

	info := fmt.Sprintf("%s %s %s %s",
		mark,
		kindStyle.Render(string(item.Kind)),
		statsValueStyle.Render(fmt.Sprintf("%d records", item.Records)),
		stateStyle(item.State).Render(item.State.String()),
	)
	if item.State == StateFailed && item.Error != nil {
		info += "\n" + errorStyle.Render(truncate(item.Error.Error(), width))
	}
	if item.StepTotal == 0 || item.State == StateFailed {
		return info
	}

	m.mu.RLock()
	bar, ok := m.progressBars[item.Kind]
	m.mu.RUnlock()
	if !ok {
		return info
	}
	bar.Width = width - 12
	if bar.Width < 10 {
		bar.Width = 10
	}

	step := fmt.Sprintf("%d/%d", item.StepDone, item.StepTotal)
	if item.Current != "" {
		step += " " + truncate(item.Current, width-len(step)-2)
	}
	return lipgloss.JoinVertical(lipgloss.Left, info, bar.ViewAs(item.stepFraction()), dimStyle.Render(step))
}

// renderBackoffPanel lists collections waiting out a retry pause
func (m *Model) renderBackoffPanel(width int) string {
	title := titleStyle.Render(" BACKOFF ")

	var lines []string
	for _, item := range m.GetCollections() {
		if item.State != StateBackoff {
			continue
		}
		remaining := time.Until(item.PausedUntil)
		if remaining < 0 {
			remaining = 0
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			warningStyle.Render("⏸"),
			kindStyle.Render(string(item.Kind)),
			statsValueStyle.Render("resumes in "+formatDuration(remaining)),
		))
	}
	if len(lines) == 0 {
		lines = append(lines, successStyle.Render("No collection is paused"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderLogsPanel(width, height int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := logMessageStyle.Render(truncate(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = dimStyle.Render("No logs yet...")
	}

	logsHeight := height - 35
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp(width int) string {
	help := `
  Keys:
    q/Q      - Stop the run and quit
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Status:
    ` + successStyle.Render("Green") + `    - Collection stored
    ` + warningStyle.Render("Orange") + `   - Paused before a retry
    ` + errorStyle.Render("Red") + `      - Collection failed, nothing stored
`

	return panelStyle.Width(width).Render(help)
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// formatDuration formats a duration as MM:SS, or HH:MM:SS past an hour
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
