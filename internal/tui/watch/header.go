package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// summary is what the header shows about the last scan.
type summary struct {
	Dir   string
	Alive int
	Stale int
}

func renderHeader(s summary, ticker Ticker, spinner Spinner, theme Theme, now time.Time, width int) string {
	innerWidth := width - 4

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(now.Format("15:04:05"))
	titleText := fmt.Sprintf(" WARDEN WATCH %s", tickerStr)

	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	stale := theme.Dim.Render(fmt.Sprintf("stale %d", s.Stale))
	if s.Stale > 0 {
		stale = theme.StatusStale.Render(fmt.Sprintf("stale %d", s.Stale))
	}
	statsLine := fmt.Sprintf(" %s  %s  %s",
		theme.StatusAlive.Render(fmt.Sprintf("running %d", s.Alive)),
		stale,
		theme.Dim.Render(s.Dir),
	)

	lastChange := "never"
	if !spinner.LastChange().IsZero() {
		lastChange = formatDuration(now.Sub(spinner.LastChange())) + " ago"
	}
	activityLine := fmt.Sprintf(" Last change: %s %s", lastChange, spinner.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
