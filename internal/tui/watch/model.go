package watch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/warden/internal/procdir"
)

const defaultInterval = time.Second

// Source lists the markers currently on disk.
type Source interface {
	List() ([]procdir.Entry, error)
}

type tickMsg time.Time

type scanMsg struct {
	entries []procdir.Entry
	err     error
}

// Model is the bubbletea model of the watch view.
type Model struct {
	source   Source
	dir      string
	interval time.Duration
	now      func() time.Time

	width  int
	height int

	entries     []procdir.Entry
	fingerprint string
	scanned     time.Time
	lastError   string

	table   table.Model
	ticker  Ticker
	spinner Spinner
	theme   Theme
}

// New returns a model that scans src every interval. dir is only displayed.
func New(src Source, dir string, interval time.Duration) Model {
	if interval <= 0 {
		interval = defaultInterval
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "JID", Width: 20},
			{Title: "Function", Width: 24},
			{Title: "PID", Width: 8},
			{Title: "Age", Width: 8},
			{Title: "Args", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		source:   src,
		dir:      dir,
		interval: interval,
		now:      time.Now,
		table:    t,
		ticker:   NewTicker(),
		theme:    NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		scan(m.source),
		tick(m.interval),
		tea.EnterAltScreen,
	)
}

func scan(src Source) tea.Cmd {
	return func() tea.Msg {
		entries, err := src.List()
		return scanMsg{entries: entries, err: err}
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := msg.Height - 12; h > 3 {
			m.table.SetHeight(h)
		}

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay(m.now())
		return m, tea.Batch(scan(m.source), tick(m.interval))

	case scanMsg:
		m.scanned = m.now()
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.lastError = ""
		if fp := fingerprint(msg.entries); fp != m.fingerprint {
			if m.fingerprint != "" || len(msg.entries) > 0 {
				m.spinner.OnChange(m.scanned)
			}
			m.fingerprint = fp
		}
		m.entries = msg.entries
		m.table.SetRows(m.rows())
	}

	return m, nil
}

func fingerprint(entries []procdir.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.JID+":"+strconv.FormatBool(e.Alive))
	}
	return strings.Join(parts, ",")
}

func (m Model) rows() []table.Row {
	now := m.now()
	rows := make([]table.Row, 0, len(m.entries))
	for _, e := range m.entries {
		st := "●"
		if !e.Alive {
			st = "✗"
		}
		age := "-"
		if !e.StartedAt.IsZero() {
			age = formatDuration(now.Sub(e.StartedAt))
		}
		rows = append(rows, table.Row{
			st,
			e.JID,
			e.Fun,
			strconv.Itoa(e.PID),
			age,
			strings.Join(e.Arg, " "),
		})
	}
	return rows
}

func (m Model) summary() summary {
	s := summary{Dir: m.dir}
	for _, e := range m.entries {
		if e.Alive {
			s.Alive++
		} else {
			s.Stale++
		}
	}
	return s
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing watch..."
	}

	header := renderHeader(m.summary(), m.ticker, m.spinner, m.theme, m.now(), m.width)

	body := m.table.View()
	if len(m.entries) == 0 {
		body = m.theme.Dim.Render(" no jobs in flight")
	}

	parts := []string{header, body}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusError.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Navigate • ✗ marks a stale marker"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
