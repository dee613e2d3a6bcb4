package models

import (
	"fmt"
	"time"

	"github.com/allbin/go-pollserial/internal/tui/components"
	"github.com/allbin/go-pollserial/internal/tui/keys"
	"github.com/allbin/go-pollserial/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Reader is the part of a port the monitor needs.
type Reader interface {
	ReadN(size int) ([]byte, error)
	AbortRead() error
	Path() string
}

// ReadIdleMsg reports a read that returned nothing: a timeout or an abort.
type ReadIdleMsg struct{}

// ReadErrorMsg reports a failed read. Reading stops.
type ReadErrorMsg struct {
	Err error
}

// MonitorModel shows incoming bursts. One read is in flight at a time and
// is issued as a tea.Cmd; pausing or quitting aborts it.
type MonitorModel struct {
	port      Reader
	chunkSize int

	table *components.TrafficTable
	help  help.Model
	keys  keys.MonitorKeys

	inFlight bool
	paused   bool
	quitting bool
	rxBytes  int
	err      error
	width    int
}

func NewMonitorModel(port Reader, chunkSize, history int) *MonitorModel {
	return &MonitorModel{
		port:      port,
		chunkSize: chunkSize,
		table:     components.NewTrafficTable(80, 20, history),
		help:      help.New(),
		keys:      keys.NewMonitorKeys(),
		width:     80,
	}
}

func (m *MonitorModel) Init() tea.Cmd {
	return m.read()
}

func (m *MonitorModel) read() tea.Cmd {
	if m.inFlight || m.paused || m.quitting || m.err != nil {
		return nil
	}
	m.inFlight = true
	port, size := m.port, m.chunkSize
	return func() tea.Msg {
		data, err := port.ReadN(size)
		if err != nil {
			return ReadErrorMsg{Err: err}
		}
		if len(data) == 0 {
			return ReadIdleMsg{}
		}
		return components.BurstMsg{Timestamp: time.Now(), Data: data, Direction: components.RX}
	}
}

func (m *MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		// title, table border and status bar
		m.table.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case components.BurstMsg:
		m.inFlight = false
		m.rxBytes += len(msg.Data)
		m.table.AddBurst(msg)
		return m, m.read()

	case ReadIdleMsg:
		m.inFlight = false
		return m, m.read()

	case ReadErrorMsg:
		m.inFlight = false
		m.err = msg.Err
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			if m.inFlight {
				_ = m.port.AbortRead()
			}
			return m, tea.Quit

		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			if m.paused {
				if m.inFlight {
					_ = m.port.AbortRead()
				}
				return m, nil
			}
			return m, m.read()

		case key.Matches(msg, m.keys.Clear):
			m.table.Clear()
			m.rxBytes = 0

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll

		case key.Matches(msg, m.keys.ToggleHex):
			m.table.ToggleHex()

		case key.Matches(msg, m.keys.ToggleASCII):
			m.table.ToggleASCII()

		case key.Matches(msg, m.keys.ToggleView):
			m.table.ToggleViewMode()

		default:
			return m, m.table.Update(msg)
		}
	}
	return m, nil
}

// Status reports what the status bar shows.
func (m *MonitorModel) Status() styles.Status {
	switch {
	case m.err != nil:
		return styles.StatusError
	case m.paused:
		return styles.StatusAborted
	case m.inFlight:
		return styles.StatusReading
	default:
		return styles.StatusIdle
	}
}

func (m *MonitorModel) Err() error {
	return m.err
}

func (m *MonitorModel) Table() *components.TrafficTable {
	return m.table
}

func (m *MonitorModel) statusBar() string {
	status := styles.StatusStyle(m.Status()).Render(m.Status().String())

	mode := m.table.GetDisplayMode()
	var display string
	switch {
	case mode.ShowHex && mode.ShowASCII:
		display = "HEX+ASCII"
	case mode.ShowHex:
		display = "HEX"
	case mode.ShowASCII:
		display = "ASCII"
	default:
		display = "BYTES"
	}

	info := fmt.Sprintf(" RX %d bytes │ %s │ %s ", m.rxBytes, m.table.GetViewMode(), display)
	if m.err != nil {
		info += "│ " + m.err.Error() + " "
	}

	bar := lipgloss.JoinHorizontal(lipgloss.Top, status, styles.StatusBarStyle.Render(info))
	return styles.StatusBarStyle.Width(m.width).Render(bar)
}

func (m *MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	title := styles.TitleStyle.Render("pollserial monitor " + m.port.Path())
	parts := []string{
		title,
		styles.ContentBorderStyle.Render(m.table.View()),
	}
	if m.help.ShowAll {
		parts = append(parts, styles.HelpBoxStyle.Render(m.help.View(m.keys)))
	} else {
		parts = append(parts, m.help.View(m.keys))
	}
	parts = append(parts, m.statusBar())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
