package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Catppuccin Mocha colors used by the monitor
var (
	Surface0 = lipgloss.Color("#313244")
	Surface1 = lipgloss.Color("#45475a")
	Overlay0 = lipgloss.Color("#6c7086")
	Subtext0 = lipgloss.Color("#a6adc8")
	Text     = lipgloss.Color("#cdd6f4")
	Sky      = lipgloss.Color("#89dceb")
	Green    = lipgloss.Color("#a6e3a1")
	Yellow   = lipgloss.Color("#f9e2af")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")
	Mauve    = lipgloss.Color("#cba6f7")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Mauve).
			Background(Surface0).
			Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(Subtext0).
			Background(Surface0)

	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(Surface1)

	HelpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Overlay0).
			Padding(1, 2)

	TimestampStyle = lipgloss.NewStyle().Foreground(Subtext0)
	RXStyle        = lipgloss.NewStyle().Foreground(Sky).Bold(true)
	TXStyle        = lipgloss.NewStyle().Foreground(Peach).Bold(true)
)

// Status is the state of the port as shown in the status bar.
type Status int

const (
	StatusReading Status = iota
	StatusIdle
	StatusAborted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusReading:
		return "READING"
	case StatusIdle:
		return "IDLE"
	case StatusAborted:
		return "ABORTED"
	default:
		return "ERROR"
	}
}

// StatusStyle returns the style for a status indicator.
func StatusStyle(status Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Background(Surface0).Padding(0, 1)
	switch status {
	case StatusReading:
		return base.Foreground(Green)
	case StatusIdle, StatusAborted:
		return base.Foreground(Yellow)
	default:
		return base.Foreground(Red)
	}
}
