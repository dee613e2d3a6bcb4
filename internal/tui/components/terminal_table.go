package components

import (
	"strconv"

	"github.com/allbin/go-pollserial/internal/tui/styles"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	minTableWidth  = 80
	minTableHeight = 5

	timeWidth  = 14
	dirWidth   = 3
	bytesWidth = 6
)

type ViewMode int

const (
	ViewModeFollow ViewMode = iota
	ViewModeScroll
)

func (v ViewMode) String() string {
	if v == ViewModeScroll {
		return "SCROLL"
	}
	return "FOLLOW"
}

// TrafficTable lists bursts, newest last. In follow mode it sticks to the
// bottom; in scroll mode the cursor can be moved.
type TrafficTable struct {
	table     table.Model
	formatter *DataFormatter
	viewMode  ViewMode
	bursts    []BurstMsg
	maxRows   int
}

// NewTrafficTable keeps at most maxRows bursts; 0 keeps everything.
func NewTrafficTable(width, height, maxRows int) *TrafficTable {
	t := table.New(
		table.WithFocused(false),
		table.WithHeight(max(height, minTableHeight)),
		table.WithWidth(max(width, minTableWidth)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Text)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(styles.Surface1).
		Bold(false)
	t.SetStyles(s)

	tt := &TrafficTable{
		table:     t,
		formatter: NewDataFormatter(true, true),
		maxRows:   maxRows,
	}
	tt.updateColumns(width)
	return tt
}

func (tt *TrafficTable) SetSize(width, height int) {
	tt.updateColumns(width)
	tt.table.SetHeight(max(height, minTableHeight))
	tt.table.SetWidth(max(width, minTableWidth))
	tt.table.UpdateViewport()
}

func (tt *TrafficTable) columns(width int) []table.Column {
	width = max(width, minTableWidth)
	remaining := max(width-timeWidth-dirWidth-bytesWidth-10, 20)

	mode := tt.formatter.GetDisplayMode()
	columns := []table.Column{
		{Title: "Time", Width: timeWidth},
		{Title: "↕", Width: dirWidth},
	}
	switch {
	case mode.ShowHex && mode.ShowASCII:
		columns = append(columns,
			table.Column{Title: "Hex", Width: max(remaining*7/10, 20)},
			table.Column{Title: "ASCII", Width: max(remaining*3/10, 10)})
	case mode.ShowHex:
		columns = append(columns, table.Column{Title: "Hex", Width: remaining})
	case mode.ShowASCII:
		columns = append(columns, table.Column{Title: "ASCII", Width: remaining})
	default:
		columns = append(columns, table.Column{Title: "Data", Width: remaining})
	}
	return append(columns, table.Column{Title: "Bytes", Width: bytesWidth})
}

func (tt *TrafficTable) updateColumns(width int) {
	// Rows must match the new column count before the table re-renders.
	tt.table.SetRows(nil)
	tt.table.SetColumns(tt.columns(width))
	tt.refresh()
}

// Row renders one burst for the current display mode.
func (tt *TrafficTable) Row(msg BurstMsg) table.Row {
	dir := "↙"
	if msg.Direction == TX {
		dir = "↗"
	}
	row := table.Row{msg.Timestamp.Format("15:04:05.000"), dir}
	row = append(row, tt.formatter.Fields(msg.Data)...)
	return append(row, strconv.Itoa(len(msg.Data)))
}

func (tt *TrafficTable) AddBurst(msg BurstMsg) {
	tt.bursts = append(tt.bursts, msg)
	if tt.maxRows > 0 && len(tt.bursts) > tt.maxRows {
		tt.bursts = tt.bursts[len(tt.bursts)-tt.maxRows:]
	}
	tt.refresh()
}

func (tt *TrafficTable) Bursts() []BurstMsg {
	return tt.bursts
}

func (tt *TrafficTable) refresh() {
	rows := make([]table.Row, len(tt.bursts))
	for i, msg := range tt.bursts {
		rows[i] = tt.Row(msg)
	}
	tt.table.SetRows(rows)
	if tt.viewMode == ViewModeFollow {
		tt.table.GotoBottom()
	}
	tt.table.UpdateViewport()
}

func (tt *TrafficTable) Clear() {
	tt.bursts = nil
	tt.table.SetRows(nil)
}

func (tt *TrafficTable) ToggleHex() {
	tt.formatter.ToggleHex()
	tt.updateColumns(tt.table.Width())
}

func (tt *TrafficTable) ToggleASCII() {
	tt.formatter.ToggleASCII()
	tt.updateColumns(tt.table.Width())
}

func (tt *TrafficTable) GetDisplayMode() DisplayMode {
	return tt.formatter.GetDisplayMode()
}

func (tt *TrafficTable) GetViewMode() ViewMode {
	return tt.viewMode
}

// ToggleViewMode switches between following new bursts and scrolling.
func (tt *TrafficTable) ToggleViewMode() {
	if tt.viewMode == ViewModeFollow {
		tt.viewMode = ViewModeScroll
		tt.table.Focus()
	} else {
		tt.viewMode = ViewModeFollow
		tt.table.Blur()
		tt.table.GotoBottom()
	}
	tt.table.UpdateViewport()
}

func (tt *TrafficTable) Update(msg tea.Msg) tea.Cmd {
	if tt.viewMode != ViewModeScroll {
		return nil
	}
	var cmd tea.Cmd
	tt.table, cmd = tt.table.Update(msg)
	return cmd
}

func (tt *TrafficTable) View() string {
	return tt.table.View()
}
