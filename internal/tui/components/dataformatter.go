package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-pollserial/internal/tui/styles"
)

// Direction of a burst on the line.
type Direction int

const (
	RX Direction = iota
	TX
)

func (d Direction) String() string {
	if d == TX {
		return "TX"
	}
	return "RX"
}

// BurstMsg carries one read or write result into the UI.
type BurstMsg struct {
	Timestamp time.Time
	Data      []byte
	Direction Direction
}

type DisplayMode struct {
	ShowHex   bool
	ShowASCII bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{mode: DisplayMode{ShowHex: showHex, ShowASCII: showASCII}}
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

// HexString renders bytes as space separated upper case hex.
func HexString(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// ASCIIString renders printable ASCII as is and everything else as '.'.
func ASCIIString(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// Fields returns the data columns for the current display mode.
func (df *DataFormatter) Fields(data []byte) []string {
	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, HexString(data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, ASCIIString(data))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d bytes", len(data)))
	}
	return parts
}

// FormatLine renders a burst as a single styled log line.
func (df *DataFormatter) FormatLine(msg BurstMsg) string {
	indicator := styles.RXStyle.Render("↙ RX")
	if msg.Direction == TX {
		indicator = styles.TXStyle.Render("↗ TX")
	}

	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, "HEX: "+HexString(msg.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+ASCIIString(msg.Data))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}

	timestamp := styles.TimestampStyle.Render("[" + msg.Timestamp.Format("15:04:05.000") + "]")
	return fmt.Sprintf("%s %s: %s", timestamp, indicator, strings.Join(parts, "  "))
}
