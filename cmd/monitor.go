/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/allbin/go-pollserial/internal/tui/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port>",
	Short: "Show incoming traffic in an interactive table",
	Long: `Show incoming serial traffic in a terminal UI.

Each received burst becomes a table row with time, hex, ASCII and length.
Pausing aborts the read in flight; quitting aborts it before the port is
closed.

Keys:
  p/space  pause or resume reading
  h / a    toggle hex / ASCII columns
  v        switch between follow and scroll mode
  c        clear
  ?        help
  q        quit

Example usage:
  pollserial monitor /dev/ttyUSB0 --inter-byte-timeout 20ms`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bufferSize, _ := cmd.Flags().GetInt("buffer")
		history, _ := cmd.Flags().GetInt("history")
		if bufferSize <= 0 {
			return fmt.Errorf("buffer size must be positive, got %d", bufferSize)
		}

		port, err := openPort(args[0])
		if err != nil {
			return err
		}
		defer port.Close()

		m := models.NewMonitorModel(port, bufferSize, history)
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return err
		}
		return m.Err()
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().Int("buffer", 1024, "Maximum bytes per read")
	monitorCmd.Flags().Int("history", 5000, "Rows kept in the table (0 = unlimited)")
}
