/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port and wait until it has been transmitted.

Data can be provided as:
- Command line argument: pollserial send "Hello World" /dev/ttyUSB0
- From stdin (pipe): echo "test data" | pollserial send /dev/ttyUSB0
- Interactive mode: pollserial send /dev/ttyUSB0 (prompts for input)

The write is bounded by --timeout. When it expires the write is aborted
and the number of bytes accepted so far is reported.

Example usage:
  pollserial send "AT+GMR" /dev/ttyUSB0 --newline
  pollserial send 010300000001840a pollserial:///dev/ttyUSB0 --hex`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data string
		var portPath string

		if len(args) == 1 {
			portPath = args[0]
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading from stdin: %w", err)
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		} else {
			data = args[0]
			portPath = args[1]
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		payload := []byte(data)
		if hexMode {
			decoded, err := parseHexString(data)
			if err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
			payload = decoded
		} else if addNewline {
			payload = append(payload, '\n')
		}

		return sendData(cmd.Context(), portPath, payload, timeout)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().DurationP("timeout", "t", 5*time.Second, "Timeout for sending data")
}

func promptForData() string {
	promptStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99"))

	fmt.Print(promptStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

// parseHexString decodes hex digits, ignoring whitespace and 0x prefixes
func parseHexString(hexStr string) ([]byte, error) {
	hexStr = strings.Join(strings.Fields(hexStr), "")
	hexStr = strings.ReplaceAll(hexStr, "0x", "")
	hexStr = strings.ReplaceAll(hexStr, "0X", "")

	if len(hexStr)%2 != 0 {
		return nil, errors.New("hex string must have even length")
	}
	return hex.DecodeString(hexStr)
}

func sendData(ctx context.Context, portPath string, data []byte, timeout time.Duration) error {
	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("40")).
		Bold(true)

	fmt.Printf("%s Opening %s...\n", infoStyle.Render("⚡"), portPath)

	port, err := openPort(portPath)
	if err != nil {
		return err
	}
	defer port.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fmt.Printf("%s Sending %d bytes...\n", infoStyle.Render("📤"), len(data))

	n, err := port.WriteContext(ctx, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("send timed out after %v: %d of %d bytes accepted", timeout, n, len(data))
		}
		return fmt.Errorf("send failed after %d bytes: %w", n, err)
	}
	if n < len(data) {
		// Non-blocking write timeout: only what fit in the driver buffer.
		fmt.Printf("%s Only %d of %d bytes accepted\n", infoStyle.Render("!"), n, len(data))
	}

	if err := port.Drain(); err != nil {
		return fmt.Errorf("waiting for transmission: %w", err)
	}

	fmt.Printf("%s Sent %d bytes\n", successStyle.Render("✓"), n)

	preview := string(data[:n])
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	preview = strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return '·'
		}
		return r
	}, preview)

	fmt.Printf("%s Data: %s\n", infoStyle.Render("📋"), preview)

	return nil
}
