/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/allbin/go-pollserial/internal/tui/components"
	"github.com/spf13/cobra"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen <port>",
	Short: "Print incoming data on a serial port",
	Long: `Print incoming data on a serial port as timestamped hex/ASCII lines.

Each read returns when the buffer is full, the read timeout expires or the
inter-byte timeout detects the end of a burst. Ctrl+C aborts the read in
flight, so the command stops immediately even with --read-timeout inf.

With --output the raw bytes are also appended to a file.

Example usage:
  pollserial listen /dev/ttyUSB0
  pollserial listen pollserial:///dev/ttyUSB0 --read-timeout inf --inter-byte-timeout 20ms
  pollserial listen /dev/ttyUSB0 --raw --output capture.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bufferSize, _ := cmd.Flags().GetInt("buffer")
		rawMode, _ := cmd.Flags().GetBool("raw")
		noHex, _ := cmd.Flags().GetBool("no-hex")
		noASCII, _ := cmd.Flags().GetBool("no-ascii")
		outputPath, _ := cmd.Flags().GetString("output")

		if bufferSize <= 0 {
			return fmt.Errorf("buffer size must be positive, got %d", bufferSize)
		}

		port, err := openPort(args[0])
		if err != nil {
			return err
		}
		defer port.Close()

		var capture io.Writer
		if outputPath != "" {
			file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open output file: %w", err)
			}
			defer file.Close()
			capture = file
		}

		var stopping atomic.Bool
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			<-sigChan
			stopping.Store(true)
			if err := port.AbortRead(); err != nil {
				logger.Debug().Err(err).Msg("abort on signal")
			}
		}()

		fmt.Fprintf(os.Stderr, "Listening on %s, press Ctrl+C to stop\n", port.Path())

		l := &listener{
			port:      port,
			bufSize:   bufferSize,
			out:       os.Stdout,
			capture:   capture,
			raw:       rawMode,
			formatter: components.NewDataFormatter(!noHex, !noASCII),
			stopping:  &stopping,
		}
		start := time.Now()
		total, err := l.run()
		fmt.Fprintf(os.Stderr, "\nReceived %d bytes in %v\n", total, time.Since(start).Round(time.Millisecond))
		return err
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().Int("buffer", 4096, "Maximum bytes per read")
	listenCmd.Flags().Bool("raw", false, "Write received bytes unformatted to stdout")
	listenCmd.Flags().Bool("no-hex", false, "Hide the hex column")
	listenCmd.Flags().Bool("no-ascii", false, "Hide the ASCII column")
	listenCmd.Flags().StringP("output", "o", "", "Append received bytes to this file")
}

type burstReader interface {
	ReadN(size int) ([]byte, error)
}

type listener struct {
	port      burstReader
	bufSize   int
	out       io.Writer
	capture   io.Writer
	raw       bool
	formatter *components.DataFormatter
	stopping  *atomic.Bool
}

// run reads until stopping is set and a read comes back empty, or a read
// fails. It returns the number of bytes received.
func (l *listener) run() (int64, error) {
	var total int64
	for {
		data, err := l.port.ReadN(l.bufSize)
		if err != nil {
			return total, fmt.Errorf("read error: %w", err)
		}
		if len(data) == 0 {
			if l.stopping.Load() {
				return total, nil
			}
			continue
		}

		total += int64(len(data))
		if l.capture != nil {
			if _, err := l.capture.Write(data); err != nil {
				return total, fmt.Errorf("write error: %w", err)
			}
		}
		if l.raw {
			_, err = l.out.Write(data)
		} else {
			_, err = fmt.Fprintln(l.out, l.formatter.FormatLine(components.BurstMsg{
				Timestamp: time.Now(),
				Data:      data,
				Direction: components.RX,
			}))
		}
		if err != nil {
			return total, fmt.Errorf("write error: %w", err)
		}
	}
}
