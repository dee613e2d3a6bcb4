/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	serial "github.com/allbin/go-pollserial"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logger  = zerolog.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pollserial",
	Short: "Poll-based serial port tool",
	Long: `pollserial talks to serial devices through a poll(2) based transport
whose reads and writes can be aborted from another goroutine.

Ports are addressed by device path or by pollserial:// URL:
  pollserial listen /dev/ttyUSB0
  pollserial listen pollserial:///dev/ttyUSB0

Settings come from flags, POLLSERIAL_* environment variables or
$HOME/.pollserial.yaml, in that order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(viper.GetString("log-level"))
		if err != nil {
			return err
		}
		logger = l
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug().Str("file", used).Msg("using config file")
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pollserial.yaml)")
	flags.IntP("baud", "b", 115200, "Baud rate")
	flags.String("read-timeout", "2.5s", "Read timeout: duration, 0 for non-blocking, inf to block")
	flags.String("write-timeout", "inf", "Write timeout: duration, 0 for non-blocking, inf to block")
	flags.Duration("inter-byte-timeout", 0, "End a read after this much silence between bytes (0 = off)")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error")
	flags.Bool("exclusive", false, "Request exclusive access (TIOCEXCL)")

	for _, name := range []string{"baud", "read-timeout", "write-timeout", "inter-byte-timeout", "log-level", "exclusive"} {
		cobra.CheckErr(viper.BindPFlag(name, flags.Lookup(name)))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pollserial")
	}

	viper.SetEnvPrefix("POLLSERIAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(lvl).
		With().Timestamp().Logger(), nil
}

// parseTimeout accepts a duration, "0" for non-blocking and "inf" or "-1"
// for no timeout.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "inf", "infinite", "none", "-1":
		return serial.TimeoutInfinite, nil
	case "0":
		return serial.TimeoutNonBlocking, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: negative", s)
	}
	return d, nil
}

// portOptions turns the merged flag/env/file settings into port options.
func portOptions() ([]serial.Option, error) {
	readTimeout, err := parseTimeout(viper.GetString("read-timeout"))
	if err != nil {
		return nil, err
	}
	writeTimeout, err := parseTimeout(viper.GetString("write-timeout"))
	if err != nil {
		return nil, err
	}

	opts := []serial.Option{
		serial.WithBaudRate(viper.GetInt("baud")),
		serial.WithReadTimeout(readTimeout),
		serial.WithWriteTimeout(writeTimeout),
		serial.WithInterByteTimeout(viper.GetDuration("inter-byte-timeout")),
		serial.WithLogger(logger),
	}
	if viper.GetBool("exclusive") {
		opts = append(opts, serial.WithExclusive())
	}
	return opts, nil
}

// openPort opens a device path or pollserial:// URL with the configured
// options plus extra.
func openPort(url string, extra ...serial.Option) (serial.Port, error) {
	opts, err := portOptions()
	if err != nil {
		return nil, err
	}
	return serial.OpenURL(url, append(opts, extra...)...)
}
