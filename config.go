package serial

import (
	"time"

	"github.com/rs/zerolog"
)

// Timeout sentinels for ReadTimeout and WriteTimeout.
const (
	TimeoutInfinite    time.Duration = -1 // block until done or aborted
	TimeoutNonBlocking time.Duration = 0  // a single attempt, return whatever it produced
)

// WriteMode represents the write synchronization mode
type WriteMode int

const (
	WriteModeBuffered WriteMode = iota // Default: kernel buffers writes
	WriteModeSynced                    // O_SYNC: writes block until hardware transmission
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	default:
		return "N"
	}
}

// Config holds the configuration for a serial port
type Config struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   Parity

	// ReadTimeout bounds a whole Read call. TimeoutInfinite blocks until the
	// buffer is full or the read is aborted, TimeoutNonBlocking returns what
	// is already buffered.
	ReadTimeout time.Duration
	// WriteTimeout bounds a whole Write call, with the same sentinels.
	WriteTimeout time.Duration
	// InterByteTimeout, when positive, ends a read burst as soon as a
	// ready descriptor yields no data.
	InterByteTimeout time.Duration

	WriteMode WriteMode // Controls write synchronization behavior
	Exclusive bool      // TIOCEXCL after open

	Logger zerolog.Logger
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:         115200,
		DataBits:         8,
		StopBits:         1,
		Parity:           ParityNone,
		ReadTimeout:      2500 * time.Millisecond,
		WriteTimeout:     TimeoutInfinite,
		InterByteTimeout: 0,
		WriteMode:        WriteModeBuffered,
		Logger:           zerolog.Nop(),
	}
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if _, err := getBaudRate(rate); err != nil {
			return err
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		if parity < ParityNone || parity > ParityEven {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

func validTimeout(d time.Duration) bool {
	return d >= 0 || d == TimeoutInfinite
}

// WithReadTimeout sets the per-call read timeout
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if !validTimeout(timeout) {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the per-call write timeout
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if !validTimeout(timeout) {
			return ErrInvalidConfig
		}
		c.WriteTimeout = timeout
		return nil
	}
}

// WithInterByteTimeout enables burst-end detection on reads. Zero disables it.
func WithInterByteTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.InterByteTimeout = timeout
		return nil
	}
}

// WithWriteMode sets the write synchronization mode
func WithWriteMode(mode WriteMode) Option {
	return func(c *Config) error {
		c.WriteMode = mode
		return nil
	}
}

// WithSyncWrite enables synchronous writes (O_SYNC) for guaranteed transmission
func WithSyncWrite() Option {
	return func(c *Config) error {
		c.WriteMode = WriteModeSynced
		return nil
	}
}

// WithExclusive requests exclusive access to the tty
func WithExclusive() Option {
	return func(c *Config) error {
		c.Exclusive = true
		return nil
	}
}

// WithLogger sets the logger used for debug traces
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}
