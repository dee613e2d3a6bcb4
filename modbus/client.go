package modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	serial "github.com/allbin/go-pollserial"
)

const defaultTimeout = time.Second

// Config describes one RTU slave behind a serial line.
type Config struct {
	URL      string // pollserial:///dev/ttyUSB0 or a bare device path
	SlaveID  byte
	BaudRate int
	// Timeout bounds each response. Defaults to one second.
	Timeout time.Duration
	Logger  zerolog.Logger
	Options []serial.Option
}

// Client is a Modbus client whose transfers can be aborted.
type Client struct {
	modbus.Client
	transporter *Transporter
	port        serial.Port
}

// Dial opens the serial line and returns a client for cfg.SlaveID.
func Dial(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("modbus: URL required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = serial.DefaultConfig().BaudRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	opts := append([]serial.Option{
		serial.WithBaudRate(cfg.BaudRate),
		serial.WithReadTimeout(cfg.Timeout),
		serial.WithWriteTimeout(cfg.Timeout),
		serial.WithLogger(cfg.Logger),
	}, cfg.Options...)

	// A request must go out whole; a single write attempt cannot promise that.
	portCfg, err := serial.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("modbus: %w", err)
	}
	if portCfg.WriteTimeout == serial.TimeoutNonBlocking {
		return nil, fmt.Errorf("%w: modbus needs a blocking write timeout", serial.ErrInvalidConfig)
	}

	port, err := serial.OpenURL(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("modbus: open %s: %w", cfg.URL, err)
	}

	return NewClient(port, cfg.SlaveID, cfg.BaudRate, cfg.Logger), nil
}

// NewClient builds a client on an already open port.
func NewClient(port serial.Port, slaveID byte, baudRate int, logger zerolog.Logger) *Client {
	// Only the packager half of the handler is used; its own serial
	// transport is never connected.
	packager := modbus.NewRTUClientHandler(port.Path())
	packager.SlaveId = slaveID

	transporter := NewTransporter(port, baudRate, logger)
	return &Client{
		Client:      modbus.NewClient2(packager, transporter),
		transporter: transporter,
		port:        port,
	}
}

// Abort interrupts the request in flight. It does nothing between requests.
func (c *Client) Abort() error {
	return c.transporter.Abort()
}

func (c *Client) Close() error {
	return c.port.Close()
}

// Registers decodes big-endian 16-bit register values.
func Registers(data []byte) []uint16 {
	regs := make([]uint16, len(data)/2)
	for i := range regs {
		regs[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return regs
}
