// Package modbus runs Modbus RTU over a pollserial port. Framing and CRC
// come from github.com/goburrow/modbus; this package supplies the byte
// transport, which can be aborted from another goroutine.
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	serial "github.com/allbin/go-pollserial"
)

var (
	ErrAborted             = errors.New("modbus: transfer aborted")
	ErrResponseTimeout     = errors.New("modbus: response timeout")
	ErrIncompleteWrite     = errors.New("modbus: request only partially written")
	ErrUnsupportedFunction = errors.New("modbus: unsupported function code")
)

const (
	rtuHeadSize      = 3
	rtuExceptionSize = 5
	rtuFixedSize     = 8
	exceptionBit     = 0x80
)

type phase int

const (
	phaseIdle phase = iota
	phaseWrite
	phaseRead
)

// Transporter implements the goburrow/modbus Transporter interface on top
// of a serial.Port. Requests are serialized.
type Transporter struct {
	mu           sync.Mutex
	port         serial.Port
	frameDelay   time.Duration
	lastActivity time.Time
	log          zerolog.Logger

	// phaseMu guards phase and aborted, which Abort reads from other
	// goroutines.
	phaseMu sync.Mutex
	phase   phase
	aborted bool
}

// NewTransporter wraps an open port. baudRate only determines the
// inter-frame gap.
func NewTransporter(port serial.Port, baudRate int, logger zerolog.Logger) *Transporter {
	return &Transporter{
		port:       port,
		frameDelay: frameDelay(baudRate),
		log:        logger.With().Str("component", "modbus").Logger(),
	}
}

// frameDelay is the 3.5 character silent interval of RTU. Above 19200 baud
// the interval is fixed at 1750µs.
func frameDelay(baudRate int) time.Duration {
	if baudRate <= 0 || baudRate > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(35000000/baudRate) * time.Microsecond
}

// Send writes one request ADU and reads the matching response ADU.
func (t *Transporter) Send(aduRequest []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Wake-ups left over from an earlier request must not cut this one short.
	if err := t.port.ClearAborts(); err != nil {
		return nil, fmt.Errorf("modbus: %w", err)
	}
	t.begin()
	defer t.enter(phaseIdle)

	if wait := time.Until(t.lastActivity.Add(t.frameDelay)); wait > 0 {
		time.Sleep(wait)
	}
	if t.wasAborted() {
		return nil, ErrAborted
	}

	t.log.Debug().Hex("request", aduRequest).Msg("sending")
	n, err := t.port.Write(aduRequest)
	t.lastActivity = time.Now()
	if err != nil {
		return nil, fmt.Errorf("modbus: write request: %w", err)
	}
	if n < len(aduRequest) {
		if t.wasAborted() {
			return nil, ErrAborted
		}
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrIncompleteWrite, n, len(aduRequest))
	}

	if !t.enter(phaseRead) {
		return nil, ErrAborted
	}

	head, err := t.port.ReadN(rtuHeadSize)
	if err != nil {
		return nil, fmt.Errorf("modbus: read response: %w", err)
	}
	if len(head) < rtuHeadSize {
		return nil, t.shortRead(head)
	}

	length, err := responseLength(head)
	if err != nil {
		return nil, err
	}

	rest, err := t.port.ReadN(length - rtuHeadSize)
	t.lastActivity = time.Now()
	if err != nil {
		return nil, fmt.Errorf("modbus: read response: %w", err)
	}
	response := append(head, rest...)
	if len(response) < length {
		return nil, t.shortRead(response)
	}

	t.log.Debug().Hex("response", response).Msg("received")
	return response, nil
}

func (t *Transporter) shortRead(got []byte) error {
	if t.wasAborted() {
		return ErrAborted
	}
	t.log.Debug().Hex("partial", got).Msg("response timeout")
	return fmt.Errorf("%w: got %d bytes", ErrResponseTimeout, len(got))
}

func (t *Transporter) begin() {
	t.phaseMu.Lock()
	defer t.phaseMu.Unlock()
	t.phase = phaseWrite
	t.aborted = false
}

// enter switches to p and reports whether the request is still live.
func (t *Transporter) enter(p phase) bool {
	t.phaseMu.Lock()
	defer t.phaseMu.Unlock()
	t.phase = p
	return !t.aborted
}

func (t *Transporter) wasAborted() bool {
	t.phaseMu.Lock()
	defer t.phaseMu.Unlock()
	return t.aborted
}

// Abort wakes a Send blocked in either direction. Only the direction in
// progress is signalled; with no request in flight Abort does nothing. It
// is safe to call from any goroutine.
func (t *Transporter) Abort() error {
	t.phaseMu.Lock()
	defer t.phaseMu.Unlock()

	switch t.phase {
	case phaseWrite:
		t.aborted = true
		return t.port.AbortWrite()
	case phaseRead:
		t.aborted = true
		return t.port.AbortRead()
	}
	return nil
}

// responseLength returns the full ADU length announced by a response head
// (slave id, function code, third byte).
func responseLength(head []byte) (int, error) {
	functionCode := head[1]
	if functionCode&exceptionBit != 0 {
		return rtuExceptionSize, nil
	}

	switch functionCode {
	case 1, 2, 3, 4, 23:
		return rtuExceptionSize + int(head[2]), nil
	case 5, 6, 15, 16:
		return rtuFixedSize, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedFunction, functionCode)
	}
}
