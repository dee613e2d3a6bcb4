package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Port represents a serial port connection interface.
//
// Read and Write follow the poll-based contract of this package rather than
// the strict io.Reader/io.Writer one: a Read may return fewer bytes than
// requested with a nil error when its timeout expires or it is aborted, and
// a Write may return a short count with a nil error when it is aborted or
// the write timeout is TimeoutNonBlocking.
type Port interface {
	io.ReadWriteCloser

	// ReadN reads up to size bytes and returns what was accumulated.
	ReadN(size int) ([]byte, error)
	ReadContext(ctx context.Context, buf []byte) (int, error)
	WriteContext(ctx context.Context, data []byte) (int, error)

	// AbortRead and AbortWrite wake an in-flight Read or Write from another
	// goroutine. The interrupted call returns what it transferred so far.
	AbortRead() error
	AbortWrite() error
	// ClearAborts discards wake-ups that no call has consumed. Call it with
	// no transfer in flight.
	ClearAborts() error

	Drain() error
	FlushInput() error
	FlushOutput() error

	Path() string
}

// port is the concrete implementation of the Port interface
type port struct {
	// mu keeps the descriptors alive while calls are in flight; Close takes
	// it exclusively only after waking every blocked call.
	mu      sync.RWMutex
	closing atomic.Bool
	closed  bool

	// One caller per direction at a time.
	readMu  sync.Mutex
	writeMu sync.Mutex

	fd         int
	path       string
	config     Config
	abortRead  *abortPipe
	abortWrite *abortPipe
	log        zerolog.Logger
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// Open opens a serial port with the given device path and options. The path
// may carry the pollserial:// scheme.
func Open(device string, opts ...Option) (Port, error) {
	config, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	path := StripScheme(device)

	flags := unix.O_RDWR | unix.O_NOCTTY | unix.O_NONBLOCK | unix.O_CLOEXEC
	if config.WriteMode == WriteModeSynced {
		flags |= unix.O_SYNC
	}

	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, openError(path, err)
	}

	if config.Exclusive {
		if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to set exclusive access on %s: %w", path, err)
		}
	}

	if err := configurePort(fd, config); err != nil {
		unix.Close(fd)
		return nil, err
	}

	p, err := newPort(fd, path, config)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	p.log.Debug().
		Int("baud", config.BaudRate).
		Str("framing", fmt.Sprintf("%d%s%d", config.DataBits, config.Parity, config.StopBits)).
		Dur("read_timeout", config.ReadTimeout).
		Dur("write_timeout", config.WriteTimeout).
		Msg("port opened")

	return p, nil
}

func openError(path string, err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("%w: %s", ErrDeviceInUse, path)
	default:
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
}

// newPort wraps an already open, non-blocking descriptor and creates the
// abort pipes. The descriptor is owned by the port from here on, except
// when an error is returned.
func newPort(fd int, path string, config Config) (*port, error) {
	abortRead, err := newAbortPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create read abort pipe: %w", err)
	}
	abortWrite, err := newAbortPipe()
	if err != nil {
		abortRead.close()
		return nil, fmt.Errorf("failed to create write abort pipe: %w", err)
	}

	return &port{
		fd:         fd,
		path:       path,
		config:     config,
		abortRead:  abortRead,
		abortWrite: abortWrite,
		log:        config.Logger.With().Str("device", path).Logger(),
	}, nil
}

// Path returns the device path without scheme
func (p *port) Path() string {
	return p.path
}

func (p *port) isOpen() bool {
	return !p.closed && !p.closing.Load()
}

// Close wakes any blocked call, then releases the device and the abort pipes.
func (p *port) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return ErrPortNotOpen
	}

	// Descriptors are only released under the write lock below.
	p.abortRead.signal()
	p.abortWrite.signal()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	err := unix.Close(p.fd)
	if perr := p.abortRead.close(); err == nil {
		err = perr
	}
	if perr := p.abortWrite.close(); err == nil {
		err = perr
	}

	p.log.Debug().Err(err).Msg("port closed")
	return err
}

// Read fills buf until it is full, the read timeout expires or the read is
// aborted.
func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return 0, ErrPortNotOpen
	}

	if err := p.lockRead(); err != nil {
		return 0, err
	}
	defer p.readMu.Unlock()

	return p.read(buf)
}

// ReadN reads up to size bytes. The result is shorter than size when the
// timeout expires or the read is aborted.
func (p *port) ReadN(size int) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return nil, ErrPortNotOpen
	}
	if size < 0 {
		return nil, fmt.Errorf("negative read size %d: %w", size, ErrInvalidConfig)
	}

	if err := p.lockRead(); err != nil {
		return nil, err
	}
	defer p.readMu.Unlock()

	buf := make([]byte, size)
	n, err := p.read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// lockRead waits for the read direction. A caller queued behind another
// reader when Close started gets ErrPortNotOpen: Close only wakes the call
// that is inside poll.
func (p *port) lockRead() error {
	p.readMu.Lock()
	if p.closing.Load() {
		p.readMu.Unlock()
		return ErrPortNotOpen
	}
	return nil
}

func (p *port) lockWrite() error {
	p.writeMu.Lock()
	if p.closing.Load() {
		p.writeMu.Unlock()
		return ErrPortNotOpen
	}
	return nil
}

func (p *port) read(buf []byte) (int, error) {
	t := newTimeout(p.config.ReadTimeout)
	n := 0

	for n < len(buf) {
		result, err := waitReady(p.fd, unix.POLLIN, p.abortRead, t)
		if err != nil {
			p.log.Debug().Err(err).Int("received", n).Msg("read failed while waiting")
			return 0, err
		}

		if result != pollReady {
			p.log.Debug().Stringer("result", result).Int("received", n).Int("requested", len(buf)).Msg("read stopped")
			return n, nil
		}

		m, err := unix.Read(p.fd, buf[n:])
		if err != nil {
			if !isTransient(err) {
				return 0, fmt.Errorf("%w: %w", ErrReadFailed, err)
			}
			m = 0
		}
		if m < 0 {
			m = 0
		}
		n += m

		if p.config.InterByteTimeout > 0 && m == 0 {
			break
		}
	}

	return n, nil
}

// Write writes data until everything is accepted, the write timeout expires
// or the write is aborted.
func (p *port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return 0, ErrPortNotOpen
	}

	if err := p.lockWrite(); err != nil {
		return 0, err
	}
	defer p.writeMu.Unlock()

	return p.write(data)
}

func (p *port) write(data []byte) (int, error) {
	t := newTimeout(p.config.WriteTimeout)
	written := 0

	for written < len(data) {
		n, err := unix.Write(p.fd, data[written:])
		if err != nil {
			if !isTransient(err) {
				p.log.Debug().Err(err).Int("written", written).Msg("write failed")
				return written, fmt.Errorf("%w: %w", ErrWriteFailed, err)
			}
			n = 0
		}
		if n < 0 {
			n = 0
		}
		written += n

		if t.nonBlocking() {
			return written, nil
		}
		if written == len(data) {
			break
		}

		result, err := waitReady(p.fd, unix.POLLOUT, p.abortWrite, t)
		if err != nil {
			p.log.Debug().Err(err).Int("written", written).Msg("write failed while waiting")
			return written, err
		}
		switch result {
		case pollTimeout:
			p.log.Debug().Int("written", written).Int("requested", len(data)).Msg("write timed out")
			return written, ErrWriteTimeout
		case pollAbort:
			p.log.Debug().Int("written", written).Int("requested", len(data)).Msg("write aborted")
			return written, nil
		}

		if t.expired() {
			return written, ErrWriteTimeout
		}
	}

	return written, nil
}

// ReadContext reads like Read and additionally aborts when ctx is done. A
// read cut short by ctx returns the partial count together with ctx.Err().
func (p *port) ReadContext(ctx context.Context, buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return 0, ErrPortNotOpen
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := p.lockRead(); err != nil {
		return 0, err
	}
	defer p.readMu.Unlock()

	var n int
	var err error
	p.abortOnDone(ctx, p.abortRead, func() {
		n, err = p.read(buf)
	})

	if err == nil && n < len(buf) && ctx.Err() != nil {
		return n, ctx.Err()
	}
	return n, err
}

// WriteContext writes like Write and additionally aborts when ctx is done. A
// write cut short by ctx returns the partial count together with ctx.Err().
func (p *port) WriteContext(ctx context.Context, data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return 0, ErrPortNotOpen
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := p.lockWrite(); err != nil {
		return 0, err
	}
	defer p.writeMu.Unlock()

	var n int
	var err error
	p.abortOnDone(ctx, p.abortWrite, func() {
		n, err = p.write(data)
	})

	if err == nil && n < len(data) && ctx.Err() != nil {
		return n, ctx.Err()
	}
	return n, err
}

// abortOnDone runs fn with pipe signalled once ctx is done. A signal that
// raced with fn finishing is drained before returning so it cannot wake
// the next call.
func (p *port) abortOnDone(ctx context.Context, pipe *abortPipe, fn func()) {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		if err := pipe.signal(); err != nil {
			p.log.Warn().Err(err).Msg("failed to signal abort pipe")
		}
	})

	fn()

	if !stop() {
		<-fired
		pipe.drain()
	}
}

// AbortRead wakes an in-flight Read.
func (p *port) AbortRead() error {
	return p.abort(p.abortRead)
}

// AbortWrite wakes an in-flight Write.
func (p *port) AbortWrite() error {
	return p.abort(p.abortWrite)
}

func (p *port) abort(pipe *abortPipe) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortNotOpen
	}
	return pipe.signal()
}

func (p *port) ClearAborts() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return ErrPortNotOpen
	}

	p.abortRead.drain()
	p.abortWrite.drain()
	return nil
}

// Drain waits until all output written to the port has been transmitted
func (p *port) Drain() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return ErrPortNotOpen
	}

	return unix.IoctlSetInt(p.fd, unix.TCSBRK, 1)
}

// FlushInput discards any unread input data
func (p *port) FlushInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return ErrPortNotOpen
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}

// FlushOutput discards any unwritten output data
func (p *port) FlushOutput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isOpen() {
		return ErrPortNotOpen
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCOFLUSH)
}
