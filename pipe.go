package serial

import (
	"errors"

	"golang.org/x/sys/unix"
)

// abortPipe is a self-pipe used to wake a goroutine blocked in poll(2).
// Both ends are non-blocking: signal never blocks on a full pipe and drain
// stops as soon as the pipe is empty.
type abortPipe struct {
	rd int
	wr int
}

func newAbortPipe() (*abortPipe, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	return &abortPipe{rd: fds[0], wr: fds[1]}, nil
}

// signal writes a single wake-up byte. A full pipe already holds a pending
// wake-up, so EAGAIN is not an error.
func (p *abortPipe) signal() error {
	_, err := unix.Write(p.wr, []byte{'x'})
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return err
	}
	return nil
}

// drain consumes every pending wake-up byte.
func (p *abortPipe) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.rd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n <= 0 {
			return
		}
	}
}

func (p *abortPipe) close() error {
	err1 := unix.Close(p.rd)
	err2 := unix.Close(p.wr)
	if err1 != nil {
		return err1
	}
	return err2
}
