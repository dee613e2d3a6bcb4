package serial

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const pollErrorEvents = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL

type pollResult int

const (
	pollTimeout pollResult = iota
	pollAbort
	pollReady
)

func (r pollResult) String() string {
	switch r {
	case pollAbort:
		return "abort"
	case pollReady:
		return "ready"
	default:
		return "timeout"
	}
}

// waitReady blocks in poll(2) until fd is ready for events, the abort pipe
// fires or the budget of t runs out. poll has no descriptor-number ceiling,
// unlike select, so this works in processes holding thousands of files.
//
// A device error condition wins over everything else, an abort wins over
// readiness. A fired abort pipe is drained before returning.
func waitReady(fd int, events int16, abort *abortPipe, t timeout) (pollResult, error) {
	fds := []unix.PollFd{
		{Fd: int32(fd), Events: events | pollErrorEvents},
		{Fd: int32(abort.rd), Events: unix.POLLIN | pollErrorEvents},
	}

	var n int
	var err error
	for {
		n, err = unix.Poll(fds, t.pollMillis())
		if errors.Is(err, unix.EINTR) {
			// The runtime preempts with signals; keep the original deadline.
			fds[0].Revents, fds[1].Revents = 0, 0
			continue
		}
		break
	}
	if err != nil {
		return pollTimeout, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return pollTimeout, nil
	}

	if fds[0].Revents&pollErrorEvents != 0 {
		return pollTimeout, ErrDeviceError
	}
	if fds[1].Revents != 0 {
		abort.drain()
		return pollAbort, nil
	}
	if fds[0].Revents&events != 0 {
		return pollReady, nil
	}
	return pollTimeout, nil
}

// isTransient reports OS conditions that mean "no progress this time".
func isTransient(err error) bool {
	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.EINPROGRESS) ||
		errors.Is(err, unix.EALREADY)
}
