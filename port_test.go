package serial

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// testFD is the test-owned end of a pipe. Close is idempotent so tests can
// hang up early without the cleanup closing a recycled descriptor.
type testFD struct {
	fd   int
	once sync.Once
}

func (f *testFD) Close() {
	f.once.Do(func() { unix.Close(f.fd) })
}

func newTestPipe(t *testing.T) (rd, wr int) {
	t.Helper()
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC))
	// One page keeps back-pressure tests quick.
	_, err := unix.FcntlInt(uintptr(fds[1]), unix.F_SETPIPE_SZ, 4096)
	require.NoError(t, err)
	return fds[0], fds[1]
}

// newReadPipePort returns a port reading from a pipe and the write end.
func newReadPipePort(t *testing.T, opts ...Option) (*port, *testFD) {
	t.Helper()
	rd, wr := newTestPipe(t)

	config, err := NewConfig(opts...)
	require.NoError(t, err)
	p, err := newPort(rd, "pipe-read", config)
	require.NoError(t, err)

	peer := &testFD{fd: wr}
	t.Cleanup(func() {
		p.Close()
		peer.Close()
	})
	return p, peer
}

// newWritePipePort returns a port writing into a pipe and the read end.
func newWritePipePort(t *testing.T, opts ...Option) (*port, *testFD) {
	t.Helper()
	rd, wr := newTestPipe(t)

	config, err := NewConfig(opts...)
	require.NoError(t, err)
	p, err := newPort(wr, "pipe-write", config)
	require.NoError(t, err)

	peer := &testFD{fd: rd}
	t.Cleanup(func() {
		p.Close()
		peer.Close()
	})
	return p, peer
}

func fillPipe(t *testing.T, fd int) int {
	t.Helper()
	chunk := make([]byte, 512)
	total := 0
	for {
		n, err := unix.Write(fd, chunk)
		if errors.Is(err, unix.EAGAIN) {
			return total
		}
		require.NoError(t, err)
		total += n
	}
}

func afterDelay(d time.Duration, fn func()) {
	go func() {
		time.Sleep(d)
		fn()
	}()
}

func TestReadPartialOnTimeout(t *testing.T) {
	p, peer := newReadPipePort(t, WithReadTimeout(100*time.Millisecond))

	_, err := unix.Write(peer.fd, []byte("AB"))
	require.NoError(t, err)

	start := time.Now()
	data, err := p.ReadN(4)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, []byte("AB"), data)
	require.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	require.Less(t, elapsed, time.Second)
}

func TestReadReturnsWhenFull(t *testing.T) {
	p, peer := newReadPipePort(t, WithReadTimeout(5*time.Second))

	_, err := unix.Write(peer.fd, []byte("hello world"))
	require.NoError(t, err)

	start := time.Now()
	data, err := p.ReadN(5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
	require.Less(t, time.Since(start), time.Second)

	buf := make([]byte, 6)
	n, err := p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, " world", string(buf))
}

func TestReadAccumulatesAcrossBursts(t *testing.T) {
	p, peer := newReadPipePort(t, WithReadTimeout(2*time.Second))

	afterDelay(20*time.Millisecond, func() { unix.Write(peer.fd, []byte("AB")) })
	afterDelay(60*time.Millisecond, func() { unix.Write(peer.fd, []byte("CD")) })

	data, err := p.ReadN(4)
	require.NoError(t, err)
	require.Equal(t, []byte("ABCD"), data)
}

func TestReadZeroSize(t *testing.T) {
	p, _ := newReadPipePort(t, WithReadTimeout(TimeoutInfinite))

	data, err := p.ReadN(0)
	require.NoError(t, err)
	require.Empty(t, data)

	n, err := p.Read(nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestReadNegativeSize(t *testing.T) {
	p, _ := newReadPipePort(t)

	_, err := p.ReadN(-1)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReadNonBlocking(t *testing.T) {
	p, peer := newReadPipePort(t, WithReadTimeout(TimeoutNonBlocking))

	start := time.Now()
	data, err := p.ReadN(10)
	require.NoError(t, err)
	require.Empty(t, data)
	require.Less(t, time.Since(start), 50*time.Millisecond)

	_, err = unix.Write(peer.fd, []byte("abc"))
	require.NoError(t, err)

	data, err = p.ReadN(10)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), data)
}

func TestReadAbortReturnsAccumulated(t *testing.T) {
	p, peer := newReadPipePort(t, WithReadTimeout(TimeoutInfinite))

	_, err := unix.Write(peer.fd, []byte("AB"))
	require.NoError(t, err)

	afterDelay(50*time.Millisecond, func() { p.AbortRead() })

	data, err := p.ReadN(4)
	require.NoError(t, err)
	require.Equal(t, []byte("AB"), data)
}

func TestReadAbortDoesNotLeak(t *testing.T) {
	const readTimeout = 300 * time.Millisecond
	p, _ := newReadPipePort(t, WithReadTimeout(readTimeout))

	afterDelay(30*time.Millisecond, func() { p.AbortRead() })

	start := time.Now()
	data, err := p.ReadN(1)
	require.NoError(t, err)
	require.Empty(t, data)
	require.Less(t, time.Since(start), readTimeout-50*time.Millisecond, "abort should end the read early")

	// A leaked wake-up would end this read immediately.
	start = time.Now()
	data, err = p.ReadN(1)
	require.NoError(t, err)
	require.Empty(t, data)
	require.GreaterOrEqual(t, time.Since(start), readTimeout-20*time.Millisecond)
}

func TestReadRepeatedAbortsDrained(t *testing.T) {
	p, _ := newReadPipePort(t, WithReadTimeout(200*time.Millisecond))

	// Several wake-ups before the read starts collapse into one abort.
	for i := 0; i < 5; i++ {
		require.NoError(t, p.AbortRead())
	}
	data, err := p.ReadN(1)
	require.NoError(t, err)
	require.Empty(t, data)

	start := time.Now()
	_, err = p.ReadN(1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestReadDeviceError(t *testing.T) {
	p, peer := newReadPipePort(t, WithReadTimeout(time.Second))

	_, err := unix.Write(peer.fd, []byte("AB"))
	require.NoError(t, err)
	peer.Close()

	data, err := p.ReadN(4)
	require.ErrorIs(t, err, ErrDeviceError)
	require.Nil(t, data)
}

func TestReadDeviceErrorWhileBlocked(t *testing.T) {
	p, peer := newReadPipePort(t, WithReadTimeout(TimeoutInfinite))

	afterDelay(50*time.Millisecond, peer.Close)

	buf := make([]byte, 4)
	n, err := p.Read(buf)
	require.ErrorIs(t, err, ErrDeviceError)
	require.Zero(t, n)
}

func TestReadHighDescriptorNumber(t *testing.T) {
	rd, wr := newTestPipe(t)
	peer := &testFD{fd: wr}
	defer peer.Close()

	// select(2) cannot watch descriptors at or above FD_SETSIZE.
	high, err := unix.FcntlInt(uintptr(rd), unix.F_DUPFD_CLOEXEC, 2048)
	unix.Close(rd)
	if err != nil {
		t.Skipf("cannot allocate descriptor above 2048: %v", err)
	}
	require.GreaterOrEqual(t, high, 2048)

	config, err := NewConfig(WithReadTimeout(time.Second))
	require.NoError(t, err)
	p, err := newPort(high, "pipe-high", config)
	require.NoError(t, err)
	defer p.Close()

	_, err = unix.Write(peer.fd, []byte("ok"))
	require.NoError(t, err)

	data, err := p.ReadN(2)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), data)
}

func TestWriteAllAcceptedImmediately(t *testing.T) {
	p, peer := newWritePipePort(t, WithWriteTimeout(time.Second))

	start := time.Now()
	n, err := p.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Less(t, time.Since(start), 100*time.Millisecond)

	buf := make([]byte, 16)
	m, err := unix.Read(peer.fd, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:m]))
}

func TestWriteTimeout(t *testing.T) {
	p, _ := newWritePipePort(t, WithWriteTimeout(100*time.Millisecond))
	fillPipe(t, p.fd)

	start := time.Now()
	n, err := p.Write([]byte("hello"))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrWriteTimeout)
	require.Zero(t, n)
	require.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	require.Less(t, elapsed, time.Second)
}

func TestWriteNonBlockingPartial(t *testing.T) {
	p, _ := newWritePipePort(t, WithWriteTimeout(TimeoutNonBlocking))

	data := make([]byte, 1<<20)
	start := time.Now()
	n, err := p.Write(data)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.Less(t, n, len(data))
	require.Less(t, time.Since(start), 50*time.Millisecond)

	// Pipe is full now: a single attempt accepts nothing and is not an error.
	n, err = p.Write(data)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWritePartialThenAbort(t *testing.T) {
	p, _ := newWritePipePort(t, WithWriteTimeout(TimeoutInfinite))

	afterDelay(50*time.Millisecond, func() { p.AbortWrite() })

	data := make([]byte, 1<<20)
	n, err := p.Write(data)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.Less(t, n, len(data))
}

func TestWriteCompletesAsReaderDrains(t *testing.T) {
	p, peer := newWritePipePort(t, WithWriteTimeout(5*time.Second))

	data := make([]byte, 32*1024)
	received := make(chan int, 1)
	go func() {
		total := 0
		buf := make([]byte, 1024)
		for total < len(data) {
			n, err := unix.Read(peer.fd, buf)
			if errors.Is(err, unix.EAGAIN) {
				time.Sleep(time.Millisecond)
				continue
			}
			if err != nil || n == 0 {
				break
			}
			total += n
		}
		received <- total
	}()

	n, err := p.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, len(data), <-received)
}

func TestWriteDeviceError(t *testing.T) {
	p, peer := newWritePipePort(t, WithWriteTimeout(TimeoutInfinite))
	fillPipe(t, p.fd)

	afterDelay(50*time.Millisecond, peer.Close)

	_, err := p.Write([]byte("hello"))
	require.ErrorIs(t, err, ErrDeviceError)
}

func TestWriteFailed(t *testing.T) {
	p, peer := newWritePipePort(t)
	peer.Close()

	_, err := p.Write([]byte("hello"))
	require.ErrorIs(t, err, ErrWriteFailed)
	require.ErrorIs(t, err, unix.EPIPE)
	require.Contains(t, err.Error(), "write failed")
}

func TestPortNotOpen(t *testing.T) {
	p, _ := newReadPipePort(t)
	require.NoError(t, p.Close())

	for _, size := range []int{-1, 0, 1, 1024} {
		_, err := p.ReadN(size)
		require.ErrorIs(t, err, ErrPortNotOpen, "ReadN(%d)", size)
	}

	_, err := p.Read(make([]byte, 4))
	require.ErrorIs(t, err, ErrPortNotOpen)
	_, err = p.Write([]byte("x"))
	require.ErrorIs(t, err, ErrPortNotOpen)
	_, err = p.Write(nil)
	require.ErrorIs(t, err, ErrPortNotOpen)
	_, err = p.ReadContext(context.Background(), make([]byte, 4))
	require.ErrorIs(t, err, ErrPortNotOpen)
	_, err = p.WriteContext(context.Background(), []byte("x"))
	require.ErrorIs(t, err, ErrPortNotOpen)

	require.ErrorIs(t, p.AbortRead(), ErrPortNotOpen)
	require.ErrorIs(t, p.AbortWrite(), ErrPortNotOpen)
	require.ErrorIs(t, p.Drain(), ErrPortNotOpen)
	require.ErrorIs(t, p.FlushInput(), ErrPortNotOpen)
	require.ErrorIs(t, p.FlushOutput(), ErrPortNotOpen)
	require.ErrorIs(t, p.Close(), ErrPortNotOpen)
	require.ErrorIs(t, p.Close(), ErrPortClosed)
}

func TestCloseWakesBlockedRead(t *testing.T) {
	p, _ := newReadPipePort(t, WithReadTimeout(TimeoutInfinite))

	closed := make(chan error, 1)
	afterDelay(50*time.Millisecond, func() { closed <- p.Close() })

	done := make(chan struct{})
	go func() {
		defer close(done)
		data, err := p.ReadN(8)
		assert.NoError(t, err)
		assert.Empty(t, data)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read was not woken by Close")
	}
	require.NoError(t, <-closed)
}

// closeWithQueuedCallers starts two calls in the same direction, so one of
// them waits for the other, and checks that Close still returns.
func closeWithQueuedCallers(t *testing.T, p *port, call func() error) {
	t.Helper()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- call() }()
	}
	time.Sleep(50 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- p.Close() }()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked by a queued caller")
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil {
				require.ErrorIs(t, err, ErrPortNotOpen)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("caller still blocked after Close")
		}
	}
}

func TestCloseWithQueuedReaders(t *testing.T) {
	p, _ := newReadPipePort(t, WithReadTimeout(TimeoutInfinite))

	closeWithQueuedCallers(t, p, func() error {
		_, err := p.ReadN(4)
		return err
	})
}

func TestCloseWithQueuedWriters(t *testing.T) {
	p, _ := newWritePipePort(t, WithWriteTimeout(TimeoutInfinite))
	fillPipe(t, p.fd)

	closeWithQueuedCallers(t, p, func() error {
		_, err := p.Write([]byte("blocked"))
		return err
	})
}

func TestCloseWithQueuedContextReaders(t *testing.T) {
	p, _ := newReadPipePort(t, WithReadTimeout(TimeoutInfinite))

	closeWithQueuedCallers(t, p, func() error {
		_, err := p.ReadContext(context.Background(), make([]byte, 4))
		return err
	})
}

func TestReadInterByteEndsOnEmptyRead(t *testing.T) {
	// A regular file always polls readable; at EOF the read yields nothing.
	path := filepath.Join(t.TempDir(), "burst")
	require.NoError(t, os.WriteFile(path, []byte("AB"), 0644))

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	require.NoError(t, err)

	config, err := NewConfig(WithReadTimeout(5*time.Second), WithInterByteTimeout(50*time.Millisecond))
	require.NoError(t, err)
	p, err := newPort(fd, path, config)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	start := time.Now()
	data, err := p.ReadN(8)
	require.NoError(t, err)
	require.Equal(t, []byte("AB"), data)
	require.Less(t, time.Since(start), time.Second, "empty read should end the burst")
}

func TestClearAborts(t *testing.T) {
	const readTimeout = 200 * time.Millisecond
	p, peer := newReadPipePort(t, WithReadTimeout(readTimeout))

	require.NoError(t, p.AbortRead())
	require.NoError(t, p.AbortWrite())
	require.NoError(t, p.ClearAborts())

	afterDelay(30*time.Millisecond, func() { unix.Write(peer.fd, []byte("AB")) })

	data, err := p.ReadN(2)
	require.NoError(t, err)
	require.Equal(t, []byte("AB"), data)

	require.NoError(t, p.Close())
	require.ErrorIs(t, p.ClearAborts(), ErrPortNotOpen)
}

func TestReadContextCancel(t *testing.T) {
	const readTimeout = 300 * time.Millisecond
	p, peer := newReadPipePort(t, WithReadTimeout(readTimeout))

	_, err := unix.Write(peer.fd, []byte("A"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	afterDelay(30*time.Millisecond, cancel)

	buf := make([]byte, 4)
	n, err := p.ReadContext(ctx, buf)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, n)
	require.Equal(t, byte('A'), buf[0])

	start := time.Now()
	data, err := p.ReadN(1)
	require.NoError(t, err)
	require.Empty(t, data)
	require.GreaterOrEqual(t, time.Since(start), readTimeout-20*time.Millisecond)
}

func TestReadContextCompletedIgnoresLateCancel(t *testing.T) {
	const readTimeout = 200 * time.Millisecond
	p, peer := newReadPipePort(t, WithReadTimeout(readTimeout))

	_, err := unix.Write(peer.fd, []byte("AB"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	buf := make([]byte, 2)
	n, err := p.ReadContext(ctx, buf)
	cancel()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	start := time.Now()
	_, err = p.ReadN(1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), readTimeout-20*time.Millisecond)
}

func TestReadContextAlreadyDone(t *testing.T) {
	p, peer := newReadPipePort(t)

	_, err := unix.Write(peer.fd, []byte("AB"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := p.ReadContext(ctx, make([]byte, 2))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, n)
}

func TestWriteContextDeadline(t *testing.T) {
	p, _ := newWritePipePort(t, WithWriteTimeout(TimeoutInfinite))
	fillPipe(t, p.fd)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	n, err := p.WriteContext(ctx, []byte("hello"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, n)
}

func TestConcurrentReadAndWrite(t *testing.T) {
	reader, readPeer := newReadPipePort(t, WithReadTimeout(2*time.Second))
	writer, writePeer := newWritePipePort(t, WithWriteTimeout(2*time.Second))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		data, err := reader.ReadN(3)
		assert.NoError(t, err)
		assert.Equal(t, []byte("xyz"), data)
	}()
	go func() {
		defer wg.Done()
		n, err := writer.Write([]byte("abc"))
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
	}()

	_, err := unix.Write(readPeer.fd, []byte("xyz"))
	require.NoError(t, err)
	wg.Wait()

	buf := make([]byte, 3)
	n, err := unix.Read(writePeer.fd, buf)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf[:n]))
}
