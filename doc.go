// Package serial provides a poll(2)-based serial port transport for Linux
// with cancellable reads and writes.
//
// The usual select(2)-based drivers break once a process holds more than
// FD_SETSIZE (1024) descriptors: select cannot watch a descriptor numbered
// above that limit. This package waits with poll(2) instead, which has no
// such ceiling, and pairs every port with two abort pipes so a read or write
// blocked in the kernel can be woken from another goroutine.
//
// # Basic Usage
//
// Open a serial port with default configuration (115200 8N1):
//
//	port, err := serial.Open("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	n, err := port.Write([]byte("Hello"))
//	reply, err := port.ReadN(16)
//
// The device path may carry the pollserial:// scheme, which is how client
// stacks select this driver:
//
//	port, err := serial.OpenURL("pollserial:///dev/ttyUSB0")
//
// # Timeouts
//
// Each Read or Write computes a fixed deadline from the configured timeout
// when it starts:
//
//	port, err := serial.Open("/dev/ttyUSB0",
//	    serial.WithBaudRate(9600),
//	    serial.WithReadTimeout(100*time.Millisecond),
//	    serial.WithWriteTimeout(serial.TimeoutInfinite),
//	)
//
// A read that runs out of time returns the bytes it has with a nil error.
// A write that runs out of time fails with ErrWriteTimeout.
// TimeoutNonBlocking makes both calls return after a single attempt.
//
// # Cancellation
//
// AbortRead and AbortWrite wake a blocked call from any goroutine. The call
// returns what it transferred so far without an error, and the wake-up is
// consumed so later calls are unaffected:
//
//	go func() {
//	    <-stop
//	    port.AbortRead()
//	}()
//	data, err := port.ReadN(256)
//
// ReadContext and WriteContext do the same when a context is done and then
// report ctx.Err() for a cut-short transfer.
//
// # Error Handling
//
//	var (
//	    ErrPortNotOpen  // port closed or never opened
//	    ErrDeviceError  // poll reported POLLERR, POLLHUP or POLLNVAL
//	    ErrWriteTimeout // write could not finish before its deadline
//	    ErrWriteFailed  // write(2) failed with a non-transient errno
//	)
//
// Use errors.Is() for error type checking.
//
// # Default Configuration
//
//   - BaudRate: 115200
//   - DataBits: 8
//   - StopBits: 1
//   - Parity: None
//   - ReadTimeout: 2.5 seconds
//   - WriteTimeout: infinite
//   - InterByteTimeout: disabled
//   - WriteMode: Buffered
package serial
