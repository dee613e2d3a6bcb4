package serial

import "errors"

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrDeviceInUse      = errors.New("serial device already in use")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidConfig    = errors.New("invalid serial configuration")
	ErrUnknownScheme    = errors.New("unknown serial URL scheme")

	// I/O errors
	ErrPortNotOpen  = errors.New("attempting to use a port that is not open")
	ErrDeviceError  = errors.New("device reports error (poll)")
	ErrWriteTimeout = errors.New("write timeout")
	ErrWriteFailed  = errors.New("write failed")
	ErrReadFailed   = errors.New("read failed")
)

// ErrPortClosed is kept for callers written against the blocking driver.
var ErrPortClosed = ErrPortNotOpen
