package serial

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Scheme is the URL scheme this transport is registered under. Client
// stacks select the poll-based driver by opening "pollserial:///dev/ttyUSB0".
const Scheme = "pollserial"

const schemeSeparator = "://"

// OpenFunc opens a device path with the scheme already removed.
type OpenFunc func(path string, opts ...Option) (Port, error)

var registry = struct {
	sync.RWMutex
	openers map[string]OpenFunc
}{openers: make(map[string]OpenFunc)}

func init() {
	Register(Scheme, Open)
}

// Register makes an opener available to OpenURL under scheme. Registering
// the same scheme twice replaces the previous opener.
func Register(scheme string, fn OpenFunc) {
	registry.Lock()
	defer registry.Unlock()
	registry.openers[strings.ToLower(scheme)] = fn
}

// Schemes lists the registered schemes in sorted order.
func Schemes() []string {
	registry.RLock()
	defer registry.RUnlock()

	schemes := make([]string, 0, len(registry.openers))
	for s := range registry.openers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// OpenURL opens "scheme://path" with the opener registered for scheme. A
// bare device path is opened with Open.
func OpenURL(url string, opts ...Option) (Port, error) {
	scheme, path, ok := strings.Cut(url, schemeSeparator)
	if !ok {
		return Open(url, opts...)
	}

	registry.RLock()
	fn, found := registry.openers[strings.ToLower(scheme)]
	registry.RUnlock()

	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return fn(path, opts...)
}

// StripScheme removes one leading pollserial:// so the OS receives a bare
// device path.
func StripScheme(path string) string {
	return strings.TrimPrefix(path, Scheme+schemeSeparator)
}

// URL returns the pollserial:// form of a device path.
func URL(path string) string {
	return Scheme + schemeSeparator + StripScheme(path)
}
