package adapter

import "errors"

// Link lifecycle errors. The dispatcher matches these with errors.Is and
// surfaces them to the HTTP caller without retrying.
var (
	// ErrNotOpen is returned by Write when the link is not open.
	ErrNotOpen = errors.New("link not open")

	// ErrOpenFailed wraps the underlying cause when acquiring the serial
	// handle fails. The link reverts to StateClosed.
	ErrOpenFailed = errors.New("link open failed")

	// ErrDisconnected is returned when the device drops out from under an
	// in-flight write. The handle is released and the link is StateClosed.
	ErrDisconnected = errors.New("link disconnected")
)

// State is the lifecycle state of the serial link.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Adapter defines the interface for printer link adapters. At most one
// underlying OS handle is open at any time; Open, Write and Close are
// serialized against each other by the implementation.
type Adapter interface {
	// Open acquires the device at path/baud. It is a no-op when the link
	// is already opening or open.
	Open(path string, baud int) error

	// Write sends data to the printer and waits for the bytes to drain to
	// the device before returning the byte count written.
	Write(data []byte) (int, error)

	// Close releases the handle. Best-effort; never fails.
	Close() error

	// State returns the current link state without blocking behind an
	// in-flight open or write.
	State() State

	// Path returns the device path of the current (or last) link.
	Path() string

	// Baud returns the baud rate of the current (or last) link.
	Baud() int
}
