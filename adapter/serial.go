package adapter

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// SerialAdapter manages the single serial printer link. All handle
// operations run under one mutex so an open cannot race a write and two
// writes cannot interleave their bytes on the wire. The state word is
// read atomically so health queries never block behind an in-flight
// open or drain.
type SerialAdapter struct {
	mu    sync.Mutex
	state atomic.Int32
	port  serial.Port

	infoMu sync.Mutex
	path   string
	baud   int

	// openPort acquires the OS handle; replaced in tests.
	openPort func(path string, mode *serial.Mode) (serial.Port, error)

	logger logrus.FieldLogger
}

// NewSerialAdapter creates a serial adapter in the closed state.
func NewSerialAdapter(logger logrus.FieldLogger) *SerialAdapter {
	return &SerialAdapter{
		openPort: serial.Open,
		logger:   logger.WithField("component", "link"),
	}
}

// Open acquires the serial handle at path/baud (8N1). If the link is
// already opening or open it returns nil without a second acquisition:
// concurrent callers queue on the mutex and observe the open state.
func (a *SerialAdapter) Open(path string, baud int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.State() {
	case StateOpening, StateOpen:
		return nil
	}

	a.setState(StateOpening)
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := a.openPort(path, mode)
	if err != nil {
		a.setState(StateClosed)
		a.logger.WithError(err).Warnf("failed to open %s @ %d", path, baud)
		return fmt.Errorf("%w: %s: %v", ErrOpenFailed, path, err)
	}

	a.port = port
	a.infoMu.Lock()
	a.path = path
	a.baud = baud
	a.infoMu.Unlock()
	a.setState(StateOpen)
	a.logger.Infof("opened %s @ %d", path, baud)
	return nil
}

// Write sends data to the printer and waits for the full buffer to drain
// to the device. A write or drain failure is treated as a disconnect:
// the handle is released, the link reverts to closed and the in-flight
// write fails with ErrDisconnected.
func (a *SerialAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.State() != StateOpen {
		return 0, ErrNotOpen
	}

	n, err := a.port.Write(data)
	if err == nil {
		err = a.port.Drain()
	}
	if err != nil {
		a.dropLocked()
		a.logger.WithError(err).Error("device lost mid-write")
		return n, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	return n, nil
}

// Close releases the handle if one is held. Best-effort: release errors
// are logged and discarded, and the link always ends up closed.
func (a *SerialAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.State() != StateOpen {
		a.setState(StateClosed)
		return nil
	}

	if err := a.port.Drain(); err != nil {
		a.logger.WithError(err).Debug("drain on close failed")
	}
	a.dropLocked()
	a.logger.Infof("closed %s", a.Path())
	return nil
}

// dropLocked releases the handle and marks the link closed. Callers hold mu.
func (a *SerialAdapter) dropLocked() {
	if a.port != nil {
		if err := a.port.Close(); err != nil {
			a.logger.WithError(err).Debug("handle release failed")
		}
		a.port = nil
	}
	a.setState(StateClosed)
}

// State returns the current link state.
func (a *SerialAdapter) State() State {
	return State(a.state.Load())
}

func (a *SerialAdapter) setState(s State) {
	a.state.Store(int32(s))
}

// Path returns the device path of the current (or last opened) link.
func (a *SerialAdapter) Path() string {
	a.infoMu.Lock()
	defer a.infoMu.Unlock()
	return a.path
}

// Baud returns the baud rate of the current (or last opened) link.
func (a *SerialAdapter) Baud() int {
	a.infoMu.Lock()
	defer a.infoMu.Unlock()
	return a.baud
}
