package bridge

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/det-frontend/printer-module/adapter"
	"github.com/det-frontend/printer-module/escpos"
)

// MockAdapter is a mock implementation of the Adapter interface for testing.
type MockAdapter struct {
	state     adapter.State
	path      string
	baud      int
	writeData []byte
	writeErr  error
	opens     int
}

func (m *MockAdapter) Open(path string, baud int) error {
	if m.state == adapter.StateOpen {
		return nil
	}
	m.opens++
	m.state = adapter.StateOpen
	m.path = path
	m.baud = baud
	return nil
}

func (m *MockAdapter) Write(data []byte) (int, error) {
	if m.state != adapter.StateOpen {
		return 0, adapter.ErrNotOpen
	}
	if m.writeErr != nil {
		m.state = adapter.StateClosed
		return 0, m.writeErr
	}
	m.writeData = append(m.writeData, data...)
	return len(data), nil
}

func (m *MockAdapter) Close() error {
	m.state = adapter.StateClosed
	return nil
}

func (m *MockAdapter) State() adapter.State { return m.state }

func (m *MockAdapter) Path() string { return m.path }

func (m *MockAdapter) Baud() int { return m.baud }

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestDispatcher(link adapter.Adapter) *Dispatcher {
	return New(link, Config{
		DefaultPath: "/dev/ttyUSB0",
		DefaultBaud: 9600,
		MaxPayload:  64,
	}, testLogger())
}

func TestOpenLinkUsesDefaults(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)

	status, err := d.OpenLink("", 0)
	require.NoError(t, err)
	assert.True(t, status.Opened)
	assert.Equal(t, "/dev/ttyUSB0", status.Path)
	assert.Equal(t, 9600, status.Baud)
}

func TestOpenLinkExplicitTarget(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)

	status, err := d.OpenLink("/dev/ttyACM1", 115200)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM1", status.Path)
	assert.Equal(t, 115200, status.Baud)
}

func TestOpenLinkIsIdempotent(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)

	_, err := d.OpenLink("", 0)
	require.NoError(t, err)
	status, err := d.OpenLink("", 0)
	require.NoError(t, err)
	assert.True(t, status.Opened)
	assert.Equal(t, 1, link.opens)
}

func TestWritesAgainstClosedLink(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)

	_, err := d.WriteHex("1B40")
	assert.ErrorIs(t, err, adapter.ErrNotOpen)

	_, err = d.WriteBase64("SGVsbG8=")
	assert.ErrorIs(t, err, adapter.ErrNotOpen)

	_, err = d.WriteRaw([]byte{0x1B, 0x40})
	assert.ErrorIs(t, err, adapter.ErrNotOpen)

	_, err = d.PrintVoucher(escpos.Station{}, escpos.Voucher{})
	assert.ErrorIs(t, err, adapter.ErrNotOpen)

	assert.Empty(t, link.writeData, "no bytes may reach a closed link")
}

func TestWriteHex(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)
	_, err := d.OpenLink("", 0)
	require.NoError(t, err)

	n, err := d.WriteHex("1B40")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0x1B, 0x40}, link.writeData)
}

func TestWriteHexInvalid(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)
	_, err := d.OpenLink("", 0)
	require.NoError(t, err)

	_, err = d.WriteHex("1B4")
	assert.ErrorIs(t, err, escpos.ErrInvalidEncoding)
	assert.Empty(t, link.writeData)
}

func TestWriteBase64(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)
	_, err := d.OpenLink("", 0)
	require.NoError(t, err)

	n, err := d.WriteBase64("SGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("Hello"), link.writeData)
}

func TestWriteRawTooLarge(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)
	_, err := d.OpenLink("", 0)
	require.NoError(t, err)

	_, err = d.WriteRaw(make([]byte, 65))
	assert.ErrorIs(t, err, escpos.ErrPayloadTooLarge)
}

func TestPrintVoucherDefaults(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)
	_, err := d.OpenLink("", 0)
	require.NoError(t, err)

	status, err := d.PrintVoucher(escpos.Station{}, escpos.Voucher{})
	require.NoError(t, err)
	assert.True(t, status.UsedDefaults)
	assert.Equal(t, len(link.writeData), status.Bytes)
	assert.Contains(t, string(link.writeData), escpos.DefaultStation().Name)
}

func TestPrintVoucherInvalidTimestamp(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)
	_, err := d.OpenLink("", 0)
	require.NoError(t, err)

	_, err = d.PrintVoucher(escpos.Station{}, escpos.Voucher{Timestamp: "2024-05-01"})
	assert.ErrorIs(t, err, escpos.ErrInvalidField)
	assert.Empty(t, link.writeData)
}

func TestDisconnectSurfacesVerbatim(t *testing.T) {
	link := &MockAdapter{writeErr: adapter.ErrDisconnected}
	d := newTestDispatcher(link)
	_, err := d.OpenLink("", 0)
	require.NoError(t, err)

	_, err = d.WriteHex("1B40")
	assert.ErrorIs(t, err, adapter.ErrDisconnected)

	// A disconnect is reflected in subsequent health queries.
	health := d.LinkHealth()
	assert.False(t, health.Open)
	assert.Equal(t, "closed", health.State)
}

func TestCloseLinkNeverFails(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)

	d.CloseLink()
	d.CloseLink()
	assert.Equal(t, adapter.StateClosed, link.State())
}

func TestLinkHealth(t *testing.T) {
	link := &MockAdapter{}
	d := newTestDispatcher(link)

	health := d.LinkHealth()
	assert.False(t, health.Open)

	_, err := d.OpenLink("", 0)
	require.NoError(t, err)

	health = d.LinkHealth()
	assert.True(t, health.Open)
	assert.Equal(t, "/dev/ttyUSB0", health.Path)
	assert.Equal(t, 9600, health.Baud)
	assert.Equal(t, "open", health.State)
}

func TestPorts(t *testing.T) {
	d := newTestDispatcher(&MockAdapter{})
	d.listPorts = func() ([]adapter.PortInfo, error) {
		return []adapter.PortInfo{{Path: "/dev/ttyUSB0", IsUSB: true, VID: "0483", PID: "5740"}}, nil
	}

	ports, err := d.Ports()
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, "/dev/ttyUSB0", ports[0].Path)
	assert.Equal(t, "0483", ports[0].VID)
}

func TestPortsError(t *testing.T) {
	d := newTestDispatcher(&MockAdapter{})
	d.listPorts = func() ([]adapter.PortInfo, error) {
		return nil, errors.New("enumeration unavailable")
	}

	_, err := d.Ports()
	assert.Error(t, err)
}
