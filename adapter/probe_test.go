package adapter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLink is a scripted Adapter for probe tests.
type mockLink struct {
	mu     sync.Mutex
	state  State
	path   string
	baud   int
	opens  int
	closes int
}

func (m *mockLink) Open(path string, baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	m.state = StateOpen
	m.path = path
	m.baud = baud
	return nil
}

func (m *mockLink) Write(data []byte) (int, error) {
	return 0, ErrNotOpen
}

func (m *mockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.state = StateClosed
	return nil
}

func (m *mockLink) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockLink) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

func (m *mockLink) Baud() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baud
}

func newTestProber(link Adapter, ports []string, listErr error) *Prober {
	p := NewProber(link, "/dev/ttyUSB0", 9600, time.Millisecond, testLogger())
	p.listPorts = func() ([]string, error) { return ports, listErr }
	return p
}

func TestProbeOpensWhenDevicePresent(t *testing.T) {
	link := &mockLink{}
	p := newTestProber(link, []string{"/dev/ttyS0", "/dev/ttyUSB0"}, nil)

	p.tick()

	assert.Equal(t, 1, link.opens)
	assert.Equal(t, "/dev/ttyUSB0", link.path)
	assert.Equal(t, 9600, link.baud)
}

func TestProbeSkipsWhenDeviceAbsent(t *testing.T) {
	link := &mockLink{}
	p := newTestProber(link, []string{"/dev/ttyS0"}, nil)

	p.tick()

	assert.Zero(t, link.opens)
	assert.Equal(t, StateClosed, link.State())
}

func TestProbeSkipsScanErrors(t *testing.T) {
	link := &mockLink{}
	p := newTestProber(link, nil, errors.New("scan failed"))

	p.tick()

	assert.Zero(t, link.opens)
}

func TestProbeClosesOnHotUnplug(t *testing.T) {
	link := &mockLink{}
	require.NoError(t, link.Open("/dev/ttyUSB0", 9600))

	p := newTestProber(link, []string{"/dev/ttyS0"}, nil)
	p.tick()

	assert.Equal(t, 1, link.closes)
	assert.Equal(t, StateClosed, link.State())
}

func TestProbeLeavesOpenLinkAlone(t *testing.T) {
	link := &mockLink{}
	require.NoError(t, link.Open("/dev/ttyUSB0", 9600))

	p := newTestProber(link, []string{"/dev/ttyUSB0"}, nil)
	p.tick()

	assert.Equal(t, 1, link.opens)
	assert.Zero(t, link.closes)
	assert.Equal(t, StateOpen, link.State())
}

func TestProberStartStop(t *testing.T) {
	link := &mockLink{}
	p := newTestProber(link, []string{"/dev/ttyUSB0"}, nil)

	p.Start()
	assert.Eventually(t, func() bool {
		return link.State() == StateOpen
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	// No ticks may run after Stop returns.
	link.mu.Lock()
	opens := link.opens
	link.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	link.mu.Lock()
	defer link.mu.Unlock()
	assert.Equal(t, opens, link.opens)
}
