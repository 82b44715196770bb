package adapter

import (
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Prober drives the link toward open whenever the configured device is
// present. One goroutine, fixed interval; each tick runs to completion
// (including its open attempt) before the next is scheduled, so ticks
// never overlap. The open attempt takes the adapter's own mutex, same as
// any caller.
//
// As the counterpart, a tick that finds the link open but the device gone
// from the port list closes the link, so a hot-unplug between writes is
// reflected in health instead of waiting for the next write to fail.
type Prober struct {
	link     Adapter
	path     string
	baud     int
	interval time.Duration

	// listPorts enumerates candidate device paths; replaced in tests.
	listPorts func() ([]string, error)

	logger logrus.FieldLogger
	stop   chan struct{}
	done   chan struct{}
}

// NewProber creates a probe loop for the given device. It does nothing
// until Start is called.
func NewProber(link Adapter, path string, baud int, interval time.Duration, logger logrus.FieldLogger) *Prober {
	return &Prober{
		link:      link,
		path:      path,
		baud:      baud,
		interval:  interval,
		listPorts: serial.GetPortsList,
		logger:    logger.WithField("component", "prober"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the probe loop in the background.
func (p *Prober) Start() {
	go p.run()
}

// Stop terminates the loop and waits for the in-flight tick to finish.
func (p *Prober) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Prober) run() {
	defer close(p.done)
	p.logger.Infof("probing for %s every %s", p.path, p.interval)
	for {
		p.tick()
		select {
		case <-p.stop:
			return
		case <-time.After(p.interval):
		}
	}
}

// tick reconciles the link state against the currently visible devices.
func (p *Prober) tick() {
	ports, err := p.listPorts()
	if err != nil {
		p.logger.WithError(err).Debug("port scan failed")
		return
	}
	present := containsPort(ports, p.path)

	switch p.link.State() {
	case StateClosed:
		if !present {
			return
		}
		if err := p.link.Open(p.path, p.baud); err != nil {
			p.logger.WithError(err).Warn("auto-open failed")
		}
	case StateOpen:
		if present || p.link.Path() != p.path {
			return
		}
		p.logger.Warnf("device %s removed, closing link", p.path)
		p.link.Close()
	}
}

func containsPort(ports []string, path string) bool {
	for _, p := range ports {
		if p == path {
			return true
		}
	}
	return false
}
