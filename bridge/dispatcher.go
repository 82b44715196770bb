// Package bridge maps inbound printer commands onto the encoder and the
// serial link, and normalizes the outcome: a byte count on success, a
// typed failure otherwise. It never retries a failed write.
package bridge

import (
	"github.com/sirupsen/logrus"

	"github.com/det-frontend/printer-module/adapter"
	"github.com/det-frontend/printer-module/escpos"
)

// DefaultMaxPayload caps write-binary bodies when no limit is configured.
const DefaultMaxPayload = 2 << 20 // 2 MiB

// Config holds the dispatcher's defaults for open and write commands.
type Config struct {
	// DefaultPath and DefaultBaud back an open command that omits them.
	DefaultPath string
	DefaultBaud int

	// MaxPayload caps write-binary bodies; DefaultMaxPayload when zero.
	MaxPayload int
}

// Dispatcher validates command envelopes and drives the link.
type Dispatcher struct {
	link adapter.Adapter
	cfg  Config

	// listPorts backs the read-only ports query; replaced in tests.
	listPorts func() ([]adapter.PortInfo, error)

	logger logrus.FieldLogger
}

// New creates a dispatcher over the given link.
func New(link adapter.Adapter, cfg Config, logger logrus.FieldLogger) *Dispatcher {
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	return &Dispatcher{
		link:      link,
		cfg:       cfg,
		listPorts: adapter.ListPorts,
		logger:    logger.WithField("component", "dispatch"),
	}
}

// OpenStatus reports the link after an open command.
type OpenStatus struct {
	Opened bool   `json:"opened"`
	Path   string `json:"path"`
	Baud   int    `json:"baud"`
}

// Health reports the link for the read-only health query.
type Health struct {
	Path  string `json:"path"`
	Baud  int    `json:"baud"`
	Open  bool   `json:"open"`
	State string `json:"state"`
}

// VoucherStatus reports a print-voucher command.
type VoucherStatus struct {
	Bytes        int  `json:"bytes"`
	UsedDefaults bool `json:"usedDefaults"`
}

// OpenLink opens the serial link. An empty path or zero baud falls back
// to the configured defaults. Opening an already-open link is a no-op
// that reports the current status.
func (d *Dispatcher) OpenLink(path string, baud int) (OpenStatus, error) {
	if path == "" {
		path = d.cfg.DefaultPath
	}
	if baud <= 0 {
		baud = d.cfg.DefaultBaud
	}
	if err := d.link.Open(path, baud); err != nil {
		return OpenStatus{}, err
	}
	return OpenStatus{
		Opened: d.link.State() == adapter.StateOpen,
		Path:   d.link.Path(),
		Baud:   d.link.Baud(),
	}, nil
}

// CloseLink closes the link. Never fails.
func (d *Dispatcher) CloseLink() {
	d.link.Close()
}

// WriteHex decodes a hex payload and transmits it.
func (d *Dispatcher) WriteHex(hexText string) (int, error) {
	if err := d.requireOpen(); err != nil {
		return 0, err
	}
	data, err := escpos.DecodeHex(hexText)
	if err != nil {
		return 0, err
	}
	return d.transmit("write-hex", data)
}

// WriteBase64 decodes a base64 payload and transmits it.
func (d *Dispatcher) WriteBase64(b64 string) (int, error) {
	if err := d.requireOpen(); err != nil {
		return 0, err
	}
	data, err := escpos.DecodeBase64(b64)
	if err != nil {
		return 0, err
	}
	return d.transmit("write-base64", data)
}

// WriteRaw transmits a binary payload unchanged.
func (d *Dispatcher) WriteRaw(data []byte) (int, error) {
	if err := d.requireOpen(); err != nil {
		return 0, err
	}
	data, err := escpos.Raw(data, d.cfg.MaxPayload)
	if err != nil {
		return 0, err
	}
	return d.transmit("write-binary", data)
}

// PrintVoucher renders the receipt for the given station/voucher fields
// (any subset may be supplied) and transmits it.
func (d *Dispatcher) PrintVoucher(station escpos.Station, voucher escpos.Voucher) (VoucherStatus, error) {
	if err := d.requireOpen(); err != nil {
		return VoucherStatus{}, err
	}
	buf, usedDefaults, err := escpos.BuildVoucherReceipt(station, voucher)
	if err != nil {
		return VoucherStatus{}, err
	}
	n, err := d.transmit("print-voucher", buf)
	if err != nil {
		return VoucherStatus{}, err
	}
	return VoucherStatus{Bytes: n, UsedDefaults: usedDefaults}, nil
}

// LinkHealth reports the current link state.
func (d *Dispatcher) LinkHealth() Health {
	state := d.link.State()
	return Health{
		Path:  d.link.Path(),
		Baud:  d.link.Baud(),
		Open:  state == adapter.StateOpen,
		State: state.String(),
	}
}

// Ports enumerates the serial devices visible on the host.
func (d *Dispatcher) Ports() ([]adapter.PortInfo, error) {
	return d.listPorts()
}

// requireOpen fails fast before any encoding work when the link is not
// open. The link re-checks under its own lock at write time.
func (d *Dispatcher) requireOpen() error {
	if d.link.State() != adapter.StateOpen {
		return adapter.ErrNotOpen
	}
	return nil
}

func (d *Dispatcher) transmit(command string, data []byte) (int, error) {
	n, err := d.link.Write(data)
	if err != nil {
		d.logger.WithError(err).Warnf("%s failed after %d bytes", command, n)
		return 0, err
	}
	d.logger.Debugf("%s wrote %d bytes", command, n)
	return n, nil
}
