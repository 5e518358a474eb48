// Package fakedevice simulates a TP25 thermometer in memory. It answers
// commands the way the real device does and emits periodic temperature
// reports with a slowly rising temperature, so the controller can run
// without Bluetooth hardware.
package fakedevice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/tp25ctl/internal/ble/protocol"
	"github.com/chaz8081/tp25ctl/internal/peripheral"
)

// Options configures the simulation.
type Options struct {
	ReportInterval time.Duration
	StartTemp      protocol.Temperature // Celsius tenths
	Step           protocol.Temperature // rise per report
	MaxTemp        protocol.Temperature // wraps back to StartTemp above this
}

// DefaultOptions returns a device that starts at 20.0 °C and rises 0.1 °C
// per second.
func DefaultOptions() Options {
	return Options{
		ReportInterval: time.Second,
		StartTemp:      200,
		Step:           1,
		MaxTemp:        3000,
	}
}

// Device is the simulated thermometer. Its state survives reconnects, like
// a real device that stays powered while the host link drops.
type Device struct {
	opts Options

	mu         sync.Mutex
	temp       protocol.Temperature
	mode       protocol.TempMode
	thresholds [protocol.NumProbes]protocol.AlarmThreshold
	silenced   [protocol.NumProbes]bool
	sessions   int
}

// New returns a powered-on simulated device.
func New(opts Options) *Device {
	def := DefaultOptions()
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = def.ReportInterval
	}
	if opts.StartTemp == 0 {
		opts.StartTemp = def.StartTemp
	}
	if opts.Step == 0 {
		opts.Step = def.Step
	}
	if opts.MaxTemp == 0 {
		opts.MaxTemp = def.MaxTemp
	}
	d := &Device{
		opts: opts,
		temp: opts.StartTemp,
		mode: protocol.TempModeCelsius,
	}
	for i := range d.thresholds {
		d.thresholds[i] = protocol.Unset()
	}
	return d
}

// Connect implements peripheral.Finder. Every call opens a new session.
func (d *Device) Connect(ctx context.Context) (peripheral.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.sessions++
	n := d.sessions
	d.mu.Unlock()
	slog.Info("[SIM] session opened", "session", n)
	return newSession(d), nil
}

// Mode returns the unit the device currently reports in.
func (d *Device) Mode() protocol.TempMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Threshold returns the alarm threshold configured for probe p.
func (d *Device) Threshold(p protocol.Probe) protocol.AlarmThreshold {
	if !p.Valid() {
		return protocol.AlarmThreshold{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.thresholds[p.ZeroBased()]
}

// SetTemperature sets the base probe temperature in Celsius tenths.
func (d *Device) SetTemperature(t protocol.Temperature) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.temp = t
}

// handle applies one command and returns the frames the device replies with.
func (d *Device) handle(raw []byte) [][]byte {
	f, err := protocol.DecodeFrame(raw)
	if err != nil || !f.Checksum.Valid {
		return [][]byte{errorFrame()}
	}
	cmd := protocol.ParseCommand(raw)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch cmd.Kind {
	case protocol.CommandStartup:
		return [][]byte{mustFrame(protocol.TypeStartup, f.Payload)}

	case protocol.CommandSetTempMode:
		d.mode = cmd.Mode
		return [][]byte{mustFrame(protocol.TypeSetTempMode, nil)}

	case protocol.CommandReportProfile:
		pp := protocol.ProbeProfile{Probe: cmd.Probe, Threshold: d.thresholds[cmd.Probe.ZeroBased()]}
		return [][]byte{protocol.EncodeProbeProfile(pp).Bytes()}

	case protocol.CommandSetProbeProfile:
		i := cmd.Probe.ZeroBased()
		d.thresholds[i] = cmd.Threshold
		d.silenced[i] = false
		return [][]byte{mustFrame(protocol.TypeSetProbeProfile, []byte{byte(cmd.Probe), 0xcc})}

	case protocol.CommandAlarmAck:
		for i := range d.silenced {
			d.silenced[i] = true
		}
		return nil

	default:
		// The device ignores commands it does not understand.
		slog.Debug("[SIM] ignoring command", "raw", fmt.Sprintf("%x", raw))
		return nil
	}
}

// nextReport advances the simulated temperature and encodes a report.
func (d *Device) nextReport() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.temp += d.opts.Step
	if d.temp > d.opts.MaxTemp {
		d.temp = d.opts.StartTemp
	}

	r := protocol.TemperatureReport{Mode: d.mode}
	r.Reserved[0] = 0x5a
	for i := range r.Probes {
		t := d.display(d.temp + protocol.Temperature(i))
		th := d.thresholds[i]
		exceeded := th.Exceeded(t)
		if !exceeded {
			d.silenced[i] = false
		}
		r.Probes[i] = protocol.ProbeTemperature{
			Temp:  protocol.Present(t),
			Alarm: exceeded && !d.silenced[i],
		}
	}
	return protocol.EncodeTemperatureReport(r).Bytes()
}

// display converts a Celsius reading into the current unit.
func (d *Device) display(c protocol.Temperature) protocol.Temperature {
	if d.mode != protocol.TempModeFahrenheit {
		return c
	}
	f := int(c)*9/5 + 320
	if f > int(protocol.MaxTemperature) {
		f = int(protocol.MaxTemperature)
	}
	return protocol.Temperature(f)
}

func mustFrame(typ byte, payload []byte) []byte {
	f, err := protocol.NewFrame(typ, payload)
	if err != nil {
		panic(err)
	}
	return f.Bytes()
}

func errorFrame() []byte {
	return mustFrame(protocol.TypeError, nil)
}

// session is one host connection to the device.
type session struct {
	dev *Device

	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
}

func newSession(d *Device) *session {
	return &session{
		dev:    d,
		out:    make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (s *session) Receive(ctx context.Context) ([]byte, error) {
	select {
	case b := <-s.out:
		return b, nil
	case <-s.closed:
		return nil, fmt.Errorf("fakedevice: receive: %w", peripheral.ErrLinkClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *session) Send(ctx context.Context, frame []byte) error {
	select {
	case <-s.closed:
		return fmt.Errorf("fakedevice: send: %w", peripheral.ErrLinkClosed)
	default:
	}

	for _, reply := range s.dev.handle(frame) {
		if err := s.emit(ctx, reply); err != nil {
			return err
		}
	}
	// Like the real device, reports start after the startup handshake.
	if protocol.ParseCommand(frame).Kind == protocol.CommandStartup {
		s.startOnce.Do(func() { go s.report() })
	}
	return nil
}

func (s *session) emit(ctx context.Context, b []byte) error {
	select {
	case s.out <- b:
		return nil
	case <-s.closed:
		return fmt.Errorf("fakedevice: send: %w", peripheral.ErrLinkClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) report() {
	t := time.NewTicker(s.dev.opts.ReportInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			select {
			case s.out <- s.dev.nextReport():
			case <-s.closed:
				return
			}
		case <-s.closed:
			return
		}
	}
}

// Close ends the session. The device keeps its state for the next one.
func (s *session) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

var (
	_ peripheral.Finder = (*Device)(nil)
	_ peripheral.Link   = (*session)(nil)
)
