package controller

import (
	"errors"
	"fmt"

	"github.com/chaz8081/tp25ctl/internal/ble/protocol"
)

var errNilRequest = errors.New("nil request")

// Request is an intent to change or query the device. Requests are expanded
// into commands when the sender pipeline picks them up, so ToggleTempMode
// sees the mode current at that moment.
type Request interface {
	commands(current protocol.TempMode) ([]protocol.Command, error)
}

// ToggleTempMode switches between Celsius and Fahrenheit. An unknown current
// mode switches to Celsius.
type ToggleTempMode struct{}

func (ToggleTempMode) commands(current protocol.TempMode) ([]protocol.Command, error) {
	next := protocol.TempModeCelsius
	if current == protocol.TempModeCelsius {
		next = protocol.TempModeFahrenheit
	}
	return single(protocol.BuildSetTempMode(next))
}

// SetTempMode selects a display unit explicitly.
type SetTempMode struct {
	Celsius bool
}

func (r SetTempMode) commands(protocol.TempMode) ([]protocol.Command, error) {
	mode := protocol.TempModeFahrenheit
	if r.Celsius {
		mode = protocol.TempModeCelsius
	}
	return single(protocol.BuildSetTempMode(mode))
}

// ReportAllProfiles asks for the alarm threshold of every probe.
type ReportAllProfiles struct{}

func (ReportAllProfiles) commands(protocol.TempMode) ([]protocol.Command, error) {
	cmds := make([]protocol.Command, 0, protocol.NumProbes)
	for _, p := range protocol.Probes {
		c, err := protocol.BuildReportProfile(p)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// ReportProfile asks for the alarm threshold of one probe.
type ReportProfile struct {
	Probe protocol.Probe
}

func (r ReportProfile) commands(protocol.TempMode) ([]protocol.Command, error) {
	return single(protocol.BuildReportProfile(r.Probe))
}

// SetProfile configures the alarm threshold of one probe. The device is
// asked to report the profile back afterwards so the model picks it up.
type SetProfile struct {
	Probe     protocol.Probe
	Threshold protocol.AlarmThreshold
}

func (r SetProfile) commands(protocol.TempMode) ([]protocol.Command, error) {
	th := r.Threshold
	if th.Max > protocol.MaxTemperature || th.Min > protocol.MaxTemperature {
		return nil, fmt.Errorf("%w: limit above %s", protocol.ErrInvalidThreshold, protocol.MaxTemperature)
	}
	if th.Kind == protocol.ThresholdRange && th.Min > th.Max {
		return nil, fmt.Errorf("%w: range %s..%s is inverted", protocol.ErrInvalidThreshold, th.Min, th.Max)
	}
	set, err := protocol.BuildSetProbeProfile(r.Probe, th)
	if err != nil {
		return nil, err
	}
	report, err := protocol.BuildReportProfile(r.Probe)
	if err != nil {
		return nil, err
	}
	return []protocol.Command{set, report}, nil
}

// AckAlarm silences a sounding alarm.
type AckAlarm struct{}

func (AckAlarm) commands(protocol.TempMode) ([]protocol.Command, error) {
	return []protocol.Command{protocol.BuildAlarmAck()}, nil
}

// CustomCommand sends raw bytes as given. Raw must be at least a frame
// envelope long and, unless SkipChecksum is set, end in a valid checksum.
type CustomCommand struct {
	Raw          []byte
	SkipChecksum bool
}

func (r CustomCommand) commands(protocol.TempMode) ([]protocol.Command, error) {
	if err := protocol.ValidateCustom(r.Raw, r.SkipChecksum); err != nil {
		return nil, err
	}
	return []protocol.Command{protocol.BuildCustom(r.Raw)}, nil
}

func single(c protocol.Command, err error) ([]protocol.Command, error) {
	if err != nil {
		return nil, err
	}
	return []protocol.Command{c}, nil
}

// validate expands req without regard to device state so invalid input is
// rejected before it is queued.
func validate(req Request) error {
	if req == nil {
		return errNilRequest
	}
	_, err := req.commands(protocol.TempModeUnknown)
	return err
}
