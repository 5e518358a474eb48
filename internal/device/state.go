// Package device holds the in-memory model of the thermometer and the pure
// reducer that folds decoded notifications into it.
package device

import (
	"fmt"
	"strings"

	"github.com/chaz8081/tp25ctl/internal/ble/protocol"
)

// AlarmState is the alarm status of one probe.
type AlarmState uint8

const (
	AlarmUnknown AlarmState = iota
	AlarmNone
	AlarmSounding
)

func (a AlarmState) String() string {
	switch a {
	case AlarmNone:
		return "no_alarm"
	case AlarmSounding:
		return "alarm"
	default:
		return "unknown"
	}
}

// Probe is the last known state of one probe. An AlarmThreshold with kind
// ThresholdUnknown means the device has not reported it yet.
type Probe struct {
	Temperature    protocol.Reading
	Alarm          AlarmState
	AlarmThreshold protocol.AlarmThreshold
}

// State is a point-in-time model of the device. It is a plain value; copies
// share nothing.
type State struct {
	Probes          [protocol.NumProbes]Probe
	TemperatureMode protocol.TempMode
	Connected       bool
}

// Probe returns the state of the one-based probe p.
func (s State) Probe(p protocol.Probe) (Probe, bool) {
	if !p.Valid() {
		return Probe{}, false
	}
	return s.Probes[p.ZeroBased()], true
}

// AnyAlarm reports whether any probe is alarming.
func (s State) AnyAlarm() bool {
	for _, p := range s.Probes {
		if p.Alarm == AlarmSounding {
			return true
		}
	}
	return false
}

func (s State) String() string {
	if !s.Connected {
		return "disconnected"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "connected mode=%s", s.TemperatureMode)
	for i, p := range s.Probes {
		fmt.Fprintf(&b, " p%d=%s", i+1, p.Temperature)
		if p.Alarm == AlarmSounding {
			b.WriteString("!")
		}
	}
	return b.String()
}
