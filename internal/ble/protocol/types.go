package protocol

import (
	"fmt"
	"math"
)

// Temperature is a probe reading in tenths of a degree, in whatever unit the
// device is currently reporting. Valid values are 0..9999.
type Temperature uint16

// MaxTemperature is the largest value four packed-decimal digits can hold.
const MaxTemperature Temperature = 9999

// TemperatureFromDegrees converts whole degrees to tenths, rounding to the
// nearest tenth. Negative input clamps to zero and large input to MaxTemperature.
func TemperatureFromDegrees(deg float64) Temperature {
	tenths := math.Round(deg * 10)
	switch {
	case tenths <= 0 || math.IsNaN(tenths):
		return 0
	case tenths >= float64(MaxTemperature):
		return MaxTemperature
	}
	return Temperature(tenths)
}

// Degrees returns the temperature as a floating point number of degrees.
func (t Temperature) Degrees() float64 {
	return float64(t) / 10
}

func (t Temperature) String() string {
	return fmt.Sprintf("%d.%d", t/10, t%10)
}

// Reading is an optional Temperature. Valid is false when the device reports
// no probe attached or a value out of range.
type Reading struct {
	Value Temperature
	Valid bool
}

// Present wraps t as a valid Reading.
func Present(t Temperature) Reading {
	return Reading{Value: t, Valid: true}
}

// Absent is the "no reading" value.
var Absent = Reading{}

func (r Reading) String() string {
	if !r.Valid {
		return "--"
	}
	return r.Value.String()
}

// TempMode is the unit the device reports temperatures in.
type TempMode uint8

const (
	TempModeUnknown TempMode = iota
	TempModeCelsius
	TempModeFahrenheit
)

// Wire values for the temperature mode byte.
const (
	modeByteCelsius    byte = 0x0c
	modeByteFahrenheit byte = 0x0f
)

func (m TempMode) String() string {
	switch m {
	case TempModeCelsius:
		return "celsius"
	case TempModeFahrenheit:
		return "fahrenheit"
	default:
		return "unknown"
	}
}

func tempModeFromByte(b byte) TempMode {
	switch b {
	case modeByteCelsius:
		return TempModeCelsius
	case modeByteFahrenheit:
		return TempModeFahrenheit
	default:
		return TempModeUnknown
	}
}

// Probe is a one-based probe index as used on the wire.
type Probe uint8

// NumProbes is the number of probes the device exposes.
const NumProbes = 4

// Valid reports whether p is in 1..NumProbes.
func (p Probe) Valid() bool {
	return p >= 1 && p <= NumProbes
}

// ZeroBased returns the array index for p. Only meaningful when p.Valid().
func (p Probe) ZeroBased() int {
	return int(p) - 1
}

// Probes lists every valid probe index in order.
var Probes = [NumProbes]Probe{1, 2, 3, 4}

// ThresholdKind selects the shape of an AlarmThreshold.
type ThresholdKind uint8

const (
	// ThresholdUnknown means the threshold has not been reported yet. The
	// codec never produces it and refuses to encode it.
	ThresholdUnknown ThresholdKind = iota
	// ThresholdUnset means the device has no alarm configured for the probe.
	ThresholdUnset
	// ThresholdUpper alarms when the reading rises above Max.
	ThresholdUpper
	// ThresholdRange alarms when the reading leaves Min..Max.
	ThresholdRange
)

func (k ThresholdKind) String() string {
	switch k {
	case ThresholdUnset:
		return "none_set"
	case ThresholdUpper:
		return "upper_only"
	case ThresholdRange:
		return "range"
	default:
		return "unknown"
	}
}

// AlarmThreshold is a probe alarm configuration. For ThresholdRange, Min <= Max
// is expected but not enforced here; callers should validate user input before
// building commands.
type AlarmThreshold struct {
	Kind ThresholdKind
	Min  Temperature
	Max  Temperature
}

// Unset returns the "no alarm" threshold.
func Unset() AlarmThreshold {
	return AlarmThreshold{Kind: ThresholdUnset}
}

// UpperLimit returns a threshold that alarms above max.
func UpperLimit(max Temperature) AlarmThreshold {
	return AlarmThreshold{Kind: ThresholdUpper, Max: max}
}

// RangeLimit returns a threshold that alarms outside min..max.
func RangeLimit(min, max Temperature) AlarmThreshold {
	return AlarmThreshold{Kind: ThresholdRange, Min: min, Max: max}
}

// Exceeded reports whether t is outside the threshold.
func (a AlarmThreshold) Exceeded(t Temperature) bool {
	switch a.Kind {
	case ThresholdUpper:
		return t > a.Max
	case ThresholdRange:
		return t < a.Min || t > a.Max
	default:
		return false
	}
}

func (a AlarmThreshold) String() string {
	switch a.Kind {
	case ThresholdUpper:
		return fmt.Sprintf("upper %s", a.Max)
	case ThresholdRange:
		return fmt.Sprintf("range %s..%s", a.Min, a.Max)
	default:
		return a.Kind.String()
	}
}
