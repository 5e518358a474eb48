package protocol

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidProbe     = errors.New("probe index must be 1..4")
	ErrInvalidMode      = errors.New("temperature mode must be celsius or fahrenheit")
	ErrInvalidThreshold = errors.New("alarm threshold kind not encodable")
	ErrCustomTooShort   = errors.New("custom command shorter than a frame")
	ErrCustomChecksum   = errors.New("custom command checksum mismatch")
)

// startupPayload is the handshake the device expects before it starts
// reporting. Its meaning is not known.
var startupPayload = []byte{0x70, 0x32, 0xe2, 0xc1, 0x79, 0x9d, 0xb4, 0xd1, 0xc7}

// profileReserved is the constant second byte of a set-probe-profile payload.
const profileReserved byte = 0xcc

// CommandKind classifies an outbound command.
type CommandKind uint8

const (
	CommandStartup CommandKind = iota
	CommandSetTempMode
	CommandReportProfile
	CommandSetProbeProfile
	CommandAlarmAck
	CommandCustom
)

func (k CommandKind) String() string {
	switch k {
	case CommandStartup:
		return "startup"
	case CommandSetTempMode:
		return "set_temp_mode"
	case CommandReportProfile:
		return "report_profile"
	case CommandSetProbeProfile:
		return "set_probe_profile"
	case CommandAlarmAck:
		return "alarm_ack"
	default:
		return "custom"
	}
}

// Command is an encoded instruction for the device together with what it
// means. Mode, Probe and Threshold are set only for the kinds that use them.
type Command struct {
	Raw       []byte
	Kind      CommandKind
	Mode      TempMode
	Probe     Probe
	Threshold AlarmThreshold
}

func (c Command) String() string {
	switch c.Kind {
	case CommandSetTempMode:
		return fmt.Sprintf("%s %s", c.Kind, c.Mode)
	case CommandReportProfile:
		return fmt.Sprintf("%s probe=%d", c.Kind, c.Probe)
	case CommandSetProbeProfile:
		return fmt.Sprintf("%s probe=%d %s", c.Kind, c.Probe, c.Threshold)
	case CommandCustom:
		return fmt.Sprintf("%s %x", c.Kind, c.Raw)
	default:
		return c.Kind.String()
	}
}

func newCommand(kind CommandKind, typ byte, payload []byte) Command {
	// Every builder payload fits in a frame, so NewFrame cannot fail here.
	f, _ := NewFrame(typ, payload)
	return Command{Raw: f.Bytes(), Kind: kind}
}

// BuildStartup returns the handshake sent at the start of every connection.
func BuildStartup() Command {
	return newCommand(CommandStartup, TypeStartup, startupPayload)
}

// BuildSetTempMode switches the unit the device reports in.
func BuildSetTempMode(mode TempMode) (Command, error) {
	var b byte
	switch mode {
	case TempModeCelsius:
		b = modeByteCelsius
	case TempModeFahrenheit:
		b = modeByteFahrenheit
	default:
		return Command{}, fmt.Errorf("protocol: build set temp mode: %w", ErrInvalidMode)
	}
	c := newCommand(CommandSetTempMode, TypeSetTempMode, []byte{b})
	c.Mode = mode
	return c, nil
}

// BuildAlarmAck silences a sounding alarm.
func BuildAlarmAck() Command {
	return newCommand(CommandAlarmAck, TypeAlarmAck, nil)
}

// BuildReportProfile asks the device to report the alarm threshold of probe.
func BuildReportProfile(probe Probe) (Command, error) {
	if !probe.Valid() {
		return Command{}, fmt.Errorf("protocol: build report profile %d: %w", probe, ErrInvalidProbe)
	}
	c := newCommand(CommandReportProfile, TypeProbeProfile, []byte{byte(probe)})
	c.Probe = probe
	return c, nil
}

// BuildSetProbeProfile configures the alarm threshold of probe.
//
//	payload: probe(1) 0xcc(1) max(2) min(2)
//
// Missing limits are sent as 0xFFFF.
func BuildSetProbeProfile(probe Probe, threshold AlarmThreshold) (Command, error) {
	if !probe.Valid() {
		return Command{}, fmt.Errorf("protocol: build set probe profile %d: %w", probe, ErrInvalidProbe)
	}
	var max, min Reading
	switch threshold.Kind {
	case ThresholdUnset:
	case ThresholdUpper:
		max = Present(threshold.Max)
	case ThresholdRange:
		max, min = Present(threshold.Max), Present(threshold.Min)
	default:
		return Command{}, fmt.Errorf("protocol: build set probe profile: %w (%s)", ErrInvalidThreshold, threshold.Kind)
	}
	hi, lo := EncodeTemperature(max), EncodeTemperature(min)
	payload := []byte{byte(probe), profileReserved, hi[0], hi[1], lo[0], lo[1]}

	c := newCommand(CommandSetProbeProfile, TypeSetProbeProfile, payload)
	c.Probe = probe
	c.Threshold = threshold
	return c, nil
}

// BuildCustom wraps caller-supplied bytes verbatim. Use ValidateCustom first
// if the bytes come from a user.
func BuildCustom(raw []byte) Command {
	return Command{Raw: clone(raw), Kind: CommandCustom}
}

// ValidateCustom checks that raw is at least a frame envelope long and, unless
// skipChecksum is set, that its last byte is the checksum of the rest.
func ValidateCustom(raw []byte, skipChecksum bool) error {
	// The limit is in bytes: a command typed as hex needs six digits.
	if len(raw) < MinFrameSize {
		return fmt.Errorf("protocol: custom command %x: %w", raw, ErrCustomTooShort)
	}
	if skipChecksum {
		return nil
	}
	last := len(raw) - 1
	if want := CalcChecksum(raw[:last]); raw[last] != want {
		return fmt.Errorf("protocol: custom command %x: %w (have 0x%02x, want 0x%02x)",
			raw, ErrCustomChecksum, raw[last], want)
	}
	return nil
}

// ParseCommand interprets raw as a command a host may have sent. Bytes that
// do not match any known command come back as CommandCustom.
func ParseCommand(raw []byte) Command {
	f, err := DecodeFrame(raw)
	if err != nil || !f.Checksum.Valid || len(f.Trailing) > 0 {
		return BuildCustom(raw)
	}
	p := f.Payload
	switch {
	case f.Type == TypeStartup && bytes.Equal(p, startupPayload):
		return BuildStartup()
	case f.Type == TypeSetTempMode && len(p) == 1:
		if c, err := BuildSetTempMode(tempModeFromByte(p[0])); err == nil {
			return c
		}
	case f.Type == TypeProbeProfile && len(p) == 1:
		if c, err := BuildReportProfile(Probe(p[0])); err == nil {
			return c
		}
	case f.Type == TypeSetProbeProfile && len(p) == 6:
		if th, ok := decodeLimits([2]byte{p[2], p[3]}, [2]byte{p[4], p[5]}); ok {
			if c, err := BuildSetProbeProfile(Probe(p[0]), th); err == nil && bytes.Equal(c.Raw, raw) {
				return c
			}
		}
	case f.Type == TypeAlarmAck && len(p) == 0:
		return BuildAlarmAck()
	}
	return BuildCustom(raw)
}

// ParseHexCommand decodes a hex string such as "27 00 27" or "270027".
func ParseHexCommand(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("protocol: parse hex command: %w", err)
	}
	return b, nil
}
