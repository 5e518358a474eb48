package protocol

import "fmt"

// Inbound frame types.
const (
	TypeStartup         byte = 0x01
	TypeSetTempMode     byte = 0x20
	TypeSetProbeProfile byte = 0x23
	TypeProbeProfile    byte = 0x24
	TypeAlarmAck        byte = 0x27
	TypeTemperatures    byte = 0x30
	TypeError           byte = 0xe0
)

// NotificationKind classifies a decoded notification.
type NotificationKind uint8

const (
	NotificationUnknown NotificationKind = iota
	NotificationStartup
	NotificationSetTempModeAck
	NotificationSetProbeProfileAck
	NotificationProbeProfile
	NotificationTemperatures
	NotificationError
)

func (k NotificationKind) String() string {
	switch k {
	case NotificationStartup:
		return "startup"
	case NotificationSetTempModeAck:
		return "set_temp_mode_ack"
	case NotificationSetProbeProfileAck:
		return "set_probe_profile_ack"
	case NotificationProbeProfile:
		return "probe_profile"
	case NotificationTemperatures:
		return "temperatures"
	case NotificationError:
		return "error"
	default:
		return "unknown"
	}
}

// ProbeProfile is the payload of a probe profile report.
type ProbeProfile struct {
	Probe     Probe
	Threshold AlarmThreshold
}

// ProbeTemperature is one probe's entry in a temperature report.
type ProbeTemperature struct {
	Temp  Reading
	Alarm bool
}

// TemperatureReport is the payload of a periodic temperature report.
type TemperatureReport struct {
	Probes [NumProbes]ProbeTemperature
	Mode   TempMode
	// Reserved holds payload byte 0 followed by bytes 11..14. Their meaning
	// is not known; they are kept so the report can be re-encoded.
	Reserved [5]byte
}

// Notification is one inbound frame and its interpretation. Profile and
// Temperatures are only populated for the matching Kind.
type Notification struct {
	Raw          []byte
	Frame        Frame
	Kind         NotificationKind
	Profile      ProbeProfile
	Temperatures TemperatureReport
}

func (n Notification) String() string {
	switch n.Kind {
	case NotificationProbeProfile:
		return fmt.Sprintf("%s probe=%d %s", n.Kind, n.Profile.Probe, n.Profile.Threshold)
	case NotificationTemperatures:
		t := n.Temperatures
		return fmt.Sprintf("%s mode=%s [%s %s %s %s]", n.Kind, t.Mode,
			t.Probes[0].Temp, t.Probes[1].Temp, t.Probes[2].Temp, t.Probes[3].Temp)
	default:
		return n.Kind.String()
	}
}

type payloadDecoder func(payload []byte) (Notification, bool)

type dispatchEntry struct {
	length int // -1 accepts any length and skips the checksum gate
	decode payloadDecoder
}

var dispatch = map[byte]dispatchEntry{
	TypeStartup:         {length: 9, decode: kindOnly(NotificationStartup)},
	TypeSetTempMode:     {length: 0, decode: kindOnly(NotificationSetTempModeAck)},
	TypeSetProbeProfile: {length: 2, decode: kindOnly(NotificationSetProbeProfileAck)},
	TypeProbeProfile:    {length: 6, decode: decodeProbeProfile},
	TypeTemperatures:    {length: 15, decode: decodeTemperatures},
	TypeError:           {length: -1, decode: kindOnly(NotificationError)},
}

// ParseNotification decodes raw bytes received from the device. It never
// fails: anything that is not a well-formed frame decodes as Unknown.
func ParseNotification(raw []byte) Notification {
	f, err := DecodeFrame(raw)
	if err != nil {
		return Notification{Raw: clone(raw), Kind: NotificationUnknown}
	}
	return DecodeNotification(f)
}

// DecodeNotification classifies a frame. A recognized type whose length does
// not match the protocol, or whose checksum is invalid, decodes as Unknown.
func DecodeNotification(f Frame) Notification {
	unknown := Notification{Raw: f.Bytes(), Frame: f, Kind: NotificationUnknown}

	entry, ok := dispatch[f.Type]
	if !ok {
		return unknown
	}
	if entry.length >= 0 {
		if int(f.Length) != entry.length || len(f.Payload) != entry.length {
			return unknown
		}
		if !f.Checksum.Valid {
			return unknown
		}
	}

	n, ok := entry.decode(f.Payload)
	if !ok {
		return unknown
	}
	n.Raw = unknown.Raw
	n.Frame = f
	return n
}

func kindOnly(kind NotificationKind) payloadDecoder {
	return func([]byte) (Notification, bool) {
		return Notification{Kind: kind}, true
	}
}

// decodeProbeProfile reads: probe(1) reserved(1) upper(2) lower(2).
func decodeProbeProfile(p []byte) (Notification, bool) {
	probe := Probe(p[0])
	if !probe.Valid() {
		return Notification{}, false
	}
	threshold, ok := decodeLimits([2]byte{p[2], p[3]}, [2]byte{p[4], p[5]})
	if !ok {
		return Notification{}, false
	}
	return Notification{
		Kind:    NotificationProbeProfile,
		Profile: ProbeProfile{Probe: probe, Threshold: threshold},
	}, true
}

// decodeLimits turns the wire upper/lower limit pair into a threshold.
func decodeLimits(hi, lo [2]byte) (AlarmThreshold, bool) {
	upper, err := DecodeTemperature(hi)
	if err != nil {
		return AlarmThreshold{}, false
	}
	lower, err := DecodeTemperature(lo)
	if err != nil {
		return AlarmThreshold{}, false
	}
	switch {
	case !upper.Valid && !lower.Valid:
		return Unset(), true
	case upper.Valid && !lower.Valid:
		return UpperLimit(upper.Value), true
	case upper.Valid && lower.Valid:
		return RangeLimit(lower.Value, upper.Value), true
	default:
		// A lower limit without an upper one is never sent by the device.
		return AlarmThreshold{}, false
	}
}

// decodeTemperatures reads: reserved(1) mode(1) alarms(1) temps(4x2) reserved(4).
func decodeTemperatures(p []byte) (Notification, bool) {
	var r TemperatureReport
	r.Mode = tempModeFromByte(p[1])
	alarms := p[2]
	for i := range r.Probes {
		t, err := DecodeTemperature([2]byte{p[3+2*i], p[4+2*i]})
		if err != nil {
			return Notification{}, false
		}
		r.Probes[i] = ProbeTemperature{Temp: t, Alarm: alarms&(1<<i) != 0}
	}
	r.Reserved[0] = p[0]
	copy(r.Reserved[1:], p[11:15])

	return Notification{Kind: NotificationTemperatures, Temperatures: r}, true
}

// EncodeTemperatureReport builds the frame a device would send for r. It is
// the inverse of the 0x30 decoder and is used by the simulated device.
func EncodeTemperatureReport(r TemperatureReport) Frame {
	payload := make([]byte, 15)
	payload[0] = r.Reserved[0]
	switch r.Mode {
	case TempModeFahrenheit:
		payload[1] = modeByteFahrenheit
	default:
		payload[1] = modeByteCelsius
	}
	for i, p := range r.Probes {
		if p.Alarm {
			payload[2] |= 1 << i
		}
		b := EncodeTemperature(p.Temp)
		payload[3+2*i], payload[4+2*i] = b[0], b[1]
	}
	copy(payload[11:15], r.Reserved[1:])

	f, _ := NewFrame(TypeTemperatures, payload)
	return f
}

// EncodeProbeProfile builds the frame a device would send in reply to a
// ReportProfile command.
func EncodeProbeProfile(pp ProbeProfile) Frame {
	var upper, lower Reading
	switch pp.Threshold.Kind {
	case ThresholdUpper:
		upper = Present(pp.Threshold.Max)
	case ThresholdRange:
		upper, lower = Present(pp.Threshold.Max), Present(pp.Threshold.Min)
	}
	u, l := EncodeTemperature(upper), EncodeTemperature(lower)
	f, _ := NewFrame(TypeProbeProfile, []byte{byte(pp.Probe), 0x00, u[0], u[1], l[0], l[1]})
	return f
}
