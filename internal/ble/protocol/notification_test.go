package protocol

import (
	"bytes"
	"testing"
)

// withChecksum appends the correct checksum to b.
func withChecksum(b ...byte) []byte {
	return append(b, CalcChecksum(b))
}

func TestParseTemperatureReport(t *testing.T) {
	raw := []byte{
		0x30, 0x0f, 0x5a, 0x0c, 0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x03, 0x25, 0xff,
		0xff, 0xff, 0xff, 0xc3,
	}
	n := ParseNotification(raw)
	if n.Kind != NotificationTemperatures {
		t.Fatalf("Kind = %s, want temperatures", n.Kind)
	}
	if !n.Frame.Checksum.Valid {
		t.Error("checksum c3 should validate")
	}
	r := n.Temperatures
	if r.Mode != TempModeCelsius {
		t.Errorf("Mode = %s, want celsius", r.Mode)
	}
	for i := 0; i < 3; i++ {
		if r.Probes[i].Temp.Valid {
			t.Errorf("probe %d = %s, want absent", i, r.Probes[i].Temp)
		}
	}
	if r.Probes[3].Temp != Present(325) {
		t.Errorf("probe 3 = %+v, want 32.5", r.Probes[3].Temp)
	}
	for i, p := range r.Probes {
		if p.Alarm {
			t.Errorf("probe %d alarm set, want none", i)
		}
	}
	if r.Reserved != [5]byte{0x5a, 0xff, 0xff, 0xff, 0xff} {
		t.Errorf("Reserved = %x", r.Reserved)
	}
	if !bytes.Equal(n.Raw, raw) {
		t.Errorf("Raw = %x, want %x", n.Raw, raw)
	}
}

func TestParseTemperatureReportAlarmsAndFahrenheit(t *testing.T) {
	raw := withChecksum(0x30, 0x0f, 0x5a, 0x0f, 0x05,
		0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00, 0xff, 0xff, 0xff, 0xff)
	n := ParseNotification(raw)
	if n.Kind != NotificationTemperatures {
		t.Fatalf("Kind = %s, want temperatures", n.Kind)
	}
	r := n.Temperatures
	if r.Mode != TempModeFahrenheit {
		t.Errorf("Mode = %s, want fahrenheit", r.Mode)
	}
	wantAlarm := [4]bool{true, false, true, false}
	wantTemp := [4]Temperature{100, 200, 300, 400}
	for i, p := range r.Probes {
		if p.Alarm != wantAlarm[i] {
			t.Errorf("probe %d alarm = %v, want %v", i, p.Alarm, wantAlarm[i])
		}
		if p.Temp != Present(wantTemp[i]) {
			t.Errorf("probe %d temp = %+v, want %d", i, p.Temp, wantTemp[i])
		}
	}
}

func TestParseTemperatureReportUnknownMode(t *testing.T) {
	raw := withChecksum(0x30, 0x0f, 0x5a, 0x42, 0x00,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	n := ParseNotification(raw)
	if n.Kind != NotificationTemperatures || n.Temperatures.Mode != TempModeUnknown {
		t.Errorf("got kind %s mode %s, want temperatures with unknown mode", n.Kind, n.Temperatures.Mode)
	}
}

func TestTemperatureReportEncodeRoundTrip(t *testing.T) {
	want := TemperatureReport{
		Mode:     TempModeFahrenheit,
		Reserved: [5]byte{0x5a, 0x01, 0x02, 0x03, 0x04},
	}
	want.Probes[1] = ProbeTemperature{Temp: Present(1234), Alarm: true}
	want.Probes[2] = ProbeTemperature{Temp: Present(7)}

	n := DecodeNotification(EncodeTemperatureReport(want))
	if n.Kind != NotificationTemperatures {
		t.Fatalf("Kind = %s, want temperatures", n.Kind)
	}
	if n.Temperatures != want {
		t.Errorf("round trip = %+v, want %+v", n.Temperatures, want)
	}
}

func TestParseProbeProfile(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want ProbeProfile
	}{
		{
			name: "unset",
			raw:  withChecksum(0x24, 0x06, 0x02, 0x00, 0xff, 0xff, 0xff, 0xff),
			want: ProbeProfile{Probe: 2, Threshold: Unset()},
		},
		{
			name: "upper only",
			raw:  withChecksum(0x24, 0x06, 0x01, 0x00, 0x07, 0x45, 0xff, 0xff),
			want: ProbeProfile{Probe: 1, Threshold: UpperLimit(745)},
		},
		{
			name: "range",
			raw:  withChecksum(0x24, 0x06, 0x04, 0x00, 0x08, 0x00, 0x06, 0x50),
			want: ProbeProfile{Probe: 4, Threshold: RangeLimit(650, 800)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := ParseNotification(tt.raw)
			if n.Kind != NotificationProbeProfile {
				t.Fatalf("Kind = %s, want probe_profile", n.Kind)
			}
			if n.Profile != tt.want {
				t.Errorf("Profile = %+v, want %+v", n.Profile, tt.want)
			}
		})
	}
}

func TestProbeProfileEncodeRoundTrip(t *testing.T) {
	for _, pp := range []ProbeProfile{
		{Probe: 1, Threshold: Unset()},
		{Probe: 2, Threshold: UpperLimit(999)},
		{Probe: 3, Threshold: RangeLimit(10, 9999)},
	} {
		n := DecodeNotification(EncodeProbeProfile(pp))
		if n.Kind != NotificationProbeProfile || n.Profile != pp {
			t.Errorf("round trip %+v = %s %+v", pp, n.Kind, n.Profile)
		}
	}
}

func TestParseAcks(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want NotificationKind
	}{
		{"startup", withChecksum(0x01, 0x09, 1, 2, 3, 4, 5, 6, 7, 8, 9), NotificationStartup},
		{"set temp mode", withChecksum(0x20, 0x00), NotificationSetTempModeAck},
		{"set probe profile", withChecksum(0x23, 0x02, 0x01, 0xcc), NotificationSetProbeProfileAck},
		{"error empty", withChecksum(0xe0, 0x00), NotificationError},
		{"error with payload and bad checksum", []byte{0xe0, 0x02, 0x01, 0x02, 0x00}, NotificationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseNotification(tt.raw).Kind; got != tt.want {
				t.Errorf("Kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseDegradesToUnknown(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"too short", []byte{0x30, 0x00}},
		{"unrecognized type", withChecksum(0x26, 0x01, 0x00)},
		{"startup wrong length", withChecksum(0x01, 0x01, 0x0a)},
		{"temp mode ack wrong length", withChecksum(0x20, 0x01, 0x0c)},
		{"bad checksum", []byte{0x20, 0x00, 0x21}},
		{"profile bad probe index", withChecksum(0x24, 0x06, 0x05, 0x00, 0xff, 0xff, 0xff, 0xff)},
		{"profile probe zero", withChecksum(0x24, 0x06, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff)},
		{"profile lower without upper", withChecksum(0x24, 0x06, 0x01, 0x00, 0xff, 0xff, 0x01, 0x00)},
		{"profile not packed decimal", withChecksum(0x24, 0x06, 0x01, 0x00, 0x0a, 0x00, 0xff, 0xff)},
		{"temps not packed decimal", withChecksum(0x30, 0x0f, 0x5a, 0x0c, 0x00,
			0xab, 0xcd, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := ParseNotification(tt.raw)
			if n.Kind != NotificationUnknown {
				t.Errorf("Kind = %s, want unknown", n.Kind)
			}
			if !bytes.Equal(n.Raw, tt.raw) {
				t.Errorf("Raw = %x, want %x", n.Raw, tt.raw)
			}
		})
	}
}

func TestParseNotificationNeverPanics(t *testing.T) {
	// Every type byte and every declared length over frames of 0..20 bytes,
	// with both a valid and a garbage checksum.
	fill := []byte{0x00, 0x99, 0xff, 0x5a}
	for size := 0; size <= MaxFrameSize; size++ {
		for typ := 0; typ < 256; typ++ {
			for length := 0; length < 256; length += 3 {
				for _, f := range fill {
					raw := make([]byte, size)
					for i := range raw {
						raw[i] = f
					}
					if size > 0 {
						raw[0] = byte(typ)
					}
					if size > 1 {
						raw[1] = byte(length)
					}
					if size > 2 && length <= size-3 {
						raw[2+length] = CalcChecksum(raw[:2+length])
					}
					_ = ParseNotification(raw)
				}
			}
		}
	}
}
