package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/tp25ctl/internal/ble/protocol"
	"github.com/chaz8081/tp25ctl/internal/controller"
	"github.com/chaz8081/tp25ctl/internal/fakedevice"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line string
		want controller.Request
	}{
		{"toggle", controller.ToggleTempMode{}},
		{"C", controller.SetTempMode{Celsius: true}},
		{"fahrenheit", controller.SetTempMode{}},
		{"ack", controller.AckAlarm{}},
		{"report", controller.ReportAllProfiles{}},
		{"report 3", controller.ReportProfile{Probe: 3}},
		{"set 1 72.5", controller.SetProfile{Probe: 1, Threshold: protocol.UpperLimit(725)}},
		{"set 2 70 60", controller.SetProfile{Probe: 2, Threshold: protocol.RangeLimit(600, 700)}},
		{"unset 4", controller.SetProfile{Probe: 4, Threshold: protocol.Unset()}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseRequest(tt.line)
			if err != nil {
				t.Fatalf("parseRequest(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("parseRequest(%q) = %#v, want %#v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseRequestRaw(t *testing.T) {
	got, err := parseRequest("raw 27 00 27")
	if err != nil {
		t.Fatalf("parseRequest() error = %v", err)
	}
	cc, ok := got.(controller.CustomCommand)
	if !ok || !bytes.Equal(cc.Raw, []byte{0x27, 0x00, 0x27}) || cc.SkipChecksum {
		t.Errorf("parseRequest(raw) = %#v", got)
	}

	got, err = parseRequest("raw! 270028")
	if err != nil {
		t.Fatalf("parseRequest() error = %v", err)
	}
	if cc, ok := got.(controller.CustomCommand); !ok || !cc.SkipChecksum {
		t.Errorf("parseRequest(raw!) = %#v, want SkipChecksum", got)
	}
}

func TestParseRequestErrors(t *testing.T) {
	for _, line := range []string{
		"frobnicate",
		"report 0",
		"report five",
		"set 1",
		"set 9 50",
		"set 1 hot",
		"set 1 1000",
		"unset",
		"raw zz",
	} {
		if _, err := parseRequest(line); err == nil {
			t.Errorf("parseRequest(%q) error = nil", line)
		}
	}
	if req, err := parseRequest("   "); req != nil || err != nil {
		t.Errorf("parseRequest(blank) = %v, %v, want nil, nil", req, err)
	}
}

func TestConsoleAgainstSimulatedDevice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := fakedevice.DefaultOptions()
	opts.ReportInterval = time.Hour
	m := controller.New(fakedevice.New(opts), controller.Options{QueueSize: 4})
	go m.Run(ctx)
	defer m.Stop()

	var out bytes.Buffer
	c := &console{mgr: m, out: &out}
	in := strings.NewReader("help\nbogus\nack\nquit\nack\n")
	if err := c.run(ctx, in); !errors.Is(err, errQuit) {
		t.Fatalf("run() error = %v, want errQuit", err)
	}

	text := out.String()
	if !strings.Contains(text, "commands:") {
		t.Error("help text not printed")
	}
	if !strings.Contains(text, `unknown command "bogus"`) {
		t.Errorf("missing error for bogus command:\n%s", text)
	}

	// The ack before quit reaches the device after startup.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var kinds []protocol.CommandKind
		for _, e := range m.Transfers().Snapshot() {
			if e.Command != nil {
				kinds = append(kinds, e.Command.Kind)
			}
		}
		if len(kinds) == 2 {
			if kinds[0] != protocol.CommandStartup || kinds[1] != protocol.CommandAlarmAck {
				t.Errorf("sent %v, want [startup alarm_ack]", kinds)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sent %v, want startup then alarm_ack", kinds)
		}
		time.Sleep(5 * time.Millisecond)
	}

	out.Reset()
	if err := c.exec(ctx, "log"); err != nil {
		t.Fatalf("exec(log) error = %v", err)
	}
	if !strings.Contains(out.String(), "alarm_ack [270027]") {
		t.Errorf("log output missing alarm ack:\n%s", out.String())
	}
}
