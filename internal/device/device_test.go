package device

import (
	"context"
	"testing"
	"time"

	"github.com/chaz8081/tp25ctl/internal/ble/protocol"
)

func tempsNotification(alarms [4]bool, temps [4]protocol.Reading, mode protocol.TempMode) protocol.Notification {
	var r protocol.TemperatureReport
	for i := range r.Probes {
		r.Probes[i] = protocol.ProbeTemperature{Temp: temps[i], Alarm: alarms[i]}
	}
	r.Mode = mode
	return protocol.DecodeNotification(protocol.EncodeTemperatureReport(r))
}

func TestApplyTemperatures(t *testing.T) {
	var s State
	n := tempsNotification(
		[4]bool{false, true, false, false},
		[4]protocol.Reading{protocol.Absent, protocol.Present(215), protocol.Absent, protocol.Present(325)},
		protocol.TempModeCelsius,
	)
	if !Apply(n, &s) {
		t.Fatal("Apply() = false, want true for temperatures")
	}
	if s.TemperatureMode != protocol.TempModeCelsius {
		t.Errorf("TemperatureMode = %s, want celsius", s.TemperatureMode)
	}
	if s.Probes[1].Temperature != protocol.Present(215) || s.Probes[1].Alarm != AlarmSounding {
		t.Errorf("probe 2 = %+v, want 21.5 alarming", s.Probes[1])
	}
	if s.Probes[0].Temperature.Valid || s.Probes[0].Alarm != AlarmNone {
		t.Errorf("probe 1 = %+v, want absent without alarm", s.Probes[0])
	}
	if s.Probes[3].Temperature != protocol.Present(325) {
		t.Errorf("probe 4 = %+v, want 32.5", s.Probes[3])
	}
	if !s.AnyAlarm() {
		t.Error("AnyAlarm() = false, want true")
	}
}

func TestApplyTemperaturesTwiceIsStable(t *testing.T) {
	n := tempsNotification(
		[4]bool{true, false, false, true},
		[4]protocol.Reading{protocol.Present(1), protocol.Present(2), protocol.Absent, protocol.Present(9999)},
		protocol.TempModeFahrenheit,
	)
	var s State
	s.Probes[2].AlarmThreshold = protocol.UpperLimit(500)
	Apply(n, &s)
	first := s
	if !Apply(n, &s) {
		t.Error("second Apply() = false, want true")
	}
	if s != first {
		t.Errorf("state after second apply = %+v, want %+v", s, first)
	}
}

func TestApplyProbeProfile(t *testing.T) {
	var s State
	n := protocol.DecodeNotification(protocol.EncodeProbeProfile(protocol.ProbeProfile{
		Probe:     3,
		Threshold: protocol.RangeLimit(600, 700),
	}))
	if !Apply(n, &s) {
		t.Fatal("Apply() = false, want true for probe profile")
	}
	p, ok := s.Probe(3)
	if !ok || p.AlarmThreshold != protocol.RangeLimit(600, 700) {
		t.Errorf("probe 3 threshold = %+v, want range 60.0..70.0", p.AlarmThreshold)
	}
	for _, i := range []int{0, 1, 3} {
		if s.Probes[i].AlarmThreshold.Kind != protocol.ThresholdUnknown {
			t.Errorf("probe %d threshold = %s, want unknown", i+1, s.Probes[i].AlarmThreshold)
		}
	}
}

func TestApplyNoChange(t *testing.T) {
	raws := [][]byte{
		{0x20, 0x00, 0x20},
		{0x23, 0x02, 0x01, 0xcc, 0xf2},
		{0xe0, 0x00, 0xe0},
		{0x26, 0x00, 0x26},
		{0x01},
	}
	for _, raw := range raws {
		var s State
		before := s
		if Apply(protocol.ParseNotification(raw), &s) {
			t.Errorf("Apply(%x) = true, want false", raw)
		}
		if s != before {
			t.Errorf("Apply(%x) changed state", raw)
		}
	}
}

func TestProbeOutOfRange(t *testing.T) {
	var s State
	if _, ok := s.Probe(0); ok {
		t.Error("Probe(0) ok = true, want false")
	}
	if _, ok := s.Probe(5); ok {
		t.Error("Probe(5) ok = true, want false")
	}
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	st := NewStore()
	st.Update(func(s *State) bool {
		s.Probes[0].Temperature = protocol.Present(100)
		return true
	})
	snap := st.Snapshot()
	snap.Probes[0].Temperature = protocol.Present(200)
	if got := st.Snapshot().Probes[0].Temperature; got != protocol.Present(100) {
		t.Errorf("store changed through snapshot: %s", got)
	}
}

func TestStoreSubscribeOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := NewStore()
	ch := st.Subscribe(ctx, 8)

	st.SetConnected(false)
	st.SetConnected(true)
	st.Update(func(s *State) bool { return false }) // not published
	st.Update(func(s *State) bool {
		s.TemperatureMode = protocol.TempModeCelsius
		return true
	})

	want := []State{
		{},
		{Connected: true},
		{Connected: true, TemperatureMode: protocol.TempModeCelsius},
	}
	for i, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Errorf("update %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for update %d", i)
		}
	}
	select {
	case got := <-ch:
		t.Errorf("unexpected extra update %+v", got)
	default:
	}
}

func TestStoreSubscriberCancelDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := NewStore()
	ch := st.Subscribe(ctx, 0) // unbuffered and never read

	cancel()

	done := make(chan struct{})
	go func() {
		st.SetConnected(true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a cancelled subscriber")
	}

	// The channel is closed once the subscriber is dropped.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscriber channel not closed after cancel")
		}
	}
}
