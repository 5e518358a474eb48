package device

import "github.com/chaz8081/tp25ctl/internal/ble/protocol"

// Apply folds one notification into s and reports whether s changed in a way
// observers care about. It performs no I/O and does not touch s.Connected.
func Apply(n protocol.Notification, s *State) bool {
	switch n.Kind {
	case protocol.NotificationTemperatures:
		r := n.Temperatures
		for i, pt := range r.Probes {
			s.Probes[i].Temperature = pt.Temp
			if pt.Alarm {
				s.Probes[i].Alarm = AlarmSounding
			} else {
				s.Probes[i].Alarm = AlarmNone
			}
		}
		s.TemperatureMode = r.Mode
		return true

	case protocol.NotificationProbeProfile:
		p := n.Profile.Probe
		if !p.Valid() {
			return false
		}
		s.Probes[p.ZeroBased()].AlarmThreshold = n.Profile.Threshold
		return true

	default:
		// Acks, device errors and unknown frames carry no state.
		return false
	}
}
