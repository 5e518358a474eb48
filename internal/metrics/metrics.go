// Package metrics exposes Prometheus instrumentation for the thermometer
// controller.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaz8081/tp25ctl/internal/ble/protocol"
	"github.com/chaz8081/tp25ctl/internal/device"
)

const namespace = "tp25"

// Discovery attempt results.
const (
	ResultConnected = "connected"
	ResultFailed    = "failed"
	ResultFatal     = "fatal"
)

// Reasons a connected session ends.
const (
	ReasonLinkLost   = "link_lost"
	ReasonSendFailed = "send_failed"
	ReasonStopped    = "stopped"
)

// Metrics holds the controller collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	sendErrors      prometheus.Counter
	connectAttempts *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	connected       prometheus.Gauge
	probeTemp       *prometheus.GaugeVec
	probeAlarm      *prometheus.GaugeVec
	queueDepth      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "link",
				Name:      "frames_received_total",
				Help:      "Frames received from the device by decoded kind.",
			},
			[]string{"kind"},
		),
		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "link",
				Name:      "frames_sent_total",
				Help:      "Commands written to the device by kind.",
			},
			[]string{"kind"},
		),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "send_errors_total",
			Help:      "Command writes that failed.",
		}),
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "attempts_total",
				Help:      "Device discovery attempts by result.",
			},
			[]string{"result"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "link",
				Name:      "sessions_ended_total",
				Help:      "Connected sessions that ended, by reason.",
			},
			[]string{"reason"},
		),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while a device link is established.",
		}),
		probeTemp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "temperature_degrees",
				Help:      "Last reported probe temperature in the device's display unit.",
			},
			[]string{"probe", "unit"},
		),
		probeAlarm: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "alarm",
				Help:      "1 while the probe alarm is sounding.",
			},
			[]string{"probe"},
		),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "queued",
			Help:      "Requests waiting to be sent.",
		}),
	}
	reg.MustRegister(
		m.framesReceived,
		m.framesSent,
		m.sendErrors,
		m.connectAttempts,
		m.sessions,
		m.connected,
		m.probeTemp,
		m.probeAlarm,
		m.queueDepth,
	)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameReceived(kind protocol.NotificationKind) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) FrameSent(kind protocol.CommandKind) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

func (m *Metrics) ConnectAttempt(result string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveState copies the device model into the gauges. Absent probes are
// removed rather than reported as zero.
func (m *Metrics) ObserveState(s device.State) {
	if m == nil {
		return
	}
	if s.Connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
	unit := s.TemperatureMode.String()
	for i, p := range s.Probes {
		label := strconv.Itoa(i + 1)
		m.probeTemp.DeletePartialMatch(prometheus.Labels{"probe": label})
		if p.Temperature.Valid {
			m.probeTemp.WithLabelValues(label, unit).Set(p.Temperature.Value.Degrees())
		}
		if p.Alarm == device.AlarmSounding {
			m.probeAlarm.WithLabelValues(label).Set(1)
		} else {
			m.probeAlarm.WithLabelValues(label).Set(0)
		}
	}
}
