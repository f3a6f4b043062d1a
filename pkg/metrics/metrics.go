package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
type Metrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// SOS 业务指标
	sosActivationsTotal  *prometheus.CounterVec
	sosActiveIncidents   prometheus.Gauge
	subsystemOutcomes    *prometheus.CounterVec
	notifyChannelResults *prometheus.CounterVec
	locationSamplesTotal prometheus.Counter
	fallEscalationsTotal prometheus.Counter
	fallFalseAlarmsTotal prometheus.Counter
}

// NewMetrics 创建指标管理器
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		sosActivationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_activations_total",
				Help: "SOS activations by trigger method",
			},
			[]string{"trigger"},
		),
		sosActiveIncidents: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sos_active_incidents",
				Help: "Number of currently active SOS incidents",
			},
		),
		subsystemOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_subsystem_outcomes_total",
				Help: "Per-subsystem activation outcomes (ok/degraded/failed)",
			},
			[]string{"subsystem", "outcome"},
		),
		notifyChannelResults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_notify_channel_total",
				Help: "Guardian notification attempts by channel and result",
			},
			[]string{"channel", "result"},
		),
		locationSamplesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sos_location_samples_total",
				Help: "Position samples appended to incident logs",
			},
		),
		fallEscalationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fall_escalations_total",
				Help: "Fall confirmations that timed out and escalated",
			},
		),
		fallFalseAlarmsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fall_false_alarms_total",
				Help: "Fall confirmations cancelled by the user",
			},
		),
	}
}

func (m *Metrics) ObserveHTTP(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) SOSActivated(trigger string) {
	m.sosActivationsTotal.WithLabelValues(trigger).Inc()
	m.sosActiveIncidents.Inc()
}

func (m *Metrics) SOSResolved() { m.sosActiveIncidents.Dec() }

func (m *Metrics) SubsystemOutcome(subsystem, outcome string) {
	m.subsystemOutcomes.WithLabelValues(subsystem, outcome).Inc()
}

func (m *Metrics) NotifyChannelResult(channel, result string) {
	m.notifyChannelResults.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) LocationSampleAppended() { m.locationSamplesTotal.Inc() }

func (m *Metrics) FallEscalated() { m.fallEscalationsTotal.Inc() }

func (m *Metrics) FallFalseAlarm() { m.fallFalseAlarmsTotal.Inc() }
