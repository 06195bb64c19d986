package capture

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricSessionsStarted     = "capture_sessions_started_total"
	MetricAcquisitionFailures = "capture_acquisition_failures_total"
	MetricCaptures            = "capture_images_total"
	MetricSubmissions         = "capture_submissions_total"
	MetricSubmitDuration      = "capture_submit_duration_seconds"
)

// Label values.
const (
	StageLocation = "location"
	StageCamera   = "camera"

	SourceCamera = "camera"
	SourceUpload = "upload"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics contains Prometheus collectors for the capture flow. A nil
// *Metrics records nothing.
type Metrics struct {
	sessionsStarted     *prometheus.CounterVec
	acquisitionFailures *prometheus.CounterVec
	captures            *prometheus.CounterVec
	submissions         *prometheus.CounterVec
	submitDuration      prometheus.Histogram
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		sessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSessionsStarted,
				Help: "Capture sessions started by action type",
			},
			[]string{"action"},
		),
		acquisitionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAcquisitionFailures,
				Help: "Location and camera acquisition failures by stage and reason",
			},
			[]string{"stage", "reason"},
		),
		captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCaptures,
				Help: "Composited images by frame source and outcome",
			},
			[]string{"source", "outcome"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSubmissions,
				Help: "Attendance submissions by action type and outcome",
			},
			[]string{"action", "outcome"},
		),
		submitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSubmitDuration,
				Help:    "Attendance submission latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sessionsStarted,
		m.acquisitionFailures,
		m.captures,
		m.submissions,
		m.submitDuration,
	}
}

func (m *Metrics) sessionStarted(action ActionType) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) acquisitionFailed(stage, reason string) {
	if m == nil {
		return
	}
	m.acquisitionFailures.WithLabelValues(stage, reason).Inc()
}

func (m *Metrics) captured(source, outcome string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) submitted(action ActionType, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(action), outcome).Inc()
	m.submitDuration.Observe(seconds)
}
