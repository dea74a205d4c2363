// Package metrics provides Prometheus instrumentation for dispatch
// operation lifecycle, client out-calls, and the control plane HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label constants for metrics.
const (
	LabelChannelType = "channel_type"
	LabelRole        = "role"
	LabelStatus      = "status"
	LabelReason      = "reason"
	LabelEndpoint    = "endpoint"
	LabelMethod      = "method"
	LabelPath        = "path"
)

// Status constants for dispatch outcomes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Finish reason label values for ObserveFinished. These are this package's
// own values, not the strings returned by pkg/dispatchop's FinishKind.
const (
	ReasonHandled    = "handled"
	ReasonNoHandler  = "no_handler"
	ReasonTimeout    = "timeout"
	ReasonCancelled  = "cancelled"
	ReasonRedispatch = "redispatch"
)

// Metrics provides Prometheus metrics for the dispatch daemon.
type Metrics struct {
	// Dispatch operation lifecycle
	cdoConstructedTotal *prometheus.CounterVec
	cdoActiveGauge      *prometheus.GaugeVec
	cdoFinishedTotal    *prometheus.CounterVec
	cdoLifetimeDuration *prometheus.HistogramVec

	// Observer/approver/handler fan-out
	observeOutcallTotal *prometheus.CounterVec
	approveOutcallTotal *prometheus.CounterVec
	handleOutcallTotal  *prometheus.CounterVec
	redispatchTotal     *prometheus.CounterVec

	// Client out-call latency
	outcallDuration *prometheus.HistogramVec

	// Endpoint registry
	endpointsActiveGauge *prometheus.GaugeVec

	// Control plane HTTP API
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registered bool
}

// New creates and registers dispatch daemon metrics.
// If registry is nil, metrics are created but not registered, which is
// useful for tests that only assert on in-memory state.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		cdoConstructedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchd",
				Subsystem: "cdo",
				Name:      "constructed_total",
				Help:      "Total number of dispatch operations constructed, by channel type",
			},
			[]string{LabelChannelType},
		),

		cdoActiveGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dispatchd",
				Subsystem: "cdo",
				Name:      "active",
				Help:      "Number of dispatch operations currently in flight, by channel type",
			},
			[]string{LabelChannelType},
		),

		cdoFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchd",
				Subsystem: "cdo",
				Name:      "finished_total",
				Help:      "Total number of dispatch operations finished, by channel type and finish reason",
			},
			[]string{LabelChannelType, LabelReason},
		),

		cdoLifetimeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dispatchd",
				Subsystem: "cdo",
				Name:      "lifetime_seconds",
				Help:      "Time from construction to finish for a dispatch operation",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{LabelChannelType},
		),

		observeOutcallTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchd",
				Subsystem: "fanout",
				Name:      "observe_total",
				Help:      "Total number of ObserveChannels out-calls, by outcome",
			},
			[]string{LabelStatus},
		),

		approveOutcallTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchd",
				Subsystem: "fanout",
				Name:      "approve_total",
				Help:      "Total number of AddDispatchOperation out-calls, by outcome",
			},
			[]string{LabelStatus},
		),

		handleOutcallTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchd",
				Subsystem: "fanout",
				Name:      "handle_total",
				Help:      "Total number of HandleChannels out-calls, by outcome",
			},
			[]string{LabelStatus},
		),

		redispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchd",
				Subsystem: "fanout",
				Name:      "redispatch_total",
				Help:      "Total number of redispatch attempts after a handler failure",
			},
			[]string{LabelChannelType},
		),

		outcallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dispatchd",
				Subsystem: "clientproxy",
				Name:      "outcall_duration_seconds",
				Help:      "Duration of a client out-call, by endpoint and method",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{LabelEndpoint, LabelMethod},
		),

		endpointsActiveGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dispatchd",
				Subsystem: "registry",
				Name:      "endpoints_active",
				Help:      "Number of registered endpoints currently reachable, by role",
			},
			[]string{LabelRole},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchd",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of control plane HTTP requests",
			},
			[]string{LabelMethod, LabelPath, LabelStatus},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dispatchd",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of control plane HTTP requests",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{LabelMethod, LabelPath},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.cdoConstructedTotal,
			m.cdoActiveGauge,
			m.cdoFinishedTotal,
			m.cdoLifetimeDuration,
			m.observeOutcallTotal,
			m.approveOutcallTotal,
			m.handleOutcallTotal,
			m.redispatchTotal,
			m.outcallDuration,
			m.endpointsActiveGauge,
			m.httpRequestsTotal,
			m.httpRequestDuration,
		)
		m.registered = true
	}

	return m
}

// ObserveConstructed records a dispatch operation construction.
func (m *Metrics) ObserveConstructed(channelType string) {
	if m == nil {
		return
	}
	m.cdoConstructedTotal.WithLabelValues(channelType).Inc()
}

// SetActiveCDOs sets the number of in-flight dispatch operations for a channel type.
func (m *Metrics) SetActiveCDOs(channelType string, count float64) {
	if m == nil {
		return
	}
	m.cdoActiveGauge.WithLabelValues(channelType).Set(count)
}

// ObserveFinished records a dispatch operation finishing, with its duration and reason.
func (m *Metrics) ObserveFinished(channelType, reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.cdoFinishedTotal.WithLabelValues(channelType, reason).Inc()
	m.cdoLifetimeDuration.WithLabelValues(channelType).Observe(durationSeconds)
}

// ObserveOutcall records a fan-out out-call outcome for the given phase
// ("observe", "approve", "handle").
func (m *Metrics) ObserveOutcall(phase string, success bool) {
	if m == nil {
		return
	}

	status := StatusSuccess
	if !success {
		status = StatusError
	}

	switch phase {
	case "observe":
		m.observeOutcallTotal.WithLabelValues(status).Inc()
	case "approve":
		m.approveOutcallTotal.WithLabelValues(status).Inc()
	case "handle":
		m.handleOutcallTotal.WithLabelValues(status).Inc()
	}
}

// ObserveRedispatch records a redispatch attempt for a channel type.
func (m *Metrics) ObserveRedispatch(channelType string) {
	if m == nil {
		return
	}
	m.redispatchTotal.WithLabelValues(channelType).Inc()
}

// ObserveOutcallDuration records how long a client out-call to an endpoint took.
func (m *Metrics) ObserveOutcallDuration(endpoint, method string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.outcallDuration.WithLabelValues(endpoint, method).Observe(durationSeconds)
}

// SetActiveEndpoints sets the number of reachable registered endpoints for a role.
func (m *Metrics) SetActiveEndpoints(role string, count float64) {
	if m == nil {
		return
	}
	m.endpointsActiveGauge.WithLabelValues(role).Set(count)
}

// ObserveHTTPRequest records a completed control plane HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
