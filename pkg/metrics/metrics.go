package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "pubq"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Queue     = "queue"
	Publisher = "publisher"
)

// Enqueue result label values.
const (
	EnqueueQueued   = "queued"
	EnqueueOversize = "oversize"
	EnqueueInvalid  = "invalid"
	EnqueueFull     = "full"
	EnqueueError    = "error"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple queue instances.
type Labels struct {
	Instance      string // Device or host name
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Instance != "" {
		labels["instance_name"] = l.Instance
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Queue state
	queueEvents   prometheus.Gauge
	queueBytes    prometheus.Gauge
	queueCapacity prometheus.Gauge
	sendInFlight  prometheus.Gauge

	// Queue counters
	enqueued    *prometheus.CounterVec // by result
	evictions   *prometheus.CounterVec // by position (oldest/second)
	storeResets prometheus.Counter
	clears      prometheus.Counter

	// Publisher
	publishes       *prometheus.CounterVec // by status
	publishDuration prometheus.Histogram
	publisherState  *prometheus.GaugeVec // one-hot by state
	paused          prometheus.Gauge
	sinkUnreachable prometheus.Counter
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queueEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "events",
			Help:      "Number of unsent events in the queue",
		}),
		queueBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "used_bytes",
			Help:      "Bytes of the storage medium in use, header included",
		}),
		queueCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "capacity_bytes",
			Help:      "Maximum size of the storage medium",
		}),
		sendInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "send_in_flight",
			Help:      "1 while the oldest event is being published",
		}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "enqueued_total",
			Help:      "Enqueue attempts by result",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "evictions_total",
			Help:      "Events discarded to make room for newer ones, by position",
		}, []string{"position"}),
		storeResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "store_resets_total",
			Help:      "Times an invalid store was reinitialized during setup",
		}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "clears_total",
			Help:      "Times the queue was cleared",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "publishes_total",
			Help:      "Publish attempts by status",
		}, []string{"status"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "publish_duration_seconds",
			Help:      "Time spent in a single publish call",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		publisherState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "state",
			Help:      "Current publisher state (1 for the active state)",
		}, []string{"state"}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "paused",
			Help:      "1 while publishing is paused",
		}),
		sinkUnreachable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "sink_unreachable_total",
			Help:      "Queue checks skipped because the sink was unreachable",
		}),
	}

	err := errors.Join(
		reg.Register(m.queueEvents),
		reg.Register(m.queueBytes),
		reg.Register(m.queueCapacity),
		reg.Register(m.sendInFlight),
		reg.Register(m.enqueued),
		reg.Register(m.evictions),
		reg.Register(m.storeResets),
		reg.Register(m.clears),
		reg.Register(m.publishes),
		reg.Register(m.publishDuration),
		reg.Register(m.publisherState),
		reg.Register(m.paused),
		reg.Register(m.sinkUnreachable),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// UpdateQueueMetrics updates the queue state gauges.
func (m *Metrics) UpdateQueueMetrics(events int, usedBytes, capacityBytes int64) {
	if m == nil {
		return
	}
	m.queueEvents.Set(float64(events))
	m.queueBytes.Set(float64(usedBytes))
	m.queueCapacity.Set(float64(capacityBytes))
}

// SetSendInFlight records whether a publish of the oldest event is in progress.
func (m *Metrics) SetSendInFlight(inFlight bool) {
	if m == nil {
		return
	}
	m.sendInFlight.Set(boolToFloat(inFlight))
}

// RecordEnqueue counts an enqueue attempt by result (see Enqueue* constants).
func (m *Metrics) RecordEnqueue(result string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(result).Inc()
}

// RecordEviction counts an event discarded to make room. second is true when
// the second oldest event was discarded because the oldest was in flight.
func (m *Metrics) RecordEviction(second bool) {
	if m == nil {
		return
	}
	position := "oldest"
	if second {
		position = "second"
	}
	m.evictions.WithLabelValues(position).Inc()
}

// IncStoreResets counts a store reinitialized during setup.
func (m *Metrics) IncStoreResets() {
	if m == nil {
		return
	}
	m.storeResets.Inc()
}

// IncClears counts a queue clear.
func (m *Metrics) IncClears() {
	if m == nil {
		return
	}
	m.clears.Inc()
}

// RecordPublish records a publish attempt outcome with duration.
// Pass nil error for successful publishes, non-nil for failures.
func (m *Metrics) RecordPublish(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.publishes.WithLabelValues(status).Inc()
	m.publishDuration.Observe(durationSeconds)
}

// SetPublisherState marks state as the active publisher state. states lists
// every state name so the others can be zeroed.
func (m *Metrics) SetPublisherState(state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.publisherState.WithLabelValues(s).Set(boolToFloat(s == state))
	}
}

// SetPaused records whether publishing is paused.
func (m *Metrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	m.paused.Set(boolToFloat(paused))
}

// IncSinkUnreachable counts a queue check skipped because the sink was unreachable.
func (m *Metrics) IncSinkUnreachable() {
	if m == nil {
		return
	}
	m.sinkUnreachable.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
