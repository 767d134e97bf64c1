package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	signalErrors  *prometheus.CounterVec
	ratio         prometheus.Gauge
	baseline      prometheus.Gauge
	sentiment     prometheus.Gauge
	sentimentBand *prometheus.GaugeVec
	position      *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec

	mu        sync.Mutex
	positions map[string]struct{}
	bands     map[string]struct{}
}

// New registers recorder metrics on the default registerer.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.Registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_cycles_total",
			Help: "Evaluation cycles by outcome",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketflow_cycle_duration_seconds",
			Help:    "Duration of one evaluation cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		signalErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_signal_errors_total",
			Help: "Recoverable signal failures by signal",
		}, []string{"signal"}),
		ratio: f.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_ratio",
			Help: "Latest growth/defensive price ratio",
		}),
		baseline: f.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_ratio_baseline",
			Help: "Baseline the ratio is compared against",
		}),
		sentiment: f.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_sentiment_score",
			Help: "Latest fear score in [0,100]",
		}),
		sentimentBand: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketflow_sentiment_level",
			Help: "1 for the current sentiment band",
		}, []string{"level"}),
		position: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketflow_position",
			Help: "1 for the currently held position",
		}, []string{"position"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_transitions_total",
			Help: "Position transitions",
		}, []string{"from", "to"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_notifications_total",
			Help: "Notification attempts by channel and status",
		}, []string{"channel", "status"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketflow_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		positions: make(map[string]struct{}),
		bands:     make(map[string]struct{}),
	}
}

func (r *Recorder) RecordCycle(outcome string, seconds float64) {
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(seconds)
}

func (r *Recorder) RecordSignalError(signal string) {
	r.signalErrors.WithLabelValues(signal).Inc()
}

func (r *Recorder) RecordRatio(n, v float64) {
	r.ratio.Set(n)
	r.baseline.Set(v)
}

func (r *Recorder) RecordSentiment(score float64, level string) {
	r.sentiment.Set(score)
	r.oneHot(r.sentimentBand, r.bands, level)
}

func (r *Recorder) RecordPosition(position string) {
	r.oneHot(r.position, r.positions, position)
}

func (r *Recorder) RecordTransition(from, to string) {
	r.transitions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) RecordNotification(channel, status string) {
	r.notifications.WithLabelValues(channel, status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// oneHot sets label to 1 and every label seen before to 0.
func (r *Recorder) oneHot(vec *prometheus.GaugeVec, seen map[string]struct{}, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen[label] = struct{}{}
	for l := range seen {
		if l == label {
			vec.WithLabelValues(l).Set(1)
		} else {
			vec.WithLabelValues(l).Set(0)
		}
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordCycle(string, float64)        {}
func (Nop) RecordSignalError(string)           {}
func (Nop) RecordRatio(float64, float64)       {}
func (Nop) RecordSentiment(float64, string)    {}
func (Nop) RecordPosition(string)              {}
func (Nop) RecordTransition(string, string)    {}
func (Nop) RecordNotification(string, string) {}
func (Nop) RecordError(string)                 {}
func (Nop) RecordLatency(string, float64)      {}
