package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

const (
	namespace = "binderkit"

	transactSubsystem = "transact"
	atomSubsystem     = "atom"
	valueSubsystem    = "value"
)

// Recorder exposes transaction, obituary, refcount and map pool metrics.
// It implements binder.Recorder and can be shared by any number of
// Processes.
type Recorder struct {
	// Transactions counts completed calls by side, code and outcome. Codes
	// not known to the Recorder share the "other" label.
	Transactions *prometheus.CounterVec

	// Latency observes call duration by side.
	Latency *prometheus.HistogramVec

	// Obituaries counts obituaries delivered after a peer died.
	Obituaries prometheus.Counter

	codes      map[binder.Code]string
	collectors []prometheus.Collector
}

// otherCode labels transactions whose code the Recorder was not told about.
const otherCode = "other"

// Option configures a Recorder.
type Option func(*options)

type options struct {
	constLabels prometheus.Labels
	tracker     *atom.Tracker
	buckets     []float64
	codes       []binder.Code
}

// WithConstLabels attaches labels to every metric, for example the name
// of the process the Recorder serves.
func WithConstLabels(l prometheus.Labels) Option {
	return func(o *options) { o.constLabels = l }
}

// WithTracker exposes the number of live atoms known to t.
func WithTracker(t *atom.Tracker) Option {
	return func(o *options) { o.tracker = t }
}

// WithCodes names transaction codes that get their own label. The
// built-in codes always do.
func WithCodes(codes ...binder.Code) Option {
	return func(o *options) { o.codes = append(o.codes, codes...) }
}

// WithBuckets sets the latency histogram buckets, in seconds.
func WithBuckets(b []float64) Option {
	return func(o *options) { o.buckets = b }
}

// New creates a Recorder. Its metrics are not registered until Register
// is called.
func New(opts ...Option) *Recorder {
	o := options{buckets: prometheus.ExponentialBuckets(0.00005, 4, 10)}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Recorder{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   transactSubsystem,
				Name:        "transactions_total",
				Help:        "Total number of completed transactions by side, code and outcome.",
				ConstLabels: o.constLabels,
			},
			[]string{"side", "code", "outcome"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   transactSubsystem,
				Name:        "duration_seconds",
				Help:        "Transaction duration in seconds.",
				ConstLabels: o.constLabels,
				Buckets:     o.buckets,
			},
			[]string{"side"},
		),
		Obituaries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   transactSubsystem,
				Name:        "obituaries_total",
				Help:        "Total number of obituaries delivered after a peer died.",
				ConstLabels: o.constLabels,
			},
		),
	}
	r.collectors = append(r.collectors, r.Transactions, r.Latency, r.Obituaries)
	r.codes = make(map[binder.Code]string)
	for _, c := range append([]binder.Code{binder.CodePing, binder.CodeInterface, binder.CodeObituary}, o.codes...) {
		r.codes[c] = c.String()
	}

	if t := o.tracker; t != nil {
		r.collectors = append(r.collectors, prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   atomSubsystem,
				Name:        "live",
				Help:        "Number of tracked reference counted objects not yet destroyed.",
				ConstLabels: o.constLabels,
			},
			func() float64 { return float64(t.Live()) },
		))
	}

	r.collectors = append(r.collectors,
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   valueSubsystem,
				Name:        "map_pool_hits_total",
				Help:        "Composite maps served from the pool.",
				ConstLabels: o.constLabels,
			},
			func() float64 {
				hits, _ := value.PoolStats()
				return float64(hits)
			},
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   valueSubsystem,
				Name:        "map_pool_misses_total",
				Help:        "Composite maps allocated because the pool was empty.",
				ConstLabels: o.constLabels,
			},
			func() float64 {
				_, misses := value.PoolStats()
				return float64(misses)
			},
		),
	)
	return r
}

// Register registers every metric of r with reg.
func (r *Recorder) Register(reg prometheus.Registerer) error {
	for _, c := range r.collectors {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "register metrics")
		}
	}
	return nil
}

// MustRegister is Register that panics on failure.
func (r *Recorder) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(r.collectors...)
}

// ObserveTransaction implements binder.Recorder.
func (r *Recorder) ObserveTransaction(side string, code binder.Code, outcome errors.Kind, elapsed time.Duration) {
	o := string(outcome)
	if o == "" {
		o = "ok"
	}
	c, ok := r.codes[code]
	if !ok {
		c = otherCode
	}
	r.Transactions.WithLabelValues(side, c, o).Inc()
	r.Latency.WithLabelValues(side).Observe(elapsed.Seconds())
}

// ObserveObituaries implements binder.Recorder.
func (r *Recorder) ObserveObituaries(n int) {
	if n > 0 {
		r.Obituaries.Add(float64(n))
	}
}

var _ binder.Recorder = (*Recorder)(nil)
