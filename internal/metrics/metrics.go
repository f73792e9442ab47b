package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"focuscal/internal/focus"
)

const namespace = "focuscal"

// EngineObserver exports focus engine runs to Prometheus.
type EngineObserver struct {
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	suggestions prometheus.Histogram
	confidence  prometheus.Histogram
}

// NewEngineObserver registers the engine metrics on reg, reusing collectors
// that are already registered. A nil reg means the default registerer.
func NewEngineObserver(reg prometheus.Registerer) (*EngineObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &EngineObserver{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Focus engine runs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a focus engine run.",
			Buckets:   prometheus.DefBuckets,
		}),
		suggestions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "suggestions",
			Help:      "Suggestions returned per successful run.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10, 20},
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "confidence",
			Help:      "Confidence score per successful run.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	var err error
	if o.runs, err = register(reg, o.runs); err != nil {
		return nil, err
	}
	if o.duration, err = register(reg, o.duration); err != nil {
		return nil, err
	}
	if o.suggestions, err = register(reg, o.suggestions); err != nil {
		return nil, err
	}
	if o.confidence, err = register(reg, o.confidence); err != nil {
		return nil, err
	}
	return o, nil
}

var _ focus.Observer = (*EngineObserver)(nil)

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register engine metric: %w", err)
	}
	return c, nil
}

// ObserveRun records one finished run. Suggestion count and confidence are
// only recorded for successful runs.
func (o *EngineObserver) ObserveRun(outcome string, duration time.Duration, _, returned int, confidence float64) {
	if o == nil {
		return
	}
	o.runs.WithLabelValues(outcome).Inc()
	o.duration.Observe(duration.Seconds())
	if outcome != focus.OutcomeOK {
		return
	}
	o.suggestions.Observe(float64(returned))
	o.confidence.Observe(confidence)
}
