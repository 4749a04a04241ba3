package lbl

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

//TrainMetrics holds the Prometheus metrics of a training run.
//A nil *TrainMetrics is valid and records nothing.
type TrainMetrics struct {
	registry *prometheus.Registry

	Rounds          prometheus.Counter
	RejectedRounds  prometheus.Counter
	Loss            prometheus.Gauge
	Error           prometheus.Gauge
	Features        prometheus.Gauge
	RoundDuration   prometheus.Histogram
	LineSearchScale prometheus.Histogram
}

//NewTrainMetrics creates the training metrics on a private registry.
func NewTrainMetrics() *TrainMetrics {
	m := &TrainMetrics{
		registry: prometheus.NewRegistry(),

		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lut_boost_rounds_total",
			Help: "Number of accepted boosting rounds",
		}),
		RejectedRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lut_boost_rejected_rounds_total",
			Help: "Number of rounds stopped without an improving LUT",
		}),
		Loss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lut_boost_loss",
			Help: "Objective of the committed scores",
		}),
		Error: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lut_boost_error",
			Help: "Weighted empirical error of the committed scores",
		}),
		Features: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lut_boost_features",
			Help: "Number of distinct features used by the model",
		}),
		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lut_boost_round_duration_seconds",
			Help:    "Duration of a boosting round in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		LineSearchScale: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lut_boost_line_search_scale",
			Help:    "Scales picked by the line search",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1.0, 1.5, 2.0, 4.0, 8.0},
		}),
	}

	m.registry.MustRegister(
		m.Rounds,
		m.RejectedRounds,
		m.Loss,
		m.Error,
		m.Features,
		m.RoundDuration,
		m.LineSearchScale,
	)
	return m
}

//Gatherer exposes the registry, e.g. for promhttp or tests.
func (m *TrainMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *TrainMetrics) observeRound(info RoundInfo, scales []float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Rounds.Inc()
	m.Loss.Set(info.Loss)
	m.Error.Set(info.Error)
	m.Features.Set(float64(info.Features))
	m.RoundDuration.Observe(elapsed.Seconds())
	for _, scale := range scales {
		if !math.IsNaN(scale) {
			m.LineSearchScale.Observe(scale)
		}
	}
}

func (m *TrainMetrics) observeRejected() {
	if m == nil {
		return
	}
	m.RejectedRounds.Inc()
}

//WriteTextfile dumps the metrics in the node exporter textfile format.
func (m *TrainMetrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
