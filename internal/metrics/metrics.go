// Package metrics provides Prometheus metrics for index builds and record reads.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ScanCallsTotal        prometheus.Counter
	BytesReadTotal        prometheus.Counter
	RecordsReadTotal      *prometheus.CounterVec
	MalformedObjectsTotal prometheus.Counter
	BuildDuration         prometheus.Histogram
}

// New creates the collectors and registers them on reg.
//
// Registering on a registry that already holds them reuses the existing
// collectors, so several indexes can report into one registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		ScanCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audioindex_scan_calls_total",
			Help: "Total number of pattern and structure scans",
		}),
		BytesReadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audioindex_bytes_read_total",
			Help: "Total bytes read from index documents",
		}),
		RecordsReadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audioindex_records_read_total",
				Help: "Total number of on-demand record reads",
			},
			[]string{"kind", "status"},
		),
		MalformedObjectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audioindex_malformed_objects_total",
			Help: "Total number of objects skipped because their braces never closed",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioindex_build_duration_seconds",
			Help:    "Duration of index builds in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}

	var err error
	m.ScanCallsTotal, err = register(reg, m.ScanCallsTotal)
	if err != nil {
		return nil, err
	}
	m.BytesReadTotal, err = register(reg, m.BytesReadTotal)
	if err != nil {
		return nil, err
	}
	m.RecordsReadTotal, err = register(reg, m.RecordsReadTotal)
	if err != nil {
		return nil, err
	}
	m.MalformedObjectsTotal, err = register(reg, m.MalformedObjectsTotal)
	if err != nil {
		return nil, err
	}
	m.BuildDuration, err = register(reg, m.BuildDuration)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// RecordBuild records one index build.
func (m *Metrics) RecordBuild(scanCalls, bytesRead int64, malformed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ScanCallsTotal.Add(float64(scanCalls))
	m.BytesReadTotal.Add(float64(bytesRead))
	m.MalformedObjectsTotal.Add(float64(malformed))
	m.BuildDuration.Observe(duration.Seconds())
}

// RecordRead records one on-demand record read.
func (m *Metrics) RecordRead(kind string, bytesRead int64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RecordsReadTotal.WithLabelValues(kind, status).Inc()
	m.BytesReadTotal.Add(float64(bytesRead))
}
