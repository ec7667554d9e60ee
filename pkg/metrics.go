package lru

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSink is the narrow interface shard operations report through. The
// no-op implementation is used whenever a caller does not opt into
// WithMetrics, keeping the hot path free of conditional branches.
type metricsSink interface {
	Hit()
	Miss()
	Insert()
	Evict()
	Erase()
	SetSize(n uint64)
}

type noopMetrics struct{}

func (noopMetrics) Hit()            {}
func (noopMetrics) Miss()           {}
func (noopMetrics) Insert()         {}
func (noopMetrics) Evict()          {}
func (noopMetrics) Erase()          {}
func (noopMetrics) SetSize(_ uint64) {}

type promMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	inserts   prometheus.Counter
	evictions prometheus.Counter
	erases    prometheus.Counter
	size      prometheus.Gauge
}

func newPromMetrics(reg prometheus.Registerer, shardIdx int) metricsSink {
	label := prometheus.Labels{"shard": strconv.Itoa(shardIdx)}
	m := &promMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgelru", Name: "hits_total", ConstLabels: label,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgelru", Name: "misses_total", ConstLabels: label,
		}),
		inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgelru", Name: "inserts_total", ConstLabels: label,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgelru", Name: "evictions_total", ConstLabels: label,
		}),
		erases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgelru", Name: "erases_total", ConstLabels: label,
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgelru", Name: "size", ConstLabels: label,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.inserts, m.evictions, m.erases, m.size)
	}
	return m
}

func (m *promMetrics) Hit()             { m.hits.Inc() }
func (m *promMetrics) Miss()            { m.misses.Inc() }
func (m *promMetrics) Insert()          { m.inserts.Inc() }
func (m *promMetrics) Evict()           { m.evictions.Inc() }
func (m *promMetrics) Erase()           { m.erases.Inc() }
func (m *promMetrics) SetSize(n uint64) { m.size.Set(float64(n)) }

func newMetricsSink(reg prometheus.Registerer, shardIdx int) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg, shardIdx)
}
