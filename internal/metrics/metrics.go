package metrics

import (
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/prometheus/client_golang/prometheus"

	"spc_monitor/internal/analytics"
)

// Metrics exports the analyzer's tick results as prometheus collectors.
type Metrics struct {
	ticksTotal     prometheus.Counter
	tickErrTotal   prometheus.Counter
	queueFullTotal prometheus.Counter
	redisErrTotal  prometheus.Counter
	tickSeconds    prometheus.Histogram
	tickSmoothed   prometheus.Gauge
	latestValue    *prometheus.GaugeVec
	bufferLength   *prometheus.GaugeVec
	firedTotal     *prometheus.CounterVec
	chainEvents    *prometheus.CounterVec
	chainLength    *prometheus.GaugeVec
	streamClients  prometheus.Gauge

	mu       sync.Mutex
	smoothed ewma.MovingAverage
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spc_ticks_total",
			Help: "Total analyzer ticks",
		}),
		tickErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spc_tick_errors_total",
			Help: "Total source and export errors reported by ticks",
		}),
		queueFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spc_queue_full_total",
			Help: "Total snapshots dropped because the worker queue is full",
		}),
		redisErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_error_total",
			Help: "Total redis errors",
		}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spc_tick_seconds",
			Help:    "Latency of one analyzer tick",
			Buckets: prometheus.DefBuckets,
		}),
		tickSmoothed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spc_tick_seconds_ewma",
			Help: "Exponentially smoothed tick latency",
		}),
		latestValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spc_buffer_latest_value",
			Help: "Newest value of each buffer",
		}, []string{"buffer"}),
		bufferLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spc_buffer_length",
			Help: "Number of samples held by each buffer",
		}, []string{"buffer"}),
		firedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spc_trigger_fired_total",
			Help: "Total ticks on which a trigger predicate held",
		}, []string{"trigger"}),
		chainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spc_trigger_chain_events_total",
			Help: "Total chain transitions per trigger",
		}, []string{"trigger", "kind"}),
		chainLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spc_trigger_chain_length",
			Help: "Length of the open chain per trigger, 0 when idle",
		}, []string{"trigger"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spc_stream_clients",
			Help: "Connected websocket clients",
		}),
		smoothed: ewma.NewMovingAverage(),
	}

	reg.MustRegister(
		m.ticksTotal,
		m.tickErrTotal,
		m.queueFullTotal,
		m.redisErrTotal,
		m.tickSeconds,
		m.tickSmoothed,
		m.latestValue,
		m.bufferLength,
		m.firedTotal,
		m.chainEvents,
		m.chainLength,
		m.streamClients,
	)
	return m
}

// Observe records one tick that took elapsed.
func (m *Metrics) Observe(snap analytics.Snapshot, elapsed time.Duration) {
	m.ticksTotal.Inc()
	m.tickErrTotal.Add(float64(len(snap.Errors)))
	m.tickSeconds.Observe(elapsed.Seconds())

	m.mu.Lock()
	m.smoothed.Add(elapsed.Seconds())
	m.tickSmoothed.Set(m.smoothed.Value())
	m.mu.Unlock()

	for _, r := range []*analytics.Reading{snap.Data, snap.Central, snap.Spread} {
		if r == nil {
			continue
		}
		m.bufferLength.WithLabelValues(r.Buffer).Set(float64(r.Length))
		if r.Length > 0 {
			m.latestValue.WithLabelValues(r.Buffer).Set(r.Value)
		}
	}

	for _, tr := range snap.Triggers {
		if tr.Fired {
			m.firedTotal.WithLabelValues(tr.Name).Inc()
		}
		m.chainLength.WithLabelValues(tr.Name).Set(float64(tr.ChainLength))
	}
	for _, ev := range snap.Events {
		m.chainEvents.WithLabelValues(ev.Trigger, string(ev.Kind)).Inc()
	}
}

func (m *Metrics) QueueFull()  { m.queueFullTotal.Inc() }
func (m *Metrics) RedisError() { m.redisErrTotal.Inc() }

func (m *Metrics) StreamClients(n int) {
	m.streamClients.Set(float64(n))
}
