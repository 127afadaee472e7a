package obs

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream names an event-log consumer.
type Stream uint8

const (
	_stream_beg Stream = iota
	StreamSettlement
	StreamOrderbook
	StreamCandle
	_stream_end
)

func (s Stream) IsAvailable() bool {
	return s > _stream_beg && s < _stream_end
}

func (s Stream) String() string {
	switch s {
	case StreamSettlement:
		return "settlement"
	case StreamOrderbook:
		return "orderbook"
	case StreamCandle:
		return "candle"
	default:
		return "unknown"
	}
}

// Outcome is what a consumer did with one event.
type Outcome uint8

const (
	OutcomeApplied Outcome = iota
	OutcomeSkipped
	OutcomeMalformed
	OutcomeRetried
	_outcome_end
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeRetried:
		return "retried"
	default:
		return "unknown"
	}
}

// Metrics collects lightweight counters and latency stats and mirrors them
// into prometheus collectors.
type Metrics struct {
	outcomes      [_stream_end][_outcome_end]uint64
	handleLatency [_stream_end]LatencyStats

	connections      int64
	evictions        uint64
	slowConsumers    uint64
	framesSent       uint64
	notifyFailures   uint64
	candlesPersisted uint64

	registry *prometheus.Registry
	prom     promCollectors
}

type promCollectors struct {
	events           *prometheus.CounterVec
	handleSeconds    *prometheus.HistogramVec
	connections      prometheus.Gauge
	evictions        prometheus.Counter
	slowConsumers    prometheus.Counter
	framesSent       prometheus.Counter
	notifyFailures   prometheus.Counter
	candlesPersisted prometheus.Counter
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Outcomes         map[Stream]map[Outcome]uint64
	HandleLatency    map[Stream]LatencySnapshot
	Connections      int64
	Evictions        uint64
	SlowConsumers    uint64
	FramesSent       uint64
	NotifyFailures   uint64
	CandlesPersisted uint64
}

// NewMetrics allocates a metrics container with its own prometheus registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		prom: promCollectors{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "exchange_events_total",
				Help: "Events consumed from the event log by stream and outcome.",
			}, []string{"stream", "outcome"}),
			handleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "exchange_event_handle_seconds",
				Help:    "Time spent applying one event.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			}, []string{"stream"}),
			connections: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "exchange_gateway_connections",
				Help: "Open client connections.",
			}),
			evictions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "exchange_gateway_evictions_total",
				Help: "Connections closed by the liveness sweep.",
			}),
			slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "exchange_gateway_slow_consumers_total",
				Help: "Connections closed because their outbound queue overflowed.",
			}),
			framesSent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "exchange_gateway_frames_sent_total",
				Help: "Frames written to client connections.",
			}),
			notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "exchange_notify_failures_total",
				Help: "Best-effort notifications that failed to publish.",
			}),
			candlesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "exchange_candles_persisted_total",
				Help: "Candle upserts written to the store.",
			}),
		},
	}
	reg.MustRegister(
		m.prom.events,
		m.prom.handleSeconds,
		m.prom.connections,
		m.prom.evictions,
		m.prom.slowConsumers,
		m.prom.framesSent,
		m.prom.notifyFailures,
		m.prom.candlesPersisted,
	)
	return m
}

// Handler serves the prometheus exposition of this container.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent records the outcome and handling time of one event.
func (m *Metrics) ObserveEvent(s Stream, o Outcome, d time.Duration) {
	if m == nil || !s.IsAvailable() || o >= _outcome_end {
		return
	}
	atomic.AddUint64(&m.outcomes[s][o], 1)
	m.prom.events.WithLabelValues(s.String(), o.String()).Inc()
	if o == OutcomeRetried || d <= 0 {
		return
	}
	m.handleLatency[s].Observe(d)
	m.prom.handleSeconds.WithLabelValues(s.String()).Observe(d.Seconds())
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.connections, 1)
	m.prom.connections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.connections, -1)
	m.prom.connections.Dec()
}

func (m *Metrics) IncEviction() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.evictions, 1)
	m.prom.evictions.Inc()
}

func (m *Metrics) IncSlowConsumer() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.slowConsumers, 1)
	m.prom.slowConsumers.Inc()
}

func (m *Metrics) IncFrameSent() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.framesSent, 1)
	m.prom.framesSent.Inc()
}

func (m *Metrics) IncNotifyFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.notifyFailures, 1)
	m.prom.notifyFailures.Inc()
}

func (m *Metrics) IncCandlePersisted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.candlesPersisted, 1)
	m.prom.candlesPersisted.Inc()
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	outcomes := make(map[Stream]map[Outcome]uint64)
	latency := make(map[Stream]LatencySnapshot)
	for s := _stream_beg + 1; s < _stream_end; s++ {
		for o := OutcomeApplied; o < _outcome_end; o++ {
			if v := atomic.LoadUint64(&m.outcomes[s][o]); v > 0 {
				if outcomes[s] == nil {
					outcomes[s] = make(map[Outcome]uint64)
				}
				outcomes[s][o] = v
			}
		}
		if l := m.handleLatency[s].Snapshot(); l.Count > 0 {
			latency[s] = l
		}
	}
	return Snapshot{
		Outcomes:         outcomes,
		HandleLatency:    latency,
		Connections:      atomic.LoadInt64(&m.connections),
		Evictions:        atomic.LoadUint64(&m.evictions),
		SlowConsumers:    atomic.LoadUint64(&m.slowConsumers),
		FramesSent:       atomic.LoadUint64(&m.framesSent),
		NotifyFailures:   atomic.LoadUint64(&m.notifyFailures),
		CandlesPersisted: atomic.LoadUint64(&m.candlesPersisted),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}

	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
