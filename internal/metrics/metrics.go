package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paper_exchange"

// Engine holds the settlement collectors on a private registry.
type Engine struct {
	registry *prometheus.Registry

	commands     *prometheus.CounterVec
	commandTime  *prometheus.HistogramVec
	fills        *prometheus.CounterVec
	openOrders   prometheus.Gauge
	tickDuration prometheus.Histogram
	skipped      *prometheus.CounterVec
	recorderErrs *prometheus.CounterVec
	droppedFills prometheus.Counter
}

func New() *Engine {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Engine{
		registry: registry,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Settlement commands by kind and result.",
		}, []string{"kind", "result"}),
		commandTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent executing a settlement command.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Executed fills by symbol and side.",
		}, []string{"symbol", "side"}),
		openOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_orders",
			Help:      "Open orders seen by the last tick.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a full tick evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_skipped_symbols_total",
			Help:      "Symbols skipped during a tick because no fresh ticker was available.",
		}, []string{"symbol"}),
		recorderErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fill_recorder_errors_total",
			Help:      "Failed deliveries to fill recorders.",
		}, []string{"recorder"}),
		droppedFills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_dropped_total",
			Help:      "Fills not handed to recorders because the delivery queue was full.",
		}),
	}

	registry.MustRegister(
		m.commands,
		m.commandTime,
		m.fills,
		m.openOrders,
		m.tickDuration,
		m.skipped,
		m.recorderErrs,
		m.droppedFills,
	)

	return m
}

func (m *Engine) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Engine) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Engine) ObserveCommand(kind, result string, elapsed time.Duration) {
	m.commands.WithLabelValues(kind, result).Inc()
	m.commandTime.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Engine) ObserveFill(symbol, side string) {
	m.fills.WithLabelValues(symbol, side).Inc()
}

func (m *Engine) ObserveTick(elapsed time.Duration, open int) {
	m.tickDuration.Observe(elapsed.Seconds())
	m.openOrders.Set(float64(open))
}

func (m *Engine) ObserveSkippedSymbol(symbol string) {
	m.skipped.WithLabelValues(symbol).Inc()
}

func (m *Engine) ObserveRecorderError(recorder string) {
	m.recorderErrs.WithLabelValues(recorder).Inc()
}

func (m *Engine) ObserveDroppedFill() {
	m.droppedFills.Inc()
}
