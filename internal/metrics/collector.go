// internal/metrics/collector.go
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovshanmuradov/solana-hft/internal/source"
)

const namespace = "solana_hft"

// MetricType представляет тип метрики
type MetricType string

const (
	SourceAttemptsType  MetricType = "source_attempts"
	SourceLatencyType   MetricType = "source_latency"
	FallbacksType       MetricType = "fallbacks"
	StrategyRunningType MetricType = "strategy_running"
	StrategyPnLType     MetricType = "strategy_pnl"
	HTTPRequestsType    MetricType = "http_requests"
	HTTPLatencyType     MetricType = "http_latency"
)

// Collector управляет набором метрик на собственном реестре, поэтому
// несколько коллекторов могут жить в одном процессе (тесты).
type Collector struct {
	metrics  sync.Map
	registry *prometheus.Registry
}

// NewCollector создает новый экземпляр коллектора метрик
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	metricsMap := map[MetricType]prometheus.Collector{
		SourceAttemptsType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_attempts_total",
				Help:      "Source fetch attempts by outcome",
			},
			[]string{"capability", "source", "outcome"},
		),
		SourceLatencyType: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_latency_seconds",
				Help:      "Source fetch latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"capability", "source"},
		),
		FallbacksType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Resolutions answered without a live source",
			},
			[]string{"capability", "origin"},
		),
		StrategyRunningType: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "strategy_running",
				Help:      "1 while the strategy slot is running",
			},
			[]string{"kind"},
		),
		StrategyPnLType: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "strategy_accrued_pnl",
				Help:      "Simulated accrued PnL per strategy slot",
			},
			[]string{"kind"},
		),
		HTTPRequestsType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP API requests by route and status code",
			},
			[]string{"route", "code"},
		),
		HTTPLatencyType: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		c.registry.MustRegister(metric)
	}
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveAttempt записывает попытку обращения к источнику
func (c *Collector) ObserveAttempt(capability, src string, elapsed time.Duration, err error) {
	if counter, ok := c.counter(SourceAttemptsType); ok {
		counter.WithLabelValues(capability, src, outcome(err)).Inc()
	}
	if hist, ok := c.histogram(SourceLatencyType); ok {
		hist.WithLabelValues(capability, src).Observe(elapsed.Seconds())
	}
}

// ObserveFallback записывает деградированный результат
func (c *Collector) ObserveFallback(capability, origin string) {
	if counter, ok := c.counter(FallbacksType); ok {
		counter.WithLabelValues(capability, origin).Inc()
	}
}

// ObserveStrategy обновляет состояние и PnL слота стратегии
func (c *Collector) ObserveStrategy(kind string, running bool, pnl float64) {
	if gauge, ok := c.gauge(StrategyRunningType); ok {
		v := 0.0
		if running {
			v = 1
		}
		gauge.WithLabelValues(kind).Set(v)
	}
	if gauge, ok := c.gauge(StrategyPnLType); ok {
		gauge.WithLabelValues(kind).Set(pnl)
	}
}

// ObserveRequest записывает метрики HTTP запроса
func (c *Collector) ObserveRequest(route string, code int, duration time.Duration) {
	if counter, ok := c.counter(HTTPRequestsType); ok {
		counter.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
	if hist, ok := c.histogram(HTTPLatencyType); ok {
		hist.WithLabelValues(route).Observe(duration.Seconds())
	}
}

func (c *Collector) counter(t MetricType) (*prometheus.CounterVec, bool) {
	m, ok := c.metrics.Load(t)
	if !ok {
		return nil, false
	}
	v, ok := m.(*prometheus.CounterVec)
	return v, ok
}

func (c *Collector) gauge(t MetricType) (*prometheus.GaugeVec, bool) {
	m, ok := c.metrics.Load(t)
	if !ok {
		return nil, false
	}
	v, ok := m.(*prometheus.GaugeVec)
	return v, ok
}

func (c *Collector) histogram(t MetricType) (*prometheus.HistogramVec, bool) {
	m, ok := c.metrics.Load(t)
	if !ok {
		return nil, false
	}
	v, ok := m.(*prometheus.HistogramVec)
	return v, ok
}

// outcome maps a source error onto a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, source.ErrTimeout):
		return "timeout"
	case errors.Is(err, source.ErrCanceled):
		return "canceled"
	case errors.Is(err, source.ErrRateLimit):
		return "rate_limited"
	case errors.Is(err, source.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, source.ErrInvalidIdentity):
		return "invalid_identity"
	default:
		return "transport"
	}
}
