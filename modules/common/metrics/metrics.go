package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "regen"

// Collector - 배치 재생성 지표 수집기 (nil 리시버 허용)
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerInflight *prometheus.GaugeVec
	providerAttempts *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	batchesTotal     *prometheus.CounterVec
	batchDuration    prometheus.Histogram
}

// New - Registerer에 지표 등록
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Settled generation requests by provider and outcome (stored, inline, error)",
			},
			[]string{"provider", "outcome"},
		),
		providerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Provider generate call duration including retries",
				Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 240},
			},
			[]string{"provider"},
		),
		providerInflight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_inflight",
				Help:      "Provider requests currently in flight",
			},
			[]string{"provider"},
		),
		providerAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Provider call attempts including retries",
			},
			[]string{"provider"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resize_cache_lookups_total",
				Help:      "Resize cache lookups by result (hit, miss)",
			},
			[]string{"result"},
		),
		batchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batches by final status (completed, rejected)",
			},
			[]string{"status"},
		),
		batchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "End-to-end batch duration",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
	}
}

// ObserveRequest - 요청 1건의 최종 결과 기록
func (c *Collector) ObserveRequest(provider, outcome string) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(provider, outcome).Inc()
}

// TrackProviderCall - in-flight 증가 후 종료 함수 반환
func (c *Collector) TrackProviderCall(provider string) func() {
	if c == nil {
		return func() {}
	}
	start := time.Now()
	c.providerInflight.WithLabelValues(provider).Inc()
	return func() {
		c.providerInflight.WithLabelValues(provider).Dec()
		c.providerDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}
}

// ObserveAttempt - 재시도 포함 provider 호출 시도 기록
func (c *Collector) ObserveAttempt(provider string) {
	if c == nil {
		return
	}
	c.providerAttempts.WithLabelValues(provider).Inc()
}

// ObserveCache - 리사이즈 캐시 조회 결과 기록
func (c *Collector) ObserveCache(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveBatch - 배치 종료 기록
func (c *Collector) ObserveBatch(status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.batchesTotal.WithLabelValues(status).Inc()
	c.batchDuration.Observe(elapsed.Seconds())
}
