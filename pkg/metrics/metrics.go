// Package metrics 定义推荐服务的 Prometheus 指标。
//
// 指标通过 promauto 注册到默认 registry，由 server 的 /metrics 暴露。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 解析层（tier）取值
const (
	TierCorpus = "corpus"
	TierCache  = "cache"
	TierFetch  = "fetch"
	TierMiss   = "miss"
)

// 推荐来源（source）取值
const (
	SourceRanked   = "ranked"
	SourceFallback = "fallback"
	SourceError    = "error"
)

var (
	// ResolveTotal 每个历史物品最终命中的解析层
	ResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reckit_resolve_total",
			Help: "Total number of history items resolved, by tier",
		},
		[]string{"tier"}, // corpus, cache, fetch, miss
	)

	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reckit_fetch_failures_total",
			Help: "Total number of content API fetch failures",
		},
		[]string{"reason"}, // not_found, status, transport, decode, breaker, keywords
	)

	EncodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reckit_encode_failures_total",
			Help: "Total number of text encoding failures",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reckit_cache_errors_total",
			Help: "Total number of persistent cache errors",
		},
		[]string{"op"}, // get, put
	)

	RecommendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reckit_recommend_total",
			Help: "Total number of recommendation requests, by result source",
		},
		[]string{"source"},
	)

	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reckit_recommend_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CircuitBreakerState 0 = closed, 1 = half-open, 2 = open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reckit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordResolve 记录一次物品解析结果
func RecordResolve(tier string) {
	ResolveTotal.WithLabelValues(tier).Inc()
}

// RecordFetchFailure 记录一次内容 API 失败
func RecordFetchFailure(reason string) {
	FetchFailures.WithLabelValues(reason).Inc()
}

// RecordEncodeFailure 记录一次编码失败
func RecordEncodeFailure() {
	EncodeFailures.Inc()
}

// RecordCacheError 记录一次缓存读写错误
func RecordCacheError(op string) {
	CacheErrors.WithLabelValues(op).Inc()
}

// RecordRecommend 记录一次推荐请求的来源和耗时
func RecordRecommend(source string, duration time.Duration) {
	RecommendTotal.WithLabelValues(source).Inc()
	RecommendDuration.Observe(duration.Seconds())
}

// SetBreakerState 更新熔断器状态
func SetBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}
