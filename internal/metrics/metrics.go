// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordLogin(result string)
	RecordGuardDenial(guard string)
	RecordListingCreated()
	RecordReviewCreated()
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	loginAttempts   *prometheus.CounterVec
	guardDenials    *prometheus.CounterVec
	listingsCreated prometheus.Counter
	reviewsCreated  prometheus.Counter
	sessionsPurged  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yadoman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "yadoman_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yadoman_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		guardDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yadoman_guard_denials_total",
			Help: "ガード別のアクセス拒否数",
		}, []string{"guard"}),
		listingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yadoman_listings_created_total",
			Help: "作成されたリスティングの合計数",
		}),
		reviewsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yadoman_reviews_created_total",
			Help: "投稿されたレビューの合計数",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yadoman_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.loginAttempts,
		c.guardDenials,
		c.listingsCreated,
		c.reviewsCreated,
		c.sessionsPurged,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordLogin はログイン試行を結果（success/failure）付きで記録する。
func (c *Collector) RecordLogin(result string) {
	c.loginAttempts.WithLabelValues(result).Inc()
}

// RecordGuardDenial はガード（login/listing_owner/review_author）別の
// アクセス拒否を記録する。
func (c *Collector) RecordGuardDenial(guard string) {
	c.guardDenials.WithLabelValues(guard).Inc()
}

// RecordListingCreated はリスティング作成を記録する。
func (c *Collector) RecordListingCreated() {
	c.listingsCreated.Inc()
}

// RecordReviewCreated はレビュー投稿を記録する。
func (c *Collector) RecordReviewCreated() {
	c.reviewsCreated.Inc()
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// ルーターが/metricsへマウントする。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
