// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// スケジューラやワーカーから利用する。
type MetricsCollector interface {
	RecordClaim()
	RecordClaimConflict()
	RecordLaunch()
	RecordLaunchFailure()
	RecordLaunchLatency(duration time.Duration)
	RecordMalformedSkip()
	RecordStaleClaimsReset(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	claims         prometheus.Counter
	claimConflicts prometheus.Counter
	launches       prometheus.Counter
	launchFails    prometheus.Counter
	launchLatency  prometheus.Histogram
	malformedSkips prometheus.Counter
	staleResets    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_claims_total",
			Help: "イベントクレーム成功の合計数",
		}),
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_claim_conflicts_total",
			Help: "クレーム競合（既にクレーム済み）の合計数",
		}),
		launches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_launches_total",
			Help: "ワーカープロセス起動成功の合計数",
		}),
		launchFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_launch_fail_total",
			Help: "ワーカープロセス起動失敗の合計数",
		}),
		launchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetbot_launch_latency_seconds",
			Help:    "ワーカープロセス起動のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		malformedSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_malformed_skips_total",
			Help: "日時フォーマット不正でスキップしたイベントの合計数",
		}),
		staleResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_stale_claims_reset_total",
			Help: "スイープで失敗扱いにした滞留クレームの合計数",
		}),
	}

	reg.MustRegister(
		c.claims,
		c.claimConflicts,
		c.launches,
		c.launchFails,
		c.launchLatency,
		c.malformedSkips,
		c.staleResets,
	)

	return c
}

// RecordClaim はクレーム成功を記録する。
func (c *Collector) RecordClaim() {
	c.claims.Inc()
}

// RecordClaimConflict はクレーム競合を記録する。
func (c *Collector) RecordClaimConflict() {
	c.claimConflicts.Inc()
}

// RecordLaunch はワーカープロセス起動成功を記録する。
func (c *Collector) RecordLaunch() {
	c.launches.Inc()
}

// RecordLaunchFailure はワーカープロセス起動失敗を記録する。
func (c *Collector) RecordLaunchFailure() {
	c.launchFails.Inc()
}

// RecordLaunchLatency は起動のレイテンシを記録する。
func (c *Collector) RecordLaunchLatency(duration time.Duration) {
	c.launchLatency.Observe(duration.Seconds())
}

// RecordMalformedSkip は日時不正によるスキップを記録する。
func (c *Collector) RecordMalformedSkip() {
	c.malformedSkips.Inc()
}

// RecordStaleClaimsReset はスイープによるリセット件数を記録する。
func (c *Collector) RecordStaleClaimsReset(count int64) {
	c.staleResets.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
