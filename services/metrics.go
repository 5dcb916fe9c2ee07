package services

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics は1回の実行中の通知とボタン操作の結果を数える
// nilでも呼び出せる
type Metrics struct {
	registry        *prometheus.Registry
	interactions    *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	approvalLatency prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pr_approve",
			Name:      "interactions_total",
			Help:      "Approve button clicks by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pr_approve",
			Name:      "notifications_total",
			Help:      "Notification messages sent to Slack by result.",
		}, []string{"result"}),
		approvalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pr_approve",
			Name:      "approval_duration_seconds",
			Help:      "Latency of the GitHub approve review call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.interactions, m.notifications, m.approvalLatency)
	return m
}

func (m *Metrics) RecordInteraction(outcome string) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordNotification(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveApproval(d time.Duration) {
	if m == nil {
		return
	}
	m.approvalLatency.Observe(d.Seconds())
}

// Handler は /metrics 用のハンドラを返す
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
