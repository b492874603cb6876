// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Streaming metrics
	FramesReceived     prometheus.Counter
	TicksCached        prometheus.Counter
	TicksLogged        prometheus.Counter
	CacheWritesDropped prometheus.Counter
	LogBackpressure    prometheus.Counter
	Reconnects         prometheus.Counter
	StaleTransitions   prometheus.Counter
	Resubscriptions    prometheus.Counter
	EngineState        prometheus.Gauge
	LastFrameTime      prometheus.Gauge
	SubscriptionSize   prometheus.Gauge

	// Token metrics
	TokenRefreshes *prometheus.CounterVec

	// Transform metrics
	StageRuns       *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	RowsImported    prometheus.Counter
	MarksInserted   *prometheus.CounterVec
	RowsDropped     *prometheus.CounterVec
	OutliersFlagged prometheus.Counter

	// Supervisor metrics
	EngineRestarts  prometheus.Counter
	CalendarReloads *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "optionflow"
	}

	return &Metrics{
		// Streaming metrics
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Total number of inbound streaming frames decoded",
		}),
		TicksCached: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ticks_cached_total",
			Help:      "Total number of ticks written to the latest-value cache",
		}),
		TicksLogged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ticks_logged_total",
			Help:      "Total number of ticks appended to the daily log",
		}),
		CacheWritesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "cache_writes_dropped_total",
			Help:      "Total number of cache writes dropped under backpressure",
		}),
		LogBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "log_backpressure_total",
			Help:      "Total number of log writes that exceeded the bounded wait",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts",
		}),
		StaleTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "stale_transitions_total",
			Help:      "Total number of transitions into the stale state",
		}),
		Resubscriptions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "resubscriptions_total",
			Help:      "Total number of subscription set rebuilds from price drift",
		}),
		EngineState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "engine_state",
			Help:      "Current engine state as an enum ordinal",
		}),
		LastFrameTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "last_frame_timestamp",
			Help:      "Unix timestamp of the most recent inbound frame",
		}),
		SubscriptionSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscription_size",
			Help:      "Number of symbols in the current subscription set",
		}),

		// Token metrics
		TokenRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Total number of token refresh attempts by profile and status",
		}, []string{"api_name", "status"}),

		// Transform metrics
		StageRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "stage_runs_total",
			Help:      "Total number of transform stage runs by stage and status",
		}, []string{"stage", "status"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "stage_duration_seconds",
			Help:      "Transform stage execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		RowsImported: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "rows_imported_total",
			Help:      "Total number of raw rows imported into staging",
		}),
		MarksInserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "marks_inserted_total",
			Help:      "Total number of mark rows inserted by table",
		}, []string{"table"}),
		RowsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "rows_dropped_total",
			Help:      "Total number of rows dropped by reason",
		}, []string{"reason"}),
		OutliersFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "outliers_flagged_total",
			Help:      "Total number of spread series points rejected as outliers",
		}),

		// Supervisor metrics
		EngineRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "engine_restarts_total",
			Help:      "Total number of engine restarts issued by the monitor",
		}),
		CalendarReloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "calendar_reloads_total",
			Help:      "Total number of calendar reload attempts by status",
		}, []string{"status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFrameReceived increments the frames received counter and updates
// the last frame timestamp.
func RecordFrameReceived(unixSeconds float64) {
	DefaultMetrics.FramesReceived.Inc()
	DefaultMetrics.LastFrameTime.Set(unixSeconds)
}

// RecordTickCached increments the ticks cached counter.
func RecordTickCached() {
	DefaultMetrics.TicksCached.Inc()
}

// RecordTickLogged increments the ticks logged counter.
func RecordTickLogged() {
	DefaultMetrics.TicksLogged.Inc()
}

// RecordCacheDrop increments the dropped cache writes counter.
func RecordCacheDrop() {
	DefaultMetrics.CacheWritesDropped.Inc()
}

// RecordLogBackpressure increments the log backpressure counter.
func RecordLogBackpressure() {
	DefaultMetrics.LogBackpressure.Inc()
}

// RecordReconnect increments the reconnects counter.
func RecordReconnect() {
	DefaultMetrics.Reconnects.Inc()
}

// RecordStale increments the stale transitions counter.
func RecordStale() {
	DefaultMetrics.StaleTransitions.Inc()
}

// RecordResubscription increments the resubscriptions counter.
func RecordResubscription() {
	DefaultMetrics.Resubscriptions.Inc()
}

// SetEngineState updates the engine state gauge.
func SetEngineState(ordinal int) {
	DefaultMetrics.EngineState.Set(float64(ordinal))
}

// SetSubscriptionSize updates the subscription size gauge.
func SetSubscriptionSize(n int) {
	DefaultMetrics.SubscriptionSize.Set(float64(n))
}

// RecordTokenRefresh records a token refresh attempt.
func RecordTokenRefresh(apiName, status string) {
	DefaultMetrics.TokenRefreshes.WithLabelValues(apiName, status).Inc()
}

// RecordStageRun records a transform stage run.
func RecordStageRun(stage, status string, durationSeconds float64) {
	DefaultMetrics.StageRuns.WithLabelValues(stage, status).Inc()
	DefaultMetrics.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordRowsImported adds to the imported rows counter.
func RecordRowsImported(n int) {
	DefaultMetrics.RowsImported.Add(float64(n))
}

// RecordMarksInserted adds to the inserted marks counter for a table.
func RecordMarksInserted(table string, n int) {
	DefaultMetrics.MarksInserted.WithLabelValues(table).Add(float64(n))
}

// RecordRowsDropped adds to the dropped rows counter for a reason.
func RecordRowsDropped(reason string, n int) {
	DefaultMetrics.RowsDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordOutliersFlagged adds to the flagged outliers counter.
func RecordOutliersFlagged(n int) {
	DefaultMetrics.OutliersFlagged.Add(float64(n))
}

// RecordEngineRestart increments the supervisor restart counter.
func RecordEngineRestart() {
	DefaultMetrics.EngineRestarts.Inc()
}

// RecordCalendarReload records a calendar reload attempt.
func RecordCalendarReload(status string) {
	DefaultMetrics.CalendarReloads.WithLabelValues(status).Inc()
}
