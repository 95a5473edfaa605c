// internal/metrics/prometheus.go
package metrics

import (
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
    SampleDuration = promauto.NewHistogram(
        prometheus.HistogramOpts{
            Name:    "tgmon_sample_duration_seconds",
            Help:    "Time spent scraping and evaluating one sampling round",
            Buckets: prometheus.DefBuckets,
        },
    )

    SampleTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "tgmon_samples_total",
            Help: "Total sampling rounds by outcome",
        },
        []string{"status"},
    )

    MetricStatus = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "tgmon_metric_status",
            Help: "Current status per metric (0=OK, 1=Warning, 2=Alert)",
        },
        []string{"metric"},
    )

    MetricValue = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "tgmon_metric_value",
            Help: "Last sampled value per metric",
        },
        []string{"metric"},
    )

    TransitionsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "tgmon_transitions_total",
            Help: "Alert and recovery transitions emitted",
        },
        []string{"type"},
    )

    NotificationsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "tgmon_notifications_total",
            Help: "Telegram deliveries by outcome",
        },
        []string{"kind", "status"},
    )

    FeedPollTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "tgmon_feed_polls_total",
            Help: "Feed poll attempts by outcome",
        },
        []string{"status"},
    )

    FeedItemsDiscovered = promauto.NewCounter(
        prometheus.CounterOpts{
            Name: "tgmon_feed_items_discovered_total",
            Help: "New feed items recorded for later delivery",
        },
    )

    WebSocketConnections = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "tgmon_websocket_connections_active",
            Help: "Number of active WebSocket connections",
        },
    )
)

func RecordSample(err error, duration time.Duration) {
    SampleDuration.Observe(duration.Seconds())
    if err != nil {
        SampleTotal.WithLabelValues("error").Inc()
        return
    }
    SampleTotal.WithLabelValues("success").Inc()
}

func UpdateMetricState(metricID, status string, value float64) {
    MetricStatus.WithLabelValues(metricID).Set(statusValue(status))
    MetricValue.WithLabelValues(metricID).Set(value)
}

func RecordTransition(eventType string) {
    TransitionsTotal.WithLabelValues(eventType).Inc()
}

func RecordNotification(kind string, err error) {
    if err != nil {
        NotificationsTotal.WithLabelValues(kind, "error").Inc()
        return
    }
    NotificationsTotal.WithLabelValues(kind, "success").Inc()
}

func RecordFeedPoll(err error) {
    if err != nil {
        FeedPollTotal.WithLabelValues("error").Inc()
        return
    }
    FeedPollTotal.WithLabelValues("success").Inc()
}

func RecordWebSocketConnection(delta int) {
    WebSocketConnections.Add(float64(delta))
}

func statusValue(status string) float64 {
    switch status {
    case "ok":
        return 0
    case "warn":
        return 1
    case "alert":
        return 2
    default:
        return 3
    }
}
