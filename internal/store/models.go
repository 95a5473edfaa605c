// internal/store/models.go
package store

import (
    "time"
)

// MetricStatus is the lifecycle status of a monitored metric. Transitions
// happen only inside the monitor package; storage code treats it as opaque.
type MetricStatus string

const (
    StatusOK    MetricStatus = "ok"
    StatusWarn  MetricStatus = "warn"
    StatusAlert MetricStatus = "alert"
)

// AlertState is the durable per-metric record the evaluator reads and writes
// once per sampling cycle. Records are created on first sample and never
// deleted.
type AlertState struct {
    MetricID            string       `json:"metric_id"`
    Status              MetricStatus `json:"status"`
    ConsecutiveBreaches int          `json:"consecutive_breaches"`
    LastValue           float64      `json:"last_value"`
    LastTransitionAt    time.Time    `json:"last_transition_at"`
    Message             string       `json:"message,omitempty"`
}

// NewAlertState returns the default-OK state for a previously unseen metric.
func NewAlertState(metricID string) *AlertState {
    return &AlertState{
        MetricID: metricID,
        Status:   StatusOK,
    }
}

// Chat is a messaging destination. Chats are soft-deleted (IsActive=false)
// so feed and item history stays attributable.
type Chat struct {
    ID        int64     `json:"id"`
    Username  string    `json:"username,omitempty"`
    Title     string    `json:"title,omitempty"`
    IsActive  bool      `json:"is_active"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

// Feed is one chat's subscription to a feed URL. The (ChatID, URL) pair is
// unique; the same URL may be subscribed by several chats independently.
type Feed struct {
    ID           int64      `json:"id"`
    ChatID       int64      `json:"chat_id"`
    URL          string     `json:"url"`
    Title        string     `json:"title,omitempty"`
    IsActive     bool       `json:"is_active"`
    ETag         string     `json:"etag,omitempty"`
    LastModified string     `json:"last_modified,omitempty"`
    LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
    CreatedAt    time.Time  `json:"created_at"`
    UpdatedAt    time.Time  `json:"updated_at"`
}

// FeedItem is a deduplication record: (FeedID, GUID) is created at most once.
// Sent flips to true after successful delivery and never back.
type FeedItem struct {
    ID          int64      `json:"id"`
    FeedID      int64      `json:"feed_id"`
    GUID        string     `json:"guid"`
    Title       string     `json:"title,omitempty"`
    Link        string     `json:"link,omitempty"`
    Author      string     `json:"author,omitempty"`
    PublishedAt *time.Time `json:"published_at,omitempty"`
    Sent        bool       `json:"sent"`
    CreatedAt   time.Time  `json:"created_at"`
}
