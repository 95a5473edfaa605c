// internal/notify/compose.go - Message composers
package notify

import (
    "fmt"
    "html"
    "strings"

    "github.com/goodmeow/tg-monitoring/internal/monitor"
    "github.com/goodmeow/tg-monitoring/internal/store"
)

const barWidth = 10

// Bar renders a usage fraction as a fixed-width block gauge, clamped to
// [0, 1].
func Bar(fraction float64) string {
    if fraction < 0 {
        fraction = 0
    }
    if fraction > 1 {
        fraction = 1
    }
    filled := int(fraction*barWidth + 0.5)

    var b strings.Builder
    for i := 0; i < barWidth; i++ {
        if i < filled {
            b.WriteRune('█')
        } else {
            b.WriteRune('░')
        }
    }
    return b.String()
}

// ComposeTransition renders an alert or recovery message.
func ComposeTransition(event *monitor.TransitionEvent) string {
    var b strings.Builder
    if event.Type == monitor.EventAlert {
        b.WriteString("🔴 <b>ALERT</b>")
    } else {
        b.WriteString("🟢 <b>RECOVERED</b>")
    }
    fmt.Fprintf(&b, " - %s\n", html.EscapeString(event.Label))
    fmt.Fprintf(&b, "%s %.1f%%\n", Bar(event.Value), event.Value*100)
    b.WriteString(html.EscapeString(event.Message))
    return b.String()
}

// ComposeStatus renders the current state of every tracked metric.
func ComposeStatus(states []store.AlertState) string {
    var b strings.Builder
    b.WriteString("📊 <b>System status</b>\n\n")

    if len(states) == 0 {
        b.WriteString("No samples recorded yet.")
        return b.String()
    }

    for _, st := range states {
        fmt.Fprintf(&b, "%s <code>%s</code> %s %.1f%%\n",
            statusEmoji(st.Status),
            html.EscapeString(st.MetricID),
            Bar(st.LastValue),
            st.LastValue*100)
    }
    return b.String()
}

// ComposeDigest renders pending feed items grouped under their feed title.
func ComposeDigest(feeds []store.Feed, items []store.FeedItem) string {
    titles := make(map[int64]string, len(feeds))
    for _, f := range feeds {
        title := f.Title
        if title == "" {
            title = f.URL
        }
        titles[f.ID] = title
    }

    var b strings.Builder
    b.WriteString("📰 <b>Feed digest</b>\n")

    var lastFeed int64 = -1
    for _, item := range items {
        if item.FeedID != lastFeed {
            fmt.Fprintf(&b, "\n<b>%s</b>\n", html.EscapeString(titles[item.FeedID]))
            lastFeed = item.FeedID
        }
        title := item.Title
        if title == "" {
            title = item.GUID
        }
        if item.Link != "" {
            fmt.Fprintf(&b, "• <a href=\"%s\">%s</a>\n",
                html.EscapeString(item.Link), html.EscapeString(title))
        } else {
            fmt.Fprintf(&b, "• %s\n", html.EscapeString(title))
        }
    }
    return b.String()
}

func statusEmoji(status store.MetricStatus) string {
    switch status {
    case store.StatusAlert:
        return "🔴"
    case store.StatusWarn:
        return "🟡"
    default:
        return "🟢"
    }
}
