// internal/rss/poller.go - Feed fetching and item discovery
package rss

import (
    "context"
    "crypto/sha256"
    "encoding/hex"
    "fmt"
    "net/http"
    "time"

    "github.com/mmcdole/gofeed"
    "github.com/sirupsen/logrus"

    "github.com/goodmeow/tg-monitoring/internal/metrics"
    "github.com/goodmeow/tg-monitoring/internal/store"
)

const userAgent = "tgmon-rss/1.0"

// Poller fetches feeds and records items it has not seen before. Dedup is
// delegated to the store's (feed, guid) uniqueness, so polling the same
// feed twice never records an item twice.
type Poller struct {
    store  store.Store
    client *http.Client
    parser *gofeed.Parser
}

func NewPoller(s store.Store, timeout time.Duration) *Poller {
    return &Poller{
        store:  s,
        client: &http.Client{Timeout: timeout},
        parser: gofeed.NewParser(),
    }
}

// WithClient swaps the HTTP client, used by tests to stub transport.
func (p *Poller) WithClient(c *http.Client) *Poller {
    p.client = c
    return p
}

// PollFeed fetches one feed and inserts any items not seen before.
// Returns the number of newly recorded items. A 304 response counts as a
// successful poll with zero new items.
func (p *Poller) PollFeed(ctx context.Context, feed *store.Feed) (int, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
    if err != nil {
        return 0, fmt.Errorf("failed to build feed request: %w", err)
    }
    req.Header.Set("User-Agent", userAgent)
    if feed.ETag != "" {
        req.Header.Set("If-None-Match", feed.ETag)
    }
    if feed.LastModified != "" {
        req.Header.Set("If-Modified-Since", feed.LastModified)
    }

    resp, err := p.client.Do(req)
    if err != nil {
        return 0, fmt.Errorf("failed to fetch %s: %w", feed.URL, err)
    }
    defer resp.Body.Close()

    if resp.StatusCode == http.StatusNotModified {
        return 0, p.store.SetFeedPolled(ctx, feed.ID, time.Now())
    }
    if resp.StatusCode != http.StatusOK {
        return 0, fmt.Errorf("fetch %s returned status %d", feed.URL, resp.StatusCode)
    }

    parsed, err := p.parser.Parse(resp.Body)
    if err != nil {
        return 0, fmt.Errorf("failed to parse %s: %w", feed.URL, err)
    }

    err = p.store.UpdateFeedMeta(ctx, feed.ID, parsed.Title,
        resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"))
    if err != nil {
        return 0, fmt.Errorf("failed to update feed metadata: %w", err)
    }

    inserted := 0
    for _, entry := range parsed.Items {
        item := &store.FeedItem{
            FeedID:      feed.ID,
            GUID:        ItemGUID(entry),
            Title:       entry.Title,
            Link:        entry.Link,
            PublishedAt: entry.PublishedParsed,
        }
        if entry.Author != nil {
            item.Author = entry.Author.Name
        }

        ok, err := p.store.InsertItem(ctx, item)
        if err != nil {
            return inserted, fmt.Errorf("failed to record item %s: %w", item.GUID, err)
        }
        if ok {
            inserted++
            metrics.FeedItemsDiscovered.Inc()
        }
    }

    if err := p.store.SetFeedPolled(ctx, feed.ID, time.Now()); err != nil {
        return inserted, err
    }

    if inserted > 0 {
        logrus.WithFields(logrus.Fields{
            "feed": feed.URL,
            "new":  inserted,
        }).Info("Recorded new feed items")
    }
    return inserted, nil
}

// ItemGUID picks a stable identity for an entry: its declared guid, then
// its link, then a hash of title and publish date. The same rule applies
// on every poll so identity never shifts between rounds.
func ItemGUID(entry *gofeed.Item) string {
    if entry.GUID != "" {
        return entry.GUID
    }
    if entry.Link != "" {
        return entry.Link
    }

    published := ""
    if entry.PublishedParsed != nil {
        published = entry.PublishedParsed.UTC().Format(time.RFC3339)
    }
    sum := sha256.Sum256([]byte(entry.Title + "\x00" + published))
    return hex.EncodeToString(sum[:16])
}
