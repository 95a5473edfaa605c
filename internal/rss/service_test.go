// internal/rss/service_test.go
package rss

import (
    "context"
    "errors"
    "io"
    "net/http"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/goodmeow/tg-monitoring/internal/config"
    "github.com/goodmeow/tg-monitoring/internal/store"
)

type stubSender struct {
    err   error
    calls [][]store.FeedItem
}

func (s *stubSender) SendDigest(ctx context.Context, chatID int64, feeds []store.Feed, items []store.FeedItem) error {
    if s.err != nil {
        return s.err
    }
    s.calls = append(s.calls, items)
    return nil
}

func newDigestFixture(t *testing.T, sender DigestSender) (*Service, store.Store, *store.Feed) {
    t.Helper()

    st, err := store.NewFileStore(t.TempDir())
    require.NoError(t, err)
    t.Cleanup(func() { st.Close() })

    feed, err := st.AddFeed(context.Background(), 1, "https://blog.example/rss", "Blog")
    require.NoError(t, err)

    cfg := config.RSSConfig{
        Enabled:      true,
        PerFeedLimit: 5,
        DigestLimit:  40,
    }
    return NewService(st, NewPoller(st, time.Second), sender, cfg), st, feed
}

func seedItems(t *testing.T, st store.Store, feedID int64, guids ...string) {
    t.Helper()
    base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
    for i, guid := range guids {
        at := base.Add(time.Duration(i) * time.Minute)
        _, err := st.InsertItem(context.Background(), &store.FeedItem{
            FeedID: feedID, GUID: guid, Title: guid, PublishedAt: &at,
        })
        require.NoError(t, err)
    }
}

func TestPollAllIsolatesFailingFeed(t *testing.T) {
    sender := &stubSender{}
    svc, st, _ := newDigestFixture(t, sender)
    ctx := context.Background()

    // every feed ahead of the working one in poll order is unreachable
    _, err := st.AddFeed(ctx, 1, "https://bad.example/rss", "")
    require.NoError(t, err)
    good, err := st.AddFeed(ctx, 1, "https://good.example/rss", "")
    require.NoError(t, err)

    svc.poller.WithClient(&http.Client{
        Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
            if r.URL.Host != "good.example" {
                return nil, errors.New("connection refused")
            }
            return &http.Response{
                StatusCode: http.StatusOK,
                Body:       io.NopCloser(strings.NewReader(rssDocument("a", "b"))),
                Header:     make(http.Header),
            }, nil
        }),
    })

    svc.PollAll(ctx)

    items, err := st.ListUnsentItems(ctx, 1, 0)
    require.NoError(t, err)
    assert.Len(t, items, 2, "the working feed was still polled")
    for _, it := range items {
        assert.Equal(t, good.ID, it.FeedID)
    }
}

func TestEmptyDigestAdvancesTimestamp(t *testing.T) {
    sender := &stubSender{}
    svc, st, feed := newDigestFixture(t, sender)
    ctx := context.Background()

    seedItems(t, st, feed.ID, "a")
    require.NoError(t, st.MarkItemSent(ctx, feed.ID, "a"))

    svc.DeliverDigests(ctx)
    assert.Empty(t, sender.calls, "nothing pending, nothing sent")

    var stamp time.Time
    found, err := st.GetSetting(ctx, store.LastDigestKey(1), &stamp)
    require.NoError(t, err)
    assert.True(t, found, "the digest round is still recorded")
    assert.False(t, stamp.IsZero())
}

func TestDigestMarksItemsSentAfterDelivery(t *testing.T) {
    sender := &stubSender{}
    svc, st, feed := newDigestFixture(t, sender)
    ctx := context.Background()

    seedItems(t, st, feed.ID, "a", "b")
    svc.DeliverDigests(ctx)

    require.Len(t, sender.calls, 1)
    assert.Len(t, sender.calls[0], 2)

    items, err := st.ListUnsentItems(ctx, 1, 0)
    require.NoError(t, err)
    assert.Empty(t, items, "delivered items are flagged sent")

    var stamp time.Time
    found, err := st.GetSetting(ctx, store.LastDigestKey(1), &stamp)
    require.NoError(t, err)
    assert.True(t, found)

    // nothing pending, nothing sent
    svc.DeliverDigests(ctx)
    assert.Len(t, sender.calls, 1)
}

func TestDigestKeepsItemsOnDeliveryFailure(t *testing.T) {
    sender := &stubSender{err: errors.New("telegram down")}
    svc, st, feed := newDigestFixture(t, sender)
    ctx := context.Background()

    seedItems(t, st, feed.ID, "a", "b")
    svc.DeliverDigests(ctx)

    items, err := st.ListUnsentItems(ctx, 1, 0)
    require.NoError(t, err)
    assert.Len(t, items, 2, "failed delivery leaves items pending")

    // delivery recovers and the same items go out
    sender.err = nil
    svc.DeliverDigests(ctx)
    require.Len(t, sender.calls, 1)
    assert.Len(t, sender.calls[0], 2)
}

func TestSelectDigestItemsCaps(t *testing.T) {
    var items []store.FeedItem
    for feed := int64(1); feed <= 3; feed++ {
        for i := 0; i < 10; i++ {
            items = append(items, store.FeedItem{FeedID: feed, GUID: string(rune('a' + i))})
        }
    }

    selected := selectDigestItems(items, 5, 12)
    assert.Len(t, selected, 12)

    perFeed := make(map[int64]int)
    for _, it := range selected {
        perFeed[it.FeedID]++
    }
    assert.Equal(t, 5, perFeed[1])
    assert.Equal(t, 5, perFeed[2])
    assert.Equal(t, 2, perFeed[3], "total cap cuts the last feed short")
}

func TestSelectDigestItemsKeepsOrder(t *testing.T) {
    items := []store.FeedItem{
        {FeedID: 1, GUID: "a"},
        {FeedID: 2, GUID: "b"},
        {FeedID: 1, GUID: "c"},
    }

    selected := selectDigestItems(items, 1, 10)
    require.Len(t, selected, 2)
    assert.Equal(t, "a", selected[0].GUID)
    assert.Equal(t, "b", selected[1].GUID)
}
