// internal/store/gormstore_test.go
package store

import (
    "context"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newTestGormStore(t *testing.T) *GormStore {
    t.Helper()
    s, err := NewGormStore(filepath.Join(t.TempDir(), "test.db"))
    require.NoError(t, err)
    t.Cleanup(func() { s.Close() })
    return s
}

func TestGormStoreChatUpsert(t *testing.T) {
    s := newTestGormStore(t)
    ctx := context.Background()

    require.NoError(t, s.UpsertChat(ctx, &Chat{ID: 42, Username: "ops"}))
    require.NoError(t, s.UpsertChat(ctx, &Chat{ID: 42, Username: "ops", Title: "Ops room"}))

    chat, err := s.GetChat(ctx, 42)
    require.NoError(t, err)
    assert.Equal(t, "Ops room", chat.Title)

    chats, err := s.ListChats(ctx)
    require.NoError(t, err)
    assert.Len(t, chats, 1)
}

func TestGormStoreFeedUniquePerChat(t *testing.T) {
    s := newTestGormStore(t)
    ctx := context.Background()

    first, err := s.AddFeed(ctx, 1, "https://example.com/rss", "Example")
    require.NoError(t, err)

    same, err := s.AddFeed(ctx, 1, "https://example.com/rss", "")
    require.NoError(t, err)
    assert.Equal(t, first.ID, same.ID, "same (chat, url) returns the existing row")

    other, err := s.AddFeed(ctx, 2, "https://example.com/rss", "")
    require.NoError(t, err)
    assert.NotEqual(t, first.ID, other.ID, "another chat gets its own subscription")
}

func TestGormStoreItemUniquePerFeed(t *testing.T) {
    s := newTestGormStore(t)
    ctx := context.Background()

    feed, err := s.AddFeed(ctx, 1, "https://example.com/rss", "")
    require.NoError(t, err)

    inserted, err := s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: "g1", Title: "one"})
    require.NoError(t, err)
    assert.True(t, inserted)

    inserted, err = s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: "g1", Title: "one again"})
    require.NoError(t, err)
    assert.False(t, inserted)
}

func TestGormStoreRemoveFeedCascades(t *testing.T) {
    s := newTestGormStore(t)
    ctx := context.Background()

    feed, err := s.AddFeed(ctx, 1, "https://example.com/rss", "")
    require.NoError(t, err)
    _, err = s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: "g1"})
    require.NoError(t, err)

    require.NoError(t, s.RemoveFeed(ctx, 1, "https://example.com/rss"))

    items, err := s.ListUnsentItems(ctx, 1, 0)
    require.NoError(t, err)
    assert.Empty(t, items)

    assert.ErrorIs(t, s.RemoveFeed(ctx, 1, "https://example.com/rss"), ErrNotFound)
}

func TestGormStoreUnsentItemsOrderedByPublish(t *testing.T) {
    s := newTestGormStore(t)
    ctx := context.Background()

    feed, err := s.AddFeed(ctx, 1, "https://example.com/rss", "")
    require.NoError(t, err)

    base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
    for i, guid := range []string{"c", "a", "b"} {
        at := base.Add(time.Duration(2-i) * time.Hour)
        _, err := s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: guid, PublishedAt: &at})
        require.NoError(t, err)
    }

    items, err := s.ListUnsentItems(ctx, 1, 2)
    require.NoError(t, err)
    require.Len(t, items, 2)
    assert.Equal(t, "b", items[0].GUID)
    assert.Equal(t, "a", items[1].GUID)

    require.NoError(t, s.MarkItemSent(ctx, feed.ID, "b"))
    counts, err := s.CountPendingByFeed(ctx, 1)
    require.NoError(t, err)
    assert.Equal(t, 2, counts[feed.ID])
}

func TestGormStoreUndatedItemsSortByDiscovery(t *testing.T) {
    s := newTestGormStore(t)
    ctx := context.Background()

    feed, err := s.AddFeed(ctx, 1, "https://example.com/rss", "")
    require.NoError(t, err)

    // discovered first but carries no publish date
    _, err = s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: "undated"})
    require.NoError(t, err)

    published := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
    _, err = s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: "dated", PublishedAt: &published})
    require.NoError(t, err)

    items, err := s.ListUnsentItems(ctx, 1, 0)
    require.NoError(t, err)
    require.Len(t, items, 2)
    assert.Equal(t, "dated", items[0].GUID, "old publish date beats recent discovery")
    assert.Equal(t, "undated", items[1].GUID, "undated item falls back to discovery time")
}

func TestGormStoreFeedMeta(t *testing.T) {
    s := newTestGormStore(t)
    ctx := context.Background()

    feed, err := s.AddFeed(ctx, 1, "https://example.com/rss", "")
    require.NoError(t, err)

    require.NoError(t, s.UpdateFeedMeta(ctx, feed.ID, "Example Blog", `"etag-1"`, "Mon, 01 Jan 2025 00:00:00 GMT"))
    polled := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
    require.NoError(t, s.SetFeedPolled(ctx, feed.ID, polled))

    loaded, err := s.GetFeed(ctx, feed.ID)
    require.NoError(t, err)
    assert.Equal(t, "Example Blog", loaded.Title)
    assert.Equal(t, `"etag-1"`, loaded.ETag)
    require.NotNil(t, loaded.LastPolledAt)
    assert.True(t, loaded.LastPolledAt.Equal(polled))

    assert.ErrorIs(t, s.UpdateFeedMeta(ctx, 9999, "x", "", ""), ErrNotFound)
}

func TestGormStoreAlertStateDefaultAndRoundTrip(t *testing.T) {
    s := newTestGormStore(t)
    ctx := context.Background()

    state, err := s.GetAlertState(ctx, "memory")
    require.NoError(t, err)
    assert.Equal(t, StatusOK, state.Status)

    state.Status = StatusAlert
    state.ConsecutiveBreaches = 5
    require.NoError(t, s.PutAlertState(ctx, state))

    loaded, err := s.GetAlertState(ctx, "memory")
    require.NoError(t, err)
    assert.Equal(t, StatusAlert, loaded.Status)
    assert.Equal(t, 5, loaded.ConsecutiveBreaches)

    states, err := s.ListAlertStates(ctx)
    require.NoError(t, err)
    assert.Len(t, states, 1)
}

func TestGormStoreSettings(t *testing.T) {
    s := newTestGormStore(t)
    ctx := context.Background()

    stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
    require.NoError(t, s.PutSetting(ctx, LastDigestKey(42), stamp))

    var loaded time.Time
    found, err := s.GetSetting(ctx, LastDigestKey(42), &loaded)
    require.NoError(t, err)
    assert.True(t, found)
    assert.True(t, loaded.Equal(stamp))
}
