// internal/store/filestore_test.go
package store

import (
    "context"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
    t.Helper()
    dir := t.TempDir()
    s, err := NewFileStore(dir)
    require.NoError(t, err)
    t.Cleanup(func() { s.Close() })
    return s, dir
}

func TestFileStoreAlertStateRoundTrip(t *testing.T) {
    s, dir := newTestFileStore(t)
    ctx := context.Background()

    state, err := s.GetAlertState(ctx, "cpu_load")
    require.NoError(t, err)
    assert.Equal(t, StatusOK, state.Status, "unknown metric defaults to ok")

    state.Status = StatusAlert
    state.ConsecutiveBreaches = 3
    state.LastValue = 0.97
    require.NoError(t, s.PutAlertState(ctx, state))

    reopened, err := NewFileStore(dir)
    require.NoError(t, err)
    defer reopened.Close()

    loaded, err := reopened.GetAlertState(ctx, "cpu_load")
    require.NoError(t, err)
    assert.Equal(t, StatusAlert, loaded.Status)
    assert.Equal(t, 3, loaded.ConsecutiveBreaches)
    assert.Equal(t, 0.97, loaded.LastValue)
}

func TestFileStoreWriteRotatesBackup(t *testing.T) {
    s, dir := newTestFileStore(t)
    ctx := context.Background()

    require.NoError(t, s.PutAlertState(ctx, NewAlertState("a")))
    require.NoError(t, s.PutAlertState(ctx, NewAlertState("b")))

    _, err := os.Stat(filepath.Join(dir, "state.json"))
    require.NoError(t, err)
    _, err = os.Stat(filepath.Join(dir, "state.json.bak"))
    require.NoError(t, err, "second write rotates the previous file to .bak")
}

func TestFileStoreCorruptFileArchivedAndStartsEmpty(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "state.json")
    require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

    s, err := NewFileStore(dir)
    require.NoError(t, err)
    defer s.Close()

    state, err := s.GetAlertState(context.Background(), "cpu_load")
    require.NoError(t, err)
    assert.Equal(t, StatusOK, state.Status)

    archived, err := filepath.Glob(path + ".corrupt.*")
    require.NoError(t, err)
    assert.Len(t, archived, 1, "unreadable file is kept for inspection")
}

func TestFileStoreFallsBackToBackup(t *testing.T) {
    s, dir := newTestFileStore(t)
    ctx := context.Background()

    state := NewAlertState("cpu_load")
    state.Status = StatusWarn
    require.NoError(t, s.PutAlertState(ctx, state))
    require.NoError(t, s.PutAlertState(ctx, state))

    // simulate a crash between rotate and rename
    require.NoError(t, os.Remove(filepath.Join(dir, "state.json")))

    reopened, err := NewFileStore(dir)
    require.NoError(t, err)
    defer reopened.Close()

    loaded, err := reopened.GetAlertState(ctx, "cpu_load")
    require.NoError(t, err)
    assert.Equal(t, StatusWarn, loaded.Status)
}

func TestFileStoreAddFeedCreatesChatAndReactivates(t *testing.T) {
    s, _ := newTestFileStore(t)
    ctx := context.Background()

    feed, err := s.AddFeed(ctx, 42, "https://example.com/rss", "Example")
    require.NoError(t, err)
    assert.True(t, feed.IsActive)

    chat, err := s.GetChat(ctx, 42)
    require.NoError(t, err)
    assert.True(t, chat.IsActive, "subscribing implicitly registers the chat")

    require.NoError(t, s.RemoveFeed(ctx, 42, "https://example.com/rss"))

    again, err := s.AddFeed(ctx, 42, "https://example.com/rss", "")
    require.NoError(t, err)
    assert.True(t, again.IsActive)
    assert.Equal(t, "Example", feed.Title)
}

func TestFileStoreRemoveFeedDropsItems(t *testing.T) {
    s, _ := newTestFileStore(t)
    ctx := context.Background()

    feed, err := s.AddFeed(ctx, 1, "https://example.com/rss", "")
    require.NoError(t, err)

    _, err = s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: "g1", Title: "one"})
    require.NoError(t, err)
    require.NoError(t, s.RemoveFeed(ctx, 1, "https://example.com/rss"))

    counts, err := s.CountPendingByFeed(ctx, 1)
    require.NoError(t, err)
    assert.Empty(t, counts)

    assert.ErrorIs(t, s.RemoveFeed(ctx, 1, "https://example.com/rss"), ErrNotFound)
}

func TestFileStoreInsertItemDeduplicates(t *testing.T) {
    s, _ := newTestFileStore(t)
    ctx := context.Background()

    feed, err := s.AddFeed(ctx, 1, "https://example.com/rss", "")
    require.NoError(t, err)

    inserted, err := s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: "g1"})
    require.NoError(t, err)
    assert.True(t, inserted)

    inserted, err = s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: "g1"})
    require.NoError(t, err)
    assert.False(t, inserted, "same guid is recorded once")
}

func TestFileStoreUnsentItemsOrderedAndLimited(t *testing.T) {
    s, _ := newTestFileStore(t)
    ctx := context.Background()

    feed, err := s.AddFeed(ctx, 1, "https://example.com/rss", "")
    require.NoError(t, err)

    base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
    for i, guid := range []string{"c", "a", "b"} {
        at := base.Add(time.Duration(2-i) * time.Hour)
        _, err := s.InsertItem(ctx, &FeedItem{FeedID: feed.ID, GUID: guid, PublishedAt: &at})
        require.NoError(t, err)
    }

    items, err := s.ListUnsentItems(ctx, 1, 0)
    require.NoError(t, err)
    require.Len(t, items, 3)
    assert.Equal(t, "b", items[0].GUID, "oldest published first")
    assert.Equal(t, "a", items[1].GUID)
    assert.Equal(t, "c", items[2].GUID)

    require.NoError(t, s.MarkItemSent(ctx, feed.ID, "b"))
    items, err = s.ListUnsentItems(ctx, 1, 1)
    require.NoError(t, err)
    require.Len(t, items, 1)
    assert.Equal(t, "a", items[0].GUID)
}

func TestFileStoreSettings(t *testing.T) {
    s, _ := newTestFileStore(t)
    ctx := context.Background()

    var value string
    found, err := s.GetSetting(ctx, "missing", &value)
    require.NoError(t, err)
    assert.False(t, found)

    require.NoError(t, s.PutSetting(ctx, SettingMigrationComplete, true))

    var done bool
    found, err = s.GetSetting(ctx, SettingMigrationComplete, &done)
    require.NoError(t, err)
    assert.True(t, found)
    assert.True(t, done)
}

func TestFileStoreDeactivateChatHidesNothingElse(t *testing.T) {
    s, _ := newTestFileStore(t)
    ctx := context.Background()

    require.NoError(t, s.UpsertChat(ctx, &Chat{ID: 7, Username: "ops"}))
    require.NoError(t, s.DeactivateChat(ctx, 7))

    chat, err := s.GetChat(ctx, 7)
    require.NoError(t, err)
    assert.False(t, chat.IsActive, "deactivation is a soft delete")
    assert.Equal(t, "ops", chat.Username)
}
