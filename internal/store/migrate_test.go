// internal/store/migrate_test.go
package store

import (
    "context"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func seedFileStore(t *testing.T) *FileStore {
    t.Helper()
    ctx := context.Background()

    src, err := NewFileStore(t.TempDir())
    require.NoError(t, err)
    t.Cleanup(func() { src.Close() })

    require.NoError(t, src.UpsertChat(ctx, &Chat{ID: 1, Username: "ops"}))

    feedA, err := src.AddFeed(ctx, 1, "https://a.example/rss", "Feed A")
    require.NoError(t, err)
    feedB, err := src.AddFeed(ctx, 2, "https://b.example/rss", "Feed B")
    require.NoError(t, err)

    at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
    for _, item := range []*FeedItem{
        {FeedID: feedA.ID, GUID: "a1", Title: "one", PublishedAt: &at},
        {FeedID: feedA.ID, GUID: "a2", Title: "two", Sent: true},
        {FeedID: feedB.ID, GUID: "b1", Title: "three"},
    } {
        _, err := src.InsertItem(ctx, item)
        require.NoError(t, err)
    }

    alert := NewAlertState("cpu_load")
    alert.Status = StatusAlert
    alert.ConsecutiveBreaches = 4
    require.NoError(t, src.PutAlertState(ctx, alert))

    require.NoError(t, src.PutSetting(ctx, LastDigestKey(1), at))

    return src
}

func TestMigrateCopiesEverything(t *testing.T) {
    ctx := context.Background()
    src := seedFileStore(t)

    dst, err := NewGormStore(filepath.Join(t.TempDir(), "dst.db"))
    require.NoError(t, err)
    defer dst.Close()

    report, err := Migrate(ctx, src, dst, false)
    require.NoError(t, err)

    assert.Equal(t, 2, report.Chats)
    assert.Equal(t, 2, report.Feeds)
    assert.Equal(t, 3, report.Items)
    assert.True(t, report.MarkerWritten)

    chats, err := dst.ListChats(ctx)
    require.NoError(t, err)
    assert.Len(t, chats, 2)

    // delivery flags survive so already-sent items are not re-delivered
    items, err := dst.ListUnsentItems(ctx, 1, 0)
    require.NoError(t, err)
    require.Len(t, items, 1)
    assert.Equal(t, "a1", items[0].GUID)

    state, err := dst.GetAlertState(ctx, "cpu_load")
    require.NoError(t, err)
    assert.Equal(t, StatusAlert, state.Status)
    assert.Equal(t, 4, state.ConsecutiveBreaches)

    var done bool
    found, err := dst.GetSetting(ctx, SettingMigrationComplete, &done)
    require.NoError(t, err)
    assert.True(t, found)
    assert.True(t, done)
}

func TestMigrateIsIdempotent(t *testing.T) {
    ctx := context.Background()
    src := seedFileStore(t)

    dst, err := NewGormStore(filepath.Join(t.TempDir(), "dst.db"))
    require.NoError(t, err)
    defer dst.Close()

    _, err = Migrate(ctx, src, dst, false)
    require.NoError(t, err)

    report, err := Migrate(ctx, src, dst, false)
    require.NoError(t, err)

    assert.Equal(t, 0, report.Feeds)
    assert.Equal(t, 2, report.FeedsSkipped)
    assert.Equal(t, 0, report.Items)
    assert.Equal(t, 3, report.ItemsSkipped)

    items, err := dst.ListUnsentItems(ctx, 1, 0)
    require.NoError(t, err)
    assert.Len(t, items, 1, "re-running adds nothing")
}

func TestMigrateDryRunWritesNothing(t *testing.T) {
    ctx := context.Background()
    src := seedFileStore(t)

    dst, err := NewGormStore(filepath.Join(t.TempDir(), "dst.db"))
    require.NoError(t, err)
    defer dst.Close()

    report, err := Migrate(ctx, src, dst, true)
    require.NoError(t, err)

    assert.True(t, report.DryRun)
    assert.Equal(t, 2, report.Feeds)
    assert.Equal(t, 3, report.Items)
    assert.False(t, report.MarkerWritten)

    chats, err := dst.ListChats(ctx)
    require.NoError(t, err)
    assert.Empty(t, chats)

    var done bool
    found, err := dst.GetSetting(ctx, SettingMigrationComplete, &done)
    require.NoError(t, err)
    assert.False(t, found)
}
