// internal/store/store.go
package store

import (
    "context"
    "errors"
    "strconv"
    "time"
)

// ErrNotFound is returned by lookups for records that do not exist.
var ErrNotFound = errors.New("record not found")

// Store is the repository interface shared by the file and relational
// backends. It exclusively owns persistence of chats, feeds, feed items,
// alert states and settings; no other package touches the files or tables
// directly.
type Store interface {
    // Chat operations
    UpsertChat(ctx context.Context, chat *Chat) error
    GetChat(ctx context.Context, id int64) (*Chat, error)
    ListChats(ctx context.Context) ([]Chat, error)
    DeactivateChat(ctx context.Context, id int64) error

    // Feed operations
    AddFeed(ctx context.Context, chatID int64, url, title string) (*Feed, error)
    RemoveFeed(ctx context.Context, chatID int64, url string) error
    GetFeed(ctx context.Context, id int64) (*Feed, error)
    ListFeeds(ctx context.Context, chatID int64) ([]Feed, error)
    AllFeeds(ctx context.Context) ([]Feed, error)
    UpdateFeedMeta(ctx context.Context, id int64, title, etag, lastModified string) error
    SetFeedPolled(ctx context.Context, id int64, at time.Time) error

    // Feed item operations. InsertItem reports whether the item was new;
    // re-inserting an existing (feed_id, guid) pair is a no-op.
    InsertItem(ctx context.Context, item *FeedItem) (bool, error)
    ListUnsentItems(ctx context.Context, chatID int64, limit int) ([]FeedItem, error)
    MarkItemSent(ctx context.Context, feedID int64, guid string) error
    CountPendingByFeed(ctx context.Context, chatID int64) (map[int64]int, error)

    // Alert state operations. GetAlertState returns a default-OK state for
    // metrics that have never been persisted.
    GetAlertState(ctx context.Context, metricID string) (*AlertState, error)
    PutAlertState(ctx context.Context, state *AlertState) error
    ListAlertStates(ctx context.Context) ([]AlertState, error)

    // Settings is a generic JSON key-value space (digest timestamps, the
    // migration marker). GetSetting reports whether the key existed.
    GetSetting(ctx context.Context, key string, out interface{}) (bool, error)
    PutSetting(ctx context.Context, key string, value interface{}) error

    Close() error
}

// SettingMigrationComplete marks that the file-to-relational migration has
// finished; once present in the relational backend, relational state wins
// over any divergent file state.
const SettingMigrationComplete = "migration_complete"

// LastDigestKey is the settings key holding a chat's last digest timestamp.
func LastDigestKey(chatID int64) string {
    return "rss_last_digest_" + strconv.FormatInt(chatID, 10)
}
