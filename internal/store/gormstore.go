// internal/store/gormstore.go - Relational backend (sqlite or postgres via gorm)
package store

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "gorm.io/driver/postgres"
    "gorm.io/driver/sqlite"
    "gorm.io/gorm"
    "gorm.io/gorm/clause"
    gormlogger "gorm.io/gorm/logger"
)

type dbChat struct {
    ID        int64 `gorm:"primaryKey;autoIncrement:false"`
    Username  string
    Title     string
    IsActive  bool `gorm:"default:true"`
    CreatedAt time.Time
    UpdatedAt time.Time

    Feeds []dbFeed `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

func (dbChat) TableName() string { return "chats" }

type dbFeed struct {
    ID           int64  `gorm:"primaryKey"`
    ChatID       int64  `gorm:"index;uniqueIndex:idx_rss_feeds_chat_url"`
    URL          string `gorm:"size:2048;uniqueIndex:idx_rss_feeds_chat_url"`
    Title        string `gorm:"size:512"`
    IsActive     bool   `gorm:"default:true"`
    ETag         string
    LastModified string
    LastPolledAt *time.Time
    CreatedAt    time.Time
    UpdatedAt    time.Time

    Items []dbFeedItem `gorm:"foreignKey:FeedID;constraint:OnDelete:CASCADE"`
}

func (dbFeed) TableName() string { return "rss_feeds" }

type dbFeedItem struct {
    ID          int64  `gorm:"primaryKey"`
    FeedID      int64  `gorm:"index;uniqueIndex:idx_rss_items_feed_guid"`
    GUID        string `gorm:"size:512;uniqueIndex:idx_rss_items_feed_guid;column:guid"`
    Title       string `gorm:"size:512"`
    Link        string `gorm:"size:2048"`
    Author      string
    PublishedAt *time.Time
    IsSent      bool `gorm:"default:false"`
    CreatedAt   time.Time
}

func (dbFeedItem) TableName() string { return "rss_items" }

type dbMonitoringState struct {
    Key       string `gorm:"primaryKey;size:255"`
    Value     string
    ChatID    *int64
    CreatedAt time.Time
    UpdatedAt time.Time
}

func (dbMonitoringState) TableName() string { return "monitoring_state" }

type dbSetting struct {
    Key         string `gorm:"primaryKey;size:255"`
    Value       string
    Description string
    CreatedAt   time.Time
    UpdatedAt   time.Time
}

func (dbSetting) TableName() string { return "settings" }

// GormStore implements Store against a relational database. The dialect is
// chosen from the connection string: postgres DSNs use the postgres driver,
// everything else is treated as a sqlite file path.
type GormStore struct {
    db *gorm.DB
}

func NewGormStore(dsn string) (*GormStore, error) {
    dialector := dialectorFor(dsn)

    db, err := gorm.Open(dialector, &gorm.Config{
        Logger: gormlogger.Default.LogMode(gormlogger.Silent),
    })
    if err != nil {
        return nil, fmt.Errorf("failed to open database: %w", err)
    }

    if err := db.AutoMigrate(
        &dbChat{},
        &dbFeed{},
        &dbFeedItem{},
        &dbMonitoringState{},
        &dbSetting{},
    ); err != nil {
        return nil, fmt.Errorf("failed to migrate schema: %w", err)
    }

    return &GormStore{db: db}, nil
}

func dialectorFor(dsn string) gorm.Dialector {
    if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
        return postgres.Open(dsn)
    }
    return sqlite.Open(dsn + "?_foreign_keys=on&_busy_timeout=5000")
}

func chatToRow(c *Chat) *dbChat {
    return &dbChat{
        ID:       c.ID,
        Username: c.Username,
        Title:    c.Title,
        IsActive: c.IsActive,
    }
}

func rowToChat(r *dbChat) Chat {
    return Chat{
        ID:        r.ID,
        Username:  r.Username,
        Title:     r.Title,
        IsActive:  r.IsActive,
        CreatedAt: r.CreatedAt,
        UpdatedAt: r.UpdatedAt,
    }
}

func rowToFeed(r *dbFeed) Feed {
    return Feed{
        ID:           r.ID,
        ChatID:       r.ChatID,
        URL:          r.URL,
        Title:        r.Title,
        IsActive:     r.IsActive,
        ETag:         r.ETag,
        LastModified: r.LastModified,
        LastPolledAt: r.LastPolledAt,
        CreatedAt:    r.CreatedAt,
        UpdatedAt:    r.UpdatedAt,
    }
}

func rowToItem(r *dbFeedItem) FeedItem {
    return FeedItem{
        ID:          r.ID,
        FeedID:      r.FeedID,
        GUID:        r.GUID,
        Title:       r.Title,
        Link:        r.Link,
        Author:      r.Author,
        PublishedAt: r.PublishedAt,
        Sent:        r.IsSent,
        CreatedAt:   r.CreatedAt,
    }
}

// Chat operations

func (s *GormStore) UpsertChat(ctx context.Context, chat *Chat) error {
    row := chatToRow(chat)
    row.IsActive = true
    return s.db.WithContext(ctx).Clauses(clause.OnConflict{
        Columns:   []clause.Column{{Name: "id"}},
        DoUpdates: clause.AssignmentColumns([]string{"username", "title", "is_active", "updated_at"}),
    }).Create(row).Error
}

func (s *GormStore) GetChat(ctx context.Context, id int64) (*Chat, error) {
    var row dbChat
    err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    chat := rowToChat(&row)
    return &chat, nil
}

func (s *GormStore) ListChats(ctx context.Context) ([]Chat, error) {
    var rows []dbChat
    if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
        return nil, err
    }
    chats := make([]Chat, 0, len(rows))
    for i := range rows {
        chats = append(chats, rowToChat(&rows[i]))
    }
    return chats, nil
}

func (s *GormStore) DeactivateChat(ctx context.Context, id int64) error {
    res := s.db.WithContext(ctx).Model(&dbChat{}).Where("id = ?", id).Update("is_active", false)
    if res.Error != nil {
        return res.Error
    }
    if res.RowsAffected == 0 {
        return ErrNotFound
    }
    return nil
}

// Feed operations

func (s *GormStore) AddFeed(ctx context.Context, chatID int64, url, title string) (*Feed, error) {
    var out *Feed
    err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        if err := tx.Clauses(clause.OnConflict{
            Columns:   []clause.Column{{Name: "id"}},
            DoNothing: true,
        }).Create(&dbChat{ID: chatID, IsActive: true}).Error; err != nil {
            return err
        }

        var row dbFeed
        err := tx.First(&row, "chat_id = ? AND url = ?", chatID, url).Error
        if err == nil {
            updates := map[string]interface{}{"is_active": true}
            if title != "" {
                updates["title"] = title
            }
            if err := tx.Model(&row).Updates(updates).Error; err != nil {
                return err
            }
            feed := rowToFeed(&row)
            feed.IsActive = true
            out = &feed
            return nil
        }
        if !errors.Is(err, gorm.ErrRecordNotFound) {
            return err
        }

        row = dbFeed{ChatID: chatID, URL: url, Title: title, IsActive: true}
        if err := tx.Create(&row).Error; err != nil {
            return err
        }
        feed := rowToFeed(&row)
        out = &feed
        return nil
    })
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (s *GormStore) RemoveFeed(ctx context.Context, chatID int64, url string) error {
    return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        var row dbFeed
        err := tx.First(&row, "chat_id = ? AND url = ?", chatID, url).Error
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return ErrNotFound
        }
        if err != nil {
            return err
        }
        // delete item history explicitly so the cleanup does not depend on
        // the sqlite foreign_keys pragma being honored
        if err := tx.Where("feed_id = ?", row.ID).Delete(&dbFeedItem{}).Error; err != nil {
            return err
        }
        return tx.Delete(&row).Error
    })
}

func (s *GormStore) GetFeed(ctx context.Context, id int64) (*Feed, error) {
    var row dbFeed
    err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    feed := rowToFeed(&row)
    return &feed, nil
}

func (s *GormStore) ListFeeds(ctx context.Context, chatID int64) ([]Feed, error) {
    var rows []dbFeed
    err := s.db.WithContext(ctx).
        Where("chat_id = ? AND is_active = ?", chatID, true).
        Order("created_at").
        Find(&rows).Error
    if err != nil {
        return nil, err
    }
    feeds := make([]Feed, 0, len(rows))
    for i := range rows {
        feeds = append(feeds, rowToFeed(&rows[i]))
    }
    return feeds, nil
}

func (s *GormStore) AllFeeds(ctx context.Context) ([]Feed, error) {
    var rows []dbFeed
    err := s.db.WithContext(ctx).
        Where("is_active = ?", true).
        Order("created_at").
        Find(&rows).Error
    if err != nil {
        return nil, err
    }
    feeds := make([]Feed, 0, len(rows))
    for i := range rows {
        feeds = append(feeds, rowToFeed(&rows[i]))
    }
    return feeds, nil
}

func (s *GormStore) UpdateFeedMeta(ctx context.Context, id int64, title, etag, lastModified string) error {
    updates := make(map[string]interface{})
    if title != "" {
        updates["title"] = title
    }
    if etag != "" {
        updates["e_tag"] = etag
    }
    if lastModified != "" {
        updates["last_modified"] = lastModified
    }
    if len(updates) == 0 {
        return nil
    }
    res := s.db.WithContext(ctx).Model(&dbFeed{}).Where("id = ?", id).Updates(updates)
    if res.Error != nil {
        return res.Error
    }
    if res.RowsAffected == 0 {
        return ErrNotFound
    }
    return nil
}

func (s *GormStore) SetFeedPolled(ctx context.Context, id int64, at time.Time) error {
    res := s.db.WithContext(ctx).Model(&dbFeed{}).Where("id = ?", id).Update("last_polled_at", at)
    if res.Error != nil {
        return res.Error
    }
    if res.RowsAffected == 0 {
        return ErrNotFound
    }
    return nil
}

// Feed item operations

func (s *GormStore) InsertItem(ctx context.Context, item *FeedItem) (bool, error) {
    row := dbFeedItem{
        FeedID:      item.FeedID,
        GUID:        item.GUID,
        Title:       item.Title,
        Link:        item.Link,
        Author:      item.Author,
        PublishedAt: item.PublishedAt,
        IsSent:      item.Sent,
    }
    res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
        Columns:   []clause.Column{{Name: "feed_id"}, {Name: "guid"}},
        DoNothing: true,
    }).Create(&row)
    if res.Error != nil {
        return false, res.Error
    }
    if res.RowsAffected == 0 {
        return false, nil
    }
    item.ID = row.ID
    return true, nil
}

func (s *GormStore) ListUnsentItems(ctx context.Context, chatID int64, limit int) ([]FeedItem, error) {
    var rows []dbFeedItem
    q := s.db.WithContext(ctx).
        Joins("JOIN rss_feeds ON rss_feeds.id = rss_items.feed_id").
        Where("rss_feeds.chat_id = ? AND rss_feeds.is_active = ? AND rss_items.is_sent = ?", chatID, true, false).
        // undated items sort by discovery time, matching the file backend
        Order("COALESCE(rss_items.published_at, rss_items.created_at) ASC, rss_items.id ASC")
    if limit > 0 {
        q = q.Limit(limit)
    }
    if err := q.Find(&rows).Error; err != nil {
        return nil, err
    }
    items := make([]FeedItem, 0, len(rows))
    for i := range rows {
        items = append(items, rowToItem(&rows[i]))
    }
    return items, nil
}

func (s *GormStore) MarkItemSent(ctx context.Context, feedID int64, guid string) error {
    res := s.db.WithContext(ctx).Model(&dbFeedItem{}).
        Where("feed_id = ? AND guid = ?", feedID, guid).
        Update("is_sent", true)
    if res.Error != nil {
        return res.Error
    }
    if res.RowsAffected == 0 {
        return ErrNotFound
    }
    return nil
}

func (s *GormStore) CountPendingByFeed(ctx context.Context, chatID int64) (map[int64]int, error) {
    type pendingCount struct {
        FeedID int64
        N      int
    }
    var rows []pendingCount
    err := s.db.WithContext(ctx).Model(&dbFeedItem{}).
        Select("rss_items.feed_id AS feed_id, COUNT(*) AS n").
        Joins("JOIN rss_feeds ON rss_feeds.id = rss_items.feed_id").
        Where("rss_feeds.chat_id = ? AND rss_feeds.is_active = ? AND rss_items.is_sent = ?", chatID, true, false).
        Group("rss_items.feed_id").
        Find(&rows).Error
    if err != nil {
        return nil, err
    }
    counts := make(map[int64]int, len(rows))
    for _, r := range rows {
        counts[r.FeedID] = r.N
    }
    return counts, nil
}

// Alert state operations, stored as JSON values in monitoring_state.

func (s *GormStore) GetAlertState(ctx context.Context, metricID string) (*AlertState, error) {
    var row dbMonitoringState
    err := s.db.WithContext(ctx).First(&row, "key = ?", metricID).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return NewAlertState(metricID), nil
    }
    if err != nil {
        return nil, err
    }
    var state AlertState
    if err := json.Unmarshal([]byte(row.Value), &state); err != nil {
        return nil, fmt.Errorf("failed to unmarshal alert state %s: %w", metricID, err)
    }
    return &state, nil
}

func (s *GormStore) PutAlertState(ctx context.Context, state *AlertState) error {
    value, err := json.Marshal(state)
    if err != nil {
        return fmt.Errorf("failed to marshal alert state %s: %w", state.MetricID, err)
    }
    return s.db.WithContext(ctx).Clauses(clause.OnConflict{
        Columns:   []clause.Column{{Name: "key"}},
        DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
    }).Create(&dbMonitoringState{Key: state.MetricID, Value: string(value)}).Error
}

func (s *GormStore) ListAlertStates(ctx context.Context) ([]AlertState, error) {
    var rows []dbMonitoringState
    if err := s.db.WithContext(ctx).Order("key").Find(&rows).Error; err != nil {
        return nil, err
    }
    states := make([]AlertState, 0, len(rows))
    for _, row := range rows {
        var state AlertState
        if err := json.Unmarshal([]byte(row.Value), &state); err != nil {
            continue // skip malformed entries
        }
        states = append(states, state)
    }
    return states, nil
}

// Settings

func (s *GormStore) GetSetting(ctx context.Context, key string, out interface{}) (bool, error) {
    var row dbSetting
    err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    if err := json.Unmarshal([]byte(row.Value), out); err != nil {
        return false, fmt.Errorf("failed to unmarshal setting %s: %w", key, err)
    }
    return true, nil
}

func (s *GormStore) PutSetting(ctx context.Context, key string, value interface{}) error {
    raw, err := json.Marshal(value)
    if err != nil {
        return fmt.Errorf("failed to marshal setting %s: %w", key, err)
    }
    return s.db.WithContext(ctx).Clauses(clause.OnConflict{
        Columns:   []clause.Column{{Name: "key"}},
        DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
    }).Create(&dbSetting{Key: key, Value: string(raw)}).Error
}

func (s *GormStore) Close() error {
    sqlDB, err := s.db.DB()
    if err != nil {
        return err
    }
    return sqlDB.Close()
}
