// internal/store/migrate.go - Flat-file to relational migration
package store

import (
    "context"
    "errors"
    "fmt"
    "sort"

    "github.com/sirupsen/logrus"
    "gorm.io/gorm"
    "gorm.io/gorm/clause"
)

// MigrationReport summarizes one migration run. Skipped counts cover rows
// that already existed in the destination, which is what makes re-running
// the migration safe.
type MigrationReport struct {
    DryRun        bool `json:"dry_run"`
    Chats         int  `json:"chats"`
    Feeds         int  `json:"feeds"`
    FeedsSkipped  int  `json:"feeds_skipped"`
    Items         int  `json:"items"`
    ItemsSkipped  int  `json:"items_skipped"`
    Settings      int  `json:"settings"`
    AlertStates   int  `json:"alert_states"`
    MarkerWritten bool `json:"marker_written"`
}

// Migrate copies everything the flat-file backend holds into the relational
// backend: chats first, then feeds, then items, then settings and alert
// states. Rows already present in the destination are left untouched, so the
// migration is idempotent. With dryRun set nothing is written; the report
// shows what a real run would do.
func Migrate(ctx context.Context, src *FileStore, dst *GormStore, dryRun bool) (*MigrationReport, error) {
    report := &MigrationReport{DryRun: dryRun}

    src.mu.RLock()
    defer src.mu.RUnlock()

    chats := make([]*Chat, 0, len(src.rss.Chats))
    for _, c := range src.rss.Chats {
        chats = append(chats, c)
    }
    sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })

    for _, c := range chats {
        if !dryRun {
            row := chatToRow(c)
            err := dst.db.WithContext(ctx).Clauses(clause.OnConflict{
                Columns:   []clause.Column{{Name: "id"}},
                DoUpdates: clause.AssignmentColumns([]string{"username", "title", "is_active", "updated_at"}),
            }).Create(row).Error
            if err != nil {
                return report, fmt.Errorf("failed to migrate chat %d: %w", c.ID, err)
            }
        }
        report.Chats++
    }

    feeds := make([]*Feed, len(src.rss.Feeds))
    copy(feeds, src.rss.Feeds)
    sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })

    // maps source feed IDs to destination feed IDs so items land under the
    // right row even when the destination assigned different keys
    feedIDs := make(map[int64]int64, len(feeds))

    for _, f := range feeds {
        var existing dbFeed
        err := dst.db.WithContext(ctx).First(&existing, "chat_id = ? AND url = ?", f.ChatID, f.URL).Error
        switch {
        case err == nil:
            feedIDs[f.ID] = existing.ID
            report.FeedsSkipped++
            continue
        case !errors.Is(err, gorm.ErrRecordNotFound):
            return report, fmt.Errorf("failed to check feed %s: %w", f.URL, err)
        }

        if dryRun {
            feedIDs[f.ID] = 0
            report.Feeds++
            continue
        }

        row := dbFeed{
            ChatID:       f.ChatID,
            URL:          f.URL,
            Title:        f.Title,
            IsActive:     f.IsActive,
            ETag:         f.ETag,
            LastModified: f.LastModified,
            LastPolledAt: f.LastPolledAt,
        }
        if err := dst.db.WithContext(ctx).Create(&row).Error; err != nil {
            return report, fmt.Errorf("failed to migrate feed %s: %w", f.URL, err)
        }
        feedIDs[f.ID] = row.ID
        report.Feeds++
    }

    for _, f := range feeds {
        byGUID := src.rss.Items[feedKey(f.ID)]
        dstFeedID, ok := feedIDs[f.ID]
        if !ok || len(byGUID) == 0 {
            continue
        }

        guids := make([]string, 0, len(byGUID))
        for guid := range byGUID {
            guids = append(guids, guid)
        }
        sort.Strings(guids)

        for _, guid := range guids {
            item := byGUID[guid]
            if dryRun {
                var existing dbFeedItem
                err := dst.db.WithContext(ctx).First(&existing, "feed_id = ? AND guid = ?", dstFeedID, guid).Error
                switch {
                case err == nil:
                    report.ItemsSkipped++
                case errors.Is(err, gorm.ErrRecordNotFound):
                    report.Items++
                default:
                    return report, fmt.Errorf("failed to check item %s: %w", guid, err)
                }
                continue
            }

            row := dbFeedItem{
                FeedID:      dstFeedID,
                GUID:        item.GUID,
                Title:       item.Title,
                Link:        item.Link,
                Author:      item.Author,
                PublishedAt: item.PublishedAt,
                IsSent:      item.Sent,
            }
            res := dst.db.WithContext(ctx).Clauses(clause.OnConflict{
                Columns:   []clause.Column{{Name: "feed_id"}, {Name: "guid"}},
                DoNothing: true,
            }).Create(&row)
            if res.Error != nil {
                return report, fmt.Errorf("failed to migrate item %s: %w", guid, res.Error)
            }
            if res.RowsAffected == 0 {
                report.ItemsSkipped++
            } else {
                report.Items++
            }
        }
    }

    settingKeys := make([]string, 0, len(src.settings))
    for k := range src.settings {
        settingKeys = append(settingKeys, k)
    }
    sort.Strings(settingKeys)

    for _, key := range settingKeys {
        if !dryRun {
            err := dst.db.WithContext(ctx).Clauses(clause.OnConflict{
                Columns:   []clause.Column{{Name: "key"}},
                DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
            }).Create(&dbSetting{Key: key, Value: string(src.settings[key])}).Error
            if err != nil {
                return report, fmt.Errorf("failed to migrate setting %s: %w", key, err)
            }
        }
        report.Settings++
    }

    stateIDs := make([]string, 0, len(src.states))
    for id := range src.states {
        stateIDs = append(stateIDs, id)
    }
    sort.Strings(stateIDs)

    for _, id := range stateIDs {
        if !dryRun {
            if err := dst.PutAlertState(ctx, src.states[id]); err != nil {
                return report, fmt.Errorf("failed to migrate alert state %s: %w", id, err)
            }
        }
        report.AlertStates++
    }

    if !dryRun {
        if err := dst.PutSetting(ctx, SettingMigrationComplete, true); err != nil {
            return report, fmt.Errorf("failed to write migration marker: %w", err)
        }
        report.MarkerWritten = true
    }

    logrus.WithFields(logrus.Fields{
        "dry_run": dryRun,
        "chats":   report.Chats,
        "feeds":   report.Feeds,
        "items":   report.Items,
    }).Info("Migration finished")

    return report, nil
}
