// internal/store/filestore.go - Flat-file JSON backend
package store

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strconv"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
)

const (
    stateFileName    = "state.json"
    rssFileName      = "rss.json"
    settingsFileName = "settings.json"
)

// FileStore keeps each logical table in one JSON file under a data
// directory. Every write is a marshal to a temp file, a rotation of the
// previous version to .bak, then an atomic rename; a reader can never
// observe a partially written file.
type FileStore struct {
    dir string
    mu  sync.RWMutex

    states   map[string]*AlertState
    rss      *rssFile
    settings map[string]json.RawMessage
}

type rssFile struct {
    NextFeedID int64                           `json:"next_feed_id"`
    NextItemID int64                           `json:"next_item_id"`
    Chats      map[string]*Chat                `json:"chats"`
    Feeds      []*Feed                         `json:"feeds"`
    Items      map[string]map[string]*FeedItem `json:"items"`
}

func newRSSFile() *rssFile {
    return &rssFile{
        NextFeedID: 1,
        NextItemID: 1,
        Chats:      make(map[string]*Chat),
        Items:      make(map[string]map[string]*FeedItem),
    }
}

// NewFileStore opens (or creates) the data directory and loads all three
// files. Unreadable files are archived and replaced with empty state so a
// corrupt disk never prevents startup.
func NewFileStore(dir string) (*FileStore, error) {
    if err := os.MkdirAll(dir, 0755); err != nil {
        return nil, fmt.Errorf("failed to create data directory: %w", err)
    }

    s := &FileStore{
        dir:      dir,
        states:   make(map[string]*AlertState),
        rss:      newRSSFile(),
        settings: make(map[string]json.RawMessage),
    }

    if err := loadJSONFile(filepath.Join(dir, stateFileName), &s.states); err != nil {
        return nil, err
    }
    if err := loadJSONFile(filepath.Join(dir, rssFileName), s.rss); err != nil {
        return nil, err
    }
    if s.rss.Chats == nil {
        s.rss.Chats = make(map[string]*Chat)
    }
    if s.rss.Items == nil {
        s.rss.Items = make(map[string]map[string]*FeedItem)
    }
    if s.rss.NextFeedID == 0 {
        s.rss.NextFeedID = 1
    }
    if s.rss.NextItemID == 0 {
        s.rss.NextItemID = 1
    }
    if err := loadJSONFile(filepath.Join(dir, settingsFileName), &s.settings); err != nil {
        return nil, err
    }

    return s, nil
}

// loadJSONFile reads path into v. A missing file leaves v untouched. A file
// that fails to parse is archived next to the original rather than
// overwritten, and v keeps its empty initial value.
func loadJSONFile(path string, v interface{}) error {
    data, err := os.ReadFile(path)
    if os.IsNotExist(err) {
        // fall back to the rotated backup if the main file vanished mid-replace
        data, err = os.ReadFile(path + ".bak")
        if os.IsNotExist(err) {
            return nil
        }
    }
    if err != nil {
        return fmt.Errorf("failed to read %s: %w", path, err)
    }

    if err := json.Unmarshal(data, v); err != nil {
        archived := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
        if renameErr := os.Rename(path, archived); renameErr == nil {
            logrus.WithFields(logrus.Fields{
                "file":     path,
                "archived": archived,
            }).Warn("State file is unreadable, archived and starting empty")
        }
        return nil
    }
    return nil
}

// saveJSONFile writes v atomically: temp file, rotate previous to .bak,
// rename into place.
func saveJSONFile(path string, v interface{}) error {
    data, err := json.MarshalIndent(v, "", "  ")
    if err != nil {
        return fmt.Errorf("failed to marshal %s: %w", path, err)
    }

    tmp := path + ".tmp"
    if err := os.WriteFile(tmp, data, 0644); err != nil {
        return fmt.Errorf("failed to write %s: %w", tmp, err)
    }

    if _, err := os.Stat(path); err == nil {
        if err := os.Rename(path, path+".bak"); err != nil {
            return fmt.Errorf("failed to rotate backup of %s: %w", path, err)
        }
    }

    if err := os.Rename(tmp, path); err != nil {
        return fmt.Errorf("failed to replace %s: %w", path, err)
    }
    return nil
}

func (s *FileStore) saveStates() error {
    return saveJSONFile(filepath.Join(s.dir, stateFileName), s.states)
}

func (s *FileStore) saveRSS() error {
    return saveJSONFile(filepath.Join(s.dir, rssFileName), s.rss)
}

func (s *FileStore) saveSettings() error {
    return saveJSONFile(filepath.Join(s.dir, settingsFileName), s.settings)
}

func chatKey(id int64) string {
    return strconv.FormatInt(id, 10)
}

func feedKey(id int64) string {
    return strconv.FormatInt(id, 10)
}

// Chat operations

func (s *FileStore) UpsertChat(ctx context.Context, chat *Chat) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    now := time.Now()
    existing, ok := s.rss.Chats[chatKey(chat.ID)]
    if ok {
        if chat.Username != "" {
            existing.Username = chat.Username
        }
        if chat.Title != "" {
            existing.Title = chat.Title
        }
        existing.IsActive = true
        existing.UpdatedAt = now
    } else {
        c := *chat
        c.IsActive = true
        c.CreatedAt = now
        c.UpdatedAt = now
        s.rss.Chats[chatKey(chat.ID)] = &c
    }
    return s.saveRSS()
}

func (s *FileStore) GetChat(ctx context.Context, id int64) (*Chat, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    chat, ok := s.rss.Chats[chatKey(id)]
    if !ok {
        return nil, ErrNotFound
    }
    c := *chat
    return &c, nil
}

func (s *FileStore) ListChats(ctx context.Context) ([]Chat, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    chats := make([]Chat, 0, len(s.rss.Chats))
    for _, c := range s.rss.Chats {
        chats = append(chats, *c)
    }
    sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
    return chats, nil
}

func (s *FileStore) DeactivateChat(ctx context.Context, id int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    chat, ok := s.rss.Chats[chatKey(id)]
    if !ok {
        return ErrNotFound
    }
    chat.IsActive = false
    chat.UpdatedAt = time.Now()
    return s.saveRSS()
}

// Feed operations

func (s *FileStore) AddFeed(ctx context.Context, chatID int64, url, title string) (*Feed, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    now := time.Now()
    if _, ok := s.rss.Chats[chatKey(chatID)]; !ok {
        s.rss.Chats[chatKey(chatID)] = &Chat{
            ID:        chatID,
            IsActive:  true,
            CreatedAt: now,
            UpdatedAt: now,
        }
    }

    for _, f := range s.rss.Feeds {
        if f.ChatID == chatID && f.URL == url {
            f.IsActive = true
            if title != "" {
                f.Title = title
            }
            f.UpdatedAt = now
            if err := s.saveRSS(); err != nil {
                return nil, err
            }
            copied := *f
            return &copied, nil
        }
    }

    feed := &Feed{
        ID:        s.rss.NextFeedID,
        ChatID:    chatID,
        URL:       url,
        Title:     title,
        IsActive:  true,
        CreatedAt: now,
        UpdatedAt: now,
    }
    s.rss.NextFeedID++
    s.rss.Feeds = append(s.rss.Feeds, feed)
    if err := s.saveRSS(); err != nil {
        return nil, err
    }
    copied := *feed
    return &copied, nil
}

func (s *FileStore) RemoveFeed(ctx context.Context, chatID int64, url string) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    for i, f := range s.rss.Feeds {
        if f.ChatID == chatID && f.URL == url {
            // removing the subscription also drops its item history to
            // bound storage growth
            delete(s.rss.Items, feedKey(f.ID))
            s.rss.Feeds = append(s.rss.Feeds[:i], s.rss.Feeds[i+1:]...)
            return s.saveRSS()
        }
    }
    return ErrNotFound
}

func (s *FileStore) GetFeed(ctx context.Context, id int64) (*Feed, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    for _, f := range s.rss.Feeds {
        if f.ID == id {
            copied := *f
            return &copied, nil
        }
    }
    return nil, ErrNotFound
}

func (s *FileStore) ListFeeds(ctx context.Context, chatID int64) ([]Feed, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    var feeds []Feed
    for _, f := range s.rss.Feeds {
        if f.ChatID == chatID && f.IsActive {
            feeds = append(feeds, *f)
        }
    }
    return feeds, nil
}

func (s *FileStore) AllFeeds(ctx context.Context) ([]Feed, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    var feeds []Feed
    for _, f := range s.rss.Feeds {
        if f.IsActive {
            feeds = append(feeds, *f)
        }
    }
    return feeds, nil
}

func (s *FileStore) UpdateFeedMeta(ctx context.Context, id int64, title, etag, lastModified string) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    for _, f := range s.rss.Feeds {
        if f.ID == id {
            if title != "" {
                f.Title = title
            }
            if etag != "" {
                f.ETag = etag
            }
            if lastModified != "" {
                f.LastModified = lastModified
            }
            f.UpdatedAt = time.Now()
            return s.saveRSS()
        }
    }
    return ErrNotFound
}

func (s *FileStore) SetFeedPolled(ctx context.Context, id int64, at time.Time) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    for _, f := range s.rss.Feeds {
        if f.ID == id {
            polled := at
            f.LastPolledAt = &polled
            f.UpdatedAt = time.Now()
            return s.saveRSS()
        }
    }
    return ErrNotFound
}

// Feed item operations

func (s *FileStore) InsertItem(ctx context.Context, item *FeedItem) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    key := feedKey(item.FeedID)
    byGUID, ok := s.rss.Items[key]
    if !ok {
        byGUID = make(map[string]*FeedItem)
        s.rss.Items[key] = byGUID
    }
    if _, exists := byGUID[item.GUID]; exists {
        return false, nil
    }

    copied := *item
    copied.ID = s.rss.NextItemID
    s.rss.NextItemID++
    copied.CreatedAt = time.Now()
    byGUID[item.GUID] = &copied
    if err := s.saveRSS(); err != nil {
        return false, err
    }
    item.ID = copied.ID
    return true, nil
}

func (s *FileStore) ListUnsentItems(ctx context.Context, chatID int64, limit int) ([]FeedItem, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    var items []FeedItem
    for _, f := range s.rss.Feeds {
        if f.ChatID != chatID || !f.IsActive {
            continue
        }
        for _, it := range s.rss.Items[feedKey(f.ID)] {
            if !it.Sent {
                items = append(items, *it)
            }
        }
    }

    sort.SliceStable(items, func(i, j int) bool {
        ti, tj := itemTime(&items[i]), itemTime(&items[j])
        if !ti.Equal(tj) {
            return ti.Before(tj)
        }
        return items[i].ID < items[j].ID
    })

    if limit > 0 && len(items) > limit {
        items = items[:limit]
    }
    return items, nil
}

func itemTime(it *FeedItem) time.Time {
    if it.PublishedAt != nil {
        return *it.PublishedAt
    }
    return it.CreatedAt
}

func (s *FileStore) MarkItemSent(ctx context.Context, feedID int64, guid string) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    byGUID, ok := s.rss.Items[feedKey(feedID)]
    if !ok {
        return ErrNotFound
    }
    item, ok := byGUID[guid]
    if !ok {
        return ErrNotFound
    }
    item.Sent = true
    return s.saveRSS()
}

func (s *FileStore) CountPendingByFeed(ctx context.Context, chatID int64) (map[int64]int, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    counts := make(map[int64]int)
    for _, f := range s.rss.Feeds {
        if f.ChatID != chatID || !f.IsActive {
            continue
        }
        for _, it := range s.rss.Items[feedKey(f.ID)] {
            if !it.Sent {
                counts[f.ID]++
            }
        }
    }
    return counts, nil
}

// Alert state operations

func (s *FileStore) GetAlertState(ctx context.Context, metricID string) (*AlertState, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    state, ok := s.states[metricID]
    if !ok {
        return NewAlertState(metricID), nil
    }
    copied := *state
    return &copied, nil
}

func (s *FileStore) PutAlertState(ctx context.Context, state *AlertState) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    copied := *state
    s.states[state.MetricID] = &copied
    return s.saveStates()
}

func (s *FileStore) ListAlertStates(ctx context.Context) ([]AlertState, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    states := make([]AlertState, 0, len(s.states))
    for _, st := range s.states {
        states = append(states, *st)
    }
    sort.Slice(states, func(i, j int) bool { return states[i].MetricID < states[j].MetricID })
    return states, nil
}

// Settings

func (s *FileStore) GetSetting(ctx context.Context, key string, out interface{}) (bool, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    raw, ok := s.settings[key]
    if !ok {
        return false, nil
    }
    if err := json.Unmarshal(raw, out); err != nil {
        return false, fmt.Errorf("failed to unmarshal setting %s: %w", key, err)
    }
    return true, nil
}

func (s *FileStore) PutSetting(ctx context.Context, key string, value interface{}) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    raw, err := json.Marshal(value)
    if err != nil {
        return fmt.Errorf("failed to marshal setting %s: %w", key, err)
    }
    s.settings[key] = raw
    return s.saveSettings()
}

func (s *FileStore) Close() error {
    return nil
}
