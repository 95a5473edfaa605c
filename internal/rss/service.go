// internal/rss/service.go - Poll and digest loops
package rss

import (
    "context"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/goodmeow/tg-monitoring/internal/config"
    "github.com/goodmeow/tg-monitoring/internal/metrics"
    "github.com/goodmeow/tg-monitoring/internal/store"
)

// DigestSender delivers a batch of items to one chat.
type DigestSender interface {
    SendDigest(ctx context.Context, chatID int64, feeds []store.Feed, items []store.FeedItem) error
}

// Service runs the two RSS loops: a poll loop that discovers items and a
// digest loop that delivers pending items per chat. Items are only marked
// sent once delivery succeeded, so a failed send retries on the next
// digest round.
type Service struct {
    store  store.Store
    poller *Poller
    sender DigestSender
    cfg    config.RSSConfig
}

func NewService(s store.Store, poller *Poller, sender DigestSender, cfg config.RSSConfig) *Service {
    return &Service{
        store:  s,
        poller: poller,
        sender: sender,
        cfg:    cfg,
    }
}

func (s *Service) Run(ctx context.Context) {
    logrus.WithFields(logrus.Fields{
        "poll_interval":   s.cfg.PollInterval,
        "digest_interval": s.cfg.DigestInterval,
    }).Info("Starting RSS service")

    pollTicker := time.NewTicker(s.cfg.PollInterval)
    digestTicker := time.NewTicker(s.cfg.DigestInterval)
    defer pollTicker.Stop()
    defer digestTicker.Stop()

    s.PollAll(ctx)

    for {
        select {
        case <-ctx.Done():
            logrus.Info("RSS service stopped")
            return
        case <-pollTicker.C:
            s.PollAll(ctx)
        case <-digestTicker.C:
            s.DeliverDigests(ctx)
        }
    }
}

// PollAll polls every active feed. One broken feed never blocks the rest.
func (s *Service) PollAll(ctx context.Context) {
    feeds, err := s.store.AllFeeds(ctx)
    if err != nil {
        logrus.WithError(err).Error("Failed to list feeds for polling")
        return
    }

    for i := range feeds {
        feed := feeds[i]
        _, err := s.poller.PollFeed(ctx, &feed)
        metrics.RecordFeedPoll(err)
        if err != nil {
            logrus.WithError(err).WithField("feed", feed.URL).Warn("Feed poll failed")
        }
    }
}

// DeliverDigests sends pending items chat by chat.
func (s *Service) DeliverDigests(ctx context.Context) {
    chats, err := s.store.ListChats(ctx)
    if err != nil {
        logrus.WithError(err).Error("Failed to list chats for digest delivery")
        return
    }

    for _, chat := range chats {
        if !chat.IsActive {
            continue
        }
        if err := s.deliverChatDigest(ctx, chat.ID); err != nil {
            logrus.WithError(err).WithField("chat", chat.ID).Warn("Digest delivery failed")
        }
    }
}

func (s *Service) deliverChatDigest(ctx context.Context, chatID int64) error {
    items, err := s.store.ListUnsentItems(ctx, chatID, 0)
    if err != nil {
        return err
    }
    if len(items) == 0 {
        // an empty digest still advances the timestamp, it just sends nothing
        return s.store.PutSetting(ctx, store.LastDigestKey(chatID), time.Now().UTC())
    }

    feeds, err := s.store.ListFeeds(ctx, chatID)
    if err != nil {
        return err
    }

    selected := selectDigestItems(items, s.cfg.PerFeedLimit, s.cfg.DigestLimit)
    if err := s.sender.SendDigest(ctx, chatID, feeds, selected); err != nil {
        metrics.RecordNotification("digest", err)
        return err
    }
    metrics.RecordNotification("digest", nil)

    // mark only after a confirmed delivery
    for _, item := range selected {
        if err := s.store.MarkItemSent(ctx, item.FeedID, item.GUID); err != nil {
            logrus.WithError(err).WithFields(logrus.Fields{
                "feed": item.FeedID,
                "guid": item.GUID,
            }).Error("Failed to mark item sent")
        }
    }

    return s.store.PutSetting(ctx, store.LastDigestKey(chatID), time.Now().UTC())
}

// selectDigestItems caps the batch at perFeedLimit items per feed and
// totalLimit overall, keeping the chronological order ListUnsentItems
// established. Items beyond the caps stay pending for the next round.
func selectDigestItems(items []store.FeedItem, perFeedLimit, totalLimit int) []store.FeedItem {
    perFeed := make(map[int64]int)
    selected := make([]store.FeedItem, 0, totalLimit)

    for _, item := range items {
        if len(selected) >= totalLimit {
            break
        }
        if perFeed[item.FeedID] >= perFeedLimit {
            continue
        }
        perFeed[item.FeedID]++
        selected = append(selected, item)
    }
    return selected
}
