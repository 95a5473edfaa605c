// internal/notify/notifier.go - Delivery policy around the Telegram client
package notify

import (
    "context"
    "errors"
    "strconv"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/goodmeow/tg-monitoring/internal/config"
    "github.com/goodmeow/tg-monitoring/internal/metrics"
    "github.com/goodmeow/tg-monitoring/internal/monitor"
    "github.com/goodmeow/tg-monitoring/internal/store"
)

// ErrQuietHours signals a deferred delivery; the caller leaves items
// pending and retries after the quiet window.
var ErrQuietHours = errors.New("delivery deferred by quiet hours")

// Notifier composes and delivers messages. Transitions always go out;
// digests are deferred during quiet hours and retried on the next round
// because items stay unsent until delivery is confirmed.
type Notifier struct {
    telegram *Telegram
    cfg      config.TelegramConfig

    now func() time.Time
}

func New(telegram *Telegram, cfg config.TelegramConfig) *Notifier {
    return &Notifier{
        telegram: telegram,
        cfg:      cfg,
        now:      time.Now,
    }
}

func (n *Notifier) NotifyTransition(ctx context.Context, event *monitor.TransitionEvent) error {
    err := n.telegram.Send(ctx, ComposeTransition(event))
    metrics.RecordNotification(string(event.Type), err)
    return err
}

func (n *Notifier) SendStatus(ctx context.Context, states []store.AlertState) error {
    err := n.telegram.Send(ctx, ComposeStatus(states))
    metrics.RecordNotification("status", err)
    return err
}

func (n *Notifier) SendDigest(ctx context.Context, chatID int64, feeds []store.Feed, items []store.FeedItem) error {
    if n.cfg.IsQuietTime(n.now()) {
        logrus.WithField("chat", chatID).Debug("Quiet hours, deferring digest")
        return ErrQuietHours
    }
    if len(items) == 0 {
        return nil
    }
    return n.telegram.SendTo(ctx, strconv.FormatInt(chatID, 10), ComposeDigest(feeds, items))
}
