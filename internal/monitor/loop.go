// internal/monitor/loop.go - Periodic sampling loop
package monitor

import (
    "context"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/goodmeow/tg-monitoring/internal/config"
    "github.com/goodmeow/tg-monitoring/internal/metrics"
    "github.com/goodmeow/tg-monitoring/internal/sampler"
)

// Notifier delivers a transition to the outside world.
type Notifier interface {
    NotifyTransition(ctx context.Context, event *TransitionEvent) error
}

// Broadcaster fans a transition out to live listeners (the websocket hub).
type Broadcaster interface {
    BroadcastEvent(event *TransitionEvent)
}

// Loop drives the sample -> evaluate -> track -> notify cycle on a fixed
// interval until its context is cancelled.
type Loop struct {
    sampler    *sampler.Sampler
    tracker    *Tracker
    thresholds config.ThresholdsConfig
    interval   time.Duration

    notifier    Notifier
    broadcaster Broadcaster
}

func NewLoop(s *sampler.Sampler, tracker *Tracker, cfg config.MonitoringConfig) *Loop {
    return &Loop{
        sampler:    s,
        tracker:    tracker,
        thresholds: cfg.Thresholds,
        interval:   cfg.Interval,
    }
}

func (l *Loop) WithNotifier(n Notifier) *Loop {
    l.notifier = n
    return l
}

func (l *Loop) WithBroadcaster(b Broadcaster) *Loop {
    l.broadcaster = b
    return l
}

func (l *Loop) Run(ctx context.Context) {
    logrus.WithField("interval", l.interval).Info("Starting monitoring loop")

    ticker := time.NewTicker(l.interval)
    defer ticker.Stop()

    // first round immediately so startup state is visible without waiting
    // a full interval
    l.runOnce(ctx)

    for {
        select {
        case <-ctx.Done():
            logrus.Info("Monitoring loop stopped")
            return
        case <-ticker.C:
            l.runOnce(ctx)
        }
    }
}

func (l *Loop) runOnce(ctx context.Context) {
    started := time.Now()

    sampleCtx, cancel := context.WithTimeout(ctx, l.interval)
    defer cancel()

    snap, err := l.sampler.Sample(sampleCtx)
    metrics.RecordSample(err, time.Since(started))
    if err != nil {
        // a failed scrape is not a breach; stored state stays as-is
        logrus.WithError(err).Warn("Sampling round failed")
        return
    }

    for _, check := range Evaluate(snap, l.thresholds) {
        state, event, err := l.tracker.Apply(ctx, check)
        if err != nil {
            logrus.WithError(err).WithField("metric", check.MetricID).Error("Failed to track check result")
            continue
        }
        if state != nil {
            metrics.UpdateMetricState(state.MetricID, string(state.Status), state.LastValue)
        }
        if event == nil {
            continue
        }

        metrics.RecordTransition(string(event.Type))
        if l.broadcaster != nil {
            l.broadcaster.BroadcastEvent(event)
        }
        if l.notifier != nil {
            if err := l.notifier.NotifyTransition(ctx, event); err != nil {
                logrus.WithError(err).WithField("metric", event.MetricID).Error("Failed to deliver transition")
            }
        }
    }
}
