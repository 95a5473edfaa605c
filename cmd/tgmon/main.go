package main

import (
    "context"
    "flag"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/goodmeow/tg-monitoring/internal/config"
    "github.com/goodmeow/tg-monitoring/internal/exporter"
    "github.com/goodmeow/tg-monitoring/internal/monitor"
    "github.com/goodmeow/tg-monitoring/internal/notify"
    "github.com/goodmeow/tg-monitoring/internal/rss"
    "github.com/goodmeow/tg-monitoring/internal/sampler"
    "github.com/goodmeow/tg-monitoring/internal/store"
    "github.com/goodmeow/tg-monitoring/internal/web"
)

func main() {
    configFile := flag.String("config", "config.yaml", "Configuration file path")
    version := flag.Bool("version", false, "Show version information")
    flag.Parse()

    if *version {
        fmt.Println("tgmon v1.0.0")
        os.Exit(0)
    }

    cfg, err := config.Load(*configFile)
    if err != nil {
        logrus.Fatalf("Failed to load config: %v", err)
    }

    setupLogging(cfg.Logging)

    logrus.WithFields(logrus.Fields{
        "config_file": *configFile,
        "interval":    cfg.Monitoring.Interval,
    }).Info("Starting tgmon")

    st, err := store.Open(cfg.Storage.DataDir, cfg.Storage.DatabaseDSN)
    if err != nil {
        logrus.Fatalf("Failed to initialize storage: %v", err)
    }
    defer st.Close()

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    exporterURL := cfg.Exporter.URL
    var embedded *exporter.Exporter
    if cfg.Exporter.Embedded {
        embedded = exporter.New(cfg.Exporter.Port)
        if err := embedded.Start(ctx); err != nil {
            logrus.Fatalf("Failed to start embedded exporter: %v", err)
        }
        exporterURL = fmt.Sprintf("http://localhost%s/metrics", cfg.Exporter.Port)
    }

    filter := sampler.NewFilter(
        cfg.Monitoring.Thresholds.ExcludeFSTypes,
        cfg.Monitoring.Thresholds.ExcludeMounts,
    )
    smp := sampler.New(exporterURL, cfg.Exporter.Timeout, filter)
    tracker := monitor.NewTracker(st, cfg.Monitoring.MinConsecutive)
    loop := monitor.NewLoop(smp, tracker, cfg.Monitoring)

    var notifier *notify.Notifier
    if cfg.Telegram.Enabled {
        notifier = notify.New(notify.NewTelegram(cfg.Telegram), cfg.Telegram)
        loop.WithNotifier(notifier)
    } else {
        logrus.Warn("Telegram disabled, transitions will only be logged")
    }

    var webServer *web.Server
    if cfg.Server.Enabled {
        webServer = web.NewServer(cfg, st)
        loop.WithBroadcaster(webServer)
        if err := webServer.Start(ctx); err != nil {
            logrus.Fatalf("Failed to start web server: %v", err)
        }
    }

    go loop.Run(ctx)

    if cfg.RSS.Enabled && notifier != nil {
        poller := rss.NewPoller(st, cfg.RSS.FetchTimeout)
        go rss.NewService(st, poller, notifier, cfg.RSS).Run(ctx)
    }

    if cfg.Monitoring.StatusInterval > 0 && notifier != nil {
        go statusLoop(ctx, st, notifier, cfg.Monitoring.StatusInterval)
    }

    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

    sig := <-sigChan
    logrus.WithField("signal", sig).Info("Received shutdown signal")

    cancel()

    shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer shutdownCancel()
    if webServer != nil {
        if err := webServer.Stop(shutdownCtx); err != nil {
            logrus.WithError(err).Warn("Web server shutdown failed")
        }
    }
    if embedded != nil {
        if err := embedded.Stop(shutdownCtx); err != nil {
            logrus.WithError(err).Warn("Embedded exporter shutdown failed")
        }
    }

    logrus.Info("Shutdown complete")
}

func statusLoop(ctx context.Context, st store.Store, notifier *notify.Notifier, interval time.Duration) {
    ticker := time.NewTicker(interval)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            states, err := st.ListAlertStates(ctx)
            if err != nil {
                logrus.WithError(err).Error("Failed to assemble status report")
                continue
            }
            if err := notifier.SendStatus(ctx, states); err != nil {
                logrus.WithError(err).Warn("Failed to deliver status report")
            }
        }
    }
}

func setupLogging(cfg config.LoggingConfig) {
    level, err := logrus.ParseLevel(cfg.Level)
    if err != nil {
        level = logrus.InfoLevel
    }
    logrus.SetLevel(level)

    if cfg.Format == "json" {
        logrus.SetFormatter(&logrus.JSONFormatter{})
    } else {
        logrus.SetFormatter(&logrus.TextFormatter{
            FullTimestamp: true,
        })
    }
}
