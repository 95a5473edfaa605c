package main

import (
    "context"
    "encoding/json"
    "flag"
    "os"

    "github.com/sirupsen/logrus"

    "github.com/goodmeow/tg-monitoring/internal/config"
    "github.com/goodmeow/tg-monitoring/internal/store"
)

func main() {
    configFile := flag.String("config", "config.yaml", "Configuration file path")
    dryRun := flag.Bool("dry-run", false, "Report what would be migrated without writing")
    flag.Parse()

    cfg, err := config.Load(*configFile)
    if err != nil {
        logrus.Fatalf("Failed to load config: %v", err)
    }
    if cfg.Storage.DatabaseDSN == "" {
        logrus.Fatal("storage.database_dsn must be configured to migrate")
    }

    logrus.WithFields(logrus.Fields{
        "data_dir": cfg.Storage.DataDir,
        "files":    store.FilePaths(cfg.Storage.DataDir),
        "dry_run":  *dryRun,
    }).Info("Migrating flat-file state to the database")

    src, err := store.NewFileStore(cfg.Storage.DataDir)
    if err != nil {
        logrus.Fatalf("Failed to open flat-file storage: %v", err)
    }

    dst, err := store.NewGormStore(cfg.Storage.DatabaseDSN)
    if err != nil {
        logrus.Fatalf("Failed to open database: %v", err)
    }
    defer dst.Close()

    report, err := store.Migrate(context.Background(), src, dst, *dryRun)
    if err != nil {
        logrus.Fatalf("Migration failed: %v", err)
    }

    enc := json.NewEncoder(os.Stdout)
    enc.SetIndent("", "  ")
    if err := enc.Encode(report); err != nil {
        logrus.Fatalf("Failed to print report: %v", err)
    }
}
