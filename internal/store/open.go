// internal/store/open.go - Backend selection at startup
package store

import (
    "path/filepath"

    "github.com/sirupsen/logrus"
)

// Open picks the storage backend once at startup. When a database DSN is
// configured the relational backend is used; if it cannot be reached the
// flat-file backend takes over so monitoring keeps running in degraded mode.
func Open(dataDir, databaseDSN string) (Store, error) {
    if databaseDSN == "" {
        logrus.WithField("dir", dataDir).Info("Using flat-file storage backend")
        return NewFileStore(dataDir)
    }

    s, err := NewGormStore(databaseDSN)
    if err != nil {
        logrus.WithError(err).Warn("Database unreachable, falling back to flat-file storage (degraded mode)")
        return NewFileStore(dataDir)
    }

    logrus.Info("Using relational storage backend")
    return s, nil
}

// FilePaths returns the flat-file backend's file locations under dataDir.
// The migration tool uses this to report what it reads from.
func FilePaths(dataDir string) []string {
    return []string{
        filepath.Join(dataDir, stateFileName),
        filepath.Join(dataDir, rssFileName),
        filepath.Join(dataDir, settingsFileName),
    }
}
