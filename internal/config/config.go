// internal/config/config.go - YAML configuration with defaults and validation
package config

import (
    "fmt"
    "os"
    "strings"
    "time"

    "gopkg.in/yaml.v3"
)

type Config struct {
    Server     ServerConfig     `yaml:"server"`
    Storage    StorageConfig    `yaml:"storage"`
    Exporter   ExporterConfig   `yaml:"exporter"`
    Monitoring MonitoringConfig `yaml:"monitoring"`
    RSS        RSSConfig        `yaml:"rss"`
    Telegram   TelegramConfig   `yaml:"telegram"`
    Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
    Enabled      bool          `yaml:"enabled"`
    Port         string        `yaml:"port"`
    ReadTimeout  time.Duration `yaml:"read_timeout"`
    WriteTimeout time.Duration `yaml:"write_timeout"`
}

type StorageConfig struct {
    DataDir     string `yaml:"data_dir"`
    DatabaseDSN string `yaml:"database_dsn"`
}

// ExporterConfig controls where metric samples come from. By default the
// sampler scrapes an external node_exporter; with the embedded exporter
// enabled the process serves its own exposition endpoint and scrapes that.
type ExporterConfig struct {
    URL      string        `yaml:"url"`
    Timeout  time.Duration `yaml:"timeout"`
    Embedded bool          `yaml:"embedded"`
    Port     string        `yaml:"port"`
}

type MonitoringConfig struct {
    Interval       time.Duration    `yaml:"interval"`
    MinConsecutive int              `yaml:"min_consecutive"`
    StatusInterval time.Duration    `yaml:"status_interval"`
    Thresholds     ThresholdsConfig `yaml:"thresholds"`
}

type ThresholdsConfig struct {
    CPULoadPerCore   float64  `yaml:"cpu_load_per_core"`
    MemFreeFraction  float64  `yaml:"mem_free_fraction"`
    DiskUsedFraction float64  `yaml:"disk_used_fraction"`
    InodeEnabled     bool     `yaml:"inode_enabled"`
    InodeFreeMin     float64  `yaml:"inode_free_min"`
    ExcludeFSTypes   []string `yaml:"exclude_fstypes"`
    ExcludeMounts    []string `yaml:"exclude_mounts"`
}

type RSSConfig struct {
    Enabled        bool          `yaml:"enabled"`
    PollInterval   time.Duration `yaml:"poll_interval"`
    DigestInterval time.Duration `yaml:"digest_interval"`
    PerFeedLimit   int           `yaml:"per_feed_limit"`
    DigestLimit    int           `yaml:"digest_limit"`
    FetchTimeout   time.Duration `yaml:"fetch_timeout"`
}

type LoggingConfig struct {
    Level  string `yaml:"level"`
    Format string `yaml:"format"`
}

func Load(filename string) (*Config, error) {
    config, err := loadConfigFile(filename)
    if err != nil {
        return nil, fmt.Errorf("failed to load config file: %w", err)
    }

    setDefaults(config)

    if err := validate(config); err != nil {
        return nil, fmt.Errorf("invalid configuration: %w", err)
    }

    return config, nil
}

func loadConfigFile(filename string) (*Config, error) {
    data, err := os.ReadFile(filename)
    if err != nil {
        return nil, fmt.Errorf("failed to read config file: %w", err)
    }

    // environment variables beat the file for secrets so tokens can stay
    // out of version control
    var config Config
    if err := yaml.Unmarshal(data, &config); err != nil {
        return nil, fmt.Errorf("failed to parse YAML: %w", err)
    }
    applyEnvOverrides(&config)

    return &config, nil
}

func applyEnvOverrides(cfg *Config) {
    if v := os.Getenv("TGMON_BOT_TOKEN"); v != "" {
        cfg.Telegram.Token = v
    }
    if v := os.Getenv("TGMON_CHAT_ID"); v != "" {
        cfg.Telegram.ChatID = v
    }
    if v := os.Getenv("TGMON_DATABASE_DSN"); v != "" {
        cfg.Storage.DatabaseDSN = v
    }
}

func setDefaults(cfg *Config) {
    if cfg.Server.Port == "" {
        cfg.Server.Port = ":8080"
    }
    if cfg.Server.ReadTimeout == 0 {
        cfg.Server.ReadTimeout = 10 * time.Second
    }
    if cfg.Server.WriteTimeout == 0 {
        cfg.Server.WriteTimeout = 10 * time.Second
    }

    if cfg.Storage.DataDir == "" {
        cfg.Storage.DataDir = "./data"
    }

    if cfg.Exporter.URL == "" {
        cfg.Exporter.URL = "http://localhost:9100/metrics"
    }
    if cfg.Exporter.Timeout == 0 {
        cfg.Exporter.Timeout = 10 * time.Second
    }
    if cfg.Exporter.Port == "" {
        cfg.Exporter.Port = ":9101"
    }

    if cfg.Monitoring.Interval == 0 {
        cfg.Monitoring.Interval = 15 * time.Second
    }
    if cfg.Monitoring.MinConsecutive == 0 {
        cfg.Monitoring.MinConsecutive = 3
    }
    if cfg.Monitoring.Thresholds.CPULoadPerCore == 0 {
        cfg.Monitoring.Thresholds.CPULoadPerCore = 0.9
    }
    if cfg.Monitoring.Thresholds.MemFreeFraction == 0 {
        cfg.Monitoring.Thresholds.MemFreeFraction = 0.10
    }
    if cfg.Monitoring.Thresholds.DiskUsedFraction == 0 {
        cfg.Monitoring.Thresholds.DiskUsedFraction = 0.85
    }
    if cfg.Monitoring.Thresholds.InodeFreeMin == 0 {
        cfg.Monitoring.Thresholds.InodeFreeMin = 0.10
    }
    if cfg.Monitoring.Thresholds.ExcludeFSTypes == nil {
        cfg.Monitoring.Thresholds.ExcludeFSTypes = []string{
            "tmpfs", "devtmpfs", "overlay", "squashfs", "proc", "sysfs",
            "cgroup", "cgroup2", "ramfs", "autofs", "fuse.lxcfs",
        }
    }
    if cfg.Monitoring.Thresholds.ExcludeMounts == nil {
        cfg.Monitoring.Thresholds.ExcludeMounts = []string{"/proc", "/sys", "/dev", "/run"}
    }

    if cfg.RSS.PollInterval == 0 {
        cfg.RSS.PollInterval = 5 * time.Minute
    }
    if cfg.RSS.DigestInterval == 0 {
        cfg.RSS.DigestInterval = time.Hour
    }
    if cfg.RSS.PerFeedLimit == 0 {
        cfg.RSS.PerFeedLimit = 5
    }
    if cfg.RSS.DigestLimit == 0 {
        cfg.RSS.DigestLimit = 40
    }
    if cfg.RSS.FetchTimeout == 0 {
        cfg.RSS.FetchTimeout = 30 * time.Second
    }

    if cfg.Telegram.APIBase == "" {
        cfg.Telegram.APIBase = "https://api.telegram.org"
    }

    if cfg.Logging.Level == "" {
        cfg.Logging.Level = "info"
    }
    if cfg.Logging.Format == "" {
        cfg.Logging.Format = "text"
    }
}

func validate(cfg *Config) error {
    if cfg.Monitoring.Interval <= 0 {
        return fmt.Errorf("monitoring.interval must be positive")
    }
    if cfg.Monitoring.MinConsecutive < 1 {
        return fmt.Errorf("monitoring.min_consecutive must be at least 1")
    }
    if cfg.Monitoring.StatusInterval < 0 {
        return fmt.Errorf("monitoring.status_interval cannot be negative")
    }

    t := cfg.Monitoring.Thresholds
    // load per core is not a fraction; above 1.0 just means oversubscribed
    if t.CPULoadPerCore <= 0 {
        return fmt.Errorf("monitoring.thresholds.cpu_load_per_core must be positive")
    }
    fractions := map[string]float64{
        "monitoring.thresholds.mem_free_fraction":  t.MemFreeFraction,
        "monitoring.thresholds.disk_used_fraction": t.DiskUsedFraction,
        "monitoring.thresholds.inode_free_min":     t.InodeFreeMin,
    }
    for name, v := range fractions {
        if v <= 0 || v > 1 {
            return fmt.Errorf("%s must be in (0, 1]", name)
        }
    }

    if !strings.HasPrefix(cfg.Exporter.URL, "http://") && !strings.HasPrefix(cfg.Exporter.URL, "https://") {
        return fmt.Errorf("exporter.url must be an http or https URL")
    }

    if cfg.RSS.Enabled {
        if cfg.RSS.PollInterval <= 0 {
            return fmt.Errorf("rss.poll_interval must be positive")
        }
        if cfg.RSS.DigestInterval <= 0 {
            return fmt.Errorf("rss.digest_interval must be positive")
        }
        if cfg.RSS.PerFeedLimit < 1 {
            return fmt.Errorf("rss.per_feed_limit must be at least 1")
        }
        if cfg.RSS.DigestLimit < 1 {
            return fmt.Errorf("rss.digest_limit must be at least 1")
        }
    }

    if err := cfg.Telegram.Validate(); err != nil {
        return err
    }

    switch cfg.Logging.Level {
    case "debug", "info", "warn", "error":
    default:
        return fmt.Errorf("logging.level must be one of debug, info, warn, error")
    }

    return nil
}
