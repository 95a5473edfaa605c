// internal/config/telegram.go - Telegram notification configuration
package config

import (
    "fmt"
    "strconv"
    "time"
)

// TelegramConfig holds the bot credentials and delivery settings. ChatID is
// kept as a string because Telegram accepts both numeric chat IDs and
// @channel names.
type TelegramConfig struct {
    Enabled    bool        `yaml:"enabled"`
    Token      string      `yaml:"token"`
    ChatID     string      `yaml:"chat_id"`
    APIBase    string      `yaml:"api_base"`
    QuietHours *QuietHours `yaml:"quiet_hours,omitempty"`
}

// QuietHours suppresses non-critical notifications during a daily window.
// ALERT and RECOVERED events are always delivered.
type QuietHours struct {
    Enabled   bool   `yaml:"enabled"`
    StartHour int    `yaml:"start_hour"` // 0-23
    EndHour   int    `yaml:"end_hour"`   // 0-23
    Timezone  string `yaml:"timezone"`   // IANA name, e.g. "Asia/Jakarta"
}

func (t *TelegramConfig) Validate() error {
    if !t.Enabled {
        return nil
    }

    if t.Token == "" {
        return fmt.Errorf("telegram.token is required when telegram is enabled")
    }
    if t.ChatID == "" {
        return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
    }
    if t.ChatID[0] != '@' {
        if _, err := strconv.ParseInt(t.ChatID, 10, 64); err != nil {
            return fmt.Errorf("telegram.chat_id must be numeric or start with @")
        }
    }

    if t.QuietHours != nil && t.QuietHours.Enabled {
        if t.QuietHours.StartHour < 0 || t.QuietHours.StartHour > 23 {
            return fmt.Errorf("telegram.quiet_hours.start_hour must be between 0 and 23")
        }
        if t.QuietHours.EndHour < 0 || t.QuietHours.EndHour > 23 {
            return fmt.Errorf("telegram.quiet_hours.end_hour must be between 0 and 23")
        }
        if t.QuietHours.Timezone == "" {
            t.QuietHours.Timezone = "UTC"
        }
    }

    return nil
}

// IsQuietTime reports whether now falls inside the configured quiet window.
func (t *TelegramConfig) IsQuietTime(now time.Time) bool {
    if t.QuietHours == nil || !t.QuietHours.Enabled {
        return false
    }

    loc, err := time.LoadLocation(t.QuietHours.Timezone)
    if err != nil {
        loc = time.UTC
    }

    hour := now.In(loc).Hour()
    start := t.QuietHours.StartHour
    end := t.QuietHours.EndHour

    // window may span midnight
    if start <= end {
        return hour >= start && hour < end
    }
    return hour >= start || hour < end
}
