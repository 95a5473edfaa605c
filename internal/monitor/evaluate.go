// internal/monitor/evaluate.go - Threshold evaluation over one snapshot
package monitor

import (
    "fmt"
    "sort"

    "github.com/goodmeow/tg-monitoring/internal/config"
    "github.com/goodmeow/tg-monitoring/internal/sampler"
)

// Check is one metric reading judged against its threshold. Value is nil
// when the exporter gave no reading this round; such checks leave the
// stored state untouched.
type Check struct {
    MetricID string
    Label    string
    Value    *float64
    Breach   bool
    Message  string
}

// Evaluate judges a snapshot against the configured thresholds. It is a
// pure function; all debounce state lives in the Tracker.
func Evaluate(snap *sampler.Snapshot, t config.ThresholdsConfig) []Check {
    var checks []Check

    cpu := Check{MetricID: "cpu_load", Label: "CPU load"}
    if snap.LoadPerCore != nil {
        v := *snap.LoadPerCore
        cpu.Value = &v
        cpu.Breach = v >= t.CPULoadPerCore
        cpu.Message = fmt.Sprintf("load per core %.2f (threshold %.2f)", v, t.CPULoadPerCore)
    }
    checks = append(checks, cpu)

    mem := Check{MetricID: "memory", Label: "Memory"}
    if snap.MemUsedFraction != nil {
        v := *snap.MemUsedFraction
        mem.Value = &v
        // configured as minimum free fraction; breach when used crosses
        // the complement
        usedMax := 1 - t.MemFreeFraction
        mem.Breach = v >= usedMax
        mem.Message = fmt.Sprintf("memory used %.1f%% (threshold %.1f%%)", v*100, usedMax*100)
    }
    checks = append(checks, mem)

    for _, mount := range sortedKeys(snap.DiskUsed) {
        v := snap.DiskUsed[mount]
        value := v
        checks = append(checks, Check{
            MetricID: "disk:" + mount,
            Label:    "Disk " + mount,
            Value:    &value,
            Breach:   v >= t.DiskUsedFraction,
            Message:  fmt.Sprintf("disk %s used %.1f%% (threshold %.1f%%)", mount, v*100, t.DiskUsedFraction*100),
        })
    }

    if t.InodeEnabled {
        for _, mount := range sortedKeys(snap.InodesFree) {
            v := snap.InodesFree[mount]
            value := v
            checks = append(checks, Check{
                MetricID: "inode:" + mount,
                Label:    "Inodes " + mount,
                Value:    &value,
                Breach:   v <= t.InodeFreeMin,
                Message:  fmt.Sprintf("inodes %s free %.1f%% (minimum %.1f%%)", mount, v*100, t.InodeFreeMin*100),
            })
        }
    }

    return checks
}

func sortedKeys(m map[string]float64) []string {
    keys := make([]string, 0, len(m))
    for k := range m {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    return keys
}
