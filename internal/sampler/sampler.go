// internal/sampler/sampler.go - Scrapes a Prometheus exposition endpoint
package sampler

import (
    "context"
    "fmt"
    "net/http"
    "strings"
    "time"

    dto "github.com/prometheus/client_model/go"
    "github.com/prometheus/common/expfmt"
)

// Snapshot is one sampling round. Pointer fields are nil when the exporter
// did not expose the series, which evaluators treat as "no reading".
type Snapshot struct {
    Timestamp time.Time

    LoadPerCore     *float64
    MemUsedFraction *float64

    // used-space fraction per mountpoint
    DiskUsed map[string]float64
    // free-inode fraction per mountpoint
    InodesFree map[string]float64
}

// Filter drops filesystems that should not be monitored: pseudo and
// ephemeral filesystems by type, and kernel mountpoints by prefix.
type Filter struct {
    fstypes map[string]bool
    mounts  []string
}

func NewFilter(excludeFSTypes, excludeMounts []string) *Filter {
    f := &Filter{fstypes: make(map[string]bool, len(excludeFSTypes))}
    for _, t := range excludeFSTypes {
        f.fstypes[t] = true
    }
    f.mounts = append(f.mounts, excludeMounts...)
    return f
}

func (f *Filter) Keep(mount, fstype string) bool {
    if f.fstypes[fstype] {
        return false
    }
    for _, prefix := range f.mounts {
        if mount == prefix || strings.HasPrefix(mount, prefix+"/") {
            return false
        }
    }
    return true
}

// Sampler fetches and parses one exposition page per round.
type Sampler struct {
    url    string
    client *http.Client
    filter *Filter
}

func New(url string, timeout time.Duration, filter *Filter) *Sampler {
    return &Sampler{
        url:    url,
        client: &http.Client{Timeout: timeout},
        filter: filter,
    }
}

// WithClient swaps the HTTP client, used by tests to stub transport.
func (s *Sampler) WithClient(c *http.Client) *Sampler {
    s.client = c
    return s
}

// Sample scrapes the endpoint and derives the snapshot. A failed scrape
// returns an error; a successful scrape with missing series returns a
// snapshot with nil readings for those series.
func (s *Sampler) Sample(ctx context.Context) (*Snapshot, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
    if err != nil {
        return nil, fmt.Errorf("failed to build scrape request: %w", err)
    }

    resp, err := s.client.Do(req)
    if err != nil {
        return nil, fmt.Errorf("failed to scrape %s: %w", s.url, err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        return nil, fmt.Errorf("scrape %s returned status %d", s.url, resp.StatusCode)
    }

    var parser expfmt.TextParser
    families, err := parser.TextToMetricFamilies(resp.Body)
    if err != nil {
        return nil, fmt.Errorf("failed to parse exposition data: %w", err)
    }

    return s.snapshotFrom(families), nil
}

func (s *Sampler) snapshotFrom(families map[string]*dto.MetricFamily) *Snapshot {
    snap := &Snapshot{
        Timestamp:  time.Now(),
        DiskUsed:   make(map[string]float64),
        InodesFree: make(map[string]float64),
    }

    if load1, ok := firstValue(families, "node_load1"); ok {
        if cores := countCPUs(families); cores > 0 {
            perCore := load1 / float64(cores)
            snap.LoadPerCore = &perCore
        }
    }

    total, okTotal := firstValue(families, "node_memory_MemTotal_bytes")
    avail, okAvail := firstValue(families, "node_memory_MemAvailable_bytes")
    if okTotal && okAvail && total > 0 {
        used := 1 - avail/total
        snap.MemUsedFraction = &used
    }

    sizes := valuesByMount(families, "node_filesystem_size_bytes", s.filter)
    avails := valuesByMount(families, "node_filesystem_avail_bytes", s.filter)
    for mount, size := range sizes {
        free, ok := avails[mount]
        if !ok || size <= 0 {
            continue
        }
        snap.DiskUsed[mount] = 1 - free/size
    }

    files := valuesByMount(families, "node_filesystem_files", s.filter)
    filesFree := valuesByMount(families, "node_filesystem_files_free", s.filter)
    for mount, total := range files {
        free, ok := filesFree[mount]
        if !ok || total <= 0 {
            continue
        }
        snap.InodesFree[mount] = free / total
    }

    return snap
}

// countCPUs counts distinct cpu labels on node_cpu_seconds_total. The idle
// mode is present for every core on every exporter build, so it is a stable
// series to count by.
func countCPUs(families map[string]*dto.MetricFamily) int {
    family, ok := families["node_cpu_seconds_total"]
    if !ok {
        return 0
    }

    cpus := make(map[string]bool)
    for _, m := range family.GetMetric() {
        var cpu, mode string
        for _, l := range m.GetLabel() {
            switch l.GetName() {
            case "cpu":
                cpu = l.GetValue()
            case "mode":
                mode = l.GetValue()
            }
        }
        if mode == "idle" && cpu != "" {
            cpus[cpu] = true
        }
    }
    return len(cpus)
}

func firstValue(families map[string]*dto.MetricFamily, name string) (float64, bool) {
    family, ok := families[name]
    if !ok || len(family.GetMetric()) == 0 {
        return 0, false
    }
    return metricValue(family, family.GetMetric()[0]), true
}

func valuesByMount(families map[string]*dto.MetricFamily, name string, filter *Filter) map[string]float64 {
    out := make(map[string]float64)
    family, ok := families[name]
    if !ok {
        return out
    }

    for _, m := range family.GetMetric() {
        var mount, fstype string
        for _, l := range m.GetLabel() {
            switch l.GetName() {
            case "mountpoint":
                mount = l.GetValue()
            case "fstype":
                fstype = l.GetValue()
            }
        }
        if mount == "" {
            continue
        }
        if filter != nil && !filter.Keep(mount, fstype) {
            continue
        }
        out[mount] = metricValue(family, m)
    }
    return out
}

func metricValue(family *dto.MetricFamily, m *dto.Metric) float64 {
    switch family.GetType() {
    case dto.MetricType_COUNTER:
        return m.GetCounter().GetValue()
    case dto.MetricType_UNTYPED:
        return m.GetUntyped().GetValue()
    default:
        return m.GetGauge().GetValue()
    }
}
