// internal/exporter/exporter.go - Embedded node-exporter-compatible endpoint
package exporter

import (
    "context"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/shirou/gopsutil/v4/cpu"
    "github.com/shirou/gopsutil/v4/disk"
    "github.com/shirou/gopsutil/v4/load"
    "github.com/shirou/gopsutil/v4/mem"
    "github.com/sirupsen/logrus"
)

// Exporter serves the subset of node_exporter series the sampler consumes,
// so a host without node_exporter can still be monitored by pointing the
// sampler at this endpoint.
type Exporter struct {
    addr   string
    server *http.Server
}

func New(addr string) *Exporter {
    return &Exporter{addr: addr}
}

func (e *Exporter) Start(ctx context.Context) error {
    registry := prometheus.NewRegistry()
    registry.MustRegister(&collector{})

    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

    e.server = &http.Server{
        Addr:         e.addr,
        Handler:      mux,
        ReadTimeout:  10 * time.Second,
        WriteTimeout: 10 * time.Second,
    }

    logrus.WithField("addr", e.addr).Info("Starting embedded exporter")

    go func() {
        if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            logrus.WithError(err).Error("Embedded exporter exited")
        }
    }()

    return nil
}

func (e *Exporter) Stop(ctx context.Context) error {
    if e.server != nil {
        return e.server.Shutdown(ctx)
    }
    return nil
}

var (
    loadDesc = prometheus.NewDesc(
        "node_load1", "1m load average.", nil, nil)
    cpuDesc = prometheus.NewDesc(
        "node_cpu_seconds_total", "Seconds the CPUs spent in each mode.",
        []string{"cpu", "mode"}, nil)
    memTotalDesc = prometheus.NewDesc(
        "node_memory_MemTotal_bytes", "Memory information field MemTotal_bytes.", nil, nil)
    memAvailDesc = prometheus.NewDesc(
        "node_memory_MemAvailable_bytes", "Memory information field MemAvailable_bytes.", nil, nil)
    fsSizeDesc = prometheus.NewDesc(
        "node_filesystem_size_bytes", "Filesystem size in bytes.",
        []string{"device", "fstype", "mountpoint"}, nil)
    fsAvailDesc = prometheus.NewDesc(
        "node_filesystem_avail_bytes", "Filesystem space available in bytes.",
        []string{"device", "fstype", "mountpoint"}, nil)
    fsFilesDesc = prometheus.NewDesc(
        "node_filesystem_files", "Filesystem total file nodes.",
        []string{"device", "fstype", "mountpoint"}, nil)
    fsFilesFreeDesc = prometheus.NewDesc(
        "node_filesystem_files_free", "Filesystem free file nodes.",
        []string{"device", "fstype", "mountpoint"}, nil)
)

// collector reads host state on every scrape.
type collector struct{}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
    ch <- loadDesc
    ch <- cpuDesc
    ch <- memTotalDesc
    ch <- memAvailDesc
    ch <- fsSizeDesc
    ch <- fsAvailDesc
    ch <- fsFilesDesc
    ch <- fsFilesFreeDesc
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
    if avg, err := load.Avg(); err == nil {
        ch <- prometheus.MustNewConstMetric(loadDesc, prometheus.GaugeValue, avg.Load1)
    }

    if times, err := cpu.Times(true); err == nil {
        for _, t := range times {
            ch <- prometheus.MustNewConstMetric(cpuDesc, prometheus.CounterValue, t.Idle, t.CPU, "idle")
            ch <- prometheus.MustNewConstMetric(cpuDesc, prometheus.CounterValue, t.User, t.CPU, "user")
            ch <- prometheus.MustNewConstMetric(cpuDesc, prometheus.CounterValue, t.System, t.CPU, "system")
        }
    }

    if vm, err := mem.VirtualMemory(); err == nil {
        ch <- prometheus.MustNewConstMetric(memTotalDesc, prometheus.GaugeValue, float64(vm.Total))
        ch <- prometheus.MustNewConstMetric(memAvailDesc, prometheus.GaugeValue, float64(vm.Available))
    }

    parts, err := disk.Partitions(false)
    if err != nil {
        return
    }
    for _, part := range parts {
        usage, err := disk.Usage(part.Mountpoint)
        if err != nil {
            continue
        }
        labels := []string{part.Device, part.Fstype, part.Mountpoint}
        ch <- prometheus.MustNewConstMetric(fsSizeDesc, prometheus.GaugeValue, float64(usage.Total), labels...)
        ch <- prometheus.MustNewConstMetric(fsAvailDesc, prometheus.GaugeValue, float64(usage.Free), labels...)
        if usage.InodesTotal > 0 {
            ch <- prometheus.MustNewConstMetric(fsFilesDesc, prometheus.GaugeValue, float64(usage.InodesTotal), labels...)
            ch <- prometheus.MustNewConstMetric(fsFilesFreeDesc, prometheus.GaugeValue, float64(usage.InodesFree), labels...)
        }
    }
}
