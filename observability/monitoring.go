// Package observability collects process-level health figures for the
// debug endpoint and the periodic stats log line.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats is a point-in-time snapshot of the process.
type Stats struct {
	AllocMemMb   uint64  `json:"alloc_mem_mb"`
	SysMemMb     uint64  `json:"sys_mem_mb"`
	NumGC        uint32  `json:"num_gc"`
	Goroutines   int     `json:"goroutines"`
	ProcessRssMb uint64  `json:"process_rss_mb"`
	CPUPercent   float64 `json:"cpu_percent"`
	UptimeSec    int64   `json:"uptime_sec"`
}

type Monitor struct {
	log     *slog.Logger
	proc    *process.Process
	started time.Time
}

func NewMonitor(log *slog.Logger) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Monitor{log: log, proc: proc, started: time.Now()}, nil
}

// Snapshot gathers runtime and OS-level figures. OS probes are best-effort:
// a failing probe leaves its field at zero rather than failing the snapshot.
func (m *Monitor) Snapshot() Stats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := Stats{
		AllocMemMb: memStats.Alloc / 1024 / 1024,
		SysMemMb:   memStats.Sys / 1024 / 1024,
		NumGC:      memStats.NumGC,
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(time.Since(m.started).Seconds()),
	}

	if memInfo, err := m.proc.MemoryInfo(); err == nil {
		stats.ProcessRssMb = memInfo.RSS / 1024 / 1024
	}
	if cpu, err := m.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats
}

// Run logs a snapshot every interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.Snapshot()
			m.log.Info("process stats",
				"alloc_mb", stats.AllocMemMb,
				"rss_mb", stats.ProcessRssMb,
				"goroutines", stats.Goroutines,
				"cpu_pct", stats.CPUPercent,
				"gc", stats.NumGC,
			)
		}
	}
}
