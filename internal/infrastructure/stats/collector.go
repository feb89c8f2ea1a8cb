package stats

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

type SystemStats struct {
	CPUUsage    float64 `json:"cpu_usage"`
	RAMUsage    float64 `json:"ram_usage"`
	RAMTotal    uint64  `json:"ram_total"`
	RAMUsed     uint64  `json:"ram_used"`
	Uptime      uint64  `json:"uptime"`
	NetworkRx   uint64  `json:"network_rx"`
	NetworkTx   uint64  `json:"network_tx"`
	Hostname    string  `json:"hostname"`
	OS          string  `json:"os"`
	Platform    string  `json:"platform"`
	CollectedAt int64   `json:"collected_at"`
}

type Collector struct {
	sampleWindow time.Duration
}

func NewCollector(sampleWindow time.Duration) *Collector {
	if sampleWindow <= 0 {
		sampleWindow = time.Second
	}
	return &Collector{sampleWindow: sampleWindow}
}

// Collect takes one snapshot of the host. Individual probes that fail leave
// their fields zero; only cancellation of ctx is reported as an error.
func (c *Collector) Collect(ctx context.Context) (*SystemStats, error) {
	stats := &SystemStats{
		CollectedAt: time.Now().Unix(),
	}

	cpuPercent, err := cpu.PercentWithContext(ctx, c.sampleWindow, false)
	if err == nil && len(cpuPercent) > 0 {
		stats.CPUUsage = cpuPercent[0]
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		stats.RAMUsage = memInfo.UsedPercent
		stats.RAMTotal = memInfo.Total
		stats.RAMUsed = memInfo.Used
	}

	hostInfo, err := host.InfoWithContext(ctx)
	if err == nil {
		stats.Uptime = hostInfo.Uptime
		stats.Hostname = hostInfo.Hostname
		stats.OS = hostInfo.OS
		stats.Platform = hostInfo.Platform
	}

	// totals since boot
	netIO, err := net.IOCountersWithContext(ctx, false)
	if err == nil && len(netIO) > 0 {
		stats.NetworkRx = netIO[0].BytesRecv
		stats.NetworkTx = netIO[0].BytesSent
	}

	return stats, nil
}
