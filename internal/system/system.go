// Package system inspects the VE host before and during provisioning:
// available memory, disk headroom on the container storage, CPU load, and
// kernel details.
package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
)

// HostInfo is the host snapshot served by the system endpoint and used
// for install preflight.
type HostInfo struct {
	Hostname        string    `json:"hostname"`
	Kernel          string    `json:"kernel"`
	Platform        string    `json:"platform"`
	Uptime          int64     `json:"uptime"`
	CPUCores        int       `json:"cpu_cores"`
	LoadAvg         []float64 `json:"load_avg"`
	MemoryTotal     uint64    `json:"memory_total"`
	MemoryAvailable uint64    `json:"memory_available"`
	DiskTotal       uint64    `json:"disk_total"`
	DiskFree        uint64    `json:"disk_free"`
}

// PreflightWarning names a host condition that makes an install risky but
// does not block it.
type PreflightWarning struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

// Inspector collects host state. dataDir is the mount the containers live
// under.
type Inspector struct {
	dataDir string
}

func NewInspector(dataDir string) *Inspector {
	if dataDir == "" {
		dataDir = "/"
	}
	return &Inspector{dataDir: dataDir}
}

// Info returns the current host snapshot. Individual probe failures leave
// their fields zero rather than failing the whole snapshot.
func (i *Inspector) Info(ctx context.Context) (*HostInfo, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	info := &HostInfo{}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
		info.Kernel = hi.KernelVersion
		info.Platform = fmt.Sprintf("%s %s", hi.Platform, hi.PlatformVersion)
		info.Uptime = int64(hi.Uptime)
	}
	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCores = cores
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		info.LoadAvg = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryAvailable = vm.Available
	}
	if usage, err := disk.UsageWithContext(ctx, i.dataDir); err == nil {
		info.DiskTotal = usage.Total
		info.DiskFree = usage.Free
	}

	return info, nil
}

// Preflight headroom thresholds.
const (
	minFreeMemory = 256 << 20  // 256 MiB
	minFreeDisk   = 1024 << 20 // 1 GiB
)

// Preflight checks the host has headroom for a container install and
// returns the warnings found.
func (i *Inspector) Preflight(ctx context.Context) ([]PreflightWarning, error) {
	info, err := i.Info(ctx)
	if err != nil {
		return nil, err
	}

	var warnings []PreflightWarning
	if info.MemoryTotal > 0 && info.MemoryAvailable < minFreeMemory {
		warnings = append(warnings, PreflightWarning{
			Check:   "memory",
			Message: fmt.Sprintf("only %d MiB of memory available", info.MemoryAvailable>>20),
		})
	}
	if info.DiskTotal > 0 && info.DiskFree < minFreeDisk {
		warnings = append(warnings, PreflightWarning{
			Check:   "disk",
			Message: fmt.Sprintf("only %d MiB free on %s", info.DiskFree>>20, i.dataDir),
		})
	}
	if info.CPUCores > 0 && len(info.LoadAvg) > 0 && info.LoadAvg[0] > float64(info.CPUCores)*2 {
		warnings = append(warnings, PreflightWarning{
			Check:   "load",
			Message: fmt.Sprintf("load average %.1f on %d cores", info.LoadAvg[0], info.CPUCores),
		})
	}
	return warnings, nil
}

// CheckCapacity rejects resource requests the host cannot satisfy. Probes
// that fail leave their totals zero and skip the corresponding check.
func (i *Inspector) CheckCapacity(ctx context.Context, memoryMB, diskGB int64) error {
	info, err := i.Info(ctx)
	if err != nil {
		return err
	}

	// Compare in request units so oversized requests cannot overflow.
	if memoryMB > 0 && info.MemoryTotal > 0 {
		if uint64(memoryMB) > info.MemoryTotal>>20 {
			return apperr.Validation("requested %d MiB of memory, host has %d MiB",
				memoryMB, info.MemoryTotal>>20)
		}
	}
	if diskGB > 0 && info.DiskTotal > 0 {
		if uint64(diskGB) > info.DiskTotal>>30 {
			return apperr.Validation("requested %d GiB of disk, %s has %d GiB",
				diskGB, i.dataDir, info.DiskTotal>>30)
		}
	}
	return nil
}
