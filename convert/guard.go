package convert

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Guard checks whether the host has room to start more conversions. The
// scheduler consults it before claiming work and defers a tick when it
// reports pressure. Non-positive thresholds disable the corresponding check,
// so the zero Guard never defers anything.
type Guard struct {
	// MaxCPUPercent defers claims while system CPU usage is above this.
	MaxCPUPercent float64
	// MinFreeMemory defers claims while available memory is below this.
	MinFreeMemory int64
	// MinFreeDisk defers claims while free space under Path is below this.
	MinFreeDisk int64
	// Path is the filesystem checked for free space. Defaults to the
	// working directory.
	Path string
}

// Check returns a non-nil error when any configured threshold is exceeded.
// Probe failures are logged and skipped rather than treated as pressure.
func (g *Guard) Check() error {
	if g.MaxCPUPercent > 0 {
		// Non-blocking: usage since the previous call.
		p, err := cpu.Percent(0, false)
		if err != nil {
			log.Warn().Err(err).Msg("could not read CPU usage")
		} else if len(p) > 0 && p[0] > g.MaxCPUPercent {
			return fmt.Errorf("CPU usage %.1f%% above %.1f%%", p[0], g.MaxCPUPercent)
		}
	}

	if g.MinFreeMemory > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			log.Warn().Err(err).Msg("could not read memory usage")
		} else if vm.Available < uint64(g.MinFreeMemory) {
			return fmt.Errorf("free memory %d below %d", vm.Available, g.MinFreeMemory)
		}
	}

	if g.MinFreeDisk > 0 {
		path := g.Path
		if path == "" {
			if wd, err := os.Getwd(); err == nil {
				path = wd
			} else {
				path = "/"
			}
		}
		d, err := disk.Usage(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("could not read disk usage")
		} else if d.Free < uint64(g.MinFreeDisk) {
			return fmt.Errorf("free disk %d below %d", d.Free, g.MinFreeDisk)
		}
	}
	return nil
}
