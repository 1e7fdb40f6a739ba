// Package sysinfo probes the host for the facts the tuning rules need:
// memory, logical CPUs, the storage medium, the OS family and the
// installed PostgreSQL major version.
//
// A fact that cannot be probed is left unset rather than failing the
// whole snapshot; the tuning engine omits whatever depends on it.
package sysinfo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/koustreak/autopg/internal/errs"
	"github.com/koustreak/autopg/internal/tune"
)

const sysBlockPath = "/sys/block"

var (
	virtualMemory     = mem.VirtualMemoryWithContext
	countsWithContext = cpu.CountsWithContext
	infoWithContext   = cpu.InfoWithContext
	partitions        = disk.PartitionsWithContext
	hostInfo          = host.InfoWithContext
	readRotational    = readRotationalFile
	runCommand        = execOutput
)

// MemoryInfo is physical memory in bytes.
type MemoryInfo struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// CPUInfo is the logical CPU count and the average reported frequency.
type CPUInfo struct {
	LogicalCount   int
	CurrentFreqMHz float64 // 0 when unknown
}

// Snapshot is the set of probed facts. Unknown facts are nil or zero and
// the reason is recorded in Problems.
type Snapshot struct {
	Memory          *MemoryInfo
	CPU             *CPUInfo
	DiskType        tune.DiskType // empty when unknown
	OS              tune.OSType
	Platform        string
	PostgresVersion int // 0 when unknown
	Problems        []error
}

// Collect probes every fact.
func Collect(ctx context.Context) *Snapshot {
	s := &Snapshot{}

	if m, err := Memory(ctx); err != nil {
		s.Problems = append(s.Problems, err)
	} else {
		s.Memory = &m
	}

	if c, err := CPU(ctx); err != nil {
		s.Problems = append(s.Problems, err)
	} else {
		s.CPU = &c
	}

	if d, ok := DetectDiskType(ctx); ok {
		s.DiskType = d
	}

	s.OS, s.Platform = DetectOS(ctx)

	if v, err := PostgresVersion(ctx); err != nil {
		s.Problems = append(s.Problems, err)
	} else {
		s.PostgresVersion = v
	}
	return s
}

// Memory returns total and available physical memory.
func Memory(ctx context.Context) (MemoryInfo, error) {
	vm, err := virtualMemory(ctx)
	if err != nil {
		return MemoryInfo{}, errs.Wrap(errs.ErrKindProbeFailed, "read memory stats", err)
	}
	return MemoryInfo{TotalBytes: vm.Total, AvailableBytes: vm.Available}, nil
}

// CPU returns the logical CPU count and average frequency. A missing
// frequency is not an error.
func CPU(ctx context.Context) (CPUInfo, error) {
	n, err := countsWithContext(ctx, true)
	if err != nil {
		return CPUInfo{}, errs.Wrap(errs.ErrKindProbeFailed, "count logical cpus", err)
	}
	if n <= 0 {
		return CPUInfo{}, errs.New(errs.ErrKindProbeFailed, "no logical cpus reported")
	}

	info := CPUInfo{LogicalCount: n}
	if stats, err := infoWithContext(ctx); err == nil {
		var sum float64
		var count int
		for _, st := range stats {
			if st.Mhz > 0 {
				sum += st.Mhz
				count++
			}
		}
		if count > 0 {
			info.CurrentFreqMHz = sum / float64(count)
		}
	}
	return info, nil
}

// DetectDiskType reports whether the first physical partition's block
// device is rotational. Only Linux exposes this.
func DetectDiskType(ctx context.Context) (tune.DiskType, bool) {
	parts, err := partitions(ctx, false)
	if err != nil {
		return "", false
	}

	for _, p := range parts {
		if !strings.HasPrefix(p.Device, "/dev/") {
			continue
		}
		rotational, ok := readRotational(BlockDevice(p.Device))
		if !ok {
			continue
		}
		if rotational {
			return tune.DiskHDD, true
		}
		return tune.DiskSSD, true
	}
	return "", false
}

var (
	partitionSuffix = regexp.MustCompile(`^(nvme\d+n\d+|mmcblk\d+)p\d+$`)
	trailingDigits  = regexp.MustCompile(`^([a-z]+)\d+$`)
)

// BlockDevice maps a partition device path to its parent block device
// name: /dev/sda1 -> sda, /dev/nvme0n1p2 -> nvme0n1.
func BlockDevice(device string) string {
	name := filepath.Base(device)
	if m := partitionSuffix.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	if m := trailingDigits.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

func readRotationalFile(dev string) (rotational bool, ok bool) {
	data, err := os.ReadFile(filepath.Join(sysBlockPath, dev, "queue", "rotational"))
	if err != nil {
		return false, false
	}
	switch strings.TrimSpace(string(data)) {
	case "1":
		return true, true
	case "0":
		return false, true
	}
	return false, false
}

// DetectOS returns the OS family and a platform description.
func DetectOS(ctx context.Context) (tune.OSType, string) {
	name := runtime.GOOS
	platform := ""
	if hi, err := hostInfo(ctx); err == nil && hi != nil {
		if hi.OS != "" {
			name = hi.OS
		}
		platform = strings.TrimSpace(hi.Platform + " " + hi.PlatformVersion)
	}

	osType, err := tune.ParseOSType(name)
	if err != nil {
		// other unixes behave like linux as far as tuning goes
		return tune.OSLinux, platform
	}
	return osType, platform
}

// PostgresVersion runs `postgres --version`, falling back to
// `pg_config --version`, and returns the major version.
func PostgresVersion(ctx context.Context) (int, error) {
	var lastErr error
	for _, bin := range []string{"postgres", "pg_config"} {
		out, err := runCommand(ctx, bin, "--version")
		if err != nil {
			lastErr = err
			continue
		}
		return ParseVersion(string(out))
	}

	if errors.Is(lastErr, exec.ErrNotFound) {
		return 0, errs.Wrap(errs.ErrKindNotFound, "postgres binary not found", lastErr)
	}
	return 0, errs.Wrap(errs.ErrKindProbeFailed, "run postgres --version", lastErr)
}

var versionPattern = regexp.MustCompile(`(\d+)\.?\d*`)

// ParseVersion extracts the major version from version output such as
// "postgres (PostgreSQL) 16.3 (Homebrew)".
func ParseVersion(s string) (int, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, errs.Newf(errs.ErrKindParseFailed, "no version number in %q", strings.TrimSpace(s))
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindParseFailed, "parse version "+m[1], err)
	}
	return v, nil
}

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
