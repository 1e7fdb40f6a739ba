package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/autopg/internal/errs"
	"github.com/koustreak/autopg/internal/tune"
)

// stub replaces a package-level probe for the duration of the test.
func stub[T any](t *testing.T, target *T, fn T) {
	t.Helper()
	orig := *target
	*target = fn
	t.Cleanup(func() { *target = orig })
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"postgres (PostgreSQL) 16.3 (Homebrew)", 16},
		{"postgres (PostgreSQL) 16.6 (Debian 16.6-1.pgdg120+1)", 16},
		{"PostgreSQL 17.2", 17},
		{"postgres (PostgreSQL) 9.6.24", 9},
		{"10", 10},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseVersion("postgres (PostgreSQL)")
	assert.True(t, errs.IsParseFailed(err))
}

func TestBlockDevice(t *testing.T) {
	tests := map[string]string{
		"/dev/sda1":      "sda",
		"/dev/sdb":       "sdb",
		"/dev/vda15":     "vda",
		"/dev/nvme0n1p2": "nvme0n1",
		"/dev/mmcblk0p1": "mmcblk0",
		"/dev/dm-0":      "dm-0",
	}

	for in, want := range tests {
		assert.Equal(t, want, BlockDevice(in), in)
	}
}

func TestDetectDiskType(t *testing.T) {
	stub(t, &partitions, func(context.Context, bool) ([]disk.PartitionStat, error) {
		return []disk.PartitionStat{
			{Device: "overlay", Mountpoint: "/"},
			{Device: "/dev/sdb1", Mountpoint: "/data"},
			{Device: "/dev/sda1", Mountpoint: "/boot"},
		}, nil
	})

	rotational := map[string]bool{"sda": true}
	stub(t, &readRotational, func(dev string) (bool, bool) {
		if dev == "sdb" {
			return false, false
		}
		return rotational[dev], true
	})

	got, ok := DetectDiskType(context.Background())
	require.True(t, ok)
	assert.Equal(t, tune.DiskHDD, got)

	rotational["sda"] = false
	got, ok = DetectDiskType(context.Background())
	require.True(t, ok)
	assert.Equal(t, tune.DiskSSD, got)
}

func TestDetectDiskType_Unavailable(t *testing.T) {
	stub(t, &partitions, func(context.Context, bool) ([]disk.PartitionStat, error) {
		return nil, errors.New("not supported")
	})

	_, ok := DetectDiskType(context.Background())
	assert.False(t, ok)
}

func TestCPU(t *testing.T) {
	stub(t, &countsWithContext, func(context.Context, bool) (int, error) { return 8, nil })
	stub(t, &infoWithContext, func(context.Context) ([]cpu.InfoStat, error) {
		return []cpu.InfoStat{{Mhz: 2000}, {Mhz: 3000}, {Mhz: 0}}, nil
	})

	got, err := CPU(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CPUInfo{LogicalCount: 8, CurrentFreqMHz: 2500}, got)

	stub(t, &countsWithContext, func(context.Context, bool) (int, error) { return 0, fmt.Errorf("boom") })
	_, err = CPU(context.Background())
	assert.True(t, errs.IsProbeFailed(err))
}

func TestDetectOS(t *testing.T) {
	stub(t, &hostInfo, func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{OS: "darwin", Platform: "darwin", PlatformVersion: "14.5"}, nil
	})

	osType, platform := DetectOS(context.Background())
	assert.Equal(t, tune.OSMac, osType)
	assert.Equal(t, "darwin 14.5", platform)

	stub(t, &hostInfo, func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{OS: "freebsd"}, nil
	})
	osType, _ = DetectOS(context.Background())
	assert.Equal(t, tune.OSLinux, osType)
}

func TestPostgresVersion(t *testing.T) {
	var calls []string
	stub(t, &runCommand, func(_ context.Context, name string, _ ...string) ([]byte, error) {
		calls = append(calls, name)
		if name == "postgres" {
			return nil, &exec.Error{Name: name, Err: exec.ErrNotFound}
		}
		return []byte("PostgreSQL 15.4\n"), nil
	})

	v, err := PostgresVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, v)
	assert.Equal(t, []string{"postgres", "pg_config"}, calls)
}

func TestPostgresVersion_NotInstalled(t *testing.T) {
	stub(t, &runCommand, func(_ context.Context, name string, _ ...string) ([]byte, error) {
		return nil, &exec.Error{Name: name, Err: exec.ErrNotFound}
	})

	_, err := PostgresVersion(context.Background())
	assert.True(t, errs.IsNotFound(err))
}

func TestCollect(t *testing.T) {
	stub(t, &virtualMemory, func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 16 << 30, Available: 8 << 30}, nil
	})
	stub(t, &countsWithContext, func(context.Context, bool) (int, error) { return 4, nil })
	stub(t, &infoWithContext, func(context.Context) ([]cpu.InfoStat, error) { return nil, errors.New("no info") })
	stub(t, &partitions, func(context.Context, bool) ([]disk.PartitionStat, error) { return nil, nil })
	stub(t, &hostInfo, func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{OS: "linux", Platform: "debian", PlatformVersion: "12"}, nil
	})
	stub(t, &runCommand, func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})

	s := Collect(context.Background())

	require.NotNil(t, s.Memory)
	assert.Equal(t, uint64(16<<30), s.Memory.TotalBytes)
	require.NotNil(t, s.CPU)
	assert.Equal(t, 4, s.CPU.LogicalCount)
	assert.Empty(t, s.DiskType)
	assert.Equal(t, tune.OSLinux, s.OS)
	assert.Equal(t, "debian 12", s.Platform)
	assert.Zero(t, s.PostgresVersion)
	require.Len(t, s.Problems, 1)
	assert.True(t, errs.IsProbeFailed(s.Problems[0]))
}
