package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/autopg/internal/errs"
	"github.com/koustreak/autopg/internal/sysinfo"
	"github.com/koustreak/autopg/internal/tune"
)

func probed() *sysinfo.Snapshot {
	return &sysinfo.Snapshot{
		Memory:          &sysinfo.MemoryInfo{TotalBytes: 16 << 30},
		CPU:             &sysinfo.CPUInfo{LogicalCount: 8},
		DiskType:        tune.DiskHDD,
		OS:              tune.OSLinux,
		PostgresVersion: 16,
	}
}

func TestResolve_ProbedFacts(t *testing.T) {
	cfg, err := Resolve(NewViper(), probed())
	require.NoError(t, err)

	assert.Equal(t, float64(16), cfg.DBVersion)
	assert.Equal(t, tune.DBTypeWeb, cfg.DBType)
	assert.Equal(t, tune.OSLinux, cfg.OSType)
	require.NotNil(t, cfg.TotalMemory)
	assert.Equal(t, int64(16384), *cfg.TotalMemory)
	assert.Equal(t, tune.UnitMB, cfg.TotalMemoryUnit)
	require.NotNil(t, cfg.CPUNum)
	assert.Equal(t, 8, *cfg.CPUNum)
	assert.Nil(t, cfg.ConnectionNum)
	assert.Equal(t, tune.DiskHDD, cfg.HDType)
	assert.True(t, cfg.EnablePgStatStatements)
}

func TestResolve_NoSnapshot(t *testing.T) {
	cfg, err := Resolve(NewViper(), nil)
	require.NoError(t, err)

	assert.Equal(t, tune.DefaultConfiguration(), cfg)
}

func TestResolve_Overrides(t *testing.T) {
	t.Setenv("AUTOPG_DB_TYPE", "OLTP")
	t.Setenv("AUTOPG_DB_VERSION", "13")
	t.Setenv("AUTOPG_OS_TYPE", "windows")
	t.Setenv("AUTOPG_TOTAL_MEMORY_MB", "4096")
	t.Setenv("AUTOPG_CPU_COUNT", "2")
	t.Setenv("AUTOPG_NUM_CONNECTIONS", "45")
	t.Setenv("AUTOPG_PRIMARY_DISK_TYPE", "san")
	t.Setenv("AUTOPG_ENABLE_PG_STAT_STATEMENTS", "false")

	cfg, err := Resolve(NewViper(), probed())
	require.NoError(t, err)

	assert.Equal(t, tune.DBTypeOLTP, cfg.DBType)
	assert.Equal(t, float64(13), cfg.DBVersion)
	assert.Equal(t, tune.OSWindows, cfg.OSType)
	assert.Equal(t, int64(4096), *cfg.TotalMemory)
	assert.Equal(t, 2, *cfg.CPUNum)
	assert.Equal(t, 45, *cfg.ConnectionNum)
	assert.Equal(t, tune.DiskSAN, cfg.HDType)
	assert.False(t, cfg.EnablePgStatStatements)
}

func TestResolve_EmptyOverrideIgnored(t *testing.T) {
	t.Setenv("AUTOPG_CPU_COUNT", "")

	cfg, err := Resolve(NewViper(), probed())
	require.NoError(t, err)
	assert.Equal(t, 8, *cfg.CPUNum)
}

func TestResolve_InvalidOverrides(t *testing.T) {
	tests := []struct {
		env, value string
	}{
		{"AUTOPG_DB_TYPE", "analytics"},
		{"AUTOPG_OS_TYPE", "plan9"},
		{"AUTOPG_DB_VERSION", "latest"},
		{"AUTOPG_TOTAL_MEMORY_MB", "lots"},
		{"AUTOPG_TOTAL_MEMORY_MB", "-5"},
		{"AUTOPG_CPU_COUNT", "eight"},
		{"AUTOPG_NUM_CONNECTIONS", "0"},
		{"AUTOPG_PRIMARY_DISK_TYPE", "tape"},
		{"AUTOPG_ENABLE_PG_STAT_STATEMENTS", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			_, err := Resolve(NewViper(), probed())
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "AUTOPG_NUM_CONNECTIONS", EnvName(KeyNumConnections))
}
