// Package config turns probed system facts and AUTOPG_* environment
// overrides into the tuning engine's input.
//
// Every override beats the probed value when it is set and non-empty:
//
//	AUTOPG_DB_TYPE                    web | oltp | dw | desktop | mixed
//	AUTOPG_DB_VERSION                 PostgreSQL major version
//	AUTOPG_OS_TYPE                    linux | windows | mac
//	AUTOPG_TOTAL_MEMORY_MB            memory available to PostgreSQL
//	AUTOPG_CPU_COUNT                  logical CPUs
//	AUTOPG_NUM_CONNECTIONS            max_connections
//	AUTOPG_PRIMARY_DISK_TYPE          ssd | san | hdd
//	AUTOPG_ENABLE_PG_STAT_STATEMENTS  true | false
package config

import (
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/koustreak/autopg/internal/errs"
	"github.com/koustreak/autopg/internal/sysinfo"
	"github.com/koustreak/autopg/internal/tune"
)

// EnvPrefix prefixes every override variable.
const EnvPrefix = "AUTOPG"

// Override keys, as seen by viper (AUTOPG_ + upper case in the environment).
const (
	KeyDBType                 = "db_type"
	KeyDBVersion              = "db_version"
	KeyOSType                 = "os_type"
	KeyTotalMemoryMB          = "total_memory_mb"
	KeyCPUCount               = "cpu_count"
	KeyNumConnections         = "num_connections"
	KeyPrimaryDiskType        = "primary_disk_type"
	KeyEnablePgStatStatements = "enable_pg_stat_statements"
)

// NewViper returns a viper instance bound to the AUTOPG_ environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDBType, string(tune.DBTypeWeb))
	v.SetDefault(KeyEnablePgStatStatements, "true")
	return v
}

// Resolve builds a tune.Configuration from snap with the overrides in v
// applied on top. snap may be nil when probing was skipped.
func Resolve(v *viper.Viper, snap *sysinfo.Snapshot) (tune.Configuration, error) {
	cfg := tune.DefaultConfiguration()
	if snap == nil {
		snap = &sysinfo.Snapshot{}
	}

	if snap.OS.Valid() {
		cfg.OSType = snap.OS
	}
	if snap.PostgresVersion > 0 {
		cfg.DBVersion = float64(snap.PostgresVersion)
	}
	if snap.Memory != nil {
		if mb := int64(snap.Memory.TotalBytes >> 20); mb > 0 {
			cfg.TotalMemory = tune.Int64(mb)
			cfg.TotalMemoryUnit = tune.UnitMB
		}
	}
	if snap.CPU != nil && snap.CPU.LogicalCount > 0 {
		cfg.CPUNum = tune.Int(snap.CPU.LogicalCount)
	}
	if snap.DiskType.Valid() {
		cfg.HDType = snap.DiskType
	}

	dbType, err := tune.ParseDBType(v.GetString(KeyDBType))
	if err != nil {
		return cfg, invalid(KeyDBType, err)
	}
	cfg.DBType = dbType

	if s := lookup(v, KeyOSType); s != "" {
		osType, err := tune.ParseOSType(s)
		if err != nil {
			return cfg, invalid(KeyOSType, err)
		}
		cfg.OSType = osType
	}

	if s := lookup(v, KeyDBVersion); s != "" {
		ver, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return cfg, invalid(KeyDBVersion, err)
		}
		cfg.DBVersion = ver
	}

	if s := lookup(v, KeyTotalMemoryMB); s != "" {
		mb, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return cfg, invalid(KeyTotalMemoryMB, err)
		}
		cfg.TotalMemory = tune.Int64(mb)
		cfg.TotalMemoryUnit = tune.UnitMB
	}

	if s := lookup(v, KeyCPUCount); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return cfg, invalid(KeyCPUCount, err)
		}
		cfg.CPUNum = tune.Int(n)
	}

	if s := lookup(v, KeyNumConnections); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return cfg, invalid(KeyNumConnections, err)
		}
		cfg.ConnectionNum = tune.Int(n)
	}

	if s := lookup(v, KeyPrimaryDiskType); s != "" {
		disk, err := tune.ParseDiskType(s)
		if err != nil {
			return cfg, invalid(KeyPrimaryDiskType, err)
		}
		cfg.HDType = disk
	}

	enabled, err := strconv.ParseBool(v.GetString(KeyEnablePgStatStatements))
	if err != nil {
		return cfg, invalid(KeyEnablePgStatStatements, err)
	}
	cfg.EnablePgStatStatements = enabled

	return cfg, cfg.Validate()
}

// EnvName returns the environment variable for an override key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

func lookup(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func invalid(key string, err error) error {
	return errs.Wrap(errs.ErrKindInvalidInput, "invalid "+EnvName(key), err)
}
