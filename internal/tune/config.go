package tune

import (
	"fmt"
	"math"

	"github.com/koustreak/autopg/internal/errs"
)

// DefaultDBVersion is the PostgreSQL major version assumed when none is
// detected or configured.
const DefaultDBVersion = 17

// Configuration holds the coarse system facts the tuning rules are
// derived from.
type Configuration struct {
	// DBVersion is the PostgreSQL major version (9.6, 10, ..., 17).
	DBVersion float64

	OSType OSType
	DBType DBType

	// TotalMemory is the RAM available to PostgreSQL, in TotalMemoryUnit.
	// Nil means unknown: every memory-derived setting is omitted.
	TotalMemory     *int64
	TotalMemoryUnit SizeUnit

	// CPUNum is the logical CPU count. Nil or fewer than 4 disables the
	// parallel query settings.
	CPUNum *int

	// ConnectionNum overrides the workload's max_connections when set.
	ConnectionNum *int

	HDType DiskType

	// EnablePgStatStatements adds the pg_stat_statements preload settings.
	EnablePgStatStatements bool
}

// DefaultConfiguration returns a web workload on Linux with SSD storage,
// unknown memory and CPU, and pg_stat_statements enabled.
func DefaultConfiguration() Configuration {
	return Configuration{
		DBVersion:              DefaultDBVersion,
		OSType:                 OSLinux,
		DBType:                 DBTypeWeb,
		TotalMemoryUnit:        UnitGB,
		HDType:                 DiskSSD,
		EnablePgStatStatements: true,
	}
}

// Validate reports the first invalid field.
func (c Configuration) Validate() error {
	switch {
	case c.DBVersion <= 0:
		return errs.Newf(errs.ErrKindInvalidInput, "db version must be positive, got %v", c.DBVersion)
	case !c.OSType.Valid():
		return errs.Newf(errs.ErrKindInvalidInput, "unknown os type %q", c.OSType)
	case !c.DBType.Valid():
		return errs.Newf(errs.ErrKindInvalidInput, "unknown db type %q", c.DBType)
	case !c.HDType.Valid():
		return errs.Newf(errs.ErrKindInvalidInput, "unknown disk type %q", c.HDType)
	}

	if c.TotalMemory != nil {
		if !c.TotalMemoryUnit.Valid() {
			return errs.Newf(errs.ErrKindInvalidInput, "unknown memory unit %q", c.TotalMemoryUnit)
		}
		if *c.TotalMemory <= 0 {
			return errs.Newf(errs.ErrKindInvalidInput, "total memory must be positive, got %d", *c.TotalMemory)
		}
		if *c.TotalMemory > math.MaxInt64/c.TotalMemoryUnit.Bytes() {
			return errs.Newf(errs.ErrKindInvalidInput, "total memory %d%s is out of range", *c.TotalMemory, c.TotalMemoryUnit)
		}
	}
	if c.CPUNum != nil && *c.CPUNum <= 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "cpu count must be positive, got %d", *c.CPUNum)
	}
	if c.ConnectionNum != nil && *c.ConnectionNum <= 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "connection count must be positive, got %d", *c.ConnectionNum)
	}
	return nil
}

// String renders the configuration for logs.
func (c Configuration) String() string {
	mem := "unknown"
	if c.TotalMemory != nil {
		mem = fmt.Sprintf("%d%s", *c.TotalMemory, c.TotalMemoryUnit)
	}
	cpu := "unknown"
	if c.CPUNum != nil {
		cpu = fmt.Sprint(*c.CPUNum)
	}
	return fmt.Sprintf("version=%v os=%s db_type=%s memory=%s cpus=%s disk=%s",
		c.DBVersion, c.OSType, c.DBType, mem, cpu, c.HDType)
}

// Int64 returns a pointer to v, for filling optional Configuration fields.
func Int64(v int64) *int64 { return &v }

// Int returns a pointer to v, for filling optional Configuration fields.
func Int(v int) *int { return &v }
