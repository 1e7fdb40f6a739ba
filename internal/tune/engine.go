// Package tune derives PostgreSQL settings from coarse system facts.
//
// The rules follow the pgtune heuristics: a workload category selects the
// coefficient set, memory facts size the buffers, CPU count sizes the
// parallel workers, and the storage medium sets the planner's I/O costs.
// Every rule is a pure function of an immutable Configuration; facts that
// are unknown make the dependent settings absent rather than failing.
//
// Usage:
//
//	cfg := tune.DefaultConfiguration()
//	cfg.TotalMemory = tune.Int64(16)
//	cfg.CPUNum = tune.Int(8)
//
//	eng, err := tune.New(cfg)
//	if err != nil {
//	    return err
//	}
//	settings := eng.Recommend()
package tune

import "math"

// Sizes in kilobytes.
const (
	kb1MB   = 1024
	kb14MB  = 14 * kb1MB
	kb16MB  = 16 * kb1MB
	kb512MB = 512 * kb1MB
	kb2GB   = 2048 * kb1MB
	kb32GB  = 32 * 1024 * kb1MB
)

// Memory bounds, in bytes, outside of which the heuristics are unreliable.
const (
	lowMemoryBytes  = 256 << 20
	highMemoryBytes = 100 << 30
)

// Setting keys produced by the engine.
const (
	KeyMaxConnections               = "max_connections"
	KeySharedBuffers                = "shared_buffers"
	KeyEffectiveCacheSize           = "effective_cache_size"
	KeyMaintenanceWorkMem           = "maintenance_work_mem"
	KeyCheckpointCompletionTarget   = "checkpoint_completion_target"
	KeyWALBuffers                   = "wal_buffers"
	KeyDefaultStatisticsTarget      = "default_statistics_target"
	KeyRandomPageCost               = "random_page_cost"
	KeyEffectiveIOConcurrency       = "effective_io_concurrency"
	KeyWorkMem                      = "work_mem"
	KeyHugePages                    = "huge_pages"
	KeyMinWALSize                   = "min_wal_size"
	KeyMaxWALSize                   = "max_wal_size"
	KeyMaxWorkerProcesses           = "max_worker_processes"
	KeyMaxParallelWorkersPerGather  = "max_parallel_workers_per_gather"
	KeyMaxParallelWorkers           = "max_parallel_workers"
	KeyMaxParallelMaintenanceWorker = "max_parallel_maintenance_workers"
	KeyWALLevel                     = "wal_level"
	KeyMaxWALSenders                = "max_wal_senders"
	KeySharedPreloadLibraries       = "shared_preload_libraries"
	KeyPgStatStatementsTrack        = "pg_stat_statements.track"
	KeyPgStatStatementsMax          = "pg_stat_statements.max"
)

// PgStatStatementsInitSQL creates the pg_stat_statements extension. It is
// meant for the container's init scripts directory.
const PgStatStatementsInitSQL = `-- autopg extension initialization
-- Enable pg_stat_statements extension for query statistics

CREATE EXTENSION IF NOT EXISTS pg_stat_statements;
`

// Engine computes settings for one Configuration. It keeps a private copy
// of the facts and has no mutators, so every method is a pure function.
type Engine struct {
	version  float64
	os       OSType
	dbType   DBType
	disk     DiskType
	statStmt bool

	memBytes int64
	hasMem   bool
	cpus     int
	hasCPU   bool
	conns    int
	hasConns bool
}

// New validates cfg and returns an Engine bound to a copy of it.
func New(cfg Configuration) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		version:  cfg.DBVersion,
		os:       cfg.OSType,
		dbType:   cfg.DBType,
		disk:     cfg.HDType,
		statStmt: cfg.EnablePgStatStatements,
	}
	if cfg.TotalMemory != nil {
		e.memBytes = *cfg.TotalMemory * cfg.TotalMemoryUnit.Bytes()
		e.hasMem = true
	}
	if cfg.CPUNum != nil {
		e.cpus = *cfg.CPUNum
		e.hasCPU = true
	}
	if cfg.ConnectionNum != nil {
		e.conns = *cfg.ConnectionNum
		e.hasConns = true
	}
	return e, nil
}

// TotalMemoryBytes returns the configured memory in bytes.
func (e *Engine) TotalMemoryBytes() (int64, bool) {
	return e.memBytes, e.hasMem
}

// TotalMemoryKB returns the configured memory in kilobytes.
func (e *Engine) TotalMemoryKB() (int64, bool) {
	return e.memBytes / 1024, e.hasMem
}

// MaxConnections returns the explicit connection count when one was
// configured, otherwise the workload default.
func (e *Engine) MaxConnections() int64 {
	if e.hasConns {
		return int64(e.conns)
	}
	switch e.dbType {
	case DBTypeOLTP:
		return 300
	case DBTypeDW:
		return 40
	case DBTypeDesktop:
		return 20
	case DBTypeMixed:
		return 100
	default:
		return 200
	}
}

// HugePages is "try" from 32GB of memory upwards, "off" otherwise.
func (e *Engine) HugePages() string {
	memKB, ok := e.TotalMemoryKB()
	if ok && memKB >= kb32GB {
		return "try"
	}
	return "off"
}

// SharedBuffers returns a quarter of memory (a sixteenth on desktops).
// Windows before version 10 cannot use more than 512MB.
func (e *Engine) SharedBuffers() (int64, bool) {
	memKB, ok := e.TotalMemoryKB()
	if !ok {
		return 0, false
	}

	v := memKB / 4
	if e.dbType == DBTypeDesktop {
		v = memKB / 16
	}
	if e.version < 10 && e.os == OSWindows && v > kb512MB {
		v = kb512MB
	}
	return v, true
}

func (e *Engine) EffectiveCacheSize() (int64, bool) {
	memKB, ok := e.TotalMemoryKB()
	if !ok {
		return 0, false
	}
	if e.dbType == DBTypeDesktop {
		return memKB / 4, true
	}
	return memKB * 3 / 4, true
}

// MaintenanceWorkMem is capped at 2GB. Windows rejects exactly 2GB, so the
// cap drops by 1MB there.
func (e *Engine) MaintenanceWorkMem() (int64, bool) {
	memKB, ok := e.TotalMemoryKB()
	if !ok {
		return 0, false
	}

	v := memKB / 16
	if e.dbType == DBTypeDW {
		v = memKB / 8
	}
	if v >= kb2GB {
		v = kb2GB
		if e.os == OSWindows {
			v -= kb1MB
		}
	}
	return v, true
}

// CheckpointSegments returns min_wal_size and max_wal_size in kilobytes.
func (e *Engine) CheckpointSegments() Settings {
	var minMB, maxMB int64
	switch e.dbType {
	case DBTypeOLTP:
		minMB, maxMB = 2048, 8192
	case DBTypeDW:
		minMB, maxMB = 4096, 16384
	case DBTypeDesktop:
		minMB, maxMB = 100, 2048
	default:
		minMB, maxMB = 1024, 4096
	}
	return Settings{
		KeyMinWALSize: minMB * kb1MB,
		KeyMaxWALSize: maxMB * kb1MB,
	}
}

func (e *Engine) CheckpointCompletionTarget() float64 {
	return 0.9
}

// WALBuffers is 3% of shared_buffers between 32kB and 16MB. Values just
// under 16MB are rounded up to it.
func (e *Engine) WALBuffers() (int64, bool) {
	sb, ok := e.SharedBuffers()
	if !ok {
		return 0, false
	}

	v := 3 * sb / 100
	if v > kb16MB {
		v = kb16MB
	}
	if v > kb14MB && v < kb16MB {
		v = kb16MB
	}
	if v < 32 {
		v = 32
	}
	return v, true
}

func (e *Engine) DefaultStatisticsTarget() int64 {
	if e.dbType == DBTypeDW {
		return 500
	}
	return 100
}

func (e *Engine) RandomPageCost() float64 {
	if e.disk == DiskHDD {
		return 4.0
	}
	return 1.1
}

// EffectiveIOConcurrency only applies on Linux, where posix_fadvise exists.
func (e *Engine) EffectiveIOConcurrency() (int64, bool) {
	if e.os != OSLinux {
		return 0, false
	}
	switch e.disk {
	case DiskHDD:
		return 2, true
	case DiskSAN:
		return 300, true
	default:
		return 200, true
	}
}

// ParallelSettings is empty below 4 CPUs. Gather workers are capped at 4
// except for data warehouses.
func (e *Engine) ParallelSettings() Settings {
	out := Settings{}
	if !e.hasCPU || e.cpus < 4 {
		return out
	}

	half := int64(math.Ceil(float64(e.cpus) / 2))
	perGather := half
	if e.dbType != DBTypeDW && perGather > 4 {
		perGather = 4
	}

	out[KeyMaxWorkerProcesses] = int64(e.cpus)
	out[KeyMaxParallelWorkersPerGather] = perGather
	if e.version >= 10 {
		out[KeyMaxParallelWorkers] = int64(e.cpus)
	}
	if e.version >= 11 {
		out[KeyMaxParallelMaintenanceWorker] = min(half, 4)
	}
	return out
}

// WorkMem splits the memory left after shared_buffers across three
// sort/hash operations per connection and per gather worker, scaled down
// for analytic and desktop workloads, with a 64kB floor.
func (e *Engine) WorkMem() (int64, bool) {
	memKB, ok := e.TotalMemoryKB()
	if !ok {
		return 0, false
	}
	sb, ok := e.SharedBuffers()
	if !ok {
		return 0, false
	}

	workers := int64(1)
	if v, ok := e.ParallelSettings()[KeyMaxParallelWorkersPerGather].(int64); ok && v > 0 {
		workers = v
	}

	v := (memKB - sb) / (e.MaxConnections() * 3) / workers
	switch e.dbType {
	case DBTypeDW, DBTypeMixed:
		v /= 2
	case DBTypeDesktop:
		v /= 6
	}
	if v < 64 {
		v = 64
	}
	return v, true
}

// WALLevel turns off replication support on desktops.
func (e *Engine) WALLevel() Settings {
	if e.dbType != DBTypeDesktop {
		return Settings{}
	}
	return Settings{
		KeyWALLevel:      "minimal",
		KeyMaxWALSenders: "0",
	}
}

func (e *Engine) PgStatStatements() Settings {
	if !e.statStmt {
		return Settings{}
	}
	return Settings{
		KeySharedPreloadLibraries: "pg_stat_statements",
		KeyPgStatStatementsTrack:  "all",
		KeyPgStatStatementsMax:    int64(10000),
	}
}

// Warnings flags memory sizes the heuristics were not designed for.
func (e *Engine) Warnings() []string {
	b, ok := e.TotalMemoryBytes()
	switch {
	case !ok:
		return nil
	case b < lowMemoryBytes:
		return []string{"this tool is not optimal for low memory systems"}
	case b > highMemoryBytes:
		return []string{"this tool is not optimal for very high memory systems"}
	}
	return nil
}

// Recommend assembles every setting that can be derived.
func (e *Engine) Recommend() Settings {
	out := Settings{
		KeyMaxConnections:             e.MaxConnections(),
		KeyHugePages:                  e.HugePages(),
		KeyCheckpointCompletionTarget: e.CheckpointCompletionTarget(),
		KeyDefaultStatisticsTarget:    e.DefaultStatisticsTarget(),
		KeyRandomPageCost:             e.RandomPageCost(),
	}

	optional := []struct {
		key string
		fn  func() (int64, bool)
	}{
		{KeySharedBuffers, e.SharedBuffers},
		{KeyEffectiveCacheSize, e.EffectiveCacheSize},
		{KeyMaintenanceWorkMem, e.MaintenanceWorkMem},
		{KeyWALBuffers, e.WALBuffers},
		{KeyWorkMem, e.WorkMem},
		{KeyEffectiveIOConcurrency, e.EffectiveIOConcurrency},
	}
	for _, o := range optional {
		if v, ok := o.fn(); ok {
			out[o.key] = v
		}
	}

	out.merge(e.CheckpointSegments())
	out.merge(e.ParallelSettings())
	out.merge(e.WALLevel())
	out.merge(e.PgStatStatements())
	return out
}
