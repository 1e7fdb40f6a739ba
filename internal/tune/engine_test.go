package tune

import (
	"math"
	"testing"

	"github.com/koustreak/autopg/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEngine builds an engine from the defaults after applying mod.
func newEngine(t *testing.T, mod func(*Configuration)) *Engine {
	t.Helper()

	cfg := DefaultConfiguration()
	if mod != nil {
		mod(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func withMemory(amount int64, unit SizeUnit) func(*Configuration) {
	return func(c *Configuration) {
		c.TotalMemory = Int64(amount)
		c.TotalMemoryUnit = unit
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Configuration)
	}{
		{"unknown db type", func(c *Configuration) { c.DBType = "batch" }},
		{"unknown os", func(c *Configuration) { c.OSType = "plan9" }},
		{"unknown disk", func(c *Configuration) { c.HDType = "tape" }},
		{"zero version", func(c *Configuration) { c.DBVersion = 0 }},
		{"negative memory", func(c *Configuration) { c.TotalMemory = Int64(-1) }},
		{"bad unit", func(c *Configuration) { c.TotalMemory = Int64(1); c.TotalMemoryUnit = "PB" }},
		{"memory overflows bytes", withMemory(math.MaxInt64/UnitTB.Bytes()+1, UnitTB)},
		{"huge memory in kB", withMemory(math.MaxInt64, UnitKB)},
		{"zero cpus", func(c *Configuration) { c.CPUNum = Int(0) }},
		{"zero connections", func(c *Configuration) { c.ConnectionNum = Int(0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfiguration()
			tt.mod(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func TestEngine_CopiesConfiguration(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.ConnectionNum = Int(45)
	e, err := New(cfg)
	require.NoError(t, err)

	*cfg.ConnectionNum = 500
	cfg.DBType = DBTypeDW

	assert.Equal(t, int64(45), e.MaxConnections())
	assert.Equal(t, int64(100), e.DefaultStatisticsTarget())
}

func TestMaxConnections(t *testing.T) {
	want := map[DBType]int64{
		DBTypeWeb:     200,
		DBTypeOLTP:    300,
		DBTypeDW:      40,
		DBTypeDesktop: 20,
		DBTypeMixed:   100,
	}

	for _, dbType := range DBTypes {
		t.Run(string(dbType), func(t *testing.T) {
			e := newEngine(t, func(c *Configuration) { c.DBType = dbType })
			assert.Equal(t, want[dbType], e.MaxConnections())

			e = newEngine(t, func(c *Configuration) { c.DBType = dbType; c.ConnectionNum = Int(45) })
			assert.Equal(t, int64(45), e.MaxConnections())
		})
	}
}

func TestHugePages(t *testing.T) {
	assert.Equal(t, "off", newEngine(t, nil).HugePages())
	assert.Equal(t, "off", newEngine(t, withMemory(31, UnitGB)).HugePages())
	assert.Equal(t, "try", newEngine(t, withMemory(32, UnitGB)).HugePages())
	assert.Equal(t, "try", newEngine(t, withMemory(1, UnitTB)).HugePages())
}

func TestMemorySettings_AbsentWithoutMemory(t *testing.T) {
	e := newEngine(t, nil)

	for name, fn := range map[string]func() (int64, bool){
		"shared_buffers":       e.SharedBuffers,
		"effective_cache_size": e.EffectiveCacheSize,
		"maintenance_work_mem": e.MaintenanceWorkMem,
		"wal_buffers":          e.WALBuffers,
		"work_mem":             e.WorkMem,
	} {
		_, ok := fn()
		assert.False(t, ok, name)
	}
	assert.Empty(t, e.Warnings())
}

func TestSharedBuffers(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Configuration)
		want int64
	}{
		{"web quarter", func(c *Configuration) {}, 4194304},
		{"desktop sixteenth", func(c *Configuration) { c.DBType = DBTypeDesktop }, 1048576},
		{"windows old version capped", func(c *Configuration) { c.OSType = OSWindows; c.DBVersion = 9.6 }, 524288},
		{"windows new version uncapped", func(c *Configuration) { c.OSType = OSWindows; c.DBVersion = 10 }, 4194304},
		{"linux old version uncapped", func(c *Configuration) { c.DBVersion = 9.6 }, 4194304},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, func(c *Configuration) {
				withMemory(16, UnitGB)(c)
				tt.mod(c)
			})
			v, ok := e.SharedBuffers()
			require.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEffectiveCacheSize(t *testing.T) {
	v, _ := newEngine(t, withMemory(16, UnitGB)).EffectiveCacheSize()
	assert.Equal(t, int64(12582912), v)

	v, _ = newEngine(t, func(c *Configuration) {
		withMemory(16, UnitGB)(c)
		c.DBType = DBTypeDesktop
	}).EffectiveCacheSize()
	assert.Equal(t, int64(4194304), v)
}

func TestMaintenanceWorkMem(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Configuration)
		want int64
	}{
		{"web sixteenth", withMemory(16, UnitGB), 1048576},
		{"dw eighth", func(c *Configuration) { withMemory(8, UnitGB)(c); c.DBType = DBTypeDW }, 1048576},
		{"capped", withMemory(64, UnitGB), 2097152},
		{"exactly at cap", withMemory(32, UnitGB), 2097152},
		{"windows capped below 2GB", func(c *Configuration) { withMemory(64, UnitGB)(c); c.OSType = OSWindows }, 2096128},
		{"windows at cap", func(c *Configuration) { withMemory(32, UnitGB)(c); c.OSType = OSWindows }, 2096128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := newEngine(t, tt.mod).MaintenanceWorkMem()
			require.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestCheckpointSegments(t *testing.T) {
	want := map[DBType][2]int64{
		DBTypeWeb:     {1048576, 4194304},
		DBTypeOLTP:    {2097152, 8388608},
		DBTypeDW:      {4194304, 16777216},
		DBTypeDesktop: {102400, 2097152},
		DBTypeMixed:   {1048576, 4194304},
	}

	for _, dbType := range DBTypes {
		got := newEngine(t, func(c *Configuration) { c.DBType = dbType }).CheckpointSegments()
		assert.Equal(t, Settings{KeyMinWALSize: want[dbType][0], KeyMaxWALSize: want[dbType][1]}, got, dbType)
	}
}

func TestWALBuffers(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		unit   SizeUnit
		want   int64
	}{
		{"capped at 16MB", 16, UnitGB, 16384},
		{"snapped up to 16MB", 2000000, UnitKB, 16384},
		{"three percent", 1, UnitGB, 7864},
		{"floor of 32kB", 1, UnitMB, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := newEngine(t, withMemory(tt.amount, tt.unit)).WALBuffers()
			require.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestStatisticsAndCosts(t *testing.T) {
	assert.Equal(t, int64(500), newEngine(t, func(c *Configuration) { c.DBType = DBTypeDW }).DefaultStatisticsTarget())
	assert.Equal(t, int64(100), newEngine(t, func(c *Configuration) { c.DBType = DBTypeOLTP }).DefaultStatisticsTarget())

	assert.Equal(t, 4.0, newEngine(t, func(c *Configuration) { c.HDType = DiskHDD }).RandomPageCost())
	assert.Equal(t, 1.1, newEngine(t, func(c *Configuration) { c.HDType = DiskSAN }).RandomPageCost())
	assert.Equal(t, 1.1, newEngine(t, nil).RandomPageCost())
	assert.Equal(t, 0.9, newEngine(t, nil).CheckpointCompletionTarget())
}

func TestEffectiveIOConcurrency(t *testing.T) {
	want := map[DiskType]int64{DiskHDD: 2, DiskSSD: 200, DiskSAN: 300}

	for disk, expected := range want {
		v, ok := newEngine(t, func(c *Configuration) { c.HDType = disk }).EffectiveIOConcurrency()
		require.True(t, ok)
		assert.Equal(t, expected, v)

		for _, osType := range []OSType{OSWindows, OSMac} {
			_, ok := newEngine(t, func(c *Configuration) { c.HDType = disk; c.OSType = osType }).EffectiveIOConcurrency()
			assert.False(t, ok, "%s/%s", disk, osType)
		}
	}
}

func TestParallelSettings_FewCPUs(t *testing.T) {
	for _, dbType := range DBTypes {
		for _, version := range []float64{9.6, 10, 11, 17} {
			e := newEngine(t, func(c *Configuration) { c.DBType = dbType; c.DBVersion = version })
			assert.Empty(t, e.ParallelSettings())

			for _, cpus := range []int{1, 2, 3} {
				e := newEngine(t, func(c *Configuration) { c.DBType = dbType; c.DBVersion = version; c.CPUNum = Int(cpus) })
				assert.Empty(t, e.ParallelSettings())
			}
		}
	}
}

func TestParallelSettings(t *testing.T) {
	tests := []struct {
		name    string
		cpus    int
		version float64
		dbType  DBType
		want    Settings
	}{
		{
			name: "web on 12 cpus", cpus: 12, version: 13, dbType: DBTypeWeb,
			want: Settings{
				KeyMaxWorkerProcesses:           int64(12),
				KeyMaxParallelWorkersPerGather:  int64(4),
				KeyMaxParallelWorkers:           int64(12),
				KeyMaxParallelMaintenanceWorker: int64(4),
			},
		},
		{
			name: "dw uncapped gather", cpus: 31, version: 12, dbType: DBTypeDW,
			want: Settings{
				KeyMaxWorkerProcesses:           int64(31),
				KeyMaxParallelWorkersPerGather:  int64(16),
				KeyMaxParallelWorkers:           int64(31),
				KeyMaxParallelMaintenanceWorker: int64(4),
			},
		},
		{
			name: "version 10 has no maintenance workers", cpus: 4, version: 10, dbType: DBTypeOLTP,
			want: Settings{
				KeyMaxWorkerProcesses:          int64(4),
				KeyMaxParallelWorkersPerGather: int64(2),
				KeyMaxParallelWorkers:          int64(4),
			},
		},
		{
			name: "version 9.6 only gather", cpus: 5, version: 9.6, dbType: DBTypeMixed,
			want: Settings{
				KeyMaxWorkerProcesses:          int64(5),
				KeyMaxParallelWorkersPerGather: int64(3),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, func(c *Configuration) {
				c.CPUNum = Int(tt.cpus)
				c.DBVersion = tt.version
				c.DBType = tt.dbType
			})
			assert.Equal(t, tt.want, e.ParallelSettings())
		})
	}
}

func TestWorkMem(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Configuration)
		want int64
	}{
		{"web 16GB 8 cpus", func(c *Configuration) { withMemory(16, UnitGB)(c); c.CPUNum = Int(8) }, 5242},
		{"web 16GB no cpus", withMemory(16, UnitGB), 20971},
		{"mixed halves", func(c *Configuration) { withMemory(16, UnitGB)(c); c.DBType = DBTypeMixed }, 20971},
		{"desktop sixth", func(c *Configuration) { withMemory(8, UnitGB)(c); c.DBType = DBTypeDesktop }, 21845},
		{"connection override", func(c *Configuration) { withMemory(16, UnitGB)(c); c.ConnectionNum = Int(100) }, 41943},
		{"floor of 64kB", withMemory(1, UnitMB), 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := newEngine(t, tt.mod).WorkMem()
			require.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestWALLevel(t *testing.T) {
	for _, dbType := range DBTypes {
		got := newEngine(t, func(c *Configuration) { c.DBType = dbType }).WALLevel()
		if dbType == DBTypeDesktop {
			assert.Equal(t, Settings{KeyWALLevel: "minimal", KeyMaxWALSenders: "0"}, got)
			continue
		}
		assert.Empty(t, got, dbType)
	}
}

func TestPgStatStatements(t *testing.T) {
	assert.Equal(t, Settings{
		KeySharedPreloadLibraries: "pg_stat_statements",
		KeyPgStatStatementsTrack:  "all",
		KeyPgStatStatementsMax:    int64(10000),
	}, newEngine(t, nil).PgStatStatements())

	assert.Empty(t, newEngine(t, func(c *Configuration) { c.EnablePgStatStatements = false }).PgStatStatements())
}

func TestWarnings(t *testing.T) {
	assert.Equal(t, []string{"this tool is not optimal for low memory systems"},
		newEngine(t, withMemory(200, UnitMB)).Warnings())
	assert.Equal(t, []string{"this tool is not optimal for very high memory systems"},
		newEngine(t, withMemory(128, UnitGB)).Warnings())
	assert.Empty(t, newEngine(t, withMemory(256, UnitMB)).Warnings())
	assert.Empty(t, newEngine(t, withMemory(100, UnitGB)).Warnings())
}

func TestRecommend(t *testing.T) {
	e := newEngine(t, func(c *Configuration) {
		withMemory(16, UnitGB)(c)
		c.CPUNum = Int(8)
	})

	assert.Equal(t, Settings{
		KeyMaxConnections:               int64(200),
		KeyHugePages:                    "off",
		KeySharedBuffers:                int64(4194304),
		KeyEffectiveCacheSize:           int64(12582912),
		KeyMaintenanceWorkMem:           int64(1048576),
		KeyCheckpointCompletionTarget:   0.9,
		KeyWALBuffers:                   int64(16384),
		KeyDefaultStatisticsTarget:      int64(100),
		KeyRandomPageCost:               1.1,
		KeyEffectiveIOConcurrency:       int64(200),
		KeyWorkMem:                      int64(5242),
		KeyMinWALSize:                   int64(1048576),
		KeyMaxWALSize:                   int64(4194304),
		KeyMaxWorkerProcesses:           int64(8),
		KeyMaxParallelWorkersPerGather:  int64(4),
		KeyMaxParallelWorkers:           int64(8),
		KeyMaxParallelMaintenanceWorker: int64(4),
		KeySharedPreloadLibraries:       "pg_stat_statements",
		KeyPgStatStatementsTrack:        "all",
		KeyPgStatStatementsMax:          int64(10000),
	}, e.Recommend())
}

func TestRecommend_WithoutFacts(t *testing.T) {
	got := newEngine(t, func(c *Configuration) { c.OSType = OSMac }).Recommend()

	for _, key := range []string{KeySharedBuffers, KeyEffectiveCacheSize, KeyMaintenanceWorkMem,
		KeyWALBuffers, KeyWorkMem, KeyEffectiveIOConcurrency, KeyMaxWorkerProcesses} {
		assert.NotContains(t, got, key)
	}
	assert.Equal(t, "off", got[KeyHugePages])
	assert.Equal(t, int64(200), got[KeyMaxConnections])
}

func TestParseEnums(t *testing.T) {
	dbType, err := ParseDBType(" OLTP ")
	require.NoError(t, err)
	assert.Equal(t, DBTypeOLTP, dbType)

	osType, err := ParseOSType("darwin")
	require.NoError(t, err)
	assert.Equal(t, OSMac, osType)

	disk, err := ParseDiskType("SSD")
	require.NoError(t, err)
	assert.Equal(t, DiskSSD, disk)

	_, err = ParseDBType("analytics")
	assert.Error(t, err)
	_, err = ParseDiskType("nvme")
	assert.Error(t, err)

	for _, dbType := range DBTypes {
		assert.NotEmpty(t, DBTypeDescriptions[dbType].Name)
	}
}

func TestTotalMemory_LargestValid(t *testing.T) {
	largest := math.MaxInt64 / UnitTB.Bytes()
	e := newEngine(t, withMemory(largest, UnitTB))

	b, ok := e.TotalMemoryBytes()
	require.True(t, ok)
	assert.Positive(t, b)
	assert.Equal(t, []string{"this tool is not optimal for very high memory systems"}, e.Warnings())
}
