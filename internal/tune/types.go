package tune

import (
	"fmt"
	"strings"
)

// DBType is the workload category. It selects the coefficient set for
// nearly every derived setting.
type DBType string

const (
	DBTypeWeb     DBType = "web"
	DBTypeOLTP    DBType = "oltp"
	DBTypeDW      DBType = "dw"
	DBTypeDesktop DBType = "desktop"
	DBTypeMixed   DBType = "mixed"
)

// DBTypes lists every workload category in display order.
var DBTypes = []DBType{DBTypeWeb, DBTypeOLTP, DBTypeDW, DBTypeDesktop, DBTypeMixed}

// DBTypeInfo describes a workload category for help output.
type DBTypeInfo struct {
	Name        string
	Description string
}

// DBTypeDescriptions holds the display name and description of each workload.
var DBTypeDescriptions = map[DBType]DBTypeInfo{
	DBTypeWeb:     {Name: "Web Application", Description: "Typically CPU-bound, DB much smaller than RAM, 90% or more simple queries"},
	DBTypeOLTP:    {Name: "Online Transaction Processing", Description: "Typically CPU- or I/O-bound, DB slightly larger than RAM to 1TB, 20-40% small data write queries"},
	DBTypeDW:      {Name: "Data Warehouse", Description: "Typically I/O- or RAM-bound, large bulk loads of data, large complex reporting queries"},
	DBTypeDesktop: {Name: "Desktop Application", Description: "Not a dedicated database, general workstation use"},
	DBTypeMixed:   {Name: "Mixed Type", Description: "Mixed DW and OLTP characteristics, wide mixture of queries"},
}

// ParseDBType parses a workload name case-insensitively.
func ParseDBType(s string) (DBType, error) {
	t := DBType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown db type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known workload categories.
func (t DBType) Valid() bool {
	switch t {
	case DBTypeWeb, DBTypeOLTP, DBTypeDW, DBTypeDesktop, DBTypeMixed:
		return true
	}
	return false
}

// OSType is the operating system family of the database host.
type OSType string

const (
	OSLinux   OSType = "linux"
	OSWindows OSType = "windows"
	OSMac     OSType = "mac"
)

// ParseOSType parses an OS family name. "darwin" is accepted for mac.
func ParseOSType(s string) (OSType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "darwin" {
		v = string(OSMac)
	}
	t := OSType(v)
	if !t.Valid() {
		return "", fmt.Errorf("unknown os type %q", s)
	}
	return t, nil
}

func (t OSType) Valid() bool {
	switch t {
	case OSLinux, OSWindows, OSMac:
		return true
	}
	return false
}

// DiskType is the storage medium holding the data directory.
type DiskType string

const (
	DiskSSD DiskType = "ssd"
	DiskSAN DiskType = "san"
	DiskHDD DiskType = "hdd"
)

// ParseDiskType parses a storage medium name case-insensitively.
func ParseDiskType(s string) (DiskType, error) {
	t := DiskType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown disk type %q", s)
	}
	return t, nil
}

func (t DiskType) Valid() bool {
	switch t {
	case DiskSSD, DiskSAN, DiskHDD:
		return true
	}
	return false
}

// SizeUnit is the unit TotalMemory is expressed in.
type SizeUnit string

const (
	UnitKB SizeUnit = "KB"
	UnitMB SizeUnit = "MB"
	UnitGB SizeUnit = "GB"
	UnitTB SizeUnit = "TB"
)

// Bytes returns the number of bytes in one unit, or 0 for an unknown unit.
func (u SizeUnit) Bytes() int64 {
	switch u {
	case UnitKB:
		return 1 << 10
	case UnitMB:
		return 1 << 20
	case UnitGB:
		return 1 << 30
	case UnitTB:
		return 1 << 40
	}
	return 0
}

func (u SizeUnit) Valid() bool {
	return u.Bytes() != 0
}

// Settings maps a postgresql.conf key to its value. Values are int64,
// float64, string or bool; memory-sized values are kilobyte counts.
type Settings map[string]any

// merge copies every entry of src into s.
func (s Settings) merge(src Settings) {
	for k, v := range src {
		s[k] = v
	}
}
