// Package report renders command output for the terminal: the
// before/after settings table, warnings and the system-info document.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/autopg/internal/pgconf"
	"github.com/koustreak/autopg/internal/sysinfo"
)

const (
	colorPurple = "#bd93f9"
	colorGreen  = "#50fa7b"
	colorYellow = "#f1fa8c"
	colorRed    = "#ff5555"
	colorGrey   = "#6272a4"
)

var (
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPurple))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorYellow))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen))

	kindStyles = map[pgconf.ChangeKind]lipgloss.Style{
		pgconf.Added:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		pgconf.Changed:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		pgconf.Removed:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		pgconf.Unchanged: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGrey)),
	}
)

// DiffTable renders changes as a bordered SETTING / BEFORE / AFTER /
// STATUS table. Missing values show as "-".
func DiffTable(changes []pgconf.Change) string {
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{
			c.Key,
			orDash(c.Before),
			orDash(c.After),
			kindStyles[c.Kind].Render(c.Kind.String()),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("SETTING", "BEFORE", "AFTER", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	return t.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Warnings writes one highlighted line per warning.
func Warnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "%s %s\n", warningStyle.Render("WARNING:"), msg)
	}
}

// Success writes a highlighted confirmation line.
func Success(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render(msg))
}

// SystemInfo is the system-info document.
type SystemInfo struct {
	Memory          MemoryReport  `json:"memory" yaml:"memory"`
	CPU             CPUReport     `json:"cpu" yaml:"cpu"`
	Storage         StorageReport `json:"storage" yaml:"storage"`
	OS              string        `json:"os" yaml:"os"`
	Platform        string        `json:"platform,omitempty" yaml:"platform,omitempty"`
	PostgresVersion int           `json:"postgres_version,omitempty" yaml:"postgres_version,omitempty"`
}

type MemoryReport struct {
	TotalGB     float64 `json:"total_gb" yaml:"total_gb"`
	AvailableGB float64 `json:"available_gb" yaml:"available_gb"`
	Total       string  `json:"total" yaml:"total"`
	Available   string  `json:"available" yaml:"available"`
}

type CPUReport struct {
	Cores        int     `json:"cores" yaml:"cores"`
	FrequencyMHz float64 `json:"frequency_mhz" yaml:"frequency_mhz"`
}

type StorageReport struct {
	PrimaryDiskType string `json:"primary_disk_type,omitempty" yaml:"primary_disk_type,omitempty"`
}

// NewSystemInfo converts a probe snapshot to the report document.
func NewSystemInfo(s *sysinfo.Snapshot) SystemInfo {
	info := SystemInfo{
		OS:              string(s.OS),
		Platform:        s.Platform,
		PostgresVersion: s.PostgresVersion,
		Storage:         StorageReport{PrimaryDiskType: string(s.DiskType)},
	}
	if s.Memory != nil {
		info.Memory = MemoryReport{
			TotalGB:     gib(s.Memory.TotalBytes),
			AvailableGB: gib(s.Memory.AvailableBytes),
			Total:       humanize.IBytes(s.Memory.TotalBytes),
			Available:   humanize.IBytes(s.Memory.AvailableBytes),
		}
	}
	if s.CPU != nil {
		info.CPU = CPUReport{Cores: s.CPU.LogicalCount, FrequencyMHz: s.CPU.CurrentFreqMHz}
	}
	return info
}

// gib converts bytes to GiB rounded to two decimals.
func gib(b uint64) float64 {
	v := float64(b) / (1 << 30)
	return float64(int64(v*100+0.5)) / 100
}

// WriteSystemInfo encodes info as "json" (default) or "yaml".
func WriteSystemInfo(w io.Writer, info SystemInfo, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(info); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
