// Package pgconf reads, formats, merges and writes postgresql.conf.
//
// Values travel between the tuning engine and the file as typed Go values:
// int64, float64, string or bool. Memory-sized keys (see StorageKeys) are
// kilobyte counts in memory and human units ("4GB", "16MB", "512kB") on
// disk.
package pgconf

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kbPerMB = 1024
	kbPerGB = 1024 * 1024
)

// StorageKeys are the settings whose values are memory or disk sizes.
var StorageKeys = map[string]struct{}{
	"shared_buffers":       {},
	"effective_cache_size": {},
	"maintenance_work_mem": {},
	"wal_buffers":          {},
	"work_mem":             {},
	"min_wal_size":         {},
	"max_wal_size":         {},
}

// IsStorageKey reports whether key holds a size in kilobytes.
func IsStorageKey(key string) bool {
	_, ok := StorageKeys[key]
	return ok
}

// FormatKB renders a kilobyte count in the largest whole unit. Negative
// values (-1 selects the server default for some keys) stay unitless.
func FormatKB(kb int64) string {
	switch {
	case kb < 0:
		return strconv.FormatInt(kb, 10)
	case kb == 0:
		return "0kB"
	case kb%kbPerGB == 0:
		return fmt.Sprintf("%dGB", kb/kbPerGB)
	case kb%kbPerMB == 0:
		return fmt.Sprintf("%dMB", kb/kbPerMB)
	default:
		return fmt.Sprintf("%dkB", kb)
	}
}

// ParseStorageValue converts "4GB", "16MB" or "512kB" to kilobytes. A bare
// number is taken as kilobytes.
func ParseStorageValue(s string) (int64, error) {
	v := strings.TrimSpace(s)

	mult := int64(1)
	switch {
	case strings.HasSuffix(v, "GB"):
		v, mult = strings.TrimSuffix(v, "GB"), kbPerGB
	case strings.HasSuffix(v, "MB"):
		v, mult = strings.TrimSuffix(v, "MB"), kbPerMB
	default:
		v = strings.TrimSuffix(v, "kB")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n * mult, nil
}

// ParseValue infers the type of an unquoted value: true/false become
// bools, digit strings become int64, anything else stays a string.
func ParseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if isDigits(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatValue renders v bare. Floats always carry a decimal point.
func FormatValue(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case float32:
		return FormatValue(float64(x))
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Format renders settings for writing. Storage keys become quoted human
// sizes, strings are single-quoted and every other value is bare.
func Format(settings map[string]any) map[string]string {
	out := make(map[string]string, len(settings))
	for k, v := range settings {
		out[k] = formatEntry(k, v)
	}
	return out
}

func formatEntry(key string, v any) string {
	if IsStorageKey(key) {
		if kb, ok := toInt64(v); ok {
			return quote(FormatKB(kb))
		}
	}
	if s, ok := v.(string); ok {
		return quote(s)
	}
	return FormatValue(v)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	}
	return 0, false
}
