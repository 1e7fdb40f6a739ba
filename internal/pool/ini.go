package pool

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Entry is one key of an INI section.
type Entry struct {
	Key   string
	Value any
}

// Section is an ordered INI section with an optional comment line above
// its header.
type Section struct {
	Name    string
	Comment string
	Entries []Entry
}

// Set replaces the value of key in place, or appends it.
func (s *Section) Set(key string, value any) {
	for i := range s.Entries {
		if s.Entries[i].Key == key {
			s.Entries[i].Value = value
			return
		}
	}
	s.Entries = append(s.Entries, Entry{Key: key, Value: value})
}

// Get returns the value of key.
func (s *Section) Get(key string) (any, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// FormatINIValue renders a value the way pgbouncer reads it: booleans as
// 1/0, numbers bare, strings verbatim and lists comma separated. Strings
// are never quoted because pgbouncer keeps quotes as part of the value.
// ok is false for nil values and values that render empty; such keys are
// left out of the file.
func FormatINIValue(v any) (s string, ok bool) {
	s = formatINI(reflect.ValueOf(v))
	return s, s != ""
}

func formatINI(rv reflect.Value) string {
	if !rv.IsValid() {
		return ""
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return formatINI(rv.Elem())
	case reflect.Bool:
		if rv.Bool() {
			return "1"
		}
		return "0"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, formatINI(rv.Index(i)))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(rv.Interface())
	}
}

// RenderINI serializes sections in order, each followed by a blank line.
func RenderINI(sections []Section) string {
	var b strings.Builder
	for _, sec := range sections {
		if sec.Comment != "" {
			fmt.Fprintf(&b, "# %s\n", sec.Comment)
		}
		fmt.Fprintf(&b, "[%s]\n", sec.Name)
		for _, e := range sec.Entries {
			if v, ok := FormatINIValue(e.Value); ok {
				fmt.Fprintf(&b, "%s = %s\n", e.Key, v)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
