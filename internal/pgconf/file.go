package pgconf

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/koustreak/autopg/internal/errs"
)

const (
	// DefaultConfigDir is where the container image keeps postgresql.conf.
	DefaultConfigDir = "/etc/postgresql"

	ConfigFile     = "postgresql.conf"
	BaseConfigFile = ConfigFile + ".base"

	// Header is the first line of every file Write produces.
	Header = "# Generated by autopg"
)

// SourcePath returns the file Read takes existing settings from: the
// .base backup when present, else postgresql.conf.
func SourcePath(dir string) string {
	base := filepath.Join(dir, BaseConfigFile)
	if _, err := os.Stat(base); err == nil {
		return base
	}
	return filepath.Join(dir, ConfigFile)
}

// Read parses the existing settings in dir, preferring the .base backup
// since it holds the configuration from before autopg managed the file.
// A missing file yields an empty map.
func Read(dir string) (map[string]any, error) {
	return ReadFile(SourcePath(dir))
}

// ReadFile parses one configuration file. A missing file yields an empty map.
func ReadFile(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIOFailed, "open "+path, err)
	}
	defer f.Close()

	settings, err := Parse(f)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIOFailed, "read "+path, err)
	}
	return settings, nil
}

// Parse reads key = value lines. Comments, blank lines, lines without '='
// and storage values that are not sizes are skipped.
func Parse(r io.Reader) (map[string]any, error) {
	settings := map[string]any{}

	// bufio.Reader has no line length limit, unlike bufio.Scanner
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			parseLine(settings, line)
		}
		if errors.Is(err, io.EOF) {
			return settings, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func parseLine(settings map[string]any, line string) {
	key, raw, ok := splitLine(line)
	if !ok {
		return
	}
	if IsStorageKey(key) {
		if kb, err := ParseStorageValue(raw); err == nil {
			settings[key] = kb
		}
		return
	}
	settings[key] = ParseValue(raw)
}

func splitLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}

	k, v, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(k)
	if key == "" {
		return "", "", false
	}
	return key, unquote(stripComment(strings.TrimSpace(v))), true
}

// stripComment drops a trailing # comment that is not inside quotes.
func stripComment(v string) string {
	inQuote := false
	for i, r := range v {
		switch r {
		case '\'':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return strings.TrimSpace(v[:i])
			}
		}
	}
	return v
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v
}

// Render produces the file content for formatted settings: the header, a
// blank line, then one key = value line per setting in key order.
func Render(lines map[string]string) string {
	keys := make([]string, 0, len(lines))
	for k := range lines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n\n")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(" = ")
		b.WriteString(lines[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// Write replaces postgresql.conf in dir with the formatted settings. An
// existing file is first copied byte for byte to postgresql.conf.base,
// overwriting any earlier backup.
func Write(dir string, lines map[string]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.ErrKindIOFailed, "create "+dir, err)
	}

	target := filepath.Join(dir, ConfigFile)
	mode := fs.FileMode(0o644)

	prev, err := os.ReadFile(target)
	switch {
	case err == nil:
		if fi, statErr := os.Stat(target); statErr == nil {
			mode = fi.Mode().Perm()
		}
		if err := os.WriteFile(filepath.Join(dir, BaseConfigFile), prev, mode); err != nil {
			return errs.Wrap(errs.ErrKindIOFailed, "back up "+target, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.ErrKindIOFailed, "read "+target, err)
	}

	if err := os.WriteFile(target, []byte(Render(lines)), mode); err != nil {
		return errs.Wrap(errs.ErrKindIOFailed, "write "+target, err)
	}
	return nil
}

// Merge overlays existing on computed. Values already on disk are user
// intent and always win.
func Merge(computed, existing map[string]any) map[string]any {
	out := make(map[string]any, len(computed)+len(existing))
	for k, v := range computed {
		out[k] = v
	}
	for k, v := range existing {
		out[k] = v
	}
	return out
}
