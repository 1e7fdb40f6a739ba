package pool

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const defaultRemotePort = 5432

// port returns the remote port, 5432 when unset.
func (r RemoteDatabase) port() int {
	if r.Port == 0 {
		return defaultRemotePort
	}
	return r.Port
}

// libpqParams returns the keyword/value connection parameters in the
// order pgbouncer documents them.
func (r RemoteDatabase) libpqParams() [][2]string {
	return [][2]string{
		{"host", r.Host},
		{"port", fmt.Sprint(r.port())},
		{"dbname", r.Database},
		{"user", r.Username},
		{"password", r.Password},
	}
}

// ConnString builds the [databases] entry for this remote, quoted the way
// pgbouncer's connection-string parser reads it.
func (r RemoteDatabase) ConnString(mode PoolMode) string {
	params := append(r.libpqParams(), [2]string{"pool_mode", string(mode)})
	return joinParams(params, quoteParam)
}

func joinParams(params [][2]string, quote func(string) string) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p[0]+"="+quote(p[1]))
	}
	return strings.Join(parts, " ")
}

// quoteParam applies pgbouncer quoting: values that are empty or contain
// whitespace or quotes are single-quoted with ' doubled. pgbouncer has no
// backslash escapes, so backslashes pass through.
func quoteParam(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t'") {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// quoteLibpq applies libpq keyword/value quoting, which escapes with
// backslashes. It is only used to hand the parameters to pgconn.
func quoteLibpq(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t'\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// parseConnString splits a [databases] value into key/value pairs using
// pgbouncer's rules: a quoted value ends at the first ' not followed by
// another ', and '' inside it is a literal quote.
func parseConnString(s string) (map[string]string, error) {
	out := map[string]string{}
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return out, nil
		}
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("missing '=' in %q", s)
		}
		key := strings.TrimSpace(s[:eq])
		s = strings.TrimLeft(s[eq+1:], " \t")

		var val strings.Builder
		if strings.HasPrefix(s, "'") {
			i, closed := 1, false
			for i < len(s) {
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						val.WriteByte('\'')
						i += 2
						continue
					}
					closed = true
					i++
					break
				}
				val.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quoted value for %s", key)
			}
			s = s[i:]
			if s != "" && s[0] != ' ' && s[0] != '\t' {
				return nil, fmt.Errorf("unexpected text after quoted value for %s", key)
			}
		} else {
			end := strings.IndexAny(s, " \t")
			if end < 0 {
				end = len(s)
			}
			val.WriteString(s[:end])
			s = s[end:]
		}
		out[key] = val.String()
	}
}

// validate checks the remote parameters, that pgconn accepts them, and
// that the generated [databases] entry parses back to the same values
// under pgbouncer's quoting rules.
func (r RemoteDatabase) validate() error {
	switch {
	case strings.TrimSpace(r.Host) == "":
		return fmt.Errorf("remote host is required")
	case strings.TrimSpace(r.Database) == "":
		return fmt.Errorf("remote database is required")
	case strings.TrimSpace(r.Username) == "":
		return fmt.Errorf("remote username is required")
	case r.Port < 0 || r.Port > 65535:
		return fmt.Errorf("remote port %d out of range", r.Port)
	}
	for _, p := range r.libpqParams() {
		if strings.ContainsAny(p[1], "\r\n") {
			return fmt.Errorf("remote %s must not contain line breaks", p[0])
		}
	}

	cfg, err := pgconn.ParseConfig(joinParams(r.libpqParams(), quoteLibpq))
	if err != nil {
		return fmt.Errorf("invalid remote connection parameters: %w", err)
	}
	if cfg.Database != r.Database || cfg.User != r.Username {
		return fmt.Errorf("remote connection parameters do not round-trip")
	}

	parsed, err := parseConnString(r.ConnString(PoolModeTransaction))
	if err != nil {
		return fmt.Errorf("invalid pgbouncer connection string: %w", err)
	}
	for _, p := range r.libpqParams() {
		if parsed[p[0]] != p[1] {
			return fmt.Errorf("remote %s does not round-trip through pgbouncer quoting", p[0])
		}
	}
	return nil
}
