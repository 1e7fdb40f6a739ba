// Package pool renders pgbouncer configuration from a declarative list of
// users and remote database pools.
//
// Three artifacts are produced: pgbouncer.ini, the userlist.txt auth file
// and the pgbouncer_hba.conf access list. Per-pool authorization is always
// enforced through HBA, so the generated INI forces auth_type = hba
// whatever auth type the configuration declares; the declared type only
// decides how passwords are stored and which HBA method is used.
package pool

import (
	"fmt"
	"strings"

	"github.com/koustreak/autopg/internal/errs"
)

// PoolMode is pgbouncer's server connection release policy.
type PoolMode string

const (
	PoolModeSession     PoolMode = "session"
	PoolModeTransaction PoolMode = "transaction"
	PoolModeStatement   PoolMode = "statement"
)

func (m PoolMode) Valid() bool {
	switch m {
	case PoolModeSession, PoolModeTransaction, PoolModeStatement:
		return true
	}
	return false
}

// AuthType is pgbouncer's client authentication method.
type AuthType string

const (
	AuthCert        AuthType = "cert"
	AuthMD5         AuthType = "md5"
	AuthSCRAMSHA256 AuthType = "scram-sha-256"
	AuthPlain       AuthType = "plain"
	AuthTrust       AuthType = "trust"
	AuthAny         AuthType = "any"
	AuthHBA         AuthType = "hba"
	AuthPAM         AuthType = "pam"
)

func (a AuthType) Valid() bool {
	switch a {
	case AuthCert, AuthMD5, AuthSCRAMSHA256, AuthPlain, AuthTrust, AuthAny, AuthHBA, AuthPAM:
		return true
	}
	return false
}

// AdminDatabase is pgbouncer's virtual console database. Grants may name
// it without a matching pool.
const AdminDatabase = "pgbouncer"

// User is a client account and the pools it may connect to.
type User struct {
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	Grants   []string `mapstructure:"grants"`
}

// RemoteDatabase is the PostgreSQL server a pool forwards to.
type RemoteDatabase struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Pool is a named database entry in pgbouncer's [databases] section.
type Pool struct {
	Remote   RemoteDatabase `mapstructure:"remote"`
	PoolMode PoolMode       `mapstructure:"pool_mode"`
}

// Mode returns the pool's mode, transaction when unset.
func (p Pool) Mode() PoolMode {
	if p.PoolMode == "" {
		return PoolModeTransaction
	}
	return p.PoolMode
}

// PgbouncerConfig holds the structured [pgbouncer] settings. Anything else
// pgbouncer understands goes in PassthroughKwargs, which overrides the
// structured fields on conflict.
type PgbouncerConfig struct {
	ListenAddr              string         `mapstructure:"listen_addr"`
	ListenPort              int            `mapstructure:"listen_port"`
	AuthType                AuthType       `mapstructure:"auth_type"`
	PoolMode                PoolMode       `mapstructure:"pool_mode"`
	MaxClientConn           int            `mapstructure:"max_client_conn"`
	DefaultPoolSize         int            `mapstructure:"default_pool_size"`
	IgnoreStartupParameters []string       `mapstructure:"ignore_startup_parameters"`
	AdminUsers              []string       `mapstructure:"admin_users"`
	StatsUsers              []string       `mapstructure:"stats_users"`
	IdleTransactionTimeout  int            `mapstructure:"idle_transaction_timeout"` // seconds, 0 disables
	MaxPreparedStatements   int            `mapstructure:"max_prepared_statements"`
	PassthroughKwargs       map[string]any `mapstructure:"passthrough_kwargs"`
}

// DefaultPgbouncerConfig returns pgbouncer settings for a transaction
// pooler listening on all interfaces.
func DefaultPgbouncerConfig() PgbouncerConfig {
	return PgbouncerConfig{
		ListenAddr:              "0.0.0.0",
		ListenPort:              6432,
		AuthType:                AuthMD5,
		PoolMode:                PoolModeTransaction,
		MaxClientConn:           100,
		DefaultPoolSize:         10,
		IgnoreStartupParameters: []string{"extra_float_digits"},
		IdleTransactionTimeout:  60,
		MaxPreparedStatements:   10,
		PassthroughKwargs:       map[string]any{},
	}
}

// MainConfig is the whole autopgpool document.
type MainConfig struct {
	Users     []User          `mapstructure:"users"`
	Pools     map[string]Pool `mapstructure:"pools"`
	Pgbouncer PgbouncerConfig `mapstructure:"pgbouncer"`
}

// DefaultMainConfig returns an empty configuration with default pgbouncer
// settings.
func DefaultMainConfig() *MainConfig {
	return &MainConfig{
		Pools:     map[string]Pool{},
		Pgbouncer: DefaultPgbouncerConfig(),
	}
}

// Validate checks the configuration before anything is rendered.
func (c *MainConfig) Validate() error {
	known := make(map[string]struct{}, len(c.Users))
	for i, u := range c.Users {
		if strings.TrimSpace(u.Username) == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "users[%d]: username is required", i)
		}
		if _, dup := known[u.Username]; dup {
			return errs.Newf(errs.ErrKindInvalidInput, "user %q is declared more than once", u.Username)
		}
		known[u.Username] = struct{}{}
	}

	if err := c.Pgbouncer.validate(known); err != nil {
		return err
	}

	for name, p := range c.Pools {
		if strings.TrimSpace(name) == "" {
			return errs.New(errs.ErrKindInvalidInput, "pool name is required")
		}
		if !p.Mode().Valid() {
			return errs.Newf(errs.ErrKindInvalidInput, "pool %q: unknown pool mode %q", name, p.PoolMode)
		}
		if err := p.Remote.validate(); err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("pool %q", name), err)
		}
	}
	return nil
}

func (p *PgbouncerConfig) validate(users map[string]struct{}) error {
	if !p.AuthType.Valid() {
		return errs.Newf(errs.ErrKindInvalidInput, "unknown auth type %q", p.AuthType)
	}
	if !p.PoolMode.Valid() {
		return errs.Newf(errs.ErrKindInvalidInput, "unknown pool mode %q", p.PoolMode)
	}
	if p.ListenPort < 1 || p.ListenPort > 65535 {
		return errs.Newf(errs.ErrKindInvalidInput, "listen port %d out of range", p.ListenPort)
	}
	if p.IdleTransactionTimeout < 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "idle transaction timeout must not be negative, got %d", p.IdleTransactionTimeout)
	}

	for _, list := range [][]string{p.AdminUsers, p.StatsUsers} {
		for _, name := range list {
			if _, ok := users[name]; !ok {
				return errs.Newf(errs.ErrKindInvalidInput, "user %s is not in the userlist", name)
			}
		}
	}
	return nil
}

// Warnings lists grants that name neither a pool nor the admin console.
// They are legal but grant nothing.
func (c *MainConfig) Warnings() []string {
	var out []string
	for _, u := range c.Users {
		for _, g := range u.Grants {
			if _, ok := c.Pools[g]; ok || g == AdminDatabase {
				continue
			}
			out = append(out, fmt.Sprintf("user %s is granted unknown pool %s", u.Username, g))
		}
	}
	return out
}
