package pool

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/koustreak/autopg/internal/errs"
)

// userlistSecret returns the password as pgbouncer expects it in the auth
// file for the given auth type.
func userlistSecret(u User, auth AuthType) (string, error) {
	switch auth {
	case AuthMD5:
		// pgbouncer's md5 auth file format, not a password storage choice
		sum := md5.Sum([]byte(u.Password + u.Username))
		return "md5" + hex.EncodeToString(sum[:]), nil
	case AuthSCRAMSHA256:
		return "", errs.New(errs.ErrKindUnsupported, "scram-sha-256 userlist entries are not implemented")
	default:
		return u.Password, nil
	}
}

// RenderUserlist renders userlist.txt: one `"user" "secret"` line per user.
func RenderUserlist(users []User, auth AuthType) (string, error) {
	var b strings.Builder
	for _, u := range users {
		secret, err := userlistSecret(u, auth)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s %s\n", quoteUserlist(u.Username), quoteUserlist(secret))
	}
	return b.String(), nil
}

// quoteUserlist double-quotes s, doubling embedded quotes.
func quoteUserlist(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// hbaHeader names the columns of pgbouncer_hba.conf.
const hbaHeader = "# TYPE\tDATABASE\tUSER\tADDRESS\tMETHOD\n"

// hbaMethod maps the declared auth type to the HBA method that checks
// the userlist entry.
func hbaMethod(auth AuthType) string {
	switch auth {
	case AuthPlain:
		return "password"
	case AuthTrust, AuthCert, AuthSCRAMSHA256:
		return string(auth)
	default:
		return string(AuthMD5)
	}
}

// RenderHBA renders pgbouncer_hba.conf. Every granted (user, pool) pair is
// allowed over the local socket and over IPv4 and IPv6; after a user's
// allow lines, two reject lines close every other database to that user.
// pgbouncer stops at the first matching line, so the order matters.
func RenderHBA(users []User, auth AuthType) string {
	method := hbaMethod(auth)

	var b strings.Builder
	b.WriteString(hbaHeader)
	for _, u := range users {
		if len(u.Grants) == 0 {
			continue
		}
		for _, db := range u.Grants {
			fmt.Fprintf(&b, "local\t%s\t%s\t\t%s\n", db, u.Username, method)
			fmt.Fprintf(&b, "host\t%s\t%s\t0.0.0.0/0\t%s\n", db, u.Username, method)
			fmt.Fprintf(&b, "host\t%s\t%s\t::0/0\t%s\n", db, u.Username, method)
		}
		fmt.Fprintf(&b, "host\tall\t%s\t0.0.0.0/0\treject\n", u.Username)
		fmt.Fprintf(&b, "host\tall\t%s\t::0/0\treject\n", u.Username)
	}
	return b.String()
}
