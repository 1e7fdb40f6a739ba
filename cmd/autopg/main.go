// Command autopg tunes postgresql.conf for the host it runs on.
//
//	autopg build-config [--pg-path DIR] [--dry-run] [--init-sql-dir DIR]
//	autopg system-info [--format json|yaml]
//
// Probed values can be overridden with AUTOPG_* environment variables,
// for example AUTOPG_DB_TYPE=oltp or AUTOPG_TOTAL_MEMORY_MB=8192.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/autopg/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.RunAutoPG(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
