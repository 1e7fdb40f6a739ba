// Command autopgpool renders pgbouncer configuration from a single TOML or
// YAML document.
//
//	autopgpool generate [--config-path FILE] [--output-dir DIR]
//	autopgpool validate [--config-path FILE]
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
	code := cli.RunAutoPGPool(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
