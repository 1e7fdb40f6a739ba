package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/koustreak/autopg/internal/config"
	"github.com/koustreak/autopg/internal/errs"
	"github.com/koustreak/autopg/internal/logger"
	"github.com/koustreak/autopg/internal/pgconf"
	"github.com/koustreak/autopg/internal/report"
	"github.com/koustreak/autopg/internal/sysinfo"
	"github.com/koustreak/autopg/internal/tune"
)

// InitSQLFile is the name of the pg_stat_statements bootstrap script.
const InitSQLFile = "autopg_init.sql"

// SuccessMessage is printed after postgresql.conf is written.
const SuccessMessage = "Successfully wrote new PostgreSQL configuration!"

var collectSnapshot = sysinfo.Collect

func autopgCommands() []command {
	return []command{
		{name: "build-config", summary: "Tune postgresql.conf for this host", run: runBuildConfig},
		{name: "system-info", summary: "Print the probed system facts", run: runSystemInfo},
	}
}

// RunAutoPG runs the autopg tool with args (without the program name).
func RunAutoPG(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return dispatch(ctx, "autopg", autopgCommands(), args, stdout, stderr)
}

func runBuildConfig(ctx context.Context, args []string, s *streams) error {
	fs := flag.NewFlagSet("build-config", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	pgPath := fs.String("pg-path", pgconf.DefaultConfigDir, "directory holding postgresql.conf")
	dryRun := fs.Bool("dry-run", false, "print the new postgresql.conf instead of writing it")
	initSQLDir := fs.String("init-sql-dir", "", "also write the pg_stat_statements init script into this directory")
	fs.Usage = func() {
		fmt.Fprintf(s.stderr, "Usage:\n  autopg build-config [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(s.stderr, "\nWorkload types (%s):\n", config.EnvName(config.KeyDBType))
		for _, t := range tune.DBTypes {
			info := tune.DBTypeDescriptions[t]
			fmt.Fprintf(s.stderr, "  %-8s %s: %s\n", t, info.Name, info.Description)
		}
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	snap := collectSnapshot(ctx)
	for _, p := range snap.Problems {
		log.With().Err(p).Logger().Debug("system probe incomplete")
	}

	cfg, err := config.Resolve(config.NewViper(), snap)
	if err != nil {
		return err
	}
	eng, err := tune.New(cfg)
	if err != nil {
		return err
	}

	log = log.With().Str("pg_path", *pgPath).Logger()
	if memBytes, ok := eng.TotalMemoryBytes(); ok {
		log.Infof("tuning for %s (%s of memory)", cfg, humanize.IBytes(uint64(memBytes)))
	} else {
		log.Warnf("memory is unknown, memory settings are left out (%s)", cfg)
	}

	existing, err := pgconf.Read(*pgPath)
	if err != nil {
		return err
	}
	log.Debugf("read %d existing settings from %s", len(existing), pgconf.SourcePath(*pgPath))

	current, err := pgconf.ReadFile(filepath.Join(*pgPath, pgconf.ConfigFile))
	if err != nil {
		return err
	}

	lines := pgconf.Format(pgconf.Merge(eng.Recommend(), existing))

	fmt.Fprintln(s.stdout, report.DiffTable(pgconf.Diff(pgconf.Format(current), lines)))
	report.Warnings(s.stdout, eng.Warnings())

	if *dryRun {
		fmt.Fprint(s.stdout, pgconf.Render(lines))
		return nil
	}

	if err := pgconf.Write(*pgPath, lines); err != nil {
		return err
	}

	if *initSQLDir != "" && cfg.EnablePgStatStatements {
		path, err := writeInitSQL(*initSQLDir)
		if err != nil {
			return err
		}
		log.Infof("wrote %s", path)
	}

	report.Success(s.stdout, SuccessMessage)
	return nil
}

func writeInitSQL(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.Wrap(errs.ErrKindIOFailed, "create "+dir, err)
	}
	path := filepath.Join(dir, InitSQLFile)
	if err := os.WriteFile(path, []byte(tune.PgStatStatementsInitSQL), 0o644); err != nil {
		return "", errs.Wrap(errs.ErrKindIOFailed, "write "+path, err)
	}
	return path, nil
}

func runSystemInfo(ctx context.Context, args []string, s *streams) error {
	fs := flag.NewFlagSet("system-info", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	format := fs.String("format", "json", "output format: json or yaml")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	switch strings.ToLower(*format) {
	case "json", "yaml", "yml":
	default:
		return flagError{err: fmt.Errorf("unknown output format %q", *format)}
	}

	log := logger.FromContext(ctx)
	snap := collectSnapshot(ctx)
	for _, p := range snap.Problems {
		log.With().Err(p).Logger().Warn("system probe incomplete")
	}
	return report.WriteSystemInfo(s.stdout, report.NewSystemInfo(snap), *format)
}
