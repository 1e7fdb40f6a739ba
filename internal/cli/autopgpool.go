package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/koustreak/autopg/internal/logger"
	"github.com/koustreak/autopg/internal/pool"
	"github.com/koustreak/autopg/internal/report"
)

func autopgpoolCommands() []command {
	return []command{
		{name: "generate", summary: "Write pgbouncer.ini, userlist.txt and pgbouncer_hba.conf", run: runGenerate},
		{name: "validate", summary: "Check a configuration file without writing anything", run: runValidate},
	}
}

// RunAutoPGPool runs the autopgpool tool with args (without the program name).
func RunAutoPGPool(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return dispatch(ctx, "autopgpool", autopgpoolCommands(), args, stdout, stderr)
}

func loadPoolConfig(ctx context.Context, path string) (*pool.MainConfig, error) {
	cfg, err := pool.Load(path)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}
	return cfg, nil
}

func runGenerate(ctx context.Context, args []string, s *streams) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	configPath := fs.String("config-path", pool.DefaultConfigPath, "TOML or YAML configuration file")
	outputDir := fs.String("output-dir", pool.DefaultOutputDir, "directory to write the pgbouncer files into")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := loadPoolConfig(ctx, *configPath)
	if err != nil {
		return err
	}

	art, err := pool.Generate(cfg, *outputDir)
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	for _, f := range art.Files() {
		log.InfoWith("wrote "+f.Name, map[string]any{
			"path":  filepath.Join(art.Dir, f.Name),
			"bytes": len(f.Content),
		})
	}
	report.Success(s.stdout, fmt.Sprintf("Generated pgbouncer configuration for %d users and %d pools in %s",
		len(cfg.Users), len(cfg.Pools), art.Dir))
	return nil
}

func runValidate(ctx context.Context, args []string, s *streams) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	configPath := fs.String("config-path", pool.DefaultConfigPath, "TOML or YAML configuration file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := loadPoolConfig(ctx, *configPath)
	if err != nil {
		return err
	}

	// Render catches unsupported auth types, which Load does not.
	if _, err := pool.Render(cfg, pool.DefaultOutputDir); err != nil {
		return err
	}

	report.Success(s.stdout, fmt.Sprintf("%s is valid: %d users, %d pools", *configPath, len(cfg.Users), len(cfg.Pools)))
	return nil
}
