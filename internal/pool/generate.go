package pool

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/koustreak/autopg/internal/errs"
)

const (
	DefaultConfigPath = "/etc/autopgpool/autopgpool.toml"
	DefaultOutputDir  = "/etc/pgbouncer"

	UserlistFile = "userlist.txt"
	HBAFile      = "pgbouncer_hba.conf"
	INIFile      = "pgbouncer.ini"
)

// Artifacts holds the rendered files and where they go.
type Artifacts struct {
	Dir      string
	Userlist string
	HBA      string
	INI      string
}

// Files maps each file name to its content, in write order.
func (a *Artifacts) Files() []File {
	return []File{
		{Name: UserlistFile, Content: a.Userlist},
		{Name: HBAFile, Content: a.HBA},
		{Name: INIFile, Content: a.INI},
	}
}

// File is one rendered artifact.
type File struct {
	Name    string
	Content string
}

// Render validates cfg and renders all three artifacts for outputDir
// without touching the filesystem.
func Render(cfg *MainConfig, outputDir string) (*Artifacts, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir := outputDir
	if abs, err := filepath.Abs(outputDir); err == nil {
		dir = abs
	}

	userlist, err := RenderUserlist(cfg.Users, cfg.Pgbouncer.AuthType)
	if err != nil {
		return nil, err
	}

	return &Artifacts{
		Dir:      dir,
		Userlist: userlist,
		HBA:      RenderHBA(cfg.Users, cfg.Pgbouncer.AuthType),
		INI:      RenderINI(iniSections(cfg, dir)),
	}, nil
}

// iniSections builds [pgbouncer] and [databases].
func iniSections(cfg *MainConfig, dir string) []Section {
	pb := cfg.Pgbouncer

	main := Section{Name: "pgbouncer", Comment: "Generated by autopgpool"}
	main.Set("listen_addr", pb.ListenAddr)
	main.Set("listen_port", pb.ListenPort)
	main.Set("auth_type", string(pb.AuthType))
	main.Set("pool_mode", string(pb.PoolMode))
	main.Set("max_client_conn", pb.MaxClientConn)
	main.Set("default_pool_size", pb.DefaultPoolSize)
	main.Set("ignore_startup_parameters", pb.IgnoreStartupParameters)
	main.Set("admin_users", pb.AdminUsers)
	main.Set("stats_users", pb.StatsUsers)
	main.Set("idle_transaction_timeout", pb.IdleTransactionTimeout)
	main.Set("max_prepared_statements", pb.MaxPreparedStatements)

	for _, k := range sortedKeys(pb.PassthroughKwargs) {
		main.Set(k, pb.PassthroughKwargs[k])
	}

	main.Set("auth_type", string(AuthHBA))
	main.Set("auth_file", filepath.Join(dir, UserlistFile))
	main.Set("auth_hba_file", filepath.Join(dir, HBAFile))

	dbs := Section{Name: "databases"}
	for _, name := range sortedKeys(cfg.Pools) {
		p := cfg.Pools[name]
		dbs.Set(name, p.Remote.ConnString(p.Mode()))
	}

	return []Section{main, dbs}
}

// Generate renders the artifacts and writes them into outputDir. Nothing
// is written unless every artifact renders. The files are staged next to
// their targets, and if installing one of them fails the ones already
// installed are put back to their previous content.
func Generate(cfg *MainConfig, outputDir string) (*Artifacts, error) {
	art, err := Render(cfg, outputDir)
	if err != nil {
		return nil, err
	}
	if err := writeAll(art.Dir, art.Files()); err != nil {
		return nil, err
	}
	return art, nil
}

func writeAll(dir string, files []File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.ErrKindIOFailed, "create "+dir, err)
	}

	staged := make([]string, 0, len(files))
	cleanup := func() {
		for _, p := range staged {
			_ = os.Remove(p)
		}
	}

	for _, f := range files {
		tmp, err := os.CreateTemp(dir, "."+f.Name+".*")
		if err != nil {
			cleanup()
			return errs.Wrap(errs.ErrKindIOFailed, "stage "+f.Name, err)
		}
		staged = append(staged, tmp.Name())

		_, err = tmp.WriteString(f.Content)
		if closeErr := tmp.Close(); err == nil {
			err = closeErr
		}
		if err == nil {
			// userlist.txt holds credentials
			err = os.Chmod(tmp.Name(), 0o640)
		}
		if err != nil {
			cleanup()
			return errs.Wrap(errs.ErrKindIOFailed, "write "+f.Name, err)
		}
	}

	prev, err := snapshotTargets(dir, files)
	if err != nil {
		cleanup()
		return err
	}

	for i, f := range files {
		if err := os.Rename(staged[i], filepath.Join(dir, f.Name)); err != nil {
			cleanup()
			restoreTargets(dir, files[:i], prev)
			return errs.Wrap(errs.ErrKindIOFailed, "install "+f.Name, err)
		}
	}
	return nil
}

// previousFile is the content and mode of a target before it was replaced.
type previousFile struct {
	content []byte
	mode    os.FileMode
}

// snapshotTargets records the regular files that writeAll is about to
// replace, keyed by name. Targets that do not exist are left out.
func snapshotTargets(dir string, files []File) (map[string]previousFile, error) {
	prev := make(map[string]previousFile, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		info, err := os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindIOFailed, "stat "+path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindIOFailed, "read "+path, err)
		}
		prev[f.Name] = previousFile{content: content, mode: info.Mode().Perm()}
	}
	return prev, nil
}

// restoreTargets puts back the files that were already installed: the
// previous content where there was one, nothing where there was not.
func restoreTargets(dir string, installed []File, prev map[string]previousFile) {
	for _, f := range installed {
		path := filepath.Join(dir, f.Name)
		if p, ok := prev[f.Name]; ok {
			_ = os.WriteFile(path, p.content, p.mode)
			_ = os.Chmod(path, p.mode)
			continue
		}
		_ = os.Remove(path)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
