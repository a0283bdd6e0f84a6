package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/deixis/entractl/internal/action"
	"github.com/deixis/entractl/internal/command"
	"github.com/deixis/entractl/internal/config"
	"github.com/deixis/entractl/internal/directory"
	"github.com/deixis/entractl/internal/logs"
	"github.com/deixis/entractl/internal/report"
	"github.com/deixis/entractl/internal/runner"
)

// globalOptions are the root command's persistent flags.
type globalOptions struct {
	workspace string
	timeout   time.Duration
	verbose   bool
}

// app is everything a command needs, wired from the loaded config.
type app struct {
	cfg    *config.Config
	engine *action.Engine
	store  report.Store
	db     *report.SQLiteStore // nil with the disk driver
	logs   *logs.Dir
	cred   azcore.TokenCredential

	closers []func() error
}

// newApp loads the config for opts.workspace and wires the engine. The
// caller must Close the app.
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logs: logs.NewDir(cfg.LogDir())}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout()
	if opts.timeout > 0 {
		timeout = opts.timeout
	}

	cat := action.Builtin()
	scripts := cat.Scripts()
	for id := range scripts {
		if s := cfg.Script(id); s != "" {
			scripts[id] = s
		}
	}

	a.engine = &action.Engine{
		Catalog: cat,
		Builder: &command.Builder{
			Executable: cfg.ShellExecutable(),
			BaseArgs:   cfg.ShellArgs(),
			ScriptsDir: cfg.ScriptsDir(),
			Scripts:    scripts,
			Dir:        cfg.Root(),
			Env:        cfg.ChildEnv(),
		},
		Runner: &runner.Runner{
			Workspace: cfg.Root(),
			Timeout:   timeout,
			MaxOutput: cfg.MaxOutputBytes(),
			Logs:      a.logs,
		},
		Store:    a.store,
		TenantID: cfg.Tenant.ID,
	}

	if err := a.connectTenant(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// loadConfig loads the .entractl file governing opts.workspace.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	workspace := opts.workspace
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining workspace: %w", err)
		}
		workspace = wd
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return loaded.Config, nil
}

func (a *app) openStore(ctx context.Context) error {
	path := a.cfg.HistoryPath()
	var back report.Store
	switch a.cfg.HistoryDriver() {
	case config.DriverDisk:
		back = report.NewDiskStore(path)
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("creating history directory: %w", err)
		}
		db, err := report.OpenSQLite(ctx, path)
		if err != nil {
			return err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		back = db
	}
	a.store = report.NewLRUStore(a.cfg.HistoryCache(), back)
	return nil
}

// connectTenant resolves the tenant id and, with preflight enabled, the
// directory resolver. A failed tenant detection is logged; scripts then
// fall back to their own connection context.
func (a *app) connectTenant(ctx context.Context) error {
	t := a.cfg.Tenant
	if !t.Preflight && (t.ID != "" || !t.Detect) {
		return nil
	}
	cred, err := a.credential()
	if err != nil {
		return err
	}
	tenant, err := directory.ResolveTenant(ctx, a.cfg, cred)
	if err != nil {
		log.Printf("tenant detection failed: %v", err)
	} else {
		a.engine.TenantID = tenant
	}
	if t.Preflight {
		r, err := directory.NewGraphResolver(cred, a.cfg.RateLimit())
		if err != nil {
			return fmt.Errorf("creating directory client: %w", err)
		}
		a.engine.Resolver = r
	}
	return nil
}

func (a *app) credential() (azcore.TokenCredential, error) {
	if a.cred != nil {
		return a.cred, nil
	}
	cred, err := directory.NewCredential(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("creating credential: %w", err)
	}
	a.cred = cred
	return cred, nil
}

// lister returns the store as a Lister.
func (a *app) lister() (report.Lister, error) {
	l, ok := a.store.(report.Lister)
	if !ok {
		return nil, errors.New("history store cannot list runs")
	}
	return l, nil
}

// Close releases the history database.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
