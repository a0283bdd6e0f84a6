// Package config loads and validates the optional .entractl YAML file.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up from the working directory
// upward.
const FileName = ".entractl"

// Default values for runner configuration.
const (
	DefaultTimeout   = 30 * time.Minute
	DefaultMaxOutput = 4 << 20 // 4 MB
	DefaultShell     = "pwsh"
	DefaultRateLimit = 5.0 // Graph lookups per second
	DefaultCacheSize = 64
)

// DefaultShellArgs run a script file non-interactively.
var DefaultShellArgs = []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File"}

// DefaultEnv is merged into every script's environment so that output is
// plain text without prompts or colour codes.
var DefaultEnv = map[string]string{
	"NO_COLOR":                    "1",
	"TERM":                        "dumb",
	"POWERSHELL_TELEMETRY_OPTOUT": "1",
}

// History drivers.
const (
	DriverSQLite = "sqlite"
	DriverDisk   = "disk"
)

// Tenant authentication methods.
const (
	AuthCLI    = "cli"
	AuthSecret = "secret"
)

// Config holds the parsed .entractl configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version       int                     `yaml:"version"`
	RawTimeout    string                  `yaml:"timeout"`    // e.g. "10m"; "none" disables
	RawMaxOutput  int                     `yaml:"max_output"` // bytes
	Shell         ShellConfig             `yaml:"shell"`
	RawScriptsDir string                  `yaml:"scripts_dir"`
	RawLogDir     string                  `yaml:"log_dir"`
	Env           map[string]string       `yaml:"env"`
	History       HistoryConfig           `yaml:"history"`
	Tenant        TenantConfig            `yaml:"tenant"`
	Actions       map[string]ActionConfig `yaml:"actions"`

	root string
}

// ShellConfig selects the interpreter scripts are run with.
type ShellConfig struct {
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args"` // placed before the script path
}

// HistoryConfig controls where run results are kept.
type HistoryConfig struct {
	Driver string `yaml:"driver"` // sqlite (default) or disk
	Path   string `yaml:"path"`
	Cache  int    `yaml:"cache"` // in-memory LRU entries
}

// TenantConfig controls the directory helpers.
type TenantConfig struct {
	ID           string  `yaml:"id"`
	Detect       bool    `yaml:"detect"` // resolve the tenant id from a token when ID is empty
	Auth         string  `yaml:"auth"`   // cli (default) or secret
	ClientID     string  `yaml:"client_id"`
	ClientSecret string  `yaml:"client_secret"`
	Preflight    bool    `yaml:"preflight"` // look up UPNs before launching scripts
	RateLimit    float64 `yaml:"rate_limit"`
}

// ActionConfig overrides one catalog action.
type ActionConfig struct {
	Script string `yaml:"script"`
}

// Root returns the directory relative paths resolve against.
func (c *Config) Root() string { return c.root }

// Timeout returns the configured timeout, the default, or 0 for "none".
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout == "none" {
		return 0
	}
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// ShellExecutable returns the interpreter, defaulting to pwsh.
func (c *Config) ShellExecutable() string {
	if c.Shell.Executable != "" {
		return c.Shell.Executable
	}
	return DefaultShell
}

// ShellArgs returns the interpreter arguments placed before the script.
func (c *Config) ShellArgs() []string {
	if c.Shell.Args != nil {
		return c.Shell.Args
	}
	return DefaultShellArgs
}

// ScriptsDir returns the script directory, default <root>/scripts.
func (c *Config) ScriptsDir() string { return c.resolve(c.RawScriptsDir, "scripts") }

// LogDir returns the log artifact directory, default <root>/logs.
func (c *Config) LogDir() string { return c.resolve(c.RawLogDir, "logs") }

// HistoryDriver returns the history backend name.
func (c *Config) HistoryDriver() string {
	if c.History.Driver != "" {
		return c.History.Driver
	}
	return DriverSQLite
}

// HistoryPath returns the sqlite file or disk directory holding runs.
func (c *Config) HistoryPath() string {
	def := "history.db"
	if c.HistoryDriver() == DriverDisk {
		def = "history"
	}
	return c.resolve(c.History.Path, def)
}

// HistoryCache returns the LRU capacity in front of the history store.
func (c *Config) HistoryCache() int {
	if c.History.Cache > 0 {
		return c.History.Cache
	}
	return DefaultCacheSize
}

// AuthMethod returns the tenant authentication method.
func (c *Config) AuthMethod() string {
	if c.Tenant.Auth != "" {
		return c.Tenant.Auth
	}
	return AuthCLI
}

// RateLimit returns the Graph lookup rate in requests per second.
func (c *Config) RateLimit() float64 {
	if c.Tenant.RateLimit > 0 {
		return c.Tenant.RateLimit
	}
	return DefaultRateLimit
}

// ChildEnv returns DefaultEnv overlaid with the configured env.
func (c *Config) ChildEnv() map[string]string {
	env := maps.Clone(DefaultEnv)
	maps.Copy(env, c.Env)
	return env
}

// Script returns the script filename override for an action, if any.
func (c *Config) Script(action string) string {
	return c.Actions[action].Script
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.HistoryDriver() {
	case DriverSQLite, DriverDisk:
	default:
		return fmt.Errorf("invalid history driver: %s. Must be %q or %q", c.History.Driver, DriverSQLite, DriverDisk)
	}
	switch c.AuthMethod() {
	case AuthCLI:
	case AuthSecret:
		if c.Tenant.ID == "" {
			return errors.New("TENANT_ID must be set via config file or environment variable for secret auth")
		}
		if c.Tenant.ClientID == "" {
			return errors.New("CLIENT_ID must be set via config file or environment variable for secret auth")
		}
		if c.Tenant.ClientSecret == "" {
			return errors.New("CLIENT_SECRET must be set via config file or environment variable for secret auth")
		}
	default:
		return fmt.Errorf("invalid auth method: %s. Must be %q or %q", c.Tenant.Auth, AuthCLI, AuthSecret)
	}
	return nil
}

func (c *Config) resolve(p, def string) string {
	if p == "" {
		p = def
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.root, p)
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .entractl; falls back to workspace
	Path   string // config file path, empty when none was found
}

// Load reads the .entractl file found by walking upward from workspace.
// If none exists, a default Config rooted at workspace is returned.
// TENANT_ID, CLIENT_ID and CLIENT_SECRET override the file.
func Load(workspace string) (*LoadResult, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	res := &LoadResult{Config: cfg, Root: abs}
	if root, err := findRoot(abs); err == nil {
		res.Root = root
		res.Path = filepath.Join(root, FileName)
		data, err := os.ReadFile(res.Path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", FileName, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", FileName, err)
		}
	}
	cfg.root = res.Root

	if val, ok := os.LookupEnv("TENANT_ID"); ok {
		cfg.Tenant.ID = val
	}
	if val, ok := os.LookupEnv("CLIENT_ID"); ok {
		cfg.Tenant.ClientID = val
	}
	if val, ok := os.LookupEnv("CLIENT_SECRET"); ok {
		cfg.Tenant.ClientSecret = val
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// findRoot walks upward from dir looking for a directory containing .entractl.
func findRoot(dir string) (string, error) {
	for {
		if fi, err := os.Stat(filepath.Join(dir, FileName)); err == nil && !fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
