package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/manifest"
	"github.com/schaermu/forceimport/internal/pathtmpl"
)

// Backend selects the version control system behind the repository URL.
type Backend string

const (
	BackendSVN Backend = "svn"
	BackendGit Backend = "git"
)

const (
	// DefaultWorkDirName is the directory below the target that holds the
	// working copies.
	DefaultWorkDirName = "svntemp"

	DefaultCommitMessage    = "Jenkins"
	DefaultOperationTimeout = 5 * time.Minute
	DefaultListenAddr       = "127.0.0.1:8787"
	DefaultDebounce         = 10 * time.Second
)

// Config represents the complete forceimport configuration
type Config struct {
	Repo     RepoConfig            `yaml:"repo"`
	Paths    PathsConfig           `yaml:"paths"`
	Manifest ManifestConfig        `yaml:"manifest"`
	Items    []pathtmpl.ImportItem `yaml:"items"`
	Auth     AuthConfig            `yaml:"auth"`
	Remote   RemoteConfig          `yaml:"remote"`
	Commit   CommitConfig          `yaml:"commit"`
	Serve    ServeConfig           `yaml:"serve"`
}

// RepoConfig configures the remote repository
type RepoConfig struct {
	URL     string  `yaml:"url"`
	Backend Backend `yaml:"backend"`
}

// PathsConfig configures local filesystem paths. Target, WorkDir and the
// manifest path may contain the workspace placeholders.
type PathsConfig struct {
	Target    string `yaml:"target"`
	Workspace string `yaml:"workspace"`
	WorkDir   string `yaml:"work_dir"`
	Report    string `yaml:"report"`
}

// ManifestConfig locates the project descriptor the version is read from
type ManifestConfig struct {
	Path                  string `yaml:"path"`
	manifest.ElementPaths `yaml:",inline"`
}

// AuthConfig configures repository credentials
type AuthConfig struct {
	Username     string `yaml:"username" env:"FORCEIMPORT_USERNAME"`
	Password     string `yaml:"password" env:"FORCEIMPORT_PASSWORD"`
	PasswordFile string `yaml:"password_file" env:"FORCEIMPORT_PASSWORD_FILE"`
}

// RemoteConfig configures remote calls
type RemoteConfig struct {
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// CommitConfig configures the commits created by an import
type CommitConfig struct {
	Message     string `yaml:"message"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// ServeConfig configures the build notification server
type ServeConfig struct {
	ListenAddr  string        `yaml:"listen_addr"`
	SecretFile  string        `yaml:"secret_file"`
	AllowedJobs []string      `yaml:"allowed_jobs"`
	Debounce    time.Duration `yaml:"debounce"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.Configuration("read config file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ferrors.Configuration("parse config file", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns a configuration holding only defaults, for runs driven
// entirely by flags.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadCredentials overlays credentials from the environment, after loading
// envFile (".env" when empty) if it exists. Values from the environment
// replace those of the config file.
func (c *Config) LoadCredentials(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return ferrors.Configuration("load env file", err)
	}

	var fromEnv AuthConfig
	if err := env.Parse(&fromEnv); err != nil {
		return ferrors.Configuration("parse environment", err)
	}
	if fromEnv.Username != "" {
		c.Auth.Username = fromEnv.Username
	}
	if fromEnv.Password != "" {
		c.Auth.Password = fromEnv.Password
	}
	if fromEnv.PasswordFile != "" {
		c.Auth.PasswordFile = fromEnv.PasswordFile
	}
	return nil
}

// expandEnv expands environment variables in all string fields. $WORKSPACE
// is left alone, it is a placeholder resolved against paths.workspace.
func (c *Config) expandEnv() {
	c.Repo.URL = expand(c.Repo.URL)
	c.Paths.Target = expand(c.Paths.Target)
	c.Paths.Workspace = expand(c.Paths.Workspace)
	c.Paths.WorkDir = expand(c.Paths.WorkDir)
	c.Paths.Report = expand(c.Paths.Report)
	c.Manifest.Path = expand(c.Manifest.Path)
	c.Auth.PasswordFile = expand(c.Auth.PasswordFile)
	c.Serve.ListenAddr = expand(c.Serve.ListenAddr)
	c.Serve.SecretFile = expand(c.Serve.SecretFile)
}

func expand(s string) string {
	return os.Expand(s, func(name string) string {
		if name == "WORKSPACE" {
			return "${WORKSPACE}"
		}
		return os.Getenv(name)
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repo.Backend == "" {
		c.Repo.Backend = BackendSVN
	}
	if c.Commit.Message == "" {
		c.Commit.Message = DefaultCommitMessage
	}
	if c.Remote.OperationTimeout == 0 {
		c.Remote.OperationTimeout = DefaultOperationTimeout
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = DefaultListenAddr
	}
	if c.Serve.Debounce == 0 {
		c.Serve.Debounce = DefaultDebounce
	}
	if c.Paths.Workspace == "" {
		c.Paths.Workspace = os.Getenv("WORKSPACE")
	}
}

// Validate checks the configuration for errors. All failures are
// configuration errors.
func (c *Config) Validate() error {
	if c.Repo.URL == "" {
		return ferrors.Configurationf("repo.url is required")
	}
	switch c.Repo.Backend {
	case BackendSVN, BackendGit:
		// valid
	default:
		return ferrors.Configurationf("invalid repo.backend: %s (must be svn or git)", c.Repo.Backend)
	}

	if c.Paths.Target == "" {
		return ferrors.Configurationf("paths.target is required")
	}
	if len(c.Items) == 0 {
		return ferrors.Configurationf("at least one import item is required")
	}
	for i, item := range c.Items {
		if item.Pattern == "" {
			return ferrors.Configurationf("items[%d]: pattern is required", i)
		}
		if strings.ContainsAny(item.Name, `/\`) {
			return ferrors.Configurationf("items[%d]: name %q must not contain a path separator", i, item.Name)
		}
	}

	if c.Auth.Password != "" && c.Auth.PasswordFile != "" {
		return ferrors.Configurationf("auth: only one of password or password_file may be set")
	}
	if c.Remote.OperationTimeout < 0 {
		return ferrors.Configurationf("remote.operation_timeout must not be negative")
	}

	return nil
}

// ValidateServe checks the settings needed by the notification server.
func (c *Config) ValidateServe() error {
	if c.Serve.ListenAddr == "" {
		return ferrors.Configurationf("serve.listen_addr is required")
	}
	if c.Serve.SecretFile == "" {
		return ferrors.Configurationf("serve.secret_file is required")
	}
	return nil
}

// Resolver returns a placeholder resolver carrying the workspace.
func (c *Config) Resolver(version *pathtmpl.VersionInfo) *pathtmpl.Resolver {
	var r *pathtmpl.Resolver
	if version != nil {
		r = pathtmpl.New(*version)
	} else {
		r = pathtmpl.NewUnversioned()
	}
	return r.WithWorkspace(c.Paths.Workspace)
}

// TargetDir returns the target directory with workspace placeholders
// resolved.
func (c *Config) TargetDir() string {
	return filepath.Clean(c.Resolver(nil).ResolveLocal(c.Paths.Target))
}

// ManifestPath returns the manifest path with workspace placeholders
// resolved, or "" when none is configured.
func (c *Config) ManifestPath() string {
	if c.Manifest.Path == "" {
		return ""
	}
	return filepath.Clean(c.Resolver(nil).ResolveLocal(c.Manifest.Path))
}

// WorkDir returns the directory holding the working copies.
func (c *Config) WorkDir() string {
	if c.Paths.WorkDir != "" {
		return filepath.Clean(c.Resolver(nil).ResolveLocal(c.Paths.WorkDir))
	}
	return filepath.Join(c.TargetDir(), DefaultWorkDirName)
}

// ReportPath returns the report file path with workspace placeholders
// resolved, or "" when no report is requested.
func (c *Config) ReportPath() string {
	if c.Paths.Report == "" {
		return ""
	}
	return filepath.Clean(c.Resolver(nil).ResolveLocal(c.Paths.Report))
}

// LockPath returns the path of the lock file guarding the work directory.
func (c *Config) LockPath() string {
	return c.WorkDir() + ".lock"
}

// Password returns the configured password, reading it from the password
// file when one is set.
func (c *Config) Password() (string, error) {
	if c.Auth.PasswordFile == "" {
		return c.Auth.Password, nil
	}
	data, err := os.ReadFile(c.Auth.PasswordFile)
	if err != nil {
		return "", ferrors.Configuration("read password file", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ParseItem parses a "pattern,path,name" triple. Fields follow CSV quoting
// so patterns may contain commas; the name may be omitted.
func ParseItem(s string) (pathtmpl.ImportItem, error) {
	r := csv.NewReader(strings.NewReader(s))
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return pathtmpl.ImportItem{}, ferrors.Configuration("parse item", fmt.Errorf("%q: %w", s, err))
	}

	switch len(fields) {
	case 2:
		return pathtmpl.ImportItem{Pattern: fields[0], Path: fields[1]}, nil
	case 3:
		return pathtmpl.ImportItem{Pattern: fields[0], Path: fields[1], Name: fields[2]}, nil
	default:
		return pathtmpl.ImportItem{}, ferrors.Configurationf("item %q: expected pattern,path[,name]", s)
	}
}
