package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/schaermu/forceimport/internal/activation"
	"github.com/schaermu/forceimport/internal/config"
	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/git"
	"github.com/schaermu/forceimport/internal/svn"
	"github.com/schaermu/forceimport/internal/sync"
	"github.com/schaermu/forceimport/internal/vcs"
	"github.com/schaermu/forceimport/internal/webhook"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string
	dryRun    bool

	opts importOptions
)

// importOptions holds the flags that override the config file.
type importOptions struct {
	repo      string
	backend   string
	target    string
	workspace string
	pom       string
	items     []string
	username  string
	password  string
	report    string
	message   string
	timeout   time.Duration
}

// errItemsFailed marks runs in which at least one import item failed.
var errItemsFailed = errors.New("import items failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status: 2 for invalid
// configuration, 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errItemsFailed):
		return 1
	case ferrors.IsConfiguration(err):
		return 2
	default:
		return 1
	}
}

var rootCmd = &cobra.Command{
	Use:   "forceimport",
	Short: "Force-import build output into a Subversion repository",
	Long: `forceimport reconciles a build output directory with a path hierarchy in a
remote repository.

Every configured item selects files and folders of the target directory by
regular expression. Matches missing remotely are imported, identical ones are
left alone and changed ones are overwritten in a working copy and committed,
one commit per item.`,
	SilenceUsage: true,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run a single import",
	Long: `Import resolves the configured items against the project version, matches
them in the target directory and brings the repository in line with them.

Items are given as "pattern,path[,name]". The path may use _ROOT_, _MAJOR_,
_MINOR_ and _PATCH_; target and manifest paths may use _WORKSPACE_.`,
	Example: `  forceimport import -r https://svn.example.com/repo -t '$WORKSPACE/target' \
    --pom '$WORKSPACE/pom.xml' -i 'app-.*\.jar,releases/_MAJOR_._MINOR_/,app.jar'`,
	RunE: runImport,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run imports on build notifications",
	Long: `Serve performs an initial import and then listens for signed build
notifications, running an import for every accepted one.

Notifications are JSON objects {"job", "build", "status"} signed with
HMAC-SHA256 of the body in the X-Forceimport-Signature-256 header. Sockets
passed by systemd socket activation are used when present.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("forceimport %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/forceimport/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with credentials (default .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	addImportFlags(importCmd.Flags())
	importCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	addImportFlags(serveCmd.Flags())

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func addImportFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&opts.repo, "repo", "r", "", "repository URL")
	fs.StringVar(&opts.backend, "backend", "", "repository type (svn, git)")
	fs.StringVarP(&opts.target, "target", "t", "", "build output directory")
	fs.StringVar(&opts.workspace, "workspace", "", "workspace directory substituted for _WORKSPACE_ (default $WORKSPACE)")
	fs.StringVar(&opts.pom, "pom", "", "project manifest the version is read from")
	fs.StringArrayVarP(&opts.items, "item", "i", nil, "import item pattern,path[,name] (repeatable)")
	fs.StringVarP(&opts.username, "username", "u", "", "repository username")
	fs.StringVarP(&opts.password, "password", "p", "", "repository password")
	fs.StringVar(&opts.report, "report", "", "write a JSON report to this file")
	fs.StringVarP(&opts.message, "message", "m", "", "commit message for replaced files")
	fs.DurationVar(&opts.timeout, "timeout", 0, "timeout for each repository operation (0 keeps the configured value)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	report, err := runOnce(ctx, cfg, logger, dryRun)
	if err != nil {
		logger.Error("import failed", "error", err)
		return err
	}

	if report.DryRun {
		logger.Info("dry run complete, no changes were made")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	listeners, err := activation.Listeners()
	if err != nil {
		return fmt.Errorf("socket activation: %w", err)
	}
	if len(listeners) > 0 {
		logger.Info("using systemd socket activation", "sockets", len(listeners), "names", activation.Names())
	}

	server, err := webhook.NewServer(cfg, func(ctx context.Context) error {
		_, err := runOnce(ctx, cfg, logger, false)
		return err
	}, logger)
	if err != nil {
		return err
	}

	return server.Serve(ctx, listeners)
}

// runOnce performs one import under the work directory lock and writes the
// report if requested.
func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, dryRun bool) (*sync.Report, error) {
	lockPath := cfg.LockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, ferrors.Filesystem("create lock directory", lockPath, err)
	}

	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, ferrors.Filesystem("lock", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("another import is running (lock %s is held)", lockPath)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	engine := sync.NewEngine(cfg, client, logger, dryRun)
	report, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}

	if path := cfg.ReportPath(); path != "" {
		if err := report.WriteFile(path); err != nil {
			logger.Warn("failed to write report", "path", path, "error", err)
		} else {
			logger.Info("report written", "path", path)
		}
	}

	if report.Failed() {
		return report, fmt.Errorf("%d of %d %w: %w", report.Totals.Failed, len(report.Items), errItemsFailed, report.Err())
	}
	return report, nil
}

// newClient creates the repository client for the configured backend.
func newClient(cfg *config.Config) (vcs.Client, error) {
	password, err := cfg.Password()
	if err != nil {
		return nil, err
	}

	switch cfg.Repo.Backend {
	case config.BackendGit:
		return git.NewClient(git.Options{
			URL:         cfg.Repo.URL,
			Dir:         cfg.WorkDir(),
			Username:    cfg.Auth.Username,
			Password:    password,
			AuthorName:  cfg.Commit.AuthorName,
			AuthorEmail: cfg.Commit.AuthorEmail,
		}), nil
	default:
		return svn.NewShellClient(cfg.Repo.URL, cfg.Auth.Username, password), nil
	}
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}

	return slog.New(handler)
}

// loadConfig reads the config file, if any, and overlays environment
// credentials and command line flags, in that order.
func loadConfig(logger *slog.Logger, flags *pflag.FlagSet) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			candidate := filepath.Join(home, ".config", "forceimport", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
			}
		}
	}

	var cfg *config.Config
	if configPath != "" {
		logger.Info("loading configuration", "path", configPath)
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		logger.Debug("no configuration file, using flags only")
		cfg = config.Default()
	}

	if err := cfg.LoadCredentials(envFile); err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, flags); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"repo", cfg.Repo.URL,
		"backend", cfg.Repo.Backend,
		"target", cfg.TargetDir(),
		"work_dir", cfg.WorkDir(),
		"items", len(cfg.Items))

	return cfg, nil
}

// applyFlags copies explicitly set flags over cfg. Items given on the
// command line replace those of the config file.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("repo", &cfg.Repo.URL, opts.repo)
	set("target", &cfg.Paths.Target, opts.target)
	set("workspace", &cfg.Paths.Workspace, opts.workspace)
	set("pom", &cfg.Manifest.Path, opts.pom)
	set("username", &cfg.Auth.Username, opts.username)
	set("report", &cfg.Paths.Report, opts.report)
	set("message", &cfg.Commit.Message, opts.message)

	if flags.Changed("password") {
		cfg.Auth.Password = opts.password
		cfg.Auth.PasswordFile = ""
	}
	if flags.Changed("backend") {
		cfg.Repo.Backend = config.Backend(opts.backend)
	}
	if flags.Changed("timeout") && opts.timeout > 0 {
		cfg.Remote.OperationTimeout = opts.timeout
	}

	if flags.Changed("item") {
		cfg.Items = cfg.Items[:0]
		for _, s := range opts.items {
			item, err := config.ParseItem(s)
			if err != nil {
				return err
			}
			cfg.Items = append(cfg.Items, item)
		}
	}
	return nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
