package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/gofrs/flock"
	"github.com/spf13/pflag"

	"github.com/schaermu/forceimport/internal/config"
	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/git"
	"github.com/schaermu/forceimport/internal/pathtmpl"
	"github.com/schaermu/forceimport/internal/svn"
	"github.com/schaermu/forceimport/internal/sync"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// parseFlags registers the import flags on a fresh flag set and parses args.
func parseFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	t.Cleanup(func() { opts = importOptions{} })

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addImportFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestSetupLogger(t *testing.T) {
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text"},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "configuration", err: fmt.Errorf("failed to load config: %w", ferrors.Configurationf("repo.url is required")), want: 2},
		{name: "failed items", err: fmt.Errorf("1 of 2 %w: %w", errItemsFailed, ferrors.Configurationf("odd")), want: 1},
		{name: "remote", err: ferrors.Remote("connect", "", ferrors.ReasonNetwork, errors.New("down")), want: 1},
		{name: "other", err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	fs := parseFlags(t,
		"-r", "svn://svn.example.com/repo",
		"-t", "_WORKSPACE_/target",
		"--workspace", "/ws",
		"--pom", "_WORKSPACE_/pom.xml",
		"-i", `app-.*\.jar,releases/_MAJOR_._MINOR_/,app.jar`,
		"--item", `"a,b\.txt",docs/`,
		"-u", "ci",
		"-p", "secret",
		"--timeout", "30s",
		"--backend", "git",
	)

	cfg := config.Default()
	cfg.Auth.PasswordFile = "/run/secrets/pw"
	cfg.Items = []pathtmpl.ImportItem{{Pattern: "old", Path: "old/"}}

	if err := applyFlags(cfg, fs); err != nil {
		t.Fatalf("applyFlags() error: %v", err)
	}

	if cfg.Repo.URL != "svn://svn.example.com/repo" {
		t.Errorf("repo url = %q", cfg.Repo.URL)
	}
	if cfg.Repo.Backend != config.BackendGit {
		t.Errorf("backend = %q", cfg.Repo.Backend)
	}
	if got := cfg.TargetDir(); got != "/ws/target" {
		t.Errorf("target dir = %q", got)
	}
	if got := cfg.ManifestPath(); got != "/ws/pom.xml" {
		t.Errorf("manifest path = %q", got)
	}
	if cfg.Auth.Username != "ci" || cfg.Auth.Password != "secret" || cfg.Auth.PasswordFile != "" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Remote.OperationTimeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Remote.OperationTimeout)
	}

	want := []pathtmpl.ImportItem{
		{Pattern: `app-.*\.jar`, Path: "releases/_MAJOR_._MINOR_/", Name: "app.jar"},
		{Pattern: `a,b\.txt`, Path: "docs/"},
	}
	if len(cfg.Items) != len(want) {
		t.Fatalf("items = %+v", cfg.Items)
	}
	for i := range want {
		if cfg.Items[i] != want[i] {
			t.Errorf("items[%d] = %+v, want %+v", i, cfg.Items[i], want[i])
		}
	}
}

func TestApplyFlags_UnsetFlagsKeepConfig(t *testing.T) {
	fs := parseFlags(t)

	cfg := config.Default()
	cfg.Repo.URL = "file:///srv/svn/repo"
	cfg.Commit.Message = "nightly"
	cfg.Items = []pathtmpl.ImportItem{{Pattern: "x", Path: "y/"}}

	if err := applyFlags(cfg, fs); err != nil {
		t.Fatalf("applyFlags() error: %v", err)
	}
	if cfg.Repo.URL != "file:///srv/svn/repo" || cfg.Commit.Message != "nightly" || len(cfg.Items) != 1 {
		t.Errorf("config changed by unset flags: %+v", cfg)
	}
}

func TestApplyFlags_InvalidItem(t *testing.T) {
	fs := parseFlags(t, "-i", "only-a-pattern")

	err := applyFlags(config.Default(), fs)
	if !ferrors.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadConfig_WithExplicitPath(t *testing.T) {
	origCfgFile, origEnvFile := cfgFile, envFile
	t.Cleanup(func() { cfgFile, envFile = origCfgFile, origEnvFile })

	tmpDir := t.TempDir()
	configContent := []byte(`repo:
  url: "file:///srv/svn/repo"
paths:
  target: "` + filepath.Join(tmpDir, "target") + `"
items:
  - pattern: 'app-.*\.jar'
    path: "releases/_MAJOR_._MINOR_/"
    name: "app.jar"
`)
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, configContent, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfgFile = cfgPath
	envFile = filepath.Join(tmpDir, "missing.env")

	cfg, err := loadConfig(quietLogger(), parseFlags(t, "-u", "builder"))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Auth.Username != "builder" {
		t.Errorf("expected flag to override username, got %q", cfg.Auth.Username)
	}
	if len(cfg.Items) != 1 {
		t.Errorf("expected one item, got %d", len(cfg.Items))
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")

	_, err := loadConfig(quietLogger(), parseFlags(t))
	if !ferrors.IsConfiguration(err) {
		t.Fatalf("expected configuration error for missing config file, got %v", err)
	}
}

func TestLoadConfig_FlagsOnly(t *testing.T) {
	origCfgFile, origEnvFile := cfgFile, envFile
	t.Cleanup(func() { cfgFile, envFile = origCfgFile, origEnvFile })
	t.Setenv("HOME", t.TempDir())
	cfgFile = ""
	envFile = filepath.Join(t.TempDir(), "missing.env")

	cfg, err := loadConfig(quietLogger(), parseFlags(t, "-r", "file:///repo", "-t", "/build/target", "-i", `.*\.jar,lib/`))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Repo.Backend != config.BackendSVN {
		t.Errorf("expected default backend svn, got %q", cfg.Repo.Backend)
	}
}

func TestLoadConfig_FlagsOnlyMissingRepo(t *testing.T) {
	origCfgFile, origEnvFile := cfgFile, envFile
	t.Cleanup(func() { cfgFile, envFile = origCfgFile, origEnvFile })
	t.Setenv("HOME", t.TempDir())
	cfgFile = ""
	envFile = filepath.Join(t.TempDir(), "missing.env")

	_, err := loadConfig(quietLogger(), parseFlags(t, "-t", "/build/target"))
	if exitCode(err) != 2 {
		t.Fatalf("expected configuration failure (exit 2), got %v", err)
	}
}

func TestNewClient(t *testing.T) {
	cfg := config.Default()
	cfg.Repo.URL = "file:///srv/svn/repo"
	cfg.Paths.Target = t.TempDir()

	client, err := newClient(cfg)
	if err != nil {
		t.Fatalf("newClient() error: %v", err)
	}
	if _, ok := client.(*svn.ShellClient); !ok {
		t.Errorf("expected svn client, got %T", client)
	}

	cfg.Repo.Backend = config.BackendGit
	client, err = newClient(cfg)
	if err != nil {
		t.Fatalf("newClient() error: %v", err)
	}
	if _, ok := client.(*git.Client); !ok {
		t.Errorf("expected git client, got %T", client)
	}

	cfg.Auth.PasswordFile = filepath.Join(t.TempDir(), "missing")
	if _, err := newClient(cfg); !ferrors.IsConfiguration(err) {
		t.Errorf("expected configuration error for missing password file, got %v", err)
	}
}

func TestRunOnce_LockHeld(t *testing.T) {
	cfg := config.Default()
	cfg.Repo.URL = "file:///srv/svn/repo"
	cfg.Paths.Target = t.TempDir()
	cfg.Items = []pathtmpl.ImportItem{{Pattern: `.*`, Path: "lib/"}}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("failed to take lock: %v", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	_, err = runOnce(context.Background(), cfg, quietLogger(), false)
	if err == nil {
		t.Fatal("expected error while another run holds the lock")
	}
}

// newGitRemote creates a bare repository holding one commit.
func newGitRemote(t *testing.T) string {
	t.Helper()

	bare := filepath.Join(t.TempDir(), "remote.git")
	if _, err := gogit.PlainInit(bare, true); err != nil {
		t.Fatal(err)
	}

	seedDir := t.TempDir()
	seed, err := gogit.PlainInit(seedDir, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(seedDir, "README.md"), []byte("seed"), 0644); err != nil {
		t.Fatal(err)
	}
	wt, err := seed.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Commit("initial commit", &gogit.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := seed.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{bare}}); err != nil {
		t.Fatal(err)
	}
	if err := seed.Push(&gogit.PushOptions{RemoteName: "origin"}); err != nil {
		t.Fatal(err)
	}
	return bare
}

func TestRunOnce_GitBackend(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "target")
	if err := os.MkdirAll(target, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "app-1.0.jar"), []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Repo.URL = newGitRemote(t)
	cfg.Repo.Backend = config.BackendGit
	cfg.Paths.Target = target
	cfg.Paths.Report = filepath.Join(root, "report.json")
	cfg.Items = []pathtmpl.ImportItem{{Pattern: `app-.*\.jar`, Path: "lib/", Name: "app.jar"}}

	report, err := runOnce(context.Background(), cfg, quietLogger(), false)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if report.Totals.New != 1 {
		t.Errorf("expected 1 new file, got %+v", report.Totals)
	}
	if _, err := os.Stat(cfg.Paths.Report); err != nil {
		t.Errorf("report not written: %v", err)
	}

	if err := os.WriteFile(filepath.Join(target, "app-1.0.jar"), []byte("v2"), 0644); err != nil {
		t.Fatal(err)
	}
	report, err = runOnce(context.Background(), cfg, quietLogger(), false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(report.Items) != 1 || len(report.Items[0].Files) != 1 || report.Items[0].Files[0].Outcome != sync.OutcomeReplaced {
		t.Errorf("expected replaced file, got %+v", report.Items)
	}
	if report.Items[0].Commit == nil {
		t.Error("expected a commit for the replaced file")
	}
}

func TestRunOnce_FailedItemsExitOne(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Repo.URL = filepath.Join(root, "missing.git")
	cfg.Repo.Backend = config.BackendGit
	cfg.Paths.Target = root
	cfg.Items = []pathtmpl.ImportItem{{Pattern: `.*`, Path: "lib/"}}

	report, err := runOnce(context.Background(), cfg, quietLogger(), false)
	if err == nil {
		t.Fatal("expected failure when the remote does not exist")
	}
	if report == nil || !report.Failed() {
		t.Errorf("expected a failed report, got %+v", report)
	}
	if got := exitCode(err); got != 1 {
		t.Errorf("exitCode() = %d, want 1", got)
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	t.Helper()
	// versionCmd.Run simply prints version info; should not panic.
	versionCmd.Run(versionCmd, []string{})
}
