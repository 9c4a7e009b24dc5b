//go:build integration

package tier1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/schaermu/forceimport/internal/testutil"
)

const defaultTimeout = 5 * time.Minute

var (
	buildOnce sync.Once
	binary    string
	buildErr  error
)

// Harness runs the forceimport binary against a throwaway Subversion
// repository reachable through a file:// URL.
type Harness struct {
	t         *testing.T
	binary    string
	repoDir   string
	RepoURL   string
	Workspace string
	Target    string
}

// Result is the outcome of one binary invocation
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// NewHarness creates an empty repository and workspace. The test is skipped
// when the svn tools are not installed.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	for _, tool := range []string{"svn", "svnadmin"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not installed", tool)
		}
	}

	bin := buildBinary(t)

	root := t.TempDir()
	repoDir := filepath.Join(root, "repo")
	out, err := exec.Command("svnadmin", "create", repoDir).CombinedOutput()
	if err != nil {
		t.Fatalf("svnadmin create: %v\n%s", err, out)
	}

	h := &Harness{
		t:         t,
		binary:    bin,
		repoDir:   repoDir,
		RepoURL:   "file://" + filepath.ToSlash(repoDir),
		Workspace: filepath.Join(root, "workspace"),
	}
	h.Target = filepath.Join(h.Workspace, "target")
	if err := os.MkdirAll(h.Target, 0755); err != nil {
		t.Fatalf("create target: %v", err)
	}
	return h
}

// buildBinary compiles the command once per test process.
func buildBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		projectRoot, err := testutil.FindProjectRoot()
		if err != nil {
			buildErr = fmt.Errorf("get project root: %w", err)
			return
		}
		dir, err := os.MkdirTemp("", "forceimport-tier1-")
		if err != nil {
			buildErr = err
			return
		}
		binary = filepath.Join(dir, "forceimport")

		cmd := exec.Command("go", "build", "-o", binary, "./cmd/forceimport")
		cmd.Dir = projectRoot
		cmd.Stdout = &testWriter{t: t, prefix: "[build] "}
		cmd.Stderr = &testWriter{t: t, prefix: "[build] "}
		if err := cmd.Run(); err != nil {
			buildErr = fmt.Errorf("go build: %w", err)
		}
	})
	if buildErr != nil {
		t.Fatalf("build binary: %v", buildErr)
	}
	return binary
}

// Run invokes the binary with WORKSPACE pointing at the harness workspace.
func (h *Harness) Run(ctx context.Context, args ...string) Result {
	h.t.Helper()

	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Dir = h.Workspace
	cmd.Env = append(os.Environ(), "WORKSPACE="+h.Workspace, "HOME="+h.Workspace)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			h.t.Fatalf("run %v: %v", args, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}
}

// MustRun runs the binary and fails the test on a non-zero exit code
func (h *Harness) MustRun(ctx context.Context, args ...string) Result {
	h.t.Helper()
	res := h.Run(ctx, args...)
	if res.ExitCode != 0 {
		h.t.Fatalf("forceimport failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			res.ExitCode, res.Stdout, res.Stderr, args)
	}
	return res
}

// WriteTarget writes a file below the target directory
func (h *Harness) WriteTarget(rel, content string) {
	h.t.Helper()
	p := filepath.Join(h.Target, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		h.t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		h.t.Fatalf("write file: %v", err)
	}
}

// WritePOM writes a minimal Maven descriptor to the workspace
func (h *Harness) WritePOM(version string) {
	h.t.Helper()
	pom := `<?xml version="1.0" encoding="UTF-8"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
  <modelVersion>4.0.0</modelVersion>
  <groupId>com.example</groupId>
  <artifactId>app</artifactId>
  <version>` + version + `</version>
</project>
`
	if err := os.WriteFile(filepath.Join(h.Workspace, "pom.xml"), []byte(pom), 0644); err != nil {
		h.t.Fatalf("write pom: %v", err)
	}
}

// RejectCommits installs a pre-commit hook refusing every commit until the
// returned function is called.
func (h *Harness) RejectCommits() func() {
	h.t.Helper()
	hook := filepath.Join(h.repoDir, "hooks", "pre-commit")
	script := "#!/bin/sh\necho 'commits are frozen' >&2\nexit 1\n"
	if err := os.WriteFile(hook, []byte(script), 0755); err != nil {
		h.t.Fatalf("write pre-commit hook: %v", err)
	}
	return func() {
		h.t.Helper()
		if err := os.Remove(hook); err != nil {
			h.t.Fatalf("remove pre-commit hook: %v", err)
		}
	}
}

// Cat returns the content of a file at HEAD
func (h *Harness) Cat(ctx context.Context, path string) (string, error) {
	h.t.Helper()
	return h.svn(ctx, "cat", h.RepoURL+"/"+path)
}

// Exists reports whether path exists at HEAD
func (h *Harness) Exists(ctx context.Context, path string) bool {
	h.t.Helper()
	_, err := h.svn(ctx, "info", h.RepoURL+"/"+path)
	return err == nil
}

// Revision returns the youngest revision of the repository
func (h *Harness) Revision(ctx context.Context) int {
	h.t.Helper()
	out, err := h.svn(ctx, "info", "--show-item", "revision", h.RepoURL)
	if err != nil {
		h.t.Fatalf("svn info: %v", err)
	}
	rev, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		h.t.Fatalf("parse revision %q: %v", out, err)
	}
	return rev
}

func (h *Harness) svn(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "svn", append([]string{"--non-interactive"}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("svn %v: %w: %s", args, err, stderr.String())
	}
	return stdout.String(), nil
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
