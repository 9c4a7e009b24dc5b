//go:build integration

package tier1

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// importArgs returns the flags for the standard release item.
func importArgs(h *Harness, extra ...string) []string {
	args := []string{
		"import",
		"--repo", h.RepoURL,
		"--target", "_WORKSPACE_/target",
		"--pom", "$WORKSPACE/pom.xml",
		"--item", `app-.*\.jar,_ROOT_/releases/_MAJOR_._MINOR_/,app.jar`,
		"--item", `docs,site/`,
		"--env-file", filepath.Join(h.Workspace, "none.env"),
	}
	return append(args, extra...)
}

func TestTier1Import(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t)
	h.WritePOM("2.4.1-SNAPSHOT")
	h.WriteTarget("app-2.4.1-SNAPSHOT.jar", "jar v1")
	h.WriteTarget("docs/index.html", "<h1>v1</h1>")
	h.WriteTarget("build.log", "not imported")

	t.Run("A_InitialImport", func(t *testing.T) {
		res := h.MustRun(ctx, importArgs(h)...)
		t.Logf("stdout: %s", res.Stdout)

		got, err := h.Cat(ctx, "releases/2.4/app.jar")
		if err != nil {
			t.Fatalf("cat imported jar: %v", err)
		}
		if got != "jar v1" {
			t.Errorf("imported jar = %q", got)
		}
		if got, _ := h.Cat(ctx, "site/docs/index.html"); got != "<h1>v1</h1>" {
			t.Errorf("imported docs = %q", got)
		}
		if h.Exists(ctx, "releases/2.4/build.log") {
			t.Error("unmatched file was imported")
		}
	})

	t.Run("B_NoOpRun", func(t *testing.T) {
		before := h.Revision(ctx)
		h.MustRun(ctx, importArgs(h)...)
		if after := h.Revision(ctx); after != before {
			t.Errorf("no-op run created revisions %d..%d", before, after)
		}
	})

	t.Run("C_ChangedContentCommittedOnce", func(t *testing.T) {
		h.WriteTarget("app-2.4.1-SNAPSHOT.jar", "jar v2")
		h.WriteTarget("docs/index.html", "<h1>v2</h1>")
		h.WriteTarget("docs/changes.html", "new page")

		before := h.Revision(ctx)
		h.MustRun(ctx, importArgs(h)...)

		// One commit per item.
		if after := h.Revision(ctx); after != before+2 {
			t.Errorf("expected 2 new revisions, got %d", after-before)
		}
		if got, _ := h.Cat(ctx, "releases/2.4/app.jar"); got != "jar v2" {
			t.Errorf("replaced jar = %q", got)
		}
		if got, _ := h.Cat(ctx, "site/docs/changes.html"); got != "new page" {
			t.Errorf("added page = %q", got)
		}
	})

	t.Run("D_DryRun", func(t *testing.T) {
		h.WriteTarget("app-2.4.1-SNAPSHOT.jar", "jar v3")
		reportPath := filepath.Join(h.Workspace, "report.json")

		before := h.Revision(ctx)
		h.MustRun(ctx, importArgs(h, "--dry-run", "--report", reportPath)...)
		if after := h.Revision(ctx); after != before {
			t.Errorf("dry run created revisions %d..%d", before, after)
		}

		data, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("read report: %v", err)
		}
		var report struct {
			DryRun bool `json:"dry_run"`
			Items  []struct {
				Files []struct {
					Outcome string `json:"outcome"`
					Planned bool   `json:"planned"`
				} `json:"files"`
			} `json:"items"`
		}
		if err := json.Unmarshal(data, &report); err != nil {
			t.Fatalf("parse report: %v", err)
		}
		if !report.DryRun || len(report.Items) != 2 {
			t.Fatalf("unexpected report: %s", data)
		}
		jar := report.Items[0].Files[0]
		if jar.Outcome != "replaced" || !jar.Planned {
			t.Errorf("expected planned replacement, got %+v", jar)
		}
	})

	t.Run("E_VersionChangeCreatesNewDirectory", func(t *testing.T) {
		h.WritePOM("2.5.0")
		h.MustRun(ctx, importArgs(h)...)
		if got, _ := h.Cat(ctx, "releases/2.5/app.jar"); got != "jar v3" {
			t.Errorf("jar in new version directory = %q", got)
		}
		if got, _ := h.Cat(ctx, "releases/2.4/app.jar"); got != "jar v2" {
			t.Errorf("old version directory changed: %q", got)
		}
	})
}

func TestTier1RetryAfterRejectedCommit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t)
	args := []string{"import", "--repo", h.RepoURL, "--target", h.Target,
		"--item", `app\.jar,lib/`, "--item", `dist,site/`}
	h.WriteTarget("app.jar", "v1")
	h.WriteTarget("dist/index.html", "v1")
	h.MustRun(ctx, args...)

	h.WriteTarget("app.jar", "v2")
	h.WriteTarget("dist/new.html", "new")
	allow := h.RejectCommits()
	if res := h.Run(ctx, args...); res.ExitCode != 1 {
		t.Fatalf("expected exit code 1 while commits are rejected, got %d\n%s", res.ExitCode, res.Stdout)
	}
	allow()

	h.MustRun(ctx, args...)

	if got, _ := h.Cat(ctx, "lib/app.jar"); got != "v2" {
		t.Errorf("lib/app.jar = %q after retry", got)
	}
	if got, _ := h.Cat(ctx, "site/dist/new.html"); got != "new" {
		t.Errorf("site/dist/new.html = %q after retry", got)
	}
}

func TestTier1CollidingNames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t)
	h.WriteTarget("a.war", "a")
	h.WriteTarget("b.war", "b")

	h.MustRun(ctx, "import", "--repo", h.RepoURL, "--target", h.Target, "--item", `.*\.war,deploy/,app.war`)

	for path, want := range map[string]string{"deploy/app.war": "a", "deploy/1app.war": "b"} {
		if got, _ := h.Cat(ctx, path); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestTier1ExitCodes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t)
	h.WriteTarget("app.jar", "a")

	t.Run("ConfigurationError", func(t *testing.T) {
		res := h.Run(ctx, "import", "--repo", h.RepoURL, "--target", h.Target)
		if res.ExitCode != 2 {
			t.Errorf("expected exit code 2 without items, got %d\n%s", res.ExitCode, res.Stdout)
		}
	})

	t.Run("UnreachableRepository", func(t *testing.T) {
		res := h.Run(ctx, "import",
			"--repo", "file://"+filepath.ToSlash(filepath.Join(h.Workspace, "missing-repo")),
			"--target", h.Target,
			"--item", `app\.jar,lib/`)
		if res.ExitCode != 1 {
			t.Errorf("expected exit code 1, got %d", res.ExitCode)
		}
		if !strings.Contains(res.Stdout, "import failed") {
			t.Errorf("expected item failure in log output:\n%s", res.Stdout)
		}
	})
}
