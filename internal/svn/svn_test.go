package svn

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/vcs"
)

func TestGlobalArgs(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     []string
	}{
		{"anonymous", "", "", []string{"--non-interactive"}},
		{"username only", "ci", "", []string{"--non-interactive", "--username", "ci", "--no-auth-cache"}},
		{"with password", "ci", "secret", []string{"--non-interactive", "--username", "ci", "--no-auth-cache", "--password-from-stdin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewShellClient("https://svn.example.com/repo", tt.username, tt.password)
			assert.Equal(t, tt.want, c.globalArgs())
			assert.NotContains(t, c.globalArgs(), "secret")
		})
	}
}

func TestRemoteURL(t *testing.T) {
	c := NewShellClient("https://svn.example.com/repo/trunk/", "", "")

	u, err := c.remoteURL("")
	require.NoError(t, err)
	assert.Equal(t, "https://svn.example.com/repo/trunk", u)

	u, err = c.remoteURL("/releases/1.2/app.jar")
	require.NoError(t, err)
	assert.Equal(t, "https://svn.example.com/repo/trunk/releases/1.2/app.jar", u)

	u, err = c.remoteURL("docs/user guide.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://svn.example.com/repo/trunk/docs/user%20guide.pdf", u)
}

func TestPegSafe(t *testing.T) {
	assert.Equal(t, "/wc/icon.png", pegSafe("/wc/icon.png"))
	assert.Equal(t, "/wc/icon@2x.png@", pegSafe("/wc/icon@2x.png"))
}

func TestClassify(t *testing.T) {
	exitErr := errors.New("exit status 1")

	tests := []struct {
		name   string
		stderr string
		reason ferrors.Reason
		notWC  bool
	}{
		{"auth", "svn: E170001: Authorization failed", ferrors.ReasonAuth, false},
		{"credentials exhausted", "svn: E215004: No more credentials or we tried too many times.", ferrors.ReasonAuth, false},
		{"connection refused", "svn: E170013: Unable to connect to a repository at URL 'https://x'\nsvn: E000111: Error running context: Connection refused", ferrors.ReasonNetwork, false},
		{"unknown host", "svn: E670002: Name or service not known", ferrors.ReasonNetwork, false},
		{"missing url", "svn: warning: W170000: URL 'file:///r/x' non-existent in revision 3\nsvn: E200009: Could not display info for all targets because some targets don't exist", ferrors.ReasonNotFound, false},
		{"out of date", "svn: E155011: File '/wc/app.jar' is out of date", ferrors.ReasonConflict, false},
		{"already exists", "svn: E160020: Path 'lib' already exists", ferrors.ReasonConflict, false},
		{"not a working copy", "svn: E155007: '/tmp/x' is not a working copy", ferrors.ReasonNotFound, true},
		{"unversioned node", "svn: warning: W155010: The node '/wc/x' was not found.\nsvn: E200009: Could not display info", ferrors.ReasonNotFound, true},
		{"unclassified", "svn: E999999: something odd", ferrors.ReasonUnknown, false},
		{"no output", "", ferrors.ReasonUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("check", "file:///r/x", exitErr, tt.stderr)
			assert.True(t, ferrors.IsRemote(err))
			assert.Equal(t, tt.reason, ferrors.ReasonOf(err))
			assert.Equal(t, tt.notWC, errors.Is(err, vcs.ErrNotWorkingCopy))
			if tt.stderr != "" && !tt.notWC {
				assert.ErrorIs(t, err, exitErr)
			}
		})
	}
}

func TestClassify_MissingBinary(t *testing.T) {
	_, err := exec.LookPath("forceimport-no-such-svn")
	require.Error(t, err)

	got := classify("connect", "file:///r", err, "")
	assert.True(t, ferrors.IsRemote(got))
	assert.Equal(t, ferrors.ReasonUnknown, ferrors.ReasonOf(got))
}

// newRepo creates an empty file:// repository, skipping the test when the
// svn tools are not installed.
func newRepo(t *testing.T) string {
	t.Helper()
	for _, bin := range []string{"svn", "svnadmin"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}

	dir := filepath.Join(t.TempDir(), "repo")
	if out, err := exec.Command("svnadmin", "create", dir).CombinedOutput(); err != nil {
		t.Fatalf("svnadmin create: %v: %s", err, out)
	}
	return "file://" + filepath.ToSlash(dir)
}

func TestShellClient_ImportCheckoutCommit(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient(newRepo(t), "", "")

	require.NoError(t, c.Connect(ctx))

	kind, err := c.Kind(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, vcs.KindDir, kind)

	kind, err = c.Kind(ctx, "lib")
	require.NoError(t, err)
	assert.Equal(t, vcs.KindNone, kind)

	info, err := c.Mkdir(ctx, "lib", "forceimport: creating directory lib")
	require.NoError(t, err)
	assert.Equal(t, vcs.Revision("1"), info.Revision)

	_, err = c.Mkdir(ctx, "lib", "again")
	assert.True(t, ferrors.IsRemote(err))

	src := filepath.Join(t.TempDir(), "app.jar")
	require.NoError(t, os.WriteFile(src, []byte("v1"), 0644))
	info, err = c.Import(ctx, src, "lib/app.jar", "forceimport: importing lib/app.jar")
	require.NoError(t, err)
	assert.Equal(t, vcs.Revision("2"), info.Revision)
	assert.False(t, info.Date.IsZero())

	kind, err = c.Kind(ctx, "lib/app.jar")
	require.NoError(t, err)
	assert.Equal(t, vcs.KindFile, kind)

	wc := filepath.Join(t.TempDir(), "svntemp", "lib")
	rev, err := c.Checkout(ctx, "lib", wc)
	require.NoError(t, err)
	assert.Equal(t, vcs.Revision("2"), rev)

	data, err := os.ReadFile(filepath.Join(wc, "app.jar"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	changes, err := c.Changes(ctx, wc)
	require.NoError(t, err)
	assert.True(t, changes.Empty())

	require.NoError(t, os.WriteFile(filepath.Join(wc, "app.jar"), []byte("v2"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(wc, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(wc, "docs", "notes.txt"), []byte("n"), 0644))
	require.NoError(t, c.Add(ctx, filepath.Join(wc, "docs", "notes.txt")))

	changes, err = c.Changes(ctx, wc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []vcs.Change{
		{Path: filepath.Join(wc, "app.jar"), Status: vcs.StatusModified},
		{Path: filepath.Join(wc, "docs"), Status: vcs.StatusAdded},
		{Path: filepath.Join(wc, "docs", "notes.txt"), Status: vcs.StatusAdded},
	}, changes.Changes)

	info, err = c.Commit(ctx, changes, "Jenkins")
	require.NoError(t, err)
	assert.Equal(t, vcs.Revision("3"), info.Revision)

	changes, err = c.Changes(ctx, wc)
	require.NoError(t, err)
	assert.True(t, changes.Empty())

	rev, err = c.Update(ctx, wc)
	require.NoError(t, err)
	assert.Equal(t, vcs.Revision("3"), rev)

	wcInfo, err := c.Info(ctx, filepath.Join(wc, "app.jar"))
	require.NoError(t, err)
	assert.Equal(t, vcs.Revision("3"), wcInfo.Commit.Revision)
}

func TestShellClient_RevertDiscardsUncommittedWork(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient(newRepo(t), "", "")

	src := filepath.Join(t.TempDir(), "site")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("v1"), 0644))
	_, err := c.Import(ctx, src, "site", "forceimport: importing site")
	require.NoError(t, err)

	wc := filepath.Join(t.TempDir(), "site")
	_, err = c.Checkout(ctx, "site", wc)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(wc, "index.html"), []byte("v2"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(wc, "img"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(wc, "img", "logo.png"), []byte("png"), 0644))
	require.NoError(t, c.Add(ctx, filepath.Join(wc, "img", "logo.png")))
	require.NoError(t, os.WriteFile(filepath.Join(wc, "stray.tmp"), []byte("x"), 0644))

	require.NoError(t, c.Revert(ctx, wc))

	data, err := os.ReadFile(filepath.Join(wc, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	assert.NoDirExists(t, filepath.Join(wc, "img"))
	assert.NoFileExists(t, filepath.Join(wc, "stray.tmp"))

	changes, err := c.Changes(ctx, wc)
	require.NoError(t, err)
	assert.True(t, changes.Empty())
}

func TestShellClient_RevertNotWorkingCopy(t *testing.T) {
	c := NewShellClient(newRepo(t), "", "")

	err := c.Revert(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, vcs.ErrNotWorkingCopy)
}

func TestShellClient_UpdateNotWorkingCopy(t *testing.T) {
	c := NewShellClient(newRepo(t), "", "")

	_, err := c.Update(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, vcs.ErrNotWorkingCopy)
}

func TestShellClient_ConnectMissingRepository(t *testing.T) {
	repo := newRepo(t)
	c := NewShellClient(repo+"-missing", "", "")

	err := c.Connect(context.Background())
	assert.True(t, ferrors.IsRemote(err))
}
