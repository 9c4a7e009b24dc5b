// Package svn implements vcs.Client on top of the svn command line client.
package svn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/vcs"
)

// ShellClient implements vcs.Client by shelling out to the svn command.
type ShellClient struct {
	url      string
	username string
	password string
	binary   string
}

var _ vcs.Client = (*ShellClient)(nil)

// NewShellClient creates a client for the repository at repoURL. Remote paths
// passed to the client are resolved below repoURL.
func NewShellClient(repoURL, username, password string) *ShellClient {
	return &ShellClient{
		url:      strings.TrimRight(repoURL, "/"),
		username: username,
		password: password,
		binary:   "svn",
	}
}

// Connect checks that the repository root answers with the configured
// credentials.
func (c *ShellClient) Connect(ctx context.Context) error {
	if _, err := c.run(ctx, "connect", c.url, "info", "--xml", c.url); err != nil {
		return err
	}
	return nil
}

// Kind reports what exists at path in HEAD. A missing path is KindNone.
func (c *ShellClient) Kind(ctx context.Context, path string) (vcs.NodeKind, error) {
	target, err := c.remoteURL(path)
	if err != nil {
		return vcs.KindNone, err
	}

	out, err := c.run(ctx, "check", target, "info", "--xml", target)
	if err != nil {
		if ferrors.ReasonOf(err) == ferrors.ReasonNotFound {
			return vcs.KindNone, nil
		}
		return vcs.KindNone, err
	}

	entry, err := parseInfo(out)
	if err != nil {
		return vcs.KindNone, ferrors.Remote("check", target, ferrors.ReasonUnknown, err)
	}
	return entry.kind, nil
}

// Checkout creates a working copy of path in dir. Unversioned files already
// present in dir are taken over.
func (c *ShellClient) Checkout(ctx context.Context, path, dir string) (vcs.Revision, error) {
	target, err := c.remoteURL(path)
	if err != nil {
		return "", err
	}

	if _, err := c.run(ctx, "checkout", target, "checkout", "--force", target, pegSafe(dir)); err != nil {
		return "", err
	}
	return c.workingRevision(ctx, dir)
}

// Revert undoes every local modification below dir and deletes unversioned
// and ignored items. Nested working copies are left in place. A directory
// that is not part of a working copy yields an error wrapping
// vcs.ErrNotWorkingCopy.
func (c *ShellClient) Revert(ctx context.Context, dir string) error {
	if _, err := c.run(ctx, "revert", dir, "revert", "--recursive", pegSafe(dir)); err != nil {
		return err
	}

	out, err := c.run(ctx, "status", dir, "status", "--xml", "--no-ignore", pegSafe(dir))
	if err != nil {
		return err
	}
	stray, err := parseUnversioned(out)
	if err != nil {
		return ferrors.Remote("status", dir, ferrors.ReasonUnknown, err)
	}

	root := filepath.Clean(dir)
	for _, p := range stray {
		p = filepath.Clean(p)
		if p == root {
			continue
		}
		if _, err := os.Stat(filepath.Join(p, ".svn")); err == nil {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return ferrors.Filesystem("remove unversioned", p, err)
		}
	}
	return nil
}

// Update brings the working copy in dir to HEAD. A directory that is not
// part of a working copy yields an error wrapping vcs.ErrNotWorkingCopy.
func (c *ShellClient) Update(ctx context.Context, dir string) (vcs.Revision, error) {
	if _, err := c.run(ctx, "update", dir, "update", pegSafe(dir)); err != nil {
		return "", err
	}
	// svn update skips non working copies without failing, so the revision
	// lookup is what detects them.
	return c.workingRevision(ctx, dir)
}

// Import commits the local file or directory src as path.
func (c *ShellClient) Import(ctx context.Context, src, path, message string) (vcs.CommitInfo, error) {
	target, err := c.remoteURL(path)
	if err != nil {
		return vcs.CommitInfo{}, err
	}

	out, err := c.run(ctx, "import", target, "import", "--no-ignore", "-m", message, pegSafe(src), target)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	return c.commitInfo(ctx, "import", target, out)
}

// Mkdir creates the directory path. The parent must already exist.
func (c *ShellClient) Mkdir(ctx context.Context, path, message string) (vcs.CommitInfo, error) {
	target, err := c.remoteURL(path)
	if err != nil {
		return vcs.CommitInfo{}, err
	}

	out, err := c.run(ctx, "mkdir", target, "mkdir", "-m", message, target)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	return c.commitInfo(ctx, "mkdir", target, out)
}

// Add schedules unversioned paths and any unversioned parents for addition.
func (c *ShellClient) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := []string{"add", "--parents", "--force", "--no-ignore"}
	for _, p := range paths {
		args = append(args, pegSafe(p))
	}
	_, err := c.run(ctx, "add", strings.Join(paths, " "), args...)
	return err
}

// Changes collects added, modified and deleted paths below dirs.
// Unversioned files are not part of the change set.
func (c *ShellClient) Changes(ctx context.Context, dirs ...string) (vcs.ChangeSet, error) {
	if len(dirs) == 0 {
		return vcs.ChangeSet{}, nil
	}
	args := []string{"status", "--xml"}
	for _, d := range dirs {
		args = append(args, pegSafe(d))
	}

	out, err := c.run(ctx, "status", strings.Join(dirs, " "), args...)
	if err != nil {
		return vcs.ChangeSet{}, err
	}

	changes, err := parseStatus(out)
	if err != nil {
		return vcs.ChangeSet{}, ferrors.Remote("status", strings.Join(dirs, " "), ferrors.ReasonUnknown, err)
	}
	return vcs.ChangeSet{Changes: changes}, nil
}

// Commit records exactly the paths in changes.
func (c *ShellClient) Commit(ctx context.Context, changes vcs.ChangeSet, message string) (vcs.CommitInfo, error) {
	if changes.Empty() {
		return vcs.CommitInfo{}, fmt.Errorf("commit: empty change set")
	}

	args := []string{"commit", "--depth", "empty", "-m", message}
	for _, p := range changes.Paths() {
		args = append(args, pegSafe(p))
	}

	target := changes.Changes[0].Path
	out, err := c.run(ctx, "commit", target, args...)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	return c.commitInfo(ctx, "commit", target, out)
}

// Info describes the working-copy path.
func (c *ShellClient) Info(ctx context.Context, path string) (vcs.Info, error) {
	out, err := c.run(ctx, "info", path, "info", "--xml", pegSafe(path))
	if err != nil {
		return vcs.Info{}, err
	}

	entry, err := parseInfo(out)
	if err != nil {
		return vcs.Info{}, ferrors.Remote("info", path, ferrors.ReasonUnknown, err)
	}
	return vcs.Info{
		Path:     path,
		URL:      entry.url,
		Revision: entry.revision,
		Commit:   entry.commit,
	}, nil
}

func (c *ShellClient) workingRevision(ctx context.Context, dir string) (vcs.Revision, error) {
	info, err := c.Info(ctx, dir)
	if err != nil {
		return "", err
	}
	return info.Revision, nil
}

var committedRe = regexp.MustCompile(`Committed revision (\d+)\.`)

// commitInfo extracts the new revision from the output of a committing
// command and completes it with author and date from the log.
func (c *ShellClient) commitInfo(ctx context.Context, op, target string, out []byte) (vcs.CommitInfo, error) {
	m := committedRe.FindSubmatch(out)
	if m == nil {
		return vcs.CommitInfo{}, ferrors.Remote(op, target, ferrors.ReasonUnknown,
			fmt.Errorf("no revision in svn output: %s", strings.TrimSpace(string(out))))
	}
	rev := vcs.Revision(m[1])

	logOut, err := c.run(ctx, "log", c.url, "log", "--xml", "-r", string(rev), "--limit", "1", c.url)
	if err != nil {
		return vcs.CommitInfo{Revision: rev}, nil
	}
	info, err := parseLog(logOut)
	if err != nil {
		return vcs.CommitInfo{Revision: rev}, nil
	}
	return info, nil
}

func (c *ShellClient) remoteURL(path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return c.url, nil
	}
	u, err := url.JoinPath(c.url, strings.Split(path, "/")...)
	if err != nil {
		return "", ferrors.Configuration("repository url", err)
	}
	return u, nil
}

// globalArgs returns the options passed to every svn invocation.
func (c *ShellClient) globalArgs() []string {
	args := []string{"--non-interactive"}
	if c.username != "" {
		args = append(args, "--username", c.username, "--no-auth-cache")
	}
	if c.password != "" {
		args = append(args, "--password-from-stdin")
	}
	return args
}

// run executes svn with args and returns stdout. Failures are classified
// from the svn error codes on stderr.
func (c *ShellClient) run(ctx context.Context, op, target string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, append(c.globalArgs(), args...)...)
	// Messages are parsed, keep them untranslated.
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	if c.password != "" {
		cmd.Stdin = strings.NewReader(c.password + "\n")
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ferrors.Remote(op, target, ferrors.ReasonNetwork, ctxErr)
		}
		return nil, classify(op, target, err, stderr.String())
	}
	return out, nil
}

// pegSafe protects local paths containing '@' from being read as a peg
// revision.
func pegSafe(p string) string {
	if strings.Contains(p, "@") {
		return p + "@"
	}
	return p
}

var codeRe = regexp.MustCompile(`\b([EW]\d{6}):`)

var (
	notWorkingCopyCodes = []string{"E155007", "W155007", "W155010"}
	authCodes           = []string{"E170001", "E215004", "E175013"}
	networkCodes        = []string{"E170013", "E670002", "E670008", "E175002", "E000111", "E000110", "E210002"}
	conflictCodes       = []string{"E155011", "E160024", "E160028", "E155015", "E160020", "E160016"}
	notFoundCodes       = []string{"E170000", "W170000", "E160013", "W160013", "E200009", "E180001"}
)

// classify turns a failed svn invocation into a remote error, using the
// error codes svn prints on stderr to pick the reason.
func classify(op, target string, err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	cause := err
	if msg != "" {
		cause = fmt.Errorf("%w: %s", err, msg)
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return ferrors.Remote(op, target, ferrors.ReasonUnknown, cause)
	}

	codes := make(map[string]bool)
	for _, m := range codeRe.FindAllStringSubmatch(stderr, -1) {
		codes[m[1]] = true
	}
	has := func(list []string) bool {
		for _, code := range list {
			if codes[code] {
				return true
			}
		}
		return false
	}

	switch {
	case has(notWorkingCopyCodes):
		return ferrors.Remote(op, target, ferrors.ReasonNotFound, fmt.Errorf("%w: %s", vcs.ErrNotWorkingCopy, msg))
	case has(authCodes):
		return ferrors.Remote(op, target, ferrors.ReasonAuth, cause)
	case has(networkCodes):
		return ferrors.Remote(op, target, ferrors.ReasonNetwork, cause)
	case has(conflictCodes):
		return ferrors.Remote(op, target, ferrors.ReasonConflict, cause)
	case has(notFoundCodes):
		return ferrors.Remote(op, target, ferrors.ReasonNotFound, cause)
	default:
		return ferrors.Remote(op, target, ferrors.ReasonUnknown, cause)
	}
}
