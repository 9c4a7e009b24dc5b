// Package git implements vcs.Client on a single go-git clone. Anchors are
// subdirectories of the clone, and every commit is pushed immediately.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/vcs"
)

const (
	remoteName = "origin"
	// keepFile marks directories created by Mkdir, git tracks no empty ones.
	keepFile = ".keep"
)

// Options configures a Client.
type Options struct {
	URL         string
	Dir         string
	Username    string
	Password    string
	AuthorName  string
	AuthorEmail string
}

// Client implements vcs.Client with go-git.
type Client struct {
	opts Options
	auth transport.AuthMethod

	mu      sync.Mutex
	repo    *gogit.Repository
	intents map[string]bool
}

var _ vcs.Client = (*Client)(nil)

// NewClient creates a client cloning opts.URL into opts.Dir on first use.
func NewClient(opts Options) *Client {
	if opts.AuthorName == "" {
		opts.AuthorName = "forceimport"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "forceimport@localhost"
	}
	opts.Dir = filepath.Clean(opts.Dir)

	c := &Client{opts: opts, intents: make(map[string]bool)}
	if opts.Username != "" || opts.Password != "" {
		c.auth = &githttp.BasicAuth{Username: opts.Username, Password: opts.Password}
	}
	return c
}

// Connect opens the clone, cloning it first if needed, and fetches the
// latest state of the remote branch.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.open(ctx)
	return err
}

// Kind reports what exists at path in the fetched head.
func (c *Client) Kind(ctx context.Context, p string) (vcs.NodeKind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	repo, err := c.open(ctx)
	if err != nil {
		return vcs.KindNone, err
	}
	return c.kind(repo, p)
}

// Checkout makes the directory for path available in dir. Since the whole
// repository is cloned once, dir must be the matching subdirectory of the
// clone.
func (c *Client) Checkout(ctx context.Context, p, dir string) (vcs.Revision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	repo, err := c.open(ctx)
	if err != nil {
		return "", err
	}
	rel, err := c.rel(dir)
	if err != nil {
		return "", err
	}
	if rel != cleanPath(p) {
		return "", ferrors.Configurationf("checkout %s: directory %s does not mirror it in clone %s", p, dir, c.opts.Dir)
	}

	rev, err := c.refresh(ctx, repo)
	if err != nil {
		return "", err
	}
	kind, err := c.kind(repo, p)
	if err != nil {
		return "", err
	}
	if kind != vcs.KindDir {
		return "", ferrors.Remote("checkout", p, ferrors.ReasonNotFound, fmt.Errorf("no directory %q", p))
	}
	return rev, nil
}

// Revert discards uncommitted changes and untracked files and forgets the
// paths recorded by Add. Like Update it acts on the whole clone; dir only has
// to lie inside it.
func (c *Client) Revert(ctx context.Context, dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.rel(dir); err != nil {
		return err
	}
	repo, err := c.open(ctx)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return ferrors.Filesystem("open worktree", c.opts.Dir, err)
	}
	if err := wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset}); err != nil {
		return ferrors.Filesystem("reset worktree", c.opts.Dir, err)
	}
	if err := wt.Clean(&gogit.CleanOptions{Dir: true}); err != nil {
		return ferrors.Filesystem("clean worktree", c.opts.Dir, err)
	}
	c.intents = make(map[string]bool)
	return nil
}

// Update resets the whole clone to the latest remote state, discarding local
// modifications. dir only has to lie inside the clone.
func (c *Client) Update(ctx context.Context, dir string) (vcs.Revision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.rel(dir); err != nil {
		return "", err
	}
	repo, err := c.open(ctx)
	if err != nil {
		return "", err
	}
	return c.refresh(ctx, repo)
}

// Import copies src into the clone at path, commits it alone and pushes.
func (c *Client) Import(ctx context.Context, src, p, message string) (vcs.CommitInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	repo, err := c.open(ctx)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	kind, err := c.kind(repo, p)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	if kind != vcs.KindNone {
		return vcs.CommitInfo{}, ferrors.Conflict("import", p, fmt.Errorf("path already exists"))
	}

	wt, err := repo.Worktree()
	if err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem("open worktree", c.opts.Dir, err)
	}
	target := cleanPath(p)
	if err := copyInto(wt.Filesystem, src, target); err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem("import", src, err)
	}
	if _, err := wt.Add(target); err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem("stage", target, err)
	}
	return c.commitAndPush(ctx, repo, wt, "import", p, message)
}

// Mkdir commits an empty marker file so that the directory exists remotely.
func (c *Client) Mkdir(ctx context.Context, p, message string) (vcs.CommitInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	repo, err := c.open(ctx)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	kind, err := c.kind(repo, p)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	if kind != vcs.KindNone {
		return vcs.CommitInfo{}, ferrors.Conflict("mkdir", p, fmt.Errorf("path already exists"))
	}

	wt, err := repo.Worktree()
	if err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem("open worktree", c.opts.Dir, err)
	}
	marker := path.Join(cleanPath(p), keepFile)
	if err := wt.Filesystem.MkdirAll(cleanPath(p), 0755); err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem("mkdir", p, err)
	}
	f, err := wt.Filesystem.Create(marker)
	if err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem("mkdir", marker, err)
	}
	if err := f.Close(); err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem("mkdir", marker, err)
	}
	if _, err := wt.Add(marker); err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem("stage", marker, err)
	}
	return c.commitAndPush(ctx, repo, wt, "mkdir", p, message)
}

// Add records paths for addition. They are staged by the next Commit that
// includes them, so that an Import in between does not pick them up.
func (c *Client) Add(_ context.Context, paths ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range paths {
		rel, err := c.rel(p)
		if err != nil {
			return err
		}
		c.intents[rel] = true
	}
	return nil
}

// Changes reports modified and deleted tracked files and the files recorded
// by Add below dirs.
func (c *Client) Changes(ctx context.Context, dirs ...string) (vcs.ChangeSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	repo, err := c.open(ctx)
	if err != nil {
		return vcs.ChangeSet{}, err
	}
	prefixes := make([]string, 0, len(dirs))
	for _, d := range dirs {
		rel, err := c.rel(d)
		if err != nil {
			return vcs.ChangeSet{}, err
		}
		prefixes = append(prefixes, rel)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return vcs.ChangeSet{}, ferrors.Filesystem("open worktree", c.opts.Dir, err)
	}
	status, err := wt.Status()
	if err != nil {
		return vcs.ChangeSet{}, ferrors.Filesystem("status", c.opts.Dir, err)
	}

	var set vcs.ChangeSet
	for _, rel := range sortedKeys(status) {
		if !underAny(rel, prefixes) {
			continue
		}
		file := status[rel]
		var st vcs.ChangeStatus
		switch {
		case file.Worktree == gogit.Modified || file.Staging == gogit.Modified:
			st = vcs.StatusModified
		case file.Worktree == gogit.Deleted || file.Staging == gogit.Deleted:
			st = vcs.StatusDeleted
		case file.Staging == gogit.Added:
			st = vcs.StatusAdded
		case file.Worktree == gogit.Untracked && c.intended(rel):
			st = vcs.StatusAdded
		default:
			continue
		}
		set.Changes = append(set.Changes, vcs.Change{
			Path:   filepath.Join(c.opts.Dir, filepath.FromSlash(rel)),
			Status: st,
		})
	}
	return set, nil
}

// Commit stages exactly the paths in changes, commits and pushes.
func (c *Client) Commit(ctx context.Context, changes vcs.ChangeSet, message string) (vcs.CommitInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if changes.Empty() {
		return vcs.CommitInfo{}, fmt.Errorf("commit: empty change set")
	}
	repo, err := c.open(ctx)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem("open worktree", c.opts.Dir, err)
	}

	for _, ch := range changes.Changes {
		rel, err := c.rel(ch.Path)
		if err != nil {
			return vcs.CommitInfo{}, err
		}
		if ch.Status == vcs.StatusDeleted {
			_, err = wt.Remove(rel)
		} else {
			_, err = wt.Add(rel)
		}
		if err != nil {
			return vcs.CommitInfo{}, ferrors.Filesystem("stage", rel, err)
		}
	}

	info, err := c.commitAndPush(ctx, repo, wt, "commit", changes.Changes[0].Path, message)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	for _, ch := range changes.Changes {
		if rel, err := c.rel(ch.Path); err == nil {
			delete(c.intents, rel)
		}
	}
	return info, nil
}

// Info describes the last commit touching the clone path.
func (c *Client) Info(ctx context.Context, p string) (vcs.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	repo, err := c.open(ctx)
	if err != nil {
		return vcs.Info{}, err
	}
	rel, err := c.rel(p)
	if err != nil {
		return vcs.Info{}, err
	}

	head, err := repo.Head()
	if err != nil {
		return vcs.Info{}, classify("info", p, err)
	}
	iter, err := repo.Log(&gogit.LogOptions{
		From: head.Hash(),
		PathFilter: func(name string) bool {
			return rel == "" || name == rel || strings.HasPrefix(name, rel+"/")
		},
	})
	if err != nil {
		return vcs.Info{}, classify("info", p, err)
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err != nil {
		return vcs.Info{}, ferrors.Remote("info", p, ferrors.ReasonNotFound, fmt.Errorf("no commit touches %q", rel))
	}

	u := c.opts.URL
	if rel != "" {
		u = strings.TrimRight(u, "/") + "/" + rel
	}
	return vcs.Info{
		Path:     p,
		URL:      u,
		Revision: vcs.Revision(head.Hash().String()),
		Commit:   commitInfo(commit),
	}, nil
}

// open returns the clone, creating it on first use. Callers hold c.mu.
func (c *Client) open(ctx context.Context) (*gogit.Repository, error) {
	if c.repo != nil {
		return c.repo, nil
	}

	repo, err := gogit.PlainOpen(c.opts.Dir)
	switch {
	case err == nil:
		if _, err := c.refresh(ctx, repo); err != nil {
			return nil, err
		}
	case errors.Is(err, gogit.ErrRepositoryNotExists):
		if err := os.MkdirAll(filepath.Dir(c.opts.Dir), 0755); err != nil {
			return nil, ferrors.Filesystem("create clone parent", filepath.Dir(c.opts.Dir), err)
		}
		repo, err = gogit.PlainCloneContext(ctx, c.opts.Dir, false, &gogit.CloneOptions{
			URL:        c.opts.URL,
			Auth:       c.auth,
			RemoteName: remoteName,
		})
		if err != nil {
			return nil, classify("clone", c.opts.URL, err)
		}
	default:
		return nil, ferrors.Filesystem("open clone", c.opts.Dir, err)
	}

	c.repo = repo
	return repo, nil
}

// refresh fetches the remote and hard resets the current branch to it, the
// way a fresh checkout would look.
func (c *Client) refresh(ctx context.Context, repo *gogit.Repository) (vcs.Revision, error) {
	err := repo.FetchContext(ctx, &gogit.FetchOptions{RemoteName: remoteName, Auth: c.auth})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "", classify("fetch", c.opts.URL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", classify("fetch", c.opts.URL, err)
	}
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, head.Name().Short()), true)
	if err != nil {
		return "", classify("fetch", c.opts.URL, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", ferrors.Filesystem("open worktree", c.opts.Dir, err)
	}
	if err := wt.Reset(&gogit.ResetOptions{Commit: remoteRef.Hash(), Mode: gogit.HardReset}); err != nil {
		return "", ferrors.Filesystem("reset worktree", c.opts.Dir, err)
	}
	return vcs.Revision(remoteRef.Hash().String()), nil
}

func (c *Client) kind(repo *gogit.Repository, p string) (vcs.NodeKind, error) {
	rel := cleanPath(p)
	if rel == "" {
		return vcs.KindDir, nil
	}

	head, err := repo.Head()
	if err != nil {
		return vcs.KindNone, classify("check", p, err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return vcs.KindNone, classify("check", p, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return vcs.KindNone, classify("check", p, err)
	}

	entry, err := tree.FindEntry(rel)
	switch {
	case errors.Is(err, object.ErrEntryNotFound), errors.Is(err, object.ErrDirectoryNotFound):
		return vcs.KindNone, nil
	case err != nil:
		return vcs.KindNone, classify("check", p, err)
	case entry.Mode == filemode.Dir:
		return vcs.KindDir, nil
	default:
		return vcs.KindFile, nil
	}
}

func (c *Client) commitAndPush(ctx context.Context, repo *gogit.Repository, wt *gogit.Worktree, op, p, message string) (vcs.CommitInfo, error) {
	sig := &object.Signature{Name: c.opts.AuthorName, Email: c.opts.AuthorEmail, When: time.Now()}
	hash, err := wt.Commit(message, &gogit.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return vcs.CommitInfo{}, ferrors.Filesystem(op, p, err)
	}

	if err := repo.PushContext(ctx, &gogit.PushOptions{RemoteName: remoteName, Auth: c.auth}); err != nil &&
		!errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return vcs.CommitInfo{}, classify(op, p, err)
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return vcs.CommitInfo{Revision: vcs.Revision(hash.String())}, nil
	}
	return commitInfo(commit), nil
}

func (c *Client) intended(rel string) bool {
	for p := rel; p != "." && p != ""; p = path.Dir(p) {
		if c.intents[p] {
			return true
		}
	}
	return false
}

// rel returns the slash-separated path of a local path inside the clone.
func (c *Client) rel(local string) (string, error) {
	r, err := filepath.Rel(c.opts.Dir, filepath.Clean(local))
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s outside clone %s: %w", local, c.opts.Dir, vcs.ErrNotWorkingCopy)
	}
	if r == "." {
		return "", nil
	}
	return filepath.ToSlash(r), nil
}

func commitInfo(commit *object.Commit) vcs.CommitInfo {
	return vcs.CommitInfo{
		Revision: vcs.Revision(commit.Hash.String()),
		Author:   commit.Author.Name,
		Date:     commit.Author.When,
	}
}

// copyInto copies the local file or tree src to dst on the worktree
// filesystem.
func copyInto(wfs billy.Filesystem, src, dst string) error {
	return filepath.WalkDir(src, func(local string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		r, err := filepath.Rel(src, local)
		if err != nil {
			return err
		}
		target := path.Join(dst, filepath.ToSlash(r))
		if d.IsDir() {
			return wfs.MkdirAll(target, 0755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		in, err := os.Open(local)
		if err != nil {
			return err
		}
		defer in.Close()

		if err := wfs.MkdirAll(path.Dir(target), 0755); err != nil {
			return err
		}
		out, err := wfs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}

func classify(op, target string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ferrors.Remote(op, target, ferrors.ReasonNetwork, err)
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return ferrors.Remote(op, target, ferrors.ReasonAuth, err)
	case errors.Is(err, transport.ErrRepositoryNotFound), errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound):
		return ferrors.Remote(op, target, ferrors.ReasonNotFound, err)
	case errors.Is(err, gogit.ErrNonFastForwardUpdate):
		return ferrors.Remote(op, target, ferrors.ReasonConflict, err)
	default:
		return ferrors.Remote(op, target, ferrors.ReasonUnknown, err)
	}
}

func cleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return ""
	}
	return path.Clean(p)
}

func underAny(rel string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "" || rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

func sortedKeys(status gogit.Status) []string {
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
