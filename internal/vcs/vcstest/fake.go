// Package vcstest provides an in-memory repository implementing vcs.Client
// for tests.
package vcstest

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/vcs"
)

type node struct {
	dir  bool
	data []byte
	rev  int // revision that last changed the node
}

type workingCopy struct {
	dir    string
	remote string
	base   map[string][]byte // relative local path -> content at last sync
	added  map[string]bool
	rev    int
}

// Fake is an in-memory repository. Working copies are real directories so
// that content comparisons run against files on disk. Like svn, Update keeps
// local modifications and untracked files; only Revert discards them.
type Fake struct {
	mu     sync.Mutex
	nodes  map[string]node
	rev    int
	wcs    map[string]*workingCopy
	calls  map[string]int
	author string

	// Mkdirs, Imports and Commits record the mutating calls in order.
	Mkdirs  []string
	Imports []string
	Commits []vcs.ChangeSet

	// FailOn, when set, is consulted before every operation. A non-nil
	// result is returned as the operation's error.
	FailOn func(op, path string) error
}

var _ vcs.Client = (*Fake)(nil)

// NewFake returns an empty repository holding only the root directory.
func NewFake() *Fake {
	return &Fake{
		nodes:  map[string]node{"": {dir: true}},
		wcs:    make(map[string]*workingCopy),
		calls:  make(map[string]int),
		author: "forceimport",
	}
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Revision returns the latest revision number.
func (f *Fake) Revision() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rev
}

// PutFile stores a file directly in the repository, creating parents.
func (f *Fake) PutFile(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirAll(parentOf(clean(p)))
	f.rev++
	f.nodes[clean(p)] = node{data: append([]byte(nil), data...), rev: f.rev}
}

// PutDir creates a directory and its parents in the repository.
func (f *Fake) PutDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirAll(clean(p))
	f.rev++
}

// File returns the content stored at p.
func (f *Fake) File(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[clean(p)]
	if !ok || n.dir {
		return nil, false
	}
	return n.data, true
}

func (f *Fake) begin(op, p string) error {
	f.calls[op]++
	if f.FailOn != nil {
		return f.FailOn(op, p)
	}
	return nil
}

func (f *Fake) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begin("Connect", "")
}

func (f *Fake) Kind(ctx context.Context, p string) (vcs.NodeKind, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Kind", p); err != nil {
		return vcs.KindNone, err
	}
	if err := ctx.Err(); err != nil {
		return vcs.KindNone, err
	}

	n, ok := f.nodes[clean(p)]
	switch {
	case !ok:
		return vcs.KindNone, nil
	case n.dir:
		return vcs.KindDir, nil
	default:
		return vcs.KindFile, nil
	}
}

func (f *Fake) Checkout(_ context.Context, p, dir string) (vcs.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Checkout", p); err != nil {
		return "", err
	}

	n, ok := f.nodes[clean(p)]
	if !ok || !n.dir {
		return "", ferrors.Remote("checkout", p, ferrors.ReasonNotFound, fmt.Errorf("no directory %q", p))
	}

	wc := &workingCopy{dir: filepath.Clean(dir), remote: clean(p)}
	if err := f.materialize(wc); err != nil {
		return "", err
	}
	f.wcs[wc.dir] = wc
	return vcs.Revision(strconv.Itoa(f.rev)), nil
}

func (f *Fake) Update(_ context.Context, dir string) (vcs.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Update", dir); err != nil {
		return "", err
	}

	// A nested directory refreshes the whole enclosing working copy.
	wc, _ := f.lookup(dir)
	if wc == nil {
		return "", fmt.Errorf("update %s: %w", dir, vcs.ErrNotWorkingCopy)
	}
	if err := f.merge(wc); err != nil {
		return "", err
	}
	return vcs.Revision(strconv.Itoa(f.rev)), nil
}

func (f *Fake) Revert(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Revert", dir); err != nil {
		return err
	}

	root := filepath.Clean(dir)
	wc, prefix := f.lookup(root)
	if wc == nil {
		return fmt.Errorf("revert %s: %w", dir, vcs.ErrNotWorkingCopy)
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		owner, rel := f.lookup(p)
		if d.IsDir() {
			if n, ok := f.nodes[clean(path.Join(owner.remote, rel))]; ok && n.dir {
				return nil
			}
			if err := os.RemoveAll(p); err != nil {
				return err
			}
			return filepath.SkipDir
		}
		base, tracked := owner.base[rel]
		if !tracked {
			return os.Remove(p)
		}
		return os.WriteFile(p, base, 0644)
	})
	if err != nil {
		return err
	}

	// Tracked files removed locally come back as well.
	for rel, data := range wc.base {
		if !under(rel, prefix) {
			continue
		}
		local := filepath.Join(wc.dir, filepath.FromSlash(rel))
		if _, err := os.Stat(local); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(local, data, 0644); err != nil {
			return err
		}
	}
	for rel := range wc.added {
		if under(rel, prefix) {
			delete(wc.added, rel)
		}
	}
	return nil
}

func (f *Fake) Import(_ context.Context, src, p, _ string) (vcs.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Import", p); err != nil {
		return vcs.CommitInfo{}, err
	}

	target := clean(p)
	if _, exists := f.nodes[target]; exists {
		return vcs.CommitInfo{}, ferrors.Conflict("import", p, fmt.Errorf("path already exists"))
	}
	if parent, ok := f.nodes[parentOf(target)]; !ok || !parent.dir {
		return vcs.CommitInfo{}, ferrors.Remote("import", p, ferrors.ReasonNotFound, fmt.Errorf("parent directory missing"))
	}

	rev := f.rev + 1
	info, err := os.Stat(src)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(src)
		if err != nil {
			return vcs.CommitInfo{}, err
		}
		f.nodes[target] = node{data: data, rev: rev}
	} else {
		err := filepath.WalkDir(src, func(local string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, local)
			if err != nil {
				return err
			}
			remote := clean(path.Join(target, filepath.ToSlash(rel)))
			if d.IsDir() {
				f.nodes[remote] = node{dir: true, rev: rev}
				return nil
			}
			data, err := os.ReadFile(local)
			if err != nil {
				return err
			}
			f.nodes[remote] = node{data: data, rev: rev}
			return nil
		})
		if err != nil {
			return vcs.CommitInfo{}, err
		}
	}

	f.Imports = append(f.Imports, target)
	return f.commitInfo(), nil
}

func (f *Fake) Mkdir(_ context.Context, p, _ string) (vcs.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Mkdir", p); err != nil {
		return vcs.CommitInfo{}, err
	}

	target := clean(p)
	if _, exists := f.nodes[target]; exists {
		return vcs.CommitInfo{}, ferrors.Conflict("mkdir", p, fmt.Errorf("path already exists"))
	}
	if n, ok := f.nodes[parentOf(target)]; !ok || !n.dir {
		return vcs.CommitInfo{}, ferrors.Remote("mkdir", p, ferrors.ReasonNotFound, fmt.Errorf("parent directory missing"))
	}

	f.nodes[target] = node{dir: true, rev: f.rev + 1}
	f.Mkdirs = append(f.Mkdirs, target)
	return f.commitInfo(), nil
}

func (f *Fake) Add(_ context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Add", strings.Join(paths, ",")); err != nil {
		return err
	}

	for _, p := range paths {
		wc, rel := f.lookup(p)
		if wc == nil {
			return fmt.Errorf("add %s: %w", p, vcs.ErrNotWorkingCopy)
		}
		if wc.added == nil {
			wc.added = make(map[string]bool)
		}
		wc.added[rel] = true
	}
	return nil
}

func (f *Fake) Changes(_ context.Context, dirs ...string) (vcs.ChangeSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Changes", strings.Join(dirs, ",")); err != nil {
		return vcs.ChangeSet{}, err
	}

	var set vcs.ChangeSet
	for _, dir := range dirs {
		wc, prefix := f.lookup(dir)
		if wc == nil {
			return vcs.ChangeSet{}, fmt.Errorf("status %s: %w", dir, vcs.ErrNotWorkingCopy)
		}

		local, err := readTree(wc.dir)
		if err != nil {
			return vcs.ChangeSet{}, err
		}

		rels := make([]string, 0, len(local))
		for rel := range local {
			rels = append(rels, rel)
		}
		sort.Strings(rels)

		for _, rel := range rels {
			if !under(rel, prefix) {
				continue
			}
			base, tracked := wc.base[rel]
			switch {
			case tracked && string(base) != string(local[rel]):
				set.Changes = append(set.Changes, vcs.Change{Path: filepath.Join(wc.dir, filepath.FromSlash(rel)), Status: vcs.StatusModified})
			case !tracked && wc.added[rel]:
				set.Changes = append(set.Changes, vcs.Change{Path: filepath.Join(wc.dir, filepath.FromSlash(rel)), Status: vcs.StatusAdded})
			}
		}
	}
	return set, nil
}

func (f *Fake) Commit(_ context.Context, changes vcs.ChangeSet, _ string) (vcs.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Commit", strings.Join(changes.Paths(), ",")); err != nil {
		return vcs.CommitInfo{}, err
	}

	rev := f.rev + 1
	for _, ch := range changes.Changes {
		wc, rel := f.lookup(ch.Path)
		if wc == nil {
			return vcs.CommitInfo{}, fmt.Errorf("commit %s: %w", ch.Path, vcs.ErrNotWorkingCopy)
		}
		data, err := os.ReadFile(ch.Path)
		if err != nil {
			return vcs.CommitInfo{}, err
		}
		remote := clean(path.Join(wc.remote, rel))
		f.mkdirAll(parentOf(remote))
		f.nodes[remote] = node{data: data, rev: rev}
		wc.base[rel] = data
		delete(wc.added, rel)
	}

	f.Commits = append(f.Commits, changes)
	return f.commitInfo(), nil
}

func (f *Fake) Info(_ context.Context, p string) (vcs.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Info", p); err != nil {
		return vcs.Info{}, err
	}

	wc, rel := f.lookup(p)
	if wc == nil {
		return vcs.Info{}, fmt.Errorf("info %s: %w", p, vcs.ErrNotWorkingCopy)
	}
	remote := clean(path.Join(wc.remote, rel))
	n, ok := f.nodes[remote]
	if !ok {
		return vcs.Info{}, ferrors.Remote("info", p, ferrors.ReasonNotFound, fmt.Errorf("%s is not under version control", p))
	}
	return vcs.Info{
		Path:     p,
		URL:      remote,
		Revision: vcs.Revision(strconv.Itoa(wc.rev)),
		Commit:   vcs.CommitInfo{Revision: vcs.Revision(strconv.Itoa(n.rev)), Author: f.author},
	}, nil
}

func (f *Fake) commitInfo() vcs.CommitInfo {
	f.rev++
	return vcs.CommitInfo{
		Revision: vcs.Revision(strconv.Itoa(f.rev)),
		Author:   f.author,
		Date:     time.Now(),
	}
}

// materialize writes the remote subtree of wc into its directory and resets
// the base snapshot, the way a fresh checkout does.
func (f *Fake) materialize(wc *workingCopy) error {
	if err := os.MkdirAll(wc.dir, 0755); err != nil {
		return err
	}

	wc.base = make(map[string][]byte)
	for rel, n := range f.subtree(wc.remote) {
		if err := writeNode(filepath.Join(wc.dir, filepath.FromSlash(rel)), n); err != nil {
			return err
		}
		if !n.dir {
			wc.base[rel] = n.data
		}
	}
	wc.rev = f.rev
	return nil
}

// merge brings wc to the latest revision the way svn update does. Locally
// modified files are left alone; an incoming change to one of them is a
// conflict.
func (f *Fake) merge(wc *workingCopy) error {
	for rel, n := range f.subtree(wc.remote) {
		local := filepath.Join(wc.dir, filepath.FromSlash(rel))
		if base, tracked := wc.base[rel]; tracked && !n.dir {
			current, err := os.ReadFile(local)
			if err == nil && !bytes.Equal(current, base) {
				if !bytes.Equal(n.data, base) {
					return ferrors.Conflict("update", local, fmt.Errorf("local modification conflicts with incoming change"))
				}
				continue
			}
		}
		if err := writeNode(local, n); err != nil {
			return err
		}
		if !n.dir {
			wc.base[rel] = n.data
		}
	}
	wc.rev = f.rev
	return nil
}

// subtree returns the nodes below prefix keyed by relative path.
func (f *Fake) subtree(prefix string) map[string]node {
	nodes := make(map[string]node)
	for p, n := range f.nodes {
		var rel string
		switch {
		case prefix == "":
			rel = p
		case strings.HasPrefix(p, prefix+"/"):
			rel = strings.TrimPrefix(p, prefix+"/")
		default:
			continue
		}
		if rel != "" {
			nodes[rel] = n
		}
	}
	return nodes
}

func writeNode(local string, n node) error {
	if n.dir {
		return os.MkdirAll(local, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return err
	}
	return os.WriteFile(local, n.data, 0644)
}

// lookup finds the working copy containing local path p and returns the
// slash-separated path of p relative to it.
func (f *Fake) lookup(p string) (*workingCopy, string) {
	p = filepath.Clean(p)
	var best *workingCopy
	for dir, wc := range f.wcs {
		if p == dir || strings.HasPrefix(p, dir+string(filepath.Separator)) {
			if best == nil || len(dir) > len(best.dir) {
				best = wc
			}
		}
	}
	if best == nil {
		return nil, ""
	}
	rel, err := filepath.Rel(best.dir, p)
	if err != nil || rel == "." {
		return best, ""
	}
	return best, filepath.ToSlash(rel)
}

func (f *Fake) mkdirAll(p string) {
	for p = clean(p); p != ""; p = parentOf(p) {
		if _, ok := f.nodes[p]; !ok {
			f.nodes[p] = node{dir: true}
		}
	}
}

// under reports whether the relative path rel lies at or below prefix.
func under(rel, prefix string) bool {
	return prefix == "" || rel == prefix || strings.HasPrefix(rel, prefix+"/")
}

// parentOf returns the parent of a cleaned remote path, "" for the root.
func parentOf(p string) string {
	return clean(path.Dir(p))
}

// readTree returns the content of every regular file below root keyed by
// slash-separated relative path.
func readTree(root string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	return files, err
}

// clean normalizes a remote path: no leading or trailing slash, "" for root.
func clean(p string) string {
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return ""
	}
	return path.Clean(p)
}
