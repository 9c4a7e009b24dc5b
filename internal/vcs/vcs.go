// Package vcs defines the version control operations the importer needs.
// Implementations live in the svn and git packages.
package vcs

//go:generate mockgen -destination=mock_client.go -package=vcs github.com/schaermu/forceimport/internal/vcs Client

import (
	"context"
	"errors"
	"time"
)

// ErrNotWorkingCopy is returned by Update when the directory exists but is
// not a working copy.
var ErrNotWorkingCopy = errors.New("not a working copy")

// NodeKind is what a repository path refers to.
type NodeKind int

const (
	KindNone NodeKind = iota
	KindFile
	KindDir
)

func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "none"
	}
}

// Revision identifies a repository state: a revision number for Subversion,
// a commit hash for Git.
type Revision string

// CommitInfo describes a change recorded in the repository.
type CommitInfo struct {
	Revision Revision  `json:"revision"`
	Author   string    `json:"author,omitempty"`
	Date     time.Time `json:"date,omitzero"`
}

// Info describes the last change of a working-copy path.
type Info struct {
	Path     string
	URL      string
	Revision Revision
	Commit   CommitInfo
}

// ChangeStatus is the pending state of a working-copy path.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusDeleted  ChangeStatus = "deleted"
)

// Change is one pending working-copy modification.
type Change struct {
	Path   string
	Status ChangeStatus
}

// ChangeSet is the set of pending modifications collected for one commit.
type ChangeSet struct {
	Changes []Change
}

// Empty reports whether there is nothing to commit.
func (c ChangeSet) Empty() bool {
	return len(c.Changes) == 0
}

// Paths returns the changed paths in collection order.
func (c ChangeSet) Paths() []string {
	paths := make([]string, 0, len(c.Changes))
	for _, ch := range c.Changes {
		paths = append(paths, ch.Path)
	}
	return paths
}

// Client is the set of repository operations used by the importer. Remote
// paths are slash-separated and relative to the repository URL the client
// was created for; the empty path is the project root.
type Client interface {
	// Connect verifies that the repository is reachable with the configured
	// credentials.
	Connect(ctx context.Context) error
	// Kind reports what exists at path in the latest revision.
	Kind(ctx context.Context, path string) (NodeKind, error)
	// Checkout creates a working copy of path in dir.
	Checkout(ctx context.Context, path, dir string) (Revision, error)
	// Revert discards local modifications below dir and removes files that
	// are not under version control, leaving the working copy as it was
	// last checked out or updated.
	Revert(ctx context.Context, dir string) error
	// Update brings the working copy in dir to the latest revision. Local
	// modifications are kept, so callers revert first.
	Update(ctx context.Context, dir string) (Revision, error)
	// Import adds the local file or folder src to the repository at path.
	Import(ctx context.Context, src, path, message string) (CommitInfo, error)
	// Mkdir creates the directory path in the repository.
	Mkdir(ctx context.Context, path, message string) (CommitInfo, error)
	// Add schedules unversioned working-copy files for addition.
	Add(ctx context.Context, paths ...string) error
	// Changes collects the pending modifications below dirs.
	Changes(ctx context.Context, dirs ...string) (ChangeSet, error)
	// Commit records changes in the repository.
	Commit(ctx context.Context, changes ChangeSet, message string) (CommitInfo, error)
	// Info describes the working-copy path.
	Info(ctx context.Context, path string) (Info, error)
}
