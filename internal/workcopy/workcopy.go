// Package workcopy maintains the local working copies the importer compares
// against and commits from.
package workcopy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/vcs"
)

// Anchor is the local working copy mirroring one remote path.
type Anchor struct {
	Dir      string
	Path     string
	Revision vcs.Revision
	// CheckedOut is true when the anchor was created by this sync rather
	// than updated.
	CheckedOut bool
}

// Synchronizer checks out or updates anchors below a work directory.
type Synchronizer struct {
	client  vcs.Client
	workDir string
	logger  *slog.Logger
}

// NewSynchronizer returns a Synchronizer placing anchors below workDir.
func NewSynchronizer(client vcs.Client, workDir string, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		client:  client,
		workDir: workDir,
		logger:  logger,
	}
}

// AnchorDir returns the local directory mirroring remotePath.
func (s *Synchronizer) AnchorDir(remotePath string) string {
	rel := strings.Trim(remotePath, "/")
	if rel == "" {
		return filepath.Clean(s.workDir)
	}
	return filepath.Join(s.workDir, filepath.FromSlash(rel))
}

// Sync makes the anchor for remotePath present, pristine and current. An
// existing directory is reverted and then updated to the latest revision, so
// that content left behind by an interrupted commit is compared and committed
// again; a missing one is checked out. A directory that exists without being
// a working copy, such as a parent created for a deeper anchor, is checked
// out in place.
func (s *Synchronizer) Sync(ctx context.Context, remotePath string) (Anchor, error) {
	dir := s.AnchorDir(remotePath)
	anchor := Anchor{Dir: dir, Path: remotePath}

	if _, err := os.Stat(dir); err == nil {
		s.logger.Info("updating working copy", "path", remotePath, "dir", dir)
		rev, err := s.refresh(ctx, dir)
		if err == nil {
			anchor.Revision = rev
			s.logger.Info("working copy updated", "path", remotePath, "revision", rev)
			return anchor, nil
		}
		if !errors.Is(err, vcs.ErrNotWorkingCopy) {
			return anchor, err
		}
		s.logger.Warn("directory is not a working copy, checking out", "dir", dir)
	} else if !os.IsNotExist(err) {
		return anchor, ferrors.Filesystem("stat working copy", dir, err)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return anchor, ferrors.Filesystem("create working copy parent", filepath.Dir(dir), err)
	}

	s.logger.Info("checking out working copy", "path", remotePath, "dir", dir)
	rev, err := s.client.Checkout(ctx, remotePath, dir)
	if err != nil {
		return anchor, fmt.Errorf("checkout %s: %w", remotePath, err)
	}

	anchor.Revision = rev
	anchor.CheckedOut = true
	s.logger.Info("working copy checked out", "path", remotePath, "revision", rev)
	return anchor, nil
}

func (s *Synchronizer) refresh(ctx context.Context, dir string) (vcs.Revision, error) {
	if err := s.client.Revert(ctx, dir); err != nil {
		return "", fmt.Errorf("revert working copy %s: %w", dir, err)
	}
	rev, err := s.client.Update(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("update working copy %s: %w", dir, err)
	}
	return rev, nil
}
