// Package sync reconciles build output with a remote repository. Every
// import item is handled on its own: its matches are imported, left alone or
// replaced in the working copy and committed together.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/schaermu/forceimport/internal/compare"
	"github.com/schaermu/forceimport/internal/config"
	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/manifest"
	"github.com/schaermu/forceimport/internal/match"
	"github.com/schaermu/forceimport/internal/pathtmpl"
	"github.com/schaermu/forceimport/internal/remotepath"
	"github.com/schaermu/forceimport/internal/vcs"
	"github.com/schaermu/forceimport/internal/workcopy"
)

// Engine orchestrates the import process
type Engine struct {
	cfg     *config.Config
	client  vcs.Client
	ensurer *remotepath.Ensurer
	anchors *workcopy.Synchronizer
	logger  *slog.Logger
	dryRun  bool
}

// NewEngine creates a new import engine. Every call on client is bounded by
// the configured remote operation timeout.
func NewEngine(cfg *config.Config, client vcs.Client, logger *slog.Logger, dryRun bool) *Engine {
	client = vcs.WithTimeout(client, cfg.Remote.OperationTimeout)
	return &Engine{
		cfg:     cfg,
		client:  client,
		ensurer: remotepath.NewEnsurer(client, cfg.Repo.URL, logger, dryRun),
		anchors: workcopy.NewSynchronizer(client, cfg.WorkDir(), logger),
		logger:  logger,
		dryRun:  dryRun,
	}
}

// Run processes all configured items in order. Item failures are recorded
// in the report and do not stop later items. An error is only returned for
// configuration problems found before connecting.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{Started: time.Now(), DryRun: e.dryRun}

	e.logger.Info("starting import",
		"repo", e.cfg.Repo.URL,
		"target", e.cfg.TargetDir(),
		"items", len(e.cfg.Items),
		"dry_run", e.dryRun)

	resolver := e.resolver(report)
	if version, ok := resolver.Version(); ok {
		report.Version = version.String()
	}

	for _, item := range e.cfg.Items {
		if _, err := match.Compile(resolver.ResolveItem(item).Pattern); err != nil {
			return nil, err
		}
	}

	if info, err := os.Stat(e.cfg.TargetDir()); err != nil || !info.IsDir() {
		msg := fmt.Sprintf("target directory %s is not accessible", e.cfg.TargetDir())
		e.logger.Warn(msg, "error", err)
		report.Warnings = append(report.Warnings, msg)
	}

	e.logger.Info("connecting to repository", "url", e.cfg.Repo.URL)
	if err := e.client.Connect(ctx); err != nil {
		err = fmt.Errorf("connect %s: %w", e.cfg.Repo.URL, err)
		e.logger.Error("repository not reachable, failing all items", "error", err)
		for _, item := range e.cfg.Items {
			result := newItemResult(resolver.ResolveItem(item))
			result.fail(err)
			report.add(result)
		}
		report.Finished = time.Now()
		return report, nil
	}

	seen := make(map[string]bool)
	for _, item := range e.cfg.Items {
		target := resolver.ResolveItem(item)

		if err := ctx.Err(); err != nil {
			result := newItemResult(target)
			result.fail(err)
			report.add(result)
			continue
		}

		result := e.processItem(ctx, target, seen)
		if result.err != nil {
			e.logger.Error("import item failed",
				"item", target.Pattern,
				"path", target.Path,
				"error", result.err)
		}
		report.add(result)
	}

	if resolver.UsedFallback() {
		msg := "version placeholders resolved to 0, no manifest version available"
		e.logger.Warn(msg)
		report.Warnings = append(report.Warnings, msg)
	}

	report.Finished = time.Now()
	e.logger.Info("import finished",
		"new", report.Totals.New,
		"replaced", report.Totals.Replaced,
		"unchanged", report.Totals.Unchanged,
		"skipped", report.Totals.Skipped,
		"failed_items", report.Totals.Failed)

	return report, nil
}

// resolver reads the manifest version. An unreadable manifest is a warning,
// placeholders then fall back to 0.
func (e *Engine) resolver(report *Report) *pathtmpl.Resolver {
	pom := e.cfg.ManifestPath()
	if pom == "" {
		return e.cfg.Resolver(nil)
	}

	version, err := manifest.Parse(pom, e.cfg.Manifest.ElementPaths)
	if err != nil {
		msg := fmt.Sprintf("manifest %s not usable", pom)
		e.logger.Warn(msg, "error", err)
		report.Warnings = append(report.Warnings, msg+": "+err.Error())
		return e.cfg.Resolver(nil)
	}

	e.logger.Info("read project version", "manifest", pom, "version", version.String())
	return e.cfg.Resolver(&version)
}

func newItemResult(target pathtmpl.RemoteTarget) ItemResult {
	return ItemResult{
		Pattern: target.Pattern,
		Path:    target.Path,
		Name:    target.Name,
		Files:   []FileResult{},
	}
}

// processItem runs one item through discovery, remote path creation,
// working copy sync, classification and commit. A remote path is recorded in
// seen once this item has imported, classified or committed it.
func (e *Engine) processItem(ctx context.Context, target pathtmpl.RemoteTarget, seen map[string]bool) ItemResult {
	result := newItemResult(target)
	logger := e.logger.With("item", target.Pattern, "path", target.Path)

	entries, err := match.Match(target.Pattern, e.cfg.TargetDir(), e.cfg.WorkDir(), e.cfg.LockPath())
	if err != nil {
		result.fail(err)
		return result
	}
	if len(entries) == 0 {
		logger.Info("no matches")
		result.NoMatches = true
		return result
	}
	logger.Info("discovered matches", "count", len(entries))

	remoteDir := cleanRemote(target.Path)
	missing, err := e.ensurer.Ensure(ctx, remoteDir)
	if err != nil {
		result.fail(fmt.Errorf("ensure %s: %w", remoteDir, err))
		return result
	}

	// In a dry run a missing remote directory was not created, so there is
	// nothing to check out and every match would be new.
	var anchor *workcopy.Anchor
	if !e.dryRun || len(missing) == 0 {
		a, err := e.anchors.Sync(ctx, remoteDir)
		if err != nil {
			result.fail(err)
			return result
		}
		anchor = &a
		result.Anchor = a.Dir
		result.AnchorRevision = a.Revision
		result.CheckedOut = a.CheckedOut
	}

	var touched, added []string
	var replaced []replacement
	for _, a := range match.AssignNames(entries, target.Name) {
		remote := path.Join(remoteDir, a.Name)
		file := FileResult{Local: a.Entry.Path, Name: a.Name, Remote: remote}

		if seen[remote] {
			logger.Warn("remote path already handled in this run, skipping", "local", a.Entry.Path, "remote", remote)
			file.Outcome = OutcomeSkipped
			result.Files = append(result.Files, file)
			continue
		}

		kind := vcs.KindNone
		if anchor != nil {
			kind, err = e.client.Kind(ctx, remote)
			if err != nil {
				result.fail(fmt.Errorf("check %s: %w", remote, err))
				return result
			}
		}

		if kind == vcs.KindNone {
			if err := e.importNew(ctx, a, &file, logger); err != nil {
				result.fail(err)
				return result
			}
			seen[remote] = true
			result.Files = append(result.Files, file)
			continue
		}

		if a.Entry.IsDir != (kind == vcs.KindDir) {
			result.fail(ferrors.Conflict("import", remote,
				fmt.Errorf("local %s is a %s but the repository holds a %s", a.Entry.Path, entryKind(a.Entry), kind)))
			return result
		}

		copyPath := filepath.Join(anchor.Dir, a.Name)
		newFiles, changed, err := e.reconcile(a.Entry, copyPath)
		if err != nil {
			result.fail(err)
			return result
		}
		if !changed {
			logger.Debug("unchanged", "local", a.Entry.Path, "remote", remote)
			file.Outcome = OutcomeUnchanged
			seen[remote] = true
			result.Files = append(result.Files, file)
			continue
		}

		file.Outcome = OutcomeReplaced
		file.Planned = e.dryRun
		if e.dryRun {
			logger.Info("[dry-run] would replace", "local", a.Entry.Path, "remote", remote)
			seen[remote] = true
		} else {
			logger.Info("replaced working copy content", "local", a.Entry.Path, "remote", remote)
		}
		touched = append(touched, copyPath)
		added = append(added, newFiles...)
		replaced = append(replaced, replacement{index: len(result.Files), copy: copyPath})
		result.Files = append(result.Files, file)
	}

	if e.dryRun || len(touched) == 0 {
		return result
	}

	if len(added) > 0 {
		if err := e.client.Add(ctx, added...); err != nil {
			result.fail(fmt.Errorf("schedule additions: %w", err))
			return result
		}
	}

	changes, err := e.client.Changes(ctx, touched...)
	if err != nil {
		result.fail(fmt.Errorf("collect changes: %w", err))
		return result
	}
	if changes.Empty() {
		logger.Info("nothing to commit")
		markSeen(result, replaced, seen)
		return result
	}

	info, err := e.client.Commit(ctx, changes, e.cfg.Commit.Message)
	if err != nil {
		result.fail(fmt.Errorf("commit: %w", err))
		return result
	}
	logger.Info("committed changes", "files", len(changes.Changes), "revision", info.Revision)
	result.Commit = &info
	markSeen(result, replaced, seen)
	e.describe(ctx, &result, replaced, logger)
	return result
}

// replacement ties a replaced entry of ItemResult.Files to its working copy
// path.
type replacement struct {
	index int
	copy  string
}

func markSeen(result ItemResult, replaced []replacement, seen map[string]bool) {
	for _, r := range replaced {
		seen[result.Files[r.index].Remote] = true
	}
}

// describe records the last change of every replaced path as the working
// copy reports it. Failures only cost the description, the commit stands.
func (e *Engine) describe(ctx context.Context, result *ItemResult, replaced []replacement, logger *slog.Logger) {
	for _, r := range replaced {
		file := &result.Files[r.index]
		info, err := e.client.Info(ctx, r.copy)
		if err != nil {
			logger.Warn("could not describe committed path", "remote", file.Remote, "error", err)
			continue
		}
		logger.Info("committed path",
			"remote", file.Remote,
			"revision", info.Commit.Revision,
			"author", info.Commit.Author,
			"date", info.Commit.Date)
		file.LastChange = &info.Commit
	}
}

// importNew imports a match that does not exist remotely as its own commit.
func (e *Engine) importNew(ctx context.Context, a match.Assignment, file *FileResult, logger *slog.Logger) error {
	file.Outcome = OutcomeNew
	if e.dryRun {
		file.Planned = true
		logger.Info("[dry-run] would import", "local", a.Entry.Path, "remote", file.Remote)
		return nil
	}

	msg := fmt.Sprintf("forceimport: importing %s/%s", strings.TrimRight(e.cfg.Repo.URL, "/"), file.Remote)
	info, err := e.client.Import(ctx, a.Entry.Path, file.Remote, msg)
	if err != nil {
		return fmt.Errorf("import %s: %w", file.Remote, err)
	}
	logger.Info("imported", "local", a.Entry.Path, "remote", file.Remote, "revision", info.Revision)
	file.Import = &info
	return nil
}

// reconcile compares a match with its working copy counterpart and, unless
// running dry, overwrites what differs. It returns the copies that are new
// to the working copy and whether anything differed.
func (e *Engine) reconcile(entry match.Entry, copyPath string) ([]string, bool, error) {
	if _, err := os.Stat(copyPath); err != nil {
		return nil, false, ferrors.Filesystem("locate working copy file", copyPath,
			fmt.Errorf("exists in the repository but not in the working copy: %w", err))
	}

	if !entry.IsDir {
		if compare.FilesEqual(entry.Path, copyPath) {
			return nil, false, nil
		}
		if e.dryRun {
			return nil, true, nil
		}
		if err := copyFile(entry.Path, copyPath); err != nil {
			return nil, false, ferrors.Filesystem("replace", copyPath, err)
		}
		return nil, true, nil
	}

	changed, err := compare.ChangedFiles(entry.Path, copyPath)
	if err != nil {
		return nil, false, ferrors.Filesystem("compare", entry.Path, err)
	}
	if len(changed) == 0 || e.dryRun {
		return nil, len(changed) > 0, nil
	}

	var added []string
	for _, rel := range changed {
		dst := filepath.Join(copyPath, rel)
		_, statErr := os.Stat(dst)
		if err := copyFile(filepath.Join(entry.Path, rel), dst); err != nil {
			return nil, false, ferrors.Filesystem("replace", dst, err)
		}
		if os.IsNotExist(statErr) {
			added = append(added, dst)
		}
	}
	return added, true, nil
}

// copyFile copies a file from src to dst with atomic write
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	// Create temp file in destination directory
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".forceimport-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}

	srcInfo, err := srcFile.Stat()
	if err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(srcInfo.Mode()); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}

// cleanRemote turns a resolved item path into a repository-relative
// directory, "" for the repository root.
func cleanRemote(p string) string {
	p = path.Clean("/" + p)
	return strings.Trim(p, "/")
}

func entryKind(e match.Entry) vcs.NodeKind {
	if e.IsDir {
		return vcs.KindDir
	}
	return vcs.KindFile
}
