// Package remotepath makes sure a directory path exists in the repository
// before anything is imported below it.
package remotepath

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/vcs"
)

// Ensurer creates missing remote directories one segment at a time.
type Ensurer struct {
	client  vcs.Client
	baseURL string
	logger  *slog.Logger
	dryRun  bool
}

// NewEnsurer returns an Ensurer working on the repository client. baseURL is
// only used in commit messages. In dry-run mode missing directories are
// reported but not created.
func NewEnsurer(client vcs.Client, baseURL string, logger *slog.Logger, dryRun bool) *Ensurer {
	return &Ensurer{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		dryRun:  dryRun,
	}
}

// Ensure checks every cumulative prefix of path and creates the ones that
// do not exist, shallowest first. It returns the directories it created. A
// file found where a directory is expected is a conflict error.
func (e *Ensurer) Ensure(ctx context.Context, path string) ([]string, error) {
	var created []string
	prefix := ""

	for _, segment := range Segments(path) {
		if prefix == "" {
			prefix = segment
		} else {
			prefix += "/" + segment
		}

		kind, err := e.client.Kind(ctx, prefix)
		if err != nil {
			return created, fmt.Errorf("check %s: %w", prefix, err)
		}

		switch kind {
		case vcs.KindDir:
			continue
		case vcs.KindFile:
			return created, ferrors.Conflict("ensure path", prefix,
				fmt.Errorf("a file exists where a directory is expected"))
		}

		if e.dryRun {
			e.logger.Info("[dry-run] would create directory", "path", prefix)
			created = append(created, prefix)
			continue
		}

		msg := fmt.Sprintf("forceimport: creating directory %s/%s", e.baseURL, prefix)
		info, err := e.client.Mkdir(ctx, prefix, msg)
		if err != nil {
			return created, fmt.Errorf("create %s: %w", prefix, err)
		}
		e.logger.Info("created remote directory", "path", prefix, "revision", info.Revision)
		created = append(created, prefix)
	}

	return created, nil
}

// Segments splits a slash-separated remote path into its non-empty segments.
func Segments(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			segments = append(segments, p)
		}
	}
	return segments
}
