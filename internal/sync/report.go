package sync

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/schaermu/forceimport/internal/vcs"
)

// Outcome is what happened to one matched file or folder.
type Outcome string

const (
	// OutcomeNew means the path did not exist remotely and was imported.
	OutcomeNew Outcome = "new"
	// OutcomeUnchanged means the working copy already held identical content.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeReplaced means the working copy content was overwritten and
	// committed with the item.
	OutcomeReplaced Outcome = "replaced"
	// OutcomeSkipped means another file of this run already went to the
	// same remote path.
	OutcomeSkipped Outcome = "skipped"
)

// Report collects the results of one import run
type Report struct {
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	DryRun   bool         `json:"dry_run"`
	Version  string       `json:"version,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	Items    []ItemResult `json:"items"`
	Totals   Totals       `json:"totals"`
}

// Totals counts file outcomes and failed items over the whole run
type Totals struct {
	New       int `json:"new"`
	Unchanged int `json:"unchanged"`
	Replaced  int `json:"replaced"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed_items"`
}

// ItemResult is the outcome of one import item
type ItemResult struct {
	Pattern        string       `json:"pattern"`
	Path           string       `json:"path"`
	Name           string       `json:"name,omitempty"`
	Anchor         string       `json:"anchor,omitempty"`
	AnchorRevision vcs.Revision `json:"anchor_revision,omitempty"`
	// CheckedOut is set when the working copy was created by this run.
	CheckedOut bool            `json:"checked_out,omitempty"`
	NoMatches  bool            `json:"no_matches,omitempty"`
	Files      []FileResult    `json:"files"`
	Commit     *vcs.CommitInfo `json:"commit,omitempty"`
	Error      string          `json:"error,omitempty"`

	err error
}

// FileResult is the outcome of one matched file or folder
type FileResult struct {
	Local   string  `json:"local"`
	Name    string  `json:"name"`
	Remote  string  `json:"remote"`
	Outcome Outcome `json:"outcome"`
	// Planned marks outcomes of a dry run that were not carried out.
	Planned bool            `json:"planned,omitempty"`
	Import  *vcs.CommitInfo `json:"import,omitempty"`
	// LastChange is the last commit of a replaced path as the working copy
	// reports it after the item's commit.
	LastChange *vcs.CommitInfo `json:"last_change,omitempty"`
}

// Err returns the error that aborted the item, if any.
func (r *ItemResult) Err() error {
	return r.err
}

func (r *ItemResult) fail(err error) {
	r.err = err
	r.Error = err.Error()
}

// Failed reports whether any item failed.
func (r *Report) Failed() bool {
	return r.Totals.Failed > 0
}

// Err joins the errors of all failed items.
func (r *Report) Err() error {
	var errs []error
	for i := range r.Items {
		if err := r.Items[i].err; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Report) add(item ItemResult) {
	for _, f := range item.Files {
		switch f.Outcome {
		case OutcomeNew:
			r.Totals.New++
		case OutcomeUnchanged:
			r.Totals.Unchanged++
		case OutcomeReplaced:
			r.Totals.Replaced++
		case OutcomeSkipped:
			r.Totals.Skipped++
		}
	}
	if item.err != nil {
		r.Totals.Failed++
	}
	r.Items = append(r.Items, item)
}

// WriteFile stores the report as indented JSON. The file is replaced
// atomically.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".forceimport-report-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
