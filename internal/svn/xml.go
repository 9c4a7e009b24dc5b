package svn

import (
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/schaermu/forceimport/internal/vcs"
)

type infoEntry struct {
	kind     vcs.NodeKind
	url      string
	revision vcs.Revision
	commit   vcs.CommitInfo
}

// parseInfo reads the first entry of `svn info --xml` output.
func parseInfo(data []byte) (infoEntry, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return infoEntry{}, fmt.Errorf("parse info: %w", err)
	}

	el := doc.FindElement("./info/entry")
	if el == nil {
		return infoEntry{}, fmt.Errorf("parse info: no entry")
	}

	entry := infoEntry{
		revision: vcs.Revision(el.SelectAttrValue("revision", "")),
	}
	switch el.SelectAttrValue("kind", "") {
	case "dir":
		entry.kind = vcs.KindDir
	case "file":
		entry.kind = vcs.KindFile
	}
	if u := el.FindElement("url"); u != nil {
		entry.url = u.Text()
	}
	if c := el.FindElement("commit"); c != nil {
		entry.commit = parseCommit(c)
	}
	return entry, nil
}

// parseStatus reads the versioned changes from `svn status --xml` output.
func parseStatus(data []byte) ([]vcs.Change, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	if doc.FindElement("./status") == nil {
		return nil, fmt.Errorf("parse status: no status element")
	}

	var changes []vcs.Change
	for _, el := range doc.FindElements("./status/target/entry") {
		ws := el.FindElement("wc-status")
		if ws == nil {
			continue
		}

		var status vcs.ChangeStatus
		switch ws.SelectAttrValue("item", "") {
		case "added":
			status = vcs.StatusAdded
		case "modified", "replaced":
			status = vcs.StatusModified
		case "deleted":
			status = vcs.StatusDeleted
		default:
			// Property-only edits are committed along with content.
			if ws.SelectAttrValue("props", "") != "modified" {
				continue
			}
			status = vcs.StatusModified
		}
		changes = append(changes, vcs.Change{Path: el.SelectAttrValue("path", ""), Status: status})
	}
	return changes, nil
}

// parseUnversioned returns the paths `svn status --xml --no-ignore` reports
// as unversioned or ignored.
func parseUnversioned(data []byte) ([]string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	if doc.FindElement("./status") == nil {
		return nil, fmt.Errorf("parse status: no status element")
	}

	var paths []string
	for _, el := range doc.FindElements("./status/target/entry") {
		ws := el.FindElement("wc-status")
		if ws == nil {
			continue
		}
		switch ws.SelectAttrValue("item", "") {
		case "unversioned", "ignored":
			paths = append(paths, el.SelectAttrValue("path", ""))
		}
	}
	return paths, nil
}

// parseLog reads the first entry of `svn log --xml` output.
func parseLog(data []byte) (vcs.CommitInfo, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return vcs.CommitInfo{}, fmt.Errorf("parse log: %w", err)
	}

	el := doc.FindElement("./log/logentry")
	if el == nil {
		return vcs.CommitInfo{}, fmt.Errorf("parse log: no entry")
	}
	return parseCommit(el), nil
}

// parseCommit reads a revision attribute with author and date children, the
// shape shared by info commits and log entries.
func parseCommit(el *etree.Element) vcs.CommitInfo {
	info := vcs.CommitInfo{Revision: vcs.Revision(el.SelectAttrValue("revision", ""))}
	if a := el.FindElement("author"); a != nil {
		info.Author = a.Text()
	}
	if d := el.FindElement("date"); d != nil {
		if t, err := time.Parse(time.RFC3339Nano, d.Text()); err == nil {
			info.Date = t
		}
	}
	return info
}
