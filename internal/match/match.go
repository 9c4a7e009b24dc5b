// Package match discovers the build artifacts that qualify for import.
package match

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	ferrors "github.com/schaermu/forceimport/internal/errors"
)

// Entry is a file or folder found directly inside the searched directory.
type Entry struct {
	Name  string
	Path  string
	IsDir bool
}

// Assignment pairs a matched entry with the name it receives remotely.
type Assignment struct {
	Entry Entry
	Name  string
}

// Compile turns an item pattern into a regular expression that must match a
// whole file name.
func Compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, ferrors.Configuration("compile pattern", fmt.Errorf("%q: %w", pattern, err))
	}
	return re, nil
}

// Match returns the entries of dir whose simple name fully matches pattern,
// sorted by name. Only one directory level is searched. Paths listed in
// exclude are never returned.
func Match(pattern, dir string, exclude ...string) ([]Entry, error) {
	re, err := Compile(pattern)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ferrors.Filesystem("read target directory", dir, err)
	}

	skip := make(map[string]bool, len(exclude))
	for _, p := range exclude {
		skip[filepath.Clean(p)] = true
	}

	var entries []Entry
	for _, d := range dirEntries {
		if !re.MatchString(d.Name()) {
			continue
		}

		path := filepath.Join(dir, d.Name())
		if skip[path] {
			continue
		}

		isDir := d.IsDir()
		if d.Type()&os.ModeSymlink != 0 {
			// Follow links so a linked artifact folder is imported as a folder.
			if info, err := os.Stat(path); err == nil {
				isDir = info.IsDir()
			}
		}

		entries = append(entries, Entry{
			Name:  d.Name(),
			Path:  path,
			IsDir: isDir,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return entries, nil
}

// AssignNames computes the remote name of every entry. With an empty
// template each entry keeps its own name. Entries sharing a remote name keep
// their match order: the first one is left as is and the k-th following one
// gets the prefix k.
func AssignNames(entries []Entry, template string) []Assignment {
	seen := make(map[string]int, len(entries))
	result := make([]Assignment, 0, len(entries))

	for _, e := range entries {
		name := template
		if name == "" {
			name = e.Name
		}

		n := seen[name]
		seen[name] = n + 1

		if n > 0 {
			name = strconv.Itoa(n) + name
		}

		result = append(result, Assignment{Entry: e, Name: name})
	}

	return result
}
