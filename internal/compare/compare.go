// Package compare decides whether local artifacts differ from their
// working-copy counterparts by comparing content byte for byte.
package compare

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// blockSize is the amount read from each file per comparison step.
const blockSize = 32 * 1024

// metadataDirs are version control bookkeeping directories that never take
// part in a tree comparison.
var metadataDirs = map[string]bool{
	".svn": true,
	".git": true,
}

// FilesEqual reports whether the files at a and b have identical content.
// It fails closed: a missing file, a read error or a size mismatch all report
// false.
func FilesEqual(a, b string) bool {
	infoA, err := os.Stat(a)
	if err != nil || !infoA.Mode().IsRegular() {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil || !infoB.Mode().IsRegular() {
		return false
	}
	if infoA.Size() != infoB.Size() {
		return false
	}

	fa, err := os.Open(a)
	if err != nil {
		return false
	}
	defer func() {
		_ = fa.Close()
	}()

	fb, err := os.Open(b)
	if err != nil {
		return false
	}
	defer func() {
		_ = fb.Close()
	}()

	return ReadersEqual(fa, fb)
}

// ReadersEqual reports whether ra and rb yield the same byte stream. Only the
// bytes actually read in each block are compared.
func ReadersEqual(ra, rb io.Reader) bool {
	bufA := make([]byte, blockSize)
	bufB := make([]byte, blockSize)

	for {
		na, errA := io.ReadFull(ra, bufA)
		nb, errB := io.ReadFull(rb, bufB)

		if !isReadOK(errA) || !isReadOK(errB) {
			return false
		}
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false
		}

		doneA := errA != nil
		doneB := errB != nil
		if doneA || doneB {
			return doneA == doneB
		}
	}
}

// isReadOK accepts the end-of-stream results of io.ReadFull.
func isReadOK(err error) bool {
	return err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ChangedFiles returns the relative paths of regular files under src whose
// counterpart under dst is missing or differs, sorted by path.
func ChangedFiles(src, dst string) ([]string, error) {
	files, err := listTree(src)
	if err != nil {
		return nil, err
	}

	var changed []string
	for _, rel := range files {
		if !FilesEqual(filepath.Join(src, rel), filepath.Join(dst, rel)) {
			changed = append(changed, rel)
		}
	}
	return changed, nil
}

// listTree returns the sorted relative paths of all regular files below root.
func listTree(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && metadataDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
