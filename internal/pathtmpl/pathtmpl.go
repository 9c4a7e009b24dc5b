// Package pathtmpl substitutes build placeholders into remote paths, file
// patterns, target names and local paths.
package pathtmpl

import (
	"strconv"
	"strings"
)

// Placeholder tokens understood by the resolver.
const (
	Root            = "_ROOT_"
	Major           = "_MAJOR_"
	Minor           = "_MINOR_"
	Patch           = "_PATCH_"
	Workspace       = "_WORKSPACE_"
	WorkspaceVar    = "$WORKSPACE"
	WorkspaceBraced = "${WORKSPACE}"
)

// VersionInfo holds the version components read from the project manifest.
type VersionInfo struct {
	Major int
	Minor int
	Patch int
}

// String renders the version as MAJOR.MINOR.PATCH.
func (v VersionInfo) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
}

// ImportItem is one configured synchronization unit. Path is a
// slash-terminated path below the repository URL or Root; an empty Name
// keeps each matched file's own name.
type ImportItem struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Path    string `yaml:"path" json:"path"`
	Name    string `yaml:"name" json:"name"`
}

// RemoteTarget is an ImportItem after placeholder substitution.
type RemoteTarget struct {
	Pattern string
	Path    string
	Name    string
}

// Resolver substitutes placeholders. A Resolver without version information
// replaces the version placeholders with 0 and remembers that it did.
type Resolver struct {
	version   VersionInfo
	known     bool
	workspace string
	fallback  bool
}

// New returns a resolver for a parsed manifest version.
func New(version VersionInfo) *Resolver {
	return &Resolver{version: version, known: true}
}

// NewUnversioned returns a resolver for runs without a readable manifest.
func NewUnversioned() *Resolver {
	return &Resolver{}
}

// WithWorkspace sets the workspace directory used for local paths. A
// trailing separator is dropped.
func (r *Resolver) WithWorkspace(dir string) *Resolver {
	r.workspace = strings.TrimRight(dir, `/\`)
	return r
}

// Resolve substitutes the root and version placeholders in s.
func (r *Resolver) Resolve(s string) string {
	if !r.known && containsVersion(s) {
		r.fallback = true
	}

	return strings.NewReplacer(
		Root, "",
		Major, strconv.Itoa(r.version.Major),
		Minor, strconv.Itoa(r.version.Minor),
		Patch, strconv.Itoa(r.version.Patch),
	).Replace(s)
}

// ResolveLocal substitutes the workspace placeholders in a local path. It
// leaves s untouched when no workspace is configured.
func (r *Resolver) ResolveLocal(s string) string {
	if r.workspace == "" {
		return s
	}
	return strings.NewReplacer(
		Workspace, r.workspace,
		WorkspaceBraced, r.workspace,
		WorkspaceVar, r.workspace,
	).Replace(s)
}

// ResolveItem substitutes placeholders in all three fields of item.
func (r *Resolver) ResolveItem(item ImportItem) RemoteTarget {
	target := RemoteTarget{
		Pattern: r.Resolve(item.Pattern),
		Path:    r.Resolve(item.Path),
	}
	if item.Name != "" {
		target.Name = r.Resolve(item.Name)
	}
	return target
}

// UsedFallback reports whether a version placeholder was replaced by 0
// because no manifest version was available.
func (r *Resolver) UsedFallback() bool {
	return r.fallback
}

// Version returns the version in use and whether it came from a manifest.
func (r *Resolver) Version() (VersionInfo, bool) {
	return r.version, r.known
}

func containsVersion(s string) bool {
	return strings.Contains(s, Major) || strings.Contains(s, Minor) || strings.Contains(s, Patch)
}
