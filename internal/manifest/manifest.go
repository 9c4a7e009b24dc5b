// Package manifest reads MAJOR.MINOR.PATCH version numbers from a Maven
// project descriptor (pom.xml).
package manifest

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/beevik/etree"

	ferrors "github.com/schaermu/forceimport/internal/errors"
	"github.com/schaermu/forceimport/internal/pathtmpl"
)

// Default element paths for the project version.
const (
	versionPath       = "./project/version"
	parentVersionPath = "./project/parent/version"
	propertiesPath    = "./project/properties"
)

var propertyRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ElementPaths selects the elements holding each version component. Paths
// use etree path syntax, e.g. "./project/properties/major". When all three
// are empty the project version string is parsed instead.
type ElementPaths struct {
	Major string `yaml:"major_path"`
	Minor string `yaml:"minor_path"`
	Patch string `yaml:"patch_path"`
}

// IsZero reports whether no element path is configured.
func (p ElementPaths) IsZero() bool {
	return p.Major == "" && p.Minor == "" && p.Patch == ""
}

// Parse reads the version from the manifest at path.
func Parse(path string, paths ElementPaths) (pathtmpl.VersionInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return pathtmpl.VersionInfo{}, ferrors.Filesystem("read manifest", path, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return pathtmpl.VersionInfo{}, ferrors.Filesystem("parse manifest", path, err)
	}

	if paths.IsZero() {
		return projectVersion(doc, path)
	}
	return componentVersion(doc, path, paths)
}

// projectVersion parses the project (or inherited parent) version string.
func projectVersion(doc *etree.Document, path string) (pathtmpl.VersionInfo, error) {
	el := doc.FindElement(versionPath)
	if el == nil {
		el = doc.FindElement(parentVersionPath)
	}
	if el == nil {
		return pathtmpl.VersionInfo{}, ferrors.Configuration("read manifest version",
			fmt.Errorf("%s: no project or parent version element", path))
	}

	raw := expandProperties(doc, strings.TrimSpace(el.Text()))
	v, err := semver.NewVersion(raw)
	if err != nil {
		return pathtmpl.VersionInfo{}, ferrors.Configuration("read manifest version",
			fmt.Errorf("%s: invalid version %q: %w", path, raw, err))
	}

	return pathtmpl.VersionInfo{
		Major: int(v.Major()),
		Minor: int(v.Minor()),
		Patch: int(v.Patch()),
	}, nil
}

// componentVersion reads each configured component from its own element.
// Components without a configured path stay 0.
func componentVersion(doc *etree.Document, path string, paths ElementPaths) (pathtmpl.VersionInfo, error) {
	var info pathtmpl.VersionInfo

	fields := []struct {
		name string
		expr string
		dst  *int
	}{
		{name: "major", expr: paths.Major, dst: &info.Major},
		{name: "minor", expr: paths.Minor, dst: &info.Minor},
		{name: "patch", expr: paths.Patch, dst: &info.Patch},
	}

	for _, f := range fields {
		if f.expr == "" {
			continue
		}

		expr, err := etree.CompilePath(f.expr)
		if err != nil {
			return pathtmpl.VersionInfo{}, ferrors.Configuration("compile "+f.name+" path", err)
		}

		el := doc.FindElementPath(expr)
		if el == nil {
			return pathtmpl.VersionInfo{}, ferrors.Configuration("read "+f.name+" version",
				fmt.Errorf("%s: no element matches %q", path, f.expr))
		}

		text := expandProperties(doc, strings.TrimSpace(el.Text()))
		n, err := strconv.Atoi(text)
		if err != nil {
			return pathtmpl.VersionInfo{}, ferrors.Configuration("read "+f.name+" version",
				fmt.Errorf("%s: %q is not a number: %w", path, text, err))
		}
		*f.dst = n
	}

	return info, nil
}

// expandProperties replaces ${name} references with values declared under
// project/properties. Unknown references are left as they are.
func expandProperties(doc *etree.Document, s string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	props := doc.FindElement(propertiesPath)
	if props == nil {
		return s
	}

	return propertyRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := propertyRef.FindStringSubmatch(ref)[1]
		if el := props.SelectElement(name); el != nil {
			return strings.TrimSpace(el.Text())
		}
		return ref
	})
}
