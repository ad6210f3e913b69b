// Package catalog discovers projects: first-level directories under the
// store root, minus hidden and reserved names.
package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Reserved directory names that never appear as projects; they hold
// internal/tooling storage next to the project trees.
var reserved = map[string]bool{
	"Script":  true,
	"Scripts": true,
}

type Catalog struct {
	projectsDir string
}

func New(projectsDir string) *Catalog {
	return &Catalog{projectsDir: projectsDir}
}

// List returns the sorted project names. A missing store root yields an
// empty catalog, not an error.
func (c *Catalog) List() ([]string, error) {
	ents, err := os.ReadDir(c.projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !ValidName(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether name is a valid project with a directory present.
func (c *Catalog) Exists(name string) bool {
	if !ValidName(name) {
		return false
	}
	st, err := os.Stat(c.Root(name))
	return err == nil && st.IsDir()
}

// Root returns the project's root directory. Callers must have checked
// ValidName (Exists does) before touching the result.
func (c *Catalog) Root(name string) string {
	return filepath.Join(c.projectsDir, name)
}

// ValidName reports whether name can denote a project: non-empty, no
// separators, not hidden, not reserved.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.HasPrefix(name, ".") {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return !reserved[name]
}
