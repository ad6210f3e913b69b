// Package pathguard validates client-supplied relative paths against a
// project root. Every operation that touches the filesystem with an
// untrusted path argument must go through Resolve.
package pathguard

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for empty, absolute, or root-escaping paths.
var ErrInvalidPath = errors.New("invalid path")

// CleanRel takes a user path like "a//b", "geo\\cache.vdb", "/a/b" and
// returns a slash-based, no-leading-slash relative path ("" means root).
func CleanRel(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." || p == "/" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p) // force absolute for stable cleaning
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// Resolve returns an absolute filesystem path strictly inside rootAbs for
// the given untrusted rel path. Both separator conventions are accepted.
// Empty paths, absolute paths (either convention, drive letters included)
// and anything that escapes the root after cleaning fail with ErrInvalidPath.
func Resolve(rootAbs, rel string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(rel, "\\", "/"))
	if trimmed == "" || strings.HasPrefix(trimmed, "/") || hasDrivePrefix(trimmed) {
		return "", ErrInvalidPath
	}
	if strings.Contains(trimmed, "\x00") {
		return "", ErrInvalidPath
	}
	// Cleaning would swallow leading ".." segments; a traversal attempt is
	// rejected outright rather than quietly re-rooted.
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	cleaned := CleanRel(trimmed)
	if cleaned == "" {
		// "." or "a/.." collapse to the root itself; file operations
		// always need a path strictly below it.
		return "", ErrInvalidPath
	}
	abs := filepath.Join(rootAbs, filepath.FromSlash(cleaned))
	absClean := filepath.Clean(abs)
	rootClean := filepath.Clean(rootAbs)
	if absClean == rootClean || !strings.HasPrefix(absClean, rootClean+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	if err := checkResolvedWithin(rootClean, absClean); err != nil {
		return "", err
	}
	return absClean, nil
}

// checkResolvedWithin repeats the prefix comparison on the resolved
// absolute form: the lexical check alone cannot see a symlink planted
// inside the root that points outside it. Components that do not exist
// yet (uploads create them later) are carried over the deepest existing
// ancestor's resolution.
func checkResolvedWithin(rootClean, absClean string) error {
	resolvedRoot, err := filepath.EvalSymlinks(rootClean)
	if err != nil {
		return ErrInvalidPath
	}
	anc, suffix := absClean, ""
	var resolved string
	for {
		target, err := filepath.EvalSymlinks(anc)
		if err == nil {
			resolved = filepath.Join(target, suffix)
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return ErrInvalidPath
		}
		parent := filepath.Dir(anc)
		if parent == anc {
			return ErrInvalidPath
		}
		suffix = filepath.Join(filepath.Base(anc), suffix)
		anc = parent
	}
	if resolved == resolvedRoot || !strings.HasPrefix(resolved, resolvedRoot+string(filepath.Separator)) {
		return ErrInvalidPath
	}
	return nil
}

func hasDrivePrefix(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
