// Package manifest derives a project's asset inventory from the
// filesystem. Nothing is stored: every Build is a fresh scan.
package manifest

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Asset is one manifest entry. Field names match the wire contract.
type Asset struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Version    int     `json:"version"`
	Path       string  `json:"path"`
	Thumb      *string `json:"thumb"`
	BytesTotal int64   `json:"bytes_total"`
}

// Extensions recognized as assets. Images double as their own thumbnails.
var assetExts = map[string]bool{
	"bgeo": true, // geometry caches
	"abc":  true, // alembic archives
	"vdb":  true, // volumes
	"cpio": true, // scene fragments
	"jpg":  true,
	"png":  true,
}

var imageExts = map[string]bool{
	"jpg": true,
	"png": true,
}

// IsImageType reports whether ext (lowercase, no dot) is a thumbnail-capable
// image type.
func IsImageType(ext string) bool {
	return imageExts[ext]
}

// Build walks projectRoot and emits one Asset per recognized file.
// WalkDir visits entries in lexical order, so repeated scans of an
// unchanged tree produce identical output. Unreadable entries are
// skipped rather than failing the whole scan.
func Build(projectRoot string) ([]Asset, error) {
	assets := make([]Asset, 0, 32)
	err := filepath.WalkDir(projectRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if !assetExts[ext] {
			return nil
		}
		rel, err := filepath.Rel(projectRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return nil
		}
		a := Asset{
			ID:         strings.TrimSuffix(name, filepath.Ext(name)),
			Type:       ext,
			Version:    1,
			Path:       rel,
			BytesTotal: info.Size(),
		}
		if imageExts[ext] {
			thumb := rel
			a.Thumb = &thumb
		}
		assets = append(assets, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}
