package httpserver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	// png decoder; jpeg registers via the encode import above
	_ "image/png"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"assetvault/internal/manifest"
	"assetvault/internal/pathguard"
)

// handleThumb serves a downscaled JPEG of an image asset. Results are
// cached under the state dir keyed by project, sanitized path, and mtime,
// so an overwritten asset gets a fresh thumbnail.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	project := projectFrom(r)
	rel := r.URL.Query().Get("path")
	abs, err := pathguard.Resolve(s.catalog.Root(project), rel)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid path")
		return
	}
	st, err := os.Stat(abs)
	if err != nil || !st.Mode().IsRegular() {
		httpError(w, http.StatusNotFound, "file not found")
		return
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(abs), "."))
	if !manifest.IsImageType(ext) {
		httpError(w, http.StatusNotFound, "not an image asset")
		return
	}

	cacheDir := filepath.Join(s.cfg.StateDir, "thumbs", project)
	key := fmt.Sprintf("%s-%d.jpg", cacheKey(pathguard.CleanRel(rel)), st.ModTime().Unix())
	cachePath := filepath.Join(cacheDir, key)
	if b, err := os.ReadFile(cachePath); err == nil {
		serveThumb(w, b)
		return
	}

	b, err := renderThumb(abs, s.cfg.ThumbMax)
	if err != nil {
		s.logger.Warn("thumbnail render failed",
			zap.String("project", project), zap.Error(err))
		httpError(w, http.StatusNotFound, "file not found")
		return
	}
	if err := os.MkdirAll(cacheDir, 0o755); err == nil {
		_ = os.WriteFile(cachePath, b, 0o644)
	}
	serveThumb(w, b)
}

func serveThumb(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(b)
}

// cacheKey flattens a clean relative path into a single filename. The
// path is hashed so separator variants like "a_b.png" and "a/b.png"
// cannot collide on one cache entry.
func cacheKey(rel string) string {
	sum := sha256.Sum256([]byte(rel))
	return hex.EncodeToString(sum[:16])
}

// renderThumb decodes the image and scales its longest edge down to max,
// preserving aspect ratio. Small images pass through at original size.
func renderThumb(absPath string, max int) ([]byte, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, os.ErrInvalid
	}
	if max <= 0 {
		max = 256
	}

	nw, nh := fitWithin(w, h, max)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 82}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w > h {
		return max, clampDim(h * max / w)
	}
	return clampDim(w * max / h), max
}

func clampDim(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
