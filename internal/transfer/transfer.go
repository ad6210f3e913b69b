// Package transfer streams files in and out of a project root. Uploads are
// written to a temporary file next to the destination and renamed into
// place on success, so a torn write is never visible at the final path.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"assetvault/internal/pathguard"
)

// ErrNotFound is returned when the resolved path does not name a regular file.
var ErrNotFound = errors.New("file not found")

const copyBufSize = 1 << 20

type Service struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// Open resolves rel under projectRoot and opens it for streaming reads.
// The returned file supports seeking, so callers can serve Range requests.
func (s *Service) Open(projectRoot, rel string) (*os.File, os.FileInfo, error) {
	abs, err := pathguard.Resolve(projectRoot, rel)
	if err != nil {
		return nil, nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("stat: %w", err)
	}
	if !st.Mode().IsRegular() {
		return nil, nil, ErrNotFound
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	return f, st, nil
}

// Store streams r into projectRoot/rel, creating intermediate directories
// as needed. The incoming bytes land in a temp file in the destination
// directory; only a complete, synced write is renamed over the final path.
// On any failure (including cancellation) the temp file is removed and the
// previous content, if any, stays intact. Returns the cleaned relative
// path the file was saved at.
func (s *Service) Store(ctx context.Context, projectRoot, rel string, r io.Reader) (string, error) {
	abs, err := pathguard.Resolve(projectRoot, rel)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// No-ops after a successful rename.
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	var written int64
	buf := make([]byte, copyBufSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				return "", fmt.Errorf("write: %w", werr)
			}
			written += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("receive: %w", rerr)
		}
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, abs); err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}
	saved := pathguard.CleanRel(rel)
	s.logger.Debug("stored file",
		zap.String("path", saved),
		zap.Int64("bytes", written))
	return saved, nil
}
