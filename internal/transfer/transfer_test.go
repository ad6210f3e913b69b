package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"assetvault/internal/pathguard"
)

func newService(t *testing.T) *Service {
	return New(zaptest.NewLogger(t))
}

func TestStoreThenOpenRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := newService(t)
	payload := bytes.Repeat([]byte("bgeo-frame-"), 4096)

	saved, err := s.Store(context.Background(), root, "geo/cache.bgeo", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "geo/cache.bgeo", saved)

	f, st, err := s.Open(root, "geo/cache.bgeo")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(len(payload)), st.Size())

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestStoreOverwritesAtomically(t *testing.T) {
	root := t.TempDir()
	s := newService(t)

	_, err := s.Store(context.Background(), root, "a.vdb", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = s.Store(context.Background(), root, "a.vdb", strings.NewReader("second"))
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "a.vdb"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

// brokenReader yields some bytes, then fails, like a client that
// disconnects mid-upload.
type brokenReader struct {
	data []byte
	off  int
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, errors.New("connection reset")
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

func TestInterruptedStoreLeavesOldContentIntact(t *testing.T) {
	root := t.TempDir()
	s := newService(t)

	_, err := s.Store(context.Background(), root, "shot.abc", strings.NewReader("complete-old-version"))
	require.NoError(t, err)

	_, err = s.Store(context.Background(), root, "shot.abc",
		&brokenReader{data: bytes.Repeat([]byte("x"), 3*copyBufSize)})
	require.Error(t, err)

	got, err := os.ReadFile(filepath.Join(root, "shot.abc"))
	require.NoError(t, err)
	assert.Equal(t, "complete-old-version", string(got), "old version must survive a torn upload")

	leftovers, err := filepath.Glob(filepath.Join(root, ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "aborted upload must not leave temp files")
}

func TestInterruptedStoreNeverCreatesFinalPath(t *testing.T) {
	root := t.TempDir()
	s := newService(t)

	_, err := s.Store(context.Background(), root, "fresh.cpio",
		&brokenReader{data: []byte("partial")})
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(root, "fresh.cpio"))
	require.True(t, os.IsNotExist(err), "half-written upload must not be visible at the final path")
}

func TestCancelledStoreAborts(t *testing.T) {
	root := t.TempDir()
	s := newService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Store(ctx, root, "late.vdb", strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)

	_, err = os.Stat(filepath.Join(root, "late.vdb"))
	require.True(t, os.IsNotExist(err))
}

func TestStoreRejectsEscapingPaths(t *testing.T) {
	root := t.TempDir()
	s := newService(t)

	for _, p := range []string{"../out.bgeo", "..\\out.bgeo", "/abs.bgeo", ""} {
		_, err := s.Store(context.Background(), root, p, strings.NewReader("x"))
		require.ErrorIs(t, err, pathguard.ErrInvalidPath, "path %q", p)
	}
}

func TestOpenRefusesSymlinkOutOfProject(t *testing.T) {
	base := t.TempDir()
	rootA := filepath.Join(base, "A")
	rootB := filepath.Join(base, "B")
	require.NoError(t, os.MkdirAll(rootA, 0o755))
	require.NoError(t, os.MkdirAll(rootB, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rootB, "secret.vdb"), []byte("other-tenant"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(rootB, "secret.vdb"), filepath.Join(rootA, "link.vdb")))

	s := newService(t)
	_, _, err := s.Open(rootA, "link.vdb")
	require.ErrorIs(t, err, pathguard.ErrInvalidPath, "symlink must not reach another project's files")

	// writes through a symlinked directory are refused too
	require.NoError(t, os.Symlink(rootB, filepath.Join(rootA, "shared")))
	_, err = s.Store(context.Background(), rootA, "shared/new.vdb", strings.NewReader("x"))
	require.ErrorIs(t, err, pathguard.ErrInvalidPath)
	_, serr := os.Stat(filepath.Join(rootB, "new.vdb"))
	require.True(t, os.IsNotExist(serr))
}

func TestOpenErrors(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	s := newService(t)

	_, _, err := s.Open(root, "missing.vdb")
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Open(root, "dir")
	require.ErrorIs(t, err, ErrNotFound, "directories are not downloadable")

	_, _, err = s.Open(root, "../etc/passwd")
	require.ErrorIs(t, err, pathguard.ErrInvalidPath)
}
