// Package httpserver wires the storage core to its HTTP surface.
package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"assetvault/internal/catalog"
	"assetvault/internal/config"
	"assetvault/internal/credential"
	"assetvault/internal/manifest"
	"assetvault/internal/metrics"
	"assetvault/internal/pathguard"
	"assetvault/internal/session"
	"assetvault/internal/transfer"
)

type ctxKey string

const (
	projectKey ctxKey = "assetvault.project"
	tokenKey   ctxKey = "assetvault.token"
)

type Options struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Server struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	catalog  *catalog.Catalog
	creds    *credential.Store
	sessions *session.Registry
	transfer *transfer.Service

	davMu    sync.Mutex
	davLocks map[string]webdav.LockSystem
}

func New(opts Options) (*Server, error) {
	if opts.Config.ProjectsDir == "" {
		return nil, errors.New("projects dir is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:      opts.Config,
		logger:   logger,
		metrics:  m,
		catalog:  catalog.New(opts.Config.ProjectsDir),
		creds:    credential.NewStore(opts.Config.ProjectsDir, opts.Config.AllowLegacyPlaintext, logger),
		sessions: session.NewRegistry(opts.Config.SessionTTL),
		transfer: transfer.New(logger),
		davLocks: map[string]webdav.LockSystem{},
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", s.metrics.Handler())

	mux.HandleFunc("/projects", s.handleProjects)
	mux.HandleFunc("/auth/login", s.handleLogin)

	mux.Handle("/auth/logout", s.requireSession(http.HandlerFunc(s.handleLogout)))
	mux.Handle("/manifest", s.requireSession(http.HandlerFunc(s.handleManifest)))
	mux.Handle("/download", s.requireSession(http.HandlerFunc(s.handleDownload)))
	mux.Handle("/upload", s.requireSession(http.HandlerFunc(s.handleUpload)))
	mux.Handle("/thumb", s.requireSession(http.HandlerFunc(s.handleThumb)))

	if s.cfg.WebDAV {
		mux.HandleFunc("/dav/", s.handleDAV)
	}

	return s.withLogging(mux)
}

// requireSession resolves the bearer token and binds the request to its
// project. Missing, malformed, unknown, and expired tokens all get the
// same 401.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, prefix) {
			s.unauthorized(w)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
		project, err := s.sessions.Resolve(token)
		if err != nil {
			s.unauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), projectKey, project)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", uuid.NewString()),
		)
	})
}

// --- handlers ---

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	names, err := s.catalog.List()
	if err != nil {
		s.logger.Error("list projects", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": names})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Project  string `json:"project"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return
	}
	if !s.catalog.Exists(req.Project) {
		httpError(w, http.StatusNotFound, "project not found")
		return
	}
	if !s.creds.Verify(req.Project, req.Password) {
		// One message for wrong password and absent credential record.
		s.metrics.Logins.WithLabelValues(metrics.ResultDenied).Inc()
		httpError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.sessions.Issue(req.Project)
	if err != nil {
		s.logger.Error("issue token", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.metrics.Logins.WithLabelValues(metrics.ResultOK).Inc()
	s.logger.Info("login", zap.String("project", req.Project))
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token, _ := r.Context().Value(tokenKey).(string)
	s.sessions.Revoke(token)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	project := projectFrom(r)
	if !s.catalog.Exists(project) {
		httpError(w, http.StatusNotFound, "project not found")
		return
	}
	assets, err := manifest.Build(s.catalog.Root(project))
	if err != nil {
		s.logger.Error("manifest scan", zap.String("project", project), zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	project := projectFrom(r)
	rel := r.URL.Query().Get("path")
	f, st, err := s.transfer.Open(s.catalog.Root(project), rel)
	if err != nil {
		s.transferError(w, err)
		return
	}
	defer f.Close()

	if ct := contentTypeForAsset(st.Name()); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	// Count what actually left the server: Range responses and aborted
	// writes serve fewer bytes than the file holds.
	cw := &countingWriter{ResponseWriter: w}
	http.ServeContent(cw, r, st.Name(), st.ModTime(), f)
	s.metrics.Downloads.Inc()
	s.metrics.BytesServed.Add(float64(cw.written))
}

type countingWriter struct {
	http.ResponseWriter
	written int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	project := projectFrom(r)
	if err := r.ParseMultipartForm(32 << 20); err != nil { // larger parts spill to disk
		httpError(w, http.StatusBadRequest, "bad multipart")
		return
	}
	rel := r.FormValue("path")
	if strings.TrimSpace(rel) == "" {
		httpError(w, http.StatusBadRequest, "missing path")
		return
	}
	fh := filePart(r.MultipartForm)
	if fh == nil {
		httpError(w, http.StatusBadRequest, "missing file")
		return
	}
	src, err := fh.Open()
	if err != nil {
		httpError(w, http.StatusBadRequest, "open upload")
		return
	}
	defer src.Close()

	saved, err := s.transfer.Store(r.Context(), s.catalog.Root(project), rel, src)
	if err != nil {
		if errors.Is(err, pathguard.ErrInvalidPath) {
			httpError(w, http.StatusBadRequest, "invalid path")
			return
		}
		s.logger.Error("upload", zap.String("project", project), zap.Error(err))
		httpError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	s.metrics.Uploads.Inc()
	s.metrics.BytesReceived.Add(float64(fh.Size))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "saved": saved})
}

// handleDAV mounts a project root over WebDAV. The username is the project
// name, verified against the project's credential record.
func (s *Server) handleDAV(w http.ResponseWriter, r *http.Request) {
	project, pass, ok := parseBasicAuth(r.Header.Get("Authorization"))
	if !ok || !s.catalog.Exists(project) || !s.creds.Verify(project, pass) {
		w.Header().Set("WWW-Authenticate", `Basic realm="assetvault"`)
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h := &webdav.Handler{
		Prefix:     "/dav",
		FileSystem: davFS{webdav.Dir(s.catalog.Root(project))},
		LockSystem: s.davLock(project),
	}
	h.ServeHTTP(w, r)
}

// davFS hides the project's credential record from DAV clients; reading
// or replacing it through the mount would bypass the credential store.
type davFS struct {
	webdav.FileSystem
}

func davBlocked(name string) bool {
	return strings.Trim(path.Clean("/"+name), "/") == credential.RecordName
}

func (f davFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if davBlocked(name) {
		return nil, os.ErrPermission
	}
	return f.FileSystem.OpenFile(ctx, name, flag, perm)
}

func (f davFS) RemoveAll(ctx context.Context, name string) error {
	if davBlocked(name) {
		return os.ErrPermission
	}
	return f.FileSystem.RemoveAll(ctx, name)
}

func (f davFS) Rename(ctx context.Context, oldName, newName string) error {
	if davBlocked(oldName) || davBlocked(newName) {
		return os.ErrPermission
	}
	return f.FileSystem.Rename(ctx, oldName, newName)
}

func (f davFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	if davBlocked(name) {
		return nil, os.ErrNotExist
	}
	return f.FileSystem.Stat(ctx, name)
}

func (s *Server) davLock(project string) webdav.LockSystem {
	s.davMu.Lock()
	defer s.davMu.Unlock()
	ls, ok := s.davLocks[project]
	if !ok {
		ls = webdav.NewMemLS()
		s.davLocks[project] = ls
	}
	return ls
}

// --- helpers ---

func (s *Server) unauthorized(w http.ResponseWriter) {
	httpError(w, http.StatusUnauthorized, "unauthorized")
}

// transferError maps transfer/pathguard failures to the wire taxonomy
// without leaking resolved paths.
func (s *Server) transferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pathguard.ErrInvalidPath):
		httpError(w, http.StatusBadRequest, "invalid path")
	case errors.Is(err, transfer.ErrNotFound):
		httpError(w, http.StatusNotFound, "file not found")
	default:
		s.logger.Error("transfer", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal error")
	}
}

func projectFrom(r *http.Request) string {
	v, _ := r.Context().Value(projectKey).(string)
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func filePart(mf *multipart.Form) *multipart.FileHeader {
	if mf == nil || len(mf.File) == 0 {
		return nil
	}
	if v := mf.File["file"]; len(v) > 0 {
		return v[0]
	}
	// Else first key lexicographically for stable behavior.
	keys := make([]string, 0, len(mf.File))
	for k := range mf.File {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := mf.File[k]; len(v) > 0 {
			return v[0]
		}
	}
	return nil
}

func parseBasicAuth(v string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(v, prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(v, prefix)))
	if err != nil {
		return "", "", false
	}
	dec := string(raw)
	i := strings.IndexByte(dec, ':')
	if i <= 0 {
		return "", "", false
	}
	user, pass = dec[:i], dec[i+1:]
	if strings.Contains(user, "\x00") || strings.Contains(pass, "\x00") {
		return "", "", false
	}
	return user, pass, true
}

func contentTypeForAsset(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	// asset containers have no mime table entries anywhere
	case ".bgeo", ".vdb", ".cpio", ".abc":
		return "application/octet-stream"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
