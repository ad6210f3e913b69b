// Package session issues and resolves opaque bearer tokens bound to an
// authenticated project.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// ErrInvalidToken is returned for unknown, revoked, or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// Registry owns the process-wide token map. All access goes through the
// mutex; the registry is shared by concurrent logins and every
// authenticated request.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	byToken   map[string]*entry
	byProject map[string]string
}

type entry struct {
	project  string
	deadline time.Time // zero means no expiry
}

// NewRegistry creates an empty registry. ttl > 0 enables an idle timeout:
// each successful Resolve slides the token's deadline forward by ttl.
// ttl == 0 keeps tokens valid for the process lifetime.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:       ttl,
		now:       time.Now,
		byToken:   map[string]*entry{},
		byProject: map[string]string{},
	}
}

// Issue mints a new token for project. A previous token for the same
// project, if any, becomes invalid.
func (r *Registry) Issue(project string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byProject[project]; ok {
		delete(r.byToken, old)
	}
	e := &entry{project: project}
	if r.ttl > 0 {
		e.deadline = r.now().Add(r.ttl)
	}
	r.byToken[token] = e
	r.byProject[project] = token
	return token, nil
}

// Resolve maps token back to its project. Expired tokens are dropped
// lazily and reported as invalid.
func (r *Registry) Resolve(token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byToken[token]
	if !ok {
		return "", ErrInvalidToken
	}
	if !e.deadline.IsZero() && r.now().After(e.deadline) {
		r.dropLocked(token, e)
		return "", ErrInvalidToken
	}
	if r.ttl > 0 {
		e.deadline = r.now().Add(r.ttl)
	}
	return e.project, nil
}

// Revoke invalidates token. Revoking an unknown token is a no-op.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byToken[token]; ok {
		r.dropLocked(token, e)
	}
}

func (r *Registry) dropLocked(token string, e *entry) {
	delete(r.byToken, token)
	if r.byProject[e.project] == token {
		delete(r.byProject, e.project)
	}
}

func newToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
