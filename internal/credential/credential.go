// Package credential verifies per-project secrets against the project's
// on-disk credential record.
package credential

import (
	"bytes"
	"crypto/subtle"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// RecordName is the credential record inside a project root. Dot-prefixed
// so it never shows up as an asset and is skipped by the manifest scan.
const RecordName = ".passwd"

// bcrypt hashes are self-describing ($2a$, $2b$, ...).
const hashPrefix = "$2"

// Store reads and verifies project credential records. The record is read
// on every call; verification happens at login frequency only.
type Store struct {
	projectsDir string
	allowLegacy bool
	logger      *zap.Logger
}

func NewStore(projectsDir string, allowLegacy bool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{projectsDir: projectsDir, allowLegacy: allowLegacy, logger: logger}
}

// RecordPath returns where project's credential record lives.
func (s *Store) RecordPath(project string) string {
	return filepath.Join(s.projectsDir, project, RecordName)
}

// Verify checks secret against project's credential record. A missing or
// unreadable record verifies as false; callers must not distinguish that
// from a wrong secret. Records starting with a bcrypt marker are verified
// with bcrypt; anything else is a legacy plaintext record, honored only
// when the store was built with allowLegacy.
func (s *Store) Verify(project, secret string) bool {
	if !safeName(project) {
		return false
	}
	raw, err := os.ReadFile(s.RecordPath(project))
	if err != nil {
		// Burn a full-cost compare so "no record" is not measurably
		// cheaper than "wrong password".
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return false
	}
	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte(hashPrefix)) {
		return bcrypt.CompareHashAndPassword(raw, []byte(secret)) == nil
	}
	if !s.allowLegacy {
		s.logger.Warn("refusing legacy plaintext credential record",
			zap.String("project", project))
		return false
	}
	ok := subtle.ConstantTimeCompare(raw, []byte(secret)) == 1
	if ok {
		s.logger.Warn("login verified against legacy plaintext credential",
			zap.String("project", project))
	}
	return ok
}

// dummyHash backs the absent-record work burn at the same cost as a real
// record's comparison. The result is always discarded.
var dummyHash = mustDummyHash()

func mustDummyHash() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("assetvault-absent-record"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}

// safeName guards the record path join against a hostile project string.
// The HTTP layer validates project names first; this is the last line.
func safeName(project string) bool {
	if project == "" || project == "." || project == ".." {
		return false
	}
	if strings.ContainsAny(project, "/\\\x00") {
		return false
	}
	return true
}
