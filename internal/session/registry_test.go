package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndResolve(t *testing.T) {
	r := NewRegistry(0)
	token, err := r.Issue("DEMO")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	project, err := r.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "DEMO", project)

	_, err = r.Resolve("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensAreUnique(t *testing.T) {
	r := NewRegistry(0)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := r.Issue("DEMO")
		require.NoError(t, err)
		require.Len(t, token, 64)
		require.False(t, seen[token], "token reused")
		seen[token] = true
	}
}

func TestReLoginReplacesToken(t *testing.T) {
	r := NewRegistry(0)
	first, err := r.Issue("DEMO")
	require.NoError(t, err)
	second, err := r.Issue("DEMO")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = r.Resolve(first)
	require.ErrorIs(t, err, ErrInvalidToken)
	project, err := r.Resolve(second)
	require.NoError(t, err)
	assert.Equal(t, "DEMO", project)
}

func TestRevoke(t *testing.T) {
	r := NewRegistry(0)
	token, err := r.Issue("DEMO")
	require.NoError(t, err)

	r.Revoke(token)
	_, err = r.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	// no-op on unknown tokens
	r.Revoke("gone")
}

func TestIdleExpiry(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(10 * time.Minute)
	r.now = func() time.Time { return clock }

	token, err := r.Issue("DEMO")
	require.NoError(t, err)

	// activity inside the window slides the deadline
	clock = clock.Add(9 * time.Minute)
	_, err = r.Resolve(token)
	require.NoError(t, err)

	clock = clock.Add(9 * time.Minute)
	_, err = r.Resolve(token)
	require.NoError(t, err)

	// idle past the window invalidates
	clock = clock.Add(11 * time.Minute)
	_, err = r.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestProjectsAreIndependent(t *testing.T) {
	r := NewRegistry(0)
	a, err := r.Issue("A")
	require.NoError(t, err)
	b, err := r.Issue("B")
	require.NoError(t, err)

	r.Revoke(a)
	project, err := r.Resolve(b)
	require.NoError(t, err)
	assert.Equal(t, "B", project)
}
