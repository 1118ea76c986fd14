/*
Package session holds who is acting: roles, ephemeral session tokens, and
the pure authorization guard.

PURPOSE:
  A Session is a capability token, not a data cache. It carries a role and
  (for children) the single child identity it may act on, and nothing else.
  It is created at login, discarded at logout or expiry, and passed
  explicitly into every gateway operation - authorization is never ambient
  state.

SEE ALSO:
  - guard.go: the CanPerform rules
  - accounts.go: credentials behind Authenticate/Register
*/
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/warp/quest-ledger/ledger"
)

// =============================================================================
// ROLES AND SESSIONS
// =============================================================================

type Role string

const (
	RoleParent Role = "PARENT"
	RoleChild  Role = "CHILD"
)

// Session is an authenticated actor. SubjectChildID is set only for CHILD
// sessions and names the one ledger the session may act on.
type Session struct {
	Token          string
	AccountID      string
	Role           Role
	SubjectChildID ledger.ChildID
	ExpiresAt      time.Time
}

func (s Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// =============================================================================
// MANAGER - Token issuance and lookup
// =============================================================================

// DefaultTTL is how long an issued session stays valid.
const DefaultTTL = 24 * time.Hour

// Manager issues and resolves session tokens. Sessions are in-memory and
// ephemeral: a restart logs everyone out, which is the intended behavior
// for capability tokens that carry no data.
type Manager struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]Session
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		ttl:      DefaultTTL,
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Issue mints a session for an authenticated account.
func (m *Manager) Issue(accountID string, role Role, subjectChildID ledger.ChildID) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}

	s := Session{
		Token:          token,
		AccountID:      accountID,
		Role:           role,
		SubjectChildID: subjectChildID,
		ExpiresAt:      m.now().Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[token] = s
	m.mu.Unlock()
	return s, nil
}

// Resolve returns the live session for a token, or ErrUnauthorized for
// unknown or expired tokens. Expired sessions are dropped on sight.
func (m *Manager) Resolve(_ context.Context, token string) (Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()

	if !ok {
		return Session{}, ledger.ErrUnauthorized
	}
	if s.Expired(m.now()) {
		m.mu.Lock()
		delete(m.sessions, token)
		m.mu.Unlock()
		return Session{}, ledger.ErrUnauthorized
	}
	return s, nil
}

// Revoke discards a session (logout). Revoking an unknown token is a no-op.
func (m *Manager) Revoke(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
