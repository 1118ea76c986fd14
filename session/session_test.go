package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/quest-ledger/ledger"
)

// fakeAccountStore is a map-backed AccountStore for registry tests.
type fakeAccountStore struct {
	accounts map[string]Account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[string]Account)}
}

func (f *fakeAccountStore) SaveAccount(_ context.Context, a Account) error {
	f.accounts[a.Email] = a
	return nil
}

func (f *fakeAccountStore) GetAccountByEmail(_ context.Context, email string) (*Account, error) {
	a, ok := f.accounts[email]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// =============================================================================
// AUTHORIZATION MATRIX
// =============================================================================

func TestCanPerform_ParentMayDoEverything(t *testing.T) {
	parent := Session{Role: RoleParent}

	ops := []Operation{
		OpListChildren, OpProvisionChild, OpViewDashboard, OpCreateQuest,
		OpSubmit, OpUnsubmit, OpVerify, OpReject, OpDelete,
	}
	for _, op := range ops {
		assert.True(t, CanPerform(parent, op, "any-child"), "parent denied %s", op)
	}
}

func TestCanPerform_ChildMatrix(t *testing.T) {
	// GIVEN: A child session bound to child-1
	// THEN: Only submit/unsubmit/view, and only on its own ledger

	child := Session{Role: RoleChild, SubjectChildID: "child-1"}

	cases := []struct {
		op      Operation
		target  ledger.ChildID
		allowed bool
	}{
		{OpSubmit, "child-1", true},
		{OpUnsubmit, "child-1", true},
		{OpViewDashboard, "child-1", true},

		// Own ledger, wrong operation
		{OpVerify, "child-1", false},
		{OpReject, "child-1", false},
		{OpCreateQuest, "child-1", false},
		{OpDelete, "child-1", false},
		{OpProvisionChild, "child-1", false},
		{OpListChildren, "child-1", false},

		// Right operation, someone else's ledger
		{OpSubmit, "child-2", false},
		{OpUnsubmit, "child-2", false},
		{OpViewDashboard, "child-2", false},
	}

	for _, c := range cases {
		assert.Equal(t, c.allowed, CanPerform(child, c.op, c.target),
			"%s on %s", c.op, c.target)
	}
}

func TestCanPerform_UnknownRoleDeniedEverything(t *testing.T) {
	ghost := Session{Role: Role("ADMIN")}
	assert.False(t, CanPerform(ghost, OpListChildren, ""))
	assert.False(t, CanPerform(ghost, OpSubmit, "child-1"))
}

// =============================================================================
// REGISTRATION VALIDATION
// =============================================================================

func TestValidateRegistration(t *testing.T) {
	cases := []struct {
		name                      string
		username, email, password string
		wantField                 string // empty means valid
	}{
		{"valid", "pat", "pat@example.com", "secret1", ""},
		{"blank username", "  ", "pat@example.com", "secret1", "username"},
		{"email without at", "pat", "pat.example.com", "secret1", "email"},
		{"password too short", "pat", "pat@example.com", "12345", "password"},
		{"password at minimum", "pat", "pat@example.com", "123456", ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateRegistration(c.username, c.email, c.password)
			if c.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ledger.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, c.wantField, vErr.Field)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestRegistry_RegisterAndAuthenticate(t *testing.T) {
	// GIVEN: A freshly registered parent
	// THEN: The right password logs in, the wrong one does not, and the
	//       stored record never contains the plaintext

	r := NewRegistry(newFakeAccountStore())
	ctx := context.Background()

	account, err := r.Register(ctx, "pat", "pat@example.com", "secret1", "")
	require.NoError(t, err)
	assert.Equal(t, RoleParent, account.Role)
	assert.NotEqual(t, "secret1", account.PasswordHash)

	got, err := r.Authenticate(ctx, "pat@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	_, err = r.Authenticate(ctx, "pat@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestRegistry_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	r := NewRegistry(newFakeAccountStore())

	_, err := r.Authenticate(context.Background(), "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegistry_DuplicateEmailRejected(t *testing.T) {
	r := NewRegistry(newFakeAccountStore())
	ctx := context.Background()

	_, err := r.Register(ctx, "pat", "pat@example.com", "secret1", "")
	require.NoError(t, err)

	_, err = r.Register(ctx, "other", "pat@example.com", "secret2", "")
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestRegistry_RegisterChildBindsLedger(t *testing.T) {
	r := NewRegistry(newFakeAccountStore())
	ctx := context.Background()

	account, err := r.RegisterChild(ctx, "Leo", "leo@family.local", "leo-pass", "child-1")
	require.NoError(t, err)
	assert.Equal(t, RoleChild, account.Role)
	assert.Equal(t, ledger.ChildID("child-1"), account.ChildID)

	_, err = r.RegisterChild(ctx, "Leo", "leo2@family.local", "leo-pass", "")
	assert.ErrorIs(t, err, ledger.ErrValidation, "child accounts must name their ledger")
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

func TestManager_IssueAndResolve(t *testing.T) {
	m := NewManager()

	s, err := m.Issue("acct-1", RoleChild, "child-1")
	require.NoError(t, err)
	require.NotEmpty(t, s.Token)

	got, err := m.Resolve(context.Background(), s.Token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.AccountID)
	assert.Equal(t, ledger.ChildID("child-1"), got.SubjectChildID)
}

func TestManager_UnknownTokenUnauthorized(t *testing.T) {
	m := NewManager()

	_, err := m.Resolve(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestManager_ExpiredSessionDropped(t *testing.T) {
	// GIVEN: A session issued at T
	// WHEN: Resolving after T + TTL
	// THEN: Unauthorized, and the token is gone for good

	m := NewManager()
	current := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	s, err := m.Issue("acct-1", RoleParent, "")
	require.NoError(t, err)

	// Still valid just before expiry
	current = current.Add(DefaultTTL - time.Minute)
	_, err = m.Resolve(context.Background(), s.Token)
	require.NoError(t, err)

	// Gone just after
	current = current.Add(2 * time.Minute)
	_, err = m.Resolve(context.Background(), s.Token)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	// And it stays gone even if the clock rolls back
	current = current.Add(-time.Hour)
	_, err = m.Resolve(context.Background(), s.Token)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestManager_RevokeIsLogout(t *testing.T) {
	m := NewManager()

	s, err := m.Issue("acct-1", RoleParent, "")
	require.NoError(t, err)

	m.Revoke(s.Token)
	_, err = m.Resolve(context.Background(), s.Token)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	m.Revoke("unknown") // no-op, must not panic
}
