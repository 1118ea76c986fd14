/*
Package gateway is the sync boundary clients drive: one method per
quest-lifecycle operation.

PURPOSE:
  Every call does the same three things, in order:
  1. Resolve the session and apply the role guard (pure, no I/O)
  2. Run the operation under a bounded deadline
  3. Return the result or a typed failure from the ledger taxonomy

TIMEOUTS:
  Calls never hang. Each operation class has a fixed deadline (5s for
  dashboard reads, 10s for auth and admin calls); when it expires the call
  fails with ErrTimeout and the store guarantees nothing was committed.
  There is no retry loop here - retry is the caller's decision, and only
  verification needs to be retry-safe, which it is by construction.

SEE ALSO:
  - quest/service.go: the domain logic behind each operation
  - session/guard.go: the authorization rules
  - api/handlers.go: the HTTP transport on top
*/
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/quest-ledger/ledger"
	"github.com/warp/quest-ledger/quest"
	"github.com/warp/quest-ledger/session"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Timeouts bound each operation class. The values mirror what the mobile
// clients already enforce on their side.
type Timeouts struct {
	Auth      time.Duration // authenticate/register
	Admin     time.Duration // parent operations (list, create, verify, delete)
	Dashboard time.Duration // dashboard reads
	Mutation  time.Duration // child submit/unsubmit
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Auth:      10 * time.Second,
		Admin:     10 * time.Second,
		Dashboard: 5 * time.Second,
		Mutation:  5 * time.Second,
	}
}

// Gateway authorizes and bounds every operation against the quest service.
type Gateway struct {
	service  *quest.Service
	accounts *session.Registry
	sessions *session.Manager
	timeouts Timeouts
}

func New(service *quest.Service, accounts *session.Registry, sessions *session.Manager, timeouts Timeouts) *Gateway {
	return &Gateway{
		service:  service,
		accounts: accounts,
		sessions: sessions,
		timeouts: timeouts,
	}
}

// =============================================================================
// CALL BOUNDING
// =============================================================================

// call runs fn with a deadline. If the deadline expires first, the call
// fails with ErrTimeout; the store's WithTx refuses to commit on a dead
// context, so a timed-out mutation leaves no trace.
func (g *Gateway) call(ctx context.Context, limit time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ledger.ErrTimeout, limit)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ledger.ErrTimeout, limit)
		}
		return ctx.Err()
	}
}

func guard(s session.Session, op session.Operation, target ledger.ChildID) error {
	if !session.CanPerform(s, op, target) {
		return fmt.Errorf("%w: %s may not %s", ledger.ErrForbidden, s.Role, op)
	}
	return nil
}

// =============================================================================
// AUTH OPERATIONS
// =============================================================================

// AuthResult is what a successful login returns: the opaque token the
// client stores, plus enough to route to the right home screen.
type AuthResult struct {
	Token     string
	Role      session.Role
	ChildID   ledger.ChildID
	ExpiresAt time.Time
}

// Authenticate checks credentials and issues a session. Bad credentials
// fail with ErrUnauthorized (wrapped), slow backends with ErrTimeout.
func (g *Gateway) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	var result *AuthResult
	err := g.call(ctx, g.timeouts.Auth, func(ctx context.Context) error {
		account, err := g.accounts.Authenticate(ctx, email, password)
		if err != nil {
			return err
		}
		sess, err := g.sessions.Issue(account.ID, account.Role, account.ChildID)
		if err != nil {
			return err
		}
		result = &AuthResult{
			Token:     sess.Token,
			Role:      sess.Role,
			ChildID:   sess.SubjectChildID,
			ExpiresAt: sess.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Register creates a parent account. Input validation happens before any
// store call, so a bad email or short password never leaves the client
// boundary.
func (g *Gateway) Register(ctx context.Context, username, email, password, phone string) (*session.Account, error) {
	if err := session.ValidateRegistration(username, email, password); err != nil {
		return nil, err
	}

	var account *session.Account
	err := g.call(ctx, g.timeouts.Auth, func(ctx context.Context) error {
		var err error
		account, err = g.accounts.Register(ctx, username, email, password, phone)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Logout revokes the session. Always succeeds.
func (g *Gateway) Logout(_ context.Context, token string) {
	g.sessions.Revoke(token)
}

// Resolve maps a bearer token to its live session.
func (g *Gateway) Resolve(ctx context.Context, token string) (session.Session, error) {
	return g.sessions.Resolve(ctx, token)
}

// =============================================================================
// PARENT OPERATIONS
// =============================================================================

// ListChildren returns every child's dashboard. Parent only.
func (g *Gateway) ListChildren(ctx context.Context, sess session.Session) ([]quest.Dashboard, error) {
	if err := guard(sess, session.OpListChildren, ""); err != nil {
		return nil, err
	}

	var result []quest.Dashboard
	err := g.call(ctx, g.timeouts.Admin, func(ctx context.Context) error {
		var err error
		result, err = g.service.ListChildren(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProvisionChild creates a child ledger. Parent only.
func (g *Gateway) ProvisionChild(ctx context.Context, sess session.Session, name, avatarColor string) (*ledger.Child, error) {
	if err := guard(sess, session.OpProvisionChild, ""); err != nil {
		return nil, err
	}

	var child *ledger.Child
	err := g.call(ctx, g.timeouts.Admin, func(ctx context.Context) error {
		var err error
		child, err = g.service.AddChild(ctx, name, avatarColor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// CreateQuest assigns a new quest. Parent only; quests start PENDING.
func (g *Gateway) CreateQuest(ctx context.Context, sess session.Session, childID ledger.ChildID, title, description string, reward int64) (*quest.Quest, error) {
	if err := guard(sess, session.OpCreateQuest, childID); err != nil {
		return nil, err
	}

	var q *quest.Quest
	err := g.call(ctx, g.timeouts.Admin, func(ctx context.Context) error {
		var err error
		q, err = g.service.CreateQuest(ctx, childID, title, description, reward)
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// VerifyQuest resolves a submitted quest: approve=true credits the reward
// and moves it to history, approve=false sends it back to PENDING with no
// balance change. Parent only. Safe to retry: a duplicate approval returns
// ErrAlreadyProcessed and credits nothing.
func (g *Gateway) VerifyQuest(ctx context.Context, sess session.Session, childID ledger.ChildID, questID ledger.QuestID, approve bool) (*quest.Quest, error) {
	op := session.OpVerify
	if !approve {
		op = session.OpReject
	}
	if err := guard(sess, op, childID); err != nil {
		return nil, err
	}

	var q *quest.Quest
	err := g.call(ctx, g.timeouts.Admin, func(ctx context.Context) error {
		var err error
		q, err = g.service.ApplyVerification(ctx, childID, questID, approve)
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// DeleteQuest removes a quest permanently. Parent only; verified quests
// are immutable and cannot be deleted.
func (g *Gateway) DeleteQuest(ctx context.Context, sess session.Session, questID ledger.QuestID) error {
	return g.call(ctx, g.timeouts.Admin, func(ctx context.Context) error {
		owner, err := g.service.OwnerOf(ctx, questID)
		if err != nil {
			return err
		}
		if err := guard(sess, session.OpDelete, owner); err != nil {
			return err
		}
		return g.service.DeleteQuest(ctx, questID)
	})
}

// =============================================================================
// SHARED OPERATIONS
// =============================================================================

// GetChildDashboard returns one child's snapshot. A child session may only
// read its own.
func (g *Gateway) GetChildDashboard(ctx context.Context, sess session.Session, childID ledger.ChildID) (*quest.Dashboard, error) {
	if err := guard(sess, session.OpViewDashboard, childID); err != nil {
		return nil, err
	}

	var d *quest.Dashboard
	err := g.call(ctx, g.timeouts.Dashboard, func(ctx context.Context) error {
		var err error
		d, err = g.service.GetDashboard(ctx, childID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SetQuestSubmission toggles a quest between PENDING and SUBMITTED. The
// owning child or a parent may do this; the owner is looked up first so
// the guard runs against the right ledger.
func (g *Gateway) SetQuestSubmission(ctx context.Context, sess session.Session, questID ledger.QuestID, submitted bool) (*quest.Quest, error) {
	op := session.OpSubmit
	if !submitted {
		op = session.OpUnsubmit
	}

	var q *quest.Quest
	err := g.call(ctx, g.timeouts.Mutation, func(ctx context.Context) error {
		owner, err := g.service.OwnerOf(ctx, questID)
		if err != nil {
			return err
		}
		if err := guard(sess, op, owner); err != nil {
			return err
		}
		q, err = g.service.SetSubmission(ctx, questID, submitted)
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}
