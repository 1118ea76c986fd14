package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/quest-ledger/gateway"
	"github.com/warp/quest-ledger/ledger"
	"github.com/warp/quest-ledger/quest"
	"github.com/warp/quest-ledger/session"
	"github.com/warp/quest-ledger/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestGateway(t *testing.T) (*gateway.Gateway, *memory.Store) {
	t.Helper()
	store := memory.New()
	service := quest.NewService(store)
	accounts := session.NewRegistry(store)
	sessions := session.NewManager()
	gw := gateway.New(service, accounts, sessions, gateway.DefaultTimeouts())
	return gw, store
}

func parentSession() session.Session {
	return session.Session{Token: "t-parent", AccountID: "acct-parent", Role: session.RoleParent}
}

func childSession(childID ledger.ChildID) session.Session {
	return session.Session{Token: "t-child", AccountID: "acct-child", Role: session.RoleChild, SubjectChildID: childID}
}

// provision creates a child and one quest driven to the given stage.
func provision(t *testing.T, gw *gateway.Gateway, title string, reward int64, submit bool) (ledger.ChildID, ledger.QuestID) {
	t.Helper()
	ctx := context.Background()
	parent := parentSession()

	child, err := gw.ProvisionChild(ctx, parent, "Leo", "#4F8EF7")
	require.NoError(t, err)

	q, err := gw.CreateQuest(ctx, parent, child.ID, title, "", reward)
	require.NoError(t, err)

	if submit {
		_, err = gw.SetQuestSubmission(ctx, childSession(child.ID), q.ID, true)
		require.NoError(t, err)
	}
	return child.ID, q.ID
}

// =============================================================================
// EXACT-ONCE AWARD
// =============================================================================

func TestVerifyQuest_ConcurrentApprovalsCreditOnce(t *testing.T) {
	// GIVEN: A submitted quest worth 50 coins
	// WHEN: Ten parents race to approve it at the same instant
	// THEN: Exactly one wins, the rest see a conflict, and the balance is 50

	gw, _ := newTestGateway(t)
	ctx := context.Background()
	parent := parentSession()
	childID, questID := provision(t, gw, "Clean Room", 50, true)

	const racers = 10
	var wg sync.WaitGroup
	errs := make([]error, racers)

	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = gw.VerifyQuest(ctx, parent, childID, questID, true)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, wins, "exactly one approval wins the race")

	d, err := gw.GetChildDashboard(ctx, parent, childID)
	require.NoError(t, err)
	assert.True(t, d.Balance.Equal(ledger.NewCoins(50)), "got %s", d.Balance)
	assert.Len(t, d.History, 1)
	assert.Empty(t, d.ActiveQuests)
}

func TestVerifyQuest_RetryAfterApprovalIsConflict(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	parent := parentSession()
	childID, questID := provision(t, gw, "Feed the cat", 15, true)

	q, err := gw.VerifyQuest(ctx, parent, childID, questID, true)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusVerified, q.Status)
	require.NotNil(t, q.VerifiedAt)

	// A stale client retries the same approval
	_, err = gw.VerifyQuest(ctx, parent, childID, questID, true)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)

	d, err := gw.GetChildDashboard(ctx, parent, childID)
	require.NoError(t, err)
	assert.True(t, d.Balance.Equal(ledger.NewCoins(15)), "retry never double-credits")
}

func TestVerifyQuest_RejectReturnsToPendingWithoutCredit(t *testing.T) {
	// GIVEN: A submitted quest
	// WHEN: The parent rejects it
	// THEN: It is PENDING again, re-submittable, and no coins moved

	gw, _ := newTestGateway(t)
	ctx := context.Background()
	parent := parentSession()
	childID, questID := provision(t, gw, "Homework", 20, true)

	q, err := gw.VerifyQuest(ctx, parent, childID, questID, false)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusPending, q.Status)
	assert.Nil(t, q.VerifiedAt)

	d, err := gw.GetChildDashboard(ctx, parent, childID)
	require.NoError(t, err)
	assert.True(t, d.Balance.IsZero())

	// The child can try again
	_, err = gw.SetQuestSubmission(ctx, childSession(childID), questID, true)
	require.NoError(t, err)
}

func TestVerifyQuest_PendingQuestCannotBeVerified(t *testing.T) {
	gw, _ := newTestGateway(t)
	parent := parentSession()
	childID, questID := provision(t, gw, "Homework", 20, false)

	_, err := gw.VerifyQuest(context.Background(), parent, childID, questID, true)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition, "no skipping review")
}

func TestVerifyQuest_WrongChildLooksMissing(t *testing.T) {
	gw, _ := newTestGateway(t)
	parent := parentSession()
	_, questID := provision(t, gw, "Homework", 20, true)

	_, err := gw.VerifyQuest(context.Background(), parent, "other-child", questID, true)
	assert.ErrorIs(t, err, ledger.ErrQuestNotFound)
}

// =============================================================================
// BALANCE CONSISTENCY
// =============================================================================

func TestBalance_EqualsSumOfVerifiedRewards(t *testing.T) {
	// GIVEN: Several quests, some verified, some not
	// THEN: Balance is exactly the sum of verified rewards

	gw, _ := newTestGateway(t)
	ctx := context.Background()
	parent := parentSession()

	child, err := gw.ProvisionChild(ctx, parent, "Mia", "#F76F4F")
	require.NoError(t, err)

	rewards := []int64{10, 15, 50}
	for _, r := range rewards {
		q, err := gw.CreateQuest(ctx, parent, child.ID, "chore", "", r)
		require.NoError(t, err)
		_, err = gw.SetQuestSubmission(ctx, parent, q.ID, true)
		require.NoError(t, err)
		_, err = gw.VerifyQuest(ctx, parent, child.ID, q.ID, true)
		require.NoError(t, err)
	}
	// One more that stays pending and must not count
	_, err = gw.CreateQuest(ctx, parent, child.ID, "unfinished", "", 99)
	require.NoError(t, err)

	d, err := gw.GetChildDashboard(ctx, parent, child.ID)
	require.NoError(t, err)
	assert.True(t, d.Balance.Equal(ledger.NewCoins(75)), "got %s", d.Balance)

	var fromHistory int64
	for _, q := range d.History {
		fromHistory += q.Reward
	}
	assert.Equal(t, int64(75), fromHistory, "balance matches history")
	assert.Len(t, d.ActiveQuests, 1)
}

func TestDashboard_UnknownChildNotFound(t *testing.T) {
	gw, _ := newTestGateway(t)

	_, err := gw.GetChildDashboard(context.Background(), parentSession(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrChildNotFound, "never an empty default dashboard")
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

func TestChildSession_ForbiddenOperations(t *testing.T) {
	// GIVEN: A child session for child-1
	// THEN: Parent-only operations and other ledgers are all 403-class

	gw, _ := newTestGateway(t)
	ctx := context.Background()
	parent := parentSession()
	childID, questID := provision(t, gw, "Clean Room", 50, true)
	me := childSession(childID)

	_, err := gw.VerifyQuest(ctx, me, childID, questID, true)
	assert.ErrorIs(t, err, ledger.ErrForbidden, "children never verify, not even their own")

	_, err = gw.VerifyQuest(ctx, me, childID, questID, false)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = gw.CreateQuest(ctx, me, childID, "easy money", "", 1000)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	err = gw.DeleteQuest(ctx, me, questID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = gw.ListChildren(ctx, me)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = gw.ProvisionChild(ctx, me, "Sibling", "")
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	// Another child's ledger is off-limits even for allowed ops
	otherChild, err := gw.ProvisionChild(ctx, parent, "Mia", "")
	require.NoError(t, err)
	otherQuest, err := gw.CreateQuest(ctx, parent, otherChild.ID, "not yours", "", 5)
	require.NoError(t, err)

	_, err = gw.SetQuestSubmission(ctx, me, otherQuest.ID, true)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = gw.GetChildDashboard(ctx, me, otherChild.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestChildSession_OwnSubmitUnsubmit(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	childID, questID := provision(t, gw, "Homework", 20, false)
	me := childSession(childID)

	q, err := gw.SetQuestSubmission(ctx, me, questID, true)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusSubmitted, q.Status)

	q, err = gw.SetQuestSubmission(ctx, me, questID, false)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusPending, q.Status)

	d, err := gw.GetChildDashboard(ctx, me, childID)
	require.NoError(t, err)
	assert.Len(t, d.ActiveQuests, 1)
}

// =============================================================================
// DELETION
// =============================================================================

func TestDeleteQuest_VerifiedIsImmutable(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	parent := parentSession()
	childID, questID := provision(t, gw, "Clean Room", 50, true)

	_, err := gw.VerifyQuest(ctx, parent, childID, questID, true)
	require.NoError(t, err)

	err = gw.DeleteQuest(ctx, parent, questID)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	// The coins stay: history is never clawed back
	d, err := gw.GetChildDashboard(ctx, parent, childID)
	require.NoError(t, err)
	assert.True(t, d.Balance.Equal(ledger.NewCoins(50)))
	assert.Len(t, d.History, 1)
}

func TestDeleteQuest_PendingAndSubmittedAllowed(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	parent := parentSession()

	childID, pending := provision(t, gw, "Homework", 20, false)
	require.NoError(t, gw.DeleteQuest(ctx, parent, pending))

	submitted, err := gw.CreateQuest(ctx, parent, childID, "Dishes", "", 10)
	require.NoError(t, err)
	_, err = gw.SetQuestSubmission(ctx, parent, submitted.ID, true)
	require.NoError(t, err)
	require.NoError(t, gw.DeleteQuest(ctx, parent, submitted.ID))

	d, err := gw.GetChildDashboard(ctx, parent, childID)
	require.NoError(t, err)
	assert.Empty(t, d.ActiveQuests)

	err = gw.DeleteQuest(ctx, parent, pending)
	assert.ErrorIs(t, err, ledger.ErrQuestNotFound, "double delete")
}

// =============================================================================
// AUTH
// =============================================================================

func TestAuthenticate_RoundTrip(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.Register(ctx, "pat", "pat@example.com", "secret1", "")
	require.NoError(t, err)

	result, err := gw.Authenticate(ctx, "pat@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, session.RoleParent, result.Role)
	assert.NotEmpty(t, result.Token)

	sess, err := gw.Resolve(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, session.RoleParent, sess.Role)

	gw.Logout(ctx, result.Token)
	_, err = gw.Resolve(ctx, result.Token)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.Register(ctx, "pat", "pat@example.com", "secret1", "")
	require.NoError(t, err)

	_, err = gw.Authenticate(ctx, "pat@example.com", "nope")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = gw.Authenticate(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestRegister_ValidationBeforeStore(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.Register(ctx, "pat", "not-an-email", "secret1", "")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = gw.Register(ctx, "pat", "pat@example.com", "12345", "")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// TIMEOUTS
// =============================================================================

// stallStore wedges every transactional mutation until the caller's context
// dies, simulating a hung backend.
type stallStore struct {
	*memory.Store
}

func (s *stallStore) WithTx(ctx context.Context, fn func(quest.Store) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestTimeout_MutationFailsTypedAndCommitsNothing(t *testing.T) {
	// GIVEN: A backend that never answers, and a 50ms deadline
	// WHEN: Creating a quest
	// THEN: The call fails with ErrTimeout - never hangs, never half-commits

	inner := memory.New()
	stalled := &stallStore{Store: inner}
	service := quest.NewService(stalled)
	gw := gateway.New(service, session.NewRegistry(inner), session.NewManager(), gateway.Timeouts{
		Auth:      50 * time.Millisecond,
		Admin:     50 * time.Millisecond,
		Dashboard: 50 * time.Millisecond,
		Mutation:  50 * time.Millisecond,
	})

	ctx := context.Background()
	parent := parentSession()

	// Seed the child directly; only WithTx is stalled.
	child, err := quest.NewService(inner).AddChild(ctx, "Leo", "")
	require.NoError(t, err)

	start := time.Now()
	_, err = gw.CreateQuest(ctx, parent, child.ID, "Clean Room", "", 50)
	assert.ErrorIs(t, err, ledger.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second, "bounded, not hanging")

	// Nothing was committed
	d, err := quest.NewService(inner).GetDashboard(ctx, child.ID)
	require.NoError(t, err)
	assert.Empty(t, d.ActiveQuests)
	assert.Empty(t, d.History)
	assert.True(t, d.Balance.IsZero())
}

func TestTimeout_ReadsAreBoundedToo(t *testing.T) {
	inner := memory.New()

	// A dashboard read against a store whose Transactions call blocks.
	gw := gateway.New(quest.NewService(&blockingReads{Store: inner}), session.NewRegistry(inner), session.NewManager(), gateway.Timeouts{
		Auth:      50 * time.Millisecond,
		Admin:     50 * time.Millisecond,
		Dashboard: 50 * time.Millisecond,
		Mutation:  50 * time.Millisecond,
	})

	child, err := quest.NewService(inner).AddChild(context.Background(), "Mia", "")
	require.NoError(t, err)

	_, err = gw.GetChildDashboard(context.Background(), parentSession(), child.ID)
	assert.ErrorIs(t, err, ledger.ErrTimeout)
}

// blockingReads delegates to memory but wedges transaction reads.
type blockingReads struct {
	*memory.Store
}

func (s *blockingReads) Transactions(ctx context.Context, childID ledger.ChildID) ([]ledger.CoinTransaction, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
