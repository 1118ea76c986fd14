package quest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/quest-ledger/ledger"
	"github.com/warp/quest-ledger/quest"
)

// =============================================================================
// STATUS GRAPH TESTS
// =============================================================================

func TestCanTransition_LegalEdges(t *testing.T) {
	// GIVEN: The quest lifecycle graph
	// THEN: Exactly these edges are legal, everything else is not

	cases := []struct {
		from, to quest.Status
		ok       bool
	}{
		{quest.StatusPending, quest.StatusSubmitted, true},
		{quest.StatusSubmitted, quest.StatusPending, true},
		{quest.StatusSubmitted, quest.StatusVerified, true},

		{quest.StatusPending, quest.StatusVerified, false}, // no skipping review
		{quest.StatusPending, quest.StatusPending, false},
		{quest.StatusSubmitted, quest.StatusSubmitted, false},
		{quest.StatusVerified, quest.StatusPending, false}, // terminal
		{quest.StatusVerified, quest.StatusSubmitted, false},
		{quest.StatusVerified, quest.StatusVerified, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.ok, quest.CanTransition(c.from, c.to),
			"%s -> %s", c.from, c.to)
	}
}

func TestTransition_IllegalEdgeReturnsTypedError(t *testing.T) {
	// GIVEN: A pending quest
	// WHEN: Forcing it straight to VERIFIED
	// THEN: The error names the quest and both statuses

	q := quest.New("child-1", "Clean Room", "", 50)

	err := q.Transition(quest.StatusVerified)
	require.Error(t, err)

	var transErr *ledger.InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, q.ID, transErr.QuestID)
	assert.Equal(t, string(quest.StatusPending), transErr.From)
	assert.Equal(t, string(quest.StatusVerified), transErr.To)

	// And the quest did not move
	assert.Equal(t, quest.StatusPending, q.Status)
}

func TestTransition_FullLifecycle(t *testing.T) {
	// GIVEN: A fresh quest
	// WHEN: Walking submit -> unsubmit -> submit -> verify
	// THEN: Every step succeeds and VERIFIED is terminal

	q := quest.New("child-1", "Feed the cat", "morning and evening", 15)
	require.Equal(t, quest.StatusPending, q.Status)

	require.NoError(t, q.Transition(quest.StatusSubmitted))
	require.NoError(t, q.Transition(quest.StatusPending))
	require.NoError(t, q.Transition(quest.StatusSubmitted))
	require.NoError(t, q.Transition(quest.StatusVerified))

	assert.True(t, q.Status.Terminal())
	assert.Error(t, q.Transition(quest.StatusPending))
	assert.Error(t, q.Transition(quest.StatusSubmitted))
}

// =============================================================================
// DERIVED PREDICATES
// =============================================================================

func TestDeletable_VerifiedIsImmutable(t *testing.T) {
	q := quest.New("child-1", "Homework", "", 20)
	assert.True(t, q.Deletable(), "pending quests can be deleted")

	require.NoError(t, q.Transition(quest.StatusSubmitted))
	assert.True(t, q.Deletable(), "submitted quests can be deleted")

	require.NoError(t, q.Transition(quest.StatusVerified))
	assert.False(t, q.Deletable(), "verified quests are history, never deletable")
}

func TestEditable_OnlyWhilePending(t *testing.T) {
	q := quest.New("child-1", "Homework", "", 20)
	assert.True(t, q.Editable())

	require.NoError(t, q.Transition(quest.StatusSubmitted))
	assert.False(t, q.Editable(), "submitted quests are locked for review")
}

func TestNew_Defaults(t *testing.T) {
	// GIVEN/WHEN: A newly assigned quest
	// THEN: It starts PENDING with a fresh id and no verification time

	q := quest.New("child-1", "Water the plants", "all of them", 10)

	assert.NotEmpty(t, q.ID)
	assert.Equal(t, ledger.ChildID("child-1"), q.ChildID)
	assert.Equal(t, quest.StatusPending, q.Status)
	assert.Nil(t, q.VerifiedAt)
	assert.Equal(t, int64(10), q.Reward)
	assert.True(t, q.RewardCoins().Equal(ledger.NewCoins(10)))
}
