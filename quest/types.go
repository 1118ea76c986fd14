// Package quest implements the quest lifecycle: the state machine a chore
// moves through from assignment to verified reward, and the child-ledger
// service that keeps status changes and coin credits consistent.
package quest

import (
	"time"

	"github.com/google/uuid"

	"github.com/warp/quest-ledger/ledger"
)

// =============================================================================
// QUEST STATUS
// =============================================================================

// Status is a quest's position in its lifecycle.
//
// PENDING   - assigned, the child is working on it
// SUBMITTED - the child marked it done, awaiting parent review
// VERIFIED  - parent confirmed it; terminal, reward credited exactly once
// REJECTED  - transient: a rejected submission resolves straight back to
//             PENDING in the same atomic step, so a stored quest is never
//             in this state. It exists so the rejection edge has a name.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusVerified  Status = "VERIFIED"
	StatusRejected  Status = "REJECTED"
)

// Terminal reports whether no edge leaves this status.
func (s Status) Terminal() bool { return s == StatusVerified }

// Active reports whether a quest in this status belongs on the child's
// active list (as opposed to verified history).
func (s Status) Active() bool { return s == StatusPending || s == StatusSubmitted }

// =============================================================================
// QUEST
// =============================================================================

// Quest is a chore assigned to a child with a fixed coin reward.
// ID, ChildID, and Reward are immutable after creation. Title and
// Description may only change while the quest is still PENDING.
type Quest struct {
	ID          ledger.QuestID
	ChildID     ledger.ChildID
	Title       string
	Description string
	Reward      int64
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	VerifiedAt  *time.Time
}

// New creates a quest in PENDING. Reward must be non-negative; the caller
// validates before constructing.
func New(childID ledger.ChildID, title, description string, reward int64) Quest {
	now := time.Now().UTC()
	return Quest{
		ID:          ledger.QuestID(uuid.NewString()),
		ChildID:     childID,
		Title:       title,
		Description: description,
		Reward:      reward,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RewardCoins returns the reward as a ledger amount.
func (q *Quest) RewardCoins() ledger.Coins { return ledger.NewCoins(q.Reward) }
