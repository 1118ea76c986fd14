/*
store.go - The combined store the quest service requires

PURPOSE:
  The quest service mutates quests and coin transactions together (a
  verification is one status CAS plus one credit). This file defines the
  store capabilities it needs, including the transactional wrapper that
  makes the pair atomic.

COMPARE-AND-SET:
  CompareAndSetStatus is the single enforcement point for the quest state
  machine under concurrency. Two racing verifications both ask for
  SUBMITTED -> VERIFIED; exactly one wins, the other sees swapped=false
  and no second credit is ever attempted.

SEE ALSO:
  - store/memory: snapshot/rollback implementation for tests
  - store/sqlite: UPDATE ... WHERE status = ? implementation
*/
package quest

import (
	"context"

	"github.com/warp/quest-ledger/ledger"
)

// QuestStore persists quests.
type QuestStore interface {
	SaveQuest(ctx context.Context, q Quest) error

	// GetQuest returns ErrQuestNotFound for unknown ids.
	GetQuest(ctx context.Context, id ledger.QuestID) (*Quest, error)

	// QuestsByChild returns the child's quests ordered by creation time.
	QuestsByChild(ctx context.Context, childID ledger.ChildID) ([]Quest, error)

	// CompareAndSetStatus atomically moves the quest from 'from' to 'to'.
	// Returns swapped=false (and no error) when the stored status is not
	// 'from'; returns ErrQuestNotFound for unknown ids.
	CompareAndSetStatus(ctx context.Context, id ledger.QuestID, from, to Status) (bool, error)

	// DeleteQuest removes the quest permanently.
	DeleteQuest(ctx context.Context, id ledger.QuestID) error
}

// Store is everything the quest service needs from persistence.
type Store interface {
	ledger.Store
	ledger.ChildStore
	QuestStore

	// WithTx executes fn atomically: if fn returns an error, or the context
	// is done before commit, none of fn's writes are visible.
	WithTx(ctx context.Context, fn func(Store) error) error
}
