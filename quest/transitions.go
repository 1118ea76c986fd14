/*
transitions.go - The quest status transition table

PURPOSE:
  Encodes every legal status change as data, so the service, the guard
  tests, and the property tests all read the same source of truth.

THE GRAPH:
  PENDING   -> SUBMITTED   (child submits, or parent marks done)
  SUBMITTED -> PENDING     (child un-submits, or parent rejects)
  SUBMITTED -> VERIFIED    (parent approves; reward credited exactly once)
  VERIFIED  -> (nothing)   terminal

  Deletion is not a status: a quest may be deleted while PENDING or
  SUBMITTED (parent only), never once VERIFIED.

ATOMICITY:
  Transitions are applied with a compare-and-set on the stored status.
  A transition attempted from the wrong source state fails with
  InvalidTransitionError and mutates nothing.
*/
package quest

import "github.com/warp/quest-ledger/ledger"

// legalEdges is the full transition graph. Anything not listed is invalid.
var legalEdges = map[Status][]Status{
	StatusPending:   {StatusSubmitted},
	StatusSubmitted: {StatusPending, StatusVerified},
	StatusVerified:  {}, // terminal
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change on the in-memory quest.
// Persistence layers still CAS on the stored status; this is the rule, the
// store is the enforcement point under concurrency.
func (q *Quest) Transition(to Status) error {
	if !CanTransition(q.Status, to) {
		return &ledger.InvalidTransitionError{
			QuestID: q.ID,
			From:    string(q.Status),
			To:      string(to),
		}
	}
	q.Status = to
	return nil
}

// Deletable reports whether the quest may still be removed. History is
// immutable: verified quests can never be deleted.
func (q *Quest) Deletable() bool { return !q.Status.Terminal() }

// Editable reports whether title/description may still change.
func (q *Quest) Editable() bool { return q.Status == StatusPending }
