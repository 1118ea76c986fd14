/*
service.go - The child ledger service

PURPOSE:
  Implements every quest-lifecycle mutation and the dashboard read on top
  of the combined store. This is where the one correctness-critical rule
  lives: a verification is a status CAS plus a coin credit, committed as
  one unit, and the credit can land at most once per quest.

EXACT-ONCE AWARD:
  Two independent guards, both required:
  1. CompareAndSetStatus(SUBMITTED -> VERIFIED): only one caller wins the
     race; losers see the quest already moved.
  2. The credit's idempotency key is derived from the quest id, so even a
     replayed write cannot double-credit.

ATOMICITY:
  Every mutation runs inside WithTx. A failed or timed-out call leaves the
  ledger exactly as it was; there are no partial awards.

SEE ALSO:
  - transitions.go: the legal status graph
  - ledger/ledger.go: credit idempotency
*/
package quest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/quest-ledger/ledger"
)

// Service drives the quest lifecycle and child ledgers. Authorization and
// timeouts are the gateway's job; the service assumes the caller may act.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// =============================================================================
// DASHBOARD - Read-side snapshot
// =============================================================================

// Dashboard is a consistent snapshot of one child's ledger: balance, the
// quests still in play, and the verified history. A quest appears in
// exactly one of ActiveQuests or History.
type Dashboard struct {
	Child        ledger.Child
	Balance      ledger.Coins
	ActiveQuests []Quest
	History      []Quest
}

// GetDashboard returns the child's current snapshot. Unknown children fail
// with ErrChildNotFound - never an empty default.
func (s *Service) GetDashboard(ctx context.Context, childID ledger.ChildID) (*Dashboard, error) {
	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, err
	}

	quests, err := s.store.QuestsByChild(ctx, childID)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Child: *child, ActiveQuests: []Quest{}, History: []Quest{}}
	for _, q := range quests {
		if q.Status.Active() {
			d.ActiveQuests = append(d.ActiveQuests, q)
		} else {
			d.History = append(d.History, q)
		}
	}
	// History reads in verification order, oldest first.
	sort.SliceStable(d.History, func(i, j int) bool {
		a, b := d.History[i].VerifiedAt, d.History[j].VerifiedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.Before(*b)
	})

	balance, err := ledger.NewCoinLedger(s.store).Balance(ctx, childID)
	if err != nil {
		return nil, err
	}
	d.Balance = balance
	return d, nil
}

// ListChildren returns a dashboard per child, the parent overview.
func (s *Service) ListChildren(ctx context.Context) ([]Dashboard, error) {
	children, err := s.store.ListChildren(ctx)
	if err != nil {
		return nil, err
	}

	dashboards := make([]Dashboard, 0, len(children))
	for _, c := range children {
		d, err := s.GetDashboard(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		dashboards = append(dashboards, *d)
	}
	return dashboards, nil
}

// =============================================================================
// CHILD PROVISIONING
// =============================================================================

// AddChild registers a child ledger with a zero balance.
func (s *Service) AddChild(ctx context.Context, name, avatarColor string) (*ledger.Child, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "must not be empty"}
	}

	child := ledger.Child{
		ID:          ledger.ChildID(uuid.NewString()),
		Name:        name,
		AvatarColor: avatarColor,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveChild(ctx, child); err != nil {
		return nil, err
	}
	return &child, nil
}

// =============================================================================
// QUEST LIFECYCLE
// =============================================================================

// CreateQuest assigns a new quest to a child. New quests always start
// PENDING.
func (s *Service) CreateQuest(ctx context.Context, childID ledger.ChildID, title, description string, reward int64) (*Quest, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &ledger.ValidationError{Field: "title", Message: "must not be empty"}
	}
	if reward < 0 {
		return nil, &ledger.ValidationError{Field: "reward", Message: "must not be negative"}
	}

	q := New(childID, title, description, reward)
	err := s.store.WithTx(ctx, func(st Store) error {
		if _, err := st.GetChild(ctx, childID); err != nil {
			return err
		}
		return st.SaveQuest(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// SetSubmission toggles a quest between PENDING and SUBMITTED. Submitting
// an already-submitted quest (or un-submitting a pending one) is an invalid
// transition, as is touching a verified quest.
func (s *Service) SetSubmission(ctx context.Context, questID ledger.QuestID, submitted bool) (*Quest, error) {
	from, to := StatusPending, StatusSubmitted
	if !submitted {
		from, to = StatusSubmitted, StatusPending
	}

	var result *Quest
	err := s.store.WithTx(ctx, func(st Store) error {
		q, err := st.GetQuest(ctx, questID)
		if err != nil {
			return err
		}
		swapped, err := st.CompareAndSetStatus(ctx, questID, from, to)
		if err != nil {
			return err
		}
		if !swapped {
			return &ledger.InvalidTransitionError{QuestID: questID, From: string(q.Status), To: string(to)}
		}
		q.Status = to
		q.UpdatedAt = time.Now().UTC()
		result = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// OwnerOf returns which child a quest belongs to, for authorization checks.
func (s *Service) OwnerOf(ctx context.Context, questID ledger.QuestID) (ledger.ChildID, error) {
	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return "", err
	}
	return q.ChildID, nil
}

// DeleteQuest removes a quest permanently. Verified quests are immutable
// history and can never be deleted; PENDING and SUBMITTED quests can.
func (s *Service) DeleteQuest(ctx context.Context, questID ledger.QuestID) error {
	return s.store.WithTx(ctx, func(st Store) error {
		q, err := st.GetQuest(ctx, questID)
		if err != nil {
			return err
		}
		if !q.Deletable() {
			return &ledger.InvalidTransitionError{QuestID: questID, From: string(q.Status), To: "deleted"}
		}
		return st.DeleteQuest(ctx, questID)
	})
}

// =============================================================================
// VERIFICATION - The correctness-critical operation
// =============================================================================

// ApplyVerification resolves a submitted quest. With approve=true the quest
// moves SUBMITTED -> VERIFIED and the reward is credited, both or neither.
// With approve=false it moves back to PENDING with no balance change.
//
// Retrying an approved verification returns ErrAlreadyProcessed and leaves
// the balance untouched.
func (s *Service) ApplyVerification(ctx context.Context, childID ledger.ChildID, questID ledger.QuestID, approve bool) (*Quest, error) {
	to := StatusVerified
	if !approve {
		to = StatusPending
	}

	var result *Quest
	err := s.store.WithTx(ctx, func(st Store) error {
		q, err := st.GetQuest(ctx, questID)
		if err != nil {
			return err
		}
		if q.ChildID != childID {
			// A quest id under the wrong child is indistinguishable from a
			// missing quest to the caller.
			return ledger.ErrQuestNotFound
		}

		swapped, err := st.CompareAndSetStatus(ctx, questID, StatusSubmitted, to)
		if err != nil {
			return err
		}
		if !swapped {
			if q.Status == StatusVerified {
				return ledger.ErrAlreadyProcessed
			}
			return &ledger.InvalidTransitionError{QuestID: questID, From: string(q.Status), To: string(to)}
		}

		now := time.Now().UTC()
		q.Status = to
		q.UpdatedAt = now

		if approve {
			q.VerifiedAt = &now
			if err := st.SaveQuest(ctx, *q); err != nil {
				return err
			}

			credit := ledger.CoinTransaction{
				ID:             ledger.TransactionID(uuid.NewString()),
				ChildID:        childID,
				QuestID:        questID,
				Delta:          q.RewardCoins(),
				Type:           ledger.TxReward,
				Reason:         fmt.Sprintf("Verified quest: %s", q.Title),
				IdempotencyKey: verificationKey(questID),
				CreatedAt:      now,
			}
			if err := ledger.NewCoinLedger(st).Credit(ctx, credit); err != nil {
				if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
					return ledger.ErrAlreadyProcessed
				}
				return err
			}
		}

		result = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// verificationKey is the per-quest idempotency key for the reward credit.
// One quest, one possible credit.
func verificationKey(questID ledger.QuestID) string {
	return "verify:" + string(questID)
}
