/*
ledger.go - Coin balance by transaction replay

PURPOSE:
  CoinLedger is the source of truth for balances. A child's balance is
  computed by replaying their coin transactions - there is no stored
  balance field that can get out of sync with history.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: transactions are never updated or deleted
  2. IDEMPOTENT: same idempotency key = at most one credit
  3. EXACT-ONCE AWARD: a quest's reward lands at most once, because the
     verification credit uses the quest id as its idempotency key

CORRECTIONS:
  Mistakes are fixed with reversal transactions, not edits. Both the
  original and the reversal stay in the ledger.

SEE ALSO:
  - store.go: persistence interface
  - quest/service.go: the only caller that issues reward credits
*/
package ledger

import "context"

// CoinLedger computes balances and records credits on top of a Store.
type CoinLedger struct {
	Store Store
}

func NewCoinLedger(store Store) *CoinLedger {
	return &CoinLedger{Store: store}
}

// Credit appends a transaction, refusing duplicate idempotency keys.
// Callers that see ErrDuplicateIdempotencyKey can treat the credit as
// already applied.
func (l *CoinLedger) Credit(ctx context.Context, tx CoinTransaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

// Balance replays the child's transactions and returns the net amount.
func (l *CoinLedger) Balance(ctx context.Context, childID ChildID) (Coins, error) {
	txs, err := l.Store.Transactions(ctx, childID)
	if err != nil {
		return Coins{}, err
	}

	balance := NewCoins(0)
	for _, tx := range txs {
		balance = balance.Add(tx.Delta)
	}
	return balance, nil
}
