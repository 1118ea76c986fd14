/*
store.go - Persistence interfaces for the coin ledger

PURPOSE:
  Defines the boundary between ledger logic and the database. The coin
  transaction store is append-only: corrections are made with reversal
  transactions, never edits.

APPEND-ONLY CONTRACT:
  - Append(): the ONLY write operation on coin transactions
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every credit carries an idempotency key. If the key already exists the
  write is rejected with ErrDuplicateIdempotencyKey. This is what makes a
  retried verification safe: the second credit simply cannot land.

IMPLEMENTATIONS:
  - store/sqlite: production store (quests, children, accounts, coins)
  - store/memory: in-memory store for tests and dev

SEE ALSO:
  - ledger.go: CoinLedger built on Store
  - quest/store.go: The combined store the quest service requires
*/
package ledger

import "context"

// Store persists coin transactions. Append-only.
type Store interface {
	// Append persists a transaction. Returns ErrDuplicateIdempotencyKey if
	// the idempotency key already exists.
	Append(ctx context.Context, tx CoinTransaction) error

	// Transactions returns all transactions for a child, oldest first.
	Transactions(ctx context.Context, childID ChildID) ([]CoinTransaction, error)

	// Exists reports whether an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// ChildStore persists child records.
type ChildStore interface {
	SaveChild(ctx context.Context, c Child) error

	// GetChild returns ErrChildNotFound for unknown ids, never a default.
	GetChild(ctx context.Context, id ChildID) (*Child, error)

	ListChildren(ctx context.Context) ([]Child, error)
}
