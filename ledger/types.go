/*
Package ledger provides the core coin-ledger engine.

PURPOSE:
  This package contains the domain-agnostic pieces of the quest ledger:
  coin quantities, the append-only coin transaction log, and the child
  records balances hang off. Quest semantics live in the quest package;
  this package only knows how coins move.

KEY CONCEPTS IN THIS FILE (types.go):
  - Coins: An integer coin quantity (decimal-backed, no float drift)
  - CoinTransaction: An immutable ledger entry recording balance changes
  - Child: The entity a ledger belongs to

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal so replayed balances are exact
  3. Type Safety: Strong typing for IDs prevents mixing child/quest IDs
  4. Auditability: Every credit carries a reference and idempotency key

SEE ALSO:
  - ledger.go: Balance calculation by transaction replay
  - store.go: Persistence interfaces
  - errors.go: The failure taxonomy shared by all layers
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ChildID string
type QuestID string
type TransactionID string

// =============================================================================
// COINS - Integer coin quantity
// =============================================================================

// Coins is a coin amount. Rewards and balances are whole, non-negative
// integers at the API surface; internally the value is decimal so replay
// arithmetic never loses precision.
type Coins struct {
	Value decimal.Decimal
}

func NewCoins(v int64) Coins {
	return Coins{Value: decimal.NewFromInt(v)}
}

func (c Coins) Add(o Coins) Coins     { return Coins{Value: c.Value.Add(o.Value)} }
func (c Coins) Sub(o Coins) Coins     { return Coins{Value: c.Value.Sub(o.Value)} }
func (c Coins) Neg() Coins            { return Coins{Value: c.Value.Neg()} }
func (c Coins) IsNegative() bool      { return c.Value.IsNegative() }
func (c Coins) IsZero() bool          { return c.Value.IsZero() }
func (c Coins) Equal(o Coins) bool    { return c.Value.Equal(o.Value) }
func (c Coins) Int64() int64          { return c.Value.IntPart() }
func (c Coins) String() string        { return c.Value.String() }

// MarshalJSON renders Coins as a bare integer, matching the wire format
// the mobile clients expect ("coins": 450).
func (c Coins) MarshalJSON() ([]byte, error) {
	return []byte(c.Value.String()), nil
}

func (c *Coins) UnmarshalJSON(b []byte) error {
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("invalid coin amount %q: %w", string(b), err)
	}
	c.Value = d
	return nil
}

// =============================================================================
// COIN TRANSACTION - Atomic change to a child's balance
// =============================================================================

type TransactionType string

const (
	TxReward     TransactionType = "reward"     // Verified-quest credit
	TxAdjustment TransactionType = "adjustment" // Manual admin correction
	TxReversal   TransactionType = "reversal"   // Undo a previous transaction
)

// CoinTransaction is an immutable ledger entry. Balance is always computed
// by replaying transactions; there is no separately stored balance that can
// drift out of sync.
type CoinTransaction struct {
	ID             TransactionID
	ChildID        ChildID
	QuestID        QuestID // reference to the quest that earned it, if any
	Delta          Coins
	Type           TransactionType
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// CHILD - The entity a ledger belongs to
// =============================================================================

type Child struct {
	ID          ChildID
	Name        string
	AvatarColor string
	CreatedAt   time.Time
}
