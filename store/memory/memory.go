// Package memory provides an in-memory store for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/quest-ledger/ledger"
	"github.com/warp/quest-ledger/quest"
	"github.com/warp/quest-ledger/session"
)

// =============================================================================
// MEMORY STORE - Implements quest.Store and session.AccountStore
// =============================================================================

// Store keeps everything behind one mutex. WithTx snapshots state and
// restores it when the body fails or the context dies before commit, so
// the atomicity contract matches the SQLite store.
type Store struct {
	mu           sync.RWMutex
	transactions map[ledger.ChildID][]ledger.CoinTransaction
	idempotency  map[string]bool
	children     map[ledger.ChildID]ledger.Child
	childOrder   []ledger.ChildID
	quests       map[ledger.QuestID]quest.Quest
	accounts     map[string]session.Account // keyed by email
}

func New() *Store {
	return &Store{
		transactions: make(map[ledger.ChildID][]ledger.CoinTransaction),
		idempotency:  make(map[string]bool),
		children:     make(map[ledger.ChildID]ledger.Child),
		quests:       make(map[ledger.QuestID]quest.Quest),
		accounts:     make(map[string]session.Account),
	}
}

var _ quest.Store = (*Store)(nil)
var _ session.AccountStore = (*Store)(nil)

// =============================================================================
// COIN TRANSACTIONS (append-only)
// =============================================================================

func (m *Store) Append(_ context.Context, tx ledger.CoinTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Store) appendLocked(tx ledger.CoinTransaction) error {
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return ledger.ErrDuplicateIdempotencyKey
	}
	m.transactions[tx.ChildID] = append(m.transactions[tx.ChildID], tx)
	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (m *Store) Transactions(_ context.Context, childID ledger.ChildID) ([]ledger.CoinTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.CoinTransaction, len(m.transactions[childID]))
	copy(result, m.transactions[childID])
	return result, nil
}

func (m *Store) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// CHILDREN
// =============================================================================

func (m *Store) SaveChild(_ context.Context, c ledger.Child) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveChildLocked(c)
}

func (m *Store) saveChildLocked(c ledger.Child) error {
	if _, ok := m.children[c.ID]; !ok {
		m.childOrder = append(m.childOrder, c.ID)
	}
	m.children[c.ID] = c
	return nil
}

func (m *Store) GetChild(_ context.Context, id ledger.ChildID) (*ledger.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getChildLocked(id)
}

func (m *Store) getChildLocked(id ledger.ChildID) (*ledger.Child, error) {
	c, ok := m.children[id]
	if !ok {
		return nil, ledger.ErrChildNotFound
	}
	return &c, nil
}

func (m *Store) ListChildren(_ context.Context) ([]ledger.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listChildrenLocked(), nil
}

func (m *Store) listChildrenLocked() []ledger.Child {
	result := make([]ledger.Child, 0, len(m.childOrder))
	for _, id := range m.childOrder {
		result = append(result, m.children[id])
	}
	return result
}

// =============================================================================
// QUESTS
// =============================================================================

func (m *Store) SaveQuest(_ context.Context, q quest.Quest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quests[q.ID] = q
	return nil
}

func (m *Store) GetQuest(_ context.Context, id ledger.QuestID) (*quest.Quest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getQuestLocked(id)
}

func (m *Store) getQuestLocked(id ledger.QuestID) (*quest.Quest, error) {
	q, ok := m.quests[id]
	if !ok {
		return nil, ledger.ErrQuestNotFound
	}
	return &q, nil
}

func (m *Store) QuestsByChild(_ context.Context, childID ledger.ChildID) ([]quest.Quest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.questsByChildLocked(childID), nil
}

func (m *Store) questsByChildLocked(childID ledger.ChildID) []quest.Quest {
	var result []quest.Quest
	for _, q := range m.quests {
		if q.ChildID == childID {
			result = append(result, q)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (m *Store) CompareAndSetStatus(_ context.Context, id ledger.QuestID, from, to quest.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.casLocked(id, from, to)
}

func (m *Store) casLocked(id ledger.QuestID, from, to quest.Status) (bool, error) {
	q, ok := m.quests[id]
	if !ok {
		return false, ledger.ErrQuestNotFound
	}
	if q.Status != from {
		return false, nil
	}
	q.Status = to
	m.quests[id] = q
	return true, nil
}

func (m *Store) DeleteQuest(_ context.Context, id ledger.QuestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteQuestLocked(id)
}

func (m *Store) deleteQuestLocked(id ledger.QuestID) error {
	if _, ok := m.quests[id]; !ok {
		return ledger.ErrQuestNotFound
	}
	delete(m.quests, id)
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Store) SaveAccount(_ context.Context, a session.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Email] = a
	return nil
}

func (m *Store) GetAccountByEmail(_ context.Context, email string) (*session.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[email]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// =============================================================================
// TRANSACTIONAL WRAPPER
// =============================================================================

// WithTx executes fn atomically. The store lock is held for the duration,
// so concurrent mutations on the same quest serialize here. On error, or
// if ctx is done before commit, the snapshot is restored and nothing fn
// wrote is visible.
func (m *Store) WithTx(ctx context.Context, fn func(quest.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	view := &txView{parent: m}

	if err := fn(view); err != nil {
		m.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		// The caller's deadline expired mid-body: roll back rather than
		// commit a result nobody is waiting for.
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	transactions map[ledger.ChildID][]ledger.CoinTransaction
	idempotency  map[string]bool
	children     map[ledger.ChildID]ledger.Child
	childOrder   []ledger.ChildID
	quests       map[ledger.QuestID]quest.Quest
}

func (m *Store) snapshot() memorySnapshot {
	txs := make(map[ledger.ChildID][]ledger.CoinTransaction, len(m.transactions))
	for k, v := range m.transactions {
		txs[k] = append([]ledger.CoinTransaction{}, v...)
	}
	idem := make(map[string]bool, len(m.idempotency))
	for k, v := range m.idempotency {
		idem[k] = v
	}
	children := make(map[ledger.ChildID]ledger.Child, len(m.children))
	for k, v := range m.children {
		children[k] = v
	}
	quests := make(map[ledger.QuestID]quest.Quest, len(m.quests))
	for k, v := range m.quests {
		quests[k] = v
	}
	return memorySnapshot{
		transactions: txs,
		idempotency:  idem,
		children:     children,
		childOrder:   append([]ledger.ChildID{}, m.childOrder...),
		quests:       quests,
	}
}

func (m *Store) restore(s memorySnapshot) {
	m.transactions = s.transactions
	m.idempotency = s.idempotency
	m.children = s.children
	m.childOrder = s.childOrder
	m.quests = s.quests
}

// txView routes store calls back to the already-locked parent.
type txView struct {
	parent *Store
}

func (v *txView) Append(_ context.Context, tx ledger.CoinTransaction) error {
	return v.parent.appendLocked(tx)
}

func (v *txView) Transactions(_ context.Context, childID ledger.ChildID) ([]ledger.CoinTransaction, error) {
	return v.parent.transactions[childID], nil
}

func (v *txView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return v.parent.idempotency[idempotencyKey], nil
}

func (v *txView) SaveChild(_ context.Context, c ledger.Child) error {
	return v.parent.saveChildLocked(c)
}

func (v *txView) GetChild(_ context.Context, id ledger.ChildID) (*ledger.Child, error) {
	return v.parent.getChildLocked(id)
}

func (v *txView) ListChildren(_ context.Context) ([]ledger.Child, error) {
	return v.parent.listChildrenLocked(), nil
}

func (v *txView) SaveQuest(_ context.Context, q quest.Quest) error {
	v.parent.quests[q.ID] = q
	return nil
}

func (v *txView) GetQuest(_ context.Context, id ledger.QuestID) (*quest.Quest, error) {
	return v.parent.getQuestLocked(id)
}

func (v *txView) QuestsByChild(_ context.Context, childID ledger.ChildID) ([]quest.Quest, error) {
	return v.parent.questsByChildLocked(childID), nil
}

func (v *txView) CompareAndSetStatus(_ context.Context, id ledger.QuestID, from, to quest.Status) (bool, error) {
	return v.parent.casLocked(id, from, to)
}

func (v *txView) DeleteQuest(_ context.Context, id ledger.QuestID) error {
	return v.parent.deleteQuestLocked(id)
}

// Nested WithTx joins the outer transaction.
func (v *txView) WithTx(_ context.Context, fn func(quest.Store) error) error {
	return fn(v)
}
