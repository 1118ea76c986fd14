/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements quest.Store and session.AccountStore using SQLite. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  coin_transactions:  Immutable, append-only ledger of balance changes
  quests:             Current quest state (status is CAS-updated)
  children:           Child ledger owners
  accounts:           bcrypt-hashed credentials

INVARIANT ENFORCEMENT:
  - idempotency_key UNIQUE: a retried verification credit cannot land twice
  - CompareAndSetStatus is UPDATE ... WHERE status = ?: of two racing
    verifications exactly one flips the row
  - no UPDATE or DELETE ever touches coin_transactions

WAL MODE:
  The database is opened with WAL so readers do not block the writer and
  crash recovery is cheap.

USAGE:
  store, err := sqlite.New("./quests.db")   // ":memory:" works too
  defer store.Close()

SEE ALSO:
  - quest/store.go: interface contracts
  - store/memory: in-memory twin for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/quest-ledger/ledger"
	"github.com/warp/quest-ledger/quest"
	"github.com/warp/quest-ledger/session"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writers; SQLite allows only one anyway
}

var _ quest.Store = (*Store)(nil)
var _ session.AccountStore = (*Store)(nil)

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Coin transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS coin_transactions (
		id TEXT PRIMARY KEY,
		child_id TEXT NOT NULL,
		quest_id TEXT,
		delta TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_coin_transactions_child
		ON coin_transactions(child_id, created_at);

	-- Quests (status is the only lifecycle-mutable field)
	CREATE TABLE IF NOT EXISTS quests (
		id TEXT PRIMARY KEY,
		child_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		reward INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		verified_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_quests_child
		ON quests(child_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_quests_status
		ON quests(status);

	-- Children
	CREATE TABLE IF NOT EXISTS children (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		avatar_color TEXT,
		created_at TEXT NOT NULL
	);

	-- Accounts
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		phone TEXT,
		role TEXT NOT NULL,
		child_id TEXT,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper can
// run inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// COIN TRANSACTIONS (ledger.Store)
// =============================================================================

func (s *Store) Append(ctx context.Context, tx ledger.CoinTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendCoinTx(ctx, s.db, tx)
}

func appendCoinTx(ctx context.Context, db dbtx, tx ledger.CoinTransaction) error {
	query := `
		INSERT INTO coin_transactions
		(id, child_id, quest_id, delta, tx_type, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.ChildID),
		nullString(string(tx.QuestID)),
		tx.Delta.Value.String(),
		string(tx.Type),
		tx.Reason,
		nullString(tx.IdempotencyKey),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append coin transaction: %w", err)
	}
	return nil
}

func (s *Store) Transactions(ctx context.Context, childID ledger.ChildID) ([]ledger.CoinTransaction, error) {
	return loadCoinTxs(ctx, s.db, childID)
}

func loadCoinTxs(ctx context.Context, db dbtx, childID ledger.ChildID) ([]ledger.CoinTransaction, error) {
	query := `
		SELECT id, child_id, quest_id, delta, tx_type, reason, idempotency_key, created_at
		FROM coin_transactions
		WHERE child_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := db.QueryContext(ctx, query, string(childID))
	if err != nil {
		return nil, fmt.Errorf("failed to query coin transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.CoinTransaction
	for rows.Next() {
		var (
			tx        ledger.CoinTransaction
			questID   sql.NullString
			delta     string
			reason    sql.NullString
			idemKey   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&tx.ID, &tx.ChildID, &questID, &delta, &tx.Type, &reason, &idemKey, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan coin transaction: %w", err)
		}
		d, err := decimal.NewFromString(delta)
		if err != nil {
			return nil, fmt.Errorf("corrupt delta %q: %w", delta, err)
		}
		tx.QuestID = ledger.QuestID(questID.String)
		tx.Delta = ledger.Coins{Value: d}
		tx.Reason = reason.String
		tx.IdempotencyKey = idemKey.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return idemKeyExists(ctx, s.db, idempotencyKey)
}

func idemKeyExists(ctx context.Context, db dbtx, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM coin_transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// CHILDREN (ledger.ChildStore)
// =============================================================================

func (s *Store) SaveChild(ctx context.Context, c ledger.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveChild(ctx, s.db, c)
}

func saveChild(ctx context.Context, db dbtx, c ledger.Child) error {
	query := `
		INSERT INTO children (id, name, avatar_color, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, avatar_color = excluded.avatar_color
	`
	_, err := db.ExecContext(ctx, query,
		string(c.ID), c.Name, c.AvatarColor, c.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save child: %w", err)
	}
	return nil
}

func (s *Store) GetChild(ctx context.Context, id ledger.ChildID) (*ledger.Child, error) {
	return getChild(ctx, s.db, id)
}

func getChild(ctx context.Context, db dbtx, id ledger.ChildID) (*ledger.Child, error) {
	var (
		c         ledger.Child
		avatar    sql.NullString
		createdAt string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, avatar_color, created_at FROM children WHERE id = ?",
		string(id),
	).Scan(&c.ID, &c.Name, &avatar, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrChildNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	c.AvatarColor = avatar.String
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

func (s *Store) ListChildren(ctx context.Context) ([]ledger.Child, error) {
	return listChildren(ctx, s.db)
}

func listChildren(ctx context.Context, db dbtx) ([]ledger.Child, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, avatar_color, created_at FROM children ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var children []ledger.Child
	for rows.Next() {
		var (
			c         ledger.Child
			avatar    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Name, &avatar, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		c.AvatarColor = avatar.String
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		children = append(children, c)
	}
	return children, rows.Err()
}

// =============================================================================
// QUESTS (quest.QuestStore)
// =============================================================================

const questColumns = "id, child_id, title, description, reward, status, created_at, updated_at, verified_at"

func (s *Store) SaveQuest(ctx context.Context, q quest.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveQuest(ctx, s.db, q)
}

func saveQuest(ctx context.Context, db dbtx, q quest.Quest) error {
	query := `
		INSERT INTO quests
		(id, child_id, title, description, reward, status, created_at, updated_at, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			updated_at = excluded.updated_at,
			verified_at = excluded.verified_at
	`
	var verifiedAt any
	if q.VerifiedAt != nil {
		verifiedAt = q.VerifiedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := db.ExecContext(ctx, query,
		string(q.ID),
		string(q.ChildID),
		q.Title,
		q.Description,
		q.Reward,
		string(q.Status),
		q.CreatedAt.UTC().Format(time.RFC3339Nano),
		q.UpdatedAt.UTC().Format(time.RFC3339Nano),
		verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save quest: %w", err)
	}
	return nil
}

func (s *Store) GetQuest(ctx context.Context, id ledger.QuestID) (*quest.Quest, error) {
	return getQuest(ctx, s.db, id)
}

func getQuest(ctx context.Context, db dbtx, id ledger.QuestID) (*quest.Quest, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+questColumns+" FROM quests WHERE id = ?", string(id))

	q, err := scanQuest(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrQuestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return q, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuest(row rowScanner) (*quest.Quest, error) {
	var (
		q           quest.Quest
		description sql.NullString
		createdAt   string
		updatedAt   string
		verifiedAt  sql.NullString
	)
	err := row.Scan(&q.ID, &q.ChildID, &q.Title, &description, &q.Reward, &q.Status,
		&createdAt, &updatedAt, &verifiedAt)
	if err != nil {
		return nil, err
	}
	q.Description = description.String
	q.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	q.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if verifiedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, verifiedAt.String)
		q.VerifiedAt = &t
	}
	return &q, nil
}

func (s *Store) QuestsByChild(ctx context.Context, childID ledger.ChildID) ([]quest.Quest, error) {
	return questsByChild(ctx, s.db, childID)
}

func questsByChild(ctx context.Context, db dbtx, childID ledger.ChildID) ([]quest.Quest, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+questColumns+" FROM quests WHERE child_id = ? ORDER BY created_at ASC, id ASC",
		string(childID))
	if err != nil {
		return nil, fmt.Errorf("failed to query quests: %w", err)
	}
	defer rows.Close()

	var quests []quest.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

// CompareAndSetStatus flips the quest's status only if it still holds the
// expected value. The WHERE clause carries the whole guarantee: of two
// racing verifications, exactly one update matches a row.
func (s *Store) CompareAndSetStatus(ctx context.Context, id ledger.QuestID, from, to quest.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return casStatus(ctx, s.db, id, from, to)
}

func casStatus(ctx context.Context, db dbtx, id ledger.QuestID, from, to quest.Status) (bool, error) {
	res, err := db.ExecContext(ctx,
		"UPDATE quests SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), time.Now().UTC().Format(time.RFC3339Nano), string(id), string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update quest status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	// No row matched: either the quest is missing or the status moved.
	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM quests WHERE id = ?", string(id)).Scan(&count); err != nil {
		return false, err
	}
	if count == 0 {
		return false, ledger.ErrQuestNotFound
	}
	return false, nil
}

func (s *Store) DeleteQuest(ctx context.Context, id ledger.QuestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteQuest(ctx, s.db, id)
}

func deleteQuest(ctx context.Context, db dbtx, id ledger.QuestID) error {
	res, err := db.ExecContext(ctx, "DELETE FROM quests WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete quest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrQuestNotFound
	}
	return nil
}

// =============================================================================
// ACCOUNTS (session.AccountStore)
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, a session.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts
		(id, username, email, password_hash, phone, role, child_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			username = excluded.username,
			password_hash = excluded.password_hash,
			phone = excluded.phone
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Username, a.Email, a.PasswordHash, nullString(a.Phone),
		string(a.Role), nullString(string(a.ChildID)),
		a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*session.Account, error) {
	var (
		a         session.Account
		phone     sql.NullString
		childID   sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, phone, role, child_id, created_at
		FROM accounts WHERE email = ?`, email,
	).Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &phone, &a.Role, &childID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Phone = phone.String
	a.ChildID = ledger.ChildID(childID.String)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &a, nil
}

// =============================================================================
// TRANSACTIONAL WRAPPER (quest.Store WithTx)
// =============================================================================

// WithTx executes fn within one database transaction. The writer lock is
// held throughout, so mutations on a single quest serialize here as well
// as at the CAS. Commit is skipped when the caller's context has already
// expired.
func (s *Store) WithTx(ctx context.Context, fn func(quest.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every store call through the open *sql.Tx so a
// transaction sees its own writes.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, tx ledger.CoinTransaction) error {
	return appendCoinTx(ctx, ts.tx, tx)
}

func (ts *txStore) Transactions(ctx context.Context, childID ledger.ChildID) ([]ledger.CoinTransaction, error) {
	return loadCoinTxs(ctx, ts.tx, childID)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return idemKeyExists(ctx, ts.tx, idempotencyKey)
}

func (ts *txStore) SaveChild(ctx context.Context, c ledger.Child) error {
	return saveChild(ctx, ts.tx, c)
}

func (ts *txStore) GetChild(ctx context.Context, id ledger.ChildID) (*ledger.Child, error) {
	return getChild(ctx, ts.tx, id)
}

func (ts *txStore) ListChildren(ctx context.Context) ([]ledger.Child, error) {
	return listChildren(ctx, ts.tx)
}

func (ts *txStore) SaveQuest(ctx context.Context, q quest.Quest) error {
	return saveQuest(ctx, ts.tx, q)
}

func (ts *txStore) GetQuest(ctx context.Context, id ledger.QuestID) (*quest.Quest, error) {
	return getQuest(ctx, ts.tx, id)
}

func (ts *txStore) QuestsByChild(ctx context.Context, childID ledger.ChildID) ([]quest.Quest, error) {
	return questsByChild(ctx, ts.tx, childID)
}

func (ts *txStore) CompareAndSetStatus(ctx context.Context, id ledger.QuestID, from, to quest.Status) (bool, error) {
	return casStatus(ctx, ts.tx, id, from, to)
}

func (ts *txStore) DeleteQuest(ctx context.Context, id ledger.QuestID) error {
	return deleteQuest(ctx, ts.tx, id)
}

// Nested WithTx joins the outer transaction.
func (ts *txStore) WithTx(_ context.Context, fn func(quest.Store) error) error {
	return fn(ts)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
