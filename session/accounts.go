/*
accounts.go - Credential storage and pre-flight validation

PURPOSE:
  Accounts back Authenticate and Register. Passwords are bcrypt-hashed;
  plaintext never touches the store. Registration input is validated
  before any store write, so bad input fails fast as ValidationError.

ROLES:
  Register creates PARENT accounts (the household owner). Child accounts
  are provisioned by a parent and carry the linked child id.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/quest-ledger/ledger"
)

// MinPasswordLength is enforced before any store or network call.
const MinPasswordLength = 6

var (
	// ErrInvalidCredentials is returned on a bad email/password pair. It is
	// deliberately identical for unknown accounts and wrong passwords.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ledger.ErrUnauthorized)

	// ErrAccountExists is returned when registering an email already in use.
	ErrAccountExists = errors.New("account already exists")
)

// Account is a stored credential record.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Phone        string
	Role         Role
	ChildID      ledger.ChildID // set only for CHILD accounts
	CreatedAt    time.Time
}

// AccountStore persists accounts. GetAccountByEmail returns (nil, nil) for
// unknown emails so the registry can collapse it into ErrInvalidCredentials
// without leaking which emails exist.
type AccountStore interface {
	SaveAccount(ctx context.Context, a Account) error
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
}

// Registry implements register/login on top of an AccountStore.
type Registry struct {
	store AccountStore
}

func NewRegistry(store AccountStore) *Registry {
	return &Registry{store: store}
}

// ValidateRegistration applies the client-side rules: email must contain
// "@", password must be at least MinPasswordLength characters. Runs before
// anything is sent anywhere.
func ValidateRegistration(username, email, password string) error {
	if strings.TrimSpace(username) == "" {
		return &ledger.ValidationError{Field: "username", Message: "must not be empty"}
	}
	if !strings.Contains(email, "@") {
		return &ledger.ValidationError{Field: "email", Message: "must contain @"}
	}
	if len(password) < MinPasswordLength {
		return &ledger.ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		}
	}
	return nil
}

// Register creates a PARENT account.
func (r *Registry) Register(ctx context.Context, username, email, password, phone string) (*Account, error) {
	if err := ValidateRegistration(username, email, password); err != nil {
		return nil, err
	}

	existing, err := r.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	a := Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Phone:        phone,
		Role:         RoleParent,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.SaveAccount(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RegisterChild creates a CHILD account bound to one ledger. Only the
// gateway's parent-guarded path reaches this.
func (r *Registry) RegisterChild(ctx context.Context, username, email, password string, childID ledger.ChildID) (*Account, error) {
	if err := ValidateRegistration(username, email, password); err != nil {
		return nil, err
	}
	if childID == "" {
		return nil, &ledger.ValidationError{Field: "childId", Message: "must not be empty"}
	}

	existing, err := r.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	a := Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         RoleChild,
		ChildID:      childID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.SaveAccount(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Authenticate checks an email/password pair.
func (r *Registry) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	a, err := r.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}
