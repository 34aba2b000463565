// Package store defines the persistence collaborator consumed by the import
// pipeline and the reconciler.
//
// A unit of work opens one Session, creates/fetches/deletes entities through
// it and finishes with exactly one Commit or Rollback. Nothing written through
// a session is visible to other sessions before Commit returns nil, and a
// failed Commit leaves the previously committed ledger untouched.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
)

var (
	// ErrConflict is returned by Commit when another session committed a
	// conflicting change after this one began.
	ErrConflict = errors.New("concurrent modification")
	// ErrClosed is returned for operations on a finished session or a closed store.
	ErrClosed = errors.New("store closed")
	// ErrExists is returned when creating an entity whose key is taken.
	ErrExists = errors.New("already exists")
	// ErrNotFound is returned when deleting an unknown entity.
	ErrNotFound = errors.New("not found")
)

// Store opens working sessions on one ledger.
type Store interface {
	// Begin opens a session. Read-only sessions must still be closed with
	// Rollback.
	Begin(ctx context.Context) (Session, error)
	Close() error
}

// Reader is the fetch-by-predicate half of a session.
type Reader interface {
	Groups(ctx context.Context) ([]ledger.AccountGroup, error)
	Accounts(ctx context.Context) ([]ledger.Account, error)
	Categories(ctx context.Context) ([]ledger.Category, error)
	Transactions(ctx context.Context, filter TxFilter) ([]ledger.Transaction, error)

	Group(ctx context.Context, name string) (ledger.AccountGroup, bool, error)
	Account(ctx context.Context, name string) (ledger.Account, bool, error)
	Category(ctx context.Context, name string) (ledger.Category, bool, error)
	Transaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, bool, error)
}

// Writer is the create/delete half of a session. Create fails when an
// entity with the same key already exists.
type Writer interface {
	CreateGroup(ctx context.Context, g ledger.AccountGroup) error
	CreateAccount(ctx context.Context, a ledger.Account) error
	CreateCategory(ctx context.Context, c ledger.Category) error
	CreateTransaction(ctx context.Context, t ledger.Transaction) error

	DeleteTransaction(ctx context.Context, id uuid.UUID) error

	// DeleteAll removes every entity of all four kinds in one step.
	DeleteAll(ctx context.Context) error
}

// Session is one isolated unit of work against the ledger.
type Session interface {
	Reader
	Writer

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxFilter selects transactions. Zero fields do not filter.
type TxFilter struct {
	Account string
	From    time.Time // inclusive
	To      time.Time // inclusive
}

// Match reports whether t satisfies the filter.
func (f TxFilter) Match(t ledger.Transaction) bool {
	if f.Account != "" && t.Account != f.Account {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To) {
		return false
	}
	return true
}

// ReadWriter is a session without the commit half. Codecs and the reconciler
// accept it so the caller keeps ownership of Commit and Rollback.
type ReadWriter interface {
	Reader
	Writer
}
