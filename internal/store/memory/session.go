package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

type session struct {
	store *Store
	work  *state
	base  uint64
	done  bool
}

func (s *session) check(ctx context.Context) error {
	if s.done {
		return &ledger.PersistenceError{Op: "session", Err: ErrClosed}
	}
	return ctx.Err()
}

func (s *session) Groups(ctx context.Context) ([]ledger.AccountGroup, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return sortedValues(s.work.groups, func(g ledger.AccountGroup) string { return g.Name }), nil
}

func (s *session) Accounts(ctx context.Context) ([]ledger.Account, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return sortedValues(s.work.accounts, func(a ledger.Account) string { return a.Name }), nil
}

func (s *session) Categories(ctx context.Context) ([]ledger.Category, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return sortedValues(s.work.categories, func(c ledger.Category) string { return c.Name }), nil
}

func (s *session) Transactions(ctx context.Context, filter store.TxFilter) ([]ledger.Transaction, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return sortedTxs(s.work.txs, filter), nil
}

func (s *session) Group(ctx context.Context, name string) (ledger.AccountGroup, bool, error) {
	if err := s.check(ctx); err != nil {
		return ledger.AccountGroup{}, false, err
	}
	g, ok := s.work.groups[name]
	return g, ok, nil
}

func (s *session) Account(ctx context.Context, name string) (ledger.Account, bool, error) {
	if err := s.check(ctx); err != nil {
		return ledger.Account{}, false, err
	}
	a, ok := s.work.accounts[name]
	return a, ok, nil
}

func (s *session) Category(ctx context.Context, name string) (ledger.Category, bool, error) {
	if err := s.check(ctx); err != nil {
		return ledger.Category{}, false, err
	}
	c, ok := s.work.categories[name]
	return c, ok, nil
}

func (s *session) Transaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, bool, error) {
	if err := s.check(ctx); err != nil {
		return ledger.Transaction{}, false, err
	}
	t, ok := s.work.txs[id]
	return t, ok, nil
}

func (s *session) CreateGroup(ctx context.Context, g ledger.AccountGroup) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if g.Name == "" {
		return &ledger.ValidationError{Field: "group", Reason: "empty name"}
	}
	if _, ok := s.work.groups[g.Name]; ok {
		return fmt.Errorf("create group %q: %w", g.Name, ErrExists)
	}
	s.work.groups[g.Name] = g
	return nil
}

func (s *session) CreateAccount(ctx context.Context, a ledger.Account) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if a.Name == "" {
		return &ledger.ValidationError{Field: "account", Reason: "empty name"}
	}
	if _, ok := s.work.accounts[a.Name]; ok {
		return fmt.Errorf("create account %q: %w", a.Name, ErrExists)
	}
	if _, ok := s.work.groups[a.Group]; !ok {
		return &ledger.ReferenceError{Entity: "account", Name: a.Name, Missing: "group", Ref: a.Group}
	}
	s.work.accounts[a.Name] = a
	return nil
}

func (s *session) CreateCategory(ctx context.Context, c ledger.Category) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if c.Name == "" {
		return &ledger.ValidationError{Field: "category", Reason: "empty name"}
	}
	if _, ok := s.work.categories[c.Name]; ok {
		return fmt.Errorf("create category %q: %w", c.Name, ErrExists)
	}
	s.work.categories[c.Name] = c
	return nil
}

func (s *session) CreateTransaction(ctx context.Context, t ledger.Transaction) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if _, ok := s.work.txs[t.ID]; ok {
		return fmt.Errorf("create transaction %s: %w", t.ID, ErrExists)
	}
	if _, ok := s.work.accounts[t.Account]; !ok {
		return &ledger.ReferenceError{Entity: "transaction", Name: t.ID.String(), Missing: "account", Ref: t.Account}
	}
	if t.HasTarget() {
		if _, ok := s.work.accounts[t.TargetAccount]; !ok {
			return &ledger.ReferenceError{Entity: "transaction", Name: t.ID.String(), Missing: "account", Ref: t.TargetAccount}
		}
	}
	if _, ok := s.work.categories[t.Category]; !ok {
		return &ledger.ReferenceError{Entity: "transaction", Name: t.ID.String(), Missing: "category", Ref: t.Category}
	}
	t.Date = ledger.Day(t.Date)
	s.work.txs[t.ID] = t
	return nil
}

func (s *session) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.work.txs[id]; !ok {
		return fmt.Errorf("delete transaction %s: %w", id, ErrNotFound)
	}
	delete(s.work.txs, id)
	return nil
}

func (s *session) DeleteAll(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.work = newState()
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.done = true
	return s.store.commit(s.work, s.base)
}

// Rollback discards the session. It is a no-op after Commit.
func (s *session) Rollback(ctx context.Context) error {
	s.done = true
	s.work = nil
	return nil
}
