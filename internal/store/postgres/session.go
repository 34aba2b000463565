package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

const selectTransactions = `
SELECT id, amount::text, type, date, usage, account, coalesce(target_account, ''), category
FROM transactions`

type session struct {
	tx   pgx.Tx
	done bool
}

func (s *session) check(ctx context.Context) error {
	if s.done {
		return &ledger.PersistenceError{Op: "session", Err: store.ErrClosed}
	}
	return ctx.Err()
}

func (s *session) Groups(ctx context.Context) ([]ledger.AccountGroup, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.tx.Query(ctx, `SELECT name FROM account_groups ORDER BY name`)
	if err != nil {
		return nil, mapError("list groups", err)
	}
	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.AccountGroup, error) {
		var g ledger.AccountGroup
		err := row.Scan(&g.Name)
		return g, err
	})
	return groups, mapError("list groups", err)
}

func (s *session) Accounts(ctx context.Context) ([]ledger.Account, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.tx.Query(ctx, `
		SELECT name, group_name, type, include_in_balance
		FROM accounts ORDER BY name`)
	if err != nil {
		return nil, mapError("list accounts", err)
	}
	accounts, err := pgx.CollectRows(rows, scanAccount)
	return accounts, mapError("list accounts", err)
}

func (s *session) Categories(ctx context.Context) ([]ledger.Category, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.tx.Query(ctx, `SELECT name FROM categories ORDER BY name`)
	if err != nil {
		return nil, mapError("list categories", err)
	}
	cats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Category, error) {
		var c ledger.Category
		err := row.Scan(&c.Name)
		return c, err
	})
	return cats, mapError("list categories", err)
}

// Transactions returns the matching transactions ordered by date, then id.
func (s *session) Transactions(ctx context.Context, filter store.TxFilter) ([]ledger.Transaction, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Account != "" {
		args = append(args, filter.Account)
		where = append(where, fmt.Sprintf("account = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, ledger.Day(filter.From))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, ledger.Day(filter.To))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}

	query := selectTransactions
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"

	rows, err := s.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list transactions", err)
	}
	txs, err := pgx.CollectRows(rows, scanTransaction)
	return txs, mapError("list transactions", err)
}

func (s *session) Group(ctx context.Context, name string) (ledger.AccountGroup, bool, error) {
	if err := s.check(ctx); err != nil {
		return ledger.AccountGroup{}, false, err
	}
	var g ledger.AccountGroup
	err := s.tx.QueryRow(ctx, `SELECT name FROM account_groups WHERE name = $1`, name).Scan(&g.Name)
	return found(g, err, "get group")
}

func (s *session) Account(ctx context.Context, name string) (ledger.Account, bool, error) {
	if err := s.check(ctx); err != nil {
		return ledger.Account{}, false, err
	}
	rows, err := s.tx.Query(ctx, `
		SELECT name, group_name, type, include_in_balance
		FROM accounts WHERE name = $1`, name)
	if err != nil {
		return ledger.Account{}, false, mapError("get account", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAccount)
	return found(a, err, "get account")
}

func (s *session) Category(ctx context.Context, name string) (ledger.Category, bool, error) {
	if err := s.check(ctx); err != nil {
		return ledger.Category{}, false, err
	}
	var c ledger.Category
	err := s.tx.QueryRow(ctx, `SELECT name FROM categories WHERE name = $1`, name).Scan(&c.Name)
	return found(c, err, "get category")
}

func (s *session) Transaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, bool, error) {
	if err := s.check(ctx); err != nil {
		return ledger.Transaction{}, false, err
	}
	rows, err := s.tx.Query(ctx, selectTransactions+` WHERE id = $1`, id)
	if err != nil {
		return ledger.Transaction{}, false, mapError("get transaction", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	return found(t, err, "get transaction")
}

func (s *session) CreateGroup(ctx context.Context, g ledger.AccountGroup) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if g.Name == "" {
		return &ledger.ValidationError{Field: "group", Reason: "empty name"}
	}
	_, err := s.tx.Exec(ctx, `INSERT INTO account_groups (name) VALUES ($1)`, g.Name)
	return mapError(fmt.Sprintf("create group %q", g.Name), err)
}

func (s *session) CreateAccount(ctx context.Context, a ledger.Account) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if a.Name == "" {
		return &ledger.ValidationError{Field: "account", Reason: "empty name"}
	}
	if _, ok, err := s.Group(ctx, a.Group); err != nil {
		return err
	} else if !ok {
		return &ledger.ReferenceError{Entity: "account", Name: a.Name, Missing: "group", Ref: a.Group}
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO accounts (name, group_name, type, include_in_balance)
		VALUES ($1, $2, $3, $4)`,
		a.Name, a.Group, a.Type, a.IncludeInBalance)
	return mapError(fmt.Sprintf("create account %q", a.Name), err)
}

func (s *session) CreateCategory(ctx context.Context, c ledger.Category) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if c.Name == "" {
		return &ledger.ValidationError{Field: "category", Reason: "empty name"}
	}
	_, err := s.tx.Exec(ctx, `INSERT INTO categories (name) VALUES ($1)`, c.Name)
	return mapError(fmt.Sprintf("create category %q", c.Name), err)
}

func (s *session) CreateTransaction(ctx context.Context, t ledger.Transaction) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	refs := []struct{ kind, name string }{{"account", t.Account}, {"category", t.Category}}
	if t.HasTarget() {
		refs = append(refs, struct{ kind, name string }{"account", t.TargetAccount})
	}
	for _, ref := range refs {
		var ok bool
		var err error
		if ref.kind == "account" {
			_, ok, err = s.Account(ctx, ref.name)
		} else {
			_, ok, err = s.Category(ctx, ref.name)
		}
		if err != nil {
			return err
		}
		if !ok {
			return &ledger.ReferenceError{Entity: "transaction", Name: t.ID.String(), Missing: ref.kind, Ref: ref.name}
		}
	}

	_, err := s.tx.Exec(ctx, `
		INSERT INTO transactions (id, amount, type, date, usage, account, target_account, category)
		VALUES ($1, $2::numeric, $3, $4, $5, $6, nullif($7, ''), $8)`,
		t.ID, t.Amount.String(), string(t.Type), ledger.Day(t.Date), t.Usage, t.Account, t.TargetAccount, t.Category)
	return mapError(fmt.Sprintf("create transaction %s", t.ID), err)
}

func (s *session) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	tag, err := s.tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return mapError(fmt.Sprintf("delete transaction %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *session) DeleteAll(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	_, err := s.tx.Exec(ctx, `TRUNCATE transactions, accounts, categories, account_groups`)
	return mapError("delete all", err)
}

func (s *session) Commit(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.done = true
	return mapError("commit", s.tx.Commit(ctx))
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (s *session) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return mapError("rollback", err)
	}
	return nil
}

func scanAccount(row pgx.CollectableRow) (ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(&a.Name, &a.Group, &a.Type, &a.IncludeInBalance)
	return a, err
}

func scanTransaction(row pgx.CollectableRow) (ledger.Transaction, error) {
	var (
		t      ledger.Transaction
		amount string
		typ    string
	)
	if err := row.Scan(&t.ID, &amount, &typ, &t.Date, &t.Usage, &t.Account, &t.TargetAccount, &t.Category); err != nil {
		return t, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return t, fmt.Errorf("amount %q: %w", amount, err)
	}
	t.Amount = d
	t.Type = ledger.TxType(typ)
	t.Date = ledger.Day(t.Date)
	return t, nil
}

// found turns pgx.ErrNoRows into a clean miss.
func found[T any](v T, err error, op string) (T, bool, error) {
	var zero T
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, mapError(op, err)
	}
	return v, true, nil
}
