package snapshot

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/logging"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// Mode selects how Apply treats entries whose references do not resolve.
type Mode int

const (
	// Lenient skips the entry and records a warning.
	Lenient Mode = iota
	// Strict aborts with a *ledger.ReferenceError.
	Strict
)

// checkEvery is how many entities are applied between cancellation checks.
const checkEvery = 100

// Skip describes one entry that was not applied.
type Skip struct {
	Entity string `json:"entity"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Stats counts the entities created by Apply.
type Stats struct {
	Groups       int    `json:"groups"`
	Accounts     int    `json:"accounts"`
	Categories   int    `json:"categories"`
	Transactions int    `json:"transactions"`
	Skipped      []Skip `json:"skipped,omitempty"`
}

// Created returns the total number of created entities.
func (s Stats) Created() int {
	return s.Groups + s.Accounts + s.Categories + s.Transactions
}

// Restore deletes every entity reachable through rw and rebuilds the ledger
// from doc. Nothing is committed; the caller commits rw once Restore returns nil.
func Restore(ctx context.Context, rw store.ReadWriter, doc *Document, mode Mode) (Stats, error) {
	if err := rw.DeleteAll(ctx); err != nil {
		return Stats{}, fmt.Errorf("clear ledger: %w", err)
	}
	return Apply(ctx, rw, doc, mode)
}

// Apply inserts the entities of doc in dependency order: categories, groups,
// accounts, then transactions. Entries whose key already exists are skipped.
func Apply(ctx context.Context, rw store.ReadWriter, doc *Document, mode Mode) (Stats, error) {
	a := applier{rw: rw, mode: mode}
	steps := []func(context.Context, *Document) error{
		a.categories,
		a.groups,
		a.accounts,
		a.transactions,
	}
	for _, step := range steps {
		if err := step(ctx, doc); err != nil {
			return a.stats, err
		}
	}
	return a.stats, nil
}

type applier struct {
	rw    store.ReadWriter
	mode  Mode
	stats Stats
	n     int
}

func (a *applier) tick(ctx context.Context) error {
	a.n++
	if a.n%checkEvery == 0 {
		return ctx.Err()
	}
	return nil
}

func (a *applier) skip(ctx context.Context, entity, name, reason string) {
	logging.FromContext(ctx).Warn("snapshot entry skipped",
		"entity", entity,
		"name", name,
		"reason", reason,
	)
	a.stats.Skipped = append(a.stats.Skipped, Skip{Entity: entity, Name: name, Reason: reason})
}

// unresolved records a reference failure, or returns it in strict mode.
func (a *applier) unresolved(ctx context.Context, err *ledger.ReferenceError) error {
	if a.mode == Strict {
		return err
	}
	a.skip(ctx, err.Entity, err.Name, err.Error())
	return nil
}

func (a *applier) categories(ctx context.Context, doc *Document) error {
	for _, c := range doc.Categories {
		if err := a.tick(ctx); err != nil {
			return err
		}
		if c.Name == "" {
			a.skip(ctx, "category", "", "empty name")
			continue
		}
		_, ok, err := a.rw.Category(ctx, c.Name)
		if err != nil {
			return err
		}
		if ok {
			a.skip(ctx, "category", c.Name, "already exists")
			continue
		}
		if err := a.rw.CreateCategory(ctx, ledger.Category{Name: c.Name}); err != nil {
			return fmt.Errorf("create category %q: %w", c.Name, err)
		}
		a.stats.Categories++
	}
	return nil
}

func (a *applier) groups(ctx context.Context, doc *Document) error {
	for _, g := range doc.AccountGroups {
		if err := a.tick(ctx); err != nil {
			return err
		}
		if g.Name == "" {
			a.skip(ctx, "group", "", "empty name")
			continue
		}
		_, ok, err := a.rw.Group(ctx, g.Name)
		if err != nil {
			return err
		}
		if ok {
			a.skip(ctx, "group", g.Name, "already exists")
			continue
		}
		if err := a.rw.CreateGroup(ctx, ledger.AccountGroup{Name: g.Name}); err != nil {
			return fmt.Errorf("create group %q: %w", g.Name, err)
		}
		a.stats.Groups++
	}
	return nil
}

func (a *applier) accounts(ctx context.Context, doc *Document) error {
	for _, e := range doc.Accounts {
		if err := a.tick(ctx); err != nil {
			return err
		}
		if e.Name == "" {
			a.skip(ctx, "account", "", "empty name")
			continue
		}
		_, ok, err := a.rw.Account(ctx, e.Name)
		if err != nil {
			return err
		}
		if ok {
			a.skip(ctx, "account", e.Name, "already exists")
			continue
		}
		_, ok, err = a.rw.Group(ctx, e.Group)
		if err != nil {
			return err
		}
		if !ok {
			if err := a.unresolved(ctx, &ledger.ReferenceError{Entity: "account", Name: e.Name, Missing: "group", Ref: e.Group}); err != nil {
				return err
			}
			continue
		}
		acct := ledger.Account{
			Name:             e.Name,
			Group:            e.Group,
			Type:             e.Type,
			IncludeInBalance: e.IncludeInBalance,
		}
		if err := a.rw.CreateAccount(ctx, acct); err != nil {
			return fmt.Errorf("create account %q: %w", e.Name, err)
		}
		a.stats.Accounts++
	}
	return nil
}

func (a *applier) transactions(ctx context.Context, doc *Document) error {
	for _, e := range doc.Transactions {
		if err := a.tick(ctx); err != nil {
			return err
		}
		t, err := e.Transaction()
		if err != nil {
			if a.mode == Strict {
				return fmt.Errorf("transaction %s: %w", e.ID, err)
			}
			a.skip(ctx, "transaction", e.ID, err.Error())
			continue
		}

		_, ok, err := a.rw.Transaction(ctx, t.ID)
		if err != nil {
			return err
		}
		if ok {
			a.skip(ctx, "transaction", e.ID, "already exists")
			continue
		}

		refErr, err := ResolveTransaction(ctx, a.rw, t, e.Category == "")
		if err != nil {
			return err
		}
		if refErr != nil {
			if err := a.unresolved(ctx, refErr); err != nil {
				return err
			}
			continue
		}
		if err := a.rw.CreateTransaction(ctx, t); err != nil {
			return fmt.Errorf("create transaction %s: %w", t.ID, err)
		}
		a.stats.Transactions++
	}
	return nil
}

// ResolveTransaction checks that the account, optional target account and
// category of t exist in rw. When createOther is set and t falls back to
// ledger.OtherCategory, that category is created on demand. A non-nil
// *ledger.ReferenceError names the first reference that did not resolve.
func ResolveTransaction(ctx context.Context, rw store.ReadWriter, t ledger.Transaction, createOther bool) (*ledger.ReferenceError, error) {
	name := t.ID.String()

	refs := []struct {
		kind, ref string
	}{
		{"account", t.Account},
	}
	if t.HasTarget() {
		refs = append(refs, struct{ kind, ref string }{"account", t.TargetAccount})
	}
	for _, r := range refs {
		_, ok, err := rw.Account(ctx, r.ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &ledger.ReferenceError{Entity: "transaction", Name: name, Missing: r.kind, Ref: r.ref}, nil
		}
	}

	_, ok, err := rw.Category(ctx, t.Category)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	if createOther && t.Category == ledger.OtherCategory {
		if err := rw.CreateCategory(ctx, ledger.Category{Name: ledger.OtherCategory}); err != nil {
			return nil, fmt.Errorf("create category %q: %w", ledger.OtherCategory, err)
		}
		return nil, nil
	}
	return &ledger.ReferenceError{Entity: "transaction", Name: name, Missing: "category", Ref: t.Category}, nil
}
