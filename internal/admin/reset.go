// Package admin provides administrative operations on the ledger store.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/bookkeeper/internal/logging"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

// Counts reports how many entities a reset removed.
type Counts struct {
	Groups       int
	Accounts     int
	Categories   int
	Transactions int
}

func (c Counts) String() string {
	return fmt.Sprintf("%d groups, %d accounts, %d categories, %d transactions",
		c.Groups, c.Accounts, c.Categories, c.Transactions)
}

// ResetAll removes every group, account, category and transaction in one
// session. This is a destructive operation; take a backup first.
func ResetAll(ctx context.Context, st store.Store) (Counts, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	sess, err := st.Begin(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("begin reset: %w", err)
	}
	defer sess.Rollback(context.WithoutCancel(ctx))

	counts, err := count(ctx, sess)
	if err != nil {
		return Counts{}, err
	}
	if err := sess.DeleteAll(ctx); err != nil {
		return Counts{}, fmt.Errorf("reset: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return Counts{}, err
	}

	logging.FromContext(ctx).Warn("ledger reset",
		"groups", counts.Groups,
		"accounts", counts.Accounts,
		"categories", counts.Categories,
		"transactions", counts.Transactions,
	)
	return counts, nil
}

func count(ctx context.Context, r store.Reader) (Counts, error) {
	var c Counts
	groups, err := r.Groups(ctx)
	if err != nil {
		return c, err
	}
	accounts, err := r.Accounts(ctx)
	if err != nil {
		return c, err
	}
	cats, err := r.Categories(ctx)
	if err != nil {
		return c, err
	}
	txs, err := r.Transactions(ctx, store.TxFilter{})
	if err != nil {
		return c, err
	}
	c.Groups, c.Accounts, c.Categories, c.Transactions = len(groups), len(accounts), len(cats), len(txs)
	return c, nil
}
