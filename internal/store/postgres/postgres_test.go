package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/ledger": "pgx5://u:p@localhost:5432/ledger",
		"postgresql://localhost/ledger?x=1":    "pgx5://localhost/ledger?x=1",
		"pgx5://localhost/ledger":              "pgx5://localhost/ledger",
	}
	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

// openTestStore connects to LEDGER_TEST_DATABASE_URL, migrates and empties
// the schema. Tests are skipped without it.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, Migrate(url))

	s, err := Open(ctx, url, PoolConfig{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.DeleteAll(ctx))
	require.NoError(t, sess.Commit(ctx))
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)

	require.NoError(t, sess.CreateGroup(ctx, ledger.AccountGroup{Name: "Banks"}))
	require.NoError(t, sess.CreateAccount(ctx, ledger.Account{Name: "Giro", Group: "Banks", IncludeInBalance: true}))
	require.NoError(t, sess.CreateAccount(ctx, ledger.Account{Name: "Savings", Group: "Banks"}))
	require.NoError(t, sess.CreateCategory(ctx, ledger.Category{Name: "Transfer"}))

	tx := ledger.Transaction{
		ID:            uuid.New(),
		Amount:        decimal.RequireFromString("-120.35"),
		Type:          ledger.TypeTransfer,
		Date:          time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Usage:         "monthly savings",
		Account:       "Giro",
		TargetAccount: "Savings",
		Category:      "Transfer",
	}
	require.NoError(t, sess.CreateTransaction(ctx, tx))

	err = sess.CreateTransaction(ctx, ledger.Transaction{
		ID: uuid.New(), Amount: decimal.NewFromInt(1), Type: ledger.TypeIncome,
		Date: tx.Date, Account: "Nowhere", Category: "Transfer",
	})
	require.True(t, ledger.IsReference(err), "got %v", err)
	require.NoError(t, sess.Commit(ctx))

	check, err := s.Begin(ctx)
	require.NoError(t, err)
	defer check.Rollback(ctx)

	got, ok, err := check.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, tx.Amount.Equal(got.Amount))
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), got.Date)
	assert.Equal(t, "Savings", got.TargetAccount)

	txs, err := check.Transactions(ctx, store.TxFilter{Account: "Savings"})
	require.NoError(t, err)
	assert.Empty(t, txs)

	acct, ok, err := check.Account(ctx, "Savings")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, acct.IncludeInBalance)
}

func TestRollbackDiscards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.CreateGroup(ctx, ledger.AccountGroup{Name: "Banks"}))
	require.NoError(t, sess.Rollback(ctx))

	check, err := s.Begin(ctx)
	require.NoError(t, err)
	defer check.Rollback(ctx)
	groups, err := check.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)

	err = sess.CreateGroup(ctx, ledger.AccountGroup{Name: "Again"})
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestCreateDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	require.NoError(t, sess.CreateCategory(ctx, ledger.Category{Name: "Food"}))
	err = sess.CreateCategory(ctx, ledger.Category{Name: "Food"})
	assert.ErrorIs(t, err, store.ErrExists)
}
