package reconcile

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/snapshot"
	"github.com/JonMunkholm/bookkeeper/internal/store"
	"github.com/JonMunkholm/bookkeeper/internal/store/memory"
)

func tx(account, category, amount string, day int) ledger.Transaction {
	return ledger.Transaction{
		ID:       uuid.New(),
		Amount:   decimal.RequireFromString(amount),
		Type:     ledger.TypeExpense,
		Date:     time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC),
		Usage:    "usage " + amount,
		Account:  account,
		Category: category,
	}
}

// replica builds a snapshot with one group, the given accounts and
// categories, and txs.
func replica(accounts, categories []string, txs ...ledger.Transaction) *snapshot.Document {
	groups := []ledger.AccountGroup{{Name: "Banks"}}
	var accts []ledger.Account
	for _, a := range accounts {
		accts = append(accts, ledger.Account{Name: a, Group: "Banks", IncludeInBalance: true})
	}
	var cats []ledger.Category
	for _, c := range categories {
		cats = append(cats, ledger.Category{Name: c})
	}
	return snapshot.FromEntities(groups, accts, cats, txs)
}

func load(t *testing.T, st store.Store, doc *snapshot.Document) {
	t.Helper()
	ctx := context.Background()
	sess, err := st.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	_, err = snapshot.Restore(ctx, sess, doc, snapshot.Strict)
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))
}

func dump(t *testing.T, st store.Store) *snapshot.Document {
	t.Helper()
	ctx := context.Background()
	sess, err := st.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	doc, err := snapshot.Build(ctx, sess)
	require.NoError(t, err)
	return doc
}

func snapshotJSON(doc *snapshot.Document) (string, error) {
	var buf bytes.Buffer
	err := snapshot.Encode(&buf, doc)
	return buf.String(), err
}

func TestParseStrategy(t *testing.T) {
	tests := map[string]Strategy{
		"replace":        Replace,
		"Merge":          Merge,
		"PreserveLocal":  PreserveLocal,
		"preserve_local": PreserveLocal,
		"ask-user":       AskUser,
		"lastWriteWins":  Replace,
	}
	for in, want := range tests {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStrategy("theirs")
	assert.True(t, ledger.IsPolicy(err))
}

func TestMergeUnion(t *testing.T) {
	ctx := context.Background()
	local := []ledger.Transaction{tx("Giro", "Food", "-1", 1), tx("Giro", "Food", "-2", 2), tx("Giro", "Food", "-3", 3)}
	remote := []ledger.Transaction{tx("Giro", "Food", "-4", 4), tx("Visa", "Travel", "-5", 5)}

	st := memory.New()
	load(t, st, replica([]string{"Giro"}, []string{"Food"}, local...))
	before := dump(t, st)

	for _, strategy := range []Strategy{Merge, PreserveLocal} {
		t.Run(string(strategy), func(t *testing.T) {
			st := memory.New()
			load(t, st, before)

			res, err := New(st).Run(ctx, replica([]string{"Giro", "Visa"}, []string{"Food", "Travel"}, remote...), strategy)
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.False(t, res.PendingDecision)
			assert.Equal(t, 2, res.Stats.Transactions)
			assert.Equal(t, 1, res.Stats.Accounts)
			assert.Equal(t, 1, res.Stats.Categories)

			after := dump(t, st)
			require.Len(t, after.Transactions, len(local)+len(remote))
			byID := map[string]snapshot.TransactionEntry{}
			for _, e := range after.Transactions {
				byID[e.ID] = e
			}
			for _, e := range before.Transactions {
				assert.Equal(t, e, byID[e.ID])
			}
		})
	}
}

func TestMergeKeepsLocalCopy(t *testing.T) {
	ctx := context.Background()
	shared := tx("Giro", "Food", "-10", 1)

	st := memory.New()
	load(t, st, replica([]string{"Giro"}, []string{"Food"}, shared))
	before := dump(t, st)

	changed := shared
	changed.Amount = decimal.RequireFromString("-99")
	changed.Usage = "edited elsewhere"

	res, err := New(st).Run(ctx, replica([]string{"Giro"}, []string{"Food"}, changed), Merge)
	require.NoError(t, err)
	assert.Zero(t, res.Stats.Created())
	assert.NotEmpty(t, res.Stats.Skipped)

	assert.Equal(t, before, dump(t, st))
}

func TestMergeSkipsUnresolvedReferences(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	load(t, st, replica([]string{"Giro"}, []string{"Food"}))

	remote := snapshot.FromEntities(nil,
		[]ledger.Account{{Name: "Orphan", Group: "Missing"}},
		nil,
		[]ledger.Transaction{tx("Orphan", "Food", "-1", 1), tx("Giro", "Food", "-2", 2)},
	)
	res, err := New(st).Run(ctx, remote, Merge)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Transactions)

	var entities []string
	for _, s := range res.Stats.Skipped {
		entities = append(entities, s.Entity)
	}
	assert.ElementsMatch(t, []string{"account", "transaction"}, entities)
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	load(t, st, replica([]string{"Giro"}, []string{"Food"}, tx("Giro", "Food", "-1", 1)))

	remote := replica([]string{"Visa"}, []string{"Travel"}, tx("Visa", "Travel", "-7", 7))
	r := New(st)
	res, err := r.Run(ctx, remote, Replace)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StateCommitted, r.Status().State)

	want, err := snapshotJSON(remote)
	require.NoError(t, err)
	got, err := snapshotJSON(dump(t, st))
	require.NoError(t, err)
	assert.JSONEq(t, want, got)
}

func TestAskUserFlagsPendingAndReplaces(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	load(t, st, replica([]string{"Giro"}, []string{"Food"}, tx("Giro", "Food", "-1", 1)))

	remote := replica([]string{"Visa"}, []string{"Travel"})
	res, err := New(st).Run(ctx, remote, AskUser)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.PendingDecision)
	assert.Equal(t, AskUser, res.Strategy)
	assert.Empty(t, dump(t, st).Transactions)
}

func TestReplaceFailureKeepsLocalLedger(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	load(t, st, replica([]string{"Giro"}, []string{"Food"}, tx("Giro", "Food", "-1", 1)))
	before := dump(t, st)

	remote := replica([]string{"Visa"}, []string{"Travel"},
		tx("Visa", "Travel", "-7", 7),
		tx("Unknown", "Travel", "-8", 8),
	)
	r := New(st)
	res, err := r.Run(ctx, remote, Replace)
	require.Error(t, err)
	assert.True(t, ledger.IsReference(err))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, StateFailed, r.Status().State)

	assert.Equal(t, before, dump(t, st))
}

type failingStore struct {
	store.Store
}

type failingSession struct {
	store.Session
}

func (f failingStore) Begin(ctx context.Context) (store.Session, error) {
	sess, err := f.Store.Begin(ctx)
	return failingSession{sess}, err
}

func (failingSession) Commit(context.Context) error {
	return &ledger.PersistenceError{Op: "commit", Err: errors.New("disk full")}
}

func TestCommitFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	load(t, st, replica([]string{"Giro"}, []string{"Food"}, tx("Giro", "Food", "-1", 1)))
	before := dump(t, st)

	res, err := New(failingStore{st}).Run(ctx, replica([]string{"Visa"}, nil, tx("Visa", ledger.OtherCategory, "-2", 2)), Merge)
	require.Error(t, err)
	assert.True(t, ledger.IsPersistence(err))
	assert.False(t, res.Success)
	assert.Equal(t, before, dump(t, st))
}

func TestRunRejectsUnknownStrategy(t *testing.T) {
	r := New(memory.New())
	_, err := r.Run(context.Background(), replica(nil, nil), Strategy("theirs"))
	assert.True(t, ledger.IsPolicy(err))
	assert.Equal(t, StateIdle, r.Status().State)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := memory.New()
	res, err := New(st).Run(ctx, replica([]string{"Giro"}, []string{"Food"}), Merge)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Success)
}
