package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bookkeeper/internal/classify"
	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/store"
	"github.com/JonMunkholm/bookkeeper/internal/store/memory"
)

func runImport(t *testing.T, st store.Store, im *Importer, content string) *Result {
	t.Helper()
	ctx := context.Background()
	sess, err := st.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)

	res, err := im.Run(ctx, sess, "statement.csv", strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))
	return res
}

func allTransactions(t *testing.T, st store.Store) []ledger.Transaction {
	t.Helper()
	ctx := context.Background()
	sess, err := st.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	txs, err := sess.Transactions(ctx, store.TxFilter{})
	require.NoError(t, err)
	return txs
}

func lines(res *Result) []int {
	var out []int
	for _, info := range res.Imported {
		out = append(out, info.Line)
	}
	return out
}

func TestImportIsIdempotent(t *testing.T) {
	const file = "Datum;Konto;Betrag;Name;Zweck\n" +
		"01.01.24;Giro;100,00;ACME;Invoice\n" +
		"01.01.24;Giro;100,00;ACME;Invoice\n"

	st := memory.New()
	im := New(nil, DefaultOptions())

	first := runImport(t, st, im, file)
	assert.Equal(t, []int{2}, lines(first))
	assert.Empty(t, first.Skipped)
	assert.Empty(t, first.Failed)
	assert.Equal(t, 1, first.Collapsed)

	second := runImport(t, st, im, file)
	assert.Empty(t, second.Imported)
	require.Len(t, second.Skipped, 1)
	assert.Equal(t, 2, second.Skipped[0].Line)
	assert.Equal(t, first.Imported[0].ID, second.Skipped[0].DuplicateOf)
	assert.Empty(t, second.Skipped[0].ID)
	assert.Equal(t, 1, second.Collapsed)

	txs := allTransactions(t, st)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, "Giro", tx.Account)
	assert.True(t, decimal.NewFromInt(100).Equal(tx.Amount))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), tx.Date)
	assert.Equal(t, "ACME Invoice", tx.Usage)
	assert.Equal(t, ledger.IncomeCategory, tx.Category)
	assert.Equal(t, ledger.TypeIncome, tx.Type)
}

func TestReimportReportsEachBookedRecordOnce(t *testing.T) {
	const file = "Datum;Konto;Betrag;Name;Zweck\n" +
		"01.01.24;Giro;100,00;ACME;Invoice\n" +
		"02.01.24;Giro;-20,00;REWE;Einkauf\n" +
		"01.01.24;Giro;100,00;ACME;Invoice\n" +
		"01.01.24;Giro;100,00;ACME;Invoice\n"

	st := memory.New()
	im := New(nil, DefaultOptions())

	first := runImport(t, st, im, file)
	assert.Equal(t, []int{2, 3}, lines(first))
	assert.Equal(t, 2, first.Collapsed)

	second := runImport(t, st, im, file)
	assert.Empty(t, second.Imported)
	var skipped []int
	for _, s := range second.Skipped {
		skipped = append(skipped, s.Line)
	}
	assert.Equal(t, []int{2, 3}, skipped)
	assert.Equal(t, 2, second.Collapsed)
	assert.Len(t, allTransactions(t, st), 2)
}

func TestImportCreatesReferencedEntities(t *testing.T) {
	st := memory.New()
	runImport(t, st, New(nil, DefaultOptions()),
		"Date,Account,Amount,Category\n2024-02-01,Visa,-12.30,Dining\n")

	ctx := context.Background()
	sess, err := st.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)

	acc, ok, err := sess.Account(ctx, "Visa")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Accounts", acc.Group)

	for _, name := range []string{"Dining", ledger.OtherCategory, ledger.IncomeCategory} {
		_, ok, err := sess.Category(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestClassificationFallback(t *testing.T) {
	tests := []struct {
		amount   string
		category string
		typ      ledger.TxType
	}{
		{"50,00", ledger.IncomeCategory, ledger.TypeIncome},
		{"-12,30", ledger.OtherCategory, ledger.TypeExpense},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			res := runImport(t, memory.New(), New(nil, DefaultOptions()),
				"Datum;Konto;Betrag;Zweck\n03.03.24;Giro;"+tt.amount+";qwzx unknown\n")
			require.Len(t, res.Imported, 1)
			assert.Equal(t, tt.category, res.Imported[0].Category)
			assert.Equal(t, tt.typ, res.Imported[0].Type)
		})
	}
}

func TestClassifierAndCategoryColumn(t *testing.T) {
	cl := classify.Rules{{Category: "Groceries", Keywords: []string{"rewe"}}}
	res := runImport(t, memory.New(), New(cl, DefaultOptions()),
		"Datum;Konto;Betrag;Kategorie;Name\n"+
			"04.03.24;Giro;-20,00;;REWE Markt\n"+
			"05.03.24;Giro;-30,00;Household;REWE Markt\n")

	require.Len(t, res.Imported, 2)
	assert.Equal(t, "Groceries", res.Imported[0].Category)
	assert.Equal(t, "Household", res.Imported[1].Category)
}

func TestRowFailuresAreNotFatal(t *testing.T) {
	res := runImport(t, memory.New(), New(nil, DefaultOptions()),
		"Datum;Konto;Betrag;Zweck\n"+
			"01.01.24;Giro;10,00;ok\n"+
			"31.12.1969;Giro;10,00;too old\n"+
			"xx;Giro;10,00;bad date\n"+
			"02.01.24;Giro;abc;bad amount\n"+
			"03.01.24;Giro;0,00;zero\n"+
			"04.01.24;Giro\n"+
			"05.01.24;;1,00;no account\n"+
			"06.01.24;Giro;-5,00;ok too\n")

	assert.Equal(t, []int{2, 9}, lines(res))
	var failed []int
	for _, f := range res.Failed {
		failed = append(failed, f.Line)
		assert.NotEmpty(t, f.Reason)
	}
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8}, failed)
}

func TestFatalInput(t *testing.T) {
	im := New(nil, DefaultOptions())
	ctx := context.Background()
	st := memory.New()
	sess, err := st.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)

	_, err = im.Run(ctx, sess, "empty.csv", strings.NewReader("\n  \n"))
	assert.True(t, ledger.IsParse(err), "got %v", err)

	_, err = im.Run(ctx, sess, "cols.csv", strings.NewReader("Datum;Betrag\n01.01.24;1,00\n"))
	assert.True(t, ledger.IsValidation(err), "got %v", err)

	cats, err := sess.Categories(ctx)
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func seedAccounts(t *testing.T, st store.Store, names ...string) {
	t.Helper()
	ctx := context.Background()
	sess, err := st.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	require.NoError(t, sess.CreateGroup(ctx, ledger.AccountGroup{Name: "Banks"}))
	for _, n := range names {
		require.NoError(t, sess.CreateAccount(ctx, ledger.Account{Name: n, Group: "Banks", IncludeInBalance: true}))
	}
	require.NoError(t, sess.Commit(ctx))
}

func TestTransferExpansion(t *testing.T) {
	tests := []struct {
		name    string
		row     string
		wantTxs int
	}{
		{"cash to checking is suppressed", "02.01.24;Bargeld;-50,00;Umbuchung;Girokonto;Einzahlung", 1},
		{"checking to savings is mirrored", "02.01.24;Girokonto;-200,00;Transfer;Sparkonto;Sparen", 2},
		{"unknown target books plain expense", "02.01.24;Girokonto;-15,00;Transfer;Nobody;Sparen", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			seedAccounts(t, st, "Bargeld", "Girokonto", "Sparkonto")

			res := runImport(t, st, New(nil, DefaultOptions()),
				"Datum;Konto;Betrag;Kategorie;Name;Zweck\n"+tt.row+"\n")
			require.Len(t, res.Imported, 1)

			txs := allTransactions(t, st)
			require.Len(t, txs, tt.wantTxs)
			if tt.wantTxs == 2 {
				info := res.Imported[0]
				assert.Equal(t, ledger.TypeTransfer, info.Type)
				assert.NotEmpty(t, info.CounterLeg)

				byAccount := map[string]ledger.Transaction{}
				for _, tx := range txs {
					byAccount[tx.Account] = tx
				}
				src, dst := byAccount["Girokonto"], byAccount["Sparkonto"]
				assert.True(t, src.Amount.Neg().Equal(dst.Amount))
				assert.Equal(t, "Sparkonto", src.TargetAccount)
				assert.Equal(t, "Girokonto", dst.TargetAccount)
				assert.Equal(t, src.Category, dst.Category)
				assert.Equal(t, src.Usage, dst.Usage)
				assert.Equal(t, info.CounterLeg, dst.ID.String())
			}
		})
	}
}

func TestImportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess, err := memory.New().Begin(context.Background())
	require.NoError(t, err)
	defer sess.Rollback(context.Background())

	_, err = New(nil, DefaultOptions()).Run(ctx, sess, "x.csv",
		strings.NewReader("Datum;Konto;Betrag\n01.01.24;Giro;1,00\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummary(t *testing.T) {
	res := &Result{
		File: "s.csv",
		Imported: []RecordInfo{
			{Amount: decimal.RequireFromString("100")},
			{Amount: decimal.RequireFromString("-12.3")},
		},
		Skipped: []RecordInfo{{}},
		Failed:  []FailedRow{{Line: 3, Reason: "bad"}},
	}
	s := res.Summary("USD")
	assert.Contains(t, s, "2 imported, 1 already booked, 1 rejected")
	assert.Contains(t, s, "$87.70")
}
