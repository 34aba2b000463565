package importer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
)

func TestResolveColumns(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   Columns
	}{
		{
			name:   "english",
			header: []string{"PostingDate", "Account Name", "Amount (EUR)", "Main Category", "Name", "Payment Purpose"},
			want:   Columns{Date: 0, Account: 1, Amount: 2, Category: 3, Name: 4, Purpose: 5},
		},
		{
			name:   "german without optional columns",
			header: []string{"Betrag", "Datum", "Konto"},
			want:   Columns{Date: 1, Account: 2, Amount: 0, Category: -1, Name: -1, Purpose: -1},
		},
		{
			name:   "specific label wins over generic",
			header: []string{"Datum", "Buchungstag", "Konto", "Betrag"},
			want:   Columns{Date: 1, Account: 2, Amount: 3, Category: -1, Name: -1, Purpose: -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveColumns(tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveColumnsMissing(t *testing.T) {
	_, err := ResolveColumns([]string{"Datum", "Zweck"})
	require.Error(t, err)
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "account, amount", verr.Field)
}

func TestColumnsField(t *testing.T) {
	cols := Columns{Date: 0, Account: 1, Amount: 2, Category: -1, Name: -1, Purpose: 5}
	fields := []string{"01.01.24", "Giro", "1,00"}
	assert.Equal(t, "Giro", cols.Field(fields, RoleAccount))
	assert.Equal(t, "", cols.Field(fields, RoleCategory))
	assert.Equal(t, "", cols.Field(fields, RolePurpose))
	assert.Equal(t, 5, cols.Max())
}

func TestDetectorMatches(t *testing.T) {
	base := ledger.Transaction{
		Account: "Giro",
		Usage:   "ACME Invoice",
		Amount:  decimal.RequireFromString("-10.00"),
		Date:    time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	d := DefaultDetector()

	tests := []struct {
		name   string
		modify func(*ledger.Transaction)
		want   bool
	}{
		{"identical", func(*ledger.Transaction) {}, true},
		{"one day later", func(tx *ledger.Transaction) { tx.Date = tx.Date.AddDate(0, 0, 1) }, true},
		{"two days later", func(tx *ledger.Transaction) { tx.Date = tx.Date.AddDate(0, 0, 2) }, false},
		{"within a cent", func(tx *ledger.Transaction) { tx.Amount = decimal.RequireFromString("-10.01") }, true},
		{"two cents off", func(tx *ledger.Transaction) { tx.Amount = decimal.RequireFromString("-10.02") }, false},
		{"other account", func(tx *ledger.Transaction) { tx.Account = "Visa" }, false},
		{"other usage", func(tx *ledger.Transaction) { tx.Usage = "ACME Invoice 2" }, false},
		{"both usages empty", func(tx *ledger.Transaction) { tx.Usage = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := base
			candidate := base
			if tt.name == "both usages empty" {
				existing.Usage = ""
			}
			tt.modify(&candidate)
			assert.Equal(t, tt.want, d.Matches(candidate, existing))
		})
	}
}

func TestTransferRule(t *testing.T) {
	r := DefaultTransferRule()
	assert.True(t, r.IsTransfer("umbuchung"))
	assert.False(t, r.IsTransfer("Groceries"))

	tx := ledger.Transaction{
		ID:            ledger.NewID(),
		Amount:        decimal.RequireFromString("-50"),
		Type:          ledger.TypeTransfer,
		Account:       "Girokonto",
		TargetAccount: "Bargeld",
		Category:      "Transfer",
		Usage:         "ATM",
	}
	legs := r.Expand(tx)
	require.Len(t, legs, 2)
	counter := legs[1]
	assert.NotEqual(t, tx.ID, counter.ID)
	assert.Equal(t, "Bargeld", counter.Account)
	assert.Equal(t, "Girokonto", counter.TargetAccount)
	assert.True(t, decimal.NewFromInt(50).Equal(counter.Amount))

	tx.Account, tx.TargetAccount = "Bargeld", "Girokonto"
	assert.Len(t, r.Expand(tx), 1)

	tx.Type = ledger.TypeExpense
	tx.Account, tx.TargetAccount = "Girokonto", "Sparkonto"
	assert.Len(t, r.Expand(tx), 1)
}
