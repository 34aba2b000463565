package importer

import (
	"strings"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
)

// TransferRule decides which categories mark inter-account transfers and
// when the mirrored counter-leg is suppressed.
type TransferRule struct {
	// Categories that flag a row as a transfer, compared case-insensitively.
	Categories []string
	// Cash to Checking transfers appear as separate lines of the same
	// export, so they are booked without a counter-leg.
	CashAccount     string
	CheckingAccount string
}

// DefaultTransferRule matches "Transfer" and "Umbuchung" and suppresses
// Bargeld -> Girokonto.
func DefaultTransferRule() TransferRule {
	return TransferRule{
		Categories:      []string{"Transfer", "Umbuchung"},
		CashAccount:     "Bargeld",
		CheckingAccount: "Girokonto",
	}
}

// IsTransfer reports whether category flags a transfer.
func (r TransferRule) IsTransfer(category string) bool {
	for _, c := range r.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// Suppressed reports whether a transfer from source to target is booked
// without a counter-leg.
func (r TransferRule) Suppressed(source, target string) bool {
	return r.CashAccount != "" && source == r.CashAccount && target == r.CheckingAccount
}

// Expand returns the legs to book for t: t itself and, for a transfer with a
// target that is not suppressed, the mirrored leg on the target account.
func (r TransferRule) Expand(t ledger.Transaction) []ledger.Transaction {
	if t.Type != ledger.TypeTransfer || !t.HasTarget() || r.Suppressed(t.Account, t.TargetAccount) {
		return []ledger.Transaction{t}
	}
	return []ledger.Transaction{t, CounterLeg(t)}
}

// CounterLeg mirrors t onto its target account with a fresh identifier.
func CounterLeg(t ledger.Transaction) ledger.Transaction {
	return ledger.Transaction{
		ID:            ledger.NewID(),
		Amount:        t.Amount.Neg(),
		Type:          ledger.TypeTransfer,
		Date:          t.Date,
		Usage:         t.Usage,
		Account:       t.TargetAccount,
		TargetAccount: t.Account,
		Category:      t.Category,
	}
}
