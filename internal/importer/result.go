package importer

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
)

// Result is the outcome of one import.
type Result struct {
	File     string       `json:"file"`
	Imported []RecordInfo `json:"imported"`
	Skipped  []RecordInfo `json:"skipped"`
	Failed   []FailedRow  `json:"failed"`
	// Collapsed counts rows that repeated a line already imported or
	// reported as skipped earlier in the same file.
	Collapsed int `json:"collapsed"`
}

// RecordInfo describes one statement row that was booked or recognized as
// already booked. Skipped rows have no ID of their own; DuplicateOf names
// the booked transaction.
type RecordInfo struct {
	Line          int             `json:"line"`
	ID            string          `json:"id,omitempty"`
	Date          time.Time       `json:"date"`
	Account       string          `json:"account"`
	Amount        decimal.Decimal `json:"amount"`
	Usage         string          `json:"usage,omitempty"`
	Category      string          `json:"category"`
	Type          ledger.TxType   `json:"type"`
	TargetAccount string          `json:"targetAccount,omitempty"`
	DuplicateOf   string          `json:"duplicateOf,omitempty"`
	CounterLeg    string          `json:"counterLeg,omitempty"`
}

// FailedRow is a row rejected for parse or validation reasons.
type FailedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func recordInfo(line int, t ledger.Transaction) RecordInfo {
	return RecordInfo{
		Line:          line,
		ID:            t.ID.String(),
		Date:          t.Date,
		Account:       t.Account,
		Amount:        t.Amount,
		Usage:         t.Usage,
		Category:      t.Category,
		Type:          t.Type,
		TargetAccount: t.TargetAccount,
	}
}

// Net is the sum of the imported amounts, counter-legs excluded.
func (r *Result) Net() decimal.Decimal {
	sum := decimal.Zero
	for _, info := range r.Imported {
		sum = sum.Add(info.Amount)
	}
	return sum
}

// Summary is a one-line human readable account of the import.
func (r *Result) Summary(currency string) string {
	s := fmt.Sprintf("%s: %d imported, %d already booked", r.File, len(r.Imported), len(r.Skipped))
	if len(r.Failed) > 0 {
		s += fmt.Sprintf(", %d rejected", len(r.Failed))
	}
	if len(r.Imported) > 0 {
		s += ", net " + ledger.FormatMoney(r.Net(), currency)
	}
	return s
}
