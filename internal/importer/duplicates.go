package importer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// Detector recognizes a statement line that was already booked: same owning
// account, date within Window, amount within Tolerance and identical usage.
type Detector struct {
	Window    time.Duration
	Tolerance decimal.Decimal
}

// DefaultDetector uses a one-day window and a one-cent tolerance.
func DefaultDetector() Detector {
	return Detector{
		Window:    24 * time.Hour,
		Tolerance: decimal.New(1, -2),
	}
}

// Matches reports whether candidate duplicates existing.
func (d Detector) Matches(candidate, existing ledger.Transaction) bool {
	if candidate.Account != existing.Account || candidate.Usage != existing.Usage {
		return false
	}
	diff := candidate.Date.Sub(existing.Date)
	if diff < 0 {
		diff = -diff
	}
	if diff > d.Window {
		return false
	}
	return candidate.Amount.Sub(existing.Amount).Abs().LessThanOrEqual(d.Tolerance)
}

// Find returns the first transaction visible to r that candidate duplicates.
func (d Detector) Find(ctx context.Context, r store.Reader, candidate ledger.Transaction) (ledger.Transaction, bool, error) {
	day := ledger.Day(candidate.Date)
	existing, err := r.Transactions(ctx, store.TxFilter{
		Account: candidate.Account,
		From:    day.Add(-d.Window),
		To:      day.Add(d.Window),
	})
	if err != nil {
		return ledger.Transaction{}, false, err
	}
	for _, t := range existing {
		if d.Matches(candidate, t) {
			return t, true, nil
		}
	}
	return ledger.Transaction{}, false, nil
}
