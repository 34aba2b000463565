// Package ledger defines the bookkeeping entity model shared by the import
// pipeline, the snapshot codec and the reconciler.
//
// Entities reference each other by name (groups, accounts, categories) or by
// identifier (transactions) instead of holding pointers, so a ledger can be
// copied, serialized and merged without walking a live object graph.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reserved category names. Every transaction falls back to OtherCategory
// when nothing else resolved.
const (
	OtherCategory  = "Other"
	IncomeCategory = "Income"
)

// TxType tags a transaction as income, expense or one leg of a transfer.
type TxType string

const (
	TypeIncome   TxType = "income"
	TypeExpense  TxType = "expense"
	TypeTransfer TxType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	}
	return false
}

// ParseTxType parses a type tag case-insensitively.
func ParseTxType(s string) (TxType, error) {
	t := TxType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &ValidationError{Field: "type", Value: s, Reason: "unknown transaction type"}
	}
	return t, nil
}

// AccountGroup owns zero or more accounts. Name is unique within a ledger.
type AccountGroup struct {
	Name string
}

// Account belongs to exactly one group and owns transactions as their
// primary leg. Name is unique within a ledger.
type Account struct {
	Name             string
	Group            string
	Type             string
	IncludeInBalance bool
}

// Category is referenced by every transaction. Name is unique within a ledger.
type Category struct {
	Name string
}

// Transaction is a single booked movement on Account. ID is assigned at
// creation and stays stable across replicas; it is the merge key.
type Transaction struct {
	ID            uuid.UUID
	Amount        decimal.Decimal
	Type          TxType
	Date          time.Time
	Usage         string
	Account       string
	TargetAccount string
	Category      string
}

// HasTarget reports whether the transaction references a target account.
func (t Transaction) HasTarget() bool {
	return t.TargetAccount != ""
}

// Day truncates t to a UTC calendar day. All stored transaction dates are
// normalized this way.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MinYear is the earliest year accepted for a transaction date.
const MinYear = 1970

// Validate checks the fields every stored transaction must satisfy.
func (t Transaction) Validate() error {
	switch {
	case t.ID == uuid.Nil:
		return &ValidationError{Field: "id", Reason: "missing identifier"}
	case t.Amount.IsZero():
		return &ValidationError{Field: "amount", Value: t.Amount.String(), Reason: "amount must be nonzero"}
	case !t.Type.Valid():
		return &ValidationError{Field: "type", Value: string(t.Type), Reason: "unknown transaction type"}
	case t.Date.Year() < MinYear:
		return &ValidationError{Field: "date", Value: t.Date.Format("2006-01-02"), Reason: "date before 1970"}
	case t.Account == "":
		return &ValidationError{Field: "account", Reason: "missing account"}
	case t.Category == "":
		return &ValidationError{Field: "category", Reason: "missing category"}
	}
	return nil
}

// NewID returns a fresh transaction identifier.
func NewID() uuid.UUID {
	return uuid.New()
}
