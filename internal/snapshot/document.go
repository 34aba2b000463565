// Package snapshot encodes a whole ledger as one self-contained JSON document
// and rebuilds a ledger from such a document.
//
// Groups, accounts and categories are referenced by name; transactions by
// their identifier. Dates are stored as seconds since the Unix epoch.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Document is the portable form of a ledger.
type Document struct {
	AccountGroups []GroupEntry       `json:"accountGroups"`
	Accounts      []AccountEntry     `json:"accounts"`
	Categories    []CategoryEntry    `json:"categories"`
	Transactions  []TransactionEntry `json:"transactions"`
}

type GroupEntry struct {
	Name     string   `json:"name"`
	Accounts []string `json:"accounts"`
}

type AccountEntry struct {
	Name             string   `json:"name"`
	Group            string   `json:"group"`
	Type             string   `json:"type,omitempty"`
	IncludeInBalance bool     `json:"includeInBalance"`
	Transactions     []string `json:"transactions"`
}

type CategoryEntry struct {
	Name string `json:"name"`
}

// TransactionEntry is one transaction. Category may be empty in documents
// written by older clients; it then resolves to ledger.OtherCategory.
type TransactionEntry struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Date          int64           `json:"date"`
	Category      string          `json:"category,omitempty"`
	Account       string          `json:"account"`
	TargetAccount string          `json:"targetAccount,omitempty"`
	Usage         string          `json:"usage,omitempty"`
}

// Len returns the number of entities of every kind in the document.
func (d *Document) Len() int {
	return len(d.AccountGroups) + len(d.Accounts) + len(d.Categories) + len(d.Transactions)
}

// Entry converts a transaction into its document form.
func Entry(t ledger.Transaction) TransactionEntry {
	return TransactionEntry{
		ID:            t.ID.String(),
		Type:          string(t.Type),
		Amount:        t.Amount,
		Date:          ledger.Day(t.Date).Unix(),
		Category:      t.Category,
		Account:       t.Account,
		TargetAccount: t.TargetAccount,
		Usage:         t.Usage,
	}
}

// Transaction converts the entry back into a ledger transaction. References
// are copied as names and are not resolved here.
func (e TransactionEntry) Transaction() (ledger.Transaction, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return ledger.Transaction{}, &ledger.ValidationError{Field: "id", Value: e.ID, Reason: "invalid identifier"}
	}
	typ, err := ledger.ParseTxType(e.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}
	category := e.Category
	if category == "" {
		category = ledger.OtherCategory
	}
	t := ledger.Transaction{
		ID:            id,
		Amount:        e.Amount,
		Type:          typ,
		Date:          ledger.Day(time.Unix(e.Date, 0).UTC()),
		Usage:         e.Usage,
		Account:       e.Account,
		TargetAccount: e.TargetAccount,
		Category:      category,
	}
	if err := t.Validate(); err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

// FromEntities builds a document from entity slices. The output is sorted
// so equal ledgers encode to identical bytes.
func FromEntities(groups []ledger.AccountGroup, accounts []ledger.Account, categories []ledger.Category, txs []ledger.Transaction) *Document {
	doc := &Document{
		AccountGroups: make([]GroupEntry, 0, len(groups)),
		Accounts:      make([]AccountEntry, 0, len(accounts)),
		Categories:    make([]CategoryEntry, 0, len(categories)),
		Transactions:  make([]TransactionEntry, 0, len(txs)),
	}

	byAccount := make(map[string][]string, len(accounts))
	for _, t := range txs {
		e := Entry(t)
		doc.Transactions = append(doc.Transactions, e)
		byAccount[t.Account] = append(byAccount[t.Account], e.ID)
	}
	byGroup := make(map[string][]string, len(groups))
	for _, a := range accounts {
		ids := byAccount[a.Name]
		slices.Sort(ids)
		doc.Accounts = append(doc.Accounts, AccountEntry{
			Name:             a.Name,
			Group:            a.Group,
			Type:             a.Type,
			IncludeInBalance: a.IncludeInBalance,
			Transactions:     nonNil(ids),
		})
		byGroup[a.Group] = append(byGroup[a.Group], a.Name)
	}
	for _, g := range groups {
		names := byGroup[g.Name]
		slices.Sort(names)
		doc.AccountGroups = append(doc.AccountGroups, GroupEntry{Name: g.Name, Accounts: nonNil(names)})
	}
	for _, c := range categories {
		doc.Categories = append(doc.Categories, CategoryEntry{Name: c.Name})
	}

	doc.sort()
	return doc
}

func (d *Document) sort() {
	slices.SortFunc(d.AccountGroups, func(a, b GroupEntry) int { return strings.Compare(a.Name, b.Name) })
	slices.SortFunc(d.Accounts, func(a, b AccountEntry) int { return strings.Compare(a.Name, b.Name) })
	slices.SortFunc(d.Categories, func(a, b CategoryEntry) int { return strings.Compare(a.Name, b.Name) })
	slices.SortFunc(d.Transactions, func(a, b TransactionEntry) int {
		if a.Date != b.Date {
			if a.Date < b.Date {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Build reads every entity visible to r into a document.
func Build(ctx context.Context, r store.Reader) (*Document, error) {
	groups, err := r.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("read groups: %w", err)
	}
	accounts, err := r.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	categories, err := r.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	txs, err := r.Transactions(ctx, store.TxFilter{})
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	return FromEntities(groups, accounts, categories, txs), nil
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Decode reads one document from r. Malformed input yields a *ledger.ParseError.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, &ledger.ParseError{Reason: "empty snapshot document"}
		}
		return nil, &ledger.ParseError{Reason: "malformed snapshot document", Err: err}
	}
	return &doc, nil
}
