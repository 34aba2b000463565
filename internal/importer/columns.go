package importer

import (
	"strings"
	"unicode"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
)

// Role is the meaning of a statement column.
type Role int

const (
	RoleDate Role = iota
	RoleAccount
	RoleAmount
	RoleCategory
	RoleName
	RolePurpose
)

func (r Role) String() string {
	switch r {
	case RoleDate:
		return "date"
	case RoleAccount:
		return "account"
	case RoleAmount:
		return "amount"
	case RoleCategory:
		return "category"
	case RoleName:
		return "name"
	case RolePurpose:
		return "purpose"
	}
	return "unknown"
}

// synonyms lists accepted header labels per role, most specific first.
// Labels are compared by HeaderKey.
var synonyms = map[Role][]string{
	RoleDate:     {"Date", "PostingDate", "Buchungstag", "Buchungsdatum", "Datum", "ValueDate", "Valutadatum", "Wertstellung"},
	RoleAccount:  {"Account", "AccountName", "Konto", "Kontoname"},
	RoleAmount:   {"Amount", "AmountEUR", "Betrag", "BetragEUR", "Betrag (EUR)"},
	RoleCategory: {"MainCategory", "Hauptkategorie", "Category", "Kategorie"},
	RoleName:     {"Name", "Payee", "Empfänger", "Empfaenger", "Auftraggeber", "Auftraggeber/Empfänger"},
	RolePurpose:  {"Purpose", "PaymentPurpose", "Verwendungszweck", "Zweck", "Reference", "Referenz"},
}

var requiredRoles = []Role{RoleDate, RoleAccount, RoleAmount}

// HeaderKey folds a header label for comparison: lower case, letters and
// digits only. "Amount (EUR)" and "amount_eur" both become "amounteur".
func HeaderKey(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Columns holds the field position for each role, -1 when absent.
type Columns struct {
	Date     int
	Account  int
	Amount   int
	Category int
	Name     int
	Purpose  int
}

// Index returns the position of role.
func (c Columns) Index(role Role) int {
	switch role {
	case RoleDate:
		return c.Date
	case RoleAccount:
		return c.Account
	case RoleAmount:
		return c.Amount
	case RoleCategory:
		return c.Category
	case RoleName:
		return c.Name
	case RolePurpose:
		return c.Purpose
	}
	return -1
}

func (c *Columns) set(role Role, idx int) {
	switch role {
	case RoleDate:
		c.Date = idx
	case RoleAccount:
		c.Account = idx
	case RoleAmount:
		c.Amount = idx
	case RoleCategory:
		c.Category = idx
	case RoleName:
		c.Name = idx
	case RolePurpose:
		c.Purpose = idx
	}
}

// Max returns the highest resolved position. A row needs more fields than
// that to be usable.
func (c Columns) Max() int {
	return max(c.Date, c.Account, c.Amount, c.Category, c.Name, c.Purpose)
}

// Field returns the value of role in fields, or "" when the role is absent.
func (c Columns) Field(fields []string, role Role) string {
	i := c.Index(role)
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// ResolveColumns maps header labels to roles. Missing date, account or
// amount columns yield a *ledger.ValidationError.
func ResolveColumns(header []string) (Columns, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := HeaderKey(h)
		if _, dup := pos[key]; !dup && key != "" {
			pos[key] = i
		}
	}

	cols := Columns{Date: -1, Account: -1, Amount: -1, Category: -1, Name: -1, Purpose: -1}
	for role, labels := range synonyms {
		for _, label := range labels {
			if i, ok := pos[HeaderKey(label)]; ok {
				cols.set(role, i)
				break
			}
		}
	}

	var missing []string
	for _, role := range requiredRoles {
		if cols.Index(role) < 0 {
			missing = append(missing, role.String())
		}
	}
	if len(missing) > 0 {
		return cols, &ledger.ValidationError{
			Field:  strings.Join(missing, ", "),
			Value:  strings.Join(header, ", "),
			Reason: "missing required column",
		}
	}
	return cols, nil
}
