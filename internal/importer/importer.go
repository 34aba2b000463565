// Package importer turns a bank statement export into booked transactions.
//
// For every data row the pipeline parses the date and amount, cleans the
// payee and purpose text, classifies the line, expands transfers into two
// legs and drops lines that are already booked. All writes go through one
// store session supplied by the caller, which commits once at the end.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bookkeeper/internal/classify"
	"github.com/JonMunkholm/bookkeeper/internal/csvio"
	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/logging"
	"github.com/JonMunkholm/bookkeeper/internal/normalize"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// ContextCheckInterval is how often (in rows) the pipeline checks for
// cancellation and yields the processor.
var ContextCheckInterval = 100

// Options tune one import.
type Options struct {
	// DefaultGroup receives accounts that the export names but the ledger
	// does not know yet.
	DefaultGroup   string
	UsageMaxLength int
	Duplicates     Detector
	Transfer       TransferRule
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DefaultGroup:   "Accounts",
		UsageMaxLength: normalize.DefaultUsageLength,
		Duplicates:     DefaultDetector(),
		Transfer:       DefaultTransferRule(),
	}
}

// Importer runs the statement pipeline.
type Importer struct {
	opts       Options
	classifier classify.Classifier
}

// New returns an importer that asks cl for categories. A nil cl classifies
// nothing and every row takes the income/expense fallback.
func New(cl classify.Classifier, opts Options) *Importer {
	if cl == nil {
		cl = classify.None
	}
	if opts.UsageMaxLength <= 0 {
		opts.UsageMaxLength = normalize.DefaultUsageLength
	}
	if opts.DefaultGroup == "" {
		opts.DefaultGroup = DefaultOptions().DefaultGroup
	}
	return &Importer{opts: opts, classifier: cl}
}

// run holds the per-import state.
type run struct {
	*Importer
	rw       store.ReadWriter
	log      *slog.Logger
	result   *Result
	inserted map[uuid.UUID]bool
	// reported holds the booked ids already listed in Result.Skipped.
	reported map[uuid.UUID]bool
}

// Run imports the statement read from src into rw. Empty input returns a
// *ledger.ParseError and a header without date, account or amount column a
// *ledger.ValidationError; in both cases nothing is written. Row-level
// problems are reported in the result and do not stop the import.
func (im *Importer) Run(ctx context.Context, rw store.ReadWriter, name string, src io.Reader) (*Result, error) {
	log := logging.WithFields(ctx, "file", name)
	start := time.Now()

	reader := csvio.NewReader(src)
	header, err := reader.Header()
	if err != nil {
		return nil, err
	}
	cols, err := ResolveColumns(header)
	if err != nil {
		return nil, err
	}
	log.Debug("columns resolved", "delimiter", string(reader.Delimiter()), "columns", cols)

	r := &run{
		Importer: im,
		rw:       rw,
		log:      log,
		result:   &Result{File: name},
		inserted: make(map[uuid.UUID]bool),
		reported: make(map[uuid.UUID]bool),
	}
	if err := r.ensureFallbackCategories(ctx); err != nil {
		return nil, err
	}

	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("import cancelled after %d rows: %w", i, err)
			}
			runtime.Gosched()
		}

		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, csvio.ErrUnsplittable) {
			r.fail(row.Line, err)
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := r.row(ctx, cols, row); err != nil {
			return nil, err
		}
	}

	log.Info("statement processed",
		"imported", len(r.result.Imported),
		"skipped", len(r.result.Skipped),
		"failed", len(r.result.Failed),
		"collapsed", r.result.Collapsed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return r.result, nil
}

func (r *run) fail(line int, err error) {
	r.log.Warn("row skipped", "line", line, "reason", err.Error())
	r.result.Failed = append(r.result.Failed, FailedRow{Line: line, Reason: err.Error()})
}

// row books one data row. Only persistence failures are returned; every
// other problem is recorded on the result.
func (r *run) row(ctx context.Context, cols Columns, row csvio.Row) error {
	if len(row.Fields) <= cols.Max() {
		r.fail(row.Line, &ledger.ValidationError{
			Line:   row.Line,
			Reason: fmt.Sprintf("row has %d fields, expected at least %d", len(row.Fields), cols.Max()+1),
		})
		return nil
	}

	tx, err := r.build(ctx, cols, row)
	if err != nil {
		r.fail(row.Line, err)
		return nil
	}

	dup, found, err := r.opts.Duplicates.Find(ctx, r.rw, tx)
	if err != nil {
		return err
	}
	if found {
		if r.inserted[dup.ID] || r.reported[dup.ID] {
			r.result.Collapsed++
			r.log.Debug("repeated line collapsed", "line", row.Line, "id", dup.ID)
			return nil
		}
		r.reported[dup.ID] = true
		info := recordInfo(row.Line, tx)
		info.ID = ""
		info.DuplicateOf = dup.ID.String()
		r.result.Skipped = append(r.result.Skipped, info)
		return nil
	}

	if err := r.ensureAccount(ctx, tx.Account); err != nil {
		return err
	}
	if err := r.ensureCategory(ctx, tx.Category); err != nil {
		return err
	}

	legs := r.opts.Transfer.Expand(tx)
	for _, leg := range legs {
		if err := r.rw.CreateTransaction(ctx, leg); err != nil {
			return fmt.Errorf("line %d: %w", row.Line, err)
		}
		r.inserted[leg.ID] = true
	}

	info := recordInfo(row.Line, tx)
	if len(legs) > 1 {
		info.CounterLeg = legs[1].ID.String()
	}
	r.result.Imported = append(r.result.Imported, info)
	return nil
}

// build parses and classifies a row into an unsaved transaction.
func (r *run) build(ctx context.Context, cols Columns, row csvio.Row) (ledger.Transaction, error) {
	date, err := normalize.ParseDate(cols.Field(row.Fields, RoleDate))
	if err != nil {
		return ledger.Transaction{}, withLine(err, row.Line)
	}
	amount, err := normalize.ParseAmount(cols.Field(row.Fields, RoleAmount))
	if err != nil {
		return ledger.Transaction{}, withLine(err, row.Line)
	}
	if amount.IsZero() {
		return ledger.Transaction{}, &ledger.ValidationError{Line: row.Line, Field: "amount", Value: cols.Field(row.Fields, RoleAmount), Reason: "amount must be nonzero"}
	}
	account := cols.Field(row.Fields, RoleAccount)
	if account == "" {
		return ledger.Transaction{}, &ledger.ValidationError{Line: row.Line, Field: "account", Reason: "empty account"}
	}

	counterparty := normalize.Clean(cols.Field(row.Fields, RoleName))
	usage := normalize.Usage(cols.Field(row.Fields, RoleName), cols.Field(row.Fields, RolePurpose), r.opts.UsageMaxLength)

	tx := ledger.Transaction{
		ID:      ledger.NewID(),
		Amount:  amount,
		Date:    date,
		Usage:   usage,
		Account: account,
	}
	tx.Category, tx.Type = r.categorize(ctx, cols.Field(row.Fields, RoleCategory), usage, amount)

	if r.opts.Transfer.IsTransfer(tx.Category) {
		target, ok, err := r.transferTarget(ctx, account, counterparty)
		if err != nil {
			return ledger.Transaction{}, err
		}
		if ok {
			tx.Type = ledger.TypeTransfer
			tx.TargetAccount = target
		} else {
			r.log.Warn("transfer target not found, booking as plain movement",
				"line", row.Line,
				"account", account,
				"counterparty", counterparty,
			)
		}
	}
	return tx, nil
}

// categorize applies the category column, then the classifier, then the
// sign-based fallback.
func (r *run) categorize(ctx context.Context, column, usage string, amount decimal.Decimal) (string, ledger.TxType) {
	typ := ledger.TypeExpense
	if !amount.IsNegative() {
		typ = ledger.TypeIncome
	}

	if column != "" {
		return column, typ
	}
	if cat, ok := r.classifier.Classify(ctx, usage, amount); ok && cat != "" {
		return cat, typ
	}
	if typ == ledger.TypeIncome {
		return ledger.IncomeCategory, typ
	}
	return ledger.OtherCategory, typ
}

func (r *run) transferTarget(ctx context.Context, source, counterparty string) (string, bool, error) {
	if counterparty == "" || counterparty == source {
		return "", false, nil
	}
	_, ok, err := r.rw.Account(ctx, counterparty)
	if err != nil {
		return "", false, err
	}
	return counterparty, ok, nil
}

func (r *run) ensureFallbackCategories(ctx context.Context) error {
	for _, name := range []string{ledger.OtherCategory, ledger.IncomeCategory} {
		if err := r.ensureCategory(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) ensureCategory(ctx context.Context, name string) error {
	_, ok, err := r.rw.Category(ctx, name)
	if err != nil || ok {
		return err
	}
	if err := r.rw.CreateCategory(ctx, ledger.Category{Name: name}); err != nil {
		return fmt.Errorf("create category %q: %w", name, err)
	}
	r.log.Info("category created", "category", name)
	return nil
}

func (r *run) ensureAccount(ctx context.Context, name string) error {
	_, ok, err := r.rw.Account(ctx, name)
	if err != nil || ok {
		return err
	}

	group := r.opts.DefaultGroup
	_, ok, err = r.rw.Group(ctx, group)
	if err != nil {
		return err
	}
	if !ok {
		if err := r.rw.CreateGroup(ctx, ledger.AccountGroup{Name: group}); err != nil {
			return fmt.Errorf("create group %q: %w", group, err)
		}
	}
	if err := r.rw.CreateAccount(ctx, ledger.Account{Name: name, Group: group, IncludeInBalance: true}); err != nil {
		return fmt.Errorf("create account %q: %w", name, err)
	}
	r.log.Info("account created", "account", name, "group", group)
	return nil
}

func withLine(err error, line int) error {
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		cp := *verr
		cp.Line = line
		return &cp
	}
	return err
}
