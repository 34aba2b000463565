package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bookkeeper/internal/backup"
	"github.com/JonMunkholm/bookkeeper/internal/classify"
	"github.com/JonMunkholm/bookkeeper/internal/importer"
	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/logging"
	"github.com/JonMunkholm/bookkeeper/internal/reconcile"
	"github.com/JonMunkholm/bookkeeper/internal/snapshot"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// ErrBackupsDisabled is returned by RestoreLatest when no backup manager is
// configured.
var ErrBackupsDisabled = errors.New("backups are not configured")

// Options configure a Service. Zero values fall back to the defaults noted
// on each field.
type Options struct {
	Import importer.Options

	// Rules are consulted before the learned classifier.
	Rules classify.Rules
	// Learn trains a Bayesian classifier on the booked transactions before
	// every import.
	Learn          bool
	MinProbability float64

	// MaxFileBytes rejects larger statements (default: no limit).
	MaxFileBytes int64
	// MaxWait bounds how long a mutation waits for the ledger (default 30s).
	MaxWait time.Duration
	// ImportTimeout bounds one import (default: none).
	ImportTimeout time.Duration
	// BackupTimeout bounds one background backup (default 2m).
	BackupTimeout time.Duration
	// Currency is used for display (default EUR).
	Currency string
}

// BackupStatus describes the most recent background backup.
type BackupStatus struct {
	Name  string    `json:"name,omitempty"`
	At    time.Time `json:"at,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Status is a point-in-time view of the service.
type Status struct {
	Mutations  LimiterStatus    `json:"mutations"`
	Reconciler reconcile.Status `json:"reconciler"`
	LastBackup *BackupStatus    `json:"lastBackup,omitempty"`
}

// Service runs imports, restores and reconciliations against one store.
type Service struct {
	store      store.Store
	opts       Options
	limiter    *MutationLimiter
	reconciler *reconcile.Reconciler
	backups    *backup.Manager // nil disables backups

	wg         sync.WaitGroup
	mu         sync.RWMutex
	lastBackup *BackupStatus
}

// NewService wires a service. backups may be nil.
func NewService(st store.Store, backups *backup.Manager, opts Options) *Service {
	if opts.BackupTimeout <= 0 {
		opts.BackupTimeout = 2 * time.Minute
	}
	if opts.Currency == "" {
		opts.Currency = ledger.DefaultCurrency
	}
	return &Service{
		store:      st,
		opts:       opts,
		limiter:    NewMutationLimiter(1, opts.MaxWait),
		reconciler: reconcile.New(st),
		backups:    backups,
	}
}

// Currency returns the display currency.
func (s *Service) Currency() string {
	return s.opts.Currency
}

// Import books the statement read from r. The whole file is committed once;
// on error nothing is saved.
func (s *Service) Import(ctx context.Context, fileName string, r io.Reader) (*importer.Result, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.opts.ImportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ImportTimeout)
		defer cancel()
	}
	ctx = logging.ContextWith(ctx, "import_id", uuid.NewString())
	log := logging.WithFields(ctx, clientAttrs(ctx)...)
	start := time.Now()

	sess, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer sess.Rollback(context.WithoutCancel(ctx))

	cl, err := s.classifier(ctx, sess)
	if err != nil {
		return nil, err
	}
	src := NewSizeLimitedReader(r, s.opts.MaxFileBytes)
	res, err := importer.New(cl, s.opts.Import).Run(ctx, sess, fileName, src)
	if src.Err() != nil {
		err = src.Err()
	}
	if err != nil {
		log.Warn("import aborted", "file", fileName, "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("import cancelled before commit: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info("import committed",
		"file", fileName,
		"imported", len(res.Imported),
		"skipped", len(res.Skipped),
		"failed", len(res.Failed),
		"bytes", src.BytesRead(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if len(res.Imported) > 0 {
		s.backupAsync(ctx, "import")
	}
	return res, nil
}

// classifier assembles the configured rules and, when enabled, a Bayesian
// classifier learned from what sess can see.
func (s *Service) classifier(ctx context.Context, sess store.Reader) (classify.Classifier, error) {
	chain := classify.Chain{}
	if len(s.opts.Rules) > 0 {
		chain = append(chain, s.opts.Rules)
	}
	if s.opts.Learn {
		b, err := classify.Learn(ctx, sess, s.opts.MinProbability)
		if err != nil {
			return nil, fmt.Errorf("learn classifier: %w", err)
		}
		chain = append(chain, b)
	}
	return chain, nil
}

// Export returns a snapshot of the committed ledger.
func (s *Service) Export(ctx context.Context) (*snapshot.Document, error) {
	sess, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin export: %w", err)
	}
	defer sess.Rollback(context.WithoutCancel(ctx))

	return snapshot.Build(ctx, sess)
}

// Restore replaces the ledger with doc. Entries with unresolved references
// are skipped and reported in the stats.
func (s *Service) Restore(ctx context.Context, doc *snapshot.Document) (snapshot.Stats, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return snapshot.Stats{}, err
	}
	defer s.limiter.Release()

	log := logging.WithFields(ctx, clientAttrs(ctx)...)
	start := time.Now()

	sess, err := s.store.Begin(ctx)
	if err != nil {
		return snapshot.Stats{}, fmt.Errorf("begin restore: %w", err)
	}
	defer sess.Rollback(context.WithoutCancel(ctx))

	stats, err := snapshot.Restore(ctx, sess, doc, snapshot.Lenient)
	if err != nil {
		return stats, err
	}
	if err := sess.Commit(ctx); err != nil {
		return stats, err
	}

	log.Info("ledger restored",
		"created", stats.Created(),
		"skipped", len(stats.Skipped),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// RestoreLatest restores the newest backup and returns its name.
func (s *Service) RestoreLatest(ctx context.Context) (string, snapshot.Stats, error) {
	if s.backups == nil {
		return "", snapshot.Stats{}, ErrBackupsDisabled
	}
	doc, name, err := s.backups.Latest(ctx)
	if err != nil {
		return "", snapshot.Stats{}, err
	}
	stats, err := s.Restore(ctx, doc)
	return name, stats, err
}

// Reconcile merges doc into the ledger with strategy.
func (s *Service) Reconcile(ctx context.Context, doc *snapshot.Document, strategy reconcile.Strategy) (reconcile.Result, error) {
	if _, err := reconcile.ParseStrategy(string(strategy)); err != nil {
		return reconcile.Result{Strategy: strategy, Error: err.Error()}, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return reconcile.Result{Strategy: strategy, Error: err.Error()}, err
	}
	defer s.limiter.Release()

	if ip, _ := ClientFromContext(ctx); ip != "" {
		ctx = logging.ContextWith(ctx, "client_ip", ip)
	}
	res, err := s.reconciler.Run(ctx, doc, strategy)
	if err != nil {
		return res, err
	}
	s.backupAsync(ctx, "reconcile")
	return res, nil
}

// Balance sums the amounts booked on account as of the last commit.
func (s *Service) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	sess, err := s.store.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin balance: %w", err)
	}
	defer sess.Rollback(context.WithoutCancel(ctx))

	_, ok, err := sess.Account(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, &ledger.ReferenceError{Entity: "balance", Name: account, Missing: "account", Ref: account}
	}

	txs, err := sess.Transactions(ctx, store.TxFilter{Account: account})
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, t := range txs {
		sum = sum.Add(t.Amount)
	}
	return sum, nil
}

// Status reports the limiter, reconciler and backup state.
func (s *Service) Status() Status {
	s.mu.RLock()
	last := s.lastBackup
	s.mu.RUnlock()

	return Status{
		Mutations:  s.limiter.Status(),
		Reconciler: s.reconciler.Status(),
		LastBackup: last,
	}
}

// WaitForDrain blocks until no mutation is running.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// backupAsync writes a backup in the background. It outlives ctx's
// cancellation but not BackupTimeout.
func (s *Service) backupAsync(ctx context.Context, reason string) {
	if s.backups == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.BackupTimeout)
		defer cancel()
		s.Backup(bctx, reason)
	}()
}

// Backup writes a snapshot of the committed ledger to the backup sink and
// records the outcome in Status.
func (s *Service) Backup(ctx context.Context, reason string) (string, error) {
	if s.backups == nil {
		return "", ErrBackupsDisabled
	}
	log := logging.FromContext(ctx)
	start := time.Now()

	doc, err := s.Export(ctx)
	var name string
	if err == nil {
		name, err = s.backups.Save(ctx, doc)
	}

	st := &BackupStatus{Name: name, At: time.Now()}
	if err != nil {
		st.Error = err.Error()
		log.Error("backup failed", "reason", reason, "error", err)
	} else {
		log.Info("backup written",
			"reason", reason,
			"name", name,
			"transactions", len(doc.Transactions),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	s.mu.Lock()
	s.lastBackup = st
	s.mu.Unlock()
	return name, err
}

// WaitForBackups blocks until every background backup started so far has
// finished, or ctx is done.
func (s *Service) WaitForBackups(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
