// Package reconcile merges a remote ledger snapshot into the local store.
//
// Every strategy runs as one unit of work on a single store session: the
// session is committed once when the strategy succeeded and rolled back
// otherwise, so a failed reconciliation leaves the previously committed
// ledger in place.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/logging"
	"github.com/JonMunkholm/bookkeeper/internal/snapshot"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// Strategy selects how a remote snapshot is combined with the local ledger.
type Strategy string

const (
	// Replace discards the local ledger and rebuilds it from the snapshot.
	Replace Strategy = "replace"
	// Merge adds remote entities whose name or identifier is absent locally.
	Merge Strategy = "merge"
	// PreserveLocal adds only data that cannot conflict. It currently
	// performs the same additive union as Merge.
	PreserveLocal Strategy = "preserve-local"
	// AskUser flags the result for manual resolution and then replaces.
	AskUser Strategy = "ask-user"
)

// Strategies lists the supported strategies.
var Strategies = []Strategy{Replace, Merge, PreserveLocal, AskUser}

// ParseStrategy accepts a strategy name regardless of case and separators,
// so "PreserveLocal", "preserve_local" and "preserve-local" are equal.
func ParseStrategy(s string) (Strategy, error) {
	key := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
	switch key {
	case "replace", "lastwritewins":
		return Replace, nil
	case "merge":
		return Merge, nil
	case "preservelocal":
		return PreserveLocal, nil
	case "askuser":
		return AskUser, nil
	}
	return "", &ledger.PolicyError{Strategy: s, Reason: "unsupported strategy"}
}

// State is the reconciler's position in Idle -> Reconciling -> {Committed, Failed}.
type State string

const (
	StateIdle        State = "idle"
	StateReconciling State = "reconciling"
	StateCommitted   State = "committed"
	StateFailed      State = "failed"
)

// Result is what a reconciliation reports to its caller.
type Result struct {
	Success  bool     `json:"success"`
	Strategy Strategy `json:"strategy"`
	// PendingDecision is set by AskUser: the snapshot was applied with
	// Replace and the conflicts still need a manual decision.
	PendingDecision bool           `json:"pendingDecision"`
	Stats           snapshot.Stats `json:"stats"`
	Error           string         `json:"error,omitempty"`
}

// Status is a point-in-time view of the reconciler.
type Status struct {
	State    State     `json:"state"`
	Strategy Strategy  `json:"strategy,omitempty"`
	Since    time.Time `json:"since"`
	Error    string    `json:"error,omitempty"`
}

// Reconciler runs reconciliations against one store. Runs are serialized.
type Reconciler struct {
	store store.Store

	run sync.Mutex // held for the duration of Run

	mu     sync.RWMutex
	status Status
}

// New returns an idle reconciler for st.
func New(st store.Store) *Reconciler {
	return &Reconciler{
		store:  st,
		status: Status{State: StateIdle, Since: time.Now()},
	}
}

// Status returns the current state.
func (r *Reconciler) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Reconciler) transition(ctx context.Context, st State, strategy Strategy, err error) {
	s := Status{State: st, Strategy: strategy, Since: time.Now()}
	if err != nil {
		s.Error = err.Error()
	}
	r.mu.Lock()
	prev := r.status.State
	r.status = s
	r.mu.Unlock()

	logging.FromContext(ctx).Debug("reconciler state changed",
		"from", prev,
		"to", st,
		"strategy", strategy,
	)
}

// Run applies doc to the local ledger with strategy. On failure the returned
// error is non-nil, Result.Success is false and nothing was committed.
func (r *Reconciler) Run(ctx context.Context, doc *snapshot.Document, strategy Strategy) (Result, error) {
	res := Result{Strategy: strategy}
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	res.Strategy = strategy
	if doc == nil {
		err := &ledger.PolicyError{Strategy: string(strategy), Reason: "no snapshot to reconcile"}
		res.Error = err.Error()
		return res, err
	}

	r.run.Lock()
	defer r.run.Unlock()

	log := logging.WithFields(ctx, "strategy", string(strategy))
	start := time.Now()
	r.transition(ctx, StateReconciling, strategy, nil)

	stats, err := r.apply(ctx, doc, strategy)
	res.Stats = stats
	if err != nil {
		r.transition(ctx, StateFailed, strategy, err)
		log.Error("reconciliation failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		res.Error = err.Error()
		return res, err
	}

	res.Success = true
	res.PendingDecision = strategy == AskUser
	r.transition(ctx, StateCommitted, strategy, nil)
	log.Info("reconciliation committed",
		"groups", stats.Groups,
		"accounts", stats.Accounts,
		"categories", stats.Categories,
		"transactions", stats.Transactions,
		"skipped", len(stats.Skipped),
		"pending_decision", res.PendingDecision,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, doc *snapshot.Document, strategy Strategy) (snapshot.Stats, error) {
	sess, err := r.store.Begin(ctx)
	if err != nil {
		return snapshot.Stats{}, fmt.Errorf("begin session: %w", err)
	}
	defer sess.Rollback(context.WithoutCancel(ctx))

	stats, err := Apply(ctx, sess, doc, strategy)
	if err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("reconciliation cancelled before commit: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}

// Apply runs strategy against rw without committing. Replace and AskUser
// fail on the first unresolved reference; Merge and PreserveLocal skip the
// affected entity and report it in the stats.
func Apply(ctx context.Context, rw store.ReadWriter, doc *snapshot.Document, strategy Strategy) (snapshot.Stats, error) {
	switch strategy {
	case Replace, AskUser:
		return snapshot.Restore(ctx, rw, doc, snapshot.Strict)
	case Merge, PreserveLocal:
		return snapshot.Apply(ctx, rw, doc, snapshot.Lenient)
	}
	return snapshot.Stats{}, &ledger.PolicyError{Strategy: string(strategy), Reason: "unsupported strategy"}
}
