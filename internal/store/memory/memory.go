// Package memory provides an in-process store.
//
// Every session works on a private copy of the committed ledger. Commit swaps
// the copy in atomically; when the store was opened with a file path the new
// ledger is first written to disk as a snapshot document (temp file + rename)
// and the swap only happens if that write succeeded.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/snapshot"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// Aliases of the store sentinels, kept for callers that only import memory.
var (
	ErrConflict = store.ErrConflict
	ErrClosed   = store.ErrClosed
	ErrExists   = store.ErrExists
	ErrNotFound = store.ErrNotFound
)

type state struct {
	groups     map[string]ledger.AccountGroup
	accounts   map[string]ledger.Account
	categories map[string]ledger.Category
	txs        map[uuid.UUID]ledger.Transaction
}

func newState() *state {
	return &state{
		groups:     make(map[string]ledger.AccountGroup),
		accounts:   make(map[string]ledger.Account),
		categories: make(map[string]ledger.Category),
		txs:        make(map[uuid.UUID]ledger.Transaction),
	}
}

func (s *state) clone() *state {
	c := &state{
		groups:     make(map[string]ledger.AccountGroup, len(s.groups)),
		accounts:   make(map[string]ledger.Account, len(s.accounts)),
		categories: make(map[string]ledger.Category, len(s.categories)),
		txs:        make(map[uuid.UUID]ledger.Transaction, len(s.txs)),
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.txs {
		c.txs[k] = v
	}
	return c
}

// Store is an in-memory ledger, optionally mirrored to a JSON file.
type Store struct {
	mu        sync.RWMutex
	committed *state
	version   uint64
	path      string
	closed    bool
}

// New returns an empty, purely in-memory store.
func New() *Store {
	return &Store{committed: newState()}
}

// Open returns a store backed by the snapshot document at path. A missing
// file yields an empty ledger; the file is created on the first commit.
func Open(ctx context.Context, path string) (*Store, error) {
	s := New()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		s.path = path
		return s, nil
	}
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "open ledger file", Err: err}
	}
	defer f.Close()

	doc, err := snapshot.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load ledger file %s: %w", path, err)
	}

	sess, err := s.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback(ctx)

	if _, err := snapshot.Restore(ctx, sess, doc, snapshot.Lenient); err != nil {
		return nil, fmt.Errorf("load ledger file %s: %w", path, err)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, err
	}

	// Only mirror to disk after the initial load so loading does not rewrite the file.
	s.path = path
	return s, nil
}

// Begin opens a session on a private copy of the committed ledger.
func (s *Store) Begin(ctx context.Context) (store.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &ledger.PersistenceError{Op: "begin", Err: ErrClosed}
	}
	return &session{store: s, work: s.committed.clone(), base: s.version}, nil
}

// Close marks the store closed. Open sessions can no longer commit.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) commit(work *state, base uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &ledger.PersistenceError{Op: "commit", Err: ErrClosed}
	}
	if s.version != base {
		return &ledger.PersistenceError{Op: "commit", Err: ErrConflict}
	}
	if s.path != "" {
		if err := writeFile(s.path, work); err != nil {
			return &ledger.PersistenceError{Op: "write ledger file", Err: err}
		}
	}
	s.committed = work
	s.version++
	return nil
}

func writeFile(path string, st *state) error {
	doc := snapshot.FromEntities(
		sortedValues(st.groups, func(g ledger.AccountGroup) string { return g.Name }),
		sortedValues(st.accounts, func(a ledger.Account) string { return a.Name }),
		sortedValues(st.categories, func(c ledger.Category) string { return c.Name }),
		sortedTxs(st.txs, store.TxFilter{}),
	)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := snapshot.Encode(tmp, doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func sortedValues[T any](m map[string]T, key func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b T) int { return strings.Compare(key(a), key(b)) })
	return out
}

func sortedTxs(m map[uuid.UUID]ledger.Transaction, f store.TxFilter) []ledger.Transaction {
	out := make([]ledger.Transaction, 0, len(m))
	for _, t := range m {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b ledger.Transaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}
