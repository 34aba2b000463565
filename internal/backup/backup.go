// Package backup keeps timestamped snapshot documents of the ledger in a
// Sink, either a local directory or a Google Cloud Storage bucket, and prunes
// all but the newest ones.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/bookkeeper/internal/logging"
	"github.com/JonMunkholm/bookkeeper/internal/snapshot"
)

// ErrNoBackups is returned by Latest when the sink holds no backup.
var ErrNoBackups = errors.New("no backups found")

const (
	namePrefix = "ledger-"
	nameSuffix = ".json"
	// stampLayout sorts lexically in time order.
	stampLayout = "20060102T150405.000Z"
)

// Sink stores backup objects by name.
type Sink interface {
	Put(ctx context.Context, name string, r io.Reader) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Name returns the object name of a backup taken at t.
func Name(t time.Time) string {
	return namePrefix + t.UTC().Format(stampLayout) + nameSuffix
}

// IsBackupName reports whether name was produced by Name.
func IsBackupName(name string) bool {
	stamp, ok := strings.CutPrefix(name, namePrefix)
	if !ok {
		return false
	}
	stamp, ok = strings.CutSuffix(stamp, nameSuffix)
	if !ok {
		return false
	}
	_, err := time.Parse(stampLayout, stamp)
	return err == nil
}

// Manager writes backups to a sink and applies retention.
type Manager struct {
	sink Sink
	keep int
	now  func() time.Time
}

// NewManager returns a manager keeping the newest keep backups. keep <= 0
// keeps everything.
func NewManager(sink Sink, keep int) *Manager {
	return &Manager{sink: sink, keep: keep, now: time.Now}
}

// Save writes doc as a new backup and prunes old ones. Pruning failures are
// logged and do not fail the save.
func (m *Manager) Save(ctx context.Context, doc *snapshot.Document) (string, error) {
	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, doc); err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}

	name := Name(m.now())
	if err := m.sink.Put(ctx, name, &buf); err != nil {
		return "", fmt.Errorf("write backup %s: %w", name, err)
	}

	if err := m.prune(ctx); err != nil {
		logging.FromContext(ctx).Warn("backup retention failed", "error", err)
	}
	return name, nil
}

// List returns backup names, newest first.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	names, err := m.sink.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	names = slices.DeleteFunc(names, func(n string) bool { return !IsBackupName(n) })
	slices.Sort(names)
	slices.Reverse(names)
	return names, nil
}

// Load decodes the backup called name.
func (m *Manager) Load(ctx context.Context, name string) (*snapshot.Document, error) {
	rc, err := m.sink.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open backup %s: %w", name, err)
	}
	defer rc.Close()

	doc, err := snapshot.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", name, err)
	}
	return doc, nil
}

// Latest decodes the newest backup.
func (m *Manager) Latest(ctx context.Context) (*snapshot.Document, string, error) {
	names, err := m.List(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(names) == 0 {
		return nil, "", ErrNoBackups
	}
	doc, err := m.Load(ctx, names[0])
	return doc, names[0], err
}

func (m *Manager) prune(ctx context.Context) error {
	if m.keep <= 0 {
		return nil
	}
	names, err := m.List(ctx)
	if err != nil {
		return err
	}
	if len(names) <= m.keep {
		return nil
	}

	var errs []error
	for _, name := range names[m.keep:] {
		if err := m.sink.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		logging.FromContext(ctx).Debug("old backup removed", "name", name)
	}
	return errors.Join(errs...)
}
