package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/gamestate/pkg/adapters/txbuf"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/ports"
)

// DefaultFileName is the name of the snapshot file inside the base path.
const DefaultFileName = "critical_data.json"

// snapshot is the on-disk document: scope -> path -> data (base64 in JSON).
type snapshot map[domain.Scope]map[string][]byte

// Store implements ports.CriticalDataStore using the local filesystem.
// The whole store lives in one JSON document that is rewritten atomically on every
// commit, so a power-hit leaves either the previous or the next snapshot on disk.
type Store struct {
	BasePath string

	mu     sync.RWMutex
	data   snapshot
	loaded bool
}

var _ ports.CriticalDataStore = (*Store)(nil)

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".gamestate/data".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".gamestate", "data")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path() string {
	return filepath.Join(s.BasePath, DefaultFileName)
}

// ensureLoaded reads the snapshot once. Caller must hold s.mu for writing.
func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			s.data = make(snapshot)
			s.loaded = true
			return nil
		}
		return fmt.Errorf("failed to read critical data file: %w", err)
	}

	snap := make(snapshot)
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal critical data: %w", err)
	}
	s.data = snap
	s.loaded = true
	return nil
}

// Begin opens a transaction, loading the snapshot from disk on first use.
func (s *Store) Begin(ctx context.Context, name string) (ports.Transaction, error) {
	s.mu.Lock()
	err := s.ensureLoaded()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &transaction{store: s, name: name, buf: txbuf.New()}, nil
}

func (s *Store) load(k txbuf.Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[k.Scope][k.Path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (s *Store) commit(ops []txbuf.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(snapshot, len(s.data))
	for scope, paths := range s.data {
		m := make(map[string][]byte, len(paths))
		for k, v := range paths {
			m[k] = v
		}
		next[scope] = m
	}
	for _, op := range ops {
		if op.Removed {
			delete(next[op.Key.Scope], op.Key.Path)
			continue
		}
		if next[op.Key.Scope] == nil {
			next[op.Key.Scope] = make(map[string][]byte)
		}
		next[op.Key.Scope][op.Key.Path] = op.Data
	}

	if err := s.writeAtomic(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// writeAtomic persists the snapshot.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) writeAtomic(snap snapshot) error {
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure data directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal critical data: %w", err)
	}

	// Same directory, so the rename stays on one filesystem
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-critical-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	destPath := s.path()
	if _, err := os.Stat(destPath); err == nil {
		// On Windows, os.Rename fails if dest exists.
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove previous snapshot: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to snapshot: %w", err)
	}
	return nil
}

type transaction struct {
	store *Store
	name  string
	buf   *txbuf.Buffer
}

func (t *transaction) Name() string { return t.name }

func (t *transaction) Read(scope domain.Scope, path string) ([]byte, error) {
	return t.buf.Read(scope, path, t.store.load)
}

func (t *transaction) Write(scope domain.Scope, path string, data []byte) error {
	return t.buf.Write(scope, path, data)
}

func (t *transaction) Remove(scope domain.Scope, path string) error {
	return t.buf.Remove(scope, path)
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.buf.Closed() {
		return domain.ErrTransactionClosed
	}
	defer t.buf.Close()
	if t.buf.Len() == 0 {
		return nil
	}
	return t.store.commit(t.buf.Ops())
}

func (t *transaction) Rollback(ctx context.Context) error {
	t.buf.Close()
	return nil
}
