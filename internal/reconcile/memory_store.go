package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps entries in process. Used in tests and when no store is
// configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

func (m *MemoryStore) Record(_ context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e = prepare(e, m.now())
	m.entries[e.ID] = e
	return e, nil
}

func (m *MemoryStore) Pending(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pending(m.entries), nil
}

func (m *MemoryStore) Resolve(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return resolve(m.entries, id, at)
}

// FileStore keeps entries in a JSON file. Fine for a single instance.
type FileStore struct {
	path    string
	mu      sync.Mutex
	entries map[string]Entry
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, entries: make(map[string]Entry)}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.entries)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Record(_ context.Context, e Entry) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e = prepare(e, time.Now())
	f.entries[e.ID] = e
	return e, f.persist()
}

func (f *FileStore) Pending(_ context.Context) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pending(f.entries), nil
}

func (f *FileStore) Resolve(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := resolve(f.entries, id, at); err != nil {
		return err
	}
	return f.persist()
}

func pending(entries map[string]Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ResolvedAt == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func resolve(entries map[string]Entry, id string, at time.Time) error {
	e, ok := entries[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	e.ResolvedAt = &at
	entries[id] = e
	return nil
}
