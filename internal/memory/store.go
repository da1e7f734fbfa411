package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the whole memory document. Save overwrites the previous
// document atomically from the caller's point of view; Load returning a nil
// document means nothing has been persisted yet.
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
	Close() error
}

const storageVersion = 1

type storeEnvelope struct {
	Version int      `json:"version"`
	Key     string   `json:"key"`
	Data    Document `json:"data"`
}

// FileStore keeps the document in a single JSON file on local disk.
type FileStore struct {
	mu   sync.Mutex
	path string
	key  string
}

func NewFileStore(path, storageKey string) *FileStore {
	return &FileStore{path: path, key: storageKey}
}

func (s *FileStore) Load(_ context.Context) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var env storeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if env.Version != storageVersion {
		return nil, fmt.Errorf("unsupported storage version %d in %s", env.Version, s.path)
	}
	return env.Data, nil
}

func (s *FileStore) Save(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(storeEnvelope{Version: storageVersion, Key: s.key, Data: doc}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// Write-then-rename so a crash mid-save never leaves a torn document.
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename into %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
