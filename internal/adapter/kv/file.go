package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
)

// FileStore keeps all keys in a single JSON object on disk. Every mutation
// rewrites the file through a temp file and rename.
type FileStore struct {
	mu   sync.RWMutex
	path string
	data map[string]string
}

// OpenFileStore loads path, creating its directory when needed. A missing or
// corrupt file yields an empty store.
func OpenFileStore(ctx context.Context, path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("empty file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("op=kv.OpenFileStore: %w", err)
	}
	s := &FileStore{path: path, data: map[string]string{}}

	b, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("op=kv.OpenFileStore: %w", err)
	}
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		observability.LoggerFromContext(ctx).Warn("kv file corrupt; starting empty",
			slog.String("path", path), slog.Any("error", err))
		s.data = map[string]string{}
	}
	return s, nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.flushLocked()
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	b, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("op=kv.FileStore.flush: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".kv-*.tmp")
	if err != nil {
		return fmt.Errorf("op=kv.FileStore.flush: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("op=kv.FileStore.flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("op=kv.FileStore.flush: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("op=kv.FileStore.flush: %w", err)
	}
	return nil
}

// Ping checks that the directory is still writable.
func (s *FileStore) Ping(context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

func (s *FileStore) Close() error { return nil }
