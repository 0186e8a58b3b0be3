package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/m3rciful/wabot/core/logger"
)

// FileStore keeps all sessions in one JSON file. Every write rewrites the
// file through a temporary file and rename, so a crash never leaves it half written.
// Values read back follow JSON typing: numbers are float64.
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string]map[string]any
}

// NewFileStore loads path, creating an empty store when the file does not exist.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, data: make(map[string]map[string]any)}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("session file: read %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("session file: decode %s: %w", path, err)
		}
	}
	if s.data == nil {
		s.data = make(map[string]map[string]any)
	}
	logger.Debug(context.Background(), logger.CompStore, "store.open",
		slog.String("store", "file"),
		slog.String("path", path),
		slog.Int("sessions", len(s.data)),
	)
	return s, nil
}

// Get returns a copy of the session stored under key.
func (s *FileStore) Get(_ context.Context, key string) (map[string]any, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.data[key]), nil
}

// Set replaces the session under key and flushes the file.
func (s *FileStore) Set(_ context.Context, key string, data map[string]any) error {
	if key == "" {
		return ErrEmptyKey
	}
	// Round-trip through JSON so in-process reads match what a reload would return.
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session file: encode %q: %w", key, err)
	}
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("session file: encode %q: %w", key, err)
	}
	if stored == nil {
		stored = make(map[string]any)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[key]
	s.data[key] = stored
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Delete removes the session under key and flushes the file.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)
	if err := s.flush(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

// flush writes the whole map to disk. Callers hold mu.
func (s *FileStore) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("session file: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session file: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("session file: temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("session file: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("session file: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session file: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session file: rename: %w", err)
	}
	return nil
}
