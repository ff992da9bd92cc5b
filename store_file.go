package personaquiz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileStore keeps the session snapshot as a JSON file in a directory
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a store writing <dir>/mbti_quiz_state.json
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{
		path:   filepath.Join(dir, StorageKey+".json"),
		logger: orNop(logger),
	}, nil
}

// Path returns the snapshot file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot. A missing or unreadable document yields (nil, nil).
func (s *FileStore) Load(ctx context.Context) (*SessionState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return DecodeState(data, s.logger), nil
}

// Save replaces the snapshot through a temp file and rename
func (s *FileStore) Save(ctx context.Context, state *SessionState) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), StorageKey+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear removes the snapshot
func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
