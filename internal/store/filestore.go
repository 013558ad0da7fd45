package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore keeps the session in a JSON file inside the session directory.
type FileStore struct {
	mu      sync.Mutex
	path    string
	profile string
	now     func() time.Time
}

// NewFileStore creates a store writing <dir>/session.json.
func NewFileStore(dir, profile string) *FileStore {
	return &FileStore{
		path:    filepath.Join(strings.TrimSpace(dir), SessionFileName),
		profile: normalizeProfile(profile),
		now:     time.Now,
	}
}

// Path returns the session file path.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load reads the session file.
func (s *FileStore) Load(_ context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, _, err := readRecordFile(s.path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("session filestore: load: %w", err)
	}
	return record, nil
}

// Save writes the session file with 0600 permissions.
func (s *FileStore) Save(_ context.Context, record *Record) (string, error) {
	if record == nil {
		return "", fmt.Errorf("session filestore: record is nil")
	}
	record.Profile = s.profile
	if record.SavedAt.IsZero() {
		record.SavedAt = s.now().UTC()
	}
	data, err := marshalRecord(record)
	if err != nil {
		return "", fmt.Errorf("session filestore: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err = writeFileAtomic(s.path, data); err != nil {
		return "", fmt.Errorf("session filestore: save: %w", err)
	}
	return s.path, nil
}

// Delete removes the session file.
func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := removeFile(s.path); err != nil {
		return fmt.Errorf("session filestore: delete: %w", err)
	}
	return nil
}
