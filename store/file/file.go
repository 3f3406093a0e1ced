package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/smallnest/kgqa/store"
)

// FileRecordStore writes one JSON document per record into a directory.
type FileRecordStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileRecordStore creates the directory if needed and returns a store rooted there
func NewFileRecordStore(path string) (*FileRecordStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	return &FileRecordStore{path: path}, nil
}

// Path returns the record directory.
func (s *FileRecordStore) Path() string {
	return s.path
}

func (s *FileRecordStore) filename(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid record id %q", id)
	}
	return filepath.Join(s.path, id+".json"), nil
}

// Save stores a record
func (s *FileRecordStore) Save(_ context.Context, record *store.Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	name, err := s.filename(record.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tmp, name); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Load retrieves a record by ID
func (s *FileRecordStore) Load(_ context.Context, id string) (*store.Record, error) {
	name, err := s.filename(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return readRecord(name, id)
}

func readRecord(name, id string) (*store.Record, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var record store.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return &record, nil
}

// List returns records newest first. Unreadable files are skipped.
func (s *FileRecordStore) List(_ context.Context, opts store.ListOptions) ([]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var records []*store.Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		record, err := readRecord(filepath.Join(s.path, entry.Name()), id)
		if err != nil {
			continue
		}
		records = append(records, record)
	}
	return store.Sort(records, opts), nil
}

// Delete removes a record
func (s *FileRecordStore) Delete(_ context.Context, id string) error {
	name, err := s.filename(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Clear removes all records
func (s *FileRecordStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(s.path, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear records: %w", err)
		}
	}
	return nil
}

// Close is a no-op
func (s *FileRecordStore) Close() error {
	return nil
}

var _ store.RecordStore = (*FileRecordStore)(nil)
