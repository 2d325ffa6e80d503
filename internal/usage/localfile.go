package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// localDocument is the on-disk layout: one JSON object mapping userId to
// record, rewritten in full on every mutation.
type localDocument struct {
	Users map[string]Record `json:"users"`
}

// LocalStore is the file-backed fallback backend. A process-wide mutex
// serializes the read-modify-write cycle; concurrent writers in separate
// processes can still lose an increment, an accepted limitation of the
// fallback path.
type LocalStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewLocalStore creates a file-backed usage store at path. The file is
// created on first write.
func NewLocalStore(path string, logger *zap.Logger) *LocalStore {
	return &LocalStore{path: path, logger: logger}
}

// Get returns the record for userID, persisting the default on first access.
func (s *LocalStore) Get(ctx context.Context, userID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	if rec, ok := doc.Users[userID]; ok {
		return rec, nil
	}

	rec := NewRecord(userID)
	doc.Users[userID] = rec
	if err := s.save(doc); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Update applies mutate to the current-or-default record and rewrites the file.
func (s *LocalStore) Update(ctx context.Context, userID string, mutate func(*Record)) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	rec, ok := doc.Users[userID]
	if !ok {
		rec = NewRecord(userID)
	}

	mutate(&rec)
	rec.UserID = userID
	rec.UpdatedAt = time.Now().UTC()

	doc.Users[userID] = rec
	if err := s.save(doc); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// load reads the whole document. A missing or corrupt file is an empty
// store, not an error.
func (s *LocalStore) load() localDocument {
	doc := localDocument{Users: make(map[string]Record)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read local usage store", zap.String("path", s.path), zap.Error(err))
		}
		return doc
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("local usage store is corrupt, starting empty",
			zap.String("path", s.path),
			zap.Error(err),
		)
		doc.Users = make(map[string]Record)
	}
	if doc.Users == nil {
		doc.Users = make(map[string]Record)
	}
	return doc
}

// save rewrites the whole document via a temp file rename.
func (s *LocalStore) save(doc localDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode local usage store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create local store directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write local usage store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace local usage store: %w", err)
	}
	return nil
}
