package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/okian/critic/internal/domain/model"
)

// JSONLStore appends diagnostics to a newline-delimited JSON file, one record
// per line. It is a write-only sink; history reads are served by the other
// stores.
type JSONLStore struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
}

// NewJSONLStore opens the log file in append mode, creating parent
// directories as needed.
func NewJSONLStore(path string) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating diagnostics directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening diagnostics log: %w", err)
	}

	return &JSONLStore{
		file: f,
		enc:  json.NewEncoder(f),
		path: path,
	}, nil
}

// Name identifies the store when registered as a sink.
func (s *JSONLStore) Name() string {
	return "jsonl"
}

// Write satisfies the sink contract by delegating to Append.
func (s *JSONLStore) Write(ctx context.Context, d model.Diagnostic) error {
	return s.Append(ctx, d)
}

// Append encodes the diagnostic as one JSON line.
func (s *JSONLStore) Append(_ context.Context, d model.Diagnostic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if err := s.enc.Encode(d); err != nil {
		return fmt.Errorf("appending diagnostic: %w", err)
	}
	return nil
}

// Path returns the log file location.
func (s *JSONLStore) Path() string {
	return s.path
}

// Close closes the underlying file. Appends after Close return ErrClosed.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("closing diagnostics log: %w", err)
	}
	return nil
}
