package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSONLStore_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "diag", "history.jsonl")

	store, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	if name := store.Name(); name != "jsonl" {
		t.Errorf("expected sink name jsonl, got %q", name)
	}
	if got := store.Path(); got != path {
		t.Errorf("expected path %q, got %q", path, got)
	}

	for tick := uint64(1); tick <= 3; tick++ {
		if err := store.Write(ctx, diag("sess-a", tick, float64(tick)/10)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var decoded struct {
		SessionID string  `json:"session_id"`
		Tick      uint64  `json:"tick"`
		Raw       float64 `json:"raw"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.SessionID != "sess-a" || decoded.Tick != 1 {
		t.Errorf("unexpected first line: %+v", decoded)
	}
}

func TestJSONLStore_AppendAcrossReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.jsonl")

	first, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := first.Append(ctx, diag("sess-a", 1, 0.1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := second.Append(ctx, diag("sess-a", 2, 0.2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("expected reopened file to keep both lines, got %d", len(lines))
	}
}

func TestJSONLStore_Closed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.jsonl")

	store, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Append(ctx, diag("sess-a", 1, 0.1)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}

	// Closing twice is a no-op
	if err := store.Close(); err != nil {
		t.Errorf("expected nil on double close, got %v", err)
	}
}

func TestJSONLStore_OpenError(t *testing.T) {
	dir := t.TempDir()

	// A directory path cannot be opened for appending
	if _, err := NewJSONLStore(dir); err == nil {
		t.Error("expected error when path is a directory")
	}
}
