package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/model"
)

// FileLog keeps the whole log as one indented JSON array. Append reads the
// file, adds the entry and rewrites it; there is no file locking, so
// concurrent writers from separate processes can lose entries.
type FileLog struct {
	path   string
	logger *zap.Logger
}

// NewFileLog creates a log at path; the file is created on first append
func NewFileLog(path string, logger *zap.Logger) *FileLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileLog{path: path, logger: logger}
}

// load returns all entries. A missing or empty file is an empty log; a
// file that does not decode is an error and is never overwritten.
func (f *FileLog) load() ([]model.CacheEntry, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.CacheEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read activity log: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.CacheEntry{}, nil
	}

	var entries []model.CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode activity log %s: %w", f.path, err)
	}
	return entries, nil
}

func (f *FileLog) Append(ctx context.Context, entry model.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := f.load()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("encode activity log: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create activity dir: %w", err)
		}
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("write activity log: %w", err)
	}

	f.logger.Debug("activity appended",
		zap.String("path", f.path),
		zap.Int("entries", len(entries)))
	return nil
}

func (f *FileLog) Lookup(ctx context.Context, claim string, articles int) (*model.CacheEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	entries, err := f.load()
	if err != nil {
		return nil, false, err
	}
	entry, ok := firstMatch(entries, claim, articles)
	return entry, ok, nil
}

func (f *FileLog) History(ctx context.Context, email string) ([]model.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := f.load()
	if err != nil {
		return nil, err
	}
	return byEmail(entries, email), nil
}

func (f *FileLog) Close() error { return nil }
