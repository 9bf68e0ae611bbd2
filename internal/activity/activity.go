// Package activity is the append-only activity log that doubles as the
// verification cache. Lookup returns the first entry stored for a
// fingerprint, not the most recent.
package activity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/model"
)

// Log is the persistence contract for completed runs
type Log interface {
	// Append adds entry after all existing entries
	Append(ctx context.Context, entry model.CacheEntry) error
	// Lookup scans in storage order and returns the first entry whose
	// normalized claim and article count match
	Lookup(ctx context.Context, claim string, articles int) (*model.CacheEntry, bool, error)
	// History returns the entries logged for email, in storage order
	History(ctx context.Context, email string) ([]model.CacheEntry, error)
	Close() error
}

// firstMatch implements the lookup contract over an in-order slice
func firstMatch(entries []model.CacheEntry, claim string, articles int) (*model.CacheEntry, bool) {
	for i := range entries {
		if entries[i].Fingerprint().Matches(claim, articles) {
			entry := entries[i]
			return &entry, true
		}
	}
	return nil, false
}

func byEmail(entries []model.CacheEntry, email string) []model.CacheEntry {
	out := []model.CacheEntry{}
	for _, e := range entries {
		if strings.EqualFold(strings.TrimSpace(e.Email), strings.TrimSpace(email)) {
			out = append(out, e)
		}
	}
	return out
}

// Synchronized serializes every call to the wrapped log. It closes the
// read-modify-write race between goroutines of one process (batch workers,
// HTTP handlers); writers in other processes can still interleave.
type Synchronized struct {
	mu   sync.Mutex
	next Log
}

// NewSynchronized wraps next
func NewSynchronized(next Log) *Synchronized {
	return &Synchronized{next: next}
}

func (s *Synchronized) Append(ctx context.Context, entry model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Append(ctx, entry)
}

func (s *Synchronized) Lookup(ctx context.Context, claim string, articles int) (*model.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Lookup(ctx, claim, articles)
}

func (s *Synchronized) History(ctx context.Context, email string) ([]model.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.History(ctx, email)
}

func (s *Synchronized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Close()
}

// Open builds the backend selected by cfg.Backend
func Open(ctx context.Context, cfg model.ActivityConfig, logger *zap.Logger) (Log, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		return NewFileLog(cfg.Path, logger), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path, logger)
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown activity backend: %s (supported: file, sqlite, redis)", cfg.Backend)
	}
}
