package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/scitrue/internal/model"
)

// SQLiteLog stores one row per entry. The autoincrement id is the storage
// order; Lookup takes the lowest matching id.
type SQLiteLog struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (and if needed creates) the database at path
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteLog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create activity dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open activity database: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db, logger: logger}
	if err := l.initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) initialize(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			claim_key TEXT NOT NULL,
			articles INTEGER NOT NULL,
			email TEXT NOT NULL,
			entry TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_fingerprint ON activity(claim_key, articles)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_email ON activity(email)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create activity schema: %w", err)
		}
	}
	return nil
}

func (l *SQLiteLog) Append(ctx context.Context, entry model.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	fp := entry.Fingerprint()
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO activity (claim_key, articles, email, entry) VALUES (?, ?, ?, ?)`,
		fp.Claim, fp.Articles, strings.ToLower(strings.TrimSpace(entry.Email)), string(data))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	l.logger.Debug("activity appended", zap.Stringer("fingerprint", fp))
	return nil
}

func (l *SQLiteLog) Lookup(ctx context.Context, claim string, articles int) (*model.CacheEntry, bool, error) {
	fp := model.NewFingerprint(claim, articles)

	var data string
	err := l.db.QueryRowContext(ctx,
		`SELECT entry FROM activity WHERE claim_key = ? AND articles = ? ORDER BY id ASC LIMIT 1`,
		fp.Claim, fp.Articles).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup activity: %w", err)
	}

	var entry model.CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, false, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, true, nil
}

func (l *SQLiteLog) History(ctx context.Context, email string) ([]model.CacheEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT entry FROM activity WHERE email = ? ORDER BY id ASC`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []model.CacheEntry{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		var entry model.CacheEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}
