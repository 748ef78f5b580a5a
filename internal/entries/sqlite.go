package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lars-symptom-tracker/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite entry store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// newSQLiteStoreWithDB wraps an already prepared handle.
func newSQLiteStoreWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry scans a row into a SymptomEntry.
func scanEntry(s scanner) (*domain.SymptomEntry, error) {
	entry := &domain.SymptomEntry{}
	var answersJSON, scoreJSON string
	var createdAt int64

	if err := s.Scan(
		&entry.ID, &entry.UserID, &entry.Date,
		&answersJSON, &entry.Notes, &scoreJSON, &createdAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(answersJSON), &entry.Answers); err != nil {
		return nil, fmt.Errorf("decoding answers of %s: %w", entry.ID, err)
	}
	entry.Score = &domain.ScoreResult{}
	if err := json.Unmarshal([]byte(scoreJSON), entry.Score); err != nil {
		return nil, fmt.Errorf("decoding score of %s: %w", entry.ID, err)
	}
	entry.CreatedAt = time.Unix(0, createdAt).UTC()

	return entry, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS symptom_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		answers TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		total_score INTEGER NOT NULL,
		severity TEXT NOT NULL,
		pattern TEXT NOT NULL,
		score TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user_date ON symptom_entries(user_id, entry_date, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_severity ON symptom_entries(severity);
	`

	_, err := db.Exec(schema)
	return err
}

const selectColumns = `id, user_id, entry_date, answers, notes, score, created_at`

// Append stores a new entry.
func (s *SQLiteStore) Append(ctx context.Context, entry *domain.SymptomEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	var existing string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM symptom_entries WHERE id = ?", entry.ID,
	).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateEntry, entry.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storeError("failed to check existing", err)
	}

	answersJSON, err := json.Marshal(entry.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}
	scoreJSON, err := json.Marshal(entry.Score)
	if err != nil {
		return fmt.Errorf("failed to encode score: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO symptom_entries (
			id, user_id, entry_date, answers, notes,
			total_score, severity, pattern, score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.UserID,
		entry.Date,
		string(answersJSON),
		entry.Notes,
		entry.Score.TotalScore,
		string(entry.Score.Severity),
		string(entry.Score.Pattern),
		string(scoreJSON),
		entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		// a concurrent append of the same ID lost the race
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateEntry, entry.ID)
		}
		return storeError("failed to insert", err)
	}

	return nil
}

// List returns up to limit entries for a user, most recent first.
func (s *SQLiteStore) List(ctx context.Context, userID string, limit int) ([]*domain.SymptomEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM symptom_entries
		WHERE user_id = ?
		ORDER BY entry_date DESC, created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, storeError("failed to query", err)
	}
	defer rows.Close()

	result := make([]*domain.SymptomEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, storeError("failed to scan row", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate rows", err)
	}
	return result, nil
}

// Count returns the number of entries stored for a user.
func (s *SQLiteStore) Count(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM symptom_entries WHERE user_id = ?", userID,
	).Scan(&count)
	if err != nil {
		return 0, storeError("failed to count", err)
	}
	return count, nil
}

// SeverityDistribution counts entries per severity band across all users.
func (s *SQLiteStore) SeverityDistribution(ctx context.Context) (map[domain.Severity]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT severity, COUNT(*) FROM symptom_entries GROUP BY severity")
	if err != nil {
		return nil, storeError("failed to aggregate", err)
	}
	defer rows.Close()

	dist := map[domain.Severity]int64{}
	for rows.Next() {
		var severity string
		var count int64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, storeError("failed to scan row", err)
		}
		dist[domain.Severity(severity)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate rows", err)
	}
	return dist, nil
}

// ExportJSON exports all entries of a user to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, userID string, writer io.Writer) error {
	all, err := s.List(ctx, userID, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	return WriteExport(writer, userID, all, time.Now())
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
