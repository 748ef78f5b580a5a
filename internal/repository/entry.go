package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/entries"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

const maxExportLimit = 1000000

// EntryRepository handles symptom entry persistence in Postgres
type EntryRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(db *pgxpool.Pool, logger *logrus.Logger) *EntryRepository {
	return &EntryRepository{
		db:  db,
		log: logger,
	}
}

var _ entries.Store = (*EntryRepository)(nil)

// Append inserts a new entry. Existing entries are never overwritten.
func (r *EntryRepository) Append(ctx context.Context, entry *domain.SymptomEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	date, err := domain.ParseDate(entry.Date)
	if err != nil {
		return err
	}

	answersJSON, err := json.Marshal(entry.Answers)
	if err != nil {
		return fmt.Errorf("encoding answers: %w", err)
	}
	scoreJSON, err := json.Marshal(entry.Score)
	if err != nil {
		return fmt.Errorf("encoding score: %w", err)
	}

	query := `
		INSERT INTO symptom_entries (
			id, user_id, entry_date, answers, notes,
			total_score, severity, pattern, score, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err = r.db.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		date,
		answersJSON,
		entry.Notes,
		entry.Score.TotalScore,
		string(entry.Score.Severity),
		string(entry.Score.Pattern),
		scoreJSON,
		entry.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateEntry, entry.ID)
		}
		r.log.WithFields(logrus.Fields{
			"entry_id": entry.ID,
			"user_id":  entry.UserID,
			"error":    err,
		}).Error("Failed to append symptom entry")
		return fmt.Errorf("%w: appending entry: %w", domain.ErrStoreUnavailable, err)
	}

	r.log.WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"user_id":  entry.UserID,
		"severity": entry.Score.Severity,
	}).Debug("Symptom entry appended")

	return nil
}

// List retrieves up to limit entries for a user, most recent first
func (r *EntryRepository) List(ctx context.Context, userID string, limit int) ([]*domain.SymptomEntry, error) {
	query := `
		SELECT id, user_id, entry_date, answers, notes, score, created_at
		FROM symptom_entries
		WHERE user_id = $1
		ORDER BY entry_date DESC, created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to list symptom entries")
		return nil, fmt.Errorf("%w: listing entries: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	result := make([]*domain.SymptomEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning entry: %w", domain.ErrStoreUnavailable, err)
		}
		result = append(result, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating entries: %w", domain.ErrStoreUnavailable, err)
	}

	return result, nil
}

// Count returns the number of entries recorded by a user
func (r *EntryRepository) Count(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM symptom_entries WHERE user_id = $1", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting entries: %w", domain.ErrStoreUnavailable, err)
	}
	return count, nil
}

// SeverityDistribution returns how many entries fall in each severity band across all users
func (r *EntryRepository) SeverityDistribution(ctx context.Context) (map[domain.Severity]int64, error) {
	rows, err := r.db.Query(ctx, "SELECT severity, COUNT(*) FROM symptom_entries GROUP BY severity")
	if err != nil {
		return nil, fmt.Errorf("%w: aggregating severities: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	dist := map[domain.Severity]int64{}
	for rows.Next() {
		var severity string
		var count int64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("%w: scanning severity: %w", domain.ErrStoreUnavailable, err)
		}
		dist[domain.Severity(severity)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating severities: %w", domain.ErrStoreUnavailable, err)
	}
	return dist, nil
}

// ExportJSON exports all entries of a user to a JSON writer
func (r *EntryRepository) ExportJSON(ctx context.Context, userID string, writer io.Writer) error {
	all, err := r.List(ctx, userID, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	return entries.WriteExport(writer, userID, all, time.Now())
}

// Health checks the database connection
func (r *EntryRepository) Health(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close is a no-op; the pool is owned by database.DB.
func (r *EntryRepository) Close() error {
	return nil
}

func scanEntry(row pgx.Row) (*domain.SymptomEntry, error) {
	var entry domain.SymptomEntry
	var date, createdAt time.Time
	var answersJSON, scoreJSON []byte

	if err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&date,
		&answersJSON,
		&entry.Notes,
		&scoreJSON,
		&createdAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(answersJSON, &entry.Answers); err != nil {
		return nil, fmt.Errorf("decoding answers of %s: %w", entry.ID, err)
	}
	entry.Score = &domain.ScoreResult{}
	if err := json.Unmarshal(scoreJSON, entry.Score); err != nil {
		return nil, fmt.Errorf("decoding score of %s: %w", entry.ID, err)
	}
	entry.Date = date.Format(domain.DateLayout)
	entry.CreatedAt = createdAt.UTC()

	return &entry, nil
}
