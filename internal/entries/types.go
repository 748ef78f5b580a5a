// Package entries provides persistence for symptom entries.
// Entries are append-only: a stored entry is never updated or deleted through this package.
package entries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lars-symptom-tracker/internal/domain"
)

// Store defines the interface for symptom entry storage operations.
type Store interface {
	// Append stores a new entry. An entry whose ID already exists is rejected
	// with domain.ErrDuplicateEntry and the stored entry is left untouched.
	Append(ctx context.Context, entry *domain.SymptomEntry) error

	// List returns up to limit entries for a user, most recent date first.
	// Entries on the same date are ordered by creation time, newest first.
	List(ctx context.Context, userID string, limit int) ([]*domain.SymptomEntry, error)

	// Count returns the number of entries stored for a user.
	Count(ctx context.Context, userID string) (int64, error)

	// SeverityDistribution counts entries per severity band across all users.
	SeverityDistribution(ctx context.Context) (map[domain.Severity]int64, error)

	// ExportJSON writes every entry of a user to writer in the export format.
	ExportJSON(ctx context.Context, userID string, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// ExportVersion is the version tag written into exports.
const ExportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// Export represents the JSON export format.
type Export struct {
	Version    string                 `json:"version"`
	UserID     string                 `json:"user_id"`
	ExportedAt time.Time              `json:"exported_at"`
	Count      int                    `json:"count"`
	Entries    []*domain.SymptomEntry `json:"entries"`
}

// WriteExport encodes entries for a user in the export format.
func WriteExport(writer io.Writer, userID string, list []*domain.SymptomEntry, now time.Time) error {
	if list == nil {
		list = []*domain.SymptomEntry{}
	}
	export := &Export{
		Version:    ExportVersion,
		UserID:     userID,
		ExportedAt: now.UTC(),
		Count:      len(list),
		Entries:    list,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON reads an export and appends its entries to store.
// Entries that already exist are skipped. Entries failing validation, or the
// optional verify hook, abort the import.
func ImportJSON(ctx context.Context, store Store, reader io.Reader, verify func(*domain.SymptomEntry) error) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if export.Version != ExportVersion {
		return 0, 0, fmt.Errorf("unsupported export version %q", export.Version)
	}

	for _, entry := range export.Entries {
		if entry == nil {
			skipped++
			continue
		}
		if err := entry.Validate(); err != nil {
			return imported, skipped, fmt.Errorf("entry %s: %w", entry.ID, err)
		}
		if verify != nil {
			if err := verify(entry); err != nil {
				return imported, skipped, fmt.Errorf("entry %s: %w", entry.ID, err)
			}
		}

		err := store.Append(ctx, entry)
		if errors.Is(err, domain.ErrDuplicateEntry) {
			skipped++
			continue
		}
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to append: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// storeError marks err as a store outage for callers matching domain.ErrStoreUnavailable.
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
