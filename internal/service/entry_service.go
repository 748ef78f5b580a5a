package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/entries"
)

// List bounds
const (
	DefaultListLimit   = 100
	MaxListLimit       = 1000
	DefaultTrendWindow = 10
)

// TrendChangeThreshold is the minimum score change between the oldest and latest
// entry of a window that counts as a move.
const TrendChangeThreshold = 5

// TrendDirection describes how symptoms moved across a window. Lower scores are better.
type TrendDirection string

const (
	TREND_IMPROVING         TrendDirection = "IMPROVING"
	TREND_WORSENING         TrendDirection = "WORSENING"
	TREND_STABLE            TrendDirection = "STABLE"
	TREND_INSUFFICIENT_DATA TrendDirection = "INSUFFICIENT_DATA"
)

// TrendSummary aggregates the most recent entries of a user.
type TrendSummary struct {
	UserID         string                  `json:"user_id"`
	Window         int                     `json:"window"`
	Count          int                     `json:"count"`
	From           string                  `json:"from,omitempty"`
	To             string                  `json:"to,omitempty"`
	LatestScore    int                     `json:"latest_score"`
	LatestSeverity domain.Severity         `json:"latest_severity,omitempty"`
	AverageScore   float64                 `json:"average_score"`
	MinScore       int                     `json:"min_score"`
	MaxScore       int                     `json:"max_score"`
	Change         int                     `json:"change"`
	Direction      TrendDirection          `json:"direction"`
	SeverityCounts map[domain.Severity]int `json:"severity_counts"`
}

// EntryService owns the symptom entry lifecycle: validate, score, persist, read back.
type EntryService struct {
	store  entries.Store
	scorer domain.ScoreCalculator
	logger *logrus.Logger
	now    func() time.Time
	newID  func() string
}

// NewEntryService creates a new entry service
func NewEntryService(store entries.Store, scorer domain.ScoreCalculator, logger *logrus.Logger) *EntryService {
	return &EntryService{
		store:  store,
		scorer: scorer,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// RecordEntry scores answers and appends an immutable entry for the user.
func (s *EntryService) RecordEntry(ctx context.Context, userID, date string, answers domain.Answers, notes string) (*domain.SymptomEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "user ID is required", userID)
	}
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(notes); n > domain.MaxNotesLength {
		return nil, domain.NewValidationError("notes",
			fmt.Sprintf("notes must be at most %d characters", domain.MaxNotesLength), n)
	}

	score, err := s.scorer.CalculateScore(answers)
	if err != nil {
		return nil, err
	}

	entry := &domain.SymptomEntry{
		ID:        s.newID(),
		UserID:    userID,
		Date:      date,
		Answers:   answers.Clone(),
		Notes:     notes,
		Score:     score,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.Append(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":  userID,
			"entry_id": entry.ID,
		}).Error("Failed to record symptom entry")
		return nil, asStoreError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"entry_id":    entry.ID,
		"date":        date,
		"total_score": score.TotalScore,
		"severity":    score.Severity,
	}).Info("Recorded symptom entry")

	return entry, nil
}

// ListEntries returns a user's entries, most recent first.
// A limit of zero or less selects DefaultListLimit; limits above MaxListLimit are clamped.
func (s *EntryService) ListEntries(ctx context.Context, userID string, limit int) ([]*domain.SymptomEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "user ID is required", userID)
	}

	list, err := s.store.List(ctx, userID, normalizeLimit(limit, DefaultListLimit))
	if err != nil {
		return nil, asStoreError(err)
	}
	if list == nil {
		list = []*domain.SymptomEntry{}
	}
	return list, nil
}

// CountEntries returns how many entries a user has recorded.
func (s *EntryService) CountEntries(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, domain.NewValidationError("user_id", "user ID is required", userID)
	}

	count, err := s.store.Count(ctx, userID)
	if err != nil {
		return 0, asStoreError(err)
	}
	return count, nil
}

// ExportEntries writes every entry of a user as a JSON export.
func (s *EntryService) ExportEntries(ctx context.Context, userID string, w io.Writer) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.NewValidationError("user_id", "user ID is required", userID)
	}

	if err := s.store.ExportJSON(ctx, userID, w); err != nil {
		return asStoreError(err)
	}
	return nil
}

// ImportEntries appends the entries of an export document, skipping IDs already stored.
// Each entry is rescored from its answers; an entry whose answers are incomplete or
// whose stored score differs from the rescored one aborts the import.
func (s *EntryService) ImportEntries(ctx context.Context, r io.Reader) (imported, skipped int, err error) {
	imported, skipped, err = entries.ImportJSON(ctx, s.store, r, s.verifyScore)
	if err != nil {
		s.logger.WithError(err).WithField("imported", imported).Error("Failed to import symptom entries")
		return imported, skipped, err
	}

	s.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("Imported symptom entries")
	return imported, skipped, nil
}

// verifyScore checks that an entry's score is the one its answers produce.
func (s *EntryService) verifyScore(entry *domain.SymptomEntry) error {
	if n := utf8.RuneCountInString(entry.Notes); n > domain.MaxNotesLength {
		return domain.NewValidationError("notes",
			fmt.Sprintf("notes must be at most %d characters", domain.MaxNotesLength), n)
	}

	score, err := s.scorer.CalculateScore(entry.Answers)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(score, entry.Score) {
		return domain.NewValidationError("score", "score does not match the recorded answers", entry.Score.TotalScore)
	}
	return nil
}

// SeverityDistribution returns de-identified entry counts per severity band across all users.
func (s *EntryService) SeverityDistribution(ctx context.Context) (map[domain.Severity]int64, error) {
	dist, err := s.store.SeverityDistribution(ctx)
	if err != nil {
		return nil, asStoreError(err)
	}
	for _, sev := range []domain.Severity{domain.NO_LARS, domain.MINOR_LARS, domain.MAJOR_LARS} {
		if _, ok := dist[sev]; !ok {
			dist[sev] = 0
		}
	}
	return dist, nil
}

// Trend summarizes the most recent window entries of a user.
func (s *EntryService) Trend(ctx context.Context, userID string, window int) (*TrendSummary, error) {
	window = normalizeLimit(window, DefaultTrendWindow)

	list, err := s.ListEntries(ctx, userID, window)
	if err != nil {
		return nil, err
	}

	summary := &TrendSummary{
		UserID:         strings.TrimSpace(userID),
		Window:         window,
		Count:          len(list),
		Direction:      TREND_INSUFFICIENT_DATA,
		SeverityCounts: map[domain.Severity]int{},
	}
	if len(list) == 0 {
		return summary, nil
	}

	latest, oldest := list[0], list[len(list)-1]
	summary.From = oldest.Date
	summary.To = latest.Date
	summary.LatestScore = latest.Score.TotalScore
	summary.LatestSeverity = latest.Score.Severity
	summary.MinScore = latest.Score.TotalScore
	summary.MaxScore = latest.Score.TotalScore

	total := 0
	for _, e := range list {
		score := e.Score.TotalScore
		total += score
		if score < summary.MinScore {
			summary.MinScore = score
		}
		if score > summary.MaxScore {
			summary.MaxScore = score
		}
		summary.SeverityCounts[e.Score.Severity]++
	}
	summary.AverageScore = float64(total) / float64(len(list))

	if len(list) >= 2 {
		summary.Change = latest.Score.TotalScore - oldest.Score.TotalScore
		summary.Direction = trendDirection(summary.Change)
	}

	return summary, nil
}

func trendDirection(change int) TrendDirection {
	switch {
	case change <= -TrendChangeThreshold:
		return TREND_IMPROVING
	case change >= TrendChangeThreshold:
		return TREND_WORSENING
	default:
		return TREND_STABLE
	}
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func asStoreError(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
