package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/entries"
)

// failingStore fails every operation with err.
type failingStore struct {
	err error
}

func (s *failingStore) Append(ctx context.Context, entry *domain.SymptomEntry) error { return s.err }
func (s *failingStore) List(ctx context.Context, userID string, limit int) ([]*domain.SymptomEntry, error) {
	return nil, s.err
}
func (s *failingStore) Count(ctx context.Context, userID string) (int64, error) { return 0, s.err }
func (s *failingStore) ExportJSON(ctx context.Context, userID string, w io.Writer) error {
	return s.err
}
func (s *failingStore) SeverityDistribution(ctx context.Context) (map[domain.Severity]int64, error) {
	return nil, s.err
}
func (s *failingStore) Close() error { return nil }

// limitRecorder remembers the limit passed to List.
type limitRecorder struct {
	failingStore
	limit int
}

func (s *limitRecorder) List(ctx context.Context, userID string, limit int) ([]*domain.SymptomEntry, error) {
	s.limit = limit
	return nil, nil
}

func newTestEntryService(t *testing.T) (*EntryService, *entries.SQLiteStore) {
	t.Helper()
	store, err := entries.NewSQLiteStore(filepath.Join(t.TempDir(), "entries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewEntryService(store, newTestEngine(t), newTestLogger())

	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("entry-%03d", seq)
	}
	return svc, store
}

func TestEntryService_RecordEntry(t *testing.T) {
	svc, _ := newTestEntryService(t)
	ctx := context.Background()
	a := answers(0, 3, 1, 0, 2)

	entry, err := svc.RecordEntry(ctx, "user-1", "2024-03-01", a, "after dinner")
	require.NoError(t, err)

	direct, err := svc.scorer.CalculateScore(a)
	require.NoError(t, err)

	assert.Equal(t, "entry-001", entry.ID)
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, "2024-03-01", entry.Date)
	assert.Equal(t, direct, entry.Score)
	assert.Equal(t, 29, entry.Score.TotalScore)
	assert.Equal(t, time.UTC, entry.CreatedAt.Location())

	// later changes to the caller's map do not reach the entry
	a[domain.URGENCY] = 3
	assert.Equal(t, 2, entry.Answers[domain.URGENCY])

	list, err := svc.ListEntries(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, entry.ID, list[0].ID)
}

func TestEntryService_RecordEntry_Validation(t *testing.T) {
	svc, store := newTestEntryService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  string
		date    string
		answers domain.Answers
		notes   string
		field   string
	}{
		{"Empty user", "", "2024-03-01", answers(0, 0, 0, 0, 0), "", "user_id"},
		{"Blank user", "   ", "2024-03-01", answers(0, 0, 0, 0, 0), "", "user_id"},
		{"Bad date format", "user-1", "03/01/2024", answers(0, 0, 0, 0, 0), "", "date"},
		{"Impossible date", "user-1", "2024-02-30", answers(0, 0, 0, 0, 0), "", "date"},
		{"Notes too long", "user-1", "2024-03-01", answers(0, 0, 0, 0, 0), strings.Repeat("x", domain.MaxNotesLength+1), "notes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := svc.RecordEntry(ctx, tt.userID, tt.date, tt.answers, tt.notes)
			assert.Nil(t, entry)

			var vErr *domain.ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	count, err := store.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestEntryService_RecordEntry_NotesAtLimit(t *testing.T) {
	svc, _ := newTestEntryService(t)

	notes := strings.Repeat("é", domain.MaxNotesLength)
	entry, err := svc.RecordEntry(context.Background(), "user-1", "2024-03-01", answers(0, 0, 0, 0, 0), notes)
	require.NoError(t, err)
	assert.Equal(t, notes, entry.Notes)
}

func TestEntryService_RecordEntry_Incomplete(t *testing.T) {
	svc, store := newTestEntryService(t)
	ctx := context.Background()

	a := answers(0, 0, 0, 0, 0)
	delete(a, domain.CLUSTERING)

	entry, err := svc.RecordEntry(ctx, "user-1", "2024-03-01", a, "")
	assert.Nil(t, entry)

	var incomplete *domain.IncompleteAnswersError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []domain.QuestionKey{domain.CLUSTERING}, incomplete.Missing)

	count, err := store.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestEntryService_StoreUnavailable(t *testing.T) {
	down := errors.New("connection refused")
	svc := NewEntryService(&failingStore{err: down}, newTestEngine(t), newTestLogger())
	ctx := context.Background()

	entry, err := svc.RecordEntry(ctx, "user-1", "2024-03-01", answers(0, 0, 0, 0, 0), "")
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, down)

	_, err = svc.ListEntries(ctx, "user-1", 10)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = svc.CountEntries(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	err = svc.ExportEntries(ctx, "user-1", io.Discard)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = svc.Trend(ctx, "user-1", 5)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = svc.SeverityDistribution(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestEntryService_SeverityDistribution(t *testing.T) {
	svc, _ := newTestEntryService(t)
	ctx := context.Background()

	_, err := svc.RecordEntry(ctx, "user-1", "2024-03-01", answers(3, 3, 1, 3, 3), "")
	require.NoError(t, err)
	_, err = svc.RecordEntry(ctx, "user-2", "2024-03-01", answers(3, 3, 1, 3, 3), "")
	require.NoError(t, err)

	dist, err := svc.SeverityDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Severity]int64{
		domain.NO_LARS:    0,
		domain.MINOR_LARS: 0,
		domain.MAJOR_LARS: 2,
	}, dist)
}

func TestEntryService_ListEntries(t *testing.T) {
	svc, _ := newTestEntryService(t)
	ctx := context.Background()

	empty, err := svc.ListEntries(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, date := range []string{"2024-03-02", "2024-03-04", "2024-03-03"} {
		_, err := svc.RecordEntry(ctx, "user-1", date, answers(1, 1, 1, 1, 1), "")
		require.NoError(t, err)
	}

	list, err := svc.ListEntries(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-03-04", list[0].Date)
	assert.Equal(t, "2024-03-03", list[1].Date)

	_, err = svc.ListEntries(ctx, "", 10)
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestEntryService_ListEntries_Limits(t *testing.T) {
	tests := []struct {
		requested int
		expected  int
	}{
		{0, DefaultListLimit},
		{-5, DefaultListLimit},
		{25, 25},
		{MaxListLimit, MaxListLimit},
		{MaxListLimit + 1, MaxListLimit},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit %d", tt.requested), func(t *testing.T) {
			store := &limitRecorder{}
			svc := NewEntryService(store, newTestEngine(t), newTestLogger())

			list, err := svc.ListEntries(context.Background(), "user-1", tt.requested)
			require.NoError(t, err)
			assert.NotNil(t, list)
			assert.Equal(t, tt.expected, store.limit)
		})
	}
}

func TestEntryService_CountAndExport(t *testing.T) {
	svc, _ := newTestEntryService(t)
	ctx := context.Background()

	_, err := svc.RecordEntry(ctx, "user-1", "2024-03-01", answers(0, 0, 0, 0, 0), "")
	require.NoError(t, err)

	count, err := svc.CountEntries(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportEntries(ctx, "user-1", &buf))
	assert.Contains(t, buf.String(), `"entry-001"`)

	_, err = svc.CountEntries(ctx, "")
	assert.Error(t, err)
	assert.Error(t, svc.ExportEntries(ctx, "", &buf))
}

func TestEntryService_ImportEntries(t *testing.T) {
	source, _ := newTestEntryService(t)
	target, _ := newTestEntryService(t)
	ctx := context.Background()

	_, err := source.RecordEntry(ctx, "user-1", "2024-03-01", answers(1, 1, 1, 1, 1), "")
	require.NoError(t, err)
	_, err = source.RecordEntry(ctx, "user-1", "2024-03-02", answers(0, 0, 0, 0, 0), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, source.ExportEntries(ctx, "user-1", &buf))
	export := buf.String()

	imported, skipped, err := target.ImportEntries(ctx, strings.NewReader(export))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)

	imported, skipped, err = target.ImportEntries(ctx, strings.NewReader(export))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 2, skipped)

	list, err := target.ListEntries(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-03-02", list[0].Date)

	_, _, err = target.ImportEntries(ctx, strings.NewReader(`{"version":"0.1","entries":[]}`))
	assert.Error(t, err)
}

func TestEntryService_ImportEntries_RejectsUnverifiedScores(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		incomplete bool
		field      string
	}{
		{
			name:       "Unanswered entry with fabricated score",
			doc:        `{"version":"1.0","entries":[{"id":"x1","user_id":"user-1","date":"2024-03-01","answers":{},"score":{"total_score":999,"severity":"BOGUS"},"created_at":"2024-03-01T08:00:00Z"}]}`,
			incomplete: true,
		},
		{
			name:  "Complete answers with tampered score",
			doc:   `{"version":"1.0","entries":[{"id":"x2","user_id":"user-1","date":"2024-03-01","answers":{"flatus_incontinence":0,"liquid_stool_incontinence":0,"frequency":0,"clustering":0,"urgency":0},"score":{"total_score":999,"severity":"BOGUS"},"created_at":"2024-03-01T08:00:00Z"}]}`,
			field: "score",
		},
		{
			name:  "Missing creation time",
			doc:   `{"version":"1.0","entries":[{"id":"x3","user_id":"user-1","date":"2024-03-01","answers":{"flatus_incontinence":0,"liquid_stool_incontinence":0,"frequency":0,"clustering":0,"urgency":0},"score":{"total_score":0,"severity":"NO_LARS"}}]}`,
			field: "created_at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestEntryService(t)
			ctx := context.Background()

			imported, _, err := svc.ImportEntries(ctx, strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Equal(t, 0, imported)

			if tt.incomplete {
				var iErr *domain.IncompleteAnswersError
				assert.True(t, errors.As(err, &iErr), "expected IncompleteAnswersError, got %v", err)
			} else {
				var vErr *domain.ValidationError
				require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
				assert.Equal(t, tt.field, vErr.Field)
			}

			count, err := store.Count(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)

			dist, err := svc.SeverityDistribution(ctx)
			require.NoError(t, err)
			assert.NotContains(t, dist, domain.Severity("BOGUS"))
		})
	}
}

func TestEntryService_Trend(t *testing.T) {
	tests := []struct {
		name      string
		series    []domain.Answers // oldest first
		direction TrendDirection
		change    int
	}{
		{
			name:      "No entries",
			series:    nil,
			direction: TREND_INSUFFICIENT_DATA,
		},
		{
			name:      "Single entry",
			series:    []domain.Answers{answers(0, 3, 1, 0, 2)},
			direction: TREND_INSUFFICIENT_DATA,
		},
		{
			name:      "Improving",
			series:    []domain.Answers{answers(3, 3, 1, 3, 3), answers(0, 3, 1, 0, 2)},
			direction: TREND_IMPROVING,
			change:    29 - 56,
		},
		{
			name:      "Worsening",
			series:    []domain.Answers{answers(0, 0, 3, 0, 0), answers(1, 0, 3, 0, 0)},
			direction: TREND_WORSENING,
			change:    7,
		},
		{
			name:      "Small moves are stable",
			series:    []domain.Answers{answers(1, 0, 3, 0, 0), answers(0, 1, 3, 0, 0)},
			direction: TREND_STABLE,
			change:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestEntryService(t)
			ctx := context.Background()

			for i, a := range tt.series {
				date := time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout)
				_, err := svc.RecordEntry(ctx, "user-1", date, a, "")
				require.NoError(t, err)
			}

			summary, err := svc.Trend(ctx, "user-1", 0)
			require.NoError(t, err)
			assert.Equal(t, DefaultTrendWindow, summary.Window)
			assert.Equal(t, len(tt.series), summary.Count)
			assert.Equal(t, tt.direction, summary.Direction)
			assert.Equal(t, tt.change, summary.Change)
		})
	}
}

func TestEntryService_TrendAggregates(t *testing.T) {
	svc, _ := newTestEntryService(t)
	ctx := context.Background()

	// totals 56, 0, 29 in date order
	series := []domain.Answers{answers(3, 3, 1, 3, 3), answers(0, 0, 3, 0, 0), answers(0, 3, 1, 0, 2)}
	for i, a := range series {
		date := time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout)
		_, err := svc.RecordEntry(ctx, "user-1", date, a, "")
		require.NoError(t, err)
	}

	summary, err := svc.Trend(ctx, "user-1", 3)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01", summary.From)
	assert.Equal(t, "2024-03-03", summary.To)
	assert.Equal(t, 29, summary.LatestScore)
	assert.Equal(t, domain.MINOR_LARS, summary.LatestSeverity)
	assert.Equal(t, 0, summary.MinScore)
	assert.Equal(t, 56, summary.MaxScore)
	assert.InDelta(t, 85.0/3.0, summary.AverageScore, 0.001)
	assert.Equal(t, map[domain.Severity]int{
		domain.MAJOR_LARS: 1,
		domain.NO_LARS:    1,
		domain.MINOR_LARS: 1,
	}, summary.SeverityCounts)

	// window of two drops the oldest entry
	recent, err := svc.Trend(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, recent.Count)
	assert.Equal(t, 29, recent.Change)
	assert.Equal(t, TREND_WORSENING, recent.Direction)
}
