package service

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lars-symptom-tracker/internal/domain"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEngine(t *testing.T) *ScoreEngine {
	t.Helper()
	engine, err := NewScoreEngine(newTestLogger(), nil)
	require.NoError(t, err)
	return engine
}

func answers(flatus, liquid, frequency, clustering, urgency int) domain.Answers {
	return domain.Answers{
		domain.FLATUS_INCONTINENCE:       flatus,
		domain.LIQUID_STOOL_INCONTINENCE: liquid,
		domain.FREQUENCY:                 frequency,
		domain.CLUSTERING:                clustering,
		domain.URGENCY:                   urgency,
	}
}

func TestScoreEngine_CalculateScore(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name              string
		answers           domain.Answers
		total             int
		severity          domain.Severity
		pattern           domain.Pattern
		frequencyGroup    int
		incontinenceGroup int
	}{
		{
			name:              "Liquid leakage with urgency",
			answers:           answers(0, 3, 1, 0, 2),
			total:             29,
			severity:          domain.MINOR_LARS,
			pattern:           domain.INCONTINENCE_DOMINANT,
			frequencyGroup:    5,
			incontinenceGroup: 24,
		},
		{
			name:              "All lowest",
			answers:           answers(0, 0, 3, 0, 0),
			total:             0,
			severity:          domain.NO_LARS,
			pattern:           domain.INCONTINENCE_DOMINANT,
			frequencyGroup:    0,
			incontinenceGroup: 0,
		},
		{
			name:              "All maximum with 4-7 per day",
			answers:           answers(3, 3, 1, 3, 3),
			total:             56,
			severity:          domain.MAJOR_LARS,
			pattern:           domain.INCONTINENCE_DOMINANT,
			frequencyGroup:    16,
			incontinenceGroup: 40,
		},
		{
			name:              "All top levels with more than 7 per day",
			answers:           answers(3, 3, 0, 3, 3),
			total:             51,
			severity:          domain.MAJOR_LARS,
			pattern:           domain.INCONTINENCE_DOMINANT,
			frequencyGroup:    11,
			incontinenceGroup: 40,
		},
		{
			name:              "Clustering dominant",
			answers:           answers(0, 0, 1, 3, 0),
			total:             16,
			severity:          domain.NO_LARS,
			pattern:           domain.FREQUENCY_DOMINANT,
			frequencyGroup:    16,
			incontinenceGroup: 0,
		},
		{
			name:              "Flatus and urgency at 20",
			answers:           answers(2, 0, 0, 0, 2),
			total:             20,
			severity:          domain.NO_LARS,
			pattern:           domain.INCONTINENCE_DOMINANT,
			frequencyGroup:    0,
			incontinenceGroup: 20,
		},
		{
			name:              "Mild across the board",
			answers:           answers(1, 0, 1, 0, 2),
			total:             23,
			severity:          domain.MINOR_LARS,
			pattern:           domain.INCONTINENCE_DOMINANT,
			frequencyGroup:    5,
			incontinenceGroup: 18,
		},
		{
			name:              "Lowest non-zero levels",
			answers:           answers(1, 1, 1, 0, 1),
			total:             29,
			severity:          domain.MINOR_LARS,
			pattern:           domain.INCONTINENCE_DOMINANT,
			frequencyGroup:    5,
			incontinenceGroup: 24,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.CalculateScore(tt.answers)
			require.NoError(t, err)

			assert.Equal(t, tt.total, result.TotalScore)
			assert.Equal(t, tt.severity, result.Severity)
			assert.Equal(t, tt.pattern, result.Pattern)
			assert.Equal(t, tt.frequencyGroup, result.FrequencyGroup)
			assert.Equal(t, tt.incontinenceGroup, result.IncontinenceGroup)
			assert.Len(t, result.Breakdown, len(domain.QuestionKeys))
			assert.LessOrEqual(t, result.TotalScore, engine.MaxTotal())
		})
	}
}

func TestScoreEngine_SeverityBoundaries(t *testing.T) {
	// single-question tables make the totals exact
	table := domain.PointTable{
		domain.FLATUS_INCONTINENCE:       {0, 20, 21, 29},
		domain.LIQUID_STOOL_INCONTINENCE: {0, 0, 0, 0},
		domain.FREQUENCY:                 {0, 0, 0, 0},
		domain.CLUSTERING:                {0, 0, 0, 0},
		domain.URGENCY:                   {0, 1, 0, 0},
	}
	engine, err := NewScoreEngine(newTestLogger(), table)
	require.NoError(t, err)

	tests := []struct {
		name     string
		answers  domain.Answers
		total    int
		severity domain.Severity
	}{
		{"20 is no LARS", answers(1, 0, 0, 0, 0), 20, domain.NO_LARS},
		{"21 is minor", answers(2, 0, 0, 0, 0), 21, domain.MINOR_LARS},
		{"29 is minor", answers(3, 0, 0, 0, 0), 29, domain.MINOR_LARS},
		{"30 is major", answers(3, 0, 0, 0, 1), 30, domain.MAJOR_LARS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.CalculateScore(tt.answers)
			require.NoError(t, err)
			assert.Equal(t, tt.total, result.TotalScore)
			assert.Equal(t, tt.severity, result.Severity)
		})
	}
}

func TestScoreEngine_PatternTieIsIncontinenceDominant(t *testing.T) {
	table := domain.DefaultPointTable()
	table[domain.CLUSTERING] = [domain.LevelCount]int{0, 8, 10, 9}
	engine, err := NewScoreEngine(newTestLogger(), table)
	require.NoError(t, err)

	// clustering 9 vs urgency 9
	result, err := engine.CalculateScore(answers(0, 0, 0, 3, 1))
	require.NoError(t, err)

	assert.Equal(t, result.FrequencyGroup, result.IncontinenceGroup)
	assert.Equal(t, domain.INCONTINENCE_DOMINANT, result.Pattern)
}

func TestScoreEngine_FrequencyIsLookup(t *testing.T) {
	engine := newTestEngine(t)

	expected := []int{0, 5, 0, 0}
	for level, points := range expected {
		result, err := engine.CalculateScore(answers(0, 0, level, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, points, result.Breakdown[domain.FREQUENCY], "frequency level %d", level)
	}
}

func TestScoreEngine_MissingAnswers(t *testing.T) {
	engine := newTestEngine(t)

	for _, key := range domain.QuestionKeys {
		t.Run(string(key), func(t *testing.T) {
			a := answers(1, 1, 1, 1, 1)
			delete(a, key)

			result, err := engine.CalculateScore(a)
			assert.Nil(t, result)

			var incomplete *domain.IncompleteAnswersError
			require.True(t, errors.As(err, &incomplete))
			assert.Equal(t, []domain.QuestionKey{key}, incomplete.Missing)
			assert.Empty(t, incomplete.Invalid)
		})
	}

	t.Run("empty answers", func(t *testing.T) {
		_, err := engine.CalculateScore(domain.Answers{})
		var incomplete *domain.IncompleteAnswersError
		require.True(t, errors.As(err, &incomplete))
		assert.Equal(t, domain.QuestionKeys, incomplete.Missing)
	})

	t.Run("nil answers", func(t *testing.T) {
		_, err := engine.CalculateScore(nil)
		var incomplete *domain.IncompleteAnswersError
		require.True(t, errors.As(err, &incomplete))
		assert.Len(t, incomplete.Missing, len(domain.QuestionKeys))
	})
}

func TestScoreEngine_InvalidAnswers(t *testing.T) {
	engine := newTestEngine(t)

	outOfRange := answers(1, 4, 1, -1, 1)
	_, err := engine.CalculateScore(outOfRange)
	var incomplete *domain.IncompleteAnswersError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []domain.QuestionKey{domain.LIQUID_STOOL_INCONTINENCE, domain.CLUSTERING}, incomplete.Invalid)
	assert.Empty(t, incomplete.Missing)

	unknown := answers(1, 1, 1, 1, 1)
	unknown[domain.QuestionKey("bloating")] = 2
	_, err = engine.CalculateScore(unknown)
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []domain.QuestionKey{"bloating"}, incomplete.Invalid)
}

func TestScoreEngine_Deterministic(t *testing.T) {
	engine := newTestEngine(t)
	a := answers(2, 1, 1, 2, 3)

	first, err := engine.CalculateScore(a)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := engine.CalculateScore(a)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScoreEngine_ConcurrentUse(t *testing.T) {
	engine := newTestEngine(t)
	want, err := engine.CalculateScore(answers(3, 2, 1, 1, 2))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := engine.CalculateScore(answers(3, 2, 1, 1, 2))
			if err != nil {
				errs <- err
				return
			}
			if got.TotalScore != want.TotalScore {
				errs <- errors.New("score mismatch under concurrency")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestNewScoreEngine_RejectsInvalidTable(t *testing.T) {
	table := domain.DefaultPointTable()
	delete(table, domain.URGENCY)

	engine, err := NewScoreEngine(newTestLogger(), table)
	assert.Error(t, err)
	assert.Nil(t, engine)
}

func TestNewScoreEngine_CopiesTable(t *testing.T) {
	table := domain.DefaultPointTable()
	engine, err := NewScoreEngine(newTestLogger(), table)
	require.NoError(t, err)

	table[domain.URGENCY] = [domain.LevelCount]int{0, 0, 0, 100}

	result, err := engine.CalculateScore(answers(0, 0, 0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 16, result.TotalScore)
}
