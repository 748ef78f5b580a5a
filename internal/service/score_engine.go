package service

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/lars-symptom-tracker/internal/domain"
)

// ScoreEngine scores completed LARS questionnaires against a point table.
// It holds no mutable state after construction and is safe for concurrent use.
type ScoreEngine struct {
	logger *logrus.Logger
	table  domain.PointTable
}

// NewScoreEngine creates a score engine. A nil table selects domain.DefaultPointTable.
func NewScoreEngine(logger *logrus.Logger, table domain.PointTable) (*ScoreEngine, error) {
	if table == nil {
		table = domain.DefaultPointTable()
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid point table: %w", err)
	}

	// copy so callers cannot mutate the table after validation
	owned := make(domain.PointTable, len(table))
	for k, row := range table {
		owned[k] = row
	}

	return &ScoreEngine{logger: logger, table: owned}, nil
}

// PointTable returns a copy of the table the engine scores against.
func (e *ScoreEngine) PointTable() domain.PointTable {
	out := make(domain.PointTable, len(e.table))
	for k, row := range e.table {
		out[k] = row
	}
	return out
}

// Questionnaire returns the questionnaire definition with this engine's points.
func (e *ScoreEngine) Questionnaire() []domain.Question {
	return domain.Questionnaire(e.table)
}

// MaxTotal returns the highest total this engine can produce.
func (e *ScoreEngine) MaxTotal() int {
	return e.table.MaxTotal()
}

// CalculateScore converts a complete answer set into a score result.
// Any unanswered question, unknown key or out-of-range level yields an
// *domain.IncompleteAnswersError and no result.
func (e *ScoreEngine) CalculateScore(answers domain.Answers) (*domain.ScoreResult, error) {
	if err := e.checkAnswers(answers); err != nil {
		e.logger.WithError(err).Debug("Rejected incomplete questionnaire")
		return nil, err
	}

	breakdown := make(map[domain.QuestionKey]int, len(domain.QuestionKeys))
	total := 0
	for _, key := range domain.QuestionKeys {
		points, _ := e.table.Points(key, answers[key])
		breakdown[key] = points
		total += points
	}

	frequencyGroup := breakdown[domain.FREQUENCY] + breakdown[domain.CLUSTERING]
	incontinenceGroup := breakdown[domain.FLATUS_INCONTINENCE] +
		breakdown[domain.LIQUID_STOOL_INCONTINENCE] +
		breakdown[domain.URGENCY]

	result := &domain.ScoreResult{
		TotalScore:        total,
		Severity:          domain.SeverityForScore(total),
		Pattern:           determinePattern(frequencyGroup, incontinenceGroup),
		Breakdown:         breakdown,
		FrequencyGroup:    frequencyGroup,
		IncontinenceGroup: incontinenceGroup,
	}

	e.logger.WithFields(result.LogFields()).Debug("Calculated LARS score")

	return result, nil
}

// determinePattern resolves ties to incontinence-dominant.
func determinePattern(frequencyGroup, incontinenceGroup int) domain.Pattern {
	if frequencyGroup > incontinenceGroup {
		return domain.FREQUENCY_DOMINANT
	}
	return domain.INCONTINENCE_DOMINANT
}

func (e *ScoreEngine) checkAnswers(answers domain.Answers) error {
	var missing, invalid []domain.QuestionKey

	for _, key := range domain.QuestionKeys {
		level, ok := answers[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		if _, valid := e.table.Points(key, level); !valid {
			invalid = append(invalid, key)
		}
	}

	var unknown []domain.QuestionKey
	for key := range answers {
		if !key.IsValid() {
			unknown = append(unknown, key)
		}
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	invalid = append(invalid, unknown...)

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	return &domain.IncompleteAnswersError{Missing: missing, Invalid: invalid}
}
