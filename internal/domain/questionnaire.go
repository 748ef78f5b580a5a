package domain

import "fmt"

// LevelCount is the number of ordinal answer levels per question.
const LevelCount = 4

// PointTable holds the point contribution of each answer level, per question.
// Frequency is not monotonic in its level index, so every score is a lookup.
type PointTable map[QuestionKey][LevelCount]int

// DefaultPointTable returns the point table used by the tracker.
func DefaultPointTable() PointTable {
	return PointTable{
		FLATUS_INCONTINENCE:       {0, 7, 9, 11},
		LIQUID_STOOL_INCONTINENCE: {0, 8, 11, 13},
		// >7/day, 4-7/day, 1-3/day, <1/day
		FREQUENCY:  {0, 5, 0, 0},
		CLUSTERING: {0, 8, 10, 11},
		URGENCY:    {0, 9, 11, 16},
	}
}

// Validate ensures the table covers every question with non-negative points.
func (t PointTable) Validate() error {
	for _, key := range QuestionKeys {
		row, ok := t[key]
		if !ok {
			return fmt.Errorf("point table: missing row for %s", key)
		}
		for level, points := range row {
			if points < 0 {
				return fmt.Errorf("point table: negative points for %s level %d", key, level)
			}
		}
	}
	for key := range t {
		if !key.IsValid() {
			return fmt.Errorf("point table: unknown question %q", key)
		}
	}
	return nil
}

// Points returns the points for a question and level, and whether the pair is valid.
func (t PointTable) Points(key QuestionKey, level int) (int, bool) {
	row, ok := t[key]
	if !ok || level < 0 || level >= LevelCount {
		return 0, false
	}
	return row[level], true
}

// MaxPoints returns the highest contribution a question can make.
func (t PointTable) MaxPoints(key QuestionKey) int {
	max := 0
	for _, p := range t[key] {
		if p > max {
			max = p
		}
	}
	return max
}

// MaxTotal returns the highest achievable total score.
func (t PointTable) MaxTotal() int {
	total := 0
	for _, key := range QuestionKeys {
		total += t.MaxPoints(key)
	}
	return total
}

// Option is one selectable answer of a question.
type Option struct {
	Level  int    `json:"level"`
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// Question is a questionnaire item as shown to the patient.
type Question struct {
	Key     QuestionKey `json:"key"`
	Prompt  string      `json:"prompt"`
	Options []Option    `json:"options"`
}

var occurrenceLabels = [LevelCount]string{
	"No, never",
	"Yes, less than once per week",
	"Yes, at least once per week",
	"Yes, at least once per day",
}

var frequencyLabels = [LevelCount]string{
	"More than 7 times per day (24 hours)",
	"4-7 times per day (24 hours)",
	"1-3 times per day (24 hours)",
	"Less than once per day (24 hours)",
}

var prompts = map[QuestionKey]string{
	FLATUS_INCONTINENCE:       "Do you ever have occasions when you cannot control your flatus (wind)?",
	LIQUID_STOOL_INCONTINENCE: "Do you ever have any accidental leakage of liquid stool?",
	FREQUENCY:                 "How often do you open your bowels?",
	CLUSTERING:                "Do you ever have to open your bowels again within one hour of the last bowel opening?",
	URGENCY:                   "Do you ever have such a strong urge to open your bowels that you have to rush to the toilet?",
}

// Questionnaire returns the ordered questionnaire definition for the given table.
func Questionnaire(table PointTable) []Question {
	questions := make([]Question, 0, len(QuestionKeys))
	for _, key := range QuestionKeys {
		labels := occurrenceLabels
		if key == FREQUENCY {
			labels = frequencyLabels
		}
		row := table[key]
		options := make([]Option, LevelCount)
		for level := 0; level < LevelCount; level++ {
			options[level] = Option{Level: level, Label: labels[level], Points: row[level]}
		}
		questions = append(questions, Question{Key: key, Prompt: prompts[key], Options: options})
	}
	return questions
}
