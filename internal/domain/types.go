// Package domain contains the core entities for Low Anterior Resection Syndrome (LARS)
// symptom tracking: the LARS questionnaire, its score result and dated symptom entries.
//
// Reference: Emmertsen KJ, Laurberg S. Low anterior resection syndrome score: development
// and validation of a symptom-based scoring system for bowel dysfunction after low anterior
// resection for rectal cancer. Ann Surg. 2012;255(5):922-8.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// QuestionKey identifies one of the five LARS questionnaire items.
type QuestionKey string

const (
	FLATUS_INCONTINENCE       QuestionKey = "flatus_incontinence"
	LIQUID_STOOL_INCONTINENCE QuestionKey = "liquid_stool_incontinence"
	FREQUENCY                 QuestionKey = "frequency"
	CLUSTERING                QuestionKey = "clustering"
	URGENCY                   QuestionKey = "urgency"
)

// QuestionKeys lists the questionnaire items in presentation order.
var QuestionKeys = []QuestionKey{
	FLATUS_INCONTINENCE,
	LIQUID_STOOL_INCONTINENCE,
	FREQUENCY,
	CLUSTERING,
	URGENCY,
}

// IsValid reports whether the key names a questionnaire item.
func (k QuestionKey) IsValid() bool {
	switch k {
	case FLATUS_INCONTINENCE, LIQUID_STOOL_INCONTINENCE, FREQUENCY, CLUSTERING, URGENCY:
		return true
	default:
		return false
	}
}

// String returns the string representation of the key.
func (k QuestionKey) String() string {
	return string(k)
}

// Severity is the clinical LARS category derived from the total score.
type Severity string

const (
	NO_LARS    Severity = "NO_LARS"
	MINOR_LARS Severity = "MINOR_LARS"
	MAJOR_LARS Severity = "MAJOR_LARS"
)

// Upper bounds (inclusive) of the severity bands.
const (
	NoLARSMaxScore    = 20
	MinorLARSMaxScore = 29
)

// SeverityForScore maps a total score onto its severity band.
func SeverityForScore(total int) Severity {
	switch {
	case total <= NoLARSMaxScore:
		return NO_LARS
	case total <= MinorLARSMaxScore:
		return MINOR_LARS
	default:
		return MAJOR_LARS
	}
}

// IsValid validates the severity category.
func (s Severity) IsValid() bool {
	switch s {
	case NO_LARS, MINOR_LARS, MAJOR_LARS:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// Label returns the clinical name used in reports.
func (s Severity) Label() string {
	switch s {
	case NO_LARS:
		return "No LARS"
	case MINOR_LARS:
		return "Minor LARS"
	case MAJOR_LARS:
		return "Major LARS"
	default:
		return "Unknown"
	}
}

// Pattern classifies which symptom cluster contributes more to the score.
type Pattern string

const (
	FREQUENCY_DOMINANT    Pattern = "FREQUENCY_DOMINANT"
	INCONTINENCE_DOMINANT Pattern = "INCONTINENCE_DOMINANT"
)

// IsValid validates the symptom pattern.
func (p Pattern) IsValid() bool {
	switch p {
	case FREQUENCY_DOMINANT, INCONTINENCE_DOMINANT:
		return true
	default:
		return false
	}
}

// String returns the string representation of the pattern.
func (p Pattern) String() string {
	return string(p)
}

// Answers maps each question to the selected level index (0..3).
type Answers map[QuestionKey]int

// Clone returns a copy that does not share storage with a.
func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// AnswersFromStrings converts loosely typed answers (as decoded from tool or form input).
func AnswersFromStrings(in map[string]int) Answers {
	out := make(Answers, len(in))
	for k, v := range in {
		out[QuestionKey(k)] = v
	}
	return out
}

// ScoreResult is the outcome of scoring one complete questionnaire.
type ScoreResult struct {
	TotalScore        int                 `json:"total_score"`
	Severity          Severity            `json:"severity"`
	Pattern           Pattern             `json:"pattern"`
	Breakdown         map[QuestionKey]int `json:"breakdown"`
	FrequencyGroup    int                 `json:"frequency_group"`
	IncontinenceGroup int                 `json:"incontinence_group"`
}

// LogFields returns structured logging fields for audit trails.
func (r *ScoreResult) LogFields() map[string]any {
	return map[string]any{
		"total_score":        r.TotalScore,
		"severity":           string(r.Severity),
		"pattern":            string(r.Pattern),
		"frequency_group":    r.FrequencyGroup,
		"incontinence_group": r.IncontinenceGroup,
	}
}

// DateLayout is the calendar date format used for entry dates.
const DateLayout = "2006-01-02"

// MaxNotesLength bounds the free-text note attached to an entry.
const MaxNotesLength = 2000

// SymptomEntry is an immutable, user-owned record of one completed questionnaire.
type SymptomEntry struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Date      string       `json:"date"`
	Answers   Answers      `json:"answers"`
	Notes     string       `json:"notes,omitempty"`
	Score     *ScoreResult `json:"score"`
	CreatedAt time.Time    `json:"created_at"`
}

// Validate checks the stored shape of an entry before it is persisted.
func (e *SymptomEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry validation: %w", errors.New("ID is required"))
	}
	if e.UserID == "" {
		return NewValidationError("user_id", "user ID is required", e.UserID)
	}
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	if e.Score == nil {
		return fmt.Errorf("entry validation: %w", errors.New("score is required"))
	}
	if e.CreatedAt.IsZero() {
		return NewValidationError("created_at", "creation time is required", e.CreatedAt)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD calendar date. Dates such as 2024-02-30 are rejected.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, NewValidationError("date", "date must be a valid calendar date (YYYY-MM-DD)", s)
	}
	return t, nil
}

// Validation errors for entry integrity
var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateEntry       = errors.New("symptom entry already exists")
	ErrStoreUnavailable     = errors.New("symptom entry store unavailable")
	ErrAssistantUnavailable = errors.New("assistant unavailable")
	ErrForbidden            = errors.New("forbidden")
)
