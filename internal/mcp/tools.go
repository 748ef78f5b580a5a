package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/service"
)

// AnswerParams carries one selected level (0-3) per question. Omitted questions are reported as unanswered.
type AnswerParams struct {
	FlatusIncontinence      *int `json:"flatus_incontinence,omitempty" jsonschema:"level 0-3 from never to at least once per day"`
	LiquidStoolIncontinence *int `json:"liquid_stool_incontinence,omitempty" jsonschema:"level 0-3 from never to at least once per day"`
	Frequency               *int `json:"frequency,omitempty" jsonschema:"level 0-3: more than 7, 4-7, 1-3 or less than 1 times per day"`
	Clustering              *int `json:"clustering,omitempty" jsonschema:"level 0-3 from never to at least once per day"`
	Urgency                 *int `json:"urgency,omitempty" jsonschema:"level 0-3 from never to at least once per day"`
}

func (p AnswerParams) answers() domain.Answers {
	out := domain.Answers{}
	for key, level := range map[domain.QuestionKey]*int{
		domain.FLATUS_INCONTINENCE:       p.FlatusIncontinence,
		domain.LIQUID_STOOL_INCONTINENCE: p.LiquidStoolIncontinence,
		domain.FREQUENCY:                 p.Frequency,
		domain.CLUSTERING:                p.Clustering,
		domain.URGENCY:                   p.Urgency,
	} {
		if level != nil {
			out[key] = *level
		}
	}
	return out
}

// CalculateScoreParams defines parameters for calculate_lars_score
type CalculateScoreParams struct {
	Answers AnswerParams `json:"answers"`
}

// RecordEntryParams defines parameters for record_symptom_entry
type RecordEntryParams struct {
	UserID  string       `json:"user_id" jsonschema:"owner of the entry"`
	Date    string       `json:"date" jsonschema:"calendar date YYYY-MM-DD"`
	Answers AnswerParams `json:"answers"`
	Notes   string       `json:"notes,omitempty" jsonschema:"optional free text, at most 2000 characters"`
}

// ListEntriesParams defines parameters for list_symptom_entries
type ListEntriesParams struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum entries to return, default 100"`
}

// TrendParams defines parameters for symptom_trend
type TrendParams struct {
	UserID string `json:"user_id"`
	Window int    `json:"window,omitempty" jsonschema:"number of most recent entries to summarize, default 10"`
}

// ExportParams defines parameters for export_symptom_entries
type ExportParams struct {
	UserID string `json:"user_id"`
}

// ImportParams defines parameters for import_symptom_entries
type ImportParams struct {
	FileName string `json:"file_name" jsonschema:"name of an export file in the export directory"`
}

// QuestionnaireParams is empty; get_questionnaire takes no arguments.
type QuestionnaireParams struct{}

// ScoreResult is returned by calculate_lars_score
type ScoreResult struct {
	Score          *domain.ScoreResult    `json:"score"`
	Interpretation service.Interpretation `json:"interpretation"`
}

// ListEntriesResult is returned by list_symptom_entries
type ListEntriesResult struct {
	UserID  string                 `json:"user_id"`
	Count   int                    `json:"count"`
	Entries []*domain.SymptomEntry `json:"entries"`
}

// ExportResult is returned by export_symptom_entries
type ExportResult struct {
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
	Message  string `json:"message"`
}

// ImportResult is returned by import_symptom_entries
type ImportResult struct {
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Message  string `json:"message"`
}

// registerTools registers every tool with the MCP SDK.
func (s *LiteServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "calculate_lars_score",
		Description: "Score a completed LARS questionnaire: total (0-56), severity (NO_LARS, MINOR_LARS, MAJOR_LARS), dominant pattern and guidance. Nothing is stored.",
	}, s.handleCalculateScore)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "record_symptom_entry",
		Description: "Score a completed questionnaire and record it as an immutable dated symptom entry for a user.",
	}, s.handleRecordEntry)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_symptom_entries",
		Description: "List a user's recorded symptom entries, most recent first.",
	}, s.handleListEntries)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "symptom_trend",
		Description: "Summarize a user's most recent entries: average, range and whether symptoms are improving, worsening or stable.",
	}, s.handleTrend)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_questionnaire",
		Description: "Return the five LARS questions with their answer options and point values.",
	}, s.handleQuestionnaire)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_symptom_entries",
		Description: "Write all of a user's entries to a JSON file in the export directory.",
	}, s.handleExport)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "import_symptom_entries",
		Description: "Import entries from a JSON export in the export directory. Entries already recorded are skipped.",
	}, s.handleImport)

	s.logger.WithField("tool_count", 7).Info("Registered MCP tools")
}

func (s *LiteServer) handleCalculateScore(ctx context.Context, req *mcp.CallToolRequest, params CalculateScoreParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "calculate_lars_score").Debug("Tool invoked")

	result, err := s.engine.CalculateScore(params.Answers.answers())
	if err != nil {
		return toolError(err), nil, nil
	}
	return jsonResult(ScoreResult{Score: result, Interpretation: service.Interpret(result)})
}

func (s *LiteServer) handleRecordEntry(ctx context.Context, req *mcp.CallToolRequest, params RecordEntryParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "record_symptom_entry").Debug("Tool invoked")

	entry, err := s.entries.RecordEntry(ctx, params.UserID, params.Date, params.Answers.answers(), params.Notes)
	if err != nil {
		return toolError(err), nil, nil
	}
	return jsonResult(struct {
		Entry          *domain.SymptomEntry   `json:"entry"`
		Interpretation service.Interpretation `json:"interpretation"`
	}{entry, service.Interpret(entry.Score)})
}

func (s *LiteServer) handleListEntries(ctx context.Context, req *mcp.CallToolRequest, params ListEntriesParams) (*mcp.CallToolResult, any, error) {
	list, err := s.entries.ListEntries(ctx, params.UserID, params.Limit)
	if err != nil {
		return toolError(err), nil, nil
	}
	return jsonResult(ListEntriesResult{
		UserID:  strings.TrimSpace(params.UserID),
		Count:   len(list),
		Entries: list,
	})
}

func (s *LiteServer) handleTrend(ctx context.Context, req *mcp.CallToolRequest, params TrendParams) (*mcp.CallToolResult, any, error) {
	summary, err := s.entries.Trend(ctx, params.UserID, params.Window)
	if err != nil {
		return toolError(err), nil, nil
	}
	return jsonResult(summary)
}

func (s *LiteServer) handleQuestionnaire(ctx context.Context, req *mcp.CallToolRequest, params QuestionnaireParams) (*mcp.CallToolResult, any, error) {
	return jsonResult(map[string]any{
		"questions": s.engine.Questionnaire(),
		"max_score": s.engine.MaxTotal(),
	})
}

func (s *LiteServer) handleExport(ctx context.Context, req *mcp.CallToolRequest, params ExportParams) (*mcp.CallToolResult, any, error) {
	userID := strings.TrimSpace(params.UserID)
	count, err := s.entries.CountEntries(ctx, userID)
	if err != nil {
		return toolError(err), nil, nil
	}

	exportDir := s.config.ExportDir()
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return toolError(fmt.Errorf("failed to create export directory: %w", err)), nil, nil
	}

	filename := fmt.Sprintf("entries_%s_%s.json", safeName(userID), time.Now().UTC().Format("20060102_150405"))
	filePath := filepath.Join(exportDir, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return toolError(fmt.Errorf("failed to create export file: %w", err)), nil, nil
	}

	err = s.entries.ExportEntries(ctx, userID, file)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to write export file: %w", closeErr)
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to export symptom entries")
		if rmErr := os.Remove(filePath); rmErr != nil {
			s.logger.WithError(rmErr).WithField("path", filePath).Warn("Failed to remove partial export file")
		}
		return toolError(err), nil, nil
	}

	return jsonResult(ExportResult{
		FilePath: filePath,
		Count:    count,
		Message:  fmt.Sprintf("Exported %d entries to %s", count, filePath),
	})
}

func (s *LiteServer) handleImport(ctx context.Context, req *mcp.CallToolRequest, params ImportParams) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(params.FileName)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return toolError(domain.NewValidationError("file_name", "must be a file name inside the export directory", params.FileName)), nil, nil
	}

	file, err := os.Open(filepath.Join(s.config.ExportDir(), name))
	if err != nil {
		return toolError(domain.NewValidationError("file_name", "file not found in export directory", name)), nil, nil
	}
	defer file.Close()

	imported, skipped, err := s.entries.ImportEntries(ctx, file)
	if err != nil {
		return toolError(err), nil, nil
	}

	return jsonResult(ImportResult{
		Imported: imported,
		Skipped:  skipped,
		Message:  fmt.Sprintf("Imported %d entries, skipped %d duplicates", imported, skipped),
	})
}

// jsonResult renders v as the tool's text content.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// toolError reports err to the client as a tool-level error the model can act on.
func toolError(err error) *mcp.CallToolResult {
	var incomplete *domain.IncompleteAnswersError
	var validation *domain.ValidationError

	var text string
	switch {
	case errors.As(err, &incomplete):
		text = domain.ErrCodeIncompleteAnswers + ": " + incomplete.Error()
	case errors.As(err, &validation):
		text = domain.ErrCodeValidation + ": " + validation.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		text = domain.ErrCodeStoreUnavailable + ": could not save or read entries, try again"
	default:
		text = domain.ErrCodeInternalServer + ": " + err.Error()
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// safeName keeps user IDs usable as file name fragments.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
