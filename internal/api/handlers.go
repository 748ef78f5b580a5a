package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lars-symptom-tracker/internal/assistant"
	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/middleware"
	"github.com/lars-symptom-tracker/internal/service"
)

const healthCheckTimeout = 5 * time.Second

type scoreRequest struct {
	Answers domain.Answers `json:"answers"`
}

type scoreResponse struct {
	Score          *domain.ScoreResult    `json:"score"`
	Interpretation service.Interpretation `json:"interpretation"`
}

type recordEntryRequest struct {
	Date    string         `json:"date"`
	Answers domain.Answers `json:"answers"`
	Notes   string         `json:"notes"`
}

type entryResponse struct {
	Entry          *domain.SymptomEntry   `json:"entry"`
	Interpretation service.Interpretation `json:"interpretation"`
}

type listResponse struct {
	UserID  string                 `json:"user_id"`
	Count   int                    `json:"count"`
	Entries []*domain.SymptomEntry `json:"entries"`
}

type assistantRequest struct {
	Message        string   `json:"message"`
	RecentMessages []string `json:"recent_messages"`
}

type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth checks every registered component
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	code := http.StatusOK
	components := make(map[string]componentHealth, len(names))
	for _, name := range names {
		if err := s.healthChecks[name].Health(ctx); err != nil {
			s.logger.WithError(err).WithField("component", name).Warn("Health check failed")
			components[name] = componentHealth{Status: "unhealthy", Error: err.Error()}
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = componentHealth{Status: "healthy"}
	}

	c.JSON(code, gin.H{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    Version,
		"components": components,
		"assistant":  s.assistant != nil,
	})
}

func (s *Server) handleQuestionnaire(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"questions": s.engine.Questionnaire(),
		"max_score": s.engine.MaxTotal(),
	})
}

// handleScore scores answers without recording them
func (s *Server) handleScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := s.engine.CalculateScore(req.Answers)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, scoreResponse{Score: result, Interpretation: service.Interpret(result)})
}

func (s *Server) handleRecordEntry(c *gin.Context) {
	var req recordEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	entry, err := s.entries.RecordEntry(c.Request.Context(), middleware.UserID(c), req.Date, req.Answers, req.Notes)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entryResponse{Entry: entry, Interpretation: service.Interpret(entry.Score)})
}

func (s *Server) handleListOwnEntries(c *gin.Context) {
	s.listEntries(c, middleware.UserID(c))
}

// handleListPatientEntries lets care-team roles read a patient's entries
func (s *Server) handleListPatientEntries(c *gin.Context) {
	patientID := c.Param("user_id")

	s.logger.WithFields(logrus.Fields{
		"viewer_id":   middleware.UserID(c),
		"viewer_role": middleware.Role(c),
		"patient_id":  patientID,
	}).Info("Patient entries accessed")

	s.listEntries(c, patientID)
}

func (s *Server) listEntries(c *gin.Context, userID string) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}

	list, err := s.entries.ListEntries(c.Request.Context(), userID, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponse{UserID: userID, Count: len(list), Entries: list})
}

func (s *Server) handleTrend(c *gin.Context) {
	window, ok := intQuery(c, "window")
	if !ok {
		return
	}

	summary, err := s.entries.Trend(c.Request.Context(), middleware.UserID(c), window)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleExport(c *gin.Context) {
	userID := middleware.UserID(c)

	var buf bytes.Buffer
	if err := s.entries.ExportEntries(c.Request.Context(), userID, &buf); err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="lars-entries.json"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

func (s *Server) handleSeverityDistribution(c *gin.Context) {
	dist, err := s.entries.SeverityDistribution(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	var total int64
	for _, n := range dist {
		total += n
	}

	c.JSON(http.StatusOK, gin.H{
		"total":        total,
		"distribution": dist,
	})
}

func (s *Server) handleAssistant(c *gin.Context) {
	var req assistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.ask(c.Request.Context(), middleware.Role(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ask forwards a chat turn on behalf of a caller with the given role
func (s *Server) ask(ctx context.Context, role domain.Role, req assistantRequest) (*assistant.Response, error) {
	if s.assistant == nil {
		return nil, domain.ErrAssistantUnavailable
	}

	areq := &assistant.Request{
		Message: req.Message,
		Context: assistant.RequestContext{
			UserRole:       role,
			RecentMessages: req.RecentMessages,
		},
	}
	if err := areq.Validate(); err != nil {
		return nil, err
	}

	resp, err := s.assistant.Respond(ctx, areq)
	if err != nil {
		return nil, err
	}
	if err := assistant.Validate(resp); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAssistantUnavailable, err)
	}
	return resp, nil
}

// intQuery parses an optional integer query parameter; absent means zero
func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return n, true
}
