package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lars-symptom-tracker/internal/assistant"
	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/middleware"
)

const (
	wsMaxMessageBytes = 64 << 10
	wsIdleTimeout     = 5 * time.Minute
	wsWriteTimeout    = 10 * time.Second
	wsTurnTimeout     = 60 * time.Second
)

// Chat frames sent to the client
const (
	frameResponse = "response"
	frameError    = "error"
)

type chatFrame struct {
	Type     string              `json:"type"`
	Response *assistant.Response `json:"response,omitempty"`
	Error    *domain.APIError    `json:"error,omitempty"`
}

type chatMessage struct {
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleAssistantWS upgrades to a websocket chat session.
// The server keeps the recent turns of the session and forwards them as context.
func (s *Server) handleAssistantWS(c *gin.Context) {
	if s.assistant == nil {
		s.respondError(c, domain.ErrAssistantUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	role := middleware.Role(c)
	log := s.logger.WithFields(logrus.Fields{
		"user_id":        middleware.UserID(c),
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
	})
	log.Debug("Assistant session opened")

	conn.SetReadLimit(wsMaxMessageBytes)

	var history []string
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("Assistant session closed unexpectedly")
			}
			return
		}

		var msg chatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if !s.writeFrame(conn, chatFrame{
				Type:  frameError,
				Error: domain.NewAPIError(domain.ErrCodeValidation, "message must be a JSON object", "", ""),
			}) {
				return
			}
			continue
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), wsTurnTimeout)
		resp, err := s.ask(ctx, role, assistantRequest{Message: msg.Message, RecentMessages: history})
		cancel()

		frame := chatFrame{Type: frameResponse, Response: resp}
		if err != nil {
			_, apiErr := errorStatus(err, c.GetString(middleware.CorrelationIDKey))
			frame = chatFrame{Type: frameError, Error: apiErr}
		} else {
			history = appendHistory(history, msg.Message, resp.ResponseText)
		}

		if !s.writeFrame(conn, frame) {
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame chatFrame) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.WithError(err).Debug("Failed to write assistant frame")
		return false
	}
	return true
}

// appendHistory keeps the most recent turns within the assistant's context bound
func appendHistory(history []string, turns ...string) []string {
	history = append(history, turns...)
	if over := len(history) - assistant.MaxRecentMessages; over > 0 {
		history = append([]string(nil), history[over:]...)
	}
	return history
}
