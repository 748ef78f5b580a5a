package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/lars-symptom-tracker/internal/domain"
)

// MaxRecentMessages bounds the conversation context forwarded to an assistant.
const MaxRecentMessages = 20

// Assistant answers natural-language questions about LARS.
// Implementations live outside this module; the core only depends on this contract.
type Assistant interface {
	Respond(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single chat turn.
type Request struct {
	Message string         `json:"message"`
	Context RequestContext `json:"context"`
}

// RequestContext is optional conversational context.
type RequestContext struct {
	UserRole       domain.Role `json:"user_role,omitempty"`
	RecentMessages []string    `json:"recent_messages,omitempty"`
}

// Source is a document the assistant drew from.
type Source struct {
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Excerpt    string  `json:"excerpt"`
}

// Response is the assistant's answer.
type Response struct {
	ResponseText      string   `json:"response_text"`
	Sources           []Source `json:"sources"`
	Confidence        float64  `json:"confidence"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// Validate checks the request before it is forwarded.
func (r *Request) Validate() error {
	if r == nil || strings.TrimSpace(r.Message) == "" {
		return domain.NewValidationError("message", "message is required", "")
	}
	if r.Context.UserRole != "" && !r.Context.UserRole.IsValid() {
		return domain.NewValidationError("user_role", "unknown role", r.Context.UserRole)
	}
	if len(r.Context.RecentMessages) > MaxRecentMessages {
		return domain.NewValidationError("recent_messages",
			fmt.Sprintf("at most %d recent messages are accepted", MaxRecentMessages), len(r.Context.RecentMessages))
	}
	return nil
}

// Validate checks a response from any Assistant implementation.
// Confidences must lie in [0,1] and the response text must be non-empty.
func Validate(resp *Response) error {
	if resp == nil {
		return fmt.Errorf("empty assistant response")
	}
	if strings.TrimSpace(resp.ResponseText) == "" {
		return fmt.Errorf("assistant response has no text")
	}
	if !validConfidence(resp.Confidence) {
		return fmt.Errorf("assistant confidence %v outside [0,1]", resp.Confidence)
	}
	for i, src := range resp.Sources {
		if !validConfidence(src.Confidence) {
			return fmt.Errorf("source %d confidence %v outside [0,1]", i, src.Confidence)
		}
		if strings.TrimSpace(src.Title) == "" {
			return fmt.Errorf("source %d has no title", i)
		}
	}
	return nil
}

func validConfidence(c float64) bool {
	return c >= 0 && c <= 1
}
