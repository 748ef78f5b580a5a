package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lars-symptom-tracker/internal/domain"
)

// Context keys set by the middleware chain
const (
	CorrelationIDKey = "correlation_id"
	UserIDKey        = "user_id"
	UserRoleKey      = "user_role"
)

// SecurityHeaders adds security headers to all responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")

		// Enforce HTTPS (only in production)
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		// Symptom data is health data
		c.Header("Cache-Control", "no-store")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")

		c.Next()
	}
}

// CorrelationID adds a unique correlation ID to each request for audit trails
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()
	}
}

// RequestTimeout bounds the context of every request.
// Handlers observe the deadline through c.Request.Context(); a request still unanswered
// when the deadline passes gets a 504.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			Abort(c, http.StatusGatewayTimeout, domain.ErrCodeInternalServer, "Request timeout")
		}
	}
}

type auditRecord struct {
	Timestamp     string `json:"timestamp"`
	CorrelationID any    `json:"correlation_id"`
	UserID        any    `json:"user_id,omitempty"`
	UserRole      any    `json:"user_role,omitempty"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Status        int    `json:"status"`
	Latency       string `json:"latency"`
	ClientIP      string `json:"client_ip"`
	UserAgent     string `json:"user_agent"`
	ResponseSize  int    `json:"response_size"`
}

// AuditLogger writes one JSON line per request to out.
// Query strings are left out so entry data never reaches the audit trail.
func AuditLogger(out io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output: out,
		Formatter: func(param gin.LogFormatterParams) string {
			line, err := json.Marshal(auditRecord{
				Timestamp:     param.TimeStamp.UTC().Format(time.RFC3339),
				CorrelationID: param.Keys[CorrelationIDKey],
				UserID:        param.Keys[UserIDKey],
				UserRole:      param.Keys[UserRoleKey],
				Method:        param.Method,
				Path:          param.Request.URL.Path,
				Status:        param.StatusCode,
				Latency:       param.Latency.String(),
				ClientIP:      param.ClientIP,
				UserAgent:     param.Request.UserAgent(),
				ResponseSize:  param.BodySize,
			})
			if err != nil {
				return ""
			}
			return string(line) + "\n"
		},
	})
}

// Abort stops the chain with a standardized error body
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, "", c.GetString(CorrelationIDKey)))
}
