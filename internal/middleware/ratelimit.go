package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/lars-symptom-tracker/internal/domain"
)

const defaultMaxClients = 10000

// RateLimiter keeps one token bucket per client in a bounded LRU.
// Clients are identified by X-User-ID when present, otherwise by remote IP.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter creates a limiter allowing rps requests per second per client.
func NewRateLimiter(rps float64, burst, maxClients int) (*RateLimiter, error) {
	if rps <= 0 {
		return nil, fmt.Errorf("requests per second must be positive")
	}
	if burst <= 0 {
		burst = int(math.Ceil(rps))
	}
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}

	clients, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, fmt.Errorf("failed to create client cache: %w", err)
	}

	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: clients,
	}, nil
}

// Allow reports whether the client may make a request now.
func (r *RateLimiter) Allow(client string) bool {
	return r.limiter(client).Allow()
}

// Clients returns how many clients are tracked.
func (r *RateLimiter) Clients() int {
	return r.clients.Len()
}

func (r *RateLimiter) limiter(client string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.clients.Get(client); ok {
		return l
	}
	l := rate.NewLimiter(r.limit, r.burst)
	r.clients.Add(client, l)
	return l
}

// Middleware rejects clients over their budget with 429.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(r.limit))))

	return func(c *gin.Context) {
		if !r.Allow(clientKey(c)) {
			c.Header("Retry-After", retryAfter)
			Abort(c, http.StatusTooManyRequests, domain.ErrCodeRateLimit, "too many requests")
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}
