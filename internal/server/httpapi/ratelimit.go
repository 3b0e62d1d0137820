package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	clients map[string]*rate.Limiter
}

// newClientLimiter allows requests per window for each client.
func newClientLimiter(requests int, window time.Duration) *clientLimiter {
	return &clientLimiter{
		every:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		clients: make(map[string]*rate.Limiter),
	}
}

func (l *clientLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			// a full bucket carries no state worth keeping
			for k, c := range l.clients {
				if c.Tokens() >= float64(l.burst) {
					delete(l.clients, k)
				}
			}
		}
		lim = rate.NewLimiter(l.every, l.burst)
		l.clients[ip] = lim
	}
	return lim.Allow()
}

// rateLimit answers 429 once a client used up its budget for the group.
func (s *Server) rateLimit(l *clientLimiter, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if l.allow(ip) {
			c.Next()
			return
		}

		s.logger.Warn(c.Request.Context(), "Rate limit exceeded", "path", c.Request.URL.Path, "ip", ip, "endpoint", endpoint)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{
			Code:    http.StatusTooManyRequests,
			Message: "Too many " + endpoint + " requests",
		})
	}
}
