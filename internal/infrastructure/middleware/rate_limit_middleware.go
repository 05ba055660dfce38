package middleware

import (
	"net"
	"net/http"
	"sync"

	"botlink/pkg/config"
	"botlink/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimiterStore keeps one limiter per remote peer.
type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
}

func newRateLimiterStore(r rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters:  make(map[string]*rate.Limiter),
		rate:      r,
		burstSize: burst,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(s.rate, s.burstSize)
		s.limiters[key] = limiter
	}
	return limiter
}

// peerKey identifies the caller. Data channel peers have no host:port
// address, so their whole address string is the key.
func peerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewRPCRateLimitMiddleware limits RPC calls per peer.
func NewRPCRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	store := newRateLimiterStore(rate.Limit(cfg.RPC.RequestsPerSecond), cfg.RPC.Burst)

	return func(c *gin.Context) {
		if !store.getLimiter(peerKey(c.Request)).Allow() {
			appErr := errors.NewRateLimitError()
			c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			})
			return
		}
		c.Next()
	}
}
