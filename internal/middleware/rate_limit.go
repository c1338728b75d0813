package middlewares

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prefeitura-rio/searsia-node/internal/models"
)

// visitorTTL é o tempo sem requisições até um IP ser esquecido
const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limita requisições por IP do cliente. Os limitadores de IPs
// inativos são descartados enquanto ctx estiver vivo.
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for ip, v := range visitors {
					if time.Since(v.lastSeen) > visitorTTL {
						delete(visitors, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()
		v, exists := visitors[ip]
		if !exists {
			v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			visitors[ip] = v
		}
		v.lastSeen = time.Now()
		mu.Unlock()

		if !v.limiter.Allow() {
			logger.Debug("Requisição limitada", zap.String("client_ip", ip), zap.String("request_id", RequestIDFrom(c)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.NewErrorResponse("too many requests"))
			return
		}
		c.Next()
	}
}
