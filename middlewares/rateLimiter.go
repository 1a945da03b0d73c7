package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window limiter keyed by client IP.
// Without a client it uses the shared connection, and passes requests through while Redis is down.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := rl.client
	if client == nil {
		client = config.GetRedisDB()
	}
	if client == nil {
		c.Next()
		return
	}
	key := "ratelimit:" + c.ClientIP()
	ctx := c.Request.Context()

	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := client.Expire(ctx, key, rl.window).Err(); err != nil {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}
