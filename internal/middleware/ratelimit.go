package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter implements fixed-window rate limiting backed by Redis. The
// limit applies per user when authenticated, per client IP otherwise.
type RateLimiter struct {
	redisClient *redis.Client
	requests    int
	window      time.Duration
}

// NewRateLimiter creates a rate limiter allowing requests per window
func NewRateLimiter(redisClient *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		requests:    requests,
		window:      window,
	}
}

// Middleware returns a Gin middleware enforcing the limit. Redis failures
// fail open so an unavailable cache does not take the API down.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, exists := c.Get("user_id"); exists {
			identifier = fmt.Sprintf("user:%v", userID)
		}

		count, ttl, err := rl.hit(c.Request.Context(), identifier)
		if err != nil {
			c.Next()
			return
		}

		remaining := rl.requests - count
		if remaining < 0 {
			remaining = 0
		}
		resetAt := time.Now().Add(ttl).Unix()

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if count > rl.requests {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":     "Rate limit exceeded",
				"limit":     rl.requests,
				"remaining": remaining,
				"reset_at":  resetAt,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// hit counts the request against the current window and returns the count
// and the window's remaining lifetime
func (rl *RateLimiter) hit(ctx context.Context, identifier string) (int, time.Duration, error) {
	key := fmt.Sprintf("ratelimit:%s", identifier)

	pipe := rl.redisClient.Pipeline()
	incr := pipe.Incr(ctx, key)
	// NX: only the first hit of a window sets the expiry, so the window does
	// not slide under sustained traffic.
	pipe.ExpireNX(ctx, key, rl.window)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("rate limit pipeline failed: %w", err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = rl.window
	}
	return int(incr.Val()), ttl, nil
}
