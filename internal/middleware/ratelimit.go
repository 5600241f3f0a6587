package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errcode"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/response"
)

const rateLimitKeys = 10000

// rateLimiter admits one request per key per window. Entries age out of the LRU
// after the window, so a present key means the caller is still throttled.
type rateLimiter struct {
	window time.Duration
	seen   *expirable.LRU[string, struct{}]
}

func newRateLimiter(window time.Duration) *rateLimiter {
	return &rateLimiter{
		window: window,
		seen:   expirable.NewLRU[string, struct{}](rateLimitKeys, nil, window),
	}
}

func RateLimit(window time.Duration) gin.HandlerFunc {
	if window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return newRateLimiter(window).handle
}

func (l *rateLimiter) allow(key string) bool {
	if l.seen.Contains(key) {
		return false
	}
	l.seen.Add(key, struct{}{})
	return true
}

func (l *rateLimiter) handle(c *gin.Context) {
	ip := c.ClientIP()
	uid := c.GetString(ContextUserIDKey)
	if uid == "" {
		uid = "0"
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, uid, c.Request.Method, path}, "|")
	if !l.allow(key) {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("user_id", uid),
			zap.String("path", path),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	c.Next()
}
