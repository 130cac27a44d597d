package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/services"
)

// RateLimitMiddleware limits requests per client IP and route. A failing
// limiter lets the request through.
func RateLimitMiddleware(limiter services.RateLimiter, limit int, window time.Duration, log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		action := c.Request.Method + ":" + c.FullPath()
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP(), action, limit, window)
		if err != nil {
			log.WithError(err).WithField("client_ip", c.ClientIP()).Warn("Rate limiter unavailable")
			c.Next()
			return
		}

		if !allowed {
			Abort(c, services.ErrRateLimited.After(window))
			return
		}

		c.Next()
	}
}
