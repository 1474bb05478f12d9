package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// RateLimit throttles the wrapped route per authenticated user with a redis
// sliding window. A nil limiter disables throttling entirely.
func RateLimit(logger ectologger.Logger, limiter *redis.RateLimiter, key string, limit int64, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil {
				return next(c)
			}

			ctx := c.Request().Context()
			ctx, span := tracing.StartSpan(ctx, "middleware.RateLimit")
			defer span.End()

			userID := appctx.GetUserID(ctx)
			if userID == "" {
				// unauthenticated requests are rejected downstream
				return next(c)
			}

			result, err := limiter.Allow(ctx, key+":"+userID, limit, window)
			if err != nil {
				// fail open: a broken limiter should not take the API down
				logger.WithContext(ctx).WithError(err).Warn("rate limiter unavailable, allowing request")
				return next(c)
			}

			if !result.Allowed {
				metrics.RateLimitedTotal.Inc()
				retryIn := result.RetryIn.Round(time.Second)
				c.Response().Header().Set("Retry-After", retryIn.String())
				return httperror.NewHTTPErrorf(http.StatusTooManyRequests, "rate limit exceeded, retry in %s", retryIn)
			}

			return next(c)
		}
	}
}
