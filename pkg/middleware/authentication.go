package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// TokenVerifier resolves an opaque bearer token to the identity it was issued
// for. Implemented by the authtoken repository.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (userID string, email string, err error)
}

// Authentication validates the bearer token on each request and stamps the
// authenticated user onto the request context.
func Authentication(logger ectologger.Logger, verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx, span := tracing.StartSpan(ctx, "middleware.Authentication")
			defer span.End()

			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("request is missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer")
			}

			raw := strings.TrimPrefix(auth, "Bearer ")

			userID, email, err := verifier.Verify(ctx, raw)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx = appctx.SetUserID(ctx, userID)
			ctx = appctx.SetUserEmail(ctx, email)

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
