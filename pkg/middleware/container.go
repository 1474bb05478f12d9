package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/labstack/echo/v4"
)

// Container makes the DI container active on every request context so
// handlers can resolve dependencies with ectoinject.GetContext.
func Container(container ectocontainer.DIContainer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, err := ectoinject.SetActiveContainer(req.Context(), container.GetContainerID())
			if err != nil {
				return httperror.NewHTTPError(http.StatusInternalServerError, "failed to activate dependency container")
			}
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
