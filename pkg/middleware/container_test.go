package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
)

func TestContainerActivatesOnRequestContext(t *testing.T) {
	container, err := ectoinject.NewDIDefaultContainer()
	require.NoError(t, err)
	require.NoError(t, ectoinject.RegisterInstance[*config.Config](container, &config.Config{AppName: "fern-test"}))

	e := echo.New()
	e.Use(Container(container))
	e.GET("/ping", func(c echo.Context) error {
		_, cfg, err := ectoinject.GetContext[*config.Config](c.Request().Context())
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, cfg.AppName)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fern-test", rec.Body.String())
}
