// Package auth exposes registration, login and logout
package auth

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/authtoken"
	"github.com/Ramsey-B/fern/internal/repositories/user"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers auth routes. logout requires the bearer middleware and
// is wired separately in main.
func Register(g *echo.Group) {
	g.POST("/register", RegisterAccount)
	g.POST("/login", Login)
}

// RegisterProtected registers the auth routes that need an authenticated
// caller
func RegisterProtected(g *echo.Group) {
	g.POST("/logout", Logout)
}

// RegisterAccount creates a new account and returns a bearer token
func RegisterAccount(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "auth_handler.RegisterAccount")
	defer span.End()

	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("rejected_input").Inc()
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Password != req.PasswordConfirmation {
		metrics.RegistrationsTotal.WithLabelValues("rejected_input").Inc()
		return httperror.NewHTTPError(http.StatusBadRequest, "passwords do not match")
	}

	ctx, cfg, err := ectoinject.GetContext[*config.Config](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get config")
	}

	if len(req.Password) < cfg.PasswordMinLength {
		metrics.RegistrationsTotal.WithLabelValues("rejected_input").Inc()
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "password must be at least %d characters", cfg.PasswordMinLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cfg.BcryptCost)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to hash password")
	}

	ctx, users, err := ectoinject.GetContext[*user.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	created, err := users.Create(ctx, &models.User{
		Email:        models.NormalizeEmail(req.Email),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hash),
	})
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return err
	}

	ctx, tokens, err := ectoinject.GetContext[*authtoken.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	raw, err := tokens.Issue(ctx, created.ID)
	if err != nil {
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	return c.JSON(http.StatusCreated, models.TokenResponse{Token: raw})
}

// Login exchanges credentials for a bearer token. Unknown emails and bad
// passwords fail identically so the response does not reveal which emails
// are registered.
func Login(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "auth_handler.Login")
	defer span.End()

	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, users, err := ectoinject.GetContext[*user.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	account, err := users.GetByEmail(ctx, req.Email)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return err
	}
	if account == nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return httperror.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return httperror.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}

	ctx, tokens, err := ectoinject.GetContext[*authtoken.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	raw, err := tokens.Issue(ctx, account.ID)
	if err != nil {
		return err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return c.JSON(http.StatusOK, models.TokenResponse{Token: raw})
}

// Logout revokes the presented bearer token
func Logout(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "auth_handler.Logout")
	defer span.End()

	raw := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	ctx, tokens, err := ectoinject.GetContext[*authtoken.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := tokens.Delete(ctx, raw); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
