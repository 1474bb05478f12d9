// Package friendrequest exposes the friend request lifecycle endpoints
package friendrequest

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/friendrequest"
	"github.com/Ramsey-B/fern/internal/services/lifecycle"
	ctxutil "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers friend request routes. The caller attaches any
// throttling middleware to the send route.
func Register(g *echo.Group, sendMiddleware ...echo.MiddlewareFunc) {
	g.POST("", Send, sendMiddleware...)
	g.GET("/pending", ListPending)
	g.POST("/:id/accept", Accept)
	g.POST("/:id/reject", Reject)
}

// Send creates a pending friend request from the caller to the requestee
func Send(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "friendrequest_handler.Send")
	defer span.End()

	userID := ctxutil.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req models.SendFriendRequestRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*lifecycle.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get service")
	}

	request, err := service.Send(ctx, userID, req.RequesteeID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, request)
}

// ListPending returns the pending requests addressed to the caller
func ListPending(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "friendrequest_handler.ListPending")
	defer span.End()

	userID := ctxutil.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ctx, cfg, err := ectoinject.GetContext[*config.Config](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get config")
	}

	limit, offset := pagination(c, cfg)

	ctx, repo, err := ectoinject.GetContext[*friendrequest.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.ListPendingForRequestee(ctx, userID, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.FriendRequestListResponse{
		Items:      items,
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
	})
}

// Accept accepts a pending friend request addressed to the caller
func Accept(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "friendrequest_handler.Accept")
	defer span.End()

	userID := ctxutil.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	requestID := c.Param("id")
	if requestID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "request id is required")
	}

	ctx, service, err := ectoinject.GetContext[*lifecycle.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get service")
	}

	if err := service.Accept(ctx, requestID, userID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Reject rejects a pending friend request addressed to the caller
func Reject(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "friendrequest_handler.Reject")
	defer span.End()

	userID := ctxutil.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	requestID := c.Param("id")
	if requestID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "request id is required")
	}

	ctx, service, err := ectoinject.GetContext[*lifecycle.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get service")
	}

	if err := service.Reject(ctx, requestID, userID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func pagination(c echo.Context, cfg *config.Config) (int, int) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit < 1 {
		limit = cfg.DefaultPageSize
	}
	if limit > cfg.MaxPageSize {
		limit = cfg.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
