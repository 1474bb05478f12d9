// Package user exposes the friends list, friend suggestions and unfriend
package user

import (
	"context"
	"net/http"
	"sort"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/user"
	"github.com/Ramsey-B/fern/internal/services/lifecycle"
	ctxutil "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Register registers user routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.DELETE("/:id/friendship", Unfriend)
}

// List returns the caller's friends when friends=true, otherwise friend
// suggestions filtered by the optional search term.
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "user_handler.List")
	defer span.End()

	userID := ctxutil.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ctx, cfg, err := ectoinject.GetContext[*config.Config](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get config")
	}

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

	ctx, users, err := ectoinject.GetContext[*user.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	friendsOnly, _ := strconv.ParseBool(c.QueryParam("friends"))

	var items []*models.User
	var totalCount int
	if friendsOnly {
		items, totalCount, err = users.ListFriends(ctx, userID, limit, offset)
	} else {
		items, totalCount, err = users.ListSuggested(ctx, userID, c.QueryParam("search"), limit, offset)
	}
	if err != nil {
		return err
	}

	summaries := make([]*models.UserSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, item.Summary())
	}

	if !friendsOnly {
		rankByMutualFriends(ctx, userID, summaries)
	}

	return c.JSON(http.StatusOK, models.UserListResponse{
		Items:      summaries,
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
	})
}

// rankByMutualFriends reorders suggestions so candidates sharing the most
// friends with the caller come first. Ranking is best-effort: when the graph
// mirror is disabled or unreachable the page keeps its database order.
func rankByMutualFriends(ctx context.Context, userID string, summaries []*models.UserSummary) {
	if len(summaries) < 2 {
		return
	}

	ctx, friendGraph, err := ectoinject.GetContext[*graph.FriendService](ctx)
	if err != nil {
		return
	}

	candidateIDs := make([]string, 0, len(summaries))
	for _, s := range summaries {
		candidateIDs = append(candidateIDs, s.ID)
	}

	counts, err := friendGraph.MutualFriendCounts(ctx, userID, candidateIDs)
	if err != nil || len(counts) == 0 {
		return
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return counts[summaries[i].ID] > counts[summaries[j].ID]
	})
}

// Unfriend removes the friendship between the caller and the given user
func Unfriend(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "user_handler.Unfriend")
	defer span.End()

	userID := ctxutil.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	friendID := c.Param("id")
	if friendID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "user id is required")
	}

	ctx, service, err := ectoinject.GetContext[*lifecycle.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get service")
	}

	if err := service.Unfriend(ctx, userID, friendID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
