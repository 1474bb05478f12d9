// Package friendrequest handles friend request persistence and the
// pending -> accepted/rejected state machine.
package friendrequest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles friend request persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new friend request repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

// Create inserts a pending friend request. The partial unique index on the
// pair enforces at most one pending request per pair, in either direction;
// a collision maps to 409.
func (r *Repository) Create(ctx context.Context, requestorID, requesteeID string) (*models.FriendRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "friendrequest.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	request := &models.FriendRequest{
		ID:          uuid.New().String(),
		RequestorID: &requestorID,
		RequesteeID: &requesteeID,
		Status:      models.FriendRequestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("friend_requests")
	sb.Cols("id", "requestor_id", "requestee_id", "status", "created_at", "updated_at")
	sb.Values(request.ID, requestorID, requesteeID, request.Status, request.CreatedAt, request.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, httperror.NewHTTPError(http.StatusConflict, "a pending friend request already exists between these users")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create friend request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create friend request")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":           request.ID,
		"requestor_id": requestorID,
		"requestee_id": requesteeID,
	}).Info("Created friend request")
	return request, nil
}

// GetPending retrieves a friend request by ID, restricted to pending status.
// Requests in a terminal state are reported as not found, which is what makes
// terminal states unreachable through the transition endpoints.
func (r *Repository) GetPending(ctx context.Context, id string) (*models.FriendRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "friendrequest.Repository.GetPending")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "requestor_id", "requestee_id", "status", "created_at", "updated_at")
	sb.From("friend_requests")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.FriendRequestStatusPending),
	)

	query, args := sb.Build()
	var request models.FriendRequest
	if err := r.db.GetContext(ctx, &request, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("pending friend request %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get friend request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get friend request")
	}

	return &request, nil
}

// HasPendingBetween reports whether a pending request exists between two
// users in either direction
func (r *Repository) HasPendingBetween(ctx context.Context, userAID, userBID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "friendrequest.Repository.HasPendingBetween")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("1")
	sb.From("friend_requests")
	sb.Where(
		sb.Equal("status", models.FriendRequestStatusPending),
		sb.Or(
			sb.And(sb.Equal("requestor_id", userAID), sb.Equal("requestee_id", userBID)),
			sb.And(sb.Equal("requestor_id", userBID), sb.Equal("requestee_id", userAID)),
		),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check pending friend request")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check friend request")
	}

	return true, nil
}

// pendingRow carries a pending request joined with both user summaries.
// The summary columns are nullable because a deleted account leaves the
// request behind with a NULL side.
type pendingRow struct {
	models.FriendRequest
	RequestorEmail *string `db:"requestor_email"`
	RequestorName  *string `db:"requestor_name"`
	RequesteeEmail *string `db:"requestee_email"`
	RequesteeName  *string `db:"requestee_name"`
}

func (row *pendingRow) toResponse() *models.FriendRequestResponse {
	resp := &models.FriendRequestResponse{
		ID:        row.ID,
		Status:    row.Status,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.RequestorID != nil && row.RequestorEmail != nil {
		resp.Requestor = &models.UserSummary{
			ID:          *row.RequestorID,
			Email:       *row.RequestorEmail,
			DisplayName: derefOrEmpty(row.RequestorName),
		}
	}
	if row.RequesteeID != nil && row.RequesteeEmail != nil {
		resp.Requestee = &models.UserSummary{
			ID:          *row.RequesteeID,
			Email:       *row.RequesteeEmail,
			DisplayName: derefOrEmpty(row.RequesteeName),
		}
	}
	return resp
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListPendingForRequestee returns the pending requests addressed to a user,
// oldest first, with requestor and requestee summaries attached.
func (r *Repository) ListPendingForRequestee(ctx context.Context, requesteeID string, limit, offset int) ([]*models.FriendRequestResponse, int, error) {
	ctx, span := tracing.StartSpan(ctx, "friendrequest.Repository.ListPendingForRequestee")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"fr.id", "fr.requestor_id", "fr.requestee_id", "fr.status", "fr.created_at", "fr.updated_at",
		"ru.email AS requestor_email", "ru.display_name AS requestor_name",
		"eu.email AS requestee_email", "eu.display_name AS requestee_name",
	)
	sb.From("friend_requests fr")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "users ru", "ru.id = fr.requestor_id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "users eu", "eu.id = fr.requestee_id")
	sb.Where(
		sb.Equal("fr.requestee_id", requesteeID),
		sb.Equal("fr.status", models.FriendRequestStatusPending),
	)
	sb.OrderBy("fr.created_at")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	rows := []*pendingRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending friend requests")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list friend requests")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("friend_requests")
	cb.Where(
		cb.Equal("requestee_id", requesteeID),
		cb.Equal("status", models.FriendRequestStatusPending),
	)

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count pending friend requests")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list friend requests")
	}

	responses := make([]*models.FriendRequestResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, row.toResponse())
	}

	return responses, total, nil
}

// MarkAccepted flips a pending request to accepted. The status guard in the
// WHERE clause makes terminal states immutable: a request that was already
// accepted or rejected reads as not found, same as GetPending. MarkAccepted
// joins the transaction carried by ctx when one is open.
func (r *Repository) MarkAccepted(ctx context.Context, id string) error {
	return r.markTerminal(ctx, id, models.FriendRequestStatusAccepted)
}

// MarkRejected flips a pending request to rejected, with the same pending
// guard as MarkAccepted.
func (r *Repository) MarkRejected(ctx context.Context, id string) error {
	return r.markTerminal(ctx, id, models.FriendRequestStatusRejected)
}

func (r *Repository) markTerminal(ctx context.Context, id string, status models.FriendRequestStatus) error {
	ctx, span := tracing.StartSpan(ctx, "friendrequest.Repository.markTerminal")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("friend_requests")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.FriendRequestStatusPending),
	)

	ownsTx := !database.HasOpenTx(ctx)
	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update friend request")
	}
	if ownsTx {
		defer tx.Rollback(ctx)
	}

	query, args := sb.Build()
	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(txCtx).WithError(err).Error("Failed to update friend request status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update friend request")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("pending friend request %s not found", id))
	}

	if ownsTx {
		if err := tx.Commit(txCtx); err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update friend request")
		}
	}

	return nil
}
