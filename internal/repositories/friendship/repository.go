// Package friendship handles the symmetric friends relation. Each edge is
// stored once in canonical order (lower UUID first).
package friendship

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles friendship edge persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new friendship repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CanonicalPair orders two user IDs so the same pair always maps to the
// same edge row regardless of which side initiated.
func CanonicalPair(userID, friendID string) (string, string) {
	if userID < friendID {
		return userID, friendID
	}
	return friendID, userID
}

// Add creates the friendship edge between two users. Adding an existing
// edge is a no-op; befriending yourself is an error. Add joins the
// transaction carried by ctx when one is open.
func (r *Repository) Add(ctx context.Context, userID, friendID string) error {
	ctx, span := tracing.StartSpan(ctx, "friendship.Repository.Add")
	defer span.End()

	if userID == friendID {
		return httperror.NewHTTPError(http.StatusBadRequest, "cannot befriend yourself")
	}

	a, b := CanonicalPair(userID, friendID)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("friendships")
	sb.Cols("user_a_id", "user_b_id", "created_at")
	sb.Values(a, b, time.Now().UTC())
	sb.SQL("ON CONFLICT (user_a_id, user_b_id) DO NOTHING")

	ownsTx := !database.HasOpenTx(ctx)
	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to add friendship")
	}
	if ownsTx {
		defer tx.Rollback(ctx)
	}

	query, args := sb.Build()
	if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
		r.logger.WithContext(txCtx).WithError(err).Error("Failed to add friendship")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to add friendship")
	}

	if ownsTx {
		if err := tx.Commit(txCtx); err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to add friendship")
		}
	}

	return nil
}

// Remove deletes the friendship edge between two users and reports whether
// an edge existed.
func (r *Repository) Remove(ctx context.Context, userID, friendID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "friendship.Repository.Remove")
	defer span.End()

	a, b := CanonicalPair(userID, friendID)

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("friendships")
	sb.Where(
		sb.Equal("user_a_id", a),
		sb.Equal("user_b_id", b),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to remove friendship")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to remove friendship")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Exists reports whether two users are friends
func (r *Repository) Exists(ctx context.Context, userID, friendID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "friendship.Repository.Exists")
	defer span.End()

	a, b := CanonicalPair(userID, friendID)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("1")
	sb.From("friendships")
	sb.Where(
		sb.Equal("user_a_id", a),
		sb.Equal("user_b_id", b),
	)

	query, args := sb.Build()
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check friendship")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check friendship")
	}

	return true, nil
}

// FriendIDs returns the IDs of all friends of a user
func (r *Repository) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "friendship.Repository.FriendIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("CASE WHEN user_a_id = " + sb.Var(userID) + " THEN user_b_id ELSE user_a_id END AS friend_id")
	sb.From("friendships")
	sb.Where(sb.Or(sb.Equal("user_a_id", userID), sb.Equal("user_b_id", userID)))

	query, args := sb.Build()
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list friend ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list friends")
	}

	return ids, nil
}
