// Package authtoken persists the opaque bearer tokens issued at registration
// and login. Only the SHA-256 digest of a token is stored.
package authtoken

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
	"github.com/Ramsey-B/fern/pkg/token"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles auth token persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new auth token repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Issue mints a new token for a user and stores its digest. The raw token is
// returned to the caller exactly once and never persisted.
func (r *Repository) Issue(ctx context.Context, userID string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "authtoken.Repository.Issue")
	defer span.End()

	raw, digest, err := token.New()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to generate token")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("auth_tokens")
	sb.Cols("digest", "user_id", "created_at", "last_used_at")
	sb.Values(digest, userID, now, now)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to store token")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	return raw, nil
}

type tokenRow struct {
	Digest string `db:"digest"`
	UserID string `db:"user_id"`
	Email  string `db:"email"`
}

// Verify resolves a raw bearer token to its owner and touches last_used_at.
// Unknown tokens fail with 401. Verify satisfies middleware.TokenVerifier.
func (r *Repository) Verify(ctx context.Context, rawToken string) (string, string, error) {
	ctx, span := tracing.StartSpan(ctx, "authtoken.Repository.Verify")
	defer span.End()

	digest := token.Digest(rawToken)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("t.digest", "t.user_id", "u.email")
	sb.From("auth_tokens t")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "users u", "u.id = t.user_id")
	sb.Where(sb.Equal("t.digest", digest))

	query, args := sb.Build()
	var row tokenRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", httperror.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to verify token")
		return "", "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to verify token")
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("auth_tokens")
	ub.Set(ub.Assign("last_used_at", time.Now().UTC()))
	ub.Where(ub.Equal("digest", digest))

	touchQuery, touchArgs := ub.Build()
	if _, err := r.db.ExecContext(ctx, touchQuery, touchArgs...); err != nil {
		// The token is still valid; a failed touch only loses freshness.
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to touch token last_used_at")
	}

	return row.UserID, row.Email, nil
}

// Delete revokes a token. Revoking an unknown token succeeds so logout is
// idempotent.
func (r *Repository) Delete(ctx context.Context, rawToken string) error {
	ctx, span := tracing.StartSpan(ctx, "authtoken.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("auth_tokens")
	sb.Where(sb.Equal("digest", token.Digest(rawToken)))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete token")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete token")
	}

	return nil
}

// DeleteForUser revokes every token belonging to a user
func (r *Repository) DeleteForUser(ctx context.Context, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "authtoken.Repository.DeleteForUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("auth_tokens")
	sb.Where(sb.Equal("user_id", userID))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete user tokens")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete tokens")
	}

	return nil
}
