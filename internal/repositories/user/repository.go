// Package user handles user account persistence
package user

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

// Repository handles user persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new user repository
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

// Create inserts a new user. The email must already be normalized; a
// duplicate email returns 409.
func (r *Repository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.Create")
	defer span.End()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("users")
	sb.Cols("id", "email", "display_name", "password_hash", "created_at", "updated_at")
	sb.Values(user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt, user.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, httperror.NewHTTPError(http.StatusConflict, "an account with this email already exists")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create user")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": user.ID}).Info("Created user")
	return user, nil
}

// Get retrieves a user by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "email", "display_name", "password_hash", "created_at", "updated_at")
	sb.From("users")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("user %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get user")
	}

	return &user, nil
}

// GetByEmail retrieves a user by normalized email. Returns nil without an
// error when no account exists so login can fail without leaking which
// emails are registered.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.GetByEmail")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "email", "display_name", "password_hash", "created_at", "updated_at")
	sb.From("users")
	sb.Where(sb.Equal("email", models.NormalizeEmail(email)))

	query, args := sb.Build()
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get user by email")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get user")
	}

	return &user, nil
}

// ListFriends returns the friends of a user, paginated and ordered by email.
// The friendship table stores one row per pair, so the join reads both sides
// of the canonical edge.
func (r *Repository) ListFriends(ctx context.Context, userID string, limit, offset int) ([]*models.User, int, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.ListFriends")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("u.id", "u.email", "u.display_name", "u.password_hash", "u.created_at", "u.updated_at")
	sb.From("users u")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "friendships f",
		fmt.Sprintf("(f.user_a_id = u.id AND f.user_b_id = %s) OR (f.user_b_id = u.id AND f.user_a_id = %s)",
			sb.Var(userID), sb.Var(userID)))
	sb.OrderBy("u.email")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	users := []*models.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list friends")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list friends")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("friendships f")
	cb.Where(cb.Or(cb.Equal("f.user_a_id", userID), cb.Equal("f.user_b_id", userID)))

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count friends")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list friends")
	}

	return users, total, nil
}

// ListSuggested finds users the caller could befriend: everyone except the
// caller and their current friends, optionally narrowed by exact email or
// display-name prefix.
func (r *Repository) ListSuggested(ctx context.Context, userID, term string, limit, offset int) ([]*models.User, int, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.ListSuggested")
	defer span.End()

	build := func(sb *sqlbuilder.SelectBuilder) {
		sb.From("users")
		conds := []string{
			sb.NotEqual("id", userID),
			fmt.Sprintf(`NOT EXISTS (
				SELECT 1 FROM friendships f
				WHERE (f.user_a_id = users.id AND f.user_b_id = %s)
				   OR (f.user_b_id = users.id AND f.user_a_id = %s)
			)`, sb.Var(userID), sb.Var(userID)),
		}
		if term != "" {
			conds = append(conds, sb.Or(
				sb.Equal("email", models.NormalizeEmail(term)),
				sb.ILike("display_name", escapeLike(term)+"%"),
			))
		}
		sb.Where(conds...)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "email", "display_name", "password_hash", "created_at", "updated_at")
	build(sb)
	sb.OrderBy("email")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	users := []*models.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search users")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search users")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	build(cb)

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count search results")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search users")
	}

	return users, total, nil
}

// escapeLike escapes LIKE wildcards in user input so a prefix search can't
// be turned into a full wildcard scan.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
