package auth

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/authtoken"
	"github.com/Ramsey-B/fern/internal/repositories/user"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// stubDB backs the real repositories with an in-memory user table keyed by
// email, enough for the register/login/logout handler paths.
type stubDB struct {
	usersByEmail  map[string]*models.User
	tokensIssued  int
	tokensDeleted int
}

func newStubDB() *stubDB {
	return &stubDB{usersByEmail: make(map[string]*models.User)}
}

func (db *stubDB) seedUser(email, password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	account := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  "Seeded User",
		PasswordHash: string(hash),
	}
	db.usersByEmail[email] = account
	return account
}

func (db *stubDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	switch {
	case strings.HasPrefix(query, "INSERT INTO users"):
		email := args[1].(string)
		if _, exists := db.usersByEmail[email]; exists {
			return nil, &pq.Error{Code: "23505"}
		}
		db.usersByEmail[email] = &models.User{
			ID:           args[0].(string),
			Email:        email,
			DisplayName:  args[2].(string),
			PasswordHash: args[3].(string),
		}
	case strings.HasPrefix(query, "INSERT INTO auth_tokens"):
		db.tokensIssued++
	case strings.HasPrefix(query, "DELETE FROM auth_tokens"):
		db.tokensDeleted++
	}
	return driver.RowsAffected(1), nil
}

func (db *stubDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	account, ok := dest.(*models.User)
	if !ok {
		return sql.ErrNoRows
	}
	found, exists := db.usersByEmail[args[0].(string)]
	if !exists {
		return sql.ErrNoRows
	}
	*account = *found
	return nil
}

func (db *stubDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (db *stubDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, nil
}
func (db *stubDB) Close() error { return nil }
func (db *stubDB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (db *stubDB) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}
func (db *stubDB) Ping() error                           { return nil }
func (db *stubDB) PingContext(ctx context.Context) error { return nil }
func (db *stubDB) Rebind(query string) string            { return query }
func (db *stubDB) SetConnMaxLifetime(d time.Duration)    {}
func (db *stubDB) SetMaxIdleConns(n int)                 {}
func (db *stubDB) SetMaxOpenConns(n int)                 {}
func (db *stubDB) Stats() sql.DBStats                    { return sql.DBStats{} }
func (db *stubDB) Unsafe() *sqlx.DB                      { return nil }
func (db *stubDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, nil, nil
}

func newAuthServer(t *testing.T, db *stubDB) *echo.Echo {
	t.Helper()

	// Each test builds its own server; the container store is global and
	// rejects duplicate ids, so every fixture gets a unique container id.
	containerCfg := ectoinject.DefaultContainerConfig
	containerCfg.ID = uuid.New().String()
	container, err := ectoinject.NewDIContainer(containerCfg)
	require.NoError(t, err)

	cfg := &config.Config{BcryptCost: bcrypt.MinCost, PasswordMinLength: 8}
	require.NoError(t, ectoinject.RegisterInstance[*config.Config](container, cfg))
	require.NoError(t, ectoinject.RegisterInstance[*user.Repository](container, user.NewRepository(db, testLogger())))
	require.NoError(t, ectoinject.RegisterInstance[*authtoken.Repository](container, authtoken.NewRepository(db, testLogger())))

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	e.Use(middleware.Container(container))

	g := e.Group("/auth")
	Register(g)
	RegisterProtected(g)
	return e
}

func postJSON(e *echo.Echo, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRegisterIssuesToken(t *testing.T) {
	db := newStubDB()
	e := newAuthServer(t, db)

	rec := postJSON(e, "/auth/register", `{
		"email": "New.User@Example.com",
		"password": "supersecret",
		"password_confirmation": "supersecret",
		"display_name": "New User"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, 1, db.tokensIssued)

	// stored under the normalized email, with the password hashed
	account, ok := db.usersByEmail["new.user@example.com"]
	require.True(t, ok, "email must be lower-cased before storage")
	assert.NotEqual(t, "supersecret", account.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("supersecret")))
}

func TestRegisterPasswordMismatch(t *testing.T) {
	e := newAuthServer(t, newStubDB())

	rec := postJSON(e, "/auth/register", `{
		"email": "a@b.com",
		"password": "supersecret",
		"password_confirmation": "different",
		"display_name": "A"
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "passwords do not match")
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	e := newAuthServer(t, newStubDB())

	rec := postJSON(e, "/auth/register", `{
		"email": "a@b.com",
		"password": "short",
		"password_confirmation": "short",
		"display_name": "A"
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least 8 characters")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := newStubDB()
	db.seedUser("taken@example.com", "whatever1")
	e := newAuthServer(t, db)

	rec := postJSON(e, "/auth/register", `{
		"email": "Taken@Example.com",
		"password": "supersecret",
		"password_confirmation": "supersecret",
		"display_name": "Taken"
	}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginReturnsToken(t *testing.T) {
	db := newStubDB()
	db.seedUser("alice@example.com", "correct horse")
	e := newAuthServer(t, db)

	rec := postJSON(e, "/auth/login", `{"email": "Alice@Example.com", "password": "correct horse"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
}

func TestLoginDoesNotRevealAccounts(t *testing.T) {
	db := newStubDB()
	db.seedUser("alice@example.com", "correct horse")
	e := newAuthServer(t, db)

	wrongPassword := postJSON(e, "/auth/login", `{"email": "alice@example.com", "password": "wrong"}`)
	unknownEmail := postJSON(e, "/auth/login", `{"email": "ghost@example.com", "password": "wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)

	// the two failures must be indistinguishable
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestLogoutMissingToken(t *testing.T) {
	e := newAuthServer(t, newStubDB())

	rec := postJSON(e, "/auth/logout", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	db := newStubDB()
	e := newAuthServer(t, db)

	rec := postJSON(e, "/auth/logout", "", "Authorization", "Bearer sometoken")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, db.tokensDeleted)
}
