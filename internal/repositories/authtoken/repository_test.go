package authtoken_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/repositories/authtoken"
	"github.com/Ramsey-B/fern/internal/repositories/user"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "fern"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func createTestUser(t *testing.T, db database.DB) *models.User {
	t.Helper()
	users := user.NewRepository(db, getTestLogger())
	created, err := users.Create(context.Background(), &models.User{
		Email:        uuid.New().String() + "@example.com",
		DisplayName:  "Test User",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return created
}

func TestIssueAndVerify(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	defer db.Close()
	repo := authtoken.NewRepository(db, getTestLogger())
	ctx := context.Background()

	account := createTestUser(t, db)

	raw, err := repo.Issue(ctx, account.ID)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	userID, email, err := repo.Verify(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, account.ID, userID)
	assert.Equal(t, account.Email, email)
}

func TestVerifyUnknownToken(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	defer db.Close()
	repo := authtoken.NewRepository(db, getTestLogger())

	_, _, err := repo.Verify(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))
}

func TestDeleteRevokesToken(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	defer db.Close()
	repo := authtoken.NewRepository(db, getTestLogger())
	ctx := context.Background()

	account := createTestUser(t, db)

	raw, err := repo.Issue(ctx, account.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, raw))

	_, _, err = repo.Verify(ctx, raw)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))

	// deleting again is idempotent
	require.NoError(t, repo.Delete(ctx, raw))
}

func TestDeleteForUser(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	defer db.Close()
	repo := authtoken.NewRepository(db, getTestLogger())
	ctx := context.Background()

	account := createTestUser(t, db)

	first, err := repo.Issue(ctx, account.ID)
	require.NoError(t, err)
	second, err := repo.Issue(ctx, account.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteForUser(ctx, account.ID))

	_, _, err = repo.Verify(ctx, first)
	require.Error(t, err)
	_, _, err = repo.Verify(ctx, second)
	require.Error(t, err)
}
