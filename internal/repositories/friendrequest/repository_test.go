package friendrequest_test

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

	"github.com/Ramsey-B/fern/internal/repositories/friendrequest"
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

func assertStatusCode(t *testing.T, err error, want int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, want, httperror.GetStatusCode(err))
}

func TestCreateAndGetPending(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	defer db.Close()
	repo := friendrequest.NewRepository(db, getTestLogger())
	ctx := context.Background()

	alice := createTestUser(t, db)
	bob := createTestUser(t, db)

	created, err := repo.Create(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendRequestStatusPending, created.Status)

	fetched, err := repo.GetPending(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, alice.ID, *fetched.RequestorID)
	assert.Equal(t, bob.ID, *fetched.RequesteeID)
}

func TestDuplicatePendingIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	defer db.Close()
	repo := friendrequest.NewRepository(db, getTestLogger())
	ctx := context.Background()

	alice := createTestUser(t, db)
	bob := createTestUser(t, db)

	_, err := repo.Create(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	// the partial unique index rejects a second pending request in either
	// direction, without any pre-check
	_, err = repo.Create(ctx, alice.ID, bob.ID)
	assertStatusCode(t, err, http.StatusConflict)

	_, err = repo.Create(ctx, bob.ID, alice.ID)
	assertStatusCode(t, err, http.StatusConflict)
}

func TestHasPendingBetween(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	defer db.Close()
	repo := friendrequest.NewRepository(db, getTestLogger())
	ctx := context.Background()

	alice := createTestUser(t, db)
	bob := createTestUser(t, db)

	has, err := repo.HasPendingBetween(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = repo.Create(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	has, err = repo.HasPendingBetween(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasPendingBetween(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMarkAcceptedGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	defer db.Close()
	repo := friendrequest.NewRepository(db, getTestLogger())
	ctx := context.Background()

	alice := createTestUser(t, db)
	bob := createTestUser(t, db)

	created, err := repo.Create(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, repo.MarkAccepted(ctx, created.ID))

	// the terminal state is immutable: further transitions read as not found
	assertStatusCode(t, repo.MarkAccepted(ctx, created.ID), http.StatusNotFound)
	assertStatusCode(t, repo.MarkRejected(ctx, created.ID), http.StatusNotFound)

	_, err = repo.GetPending(ctx, created.ID)
	assertStatusCode(t, err, http.StatusNotFound)

	// an accepted request no longer blocks a new pending one
	_, err = repo.Create(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
}

func TestListPendingForRequestee(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	defer db.Close()
	repo := friendrequest.NewRepository(db, getTestLogger())
	ctx := context.Background()

	alice := createTestUser(t, db)
	bob := createTestUser(t, db)
	carol := createTestUser(t, db)

	_, err := repo.Create(ctx, alice.ID, carol.ID)
	require.NoError(t, err)
	_, err = repo.Create(ctx, bob.ID, carol.ID)
	require.NoError(t, err)

	items, totalCount, err := repo.ListPendingForRequestee(ctx, carol.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, totalCount)
	require.Len(t, items, 2)

	// oldest first, with both parties expanded
	assert.Equal(t, alice.ID, items[0].Requestor.ID)
	assert.Equal(t, alice.Email, items[0].Requestor.Email)
	assert.Equal(t, carol.ID, items[0].Requestee.ID)
	assert.Equal(t, bob.ID, items[1].Requestor.ID)

	// nothing pending for the requestor side
	items, totalCount, err = repo.ListPendingForRequestee(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, totalCount)
	assert.Empty(t, items)
}
