package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool                     { return !t.committed && !t.rolledBack }
func (t *fakeTx) Commit(ctx context.Context) error { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}
func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}

type fakeDB struct {
	tx       *fakeTx
	beginErr error
}

func (db *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	if db.beginErr != nil {
		return ctx, nil, db.beginErr
	}
	return ctx, db.tx, nil
}

type fakeLedger struct {
	requests    map[string]*models.FriendRequest
	pending     map[string]bool
	createErr   error
	created     []*models.FriendRequest
	accepted    []string
	rejected    []string
	acceptedErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		requests: make(map[string]*models.FriendRequest),
		pending:  make(map[string]bool),
	}
}

func (l *fakeLedger) Create(ctx context.Context, requestorID, requesteeID string) (*models.FriendRequest, error) {
	if l.createErr != nil {
		return nil, l.createErr
	}
	request := &models.FriendRequest{
		ID:          "req-" + requestorID + "-" + requesteeID,
		RequestorID: &requestorID,
		RequesteeID: &requesteeID,
		Status:      models.FriendRequestStatusPending,
	}
	l.requests[request.ID] = request
	l.pending[pairKey(requestorID, requesteeID)] = true
	l.created = append(l.created, request)
	return request, nil
}

func (l *fakeLedger) GetPending(ctx context.Context, id string) (*models.FriendRequest, error) {
	request, ok := l.requests[id]
	if !ok || request.Status != models.FriendRequestStatusPending {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "pending friend request not found")
	}
	return request, nil
}

func (l *fakeLedger) HasPendingBetween(ctx context.Context, a, b string) (bool, error) {
	return l.pending[pairKey(a, b)], nil
}

func (l *fakeLedger) MarkAccepted(ctx context.Context, id string) error {
	if l.acceptedErr != nil {
		return l.acceptedErr
	}
	l.requests[id].Status = models.FriendRequestStatusAccepted
	l.accepted = append(l.accepted, id)
	l.clearPending(id)
	return nil
}

func (l *fakeLedger) MarkRejected(ctx context.Context, id string) error {
	l.requests[id].Status = models.FriendRequestStatusRejected
	l.rejected = append(l.rejected, id)
	l.clearPending(id)
	return nil
}

// clearPending mirrors the repository's status filter: once a request is
// terminal the pair no longer has a pending request between them.
func (l *fakeLedger) clearPending(id string) {
	request := l.requests[id]
	if request.RequestorID != nil && request.RequesteeID != nil {
		delete(l.pending, pairKey(*request.RequestorID, *request.RequesteeID))
	}
}

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

type fakeFriends struct {
	edges  map[string]bool
	addErr error
}

func newFakeFriends() *fakeFriends {
	return &fakeFriends{edges: make(map[string]bool)}
}

func (f *fakeFriends) Add(ctx context.Context, userID, friendID string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.edges[pairKey(userID, friendID)] = true
	return nil
}

func (f *fakeFriends) Remove(ctx context.Context, userID, friendID string) (bool, error) {
	key := pairKey(userID, friendID)
	existed := f.edges[key]
	delete(f.edges, key)
	return existed, nil
}

func (f *fakeFriends) Exists(ctx context.Context, userID, friendID string) (bool, error) {
	return f.edges[pairKey(userID, friendID)], nil
}

type fakeUsers struct {
	known map[string]bool
}

func (u *fakeUsers) Get(ctx context.Context, id string) (*models.User, error) {
	if !u.known[id] {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return &models.User{ID: id}, nil
}

type fixture struct {
	service *Service
	ledger  *fakeLedger
	friends *fakeFriends
	tx      *fakeTx
}

func newFixture(userIDs ...string) *fixture {
	known := make(map[string]bool)
	for _, id := range userIDs {
		known[id] = true
	}

	tx := &fakeTx{}
	ledger := newFakeLedger()
	friends := newFakeFriends()
	service := NewService(
		&fakeDB{tx: tx},
		ledger,
		friends,
		&fakeUsers{known: known},
		nil, // emitter disabled
		nil, // graph mirror disabled
		testLogger(),
	)

	return &fixture{service: service, ledger: ledger, friends: friends, tx: tx}
}

func assertStatusCode(t *testing.T, err error, want int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, want, httperror.GetStatusCode(err))
}

func TestSend(t *testing.T) {
	f := newFixture("alice", "bob")

	request, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(t, models.FriendRequestStatusPending, request.Status)
	require.NotNil(t, request.Requestor)
	require.NotNil(t, request.Requestee)
	assert.Equal(t, "alice", request.Requestor.ID)
	assert.Equal(t, "bob", request.Requestee.ID)
}

func TestSendToSelf(t *testing.T) {
	f := newFixture("alice")

	_, err := f.service.Send(context.Background(), "alice", "alice")
	assertStatusCode(t, err, http.StatusBadRequest)
	assert.Empty(t, f.ledger.created)
}

func TestSendToUnknownUser(t *testing.T) {
	f := newFixture("alice")

	_, err := f.service.Send(context.Background(), "alice", "ghost")
	assertStatusCode(t, err, http.StatusNotFound)
}

func TestSendWhenAlreadyFriends(t *testing.T) {
	f := newFixture("alice", "bob")
	require.NoError(t, f.friends.Add(context.Background(), "alice", "bob"))

	_, err := f.service.Send(context.Background(), "alice", "bob")
	assertStatusCode(t, err, http.StatusConflict)
}

func TestSendDuplicatePending(t *testing.T) {
	f := newFixture("alice", "bob")

	_, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)

	_, err = f.service.Send(context.Background(), "alice", "bob")
	assertStatusCode(t, err, http.StatusConflict)

	// the reverse direction collides with the same pending request
	_, err = f.service.Send(context.Background(), "bob", "alice")
	assertStatusCode(t, err, http.StatusConflict)
	assert.Len(t, f.ledger.created, 1)
}

func TestAccept(t *testing.T) {
	f := newFixture("alice", "bob")

	request, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)

	err = f.service.Accept(context.Background(), request.ID, "bob")
	require.NoError(t, err)

	assert.True(t, f.tx.committed, "accept must commit the transaction")
	assert.Equal(t, models.FriendRequestStatusAccepted, f.ledger.requests[request.ID].Status)

	// the friendship is symmetric: both lookups see the same edge
	existsAB, _ := f.friends.Exists(context.Background(), "alice", "bob")
	existsBA, _ := f.friends.Exists(context.Background(), "bob", "alice")
	assert.True(t, existsAB)
	assert.True(t, existsBA)
}

func TestAcceptByRequestorForbidden(t *testing.T) {
	f := newFixture("alice", "bob")

	request, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)

	err = f.service.Accept(context.Background(), request.ID, "alice")
	assertStatusCode(t, err, http.StatusForbidden)
	assert.Empty(t, f.friends.edges)
}

func TestAcceptUnknownRequest(t *testing.T) {
	f := newFixture("alice", "bob")

	err := f.service.Accept(context.Background(), "missing", "bob")
	assertStatusCode(t, err, http.StatusNotFound)
}

func TestAcceptTerminalRequest(t *testing.T) {
	f := newFixture("alice", "bob")

	request, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, f.service.Reject(context.Background(), request.ID, "bob"))

	// a rejected request reads as not found through the pending lookup
	err = f.service.Accept(context.Background(), request.ID, "bob")
	assertStatusCode(t, err, http.StatusNotFound)
	assert.Empty(t, f.friends.edges)
}

func TestAcceptRollsBackWhenEdgeWriteFails(t *testing.T) {
	f := newFixture("alice", "bob")
	f.friends.addErr = errors.New("insert failed")

	request, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)

	err = f.service.Accept(context.Background(), request.ID, "bob")
	require.Error(t, err)
	assert.False(t, f.tx.committed)
	assert.True(t, f.tx.rolledBack)
}

func TestAcceptWithDeletedRequestor(t *testing.T) {
	f := newFixture("alice", "bob")

	request, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)
	f.ledger.requests[request.ID].RequestorID = nil

	err = f.service.Accept(context.Background(), request.ID, "bob")
	assertStatusCode(t, err, http.StatusConflict)
}

func TestReject(t *testing.T) {
	f := newFixture("alice", "bob")

	request, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)

	err = f.service.Reject(context.Background(), request.ID, "bob")
	require.NoError(t, err)

	assert.Equal(t, models.FriendRequestStatusRejected, f.ledger.requests[request.ID].Status)
	assert.Empty(t, f.friends.edges, "reject must not create a friendship")
}

func TestRejectByRequestorForbidden(t *testing.T) {
	f := newFixture("alice", "bob")

	request, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)

	err = f.service.Reject(context.Background(), request.ID, "alice")
	assertStatusCode(t, err, http.StatusForbidden)
}

func TestUnfriend(t *testing.T) {
	f := newFixture("alice", "bob")
	require.NoError(t, f.friends.Add(context.Background(), "alice", "bob"))

	err := f.service.Unfriend(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, f.friends.edges)
}

func TestUnfriendNotAFriend(t *testing.T) {
	f := newFixture("alice", "bob")

	err := f.service.Unfriend(context.Background(), "alice", "bob")
	assertStatusCode(t, err, http.StatusNotFound)
}

func TestUnfriendSelf(t *testing.T) {
	f := newFixture("alice")

	err := f.service.Unfriend(context.Background(), "alice", "alice")
	assertStatusCode(t, err, http.StatusBadRequest)
}

func TestRequestAgainAfterUnfriend(t *testing.T) {
	f := newFixture("alice", "bob")

	request, err := f.service.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, f.service.Accept(context.Background(), request.ID, "bob"))
	require.NoError(t, f.service.Unfriend(context.Background(), "alice", "bob"))

	// the accepted request is terminal, so a fresh request may be sent
	_, err = f.service.Send(context.Background(), "bob", "alice")
	require.NoError(t, err)
}
