// Package lifecycle drives the friend request state machine. It is the one
// place where the request ledger and the friends relation are mutated
// together, so the accept transition runs both writes in a single database
// transaction.
package lifecycle

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// TxBeginner opens or joins the ctx-scoped database transaction
type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// RequestLedger is the friend request persistence surface the service needs
type RequestLedger interface {
	Create(ctx context.Context, requestorID, requesteeID string) (*models.FriendRequest, error)
	GetPending(ctx context.Context, id string) (*models.FriendRequest, error)
	HasPendingBetween(ctx context.Context, userAID, userBID string) (bool, error)
	MarkAccepted(ctx context.Context, id string) error
	MarkRejected(ctx context.Context, id string) error
}

// FriendStore is the friendship edge persistence surface the service needs
type FriendStore interface {
	Add(ctx context.Context, userID, friendID string) error
	Remove(ctx context.Context, userID, friendID string) (bool, error)
	Exists(ctx context.Context, userID, friendID string) (bool, error)
}

// IdentityStore resolves user IDs to accounts
type IdentityStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// Service implements the friend request lifecycle
type Service struct {
	db       TxBeginner
	requests RequestLedger
	friends  FriendStore
	users    IdentityStore
	emitter  *events.Emitter
	graph    *graph.FriendService
	logger   ectologger.Logger
}

// NewService creates a new lifecycle service. emitter and graphService may
// be nil when Kafka or the graph mirror are disabled.
func NewService(
	db TxBeginner,
	requests RequestLedger,
	friends FriendStore,
	users IdentityStore,
	emitter *events.Emitter,
	graphService *graph.FriendService,
	logger ectologger.Logger,
) *Service {
	return &Service{
		db:       db,
		requests: requests,
		friends:  friends,
		users:    users,
		emitter:  emitter,
		graph:    graphService,
		logger:   logger,
	}
}

// Send creates a pending friend request from requestor to requestee
func (s *Service) Send(ctx context.Context, requestorID, requesteeID string) (*models.FriendRequestResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Service.Send")
	defer span.End()

	if requestorID == requesteeID {
		metrics.FriendRequestsTotal.WithLabelValues("send", "rejected_input").Inc()
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot send a friend request to yourself")
	}

	requestee, err := s.users.Get(ctx, requesteeID)
	if err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("send", "error").Inc()
		return nil, err
	}
	requestor, err := s.users.Get(ctx, requestorID)
	if err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("send", "error").Inc()
		return nil, err
	}

	alreadyFriends, err := s.friends.Exists(ctx, requestorID, requesteeID)
	if err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("send", "error").Inc()
		return nil, err
	}
	if alreadyFriends {
		metrics.FriendRequestsTotal.WithLabelValues("send", "conflict").Inc()
		return nil, httperror.NewHTTPError(http.StatusConflict, "you are already friends with this user")
	}

	hasPending, err := s.requests.HasPendingBetween(ctx, requestorID, requesteeID)
	if err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("send", "error").Inc()
		return nil, err
	}
	if hasPending {
		metrics.FriendRequestsTotal.WithLabelValues("send", "conflict").Inc()
		return nil, httperror.NewHTTPError(http.StatusConflict, "a pending friend request already exists between these users")
	}

	// The pre-checks race with concurrent sends; the partial unique index on
	// the pair is the real guard and Create maps its violation to 409.
	request, err := s.requests.Create(ctx, requestorID, requesteeID)
	if err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("send", "error").Inc()
		return nil, err
	}

	metrics.FriendRequestsTotal.WithLabelValues("send", "success").Inc()
	if err := s.emitter.EmitFriendRequested(ctx, request.ID, requestorID, requesteeID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("friend.requested event not emitted")
	}

	return &models.FriendRequestResponse{
		ID:        request.ID,
		Requestor: requestor.Summary(),
		Requestee: requestee.Summary(),
		Status:    request.Status,
		CreatedAt: request.CreatedAt,
		UpdatedAt: request.UpdatedAt,
	}, nil
}

// Accept transitions a pending request to accepted and writes the symmetric
// friendship edge in the same transaction. Only the requestee may accept.
func (s *Service) Accept(ctx context.Context, requestID, actorID string) error {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Service.Accept")
	defer span.End()

	request, err := s.requests.GetPending(ctx, requestID)
	if err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("accept", "error").Inc()
		return err
	}

	if request.RequesteeID == nil || *request.RequesteeID != actorID {
		metrics.FriendRequestsTotal.WithLabelValues("accept", "forbidden").Inc()
		return httperror.NewHTTPError(http.StatusForbidden, "only the requestee may accept a friend request")
	}
	if request.RequestorID == nil {
		// The requestor account was deleted; the request can no longer
		// produce a friendship.
		metrics.FriendRequestsTotal.WithLabelValues("accept", "conflict").Inc()
		return httperror.NewHTTPError(http.StatusConflict, "the requestor account no longer exists")
	}

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("accept", "error").Inc()
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to accept friend request")
	}
	defer tx.Rollback(ctx)

	if err := s.requests.MarkAccepted(txCtx, requestID); err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("accept", "error").Inc()
		return err
	}

	if err := s.friends.Add(txCtx, *request.RequestorID, *request.RequesteeID); err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("accept", "error").Inc()
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("accept", "error").Inc()
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to accept friend request")
	}

	metrics.FriendRequestsTotal.WithLabelValues("accept", "success").Inc()
	metrics.FriendshipsTotal.WithLabelValues("added").Inc()

	if err := s.emitter.EmitFriendAccepted(ctx, request.ID, *request.RequestorID, *request.RequesteeID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("friend.accepted event not emitted")
	}
	if err := s.graph.UpsertFriendship(ctx, *request.RequestorID, *request.RequesteeID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("friendship not mirrored to graph")
	}

	return nil
}

// Reject transitions a pending request to rejected. Only the requestee may
// reject; no friendship is written.
func (s *Service) Reject(ctx context.Context, requestID, actorID string) error {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Service.Reject")
	defer span.End()

	request, err := s.requests.GetPending(ctx, requestID)
	if err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("reject", "error").Inc()
		return err
	}

	if request.RequesteeID == nil || *request.RequesteeID != actorID {
		metrics.FriendRequestsTotal.WithLabelValues("reject", "forbidden").Inc()
		return httperror.NewHTTPError(http.StatusForbidden, "only the requestee may reject a friend request")
	}

	if err := s.requests.MarkRejected(ctx, requestID); err != nil {
		metrics.FriendRequestsTotal.WithLabelValues("reject", "error").Inc()
		return err
	}

	metrics.FriendRequestsTotal.WithLabelValues("reject", "success").Inc()

	requestorID := ""
	if request.RequestorID != nil {
		requestorID = *request.RequestorID
	}
	if err := s.emitter.EmitFriendRejected(ctx, request.ID, requestorID, actorID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("friend.rejected event not emitted")
	}

	return nil
}

// Unfriend removes the symmetric friendship between the caller and a friend.
// Historical friend requests are left untouched, so the pair can go through
// the request flow again later.
func (s *Service) Unfriend(ctx context.Context, userID, friendID string) error {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Service.Unfriend")
	defer span.End()

	if userID == friendID {
		return httperror.NewHTTPError(http.StatusBadRequest, "cannot unfriend yourself")
	}

	removed, err := s.friends.Remove(ctx, userID, friendID)
	if err != nil {
		return err
	}
	if !removed {
		return httperror.NewHTTPError(http.StatusNotFound, "this user is not in your friends list")
	}

	metrics.FriendshipsTotal.WithLabelValues("removed").Inc()

	if err := s.emitter.EmitFriendRemoved(ctx, userID, friendID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("friend.removed event not emitted")
	}
	if err := s.graph.RemoveFriendship(ctx, userID, friendID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("friendship removal not mirrored to graph")
	}

	return nil
}
