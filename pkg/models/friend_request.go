package models

import (
	"time"
)

// FriendRequestStatus is the lifecycle state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestStatusPending  FriendRequestStatus = "pending"
	FriendRequestStatusAccepted FriendRequestStatus = "accepted"
	FriendRequestStatusRejected FriendRequestStatus = "rejected"
)

// IsTerminal reports whether no further transitions are permitted out of s.
func (s FriendRequestStatus) IsTerminal() bool {
	return s == FriendRequestStatusAccepted || s == FriendRequestStatusRejected
}

// CanTransition reports whether the transition s -> to is legal. The only
// legal transitions are pending -> accepted and pending -> rejected.
func (s FriendRequestStatus) CanTransition(to FriendRequestStatus) bool {
	return s == FriendRequestStatusPending && to.IsTerminal()
}

// FriendRequest is a ledger entry between two identities. Requestor and
// requestee references are nullable: deleting a user nulls the reference
// without deleting the historical record.
type FriendRequest struct {
	ID          string              `json:"id" db:"id"`
	RequestorID *string             `json:"requestor_id" db:"requestor_id"`
	RequesteeID *string             `json:"requestee_id" db:"requestee_id"`
	Status      FriendRequestStatus `json:"status" db:"status"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

// SendFriendRequestRequest is the request body for sending a friend request
type SendFriendRequestRequest struct {
	RequesteeID string `json:"requestee_id" validate:"required,uuid4"`
}

// FriendRequestResponse is the API shape of a friend request with both
// parties expanded to summaries.
type FriendRequestResponse struct {
	ID        string              `json:"id"`
	Requestor *UserSummary        `json:"requestor"`
	Requestee *UserSummary        `json:"requestee"`
	Status    FriendRequestStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// FriendRequestListResponse is the API response for listing pending requests
type FriendRequestListResponse struct {
	Items      []*FriendRequestResponse `json:"items"`
	TotalCount int                      `json:"total_count"`
	Limit      int                      `json:"limit"`
	Offset     int                      `json:"offset"`
}
