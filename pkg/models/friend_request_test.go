package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFriendRequestStatusIsTerminal(t *testing.T) {
	assert.False(t, FriendRequestStatusPending.IsTerminal())
	assert.True(t, FriendRequestStatusAccepted.IsTerminal())
	assert.True(t, FriendRequestStatusRejected.IsTerminal())
}

func TestFriendRequestStatusCanTransition(t *testing.T) {
	assert.True(t, FriendRequestStatusPending.CanTransition(FriendRequestStatusAccepted))
	assert.True(t, FriendRequestStatusPending.CanTransition(FriendRequestStatusRejected))

	// terminal states are immutable
	assert.False(t, FriendRequestStatusAccepted.CanTransition(FriendRequestStatusRejected))
	assert.False(t, FriendRequestStatusAccepted.CanTransition(FriendRequestStatusPending))
	assert.False(t, FriendRequestStatusRejected.CanTransition(FriendRequestStatusAccepted))

	// no self transitions
	assert.False(t, FriendRequestStatusPending.CanTransition(FriendRequestStatusPending))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
	assert.Equal(t, "a@b.c", NormalizeEmail("a@b.c"))
}
