// Package events handles event emission for friend lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Emitter handles event emission for Fern. A nil Emitter is safe to use and
// emits nothing, so callers don't need to branch on whether Kafka is enabled.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitFriendRequested emits a friend.requested event
func (e *Emitter) EmitFriendRequested(ctx context.Context, requestID, requestorID, requesteeID string) error {
	return e.emit(ctx, "friend.requested", requestID, requestorID, requesteeID)
}

// EmitFriendAccepted emits a friend.accepted event
func (e *Emitter) EmitFriendAccepted(ctx context.Context, requestID, requestorID, requesteeID string) error {
	return e.emit(ctx, "friend.accepted", requestID, requestorID, requesteeID)
}

// EmitFriendRejected emits a friend.rejected event
func (e *Emitter) EmitFriendRejected(ctx context.Context, requestID, requestorID, requesteeID string) error {
	return e.emit(ctx, "friend.rejected", requestID, requestorID, requesteeID)
}

// EmitFriendRemoved emits a friend.removed event
func (e *Emitter) EmitFriendRemoved(ctx context.Context, userID, friendID string) error {
	return e.emit(ctx, "friend.removed", "", userID, friendID)
}

func (e *Emitter) emit(ctx context.Context, eventType, requestID, requestorID, requesteeID string) error {
	if e == nil || e.producer == nil {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emit")
	defer span.End()

	event := &kafka.FriendEvent{
		EventType:   eventType,
		RequestID:   requestID,
		RequestorID: requestorID,
		RequesteeID: requesteeID,
	}

	if err := e.producer.PublishFriendEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", eventType).Error("Failed to emit friend event")
		return err
	}

	return nil
}
