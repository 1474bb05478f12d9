package graph

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// FriendService mirrors friendship edges into the graph database and answers
// mutual-friend queries. All methods are safe on a nil receiver so callers
// don't need to branch on whether the graph mirror is enabled.
type FriendService struct {
	client *Client
	logger ectologger.Logger
}

// NewFriendService creates a new friend graph service
func NewFriendService(client *Client, logger ectologger.Logger) *FriendService {
	return &FriendService{
		client: client,
		logger: logger,
	}
}

// UpsertFriendship creates both user nodes if needed and a single undirected
// FRIENDS_WITH edge between them.
func (s *FriendService) UpsertFriendship(ctx context.Context, userAID, userBID string) error {
	if s == nil || s.client == nil {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "graph.FriendService.UpsertFriendship")
	defer span.End()

	cypher := `
		MERGE (a:User {id: $a})
		MERGE (b:User {id: $b})
		MERGE (a)-[:FRIENDS_WITH]-(b)
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{"a": userAID, "b": userBID})
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_a": userAID,
			"user_b": userBID,
		}).Error("failed to upsert friendship edge")
		return err
	}

	return nil
}

// RemoveFriendship deletes the FRIENDS_WITH edge between two users. Missing
// edges are not an error.
func (s *FriendService) RemoveFriendship(ctx context.Context, userAID, userBID string) error {
	if s == nil || s.client == nil {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "graph.FriendService.RemoveFriendship")
	defer span.End()

	cypher := `
		MATCH (a:User {id: $a})-[r:FRIENDS_WITH]-(b:User {id: $b})
		DELETE r
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{"a": userAID, "b": userBID})
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_a": userAID,
			"user_b": userBID,
		}).Error("failed to remove friendship edge")
		return err
	}

	return nil
}

// MutualFriendCounts returns, for each candidate user ID, the number of
// friends they share with the given user. Candidates with no mutual friends
// are omitted from the result.
func (s *FriendService) MutualFriendCounts(ctx context.Context, userID string, candidateIDs []string) (map[string]int64, error) {
	if s == nil || s.client == nil || len(candidateIDs) == 0 {
		return map[string]int64{}, nil
	}

	ctx, span := tracing.StartSpan(ctx, "graph.FriendService.MutualFriendCounts")
	defer span.End()

	cypher := `
		MATCH (me:User {id: $id})-[:FRIENDS_WITH]-(mutual:User)-[:FRIENDS_WITH]-(candidate:User)
		WHERE candidate.id IN $candidates AND candidate.id <> $id
		RETURN candidate.id AS id, count(DISTINCT mutual) AS mutuals
	`

	res, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":         userID,
			"candidates": candidateIDs,
		})
		if err != nil {
			return nil, err
		}

		counts := make(map[string]int64)
		for result.Next(ctx) {
			record := result.Record()
			id, _ := record.Get("id")
			mutuals, _ := record.Get("mutuals")
			counts[id.(string)] = mutuals.(int64)
		}
		return counts, result.Err()
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("user_id", userID).Error("failed to query mutual friend counts")
		return nil, err
	}

	return res.(map[string]int64), nil
}
