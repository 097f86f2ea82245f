// internal/database/follow_repository.go
package database

import (
	"context"
	"fmt"
	"time"

	"twiller/internal/models"
	"twiller/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FollowDocument represents the MongoDB schema for a follow edge.
type FollowDocument struct {
	ID        string    `bson:"_id"`
	Follower  string    `bson:"follower"`
	Following string    `bson:"following"`
	CreatedAt time.Time `bson:"timestamp"`
}

func (doc *FollowDocument) toModel() (*models.Follow, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid follow ID: %w", err)
	}
	return &models.Follow{
		ID:        id,
		Follower:  doc.Follower,
		Following: doc.Following,
		CreatedAt: doc.CreatedAt.UTC(),
	}, nil
}

// Follow upserts the edge. A concurrent insert of the same pair loses on the unique
// index and is reported as already existing.
func (m *MongoDB) Follow(ctx context.Context, follower, following string, at time.Time) (*models.Follow, bool, error) {
	filter := bson.M{"follower": follower, "following": following}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":       uuid.New().String(),
			"timestamp": at.Truncate(time.Millisecond),
		},
	}

	created := false
	result, err := m.Follows.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	switch {
	case err == nil:
		created = result.UpsertedCount > 0
	case mongo.IsDuplicateKeyError(err):
	default:
		return nil, false, utils.NewDatabaseError("follow", err)
	}

	var doc FollowDocument
	if err := m.Follows.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, false, utils.NewDatabaseError("follow", err)
	}
	edge, err := doc.toModel()
	if err != nil {
		return nil, false, utils.NewDatabaseError("follow", err)
	}
	return edge, created, nil
}

func (m *MongoDB) Unfollow(ctx context.Context, follower, following string) (int, error) {
	result, err := m.Follows.DeleteOne(ctx, bson.M{"follower": follower, "following": following})
	if err != nil {
		return 0, utils.NewDatabaseError("unfollow", err)
	}
	return int(result.DeletedCount), nil
}

func (m *MongoDB) FollowerCount(ctx context.Context, email string) (int, error) {
	n, err := m.Follows.CountDocuments(ctx, bson.M{"following": email})
	if err != nil {
		return 0, utils.NewDatabaseError("count followers", err)
	}
	return int(n), nil
}

func (m *MongoDB) ListFollowers(ctx context.Context, email string) ([]*models.Follow, error) {
	return m.findFollows(ctx, bson.M{"following": email})
}

func (m *MongoDB) ListFollowing(ctx context.Context, email string) ([]*models.Follow, error) {
	return m.findFollows(ctx, bson.M{"follower": email})
}

func (m *MongoDB) findFollows(ctx context.Context, filter bson.M) ([]*models.Follow, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.Follows.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewDatabaseError("list follows", err)
	}
	defer cursor.Close(ctx)

	edges := make([]*models.Follow, 0)
	for cursor.Next(ctx) {
		var doc FollowDocument
		if err := cursor.Decode(&doc); err != nil {
			m.logger.Error().Err(err).Msg("Error decoding follow document")
			continue
		}
		edge, err := doc.toModel()
		if err != nil {
			m.logger.Error().Err(err).Str("followId", doc.ID).Msg("Error converting follow document")
			continue
		}
		edges = append(edges, edge)
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewDatabaseError("list follows", err)
	}
	return edges, nil
}
