// internal/database/daily_post_repository.go
package database

import (
	"context"
	"time"

	"twiller/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// DailyPostDocument represents one accepted public space post in MongoDB.
type DailyPostDocument struct {
	ID         string    `bson:"_id"`
	UserEmail  string    `bson:"useremail"`
	Day        string    `bson:"date"`
	RecordedAt time.Time `bson:"timestamp"`
}

func (m *MongoDB) RecordPost(ctx context.Context, email, day string, at time.Time) error {
	doc := DailyPostDocument{
		ID:         uuid.New().String(),
		UserEmail:  email,
		Day:        day,
		RecordedAt: at,
	}
	_, err := m.DailyPosts.InsertOne(ctx, doc)
	return utils.NewDatabaseError("record daily post", err)
}

func (m *MongoDB) CountPostsToday(ctx context.Context, email, day string) (int, error) {
	n, err := m.DailyPosts.CountDocuments(ctx, bson.M{"useremail": email, "date": day})
	if err != nil {
		return 0, utils.NewDatabaseError("count daily posts", err)
	}
	return int(n), nil
}
