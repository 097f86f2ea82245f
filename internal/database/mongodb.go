// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client     *mongo.Client
	Users      *mongo.Collection
	Posts      *mongo.Collection
	Follows    *mongo.Collection
	DailyPosts *mongo.Collection

	logger zerolog.Logger
}

// NewMongoDB connects, pings and prepares the collections in dbName.
func NewMongoDB(ctx context.Context, uri, dbName string, logger zerolog.Logger) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	m := &MongoDB{
		Client:     client,
		Users:      db.Collection("users"),
		Posts:      db.Collection("posts"),
		Follows:    db.Collection("follows"),
		DailyPosts: db.Collection("dailyposts"),
		logger:     logger.With().Str("component", "mongo").Logger(),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	m.logger.Info().Str("database", dbName).Msg("Successfully connected to MongoDB")
	return m, nil
}

// ensureIndexes creates the indexes the queries rely on. The unique follow index is
// what keeps a pair from being stored twice.
func (m *MongoDB) ensureIndexes(ctx context.Context) error {
	_, err := m.Follows.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "follower", Value: 1}, {Key: "following", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "following", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create follow indexes: %w", err)
	}

	_, err = m.DailyPosts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "useremail", Value: 1}, {Key: "date", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create daily post index: %w", err)
	}

	_, err = m.Posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdat", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create post indexes: %w", err)
	}
	return nil
}

func (m *MongoDB) Name() string { return "mongo" }

func (m *MongoDB) Close(ctx context.Context) error {
	m.logger.Info().Msg("Closing MongoDB connection")
	return m.Client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests against a live server.
func (m *MongoDB) Drop(ctx context.Context) error {
	return m.Users.Database().Drop(ctx)
}

var _ Store = (*MongoDB)(nil)
