// internal/database/post_repository.go
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

// PostDocument represents the MongoDB schema for a post.
type PostDocument struct {
	ID              string    `bson:"_id"`
	AuthorEmail     string    `bson:"email"`
	Body            string    `bson:"post"`
	Photo           string    `bson:"photo,omitempty"`
	DisplayName     string    `bson:"name,omitempty"`
	DisplayUsername string    `bson:"username,omitempty"`
	AvatarURL       string    `bson:"profilephoto,omitempty"`
	PublicSpace     bool      `bson:"publicspace"`
	CreatedAt       time.Time `bson:"createdat"`
}

// ModelToDocument converts a Post model to a MongoDB document.
func (m *MongoDB) ModelToDocument(post *models.Post) *PostDocument {
	return &PostDocument{
		ID:              post.ID.String(),
		AuthorEmail:     post.AuthorID,
		Body:            post.Body,
		Photo:           post.Photo,
		DisplayName:     post.DisplayName,
		DisplayUsername: post.DisplayUsername,
		AvatarURL:       post.AvatarURL,
		PublicSpace:     post.PublicSpace,
		CreatedAt:       post.CreatedAt,
	}
}

// DocumentToModel converts a MongoDB document to a Post model.
func (m *MongoDB) DocumentToModel(doc *PostDocument) (*models.Post, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid post ID: %w", err)
	}

	return &models.Post{
		ID:              id,
		AuthorID:        doc.AuthorEmail,
		Body:            doc.Body,
		Photo:           doc.Photo,
		DisplayName:     doc.DisplayName,
		DisplayUsername: doc.DisplayUsername,
		AvatarURL:       doc.AvatarURL,
		PublicSpace:     doc.PublicSpace,
		CreatedAt:       doc.CreatedAt.UTC(),
	}, nil
}

// CreatePost inserts a new post. Mongo keeps millisecond precision, so CreatedAt is
// truncated before it is written to keep the caller's copy identical to the stored one.
func (m *MongoDB) CreatePost(ctx context.Context, post *models.Post) (uuid.UUID, error) {
	preparePost(post)
	post.CreatedAt = post.CreatedAt.Truncate(time.Millisecond)

	_, err := m.Posts.InsertOne(ctx, m.ModelToDocument(post))
	if mongo.IsDuplicateKeyError(err) {
		return uuid.Nil, utils.NewDuplicateError("post "+post.ID.String(), err)
	}
	if err != nil {
		return uuid.Nil, utils.NewDatabaseError("create post", err)
	}
	return post.ID, nil
}

// ListPosts returns every post, newest first.
func (m *MongoDB) ListPosts(ctx context.Context) ([]*models.Post, error) {
	return m.findPosts(ctx, bson.M{})
}

// ListPostsByAuthor returns the posts of one author, newest first.
func (m *MongoDB) ListPostsByAuthor(ctx context.Context, email string) ([]*models.Post, error) {
	return m.findPosts(ctx, bson.M{"email": email})
}

func (m *MongoDB) CountPosts(ctx context.Context) (int, error) {
	n, err := m.Posts.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, utils.NewDatabaseError("count posts", err)
	}
	return int(n), nil
}

func (m *MongoDB) findPosts(ctx context.Context, filter bson.M) ([]*models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := m.Posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewDatabaseError("list posts", err)
	}
	defer cursor.Close(ctx)

	posts := make([]*models.Post, 0)
	for cursor.Next(ctx) {
		var doc PostDocument
		if err := cursor.Decode(&doc); err != nil {
			m.logger.Error().Err(err).Msg("Error decoding post document")
			continue
		}

		post, err := m.DocumentToModel(&doc)
		if err != nil {
			m.logger.Error().Err(err).Str("postId", doc.ID).Msg("Error converting document to model")
			continue
		}
		posts = append(posts, post)
	}

	if err := cursor.Err(); err != nil {
		return nil, utils.NewDatabaseError("list posts", err)
	}
	return posts, nil
}
