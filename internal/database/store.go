// internal/database/store.go
package database

import (
	"context"
	"time"

	"twiller/internal/models"

	"github.com/google/uuid"
)

// Store is the single persistence interface the engine and handlers depend on.
// Memory, MongoDB and SQL backends implement it; one is chosen at startup.
type Store interface {
	FollowerLedger
	DailyPostLedger
	PostStore
	UserStore

	// Name identifies the backend ("memory", "mongo", "postgres", "sqlite").
	Name() string
	Close(ctx context.Context) error
}

// FollowerLedger tracks follow edges. At most one edge exists per ordered pair.
type FollowerLedger interface {
	// Follow stores the edge if absent. created is false when it already existed,
	// in which case the stored edge is returned unchanged.
	Follow(ctx context.Context, follower, following string, at time.Time) (edge *models.Follow, created bool, err error)
	// Unfollow removes the edge and reports how many were removed (0 or 1).
	Unfollow(ctx context.Context, follower, following string) (int, error)
	FollowerCount(ctx context.Context, email string) (int, error)
	// ListFollowers returns edges pointing at email, oldest first.
	ListFollowers(ctx context.Context, email string) ([]*models.Follow, error)
	// ListFollowing returns edges starting at email, oldest first.
	ListFollowing(ctx context.Context, email string) ([]*models.Follow, error)
}

// DailyPostLedger holds one record per accepted public space post.
type DailyPostLedger interface {
	// RecordPost appends a record. It never checks eligibility.
	RecordPost(ctx context.Context, email, day string, at time.Time) error
	CountPostsToday(ctx context.Context, email, day string) (int, error)
}

// PostStore persists posts. Listings are newest first by CreatedAt, then id.
type PostStore interface {
	// CreatePost assigns ID and CreatedAt when they are zero and returns the ID.
	CreatePost(ctx context.Context, post *models.Post) (uuid.UUID, error)
	ListPosts(ctx context.Context) ([]*models.Post, error)
	ListPostsByAuthor(ctx context.Context, email string) ([]*models.Post, error)
	CountPosts(ctx context.Context) (int, error)
}

// UserStore keeps profile records keyed by email.
type UserStore interface {
	// SaveUser creates or replaces a profile. CreatedAt survives replacement.
	SaveUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	// UpdateUser applies a partial change, creating the profile if needed.
	UpdateUser(ctx context.Context, email string, upd *models.UserUpdate, at time.Time) (upserted bool, err error)
}

// preparePost fills in the fields CreatePost is allowed to assign.
func preparePost(post *models.Post) {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
}
