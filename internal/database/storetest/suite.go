// Package storetest is a behavioural suite every database.Store must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"twiller/internal/database"
	"twiller/internal/models"
	"twiller/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) database.Store

// base is millisecond aligned so every backend round-trips it exactly.
var base = time.Date(2024, 3, 15, 4, 45, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("FollowIsIdempotent", func(t *testing.T) { testFollowIsIdempotent(t, newStore(t)) })
	t.Run("UnfollowRemovesOneEdge", func(t *testing.T) { testUnfollow(t, newStore(t)) })
	t.Run("FollowerListsAreOldestFirst", func(t *testing.T) { testFollowLists(t, newStore(t)) })
	t.Run("ConcurrentFollowCreatesOnce", func(t *testing.T) { testConcurrentFollow(t, newStore(t)) })
	t.Run("DailyLedgerCountsPerDay", func(t *testing.T) { testDailyLedger(t, newStore(t)) })
	t.Run("PostsAreNewestFirst", func(t *testing.T) { testPostOrdering(t, newStore(t)) })
	t.Run("CreatePostAssignsFields", func(t *testing.T) { testCreatePostAssigns(t, newStore(t)) })
	t.Run("DuplicatePostIDRejected", func(t *testing.T) { testDuplicatePost(t, newStore(t)) })
	t.Run("UserNotFound", func(t *testing.T) { testUserNotFound(t, newStore(t)) })
	t.Run("SaveUserKeepsCreatedAt", func(t *testing.T) { testSaveUser(t, newStore(t)) })
	t.Run("UpdateUserUpserts", func(t *testing.T) { testUpdateUser(t, newStore(t)) })
}

func testFollowIsIdempotent(t *testing.T, s database.Store) {
	ctx := context.Background()

	edge, created, err := s.Follow(ctx, "a@x.com", "b@x.com", base)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, edge.ID)
	assert.Equal(t, "a@x.com", edge.Follower)
	assert.Equal(t, "b@x.com", edge.Following)

	again, created, err := s.Follow(ctx, "a@x.com", "b@x.com", base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, edge.ID, again.ID)
	assert.True(t, base.Equal(again.CreatedAt), "existing edge keeps its timestamp")

	n, err := s.FollowerCount(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// the reverse direction is a different edge
	_, created, err = s.Follow(ctx, "b@x.com", "a@x.com", base)
	require.NoError(t, err)
	assert.True(t, created)

	n, err = s.FollowerCount(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testUnfollow(t *testing.T, s database.Store) {
	ctx := context.Background()

	_, _, err := s.Follow(ctx, "a@x.com", "b@x.com", base)
	require.NoError(t, err)
	_, _, err = s.Follow(ctx, "c@x.com", "b@x.com", base)
	require.NoError(t, err)

	removed, err := s.Unfollow(ctx, "a@x.com", "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = s.Unfollow(ctx, "a@x.com", "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	n, err := s.FollowerCount(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.FollowerCount(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testFollowLists(t *testing.T, s database.Store) {
	ctx := context.Background()

	for i, follower := range []string{"f1@x.com", "f2@x.com", "f3@x.com"} {
		_, _, err := s.Follow(ctx, follower, "star@x.com", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	_, _, err := s.Follow(ctx, "star@x.com", "f1@x.com", base)
	require.NoError(t, err)

	followers, err := s.ListFollowers(ctx, "star@x.com")
	require.NoError(t, err)
	require.Len(t, followers, 3)
	for i, f := range followers {
		assert.Equal(t, fmt.Sprintf("f%d@x.com", i+1), f.Follower)
		assert.Equal(t, "star@x.com", f.Following)
	}

	following, err := s.ListFollowing(ctx, "star@x.com")
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "f1@x.com", following[0].Following)

	empty, err := s.ListFollowers(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func testConcurrentFollow(t *testing.T, s database.Store) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Follow(ctx, "a@x.com", "b@x.com", base)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	n, err := s.FollowerCount(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testDailyLedger(t *testing.T, s database.Store) {
	ctx := context.Background()

	require.NoError(t, s.RecordPost(ctx, "a@x.com", "2024-03-15", base))
	require.NoError(t, s.RecordPost(ctx, "a@x.com", "2024-03-15", base.Add(time.Minute)))
	require.NoError(t, s.RecordPost(ctx, "a@x.com", "2024-03-16", base.Add(24*time.Hour)))
	require.NoError(t, s.RecordPost(ctx, "b@x.com", "2024-03-15", base))

	tests := []struct {
		email string
		day   string
		want  int
	}{
		{"a@x.com", "2024-03-15", 2},
		{"a@x.com", "2024-03-16", 1},
		{"b@x.com", "2024-03-15", 1},
		{"b@x.com", "2024-03-16", 0},
		{"c@x.com", "2024-03-15", 0},
	}
	for _, tt := range tests {
		n, err := s.CountPostsToday(ctx, tt.email, tt.day)
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, "%s on %s", tt.email, tt.day)
	}
}

func testPostOrdering(t *testing.T, s database.Store) {
	ctx := context.Background()

	older := &models.Post{AuthorID: "a@x.com", Body: "first", CreatedAt: base}
	newer := &models.Post{AuthorID: "b@x.com", Body: "second", CreatedAt: base.Add(time.Minute), PublicSpace: true}
	tieLow := &models.Post{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), AuthorID: "a@x.com", Body: "tie low", CreatedAt: base.Add(time.Second)}
	tieHigh := &models.Post{ID: uuid.MustParse("ffffffff-0000-0000-0000-000000000001"), AuthorID: "a@x.com", Body: "tie high", CreatedAt: base.Add(time.Second)}

	for _, p := range []*models.Post{newer, tieLow, older, tieHigh} {
		_, err := s.CreatePost(ctx, p)
		require.NoError(t, err)
	}

	all, err := s.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"second", "tie high", "tie low", "first"}, bodies(all))
	assert.True(t, all[0].PublicSpace)
	assert.False(t, all[3].PublicSpace)

	mine, err := s.ListPostsByAuthor(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"tie high", "tie low", "first"}, bodies(mine))

	none, err := s.ListPostsByAuthor(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := s.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func testCreatePostAssigns(t *testing.T, s database.Store) {
	ctx := context.Background()

	post := &models.Post{
		AuthorID:        "a@x.com",
		Body:            "hello",
		Photo:           "https://img.example/p.png",
		DisplayName:     "Ann",
		DisplayUsername: "ann",
		AvatarURL:       "https://img.example/a.png",
	}
	id, err := s.CreatePost(ctx, post)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, id, post.ID)
	assert.False(t, post.CreatedAt.IsZero())

	all, err := s.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, "https://img.example/p.png", got.Photo)
	assert.Equal(t, "Ann", got.DisplayName)
	assert.Equal(t, "ann", got.DisplayUsername)
	assert.Equal(t, "https://img.example/a.png", got.AvatarURL)
	assert.WithinDuration(t, post.CreatedAt, got.CreatedAt, time.Millisecond)
}

func testDuplicatePost(t *testing.T, s database.Store) {
	ctx := context.Background()
	id := uuid.New()

	_, err := s.CreatePost(ctx, &models.Post{ID: id, AuthorID: "a@x.com", Body: "one", CreatedAt: base})
	require.NoError(t, err)

	_, err = s.CreatePost(ctx, &models.Post{ID: id, AuthorID: "a@x.com", Body: "two", CreatedAt: base})
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicate), "got %v", err)

	n, err := s.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testUserNotFound(t *testing.T, s database.Store) {
	_, err := s.GetUserByEmail(context.Background(), "ghost@x.com")
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUserNotFound))
}

func testSaveUser(t *testing.T, s database.Store) {
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, &models.User{
		Email:     "a@x.com",
		Name:      "Ann",
		Username:  "ann",
		CreatedAt: base,
		UpdatedAt: base,
	}))
	require.NoError(t, s.SaveUser(ctx, &models.User{
		Email:     "a@x.com",
		Name:      "Ann B",
		Username:  "annb",
		CreatedAt: base.Add(time.Hour),
		UpdatedAt: base.Add(time.Hour),
	}))

	u, err := s.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann B", u.Name)
	assert.Equal(t, "annb", u.Username)
	assert.True(t, base.Equal(u.CreatedAt), "created at %s", u.CreatedAt)
	assert.True(t, base.Add(time.Hour).Equal(u.UpdatedAt))

	require.NoError(t, s.SaveUser(ctx, &models.User{Email: "b@x.com", CreatedAt: base.Add(time.Minute)}))
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a@x.com", users[0].Email)
	assert.Equal(t, "b@x.com", users[1].Email)
}

func testUpdateUser(t *testing.T, s database.Store) {
	ctx := context.Background()

	upserted, err := s.UpdateUser(ctx, "a@x.com", &models.UserUpdate{Bio: strPtr("hi")}, base)
	require.NoError(t, err)
	assert.True(t, upserted)

	upserted, err = s.UpdateUser(ctx, "a@x.com", &models.UserUpdate{
		Location:     strPtr("Pune"),
		ProfileImage: strPtr("https://img.example/a.png"),
	}, base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, upserted)

	u, err := s.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hi", u.Bio, "untouched fields survive")
	assert.Equal(t, "Pune", u.Location)
	assert.Equal(t, "https://img.example/a.png", u.ProfileImage)
	assert.True(t, base.Equal(u.CreatedAt))
	assert.True(t, base.Add(time.Minute).Equal(u.UpdatedAt))
}

func bodies(posts []*models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Body
	}
	return out
}
