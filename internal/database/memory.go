// internal/database/memory.go
package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"twiller/internal/models"
	"twiller/internal/utils"

	"github.com/google/uuid"
)

type followKey struct {
	follower  string
	following string
}

type dailyKey struct {
	email string
	day   string
}

// MemoryStore keeps everything in process memory. It is the default backend when no
// database is configured and the reference implementation for tests.
type MemoryStore struct {
	mu sync.RWMutex

	users   map[string]*models.User
	posts   []*models.Post
	follows map[followKey]*models.Follow
	daily   map[dailyKey][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*models.User),
		follows: make(map[followKey]*models.Follow),
		daily:   make(map[dailyKey][]time.Time),
	}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

// Follower ledger

func (m *MemoryStore) Follow(ctx context.Context, follower, following string, at time.Time) (*models.Follow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := followKey{follower, following}
	if existing, ok := m.follows[key]; ok {
		edge := *existing
		return &edge, false, nil
	}

	edge := &models.Follow{
		ID:        uuid.New(),
		Follower:  follower,
		Following: following,
		CreatedAt: at,
	}
	m.follows[key] = edge
	out := *edge
	return &out, true, nil
}

func (m *MemoryStore) Unfollow(ctx context.Context, follower, following string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := followKey{follower, following}
	if _, ok := m.follows[key]; !ok {
		return 0, nil
	}
	delete(m.follows, key)
	return 1, nil
}

func (m *MemoryStore) FollowerCount(ctx context.Context, email string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for key := range m.follows {
		if key.following == email {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListFollowers(ctx context.Context, email string) ([]*models.Follow, error) {
	return m.filterFollows(func(f *models.Follow) bool { return f.Following == email }), nil
}

func (m *MemoryStore) ListFollowing(ctx context.Context, email string) ([]*models.Follow, error) {
	return m.filterFollows(func(f *models.Follow) bool { return f.Follower == email }), nil
}

func (m *MemoryStore) filterFollows(match func(*models.Follow) bool) []*models.Follow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	edges := make([]*models.Follow, 0)
	for _, f := range m.follows {
		if match(f) {
			edge := *f
			edges = append(edges, &edge)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.Before(edges[j].CreatedAt)
		}
		return edges[i].ID.String() < edges[j].ID.String()
	})
	return edges
}

// Daily post ledger

func (m *MemoryStore) RecordPost(ctx context.Context, email, day string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dailyKey{email, day}
	m.daily[key] = append(m.daily[key], at)
	return nil
}

func (m *MemoryStore) CountPostsToday(ctx context.Context, email, day string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.daily[dailyKey{email, day}]), nil
}

// Post store

func (m *MemoryStore) CreatePost(ctx context.Context, post *models.Post) (uuid.UUID, error) {
	preparePost(post)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.posts {
		if existing.ID == post.ID {
			return uuid.Nil, utils.NewDuplicateError("post "+post.ID.String(), nil)
		}
	}
	stored := *post
	m.posts = append(m.posts, &stored)
	return post.ID, nil
}

func (m *MemoryStore) ListPosts(ctx context.Context) ([]*models.Post, error) {
	return m.filterPosts(func(*models.Post) bool { return true }), nil
}

func (m *MemoryStore) ListPostsByAuthor(ctx context.Context, email string) ([]*models.Post, error) {
	return m.filterPosts(func(p *models.Post) bool { return p.AuthorID == email }), nil
}

func (m *MemoryStore) CountPosts(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.posts), nil
}

func (m *MemoryStore) filterPosts(match func(*models.Post) bool) []*models.Post {
	m.mu.RLock()
	defer m.mu.RUnlock()

	posts := make([]*models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		if match(p) {
			post := *p
			posts = append(posts, &post)
		}
	}
	sort.SliceStable(posts, func(i, j int) bool { return models.NewerFirst(posts[i], posts[j]) })
	return posts
}

// User store

func (m *MemoryStore) SaveUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *user
	if existing, ok := m.users[user.Email]; ok && !existing.CreatedAt.IsZero() {
		stored.CreatedAt = existing.CreatedAt
	}
	m.users[user.Email] = &stored
	return nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[email]
	if !ok {
		return nil, utils.NewUserNotFoundError(email)
	}
	out := *u
	return &out, nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].Email < users[j].Email
	})
	return users, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, email string, upd *models.UserUpdate, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		u = &models.User{Email: email, CreatedAt: at}
		m.users[email] = u
	}
	upd.Apply(u)
	u.UpdatedAt = at
	return !ok, nil
}
