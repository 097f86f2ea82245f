package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"twiller/internal/database"
	"twiller/internal/engine/actors"
	"twiller/internal/models"
	"twiller/internal/policy"
	"twiller/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func ist(hour, minute int) time.Time {
	return time.Date(2024, 3, 15, hour, minute, 0, 0, time.UTC).Add(-policy.Offset)
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, store database.Store, clock policy.Clock, timeout time.Duration) *Engine {
	t.Helper()
	system := actor.NewActorSystem()
	e := NewEngine(system, actors.Deps{
		Store:   store,
		Clock:   clock,
		Metrics: utils.NewMetricsCollector(),
		Logger:  zerolog.Nop(),
	}, timeout)
	t.Cleanup(func() { e.Stop() })
	return e
}

func addFollowers(t *testing.T, store database.Store, email string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, _, err := store.Follow(context.Background(), fmt.Sprintf("fan%d@x.com", i), email, time.Now())
		require.NoError(t, err)
	}
}

func TestConcurrentSubmissionsRespectDailyLimit(t *testing.T) {
	store := database.NewMemoryStore()
	addFollowers(t, store, "busy@x.com", 5)
	clock := &testClock{now: ist(14, 0)}
	e := newTestEngine(t, store, clock, 0)

	const attempts = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed, denied := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.SubmitPublicPost(context.Background(), &models.Post{
				AuthorID: "busy@x.com",
				Body:     fmt.Sprintf("post %d", i),
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Verdict.Allowed {
				allowed++
			} else {
				assert.Equal(t, policy.RateLimitReached, res.Verdict.Reason)
				denied++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, allowed)
	assert.Equal(t, attempts-2, denied)

	ctx := context.Background()
	recorded, err := store.CountPostsToday(ctx, "busy@x.com", policy.Day(clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, 2, recorded)

	posts, err := store.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, posts)
}

func TestUsersAreIndependent(t *testing.T) {
	store := database.NewMemoryStore()
	addFollowers(t, store, "star@x.com", 10)
	e := newTestEngine(t, store, &testClock{now: ist(14, 0)}, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := e.SubmitPublicPost(ctx, &models.Post{AuthorID: "star@x.com", Body: "again"})
		require.NoError(t, err)
		assert.True(t, res.Verdict.Allowed)
	}

	res, err := e.SubmitPublicPost(ctx, &models.Post{AuthorID: "quiet@x.com", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, policy.Verdict{Reason: policy.OutsideTimeWindow}, res.Verdict)
	assert.Nil(t, res.Post)

	n, err := e.ActivePosters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestZeroFollowerScenario(t *testing.T) {
	store := database.NewMemoryStore()
	clock := &testClock{now: ist(10, 15)}
	e := newTestEngine(t, store, clock, 0)
	ctx := context.Background()

	first, err := e.SubmitPublicPost(ctx, &models.Post{AuthorID: "new@x.com", Body: "first", Photo: "p.png"})
	require.NoError(t, err)
	require.True(t, first.Verdict.Allowed)
	require.NotNil(t, first.Post)
	assert.NotEqual(t, uuid.Nil, first.Post.ID)
	assert.True(t, first.Post.PublicSpace)
	assert.Equal(t, "p.png", first.Post.Photo)
	assert.True(t, ist(10, 15).Equal(first.Post.CreatedAt))

	clock.Set(ist(10, 20))
	second, err := e.SubmitPublicPost(ctx, &models.Post{AuthorID: "new@x.com", Body: "second"})
	require.NoError(t, err)
	assert.Equal(t, policy.Verdict{Reason: policy.RateLimitReached}, second.Verdict)

	clock.Set(ist(14, 0))
	third, err := e.SubmitPublicPost(ctx, &models.Post{AuthorID: "new@x.com", Body: "third"})
	require.NoError(t, err)
	assert.Equal(t, policy.Verdict{Reason: policy.OutsideTimeWindow}, third.Verdict)

	posts, err := store.ListPostsByAuthor(ctx, "new@x.com")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "first", posts[0].Body)
}

func TestNextDayResetsCount(t *testing.T) {
	store := database.NewMemoryStore()
	addFollowers(t, store, "a@x.com", 1)
	clock := &testClock{now: ist(9, 0)}
	e := newTestEngine(t, store, clock, 0)
	ctx := context.Background()

	res, err := e.SubmitPublicPost(ctx, &models.Post{AuthorID: "a@x.com", Body: "one"})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed, "one follower may post outside the window")

	res, err = e.SubmitPublicPost(ctx, &models.Post{AuthorID: "a@x.com", Body: "two"})
	require.NoError(t, err)
	assert.False(t, res.Verdict.Allowed)

	clock.Set(ist(9, 0).Add(24 * time.Hour))
	res, err = e.SubmitPublicPost(ctx, &models.Post{AuthorID: "a@x.com", Body: "tomorrow"})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
}

func TestUserStats(t *testing.T) {
	store := database.NewMemoryStore()
	addFollowers(t, store, "a@x.com", 3)
	clock := &testClock{now: ist(16, 0)}
	e := newTestEngine(t, store, clock, 0)
	ctx := context.Background()

	stats, err := e.UserStats(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Followers)
	assert.Equal(t, 0, stats.TodayPosts)
	assert.True(t, stats.Verdict.Allowed)

	for i := 0; i < 2; i++ {
		_, err := e.SubmitPublicPost(ctx, &models.Post{AuthorID: "a@x.com", Body: "x"})
		require.NoError(t, err)
	}

	stats, err = e.UserStats(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TodayPosts)
	assert.Equal(t, policy.Verdict{Reason: policy.RateLimitReached}, stats.Verdict)

	// stats never write
	n, err := store.CountPostsToday(ctx, "a@x.com", policy.Day(clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInvalidRequests(t *testing.T) {
	e := newTestEngine(t, database.NewMemoryStore(), policy.SystemClock, 0)
	ctx := context.Background()

	_, err := e.SubmitPublicPost(ctx, &models.Post{Body: "anonymous"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	_, err = e.SubmitPublicPost(ctx, nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	_, err = e.UserStats(ctx, "")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestCancelledContextIsTimeout(t *testing.T) {
	e := newTestEngine(t, database.NewMemoryStore(), policy.SystemClock, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.UserStats(ctx, "a@x.com")
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout))
}

// mockStore fails selected calls and delegates the rest to a MemoryStore.
type mockStore struct {
	*database.MemoryStore
	mock.Mock
}

func (s *mockStore) CreatePost(ctx context.Context, post *models.Post) (uuid.UUID, error) {
	args := s.Called(ctx, post)
	if err := args.Error(0); err != nil {
		return uuid.Nil, err
	}
	return s.MemoryStore.CreatePost(ctx, post)
}

func (s *mockStore) RecordPost(ctx context.Context, email, day string, at time.Time) error {
	args := s.Called(ctx, email, day, at)
	if err := args.Error(0); err != nil {
		return err
	}
	return s.MemoryStore.RecordPost(ctx, email, day, at)
}

func (s *mockStore) FollowerCount(ctx context.Context, email string) (int, error) {
	args := s.Called(ctx, email)
	if err := args.Error(0); err != nil {
		return 0, err
	}
	return s.MemoryStore.FollowerCount(ctx, email)
}

func TestPersistFailureIsNotRecorded(t *testing.T) {
	store := &mockStore{MemoryStore: database.NewMemoryStore()}
	store.On("FollowerCount", mock.Anything, "a@x.com").Return(nil)
	store.On("CreatePost", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	clock := &testClock{now: ist(10, 5)}
	e := newTestEngine(t, store, clock, 0)

	_, err := e.SubmitPublicPost(context.Background(), &models.Post{AuthorID: "a@x.com", Body: "lost"})
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrDatabase))

	n, err := store.CountPostsToday(context.Background(), "a@x.com", policy.Day(clock.Now()))
	require.NoError(t, err)
	assert.Zero(t, n)
	store.AssertNotCalled(t, "RecordPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordFailureStillPublishes(t *testing.T) {
	store := &mockStore{MemoryStore: database.NewMemoryStore()}
	store.On("FollowerCount", mock.Anything, "a@x.com").Return(nil)
	store.On("CreatePost", mock.Anything, mock.Anything).Return(nil)
	store.On("RecordPost", mock.Anything, "a@x.com", "2024-03-15", mock.Anything).Return(errors.New("ledger down"))

	e := newTestEngine(t, store, &testClock{now: ist(10, 5)}, 0)

	res, err := e.SubmitPublicPost(context.Background(), &models.Post{AuthorID: "a@x.com", Body: "kept"})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
	require.NotNil(t, res.Post)

	posts, err := store.ListPosts(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	store.AssertExpectations(t)
}

func TestLedgerReadFailure(t *testing.T) {
	store := &mockStore{MemoryStore: database.NewMemoryStore()}
	store.On("FollowerCount", mock.Anything, "a@x.com").Return(errors.New("connection refused"))

	e := newTestEngine(t, store, &testClock{now: ist(10, 5)}, 0)

	_, err := e.SubmitPublicPost(context.Background(), &models.Post{AuthorID: "a@x.com", Body: "x"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrDatabase))
	store.AssertNotCalled(t, "CreatePost", mock.Anything, mock.Anything)
}

func TestSlowStoreTimesOut(t *testing.T) {
	store := &mockStore{MemoryStore: database.NewMemoryStore()}
	store.On("FollowerCount", mock.Anything, "a@x.com").After(300 * time.Millisecond).Return(nil)

	e := newTestEngine(t, store, &testClock{now: ist(10, 5)}, 50*time.Millisecond)

	_, err := e.UserStats(context.Background(), "a@x.com")
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout))
}

func TestTimedOutSubmissionsAreNotCharged(t *testing.T) {
	store := &mockStore{MemoryStore: database.NewMemoryStore()}
	addFollowers(t, store, "star@x.com", 10)
	store.On("FollowerCount", mock.Anything, "star@x.com").Return(nil)
	store.On("CreatePost", mock.Anything, mock.Anything).After(80 * time.Millisecond).Return(nil)
	store.On("RecordPost", mock.Anything, "star@x.com", mock.Anything, mock.Anything).Return(nil)

	clock := &testClock{now: ist(14, 0)}
	e := newTestEngine(t, store, clock, 100*time.Millisecond)

	var wg sync.WaitGroup
	var mu sync.Mutex
	published, timedOut := 0, 0
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.SubmitPublicPost(context.Background(), &models.Post{
				AuthorID: "star@x.com",
				Body:     fmt.Sprintf("post %d", i),
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				assert.True(t, res.Verdict.Allowed)
				published++
			case utils.IsErrorCode(err, utils.ErrActorTimeout):
				timedOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, published+timedOut)
	assert.GreaterOrEqual(t, published, 1)

	// every reply matches what happened in the store
	ctx := context.Background()
	posts, err := store.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, published, posts)

	recorded, err := store.CountPostsToday(ctx, "star@x.com", policy.Day(clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, published, recorded)
}

func TestCancelledSubmissionIsDropped(t *testing.T) {
	store := &mockStore{MemoryStore: database.NewMemoryStore()}
	store.On("FollowerCount", mock.Anything, "a@x.com").Return(nil)
	store.On("CreatePost", mock.Anything, mock.Anything).After(150 * time.Millisecond).Return(nil)
	store.On("RecordPost", mock.Anything, "a@x.com", mock.Anything, mock.Anything).Return(nil)

	clock := &testClock{now: ist(10, 5)}
	e := newTestEngine(t, store, clock, time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := e.SubmitPublicPost(context.Background(), &models.Post{AuthorID: "a@x.com", Body: "first"})
		if assert.NoError(t, err) {
			assert.True(t, res.Verdict.Allowed)
		}
	}()

	// the first submission is now inside CreatePost; the second waits in the mailbox
	time.Sleep(30 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := e.SubmitPublicPost(ctx, &models.Post{AuthorID: "a@x.com", Body: "second"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout), "got %v", err)
	wg.Wait()

	store.AssertNumberOfCalls(t, "CreatePost", 1)
	n, err := store.CountPostsToday(context.Background(), "a@x.com", policy.Day(clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreCallCutByDeadlineIsTimeout(t *testing.T) {
	store := &mockStore{MemoryStore: database.NewMemoryStore()}
	store.On("FollowerCount", mock.Anything, "a@x.com").Return(nil)
	store.On("CreatePost", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.DeadlineExceeded)

	clock := &testClock{now: ist(10, 5)}
	e := newTestEngine(t, store, clock, 50*time.Millisecond)

	_, err := e.SubmitPublicPost(context.Background(), &models.Post{AuthorID: "a@x.com", Body: "slow"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout), "got %v", err)
	store.AssertNotCalled(t, "RecordPost", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
