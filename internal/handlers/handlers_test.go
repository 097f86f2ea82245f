package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"twiller/internal/database"
	"twiller/internal/engine"
	"twiller/internal/engine/actors"
	"twiller/internal/middleware"
	"twiller/internal/notify"
	"twiller/internal/policy"
	"twiller/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ist(hour, minute int) time.Time {
	return time.Date(2024, 3, 15, hour, minute, 0, 0, time.UTC).Add(-policy.Offset)
}

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

type testServer struct {
	*httptest.Server
	store *database.MemoryStore
	clock *testClock
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()

	store := database.NewMemoryStore()
	clock := &testClock{now: ist(10, 15)}
	metrics := utils.NewMetricsCollector()

	eng := engine.NewEngine(actor.NewActorSystem(), actors.Deps{
		Store:   store,
		Clock:   clock,
		Metrics: metrics,
		Logger:  zerolog.Nop(),
	}, time.Second)
	t.Cleanup(func() { eng.Stop() })

	srv := NewServer(eng, store, metrics, notify.NewMatcher(notify.DefaultKeywords), zerolog.Nop())
	srv.Clock = clock

	ts := httptest.NewServer(srv.Routes(opts))
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, store: store, clock: clock}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode(t *testing.T, raw []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v), string(raw))
}

func (ts *testServer) addFollowers(t *testing.T, email string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		status, _ := ts.do(t, http.MethodPost, "/follow", FollowRequest{
			Follower:  fmt.Sprintf("fan%d@x.com", i),
			Following: email,
		})
		require.Equal(t, http.StatusOK, status)
	}
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})

	status, body := ts.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Twiller is working", string(body))

	status, body = ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	var health map[string]interface{}
	decode(t, body, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "memory", health["backend"])
	assert.EqualValues(t, 0, health["post_count"])
}

func TestPublicSpaceScenario(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	req := PublicSpacePostRequest{Email: "new@x.com", Post: "first light"}

	// 10:15 IST, no followers: accepted
	status, body := ts.do(t, http.MethodPost, "/publicspace/post", req)
	require.Equal(t, http.StatusCreated, status, string(body))

	var created struct {
		InsertedID string                 `json:"insertedId"`
		Post       map[string]interface{} `json:"post"`
		Notify     bool                   `json:"notify"`
	}
	decode(t, body, &created)
	assert.NotEmpty(t, created.InsertedID)
	assert.Equal(t, created.InsertedID, created.Post["id"])
	assert.Equal(t, "new@x.com", created.Post["email"])
	assert.Equal(t, true, created.Post["publicSpace"])
	assert.False(t, created.Notify)

	// 10:20 IST: daily limit
	ts.clock.Set(ist(10, 20))
	status, body = ts.do(t, http.MethodPost, "/publicspace/post", req)
	require.Equal(t, http.StatusForbidden, status)

	var denied map[string]string
	decode(t, body, &denied)
	assert.Equal(t, "Posting limit reached for today", denied["error"])
	assert.Equal(t, string(policy.RateLimitReached), denied["code"])
	assert.NotEmpty(t, denied["reason"])

	// 14:00 IST: outside the window, which is reported first
	ts.clock.Set(ist(14, 0))
	status, body = ts.do(t, http.MethodPost, "/publicspace/post", req)
	require.Equal(t, http.StatusForbidden, status)
	decode(t, body, &denied)
	assert.Equal(t, string(policy.OutsideTimeWindow), denied["code"])
	assert.Contains(t, denied["reason"], "10:00 AM - 10:30 AM IST")

	count, err := ts.store.CountPostsToday(context.Background(), "new@x.com", policy.Day(ist(10, 15)))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPublicSpacePostValidation(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing email", PublicSpacePostRequest{Post: "hello"}},
		{"blank email", PublicSpacePostRequest{Email: "  ", Post: "hello"}},
		{"missing body", PublicSpacePostRequest{Email: "a@x.com"}},
		{"not json", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, "/publicspace/post", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)

			var resp map[string]string
			decode(t, body, &resp)
			assert.Equal(t, utils.ErrInvalidInput, resp["code"])
		})
	}

	n, err := ts.store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublicSpaceNotifyFlag(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	ts.addFollowers(t, "fan@x.com", 10)

	status, body := ts.do(t, http.MethodPost, "/publicspace/post", PublicSpacePostRequest{
		Email: "fan@x.com",
		Post:  "What a CRICKET match",
	})
	require.Equal(t, http.StatusCreated, status)

	var created map[string]interface{}
	decode(t, body, &created)
	assert.Equal(t, true, created["notify"])

	status, body = ts.do(t, http.MethodGet, "/publicspace/posts", nil)
	require.Equal(t, http.StatusOK, status)

	var feed []map[string]interface{}
	decode(t, body, &feed)
	require.Len(t, feed, 1)
	assert.Equal(t, "What a CRICKET match", feed[0]["post"])
	assert.Equal(t, true, feed[0]["notify"])
}

func TestUserStats(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	ts.addFollowers(t, "mid@x.com", 3)
	ts.clock.Set(ist(14, 0))

	status, body := ts.do(t, http.MethodGet, "/publicspace/userstats/mid@x.com", nil)
	require.Equal(t, http.StatusOK, status)

	var stats UserStatsResponse
	decode(t, body, &stats)
	assert.Equal(t, 3, stats.Followers)
	assert.Equal(t, 0, stats.TodayPosts)
	assert.True(t, stats.CanPost)
	assert.Empty(t, stats.Reason)
	assert.Equal(t, "2 posts", stats.PostingRules.DailyLimit)
	assert.Equal(t, policy.TimeWindowLabel, stats.PostingRules.TimeWindow)

	status, body = ts.do(t, http.MethodGet, "/publicspace/userstats/nobody@x.com", nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, body, &stats)
	assert.Equal(t, 0, stats.Followers)
	assert.False(t, stats.CanPost)
	assert.Equal(t, policy.OutsideTimeWindow, stats.Reason)
	assert.Equal(t, "1 post", stats.PostingRules.DailyLimit)
}

func TestFollowLifecycle(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	req := FollowRequest{Follower: "a@x.com", Following: "b@x.com"}

	status, body := ts.do(t, http.MethodPost, "/follow", req)
	require.Equal(t, http.StatusOK, status)
	var first map[string]interface{}
	decode(t, body, &first)
	assert.Equal(t, true, first["created"])

	status, body = ts.do(t, http.MethodPost, "/follow", req)
	require.Equal(t, http.StatusOK, status)
	var second map[string]interface{}
	decode(t, body, &second)
	assert.Equal(t, false, second["created"])
	assert.Equal(t, first["insertedId"], second["insertedId"])

	status, body = ts.do(t, http.MethodGet, "/followers/b@x.com", nil)
	require.Equal(t, http.StatusOK, status)
	var followers []map[string]interface{}
	decode(t, body, &followers)
	require.Len(t, followers, 1)
	assert.Equal(t, "a@x.com", followers[0]["follower"])

	status, body = ts.do(t, http.MethodGet, "/following/a@x.com", nil)
	require.Equal(t, http.StatusOK, status)
	var following []map[string]interface{}
	decode(t, body, &following)
	require.Len(t, following, 1)
	assert.Equal(t, "b@x.com", following[0]["following"])

	status, body = ts.do(t, http.MethodDelete, "/unfollow", req)
	require.Equal(t, http.StatusOK, status)
	var removed map[string]int
	decode(t, body, &removed)
	assert.Equal(t, 1, removed["deletedCount"])

	status, body = ts.do(t, http.MethodDelete, "/unfollow", req)
	require.Equal(t, http.StatusOK, status)
	decode(t, body, &removed)
	assert.Equal(t, 0, removed["deletedCount"])

	status, body = ts.do(t, http.MethodGet, "/followers/b@x.com", nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, body, &followers)
	assert.Empty(t, followers)
}

func TestFollowValidation(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})

	for _, req := range []FollowRequest{
		{Following: "b@x.com"},
		{Follower: "a@x.com"},
		{Follower: "a@x.com", Following: "a@x.com"},
	} {
		status, _ := ts.do(t, http.MethodPost, "/follow", req)
		assert.Equal(t, http.StatusBadRequest, status, "%+v", req)
	}

	n, err := ts.store.FollowerCount(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUserEndpoints(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})

	status, body := ts.do(t, http.MethodGet, "/loggedinuser?email=ann@x.com", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))

	status, body = ts.do(t, http.MethodPost, "/register", map[string]string{
		"email": "ann@x.com",
		"name":  "Ann",
	})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"insertedId":"ann@x.com"}`, string(body))

	status, body = ts.do(t, http.MethodPatch, "/userupdate/ann@x.com", map[string]string{"bio": "hi"})
	require.Equal(t, http.StatusOK, status)
	var upd map[string]interface{}
	decode(t, body, &upd)
	assert.Equal(t, false, upd["upserted"])
	assert.EqualValues(t, 1, upd["modifiedCount"])

	status, body = ts.do(t, http.MethodGet, "/loggedinuser?email=ann@x.com", nil)
	require.Equal(t, http.StatusOK, status)
	var users []map[string]interface{}
	decode(t, body, &users)
	require.Len(t, users, 1)
	assert.Equal(t, "Ann", users[0]["name"])
	assert.Equal(t, "hi", users[0]["bio"])

	status, body = ts.do(t, http.MethodPatch, "/userupdate/bob@x.com", map[string]string{"name": "Bob"})
	require.Equal(t, http.StatusOK, status)
	decode(t, body, &upd)
	assert.Equal(t, true, upd["upserted"])

	status, body = ts.do(t, http.MethodGet, "/user", nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, body, &users)
	assert.Len(t, users, 2)

	status, _ = ts.do(t, http.MethodPost, "/register", map[string]string{"name": "nobody"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = ts.do(t, http.MethodGet, "/loggedinuser", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOrdinaryPostsAreUnrestricted(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})

	for i := 0; i < 3; i++ {
		ts.clock.Set(ist(14, i))
		status, body := ts.do(t, http.MethodPost, "/post", CreatePostRequest{
			Email: "free@x.com",
			Post:  fmt.Sprintf("science note %d", i),
		})
		require.Equal(t, http.StatusOK, status, string(body))
	}
	ts.clock.Set(ist(14, 5))
	status, _ := ts.do(t, http.MethodPost, "/post", CreatePostRequest{Email: "other@x.com", Post: "hello"})
	require.Equal(t, http.StatusOK, status)

	status, body := ts.do(t, http.MethodGet, "/userpost?email=free@x.com", nil)
	require.Equal(t, http.StatusOK, status)

	var feed []map[string]interface{}
	decode(t, body, &feed)
	require.Len(t, feed, 3)
	assert.Equal(t, "science note 2", feed[0]["post"])
	assert.Equal(t, "science note 0", feed[2]["post"])
	assert.Equal(t, true, feed[0]["notify"])
	assert.Equal(t, false, feed[0]["publicSpace"])

	status, body = ts.do(t, http.MethodGet, "/post", nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, body, &feed)
	assert.Len(t, feed, 4)
	assert.Equal(t, "hello", feed[0]["post"])

	// ordinary posts never touch the daily ledger
	count, err := ts.store.CountPostsToday(context.Background(), "free@x.com", policy.Day(ist(14, 0)))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRateLimitedRoutes(t *testing.T) {
	ts := newTestServer(t, RouterOptions{
		RateLimiter: middleware.NewRateLimiter(0.001, 2, time.Minute),
	})

	for i := 0; i < 2; i++ {
		status, _ := ts.do(t, http.MethodGet, "/post", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, body := ts.do(t, http.MethodGet, "/post", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Contains(t, string(body), utils.ErrTooManyRequests)

	// probes are never throttled
	status, _ = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestForwardingHeadersNeedTrustProxy(t *testing.T) {
	send := func(ts *testServer, forwardedFor string) int {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/post", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// rotating the header does not mint new buckets
	direct := newTestServer(t, RouterOptions{
		RateLimiter: middleware.NewRateLimiter(0.001, 1, time.Minute),
	})
	assert.Equal(t, http.StatusOK, send(direct, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, send(direct, "203.0.113.2"))

	// behind a trusted proxy each forwarded client has its own bucket
	proxied := newTestServer(t, RouterOptions{
		TrustProxy:  true,
		RateLimiter: middleware.NewRateLimiter(0.001, 1, time.Minute),
	})
	assert.Equal(t, http.StatusOK, send(proxied, "203.0.113.1"))
	assert.Equal(t, http.StatusOK, send(proxied, "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, send(proxied, "203.0.113.2"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, RouterOptions{MetricsEnabled: true})
	ts.addFollowers(t, "m@x.com", 10)

	status, _ := ts.do(t, http.MethodPost, "/publicspace/post", PublicSpacePostRequest{Email: "m@x.com", Post: "hi"})
	require.Equal(t, http.StatusCreated, status)

	status, body := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	text := string(body)
	assert.True(t, strings.Contains(text, "twiller_publicspace_verdicts_total"), text)
	assert.Contains(t, text, "twiller_http_requests_total")

	disabled := newTestServer(t, RouterOptions{})
	status, _ = disabled.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
