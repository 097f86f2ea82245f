// Package simulator drives a running server with synthetic users: it registers them,
// builds a Zipf-shaped follower graph and then fires public space posts, tallying the
// server's verdicts.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type SimConfig struct {
	EngineURL string
	NumUsers  int
	// MaxFollowers caps the followers any one user gets; popularity follows Zipf(ZipfS).
	MaxFollowers   int
	ZipfS          float64
	SimulationTime time.Duration
	// PostFrequency is post attempts per user per minute.
	PostFrequency float64
	// StatsFrequency is the share of actions that read stats instead of posting.
	StatsFrequency float64
	Workers        int
	Seed           int64
}

// DefaultConfig is a small run against a local server.
func DefaultConfig() SimConfig {
	return SimConfig{
		EngineURL:      "http://localhost:5000",
		NumUsers:       50,
		MaxFollowers:   15,
		ZipfS:          1.07,
		SimulationTime: time.Minute,
		PostFrequency:  2,
		StatsFrequency: 0.1,
		Workers:        8,
		Seed:           time.Now().UnixNano(),
	}
}

// SimulatedUser is one synthetic account.
type SimulatedUser struct {
	Email     string
	Username  string
	Followers int
}

// SimulationMetrics is the outcome of a run.
type SimulationMetrics struct {
	TotalUsers     int
	TotalFollows   int
	Attempts       int
	Accepted       int
	Denied         map[string]int
	StatsReads     int
	ErrorCount     int
	AverageLatency time.Duration
	Elapsed        time.Duration
	// AcceptedByTier counts accepted posts by the author's follower tier label.
	AcceptedByTier map[string]int
}

type stats struct {
	mu           sync.Mutex
	start        time.Time
	follows      int
	attempts     int
	accepted     int
	denied       map[string]int
	statsReads   int
	errors       int
	totalLatency time.Duration
	requests     int
	byTier       map[string]int
}

// EnhancedSimulator runs one simulation. It is not reusable.
type EnhancedSimulator struct {
	config SimConfig
	client *resty.Client
	logger zerolog.Logger
	users  []*SimulatedUser
	stats  *stats

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEnhancedSimulator(config SimConfig, logger zerolog.Logger) *EnhancedSimulator {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	client := resty.New().
		SetBaseURL(config.EngineURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests
		})

	return &EnhancedSimulator{
		config: config,
		client: client,
		logger: logger.With().Str("component", "simulator").Logger(),
		stats: &stats{
			denied: make(map[string]int),
			byTier: make(map[string]int),
		},
		rng: rand.New(rand.NewSource(config.Seed)),
	}
}

// Run sets up users and follows, then generates traffic until SimulationTime elapses
// or ctx is done.
func (s *EnhancedSimulator) Run(ctx context.Context) error {
	s.stats.start = time.Now()
	s.logger.Info().Int("users", s.config.NumUsers).Msg("Starting simulation")

	if err := s.createInitialUsers(ctx); err != nil {
		return errors.Wrap(err, "create users")
	}
	if err := s.buildFollowGraph(ctx); err != nil {
		return errors.Wrap(err, "build follow graph")
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.SimulationTime)
	defer cancel()
	s.simulateActivities(runCtx)

	s.logger.Info().Msg("Simulation finished")
	return nil
}

func (s *EnhancedSimulator) createInitialUsers(ctx context.Context) error {
	s.users = make([]*SimulatedUser, s.config.NumUsers)
	for i := range s.users {
		s.users[i] = &SimulatedUser{
			Email:    fmt.Sprintf("user_%d@sim.test", i),
			Username: fmt.Sprintf("user_%d", i),
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for _, u := range s.users {
		u := u
		g.Go(func() error {
			_, err := s.do(ctx, http.MethodPost, "/register", map[string]string{
				"email":    u.Email,
				"name":     u.Username,
				"username": u.Username,
			}, nil)
			return errors.Wrapf(err, "register %s", u.Email)
		})
	}
	return g.Wait()
}

// buildFollowGraph gives user i a Zipf-drawn follower count, so a few users are popular
// and most have none or one.
func (s *EnhancedSimulator) buildFollowGraph(ctx context.Context) error {
	n := len(s.users)
	if n < 2 || s.config.MaxFollowers < 1 {
		return nil
	}
	limit := s.config.MaxFollowers
	if limit > n-1 {
		limit = n - 1
	}

	s.rngMu.Lock()
	zipf := rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(limit))
	type edge struct{ follower, following string }
	var edges []edge
	for i, u := range s.users {
		u.Followers = int(zipf.Uint64())
		picked := 0
		for _, j := range s.rng.Perm(n) {
			if picked == u.Followers {
				break
			}
			if j == i {
				continue
			}
			edges = append(edges, edge{s.users[j].Email, u.Email})
			picked++
		}
	}
	s.rngMu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for _, e := range edges {
		e := e
		g.Go(func() error {
			_, err := s.do(ctx, http.MethodPost, "/follow", map[string]string{
				"follower":  e.follower,
				"following": e.following,
			}, nil)
			if err != nil {
				return errors.Wrapf(err, "follow %s -> %s", e.follower, e.following)
			}
			s.stats.mu.Lock()
			s.stats.follows++
			s.stats.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// TierLabel buckets a follower count the way the posting rules do.
func TierLabel(followers int) string {
	switch {
	case followers >= 10:
		return "10+"
	case followers >= 2:
		return "2-9"
	case followers == 1:
		return "1"
	default:
		return "0"
	}
}

// Users returns the simulated accounts with their assigned follower counts.
func (s *EnhancedSimulator) Users() []*SimulatedUser {
	return s.users
}

// GetMetrics snapshots the counters.
func (s *EnhancedSimulator) GetMetrics() SimulationMetrics {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	m := SimulationMetrics{
		TotalUsers:     len(s.users),
		TotalFollows:   s.stats.follows,
		Attempts:       s.stats.attempts,
		Accepted:       s.stats.accepted,
		Denied:         make(map[string]int, len(s.stats.denied)),
		StatsReads:     s.stats.statsReads,
		ErrorCount:     s.stats.errors,
		AcceptedByTier: make(map[string]int, len(s.stats.byTier)),
		Elapsed:        time.Since(s.stats.start),
	}
	for k, v := range s.stats.denied {
		m.Denied[k] = v
	}
	for k, v := range s.stats.byTier {
		m.AcceptedByTier[k] = v
	}
	if s.stats.requests > 0 {
		m.AverageLatency = s.stats.totalLatency / time.Duration(s.stats.requests)
	}
	return m
}

// DeniedReasons lists the denial reasons seen, sorted.
func (m SimulationMetrics) DeniedReasons() []string {
	reasons := make([]string, 0, len(m.Denied))
	for r := range m.Denied {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	return reasons
}

// do sends one JSON request. Any status other than 2xx is an error unless accept
// lists it.
func (s *EnhancedSimulator) do(ctx context.Context, method, path string, body interface{}, result interface{}, accept ...int) (*resty.Response, error) {
	req := s.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result).SetError(result)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	s.recordLatency(time.Since(start))
	if err != nil {
		return nil, err
	}
	if resp.IsSuccess() {
		return resp, nil
	}
	for _, code := range accept {
		if resp.StatusCode() == code {
			return resp, nil
		}
	}
	return resp, errors.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode(), resp.String())
}

func (s *EnhancedSimulator) recordLatency(d time.Duration) {
	s.stats.mu.Lock()
	s.stats.requests++
	s.stats.totalLatency += d
	s.stats.mu.Unlock()
}
