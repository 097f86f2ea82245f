package simulator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// postResponse covers both the 201 and the 403 bodies of POST /publicspace/post.
type postResponse struct {
	InsertedID string `json:"insertedId"`
	Code       string `json:"code"`
	Error      string `json:"error"`
}

type statsResponse struct {
	Followers  int    `json:"followers"`
	TodayPosts int    `json:"todayPosts"`
	CanPost    bool   `json:"canPost"`
	Reason     string `json:"reason"`
}

// simulateActivities runs the workers until ctx is done. Each worker paces itself so
// the whole pool produces PostFrequency actions per user per minute.
func (s *EnhancedSimulator) simulateActivities(ctx context.Context) {
	perSecond := float64(len(s.users)) * s.config.PostFrequency / 60
	if perSecond <= 0 || len(s.users) == 0 {
		<-ctx.Done()
		return
	}
	interval := time.Duration(float64(s.config.Workers) / perSecond * float64(time.Second))

	g := new(errgroup.Group)
	for w := 0; w < s.config.Workers; w++ {
		workerID := w
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.act(ctx, workerID)
				}
			}
		})
	}
	g.Wait()
}

func (s *EnhancedSimulator) act(ctx context.Context, workerID int) {
	s.rngMu.Lock()
	user := s.users[s.rng.Intn(len(s.users))]
	readStats := s.rng.Float64() < s.config.StatsFrequency
	s.rngMu.Unlock()

	if readStats {
		s.readStats(ctx, user)
		return
	}
	s.submitPost(ctx, workerID, user)
}

func (s *EnhancedSimulator) submitPost(ctx context.Context, workerID int, user *SimulatedUser) {
	var out postResponse
	resp, err := s.do(ctx, http.MethodPost, "/publicspace/post", map[string]string{
		"email":    user.Email,
		"post":     fmt.Sprintf("worker %d says hello at %s", workerID, time.Now().Format(time.RFC3339Nano)),
		"name":     user.Username,
		"username": user.Username,
	}, &out, http.StatusForbidden)

	if ctx.Err() != nil {
		// the run ended mid-request
		return
	}

	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	s.stats.attempts++

	switch {
	case err != nil:
		s.stats.errors++
		s.logger.Warn().Err(err).Str("email", user.Email).Msg("Post failed")
	case resp.StatusCode() == http.StatusForbidden:
		s.stats.denied[out.Code]++
	default:
		s.stats.accepted++
		s.stats.byTier[TierLabel(user.Followers)]++
	}
}

func (s *EnhancedSimulator) readStats(ctx context.Context, user *SimulatedUser) {
	var out statsResponse
	_, err := s.do(ctx, http.MethodGet, "/publicspace/userstats/"+user.Email, nil, &out)
	if ctx.Err() != nil {
		return
	}

	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	if err != nil {
		s.stats.errors++
		s.logger.Warn().Err(err).Str("email", user.Email).Msg("Stats read failed")
		return
	}
	s.stats.statsReads++
	s.logger.Debug().
		Str("email", user.Email).
		Int("followers", out.Followers).
		Int("todayPosts", out.TodayPosts).
		Bool("canPost", out.CanPost).
		Msg("Stats")
}
