package actors

import (
	stdctx "context"
	"fmt"
	"time"

	"twiller/internal/database"
	"twiller/internal/models"
	"twiller/internal/policy"
	"twiller/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
)

// Message types for public space operations
type (
	// SubmitPostMsg asks the author's poster actor to evaluate and, when allowed,
	// publish Post. Post.AuthorID selects the actor. Ctx is the caller's request
	// context: once it is done the submission is dropped without side effects.
	SubmitPostMsg struct {
		Ctx  stdctx.Context
		Post *models.Post
	}

	// GetStatsMsg asks for the author's current posting standing.
	GetStatsMsg struct {
		Ctx   stdctx.Context
		Email string
	}

	// GetCountsMsg asks the supervisor how many poster actors are live.
	GetCountsMsg struct{}
)

// SubmitResult is the reply to SubmitPostMsg. Post is nil when the verdict is a denial.
type SubmitResult struct {
	Verdict policy.Verdict
	Post    *models.Post
}

// UserStats is the reply to GetStatsMsg.
type UserStats struct {
	Email      string
	Followers  int
	TodayPosts int
	Verdict    policy.Verdict
}

// Deps are shared by every poster actor.
type Deps struct {
	Store   database.Store
	Clock   policy.Clock
	Metrics *utils.MetricsCollector
	Logger  zerolog.Logger

	// StoreTimeout bounds each storage call made while handling one message.
	StoreTimeout time.Duration
}

// PublicSpaceSupervisor owns one PosterActor per author and routes messages to it.
// Forwarding keeps the original sender, so the poster replies to the caller directly
// and the supervisor never waits on storage.
type PublicSpaceSupervisor struct {
	deps    Deps
	posters map[string]*actor.PID
	logger  zerolog.Logger
}

func NewPublicSpaceSupervisor(deps Deps) actor.Actor {
	if deps.Clock == nil {
		deps.Clock = policy.SystemClock
	}
	if deps.Metrics == nil {
		deps.Metrics = utils.NewMetricsCollector()
	}
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = 5 * time.Second
	}
	return &PublicSpaceSupervisor{
		deps:    deps,
		posters: make(map[string]*actor.PID),
		logger:  deps.Logger.With().Str("actor", "PublicSpaceSupervisor").Logger(),
	}
}

func (s *PublicSpaceSupervisor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		s.logger.Info().Msg("Started")
	case *actor.Stopping:
		s.logger.Info().Int("posters", len(s.posters)).Msg("Stopping")
	case *actor.Stopped:
		s.logger.Info().Msg("Stopped")
	case *actor.Restarting:
		s.logger.Warn().Msg("Restarting")

	case *SubmitPostMsg:
		if msg.Post == nil || msg.Post.AuthorID == "" {
			context.Respond(utils.NewInvalidInputError("post author is required"))
			return
		}
		context.Forward(s.posterFor(context, msg.Post.AuthorID))

	case *GetStatsMsg:
		if msg.Email == "" {
			context.Respond(utils.NewInvalidInputError("email is required"))
			return
		}
		context.Forward(s.posterFor(context, msg.Email))

	case *GetCountsMsg:
		context.Respond(len(s.posters))

	case *actor.Terminated:
		for email, pid := range s.posters {
			if pid.Equal(msg.Who) {
				delete(s.posters, email)
				s.logger.Debug().Str("email", email).Msg("Poster actor terminated")
				break
			}
		}

	default:
		s.logger.Warn().Str("type", typeName(msg)).Msg("Unknown message type")
	}
}

func (s *PublicSpaceSupervisor) posterFor(context actor.Context, email string) *actor.PID {
	if pid, ok := s.posters[email]; ok {
		return pid
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPosterActor(email, s.deps)
	})
	pid := context.Spawn(props)
	context.Watch(pid)
	s.posters[email] = pid
	s.logger.Debug().Str("email", email).Str("pid", pid.Id).Msg("Spawned poster actor")
	return pid
}

// PosterActor serialises every public space operation for one author. Because the
// mailbox handles one message at a time, the read of the ledgers, the post insert and
// the ledger append cannot interleave with another submission by the same author.
type PosterActor struct {
	email  string
	deps   Deps
	logger zerolog.Logger
}

func NewPosterActor(email string, deps Deps) *PosterActor {
	return &PosterActor{
		email:  email,
		deps:   deps,
		logger: deps.Logger.With().Str("actor", "PosterActor").Str("email", email).Logger(),
	}
}

func (a *PosterActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Debug().Msg("Started")
	case *actor.Stopping:
		a.logger.Debug().Msg("Stopping")
	case *actor.Stopped:
		a.logger.Debug().Msg("Stopped")
	case *actor.Restarting:
		a.logger.Warn().Msg("Restarting")

	case *SubmitPostMsg:
		a.handleSubmit(context, msg)
	case *GetStatsMsg:
		a.handleStats(context, msg)

	default:
		a.logger.Warn().Str("type", typeName(msg)).Msg("Unknown message type")
	}
}

// snapshot reads the two ledgers for day.
func (a *PosterActor) snapshot(ctx stdctx.Context, now time.Time) (policy.Snapshot, error) {
	followers, err := a.deps.Store.FollowerCount(ctx, a.email)
	if err != nil {
		return policy.Snapshot{}, err
	}
	postsToday, err := a.deps.Store.CountPostsToday(ctx, a.email, policy.Day(now))
	if err != nil {
		return policy.Snapshot{}, err
	}
	return policy.Snapshot{
		Followers:  followers,
		PostsToday: postsToday,
		InWindow:   policy.InWindow(now),
	}, nil
}

func (a *PosterActor) handleSubmit(context actor.Context, msg *SubmitPostMsg) {
	startTime := time.Now()
	defer func() {
		a.deps.Metrics.AddOperationLatency("publicspace_submit", time.Since(startTime))
	}()

	ctx, cancel := a.storeContext(msg.Ctx)
	defer cancel()

	if err := ctx.Err(); err != nil {
		a.logger.Debug().Err(err).Msg("Dropping abandoned submission")
		context.Respond(utils.NewActorTimeoutError("PosterActor", err))
		return
	}

	now := a.deps.Clock.Now()
	snap, err := a.snapshot(ctx, now)
	if err != nil {
		a.respondStoreError(context, ctx, "read posting ledgers", err)
		return
	}

	verdict := policy.Decide(snap)
	a.deps.Metrics.RecordVerdict(string(verdict.Reason))
	if !verdict.Allowed {
		a.logger.Info().
			Str("reason", string(verdict.Reason)).
			Int("followers", snap.Followers).
			Int("postsToday", snap.PostsToday).
			Msg("Public space post denied")
		context.Respond(&SubmitResult{Verdict: verdict})
		return
	}

	post := *msg.Post
	post.AuthorID = a.email
	post.PublicSpace = true
	post.CreatedAt = now

	// Last point at which the caller can still be told nothing happened.
	if err := ctx.Err(); err != nil {
		a.logger.Debug().Err(err).Msg("Dropping abandoned submission")
		context.Respond(utils.NewActorTimeoutError("PosterActor", err))
		return
	}

	if _, err := a.deps.Store.CreatePost(ctx, &post); err != nil {
		// Nothing was published, so nothing is charged to today's count.
		a.respondStoreError(context, ctx, "create post", err)
		return
	}

	// The post exists now, so the record is written even if the caller has gone.
	recordCtx, recordCancel := stdctx.WithTimeout(stdctx.Background(), a.deps.StoreTimeout)
	defer recordCancel()
	if err := a.deps.Store.RecordPost(recordCtx, a.email, policy.Day(now), now); err != nil {
		// The post is already visible; report success and leave the ledger short by one.
		a.logger.Error().Err(err).Str("postId", post.ID.String()).Msg("Failed to record daily post")
	}

	a.logger.Info().
		Str("postId", post.ID.String()).
		Int("followers", snap.Followers).
		Int("postsToday", snap.PostsToday+1).
		Msg("Public space post accepted")
	context.Respond(&SubmitResult{Verdict: verdict, Post: &post})
}

func (a *PosterActor) handleStats(context actor.Context, msg *GetStatsMsg) {
	ctx, cancel := a.storeContext(msg.Ctx)
	defer cancel()

	now := a.deps.Clock.Now()
	snap, err := a.snapshot(ctx, now)
	if err != nil {
		a.respondStoreError(context, ctx, "read posting ledgers", err)
		return
	}

	context.Respond(&UserStats{
		Email:      a.email,
		Followers:  snap.Followers,
		TodayPosts: snap.PostsToday,
		Verdict:    policy.Decide(snap),
	})
}

// storeContext bounds storage calls by StoreTimeout and by the caller's context.
func (a *PosterActor) storeContext(parent stdctx.Context) (stdctx.Context, stdctx.CancelFunc) {
	if parent == nil {
		parent = stdctx.Background()
	}
	return stdctx.WithTimeout(parent, a.deps.StoreTimeout)
}

// respondStoreError replies ACTOR_TIMEOUT when the store call failed because the
// caller's context ended, and DATABASE_ERROR otherwise.
func (a *PosterActor) respondStoreError(context actor.Context, ctx stdctx.Context, op string, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.logger.Warn().Err(err).Str("op", op).Msg("Store call outlived the request")
		context.Respond(utils.NewActorTimeoutError("PosterActor", ctxErr))
		return
	}
	a.logger.Error().Err(err).Str("op", op).Msg("Store call failed")
	context.Respond(utils.NewDatabaseError(op, err))
}

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}
