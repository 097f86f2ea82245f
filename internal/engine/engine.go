package engine

import (
	"context"
	"time"

	"twiller/internal/engine/actors"
	"twiller/internal/models"
	"twiller/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
)

// DefaultRequestTimeout bounds a round trip to the actors.
const DefaultRequestTimeout = 5 * time.Second

// Engine coordinates communication between the HTTP layer and the actors
type Engine struct {
	system     *actor.ActorSystem
	supervisor *actor.PID
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewEngine spawns the public space supervisor on system.
func NewEngine(system *actor.ActorSystem, deps actors.Deps, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if deps.StoreTimeout <= 0 || deps.StoreTimeout > timeout {
		deps.StoreTimeout = timeout
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewPublicSpaceSupervisor(deps)
	})
	pid := system.Root.Spawn(props)

	return &Engine{
		system:     system,
		supervisor: pid,
		timeout:    timeout,
		logger:     deps.Logger.With().Str("component", "engine").Logger(),
	}
}

// SubmitPublicPost evaluates post for its author and publishes it when allowed.
// A denial is a successful call carrying a non-allowed verdict.
func (e *Engine) SubmitPublicPost(ctx context.Context, post *models.Post) (*actors.SubmitResult, error) {
	result, err := e.request(ctx, "PublicSpaceSupervisor", func(reqCtx context.Context) interface{} {
		return &actors.SubmitPostMsg{Ctx: reqCtx, Post: post}
	})
	if err != nil {
		return nil, err
	}
	res, ok := result.(*actors.SubmitResult)
	if !ok {
		return nil, utils.NewAppError(utils.ErrInternal, "unexpected reply to submit", nil)
	}
	return res, nil
}

// UserStats reports the author's followers, today's count and current verdict.
func (e *Engine) UserStats(ctx context.Context, email string) (*actors.UserStats, error) {
	result, err := e.request(ctx, "PublicSpaceSupervisor", func(reqCtx context.Context) interface{} {
		return &actors.GetStatsMsg{Ctx: reqCtx, Email: email}
	})
	if err != nil {
		return nil, err
	}
	stats, ok := result.(*actors.UserStats)
	if !ok {
		return nil, utils.NewAppError(utils.ErrInternal, "unexpected reply to stats", nil)
	}
	return stats, nil
}

// ActivePosters is the number of live per-author actors.
func (e *Engine) ActivePosters(ctx context.Context) (int, error) {
	result, err := e.request(ctx, "PublicSpaceSupervisor", func(context.Context) interface{} {
		return &actors.GetCountsMsg{}
	})
	if err != nil {
		return 0, err
	}
	n, _ := result.(int)
	return n, nil
}

// Stop stops the supervisor and, with it, every poster actor.
func (e *Engine) Stop() error {
	return e.system.Root.StopFuture(e.supervisor).Wait()
}

// request sends the message built by build and waits for the reply.
//
// The message carries a context bounded by the engine timeout and ctx; once it is done
// the poster abandons the message before any side effect. The future waits one more
// timeout beyond that deadline, so a reply produced just before the deadline still
// reaches the caller instead of being reported as a timeout for work that happened.
// Replies that are errors are returned as errors.
func (e *Engine) request(ctx context.Context, actorName string, build func(context.Context) interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, utils.NewActorTimeoutError(actorName, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	deadline, _ := reqCtx.Deadline()
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, utils.NewActorTimeoutError(actorName, context.DeadlineExceeded)
	}

	future := e.system.Root.RequestFuture(e.supervisor, build(reqCtx), remaining+e.timeout)
	result, err := future.Result()
	if err != nil {
		e.logger.Error().Err(err).Str("actor", actorName).Msg("Actor request failed")
		return nil, utils.NewActorTimeoutError(actorName, err)
	}
	if appErr, ok := result.(error); ok {
		return nil, appErr
	}
	return result, nil
}
