package handlers

import (
	"net/http"

	"twiller/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterOptions are the HTTP concerns that sit in front of the handlers.
type RouterOptions struct {
	AllowedOrigins []string
	MetricsEnabled bool
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP. Enable it
	// only behind a proxy that sets those headers.
	TrustProxy bool
	// RateLimiter throttles clients when set.
	RateLimiter *middleware.RateLimiter
}

// Routes builds the chi router for every endpoint.
func (s *Server) Routes(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(s.Logger, s.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig(opts.AllowedOrigins)))

	r.Get("/", s.HandleRoot())
	r.Get("/health", s.HandleHealth())
	if opts.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Middleware)
		}

		// Public space
		r.Post("/publicspace/post", s.HandlePublicSpacePost())
		r.Get("/publicspace/posts", s.HandlePublicSpacePosts())
		r.Get("/publicspace/userstats/{email}", s.HandleUserStats())

		// Follows
		r.Post("/follow", s.HandleFollow())
		r.Delete("/unfollow", s.HandleUnfollow())
		r.Get("/followers/{email}", s.HandleFollowers())
		r.Get("/following/{email}", s.HandleFollowing())

		// Users
		r.Post("/register", s.HandleRegister())
		r.Get("/loggedinuser", s.HandleLoggedInUser())
		r.Get("/user", s.HandleUsers())
		r.Patch("/userupdate/{email}", s.HandleUserUpdate())

		// Ordinary posts
		r.Post("/post", s.HandleCreatePost())
		r.Get("/post", s.HandleGetPosts())
		r.Get("/userpost", s.HandleUserPosts())
	})

	return r
}
