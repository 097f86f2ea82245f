package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"twiller/internal/models"
	"twiller/internal/utils"
)

// CreatePostRequest is the body of POST /post. Ordinary posts are not rate limited.
type CreatePostRequest struct {
	Email        string `json:"email"`
	Post         string `json:"post"`
	Photo        string `json:"photo"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	ProfilePhoto string `json:"profilephoto"`
}

// storeContext bounds a direct store call by the request and RequestTimeout.
func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.RequestTimeout)
}

// HandleRoot answers the liveness probe
func (s *Server) HandleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Twiller is working"))
	}
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.storeContext(r)
		defer cancel()

		postCount, err := s.Store.CountPosts(ctx)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Health check failed")
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":      "unhealthy",
				"backend":     s.Store.Name(),
				"server_time": s.Clock.Now(),
			})
			return
		}

		posters, err := s.Engine.ActivePosters(ctx)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("Failed to count poster actors")
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "healthy",
			"backend":        s.Store.Name(),
			"post_count":     postCount,
			"active_posters": posters,
			"uptime":         s.Metrics.Uptime().Round(time.Second).String(),
			"server_time":    s.Clock.Now(),
		})
	}
}

// HandleCreatePost stores an ordinary post without any posting policy
func (s *Server) HandleCreatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePostRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" {
			s.writeError(w, r, utils.NewInvalidInputError("email is required"))
			return
		}

		post := &models.Post{
			AuthorID:        req.Email,
			Body:            req.Post,
			Photo:           req.Photo,
			DisplayName:     req.Name,
			DisplayUsername: req.Username,
			AvatarURL:       req.ProfilePhoto,
			CreatedAt:       s.Clock.Now(),
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		startTime := time.Now()
		id, err := s.Store.CreatePost(ctx, post)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.Metrics.AddOperationLatency("create_post", time.Since(startTime))

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"insertedId": id,
			"notify":     s.Notifier.ShouldNotify(post.Body),
		})
	}
}

// HandleGetPosts lists every post, newest first
func (s *Server) HandleGetPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.storeContext(r)
		defer cancel()

		posts, err := s.Store.ListPosts(ctx)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.feed(posts))
	}
}

// HandleUserPosts lists the posts of ?email=, newest first
func (s *Server) HandleUserPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if email == "" {
			s.writeError(w, r, utils.NewInvalidInputError("email query parameter is required"))
			return
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		posts, err := s.Store.ListPostsByAuthor(ctx, email)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.feed(posts))
	}
}
