package handlers

import (
	"net/http"
	"strings"

	"twiller/internal/utils"

	"github.com/go-chi/chi/v5"
)

// FollowRequest is the body of POST /follow and DELETE /unfollow
type FollowRequest struct {
	Follower  string `json:"follower"`
	Following string `json:"following"`
}

func (s *Server) decodeFollow(w http.ResponseWriter, r *http.Request) (FollowRequest, bool) {
	var req FollowRequest
	if !s.decodeJSON(w, r, &req) {
		return req, false
	}
	req.Follower = strings.TrimSpace(req.Follower)
	req.Following = strings.TrimSpace(req.Following)

	if req.Follower == "" || req.Following == "" {
		s.writeError(w, r, utils.NewInvalidInputError("follower and following are required"))
		return req, false
	}
	if req.Follower == req.Following {
		s.writeError(w, r, utils.NewInvalidInputError("users cannot follow themselves"))
		return req, false
	}
	return req, true
}

// HandleFollow stores a follow edge; repeating it is a no-op
func (s *Server) HandleFollow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.decodeFollow(w, r)
		if !ok {
			return
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		edge, created, err := s.Store.Follow(ctx, req.Follower, req.Following, s.Clock.Now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.Logger.Debug().
			Str("follower", req.Follower).
			Str("following", req.Following).
			Bool("created", created).
			Msg("Follow")

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"insertedId": edge.ID,
			"created":    created,
		})
	}
}

// HandleUnfollow removes a follow edge
func (s *Server) HandleUnfollow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.decodeFollow(w, r)
		if !ok {
			return
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		removed, err := s.Store.Unfollow(ctx, req.Follower, req.Following)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int{"deletedCount": removed})
	}
}

// HandleFollowers lists the edges pointing at {email}
func (s *Server) HandleFollowers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.storeContext(r)
		defer cancel()

		edges, err := s.Store.ListFollowers(ctx, chi.URLParam(r, "email"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, edges)
	}
}

// HandleFollowing lists the edges starting at {email}
func (s *Server) HandleFollowing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.storeContext(r)
		defer cancel()

		edges, err := s.Store.ListFollowing(ctx, chi.URLParam(r, "email"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, edges)
	}
}
