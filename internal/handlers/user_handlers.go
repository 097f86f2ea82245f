package handlers

import (
	"net/http"
	"strings"

	"twiller/internal/models"
	"twiller/internal/utils"

	"github.com/go-chi/chi/v5"
)

// HandleRegister creates or replaces a profile
func (s *Server) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user models.User
		if !s.decodeJSON(w, r, &user) {
			return
		}
		user.Email = strings.TrimSpace(user.Email)
		if user.Email == "" {
			s.writeError(w, r, utils.NewInvalidInputError("email is required"))
			return
		}

		now := s.Clock.Now()
		user.CreatedAt = now
		user.UpdatedAt = now

		ctx, cancel := s.storeContext(r)
		defer cancel()

		if err := s.Store.SaveUser(ctx, &user); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.Logger.Info().Str("email", user.Email).Msg("User registered")
		s.writeJSON(w, http.StatusOK, map[string]string{"insertedId": user.Email})
	}
}

// HandleLoggedInUser returns [user] for ?email=, or [] when unknown
func (s *Server) HandleLoggedInUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if email == "" {
			s.writeError(w, r, utils.NewInvalidInputError("email query parameter is required"))
			return
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		user, err := s.Store.GetUserByEmail(ctx, email)
		if utils.IsErrorCode(err, utils.ErrUserNotFound) {
			s.writeJSON(w, http.StatusOK, []*models.User{})
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, []*models.User{user})
	}
}

// HandleUsers lists every profile
func (s *Server) HandleUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.storeContext(r)
		defer cancel()

		users, err := s.Store.ListUsers(ctx)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, users)
	}
}

// HandleUserUpdate applies a partial profile change to {email}, creating it if needed
func (s *Server) HandleUserUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")

		var upd models.UserUpdate
		if !s.decodeJSON(w, r, &upd) {
			return
		}

		ctx, cancel := s.storeContext(r)
		defer cancel()

		upserted, err := s.Store.UpdateUser(ctx, email, &upd, s.Clock.Now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		modified := 1
		if upserted {
			modified = 0
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"modifiedCount": modified,
			"upserted":      upserted,
		})
	}
}
