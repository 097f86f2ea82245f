package handlers

import (
	"net/http"
	"strings"

	"twiller/internal/models"
	"twiller/internal/policy"
	"twiller/internal/utils"

	"github.com/go-chi/chi/v5"
)

// PublicSpacePostRequest is the body of POST /publicspace/post
type PublicSpacePostRequest struct {
	Email        string `json:"email"`
	Post         string `json:"post"`
	Photo        string `json:"photo"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	ProfilePhoto string `json:"profilephoto"`
}

// UserStatsResponse is the body of GET /publicspace/userstats/{email}
type UserStatsResponse struct {
	Followers    int           `json:"followers"`
	TodayPosts   int           `json:"todayPosts"`
	CanPost      bool          `json:"canPost"`
	Reason       policy.Reason `json:"reason,omitempty"`
	PostingRules PostingRules  `json:"postingRules"`
}

type PostingRules struct {
	TimeWindow string `json:"timeWindow"`
	DailyLimit string `json:"dailyLimit"`
}

// HandlePublicSpacePost evaluates and publishes a public space post
func (s *Server) HandlePublicSpacePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublicSpacePostRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" {
			s.writeError(w, r, utils.NewInvalidInputError("email is required"))
			return
		}
		if strings.TrimSpace(req.Post) == "" {
			s.writeError(w, r, utils.NewInvalidInputError("post body is required"))
			return
		}

		result, err := s.Engine.SubmitPublicPost(r.Context(), &models.Post{
			AuthorID:        req.Email,
			Body:            req.Post,
			Photo:           req.Photo,
			DisplayName:     req.Name,
			DisplayUsername: req.Username,
			AvatarURL:       req.ProfilePhoto,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if !result.Verdict.Allowed {
			errText, reasonText := result.Verdict.Reason.Message()
			s.writeJSON(w, http.StatusForbidden, map[string]string{
				"error":  errText,
				"reason": reasonText,
				"code":   string(result.Verdict.Reason),
			})
			return
		}

		s.writeJSON(w, http.StatusCreated, map[string]interface{}{
			"insertedId": result.Post.ID,
			"post":       result.Post,
			"notify":     s.Notifier.ShouldNotify(result.Post.Body),
		})
	}
}

// HandlePublicSpacePosts lists every post, newest first
func (s *Server) HandlePublicSpacePosts() http.HandlerFunc {
	return s.HandleGetPosts()
}

// HandleUserStats reports followers, today's posts and whether the user may post now
func (s *Server) HandleUserStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")
		if email == "" {
			s.writeError(w, r, utils.NewInvalidInputError("email is required"))
			return
		}

		stats, err := s.Engine.UserStats(r.Context(), email)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, UserStatsResponse{
			Followers:  stats.Followers,
			TodayPosts: stats.TodayPosts,
			CanPost:    stats.Verdict.Allowed,
			Reason:     stats.Verdict.Reason,
			PostingRules: PostingRules{
				TimeWindow: policy.TimeWindowLabel,
				DailyLimit: policy.DailyLimitLabel(stats.Followers),
			},
		})
	}
}
