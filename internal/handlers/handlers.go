package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"twiller/internal/database"
	"twiller/internal/engine"
	"twiller/internal/models"
	"twiller/internal/notify"
	"twiller/internal/policy"
	"twiller/internal/utils"

	"github.com/rs/zerolog"
)

// Server holds all server dependencies, including the engine and the store
type Server struct {
	Engine         *engine.Engine
	Store          database.Store
	Metrics        *utils.MetricsCollector
	Notifier       *notify.Matcher
	Clock          policy.Clock
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	eng *engine.Engine,
	store database.Store,
	metrics *utils.MetricsCollector,
	notifier *notify.Matcher,
	logger zerolog.Logger,
) *Server {
	return &Server{
		Engine:         eng,
		Store:          store,
		Metrics:        metrics,
		Notifier:       notifier,
		Clock:          policy.SystemClock,
		Logger:         logger.With().Str("component", "http").Logger(),
		RequestTimeout: 5 * time.Second, // Default timeout for store calls
	}
}

// FeedItem is a post as served to clients, with the keyword notification decision.
type FeedItem struct {
	*models.Post
	Notify bool `json:"notify"`
}

func (s *Server) feed(posts []*models.Post) []FeedItem {
	items := make([]FeedItem, len(posts))
	for i, p := range posts {
		items[i] = FeedItem{Post: p, Notify: s.Notifier.ShouldNotify(p.Body)}
	}
	return items
}

// writeJSON encodes v with status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError maps err to a status through its AppError code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := utils.ErrorCode(err)
	status := utils.AppErrorToHTTPStatus(code)
	if code == "" {
		code = utils.ErrInternal
	}

	event := s.Logger.Warn()
	if status >= http.StatusInternalServerError {
		event = s.Logger.Error()
	}
	event.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("code", code).
		Msg("Request failed")

	message := err.Error()
	if status >= http.StatusInternalServerError {
		// Backend details stay in the log.
		message = http.StatusText(status)
	}
	s.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON reads the request body into v, answering 400 on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, utils.NewAppError(utils.ErrInvalidInput, "Invalid request body", err))
		return false
	}
	return true
}
