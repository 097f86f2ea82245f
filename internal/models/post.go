package models

import (
	"time"

	"github.com/google/uuid"
)

// Post is immutable once created. JSON names follow the web client's payloads.
type Post struct {
	ID              uuid.UUID `json:"id"`
	AuthorID        string    `json:"email"`
	Body            string    `json:"post"`
	Photo           string    `json:"photo,omitempty"`
	DisplayName     string    `json:"name,omitempty"`
	DisplayUsername string    `json:"username,omitempty"`
	AvatarURL       string    `json:"profilephoto,omitempty"`
	PublicSpace     bool      `json:"publicSpace"`
	CreatedAt       time.Time `json:"timestamp"`
}

// NewerFirst orders posts newest first; equal timestamps fall back to id so the
// order is stable across backends.
func NewerFirst(a, b *Post) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}
