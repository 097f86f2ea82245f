package models

import (
	"time"

	"github.com/google/uuid"
)

// Follow is a directed edge: Follower follows Following.
type Follow struct {
	ID        uuid.UUID `json:"id"`
	Follower  string    `json:"follower"`
	Following string    `json:"following"`
	CreatedAt time.Time `json:"timestamp"`
}

// DailyPost is one accepted public space post, charged to Day.
type DailyPost struct {
	UserEmail  string    `json:"userEmail"`
	Day        string    `json:"date"` // YYYY-MM-DD, posting-window timezone
	RecordedAt time.Time `json:"timestamp"`
}
