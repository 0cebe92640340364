package wellness

import "time"

// Mood is a single self-reported mood score.
type Mood struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Score      int       `json:"score"`
	Note       string    `json:"note,omitempty"`
	Context    string    `json:"context,omitempty"`
	Activities []string  `json:"activities,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
