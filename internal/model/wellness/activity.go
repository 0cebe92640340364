package wellness

import "time"

// Activity records a completed wellbeing activity.
type Activity struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Duration    int       `json:"duration,omitempty"`
	Difficulty  int       `json:"difficulty,omitempty"`
	Feedback    string    `json:"feedback,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
