// Package wellness records mood check-ins and completed activities.
package wellness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/solace/backend/internal/events"
	"github.com/zhouzirui/solace/backend/internal/model/wellness"
	"github.com/zhouzirui/solace/backend/internal/store"
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrInvalidMood     = errors.New("invalid mood entry")
	ErrInvalidActivity = errors.New("invalid activity entry")
)

// MoodInput is a mood check-in as submitted by the user.
type MoodInput struct {
	Score      int      `json:"score"`
	Note       string   `json:"note"`
	Context    string   `json:"context"`
	Activities []string `json:"activities"`
}

// ActivityInput is a completed activity as submitted by the user.
type ActivityInput struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Difficulty  int    `json:"difficulty"`
	Feedback    string `json:"feedback"`
}

// Service validates, stores and announces wellness entries.
type Service struct {
	store  store.Store
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		events: publisher,
		logger: logger.With("component", "wellness"),
		now:    time.Now,
	}
}

// CreateMood stores a mood score between 0 and 100 and emits mood/updated.
func (s *Service) CreateMood(ctx context.Context, userID string, in MoodInput) (wellness.Mood, error) {
	if userID == "" {
		return wellness.Mood{}, ErrUserRequired
	}
	if in.Score < 0 || in.Score > 100 {
		return wellness.Mood{}, fmt.Errorf("%w: score must be between 0 and 100", ErrInvalidMood)
	}

	mood := wellness.Mood{
		ID:         uuid.NewString(),
		UserID:     userID,
		Score:      in.Score,
		Note:       strings.TrimSpace(in.Note),
		Context:    strings.TrimSpace(in.Context),
		Activities: in.Activities,
		Timestamp:  s.now().UTC(),
	}
	if err := s.store.CreateMood(ctx, mood); err != nil {
		return wellness.Mood{}, err
	}

	s.logger.Info("mood entry created", "userId", userID)
	s.events.Publish(events.MoodUpdated, map[string]any{
		"userId":     userID,
		"mood":       mood.Score,
		"note":       mood.Note,
		"context":    mood.Context,
		"activities": mood.Activities,
		"timestamp":  mood.Timestamp,
	})
	return mood, nil
}

// LogActivity stores a completed activity and emits activity/completed.
func (s *Service) LogActivity(ctx context.Context, userID string, in ActivityInput) (wellness.Activity, error) {
	if userID == "" {
		return wellness.Activity{}, ErrUserRequired
	}
	in.Type = strings.TrimSpace(in.Type)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Type == "":
		return wellness.Activity{}, fmt.Errorf("%w: type is required", ErrInvalidActivity)
	case in.Name == "":
		return wellness.Activity{}, fmt.Errorf("%w: name is required", ErrInvalidActivity)
	case in.Duration < 0:
		return wellness.Activity{}, fmt.Errorf("%w: duration must not be negative", ErrInvalidActivity)
	}

	activity := wellness.Activity{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        in.Type,
		Name:        in.Name,
		Description: in.Description,
		Duration:    in.Duration,
		Difficulty:  in.Difficulty,
		Feedback:    in.Feedback,
		Timestamp:   s.now().UTC(),
	}
	if err := s.store.CreateActivity(ctx, activity); err != nil {
		return wellness.Activity{}, err
	}

	s.logger.Info("activity logged", "userId", userID, "type", activity.Type)
	s.events.Publish(events.ActivityCompleted, map[string]any{
		"userId":     userID,
		"id":         activity.ID,
		"type":       activity.Type,
		"name":       activity.Name,
		"duration":   activity.Duration,
		"difficulty": activity.Difficulty,
		"feedback":   activity.Feedback,
		"timestamp":  activity.Timestamp,
	})
	return activity, nil
}
