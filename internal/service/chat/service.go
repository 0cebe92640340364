package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zhouzirui/solace/backend/internal/events"
	"github.com/zhouzirui/solace/backend/internal/model/chat"
	"github.com/zhouzirui/solace/backend/internal/policy"
	"github.com/zhouzirui/solace/backend/internal/service/ai"
	"github.com/zhouzirui/solace/backend/internal/service/emotion"
	"github.com/zhouzirui/solace/backend/internal/service/session"
	"github.com/zhouzirui/solace/backend/internal/store"
)

var (
	ErrEmptyMessage = errors.New("message is required")
	// ErrPipelineUnavailable is returned when no generation capability is configured.
	ErrPipelineUnavailable = errors.New("chat pipeline is not configured")
)

// Analyzer extracts structured signals from one user message.
type Analyzer interface {
	Analyze(ctx context.Context, message string, sc emotion.Context) (chat.Analysis, error)
}

// Generator produces the assistant reply.
type Generator interface {
	Generate(ctx context.Context, req ai.Request) (string, error)
}

// Stage is a pipeline step reported to streaming transports.
type Stage string

const (
	StageAnalyzing  Stage = "analyzing"
	StageResponding Stage = "responding"
	StageSaving     Stage = "saving"
)

// Config tunes the orchestrator.
type Config struct {
	PipelineTimeout time.Duration
	MemoryWindow    int
}

// MessageRequest is one SendMessage call.
type MessageRequest struct {
	SessionID string
	CallerID  string
	Content   string
	// OnStage, when set, is called as the pipeline advances.
	OnStage func(Stage)
}

// Reply is the result of a successful exchange.
type Reply struct {
	Response string        `json:"response"`
	Message  string        `json:"message"`
	Analysis chat.Analysis `json:"analysis"`
	Metadata ReplyMetadata `json:"metadata"`
}

// ReplyMetadata mirrors the progress snapshot stored on the assistant message.
type ReplyMetadata struct {
	Progress chat.Progress `json:"progress"`
}

// SessionDetail is a session together with its transcript.
type SessionDetail struct {
	chat.Session
	Messages []chat.Message `json:"messages"`
}

// Service orchestrates the analyze, respond and persist pipeline for chat sessions.
type Service struct {
	sessions  *session.Registry
	store     store.Store
	analyzer  Analyzer
	generator Generator
	events    events.Publisher
	cfg       Config
	locks     *sessionLocks
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the orchestrator. analyzer and generator may be nil when no model
// is configured; ProcessMessage then fails with ErrPipelineUnavailable.
func NewService(registry *session.Registry, st store.Store, analyzer Analyzer, generator Generator, publisher events.Publisher, cfg Config, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 60 * time.Second
	}
	if cfg.MemoryWindow <= 0 {
		cfg.MemoryWindow = 10
	}

	return &Service{
		sessions:  registry,
		store:     st,
		analyzer:  analyzer,
		generator: generator,
		events:    publisher,
		cfg:       cfg,
		locks:     newSessionLocks(),
		logger:    logger.With("component", "chat"),
		now:       time.Now,
	}
}

// PipelineEnabled reports whether messages can be processed.
func (s *Service) PipelineEnabled() bool {
	return s.analyzer != nil && s.generator != nil
}

// CreateSession starts a session owned by callerID.
func (s *Service) CreateSession(ctx context.Context, callerID string) (chat.Session, error) {
	return s.sessions.CreateSession(ctx, callerID)
}

// ListSessions returns the caller's sessions, most recent first.
func (s *Service) ListSessions(ctx context.Context, callerID string) ([]chat.Summary, error) {
	return s.sessions.ListSessions(ctx, callerID)
}

// GetSession returns the session and its transcript.
func (s *Service) GetSession(ctx context.Context, sessionID, callerID string) (SessionDetail, error) {
	sess, err := s.sessions.Resolve(ctx, sessionID, callerID, policy.ActionRead)
	if err != nil {
		return SessionDetail{}, err
	}
	messages, err := s.messages(ctx, sessionID)
	if err != nil {
		return SessionDetail{}, err
	}
	return SessionDetail{Session: sess, Messages: messages}, nil
}

// GetHistory returns the transcript in insertion order. It has no side effects.
func (s *Service) GetHistory(ctx context.Context, sessionID, callerID string) ([]chat.Message, error) {
	if _, err := s.sessions.Resolve(ctx, sessionID, callerID, policy.ActionRead); err != nil {
		return nil, err
	}
	return s.messages(ctx, sessionID)
}

// UpdateStatus changes the lifecycle status. It waits for any in-flight exchange on the session.
func (s *Service) UpdateStatus(ctx context.Context, sessionID, callerID string, status chat.Status) (chat.Session, error) {
	unlock, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	defer unlock()

	return s.sessions.UpdateStatus(ctx, sessionID, callerID, status)
}

// ProcessMessage runs one exchange: analyze the message, generate a reply and append
// both to the transcript atomically. On any failure the transcript is left unchanged.
func (s *Service) ProcessMessage(ctx context.Context, req MessageRequest) (Reply, error) {
	if strings.TrimSpace(req.Content) == "" {
		return Reply{}, ErrEmptyMessage
	}
	received := s.now().UTC()

	if _, err := s.sessions.Resolve(ctx, req.SessionID, req.CallerID, policy.ActionWrite); err != nil {
		return Reply{}, err
	}
	if !s.PipelineEnabled() {
		return Reply{}, ErrPipelineUnavailable
	}

	unlock, err := s.locks.acquire(ctx, req.SessionID)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	// The session may have been archived while we waited.
	if _, err := s.sessions.Resolve(ctx, req.SessionID, req.CallerID, policy.ActionWrite); err != nil {
		return Reply{}, err
	}

	// A caller that goes away must not leave a half-finished exchange behind.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PipelineTimeout)
	defer cancel()

	history, err := s.messages(pctx, req.SessionID)
	if err != nil {
		return Reply{}, err
	}
	memory := chat.BuildMemory(history, s.cfg.MemoryWindow)
	goals := []string{}

	s.events.Publish(events.SessionMessage, map[string]any{
		"sessionId":    req.SessionID,
		"userId":       req.CallerID,
		"message":      req.Content,
		"timestamp":    received,
		"memory":       memory,
		"goals":        goals,
		"systemPrompt": ai.SystemPrompt,
	})

	logger := s.logger.With("sessionId", req.SessionID)

	s.stage(req, StageAnalyzing)
	analysis, err := s.analyzer.Analyze(pctx, req.Content, emotion.Context{Memory: memory, Goals: goals})
	if err != nil {
		logger.Error("message analysis failed", "error", err)
		return Reply{}, err
	}

	s.stage(req, StageResponding)
	response, err := s.generator.Generate(pctx, ai.Request{
		Message:  req.Content,
		Analysis: analysis,
		Memory:   memory,
		Goals:    goals,
		History:  history,
	})
	if err != nil {
		logger.Error("response generation failed", "error", err)
		return Reply{}, err
	}

	s.stage(req, StageSaving)
	metadata := chat.NewAssistantMetadata(analysis)
	_, err = s.store.AppendMessages(pctx, req.SessionID, []chat.Message{
		{Role: chat.RoleUser, Content: req.Content, Timestamp: received},
		{Role: chat.RoleAssistant, Content: response, Timestamp: s.now().UTC(), Metadata: metadata},
	})
	if errors.Is(err, store.ErrNotFound) {
		return Reply{}, fmt.Errorf("%w: %s", session.ErrNotFound, req.SessionID)
	}
	if errors.Is(err, store.ErrSessionClosed) {
		// Closed by another instance while the pipeline ran.
		logger.Warn("session closed before exchange was saved")
		return Reply{}, fmt.Errorf("%w: %s", session.ErrInactive, req.SessionID)
	}
	if err != nil {
		logger.Error("failed to persist exchange", "error", err)
		return Reply{}, err
	}

	logger.Info("exchange processed", "riskLevel", analysis.RiskLevel, "replyLength", len(response))
	return Reply{
		Response: response,
		Message:  response,
		Analysis: metadata.Analysis,
		Metadata: ReplyMetadata{Progress: metadata.Progress},
	}, nil
}

func (s *Service) messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	messages, err := s.store.Messages(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

func (s *Service) stage(req MessageRequest, stage Stage) {
	if req.OnStage != nil {
		req.OnStage(stage)
	}
}
