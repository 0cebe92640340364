package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/solace/backend/internal/model/chat"
)

// ErrGenerationUnavailable covers failed, timed out and empty generations.
var ErrGenerationUnavailable = errors.New("response generation unavailable")

// Config tunes the generator.
type Config struct {
	Timeout time.Duration
	// HistoryLimit caps how many prior transcript entries are replayed to the model.
	HistoryLimit int
}

// Request is everything the generator needs for one reply.
type Request struct {
	Message  string
	Analysis chat.Analysis
	Memory   chat.Memory
	Goals    []string
	// History is the transcript before Message, oldest first.
	History []chat.Message
	// SystemPrompt overrides the default therapist instruction when non-empty.
	SystemPrompt string
}

// Service encapsulates the therapeutic reply chain.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	timeout      time.Duration
	historyLimit int
	logger       *slog.Logger
}

// NewService compiles the generation chain on top of chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config, logger *slog.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required for generation")
	}
	if logger == nil {
		logger = slog.Default()
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit < 0 {
		historyLimit = 0
	}

	promptTemplate := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage("{{.system}}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{{.query}}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chain:        runnable,
		timeout:      cfg.Timeout,
		historyLimit: historyLimit,
		logger:       logger.With("component", "generator"),
	}, nil
}

// Generate produces one therapeutic reply. The result is trimmed and never empty.
func (s *Service) Generate(ctx context.Context, req Request) (string, error) {
	query, err := buildResponsePrompt(req)
	if err != nil {
		return "", err
	}

	system := strings.TrimSpace(req.SystemPrompt)
	if system == "" {
		system = SystemPrompt
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  system,
		"history": s.buildHistoryMessages(req.History),
		"query":   query,
	})
	if err != nil {
		s.logger.Warn("generation call failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}

	var content string
	if response != nil {
		content = strings.TrimSpace(response.Content)
	}
	if content == "" {
		s.logger.Warn("generation returned empty output")
		return "", fmt.Errorf("%w: empty output", ErrGenerationUnavailable)
	}

	s.logger.Info("generated response", "length", len(content))
	return content, nil
}

func (s *Service) buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 || s.historyLimit == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > s.historyLimit {
		startIdx = len(messages) - s.historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
