package emotion

import (
	"context"
	"encoding/json"
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

var (
	// ErrAnalysisParse means the model answered but not with the required JSON object.
	ErrAnalysisParse = errors.New("analysis output could not be parsed")
	// ErrAnalysisUnavailable means the model call itself failed or timed out.
	ErrAnalysisUnavailable = errors.New("analysis unavailable")
)

// Context is the session state the analyzer sees alongside the message.
type Context struct {
	Memory chat.Memory `json:"memory"`
	Goals  []string    `json:"goals"`
}

// Config 控制分析调用的行为。
type Config struct {
	Timeout time.Duration
}

// Service extracts a structured Analysis from a single user message.
type Service struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
	timeout    time.Duration
	logger     *slog.Logger
}

// NewService compiles the analysis chain on top of chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config, logger *slog.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required for analysis")
	}
	if logger == nil {
		logger = slog.Default()
	}

	promptTemplate := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(analysisSystemPrompt),
		schema.UserMessage(analysisUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile analysis chain: %w", err)
	}

	return &Service{
		classifier: runnable,
		timeout:    cfg.Timeout,
		logger:     logger.With("component", "analyzer"),
	}, nil
}

// Analyze runs one model call and parses its answer. There is no retry and no
// heuristic fallback: a failed call or malformed answer is returned as an error.
func (s *Service) Analyze(ctx context.Context, message string, sc Context) (chat.Analysis, error) {
	if sc.Goals == nil {
		sc.Goals = []string{}
	}
	contextJSON, err := json.Marshal(sc)
	if err != nil {
		return chat.Analysis{}, fmt.Errorf("failed to encode analysis context: %w", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{
		"message": message,
		"context": string(contextJSON),
	})
	if err != nil {
		s.logger.Warn("analysis call failed", "error", err)
		return chat.Analysis{}, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}
	if msg == nil {
		return chat.Analysis{}, fmt.Errorf("%w: empty model reply", ErrAnalysisParse)
	}

	analysis, err := Parse(msg.Content)
	if err != nil {
		s.logger.Warn("analysis output rejected", "error", err, "length", len(msg.Content))
		return chat.Analysis{}, err
	}

	s.logger.Info("message analysed",
		"emotionalState", analysis.EmotionalState,
		"riskLevel", analysis.RiskLevel,
		"themes", len(analysis.Themes),
	)
	return analysis, nil
}

// Sanitize strips surrounding whitespace and a Markdown code fence from raw model output.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the info string, e.g. "json"
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// Parse decodes sanitized model output into an Analysis. All five fields must be present.
func Parse(raw string) (chat.Analysis, error) {
	text := Sanitize(raw)
	if text == "" {
		return chat.Analysis{}, fmt.Errorf("%w: empty output", ErrAnalysisParse)
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return chat.Analysis{}, fmt.Errorf("%w: %w", ErrAnalysisParse, err)
	}

	var missing []string
	if payload.EmotionalState == nil {
		missing = append(missing, "emotionalState")
	}
	if payload.Themes == nil {
		missing = append(missing, "themes")
	}
	if payload.RiskLevel == nil {
		missing = append(missing, "riskLevel")
	}
	if payload.RecommendedApproach == nil {
		missing = append(missing, "recommendedApproach")
	}
	if payload.ProgressIndicators == nil {
		missing = append(missing, "progressIndicators")
	}
	if len(missing) > 0 {
		return chat.Analysis{}, fmt.Errorf("%w: missing %s", ErrAnalysisParse, strings.Join(missing, ", "))
	}

	analysis := chat.Analysis{
		EmotionalState:      *payload.EmotionalState,
		Themes:              *payload.Themes,
		RiskLevel:           *payload.RiskLevel,
		RecommendedApproach: *payload.RecommendedApproach,
		ProgressIndicators:  *payload.ProgressIndicators,
	}
	return analysis.Clone(), nil
}

type analysisPayload struct {
	EmotionalState      *string   `json:"emotionalState"`
	Themes              *[]string `json:"themes"`
	RiskLevel           *float64  `json:"riskLevel"`
	RecommendedApproach *string   `json:"recommendedApproach"`
	ProgressIndicators  *[]string `json:"progressIndicators"`
}

const analysisSystemPrompt = "You analyse messages written to a mental health support assistant. Return ONLY a valid JSON object with no markdown formatting or additional text."

const analysisUserPrompt = `Analyze this therapy message and provide insights.
Message: {{.message}}
Context: {{.context}}

Required JSON structure:
{
  "emotionalState": "string",
  "themes": ["string"],
  "riskLevel": number,
  "recommendedApproach": "string",
  "progressIndicators": ["string"]
}`
