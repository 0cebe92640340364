package emotion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/solace/backend/internal/llmtest"
	"github.com/zhouzirui/solace/backend/internal/model/chat"
)

const validAnalysis = `{"emotionalState":"anxious","themes":["work","sleep"],"riskLevel":2,"recommendedApproach":"grounding","progressIndicators":["named trigger"]}`

func newTestService(t *testing.T, m *llmtest.ScriptedModel, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), m, cfg, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestAnalyzeParsesModelOutput(t *testing.T) {
	m := llmtest.NewScriptedModel(validAnalysis)
	svc := newTestService(t, m, Config{})

	got, err := svc.Analyze(context.Background(), "I can't sleep before deadlines", Context{Memory: chat.EmptyMemory()})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if got.EmotionalState != "anxious" || got.RiskLevel != 2 || got.RecommendedApproach != "grounding" {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if len(got.Themes) != 2 || len(got.ProgressIndicators) != 1 {
		t.Fatalf("unexpected lists: %+v", got)
	}

	prompt := m.Prompt(0)
	if len(prompt) != 2 || prompt[0].Role != schema.System || prompt[1].Role != schema.User {
		t.Fatalf("unexpected prompt shape: %+v", prompt)
	}
	user := prompt[1].Content
	for _, want := range []string{"I can't sleep before deadlines", `"goals":[]`, `"userProfile"`, `"progressIndicators"`} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, user)
		}
	}
}

func TestAnalyzeAcceptsFencedOutput(t *testing.T) {
	m := llmtest.NewScriptedModel("```json\n" + validAnalysis + "\n```")
	svc := newTestService(t, m, Config{})

	got, err := svc.Analyze(context.Background(), "hello", Context{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if got.EmotionalState != "anxious" {
		t.Fatalf("unexpected analysis: %+v", got)
	}
}

func TestAnalyzeRejectsMalformedOutput(t *testing.T) {
	m := llmtest.NewScriptedModel("I think the user is sad.")
	svc := newTestService(t, m, Config{})

	_, err := svc.Analyze(context.Background(), "hello", Context{})
	if !errors.Is(err, ErrAnalysisParse) {
		t.Fatalf("expected ErrAnalysisParse, got %v", err)
	}
	if m.Calls() != 1 {
		t.Fatalf("expected exactly one model call, got %d", m.Calls())
	}
}

func TestAnalyzeWrapsModelFailure(t *testing.T) {
	boom := errors.New("upstream 500")
	svc := newTestService(t, llmtest.Failing(boom), Config{})

	_, err := svc.Analyze(context.Background(), "hello", Context{})
	if !errors.Is(err, ErrAnalysisUnavailable) {
		t.Fatalf("expected ErrAnalysisUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream 500") {
		t.Fatalf("expected the cause in the error, got %v", err)
	}
}

func TestAnalyzeHonoursTimeout(t *testing.T) {
	m := &llmtest.ScriptedModel{
		Respond: func(ctx context.Context, _ []*schema.Message) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	svc := newTestService(t, m, Config{Timeout: 20 * time.Millisecond})

	_, err := svc.Analyze(context.Background(), "hello", Context{})
	if !errors.Is(err, ErrAnalysisUnavailable) {
		t.Fatalf("expected ErrAnalysisUnavailable, got %v", err)
	}
}

func TestParseRequiresEveryField(t *testing.T) {
	cases := map[string]string{
		"missing themes":    `{"emotionalState":"calm","riskLevel":0,"recommendedApproach":"x","progressIndicators":[]}`,
		"missing riskLevel": `{"emotionalState":"calm","themes":[],"recommendedApproach":"x","progressIndicators":[]}`,
		"null state":        `{"emotionalState":null,"themes":[],"riskLevel":0,"recommendedApproach":"x","progressIndicators":[]}`,
		"wrong type":        `{"emotionalState":"calm","themes":"work","riskLevel":0,"recommendedApproach":"x","progressIndicators":[]}`,
		"empty":             "   ",
	}
	for name, raw := range cases {
		if _, err := Parse(raw); !errors.Is(err, ErrAnalysisParse) {
			t.Fatalf("%s: expected ErrAnalysisParse, got %v", name, err)
		}
	}
}

func TestParseKeepsRiskLevelAsGiven(t *testing.T) {
	got, err := Parse(`{"emotionalState":"numb","themes":[],"riskLevel":9.5,"recommendedApproach":"","progressIndicators":[]}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.RiskLevel != 9.5 {
		t.Fatalf("risk level altered: %v", got.RiskLevel)
	}
	if got.Themes == nil || got.ProgressIndicators == nil {
		t.Fatalf("expected non-nil empty lists")
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
		"```json{\"a\":1}```":     `{"a":1}`,
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
