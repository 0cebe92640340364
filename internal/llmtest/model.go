// Package llmtest provides a scripted chat model for exercising eino chains in tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrExhausted is returned once every scripted reply has been consumed.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted model turn.
type Reply struct {
	Content string
	Err     error
}

// ScriptedModel answers Generate calls from a fixed list of replies, falling back to
// Respond when the list is exhausted. Every prompt it receives is recorded.
type ScriptedModel struct {
	mu      sync.Mutex
	replies []Reply
	prompts [][]*schema.Message

	// Respond, when set, produces replies after the scripted list runs out.
	Respond func(ctx context.Context, prompt []*schema.Message) (string, error)
}

var _ model.ChatModel = (*ScriptedModel)(nil)

// NewScriptedModel returns a model that yields contents in order.
func NewScriptedModel(contents ...string) *ScriptedModel {
	m := &ScriptedModel{}
	for _, c := range contents {
		m.replies = append(m.replies, Reply{Content: c})
	}
	return m
}

// Failing returns a model whose every call fails with err.
func Failing(err error) *ScriptedModel {
	return &ScriptedModel{
		Respond: func(context.Context, []*schema.Message) (string, error) { return "", err },
	}
}

// Push appends replies to the script.
func (m *ScriptedModel) Push(replies ...Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

func (m *ScriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, input)
	var (
		next      Reply
		scripted  bool
		responder = m.Respond
	)
	if len(m.replies) > 0 {
		next, m.replies = m.replies[0], m.replies[1:]
		scripted = true
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !scripted {
		if responder == nil {
			return nil, ErrExhausted
		}
		content, err := responder(ctx, input)
		next = Reply{Content: content, Err: err}
	}
	if next.Err != nil {
		return nil, next.Err
	}
	return schema.AssistantMessage(next.Content, nil), nil
}

func (m *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ScriptedModel) BindTools([]*schema.ToolInfo) error { return nil }

// Calls reports how many prompts the model has received.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompt returns the i-th recorded prompt.
func (m *ScriptedModel) Prompt(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.prompts) {
		return nil
	}
	return m.prompts[i]
}
