// Package policy evaluates session access rules with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Action is the kind of access a caller requests.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionManage Action = "manage"
)

// Reasons returned by the default policy.
const (
	ReasonOwner     = "owner"
	ReasonForbidden = "forbidden"
	ReasonInactive  = "inactive"
)

// Input is the document the policy is evaluated against.
type Input struct {
	CallerID string       `json:"caller_id"`
	Action   Action       `json:"action"`
	Session  SessionInput `json:"session"`
}

// SessionInput is the slice of session state the policy may inspect.
type SessionInput struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Status  string `json:"status"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allow  bool
	Reason string
}

// Engine is a prepared OPA query. It is safe for concurrent use.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles module once; every Evaluate call runs it against fresh input.
func NewEngine(ctx context.Context, module string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.session_access.decision"),
		rego.Module("session_access.rego", module),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// Evaluate returns the decision for input. A policy that yields nothing denies.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(toDocument(input)))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allow: false, Reason: ReasonForbidden}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	allow, _ := obj["allow"].(bool)
	reason, _ := obj["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}

func toDocument(input Input) map[string]interface{} {
	return map[string]interface{}{
		"caller_id": input.CallerID,
		"action":    string(input.Action),
		"session": map[string]interface{}{
			"id":       input.Session.ID,
			"owner_id": input.Session.OwnerID,
			"status":   input.Session.Status,
		},
	}
}

// DefaultPolicy grants the owner access and freezes transcripts of sessions that are no longer active.
const DefaultPolicy = `
package session_access

default decision := {"allow": false, "reason": "forbidden"}

decision := {"allow": true, "reason": "owner"} if {
	owner
	not inactive_write
}

decision := {"allow": false, "reason": "inactive"} if {
	owner
	inactive_write
}

owner if {
	input.caller_id != ""
	input.caller_id == input.session.owner_id
}

inactive_write if {
	input.action == "write"
	input.session.status != "active"
}
`
