package policy

import (
	"context"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine err: %v", err)
	}
	return engine
}

func TestDefaultPolicyDecisions(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name       string
		input      Input
		wantAllow  bool
		wantReason string
	}{
		{
			name:       "owner reads active session",
			input:      Input{CallerID: "u1", Action: ActionRead, Session: SessionInput{OwnerID: "u1", Status: "active"}},
			wantAllow:  true,
			wantReason: ReasonOwner,
		},
		{
			name:       "owner writes active session",
			input:      Input{CallerID: "u1", Action: ActionWrite, Session: SessionInput{OwnerID: "u1", Status: "active"}},
			wantAllow:  true,
			wantReason: ReasonOwner,
		},
		{
			name:       "other caller is forbidden",
			input:      Input{CallerID: "u2", Action: ActionRead, Session: SessionInput{OwnerID: "u1", Status: "active"}},
			wantAllow:  false,
			wantReason: ReasonForbidden,
		},
		{
			name:       "anonymous caller is forbidden",
			input:      Input{CallerID: "", Action: ActionRead, Session: SessionInput{OwnerID: "", Status: "active"}},
			wantAllow:  false,
			wantReason: ReasonForbidden,
		},
		{
			name:       "owner cannot write archived session",
			input:      Input{CallerID: "u1", Action: ActionWrite, Session: SessionInput{OwnerID: "u1", Status: "archived"}},
			wantAllow:  false,
			wantReason: ReasonInactive,
		},
		{
			name:       "owner still reads archived session",
			input:      Input{CallerID: "u1", Action: ActionRead, Session: SessionInput{OwnerID: "u1", Status: "archived"}},
			wantAllow:  true,
			wantReason: ReasonOwner,
		},
		{
			name:       "non-owner writing archived session sees forbidden",
			input:      Input{CallerID: "u2", Action: ActionWrite, Session: SessionInput{OwnerID: "u1", Status: "archived"}},
			wantAllow:  false,
			wantReason: ReasonForbidden,
		},
		{
			name:       "owner manages completed session",
			input:      Input{CallerID: "u1", Action: ActionManage, Session: SessionInput{OwnerID: "u1", Status: "completed"}},
			wantAllow:  true,
			wantReason: ReasonOwner,
		},
	}

	for _, tt := range tests {
		got, err := engine.Evaluate(context.Background(), tt.input)
		if err != nil {
			t.Fatalf("%s: Evaluate err: %v", tt.name, err)
		}
		if got.Allow != tt.wantAllow || got.Reason != tt.wantReason {
			t.Errorf("%s: got %+v, want allow=%v reason=%s", tt.name, got, tt.wantAllow, tt.wantReason)
		}
	}
}

func TestNewEngineRejectsInvalidModule(t *testing.T) {
	if _, err := NewEngine(context.Background(), "package broken\nthis is not rego"); err == nil {
		t.Fatal("expected compile error for invalid module")
	}
}
