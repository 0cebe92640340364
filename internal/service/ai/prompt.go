package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SystemPrompt is the fixed therapist instruction sent with every generation.
const SystemPrompt = `You are an AI therapist assistant. Your role is to:
1. Provide empathetic and supportive responses
2. Use evidence-based therapeutic techniques
3. Maintain professional boundaries
4. Monitor for risk factors
5. Guide users toward their therapeutic goals`

// responseDirectives closes every generation prompt.
var responseDirectives = []string{
	"Addresses the immediate emotional needs",
	"Uses appropriate therapeutic techniques",
	"Shows empathy and understanding",
	"Maintains professional boundaries",
	"Considers safety and well-being",
}

// buildResponsePrompt renders the user turn that carries the analysis and session context.
func buildResponsePrompt(req Request) (string, error) {
	analysisJSON, err := json.Marshal(req.Analysis.Clone())
	if err != nil {
		return "", fmt.Errorf("failed to encode analysis: %w", err)
	}
	memoryJSON, err := json.Marshal(req.Memory)
	if err != nil {
		return "", fmt.Errorf("failed to encode memory: %w", err)
	}
	goals := req.Goals
	if goals == nil {
		goals = []string{}
	}
	goalsJSON, err := json.Marshal(goals)
	if err != nil {
		return "", fmt.Errorf("failed to encode goals: %w", err)
	}

	var builder strings.Builder
	builder.WriteString("Based on the following context, generate a therapeutic response:\n")
	fmt.Fprintf(&builder, "Message: %s\n", req.Message)
	fmt.Fprintf(&builder, "Analysis: %s\n", analysisJSON)
	fmt.Fprintf(&builder, "Memory: %s\n", memoryJSON)
	fmt.Fprintf(&builder, "Goals: %s\n\n", goalsJSON)
	builder.WriteString("Provide a response that:")
	for i, directive := range responseDirectives {
		fmt.Fprintf(&builder, "\n%d. %s", i+1, directive)
	}
	return builder.String(), nil
}
