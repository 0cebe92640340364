package chat

import "slices"

// Memory is the accumulated session context handed to the analyzer and generator.
type Memory struct {
	UserProfile    UserProfile    `json:"userProfile"`
	SessionContext SessionContext `json:"sessionContext"`
}

// UserProfile summarises what recent replies learned about the user.
type UserProfile struct {
	EmotionalState []string          `json:"emotionalState"`
	RiskLevel      float64           `json:"riskLevel"`
	Preferences    map[string]string `json:"preferences"`
}

// SessionContext summarises the conversation so far.
type SessionContext struct {
	ConversationThemes []string `json:"conversationThemes"`
	CurrentTechnique   *string  `json:"currentTechnique"`
}

// EmptyMemory returns a memory with every collection initialised.
func EmptyMemory() Memory {
	return Memory{
		UserProfile: UserProfile{
			EmotionalState: []string{},
			Preferences:    map[string]string{},
		},
		SessionContext: SessionContext{
			ConversationThemes: []string{},
		},
	}
}

// BuildMemory folds the metadata of the last window assistant messages into a Memory.
func BuildMemory(messages []Message, window int) Memory {
	memory := EmptyMemory()
	if window < 1 {
		window = 1
	}

	analysed := make([]*Metadata, 0, window)
	for i := len(messages) - 1; i >= 0 && len(analysed) < window; i-- {
		msg := messages[i]
		if msg.Role != RoleAssistant || msg.Metadata == nil {
			continue
		}
		analysed = append(analysed, msg.Metadata)
	}
	if len(analysed) == 0 {
		return memory
	}
	slices.Reverse(analysed)

	seenThemes := make(map[string]struct{})
	for _, meta := range analysed {
		if state := meta.Progress.EmotionalState; state != "" {
			memory.UserProfile.EmotionalState = append(memory.UserProfile.EmotionalState, state)
		}
		for _, theme := range meta.Analysis.Themes {
			if _, ok := seenThemes[theme]; ok || theme == "" {
				continue
			}
			seenThemes[theme] = struct{}{}
			memory.SessionContext.ConversationThemes = append(memory.SessionContext.ConversationThemes, theme)
		}
	}

	latest := analysed[len(analysed)-1]
	memory.UserProfile.RiskLevel = latest.Progress.RiskLevel
	if approach := latest.Analysis.RecommendedApproach; approach != "" {
		memory.SessionContext.CurrentTechnique = &approach
	}
	return memory
}
