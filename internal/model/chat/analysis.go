package chat

import "slices"

// Analysis holds the structured signals extracted from one user message.
type Analysis struct {
	EmotionalState      string   `json:"emotionalState"`
	Themes              []string `json:"themes"`
	RiskLevel           float64  `json:"riskLevel"`
	RecommendedApproach string   `json:"recommendedApproach"`
	ProgressIndicators  []string `json:"progressIndicators"`
}

// Progress returns the progress snapshot stored with assistant replies.
func (a Analysis) Progress() Progress {
	return Progress{EmotionalState: a.EmotionalState, RiskLevel: a.RiskLevel}
}

// Clone returns a copy that shares no slices with a.
func (a Analysis) Clone() Analysis {
	out := a
	out.Themes = cloneStrings(a.Themes)
	out.ProgressIndicators = cloneStrings(a.ProgressIndicators)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}
