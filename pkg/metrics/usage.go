package metrics

// TokenUsage captures model token counts used to satisfy a request.
type TokenUsage struct {
	PromptTokens int `json:"promptTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// IsZero reports whether usage data is absent.
func (u TokenUsage) IsZero() bool {
	return u.PromptTokens == 0 && u.TotalTokens == 0
}

// Add accumulates usage reported by separate provider calls.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens: u.PromptTokens + other.PromptTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}
