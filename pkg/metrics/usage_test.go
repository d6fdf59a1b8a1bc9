package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenUsageAdd(t *testing.T) {
	var total TokenUsage
	require.True(t, total.IsZero())

	total = total.Add(TokenUsage{PromptTokens: 3, TotalTokens: 3})
	total = total.Add(TokenUsage{PromptTokens: 2, TotalTokens: 4})
	require.False(t, total.IsZero())
	require.Equal(t, TokenUsage{PromptTokens: 5, TotalTokens: 7}, total)
}
