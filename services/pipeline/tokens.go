package pipeline

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/upb/llm-gateway/services/providers"
)

// perMessageOverhead approximates the chat-format framing tokens each
// message costs beyond its content.
const perMessageOverhead = 4

// EstimateTokens counts prompt tokens for budget forecasting and for
// streams whose provider reports no usage. Models without a known encoding
// fall back to the rough four-characters-per-token heuristic.
func EstimateTokens(model string, messages []providers.Message) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}

	total := 0
	for _, msg := range messages {
		if err != nil {
			total += len(msg.Content)/4 + perMessageOverhead
			continue
		}
		total += len(enc.Encode(msg.Content, nil, nil)) + perMessageOverhead
	}
	return total
}
