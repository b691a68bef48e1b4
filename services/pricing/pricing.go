package pricing

import (
	"strings"

	"github.com/upb/llm-gateway/services/providers"
)

// Price is the USD cost per million tokens for one model.
type Price struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Prices are keyed by exact model name; lookup falls back to the longest
// matching prefix so dated snapshots (gpt-4o-2024-08-06) inherit their
// family price.
var prices = map[string]Price{
	"gpt-4o":             {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":        {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4-turbo":        {InputPerMTok: 10.00, OutputPerMTok: 30.00},
	"gpt-3.5-turbo":      {InputPerMTok: 0.50, OutputPerMTok: 1.50},
	"o1":                 {InputPerMTok: 15.00, OutputPerMTok: 60.00},
	"o1-mini":            {InputPerMTok: 1.10, OutputPerMTok: 4.40},
	"claude-opus-4":      {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-sonnet-4":    {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-sonnet":  {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku":   {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-haiku":     {InputPerMTok: 0.25, OutputPerMTok: 1.25},
}

// Lookup resolves the price for a model, trying exact match first and the
// longest known prefix second.
func Lookup(model string) (Price, bool) {
	if p, ok := prices[model]; ok {
		return p, true
	}
	var (
		best    Price
		bestLen = -1
	)
	for name, p := range prices {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			best = p
			bestLen = len(name)
		}
	}
	return best, bestLen >= 0
}

// Cost computes the USD cost of a completed call. Unknown models cost zero;
// they still produce a usage record, just without spend attribution.
func Cost(model string, usage providers.Usage) float64 {
	p, ok := Lookup(model)
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)/1e6*p.InputPerMTok +
		float64(usage.OutputTokens)/1e6*p.OutputPerMTok
}
