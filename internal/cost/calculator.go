package cost

import (
	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/model"
)

// Prompt caching multipliers applied to the input rate.
const (
	cacheWriteMul = 1.25
	cacheReadMul  = 0.1
)

// Calculator computes the USD cost of API usage within a cycle.
type Calculator struct {
	rates config.PricingConfig
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates config.PricingConfig) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call. Unknown models cost 0.
func (c *Calculator) Claude(modelName string, input, output, cacheWrite, cacheRead int) float64 {
	if c == nil {
		return 0
	}
	rate, ok := c.rates.Anthropic[modelName]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * cacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * cacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Usage converts token counts into a model.TokenUsage with its cost.
func (c *Calculator) Usage(modelName string, input, output, cacheWrite, cacheRead int) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:  input + cacheWrite + cacheRead,
		OutputTokens: output,
		Cost:         c.Claude(modelName, input, output, cacheWrite, cacheRead),
	}
}

// Jina computes the cost for Jina token usage.
func (c *Calculator) Jina(tokens int) float64 {
	if c == nil {
		return 0
	}
	return (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
}
