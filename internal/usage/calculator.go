package usage

// ModelRate is per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `mapstructure:"input" yaml:"input"`
	Output float64 `mapstructure:"output" yaml:"output"`
}

// Calculator estimates the cost of a vision call.
type Calculator struct {
	rates map[string]ModelRate
}

// NewCalculator creates a Calculator. Nil rates fall back to DefaultRates.
func NewCalculator(rates map[string]ModelRate) *Calculator {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Calculator{rates: rates}
}

// Estimate returns the cost of one call. Unknown models cost 0.
func (c *Calculator) Estimate(model string, inputTokens, outputTokens int) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*rate.Input + float64(outputTokens)/1e6*rate.Output
}

// DefaultRates returns list prices for the models the service is configured
// with out of the box.
func DefaultRates() map[string]ModelRate {
	return map[string]ModelRate{
		"gpt-4o":                     {Input: 2.50, Output: 10.00},
		"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
		"gemini-2.5-flash":           {Input: 0.30, Output: 2.50},
		"gemini-2.5-pro":             {Input: 1.25, Output: 10.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
	}
}
