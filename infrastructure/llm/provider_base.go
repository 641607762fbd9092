package llm

import "sync"

// BaseProvider holds the model name shared by every provider.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model. It is safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel replaces the configured model. It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// tokenCount prefers the count reported by the provider and estimates from
// text otherwise.
func tokenCount(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return SimpleTokenEstimator{}.EstimateTokens(text)
}

// jsonInstruction is appended to the system prompt for providers without a
// native JSON response mode.
const jsonInstruction = "Respond with a single JSON object and nothing else."

func systemWithJSON(system string, jsonResponse bool) string {
	if !jsonResponse {
		return system
	}
	if system == "" {
		return jsonInstruction
	}
	return system + "\n\n" + jsonInstruction
}
