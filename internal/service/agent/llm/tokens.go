package llm

// EstimateTokens estimates token count using ~4 chars per token approximation.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateRequestTokens estimates the prompt-side tokens of a request.
func EstimateRequestTokens(req Request) int {
	total := EstimateTokens(req.Prompt) + 4 // +4 for role/formatting overhead
	if req.System != "" {
		total += EstimateTokens(req.System) + 4
	}
	return total
}
