package llms

type Usage struct {
	// InputTokens represents the number of input tokens.
	InputTokens int
	// InputTokensDetails represents a detailed breakdown of the input tokens.
	InputTokensDetails *InputTokensDetails
	// OutputTokens represents the number of output tokens.
	OutputTokens int
	// OutputTokensDetails represents a detailed breakdown of the output tokens.
	OutputTokensDetails *OutputTokensDetails
	// TotalTokens represents the total number of tokens used.
	TotalTokens int
}

// InputTokensDetails represents a detailed breakdown of the input tokens.
type InputTokensDetails struct {
	// CachedTokens represents the number of tokens that were retrieved from the
	// cache.
	CachedTokens int
}

// OutputTokensDetails represents a detailed breakdown of the output tokens.
type OutputTokensDetails struct {
	// ReasoningTokens represents the number of reasoning tokens.
	ReasoningTokens int
}
