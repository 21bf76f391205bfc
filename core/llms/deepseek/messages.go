package deepseek

import (
	"github.com/PaulBappoo/Deeperseek/core/llms"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toMessages(turns []llms.Turn) []message {
	messages := make([]message, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, message{
			Role:    string(turn.Speaker),
			Content: turn.Text,
		})
	}
	return messages
}

type requestBody struct {
	Model         string         `json:"model"`
	Messages      []message      `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type streamingResponseBody struct {
	ID      string            `json:"id"`
	Model   string            `json:"model"`
	Choices []streamingChoice `json:"choices"`
	Usage   *usage            `json:"usage,omitempty"`
}

type streamingChoice struct {
	Index        int     `json:"index"`
	Delta        delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type delta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type responseBody struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

type usage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	PromptCacheHitTokens    int                      `json:"prompt_cache_hit_tokens,omitempty"`
	CompletionTokensDetails *completionTokensDetails `json:"completion_tokens_details,omitempty"`
}

type completionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

func (u *usage) toLLMs() *llms.Usage {
	if u == nil {
		return nil
	}
	converted := &llms.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.PromptCacheHitTokens > 0 {
		converted.InputTokensDetails = &llms.InputTokensDetails{CachedTokens: u.PromptCacheHitTokens}
	}
	if u.CompletionTokensDetails != nil {
		converted.OutputTokensDetails = &llms.OutputTokensDetails{ReasoningTokens: u.CompletionTokensDetails.ReasoningTokens}
	}
	return converted
}
