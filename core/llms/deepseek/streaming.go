package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/sse"
	"github.com/PaulBappoo/Deeperseek/internal/utils"
	"go.opentelemetry.io/otel/codes"
)

// Open starts a streaming completion and returns the raw event stream body.
// Closing the body aborts the call.
func (c *Client) Open(ctx context.Context, req llms.Request) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "open llm stream")
	defer span.End()

	resp, err := c.post(ctx, span, "open stream", requestBody{
		Model:         c.modelFor(req.Model),
		Messages:      toMessages(req.Turns),
		Stream:        true,
		StreamOptions: utils.Ptr(streamOptions{IncludeUsage: true}),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp.Body, nil
}

// DecodeChunk interprets one record of a chat completions stream.
func (c *Client) DecodeChunk(rec sse.Record) (llms.Chunk, error) {
	data := bytes.TrimSpace(rec.Data)
	if string(data) == endMessage {
		return llms.Chunk{Done: true}, nil
	}

	var responseBody streamingResponseBody
	if err := json.Unmarshal(data, &responseBody); err != nil {
		return llms.Chunk{}, fmt.Errorf("error unmarshalling JSON: %w", err)
	}

	chunk := llms.Chunk{Usage: responseBody.Usage.toLLMs()}
	if len(responseBody.Choices) > 0 {
		choice := responseBody.Choices[0]
		chunk.Content = choice.Delta.Content
		chunk.FinishReason = choice.FinishReason
		if choice.Delta.ReasoningContent != "" {
			logger.Debug("ignoring reasoning content", "length", len(choice.Delta.ReasoningContent))
		}
	}
	return chunk, nil
}
