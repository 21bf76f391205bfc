package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBodySize = 4 << 10

// post sends a chat completions request and returns the response once an OK
// status was received. The caller owns the response body.
func (c *Client) post(ctx context.Context, span trace.Span, op string, reqBody requestBody) (*http.Response, error) {
	span.SetAttributes(attribute.String("request.model", reqBody.Model))
	span.SetAttributes(attribute.Bool("request.stream", reqBody.Stream))
	span.SetAttributes(attribute.Int("request.turns", len(reqBody.Messages)))

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if reqBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	span.SetAttributes(attribute.String("request.url", req.URL.String()))
	span.AddEvent("request started")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &llms.TransportError{Op: op, Err: err}
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		transportErr := &llms.TransportError{Op: op, StatusCode: resp.StatusCode}
		if errorBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize)); err != nil {
			transportErr.Err = fmt.Errorf("error reading error body: %w", err)
		} else {
			transportErr.Body = string(errorBody)
			span.SetAttributes(attribute.String("response.error", transportErr.Body))
		}
		return nil, transportErr
	}

	return resp, nil
}

func recordUsage(span trace.Span, usage *llms.Usage) {
	if usage == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("usage.input", usage.InputTokens),
		attribute.Int("usage.output", usage.OutputTokens),
		attribute.Int("usage.total", usage.TotalTokens),
	)
	if usage.InputTokensDetails != nil {
		span.SetAttributes(attribute.Int("usage.cached", usage.InputTokensDetails.CachedTokens))
	}
	if usage.OutputTokensDetails != nil {
		span.SetAttributes(attribute.Int("usage.reasoning", usage.OutputTokensDetails.ReasoningTokens))
	}
}
