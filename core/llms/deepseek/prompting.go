package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errNoChoices = errors.New("response contained no choices")

// Complete issues a non-streaming completion and returns its text.
func (c *Client) Complete(ctx context.Context, req llms.Request) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()

	text, err := c.complete(ctx, span, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("response.length", len(text)))
	return text, nil
}

func (c *Client) complete(ctx context.Context, span trace.Span, req llms.Request) (string, error) {
	resp, err := c.post(ctx, span, "complete", requestBody{
		Model:    c.modelFor(req.Model),
		Messages: toMessages(req.Turns),
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &llms.TransportError{Op: "complete", Err: fmt.Errorf("error decoding response: %w", err)}
	}
	recordUsage(span, body.Usage.toLLMs())

	if len(body.Choices) == 0 {
		return "", &llms.TransportError{Op: "complete", Err: errNoChoices}
	}
	return body.Choices[0].Message.Content, nil
}
