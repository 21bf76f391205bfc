// Package openai provides a non-streaming Completer backed by the official
// OpenAI Go SDK. It works against any OpenAI-compatible API root.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errNoChoices = errors.New("response contained no choices")

type Completer struct {
	client *openai.Client
	model  string
}

var _ llms.Completer = (*Completer)(nil)

type CompleterOption func(*completerOptions)

type completerOptions struct {
	baseURL    string
	model      string
	maxRetries *int
	httpClient *http.Client
}

func WithBaseURL(baseURL string) CompleterOption {
	return func(o *completerOptions) { o.baseURL = baseURL }
}

// WithDefaultModel sets the model used by requests that do not name one.
func WithDefaultModel(model string) CompleterOption {
	return func(o *completerOptions) { o.model = model }
}

func WithMaxRetries(retries int) CompleterOption {
	return func(o *completerOptions) { o.maxRetries = &retries }
}

func WithHTTPClient(httpClient *http.Client) CompleterOption {
	return func(o *completerOptions) { o.httpClient = httpClient }
}

func NewCompleter(apiKey string, opts ...CompleterOption) *Completer {
	options := completerOptions{model: openai.ChatModelGPT4oMini}
	for _, opt := range opts {
		opt(&options)
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
	}
	if options.baseURL != "" {
		baseURL := options.baseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		requestOptions = append(requestOptions, option.WithBaseURL(baseURL))
	}
	if options.maxRetries != nil {
		requestOptions = append(requestOptions, option.WithMaxRetries(*options.maxRetries))
	}

	client := openai.NewClient(requestOptions...)
	return &Completer{client: &client, model: options.model}
}

// Complete issues a chat completion and returns the first choice's text.
func (c *Completer) Complete(ctx context.Context, req llms.Request) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()

	model := req.Model
	if model == "" {
		model = c.model
	}
	span.SetAttributes(attribute.String("request.model", model))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toMessages(req.Turns),
	})
	if err != nil {
		err = toTransportError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(
		attribute.Int64("usage.input", resp.Usage.PromptTokens),
		attribute.Int64("usage.output", resp.Usage.CompletionTokens),
		attribute.Int64("usage.total", resp.Usage.TotalTokens),
	)
	if len(resp.Choices) == 0 {
		err := &llms.TransportError{Op: "complete", Err: errNoChoices}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

func toMessages(turns []llms.Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, turn := range turns {
		switch turn.Speaker {
		case llms.SpeakerSystem:
			messages = append(messages, openai.SystemMessage(turn.Text))
		case llms.SpeakerAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		default:
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}
	return messages
}

func toTransportError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llms.TransportError{Op: "complete", StatusCode: apiErr.StatusCode, Err: err}
	}
	return &llms.TransportError{Op: "complete", Err: fmt.Errorf("error sending request: %w", err)}
}
