// Package deepseek talks to the DeepSeek chat completions API, or any other
// OpenAI-compatible endpoint, over plain HTTP.
package deepseek

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "https://api.deepseek.com/v1"
	DefaultModel   = "deepseek-chat"

	completionsPath = "/chat/completions"
	endMessage      = "[DONE]"
)

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithBaseURL points the client at another OpenAI-compatible API root, for
// example "http://localhost:8080/v1".
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithDefaultModel sets the model used by requests that do not name one.
func WithDefaultModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithConnectTimeout bounds dialing and waiting for response headers. It does
// not limit how long a response body may stream.
func WithConnectTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = newHTTPClient(timeout)
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: newHTTPClient(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient(connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if connectTimeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
		transport.TLSHandshakeTimeout = connectTimeout
		transport.ResponseHeaderTimeout = connectTimeout
	}

	return &http.Client{Transport: otelhttp.NewTransport(transport,
		otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
			return operationName + " " + request.URL.Path
		}),
	)}
}

func (c *Client) url() string { return c.baseURL + completionsPath }

func (c *Client) modelFor(model string) string {
	if model == "" {
		return c.model
	}
	return model
}

var (
	_ llms.Streamer  = (*Client)(nil)
	_ llms.Completer = (*Client)(nil)
)
