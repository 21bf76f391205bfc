// Package client consumes the relay stream of a query and keeps the
// incrementally updated text of every source, keyed by session id.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	QueryPath    = "/api/query"
	SessionsPath = "/api/sessions/"

	maxErrorBody = 4 << 10
)

var ErrSessionNotFound = errors.New("session not found")

type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *Store
}

type Option func(*Client)

// WithHTTPClient replaces the default client. It must not set a total
// timeout since relay streams are long-lived.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithStore(store *Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		store: NewStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Store() *Store { return c.store }

type queryRequest struct {
	Messages []llms.Turn `json:"messages"`
}

// Query is one submitted query whose relay stream is consumed in the
// background.
type Query struct {
	client     *Client
	aggregator *Aggregator
	stop       context.CancelFunc

	done    chan struct{}
	mu      sync.Mutex
	outcome relay.Outcome
	err     error
}

// SubmitQuery posts turns and starts consuming the relay stream. Updates are
// delivered to the given observers; the session is added to the store once
// the server announced its id. Cancelling ctx abandons the stream and ends
// the query as cancelled.
func (c *Client) SubmitQuery(ctx context.Context, turns []llms.Turn, opts ...AggregatorOption) (*Query, error) {
	ctx, span := tracer.Start(ctx, "submit query")

	body, err := json.Marshal(queryRequest{Messages: turns})
	if err != nil {
		span.End()
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	streamCtx, stop := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+QueryPath, bytes.NewReader(body))
	if err != nil {
		stop()
		span.End()
		return nil, fmt.Errorf("failed to create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		stop()
		span.RecordError(err)
		span.End()
		return nil, &llms.TransportError{Op: "submit query", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		stop()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := &llms.TransportError{Op: "submit query", StatusCode: resp.StatusCode, Body: string(errBody)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	q := &Query{client: c, stop: stop, done: make(chan struct{})}
	register := func(update Update) {
		if update.Kind == relay.KindSession {
			c.store.Put(update.SessionID, q.aggregator)
			span.SetAttributes(attribute.String("session.id", update.SessionID))
		}
	}
	q.aggregator = NewAggregator(append([]AggregatorOption{WithObserver(register)}, opts...)...)

	go func() {
		defer span.End()
		defer stop()
		defer resp.Body.Close()

		outcome, err := q.aggregator.Consume(streamCtx, resp.Body)
		span.SetAttributes(attribute.String("session.outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("relay stream failed", "session", q.aggregator.SessionID(), "error", err)
		}

		if id := q.aggregator.SessionID(); id != "" {
			c.store.Finish(id)
		}

		q.mu.Lock()
		q.outcome, q.err = outcome, err
		q.mu.Unlock()
		close(q.done)
	}()

	return q, nil
}

func (q *Query) Aggregator() *Aggregator { return q.aggregator }

func (q *Query) SessionID() string { return q.aggregator.SessionID() }

// Done is closed once the relay stream was fully consumed.
func (q *Query) Done() <-chan struct{} { return q.done }

// Wait blocks until the query ended.
func (q *Query) Wait() (relay.Outcome, error) {
	<-q.done

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outcome, q.err
}

// Cancel asks the server to cancel the session and keeps reading until its
// terminator. If the session is not known yet, or the server cannot be
// reached, the local stream is abandoned instead.
func (q *Query) Cancel(ctx context.Context) error {
	sessionID := q.aggregator.SessionID()
	if sessionID == "" {
		q.stop()
		return nil
	}

	if err := q.client.Cancel(ctx, sessionID); err != nil {
		q.stop()
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// Cancel cancels a running session by id.
func (c *Client) Cancel(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "cancel session", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+SessionsPath+url.PathEscape(sessionID), nil)
	if err != nil {
		return fmt.Errorf("failed to create cancel request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return &llms.TransportError{Op: "cancel session", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	case resp.StatusCode >= 300:
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := &llms.TransportError{Op: "cancel session", StatusCode: resp.StatusCode, Body: string(errBody)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
