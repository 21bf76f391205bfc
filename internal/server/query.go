package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// queryRequest is the body of a query: the conversation so far in the
// {role, content} message shape, ending with the user's question.
type queryRequest struct {
	Messages []llms.Turn `json:"messages"`
}

func decodeQuery(r io.Reader) ([]llms.Turn, error) {
	var req queryRequest
	decoder := json.NewDecoder(io.LimitReader(r, maxQueryBody))
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid query body: %w", err)
	}
	if err := llms.ValidateTurns(req.Messages); err != nil {
		return nil, err
	}
	return req.Messages, nil
}

// handleQuery answers a query on a server-sent event stream. The stream
// always ends with a terminator record; a client disconnecting cancels the
// session.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) *apiError {
	turns, err := decodeQuery(r.Body)
	if err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	writer, err := relay.NewStreamWriter(w)
	if err != nil {
		if errors.Is(err, relay.ErrNoFlusher) {
			return &apiError{Status: http.StatusInternalServerError, Message: "streaming unsupported"}
		}
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	defer writer.Close()

	session := s.coordinator.NewSession(r.Context(), writer)
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("session.id", session.ID()))

	keepAliveCtx, stopKeepAlive := context.WithCancel(r.Context())
	defer stopKeepAlive()
	go writer.KeepAlive(keepAliveCtx, s.heartbeat)

	outcome := s.coordinator.Run(session, turns)
	logger.Debug("query stream finished", "session", session.ID(), "outcome", outcome)
	return nil
}
