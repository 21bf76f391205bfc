package server

import (
	"net/http"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/gorilla/websocket"
)

const (
	wsMessageQuery  = "query"
	wsMessageCancel = "cancel"

	wsCloseTimeout = time.Second
)

// wsMessage is a client message on the query WebSocket. The first message
// must be a query; afterwards only cancel is understood.
type wsMessage struct {
	Type     string      `json:"type"`
	Messages []llms.Turn `json:"messages,omitempty"`
}

// handleQueryWebSocket answers one query per connection. Events are sent as
// relay envelopes; a cancel message or a closed connection cancels the
// session.
func (s *Server) handleQueryWebSocket(w http.ResponseWriter, r *http.Request) *apiError {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	conn.SetReadLimit(maxQueryBody)
	var first wsMessage
	if err := conn.ReadJSON(&first); err != nil {
		logger.Warn("failed to read websocket query", "error", err)
		return nil
	}

	sink := relay.NewWebSocketSink(conn)
	if first.Type != wsMessageQuery {
		_ = sink.Send(r.Context(), relay.ErrorEvent(relay.ErrorCodeInvalidRequest, "first message must be a query"))
		_ = sink.Send(r.Context(), relay.DoneEvent(relay.OutcomeFailed))
		closeWebSocket(conn)
		return nil
	}

	session := s.coordinator.NewSession(r.Context(), sink)
	go func() {
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				select {
				case <-session.Done():
				default:
					session.Cancel()
				}
				return
			}
			if msg.Type == wsMessageCancel {
				session.Cancel()
			}
		}
	}()

	outcome := s.coordinator.Run(session, first.Messages)
	logger.Debug("query websocket finished", "session", session.ID(), "outcome", outcome)
	closeWebSocket(conn)
	return nil
}

func closeWebSocket(conn *websocket.Conn) {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(wsCloseTimeout))
}
