package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/sse"
	"github.com/gorilla/websocket"
)

const DefaultWebSocketWriteTimeout = 10 * time.Second

// Envelope is the WebSocket form of a relay record: one text message per
// event, named by its record type.
type Envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WebSocketSink relays events as JSON envelopes over a WebSocket connection.
type WebSocketSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn, writeTimeout: DefaultWebSocketWriteTimeout}
}

func (s *WebSocketSink) WithWriteTimeout(timeout time.Duration) *WebSocketSink {
	if timeout > 0 {
		s.writeTimeout = timeout
	}
	return s
}

func (s *WebSocketSink) Send(_ context.Context, event Event) error {
	record, err := event.Record()
	if err != nil {
		return err
	}

	message, err := json.Marshal(Envelope{Event: event.Kind, Data: record.Data})
	if err != nil {
		return fmt.Errorf("failed to marshal websocket envelope: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, message)
}

// DecodeEnvelope decodes one WebSocket message produced by WebSocketSink.
func DecodeEnvelope(message []byte) (Event, error) {
	var envelope Envelope
	if err := unmarshal(message, &envelope); err != nil {
		return Event{}, err
	}

	record := sse.Record{Data: envelope.Data}
	if envelope.Event != KindFragment {
		record.Event = string(envelope.Event)
	}
	return Decode(record)
}
