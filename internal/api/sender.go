package api

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sender writes one JSON frame to a client.
type sender interface {
	Send(v any) error
}

// socketSender serializes writes to a websocket connection.
type socketSender struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	writeWait time.Duration
}

func (s *socketSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// ping writes a control ping under the same lock as data frames.
func (s *socketSender) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait))
}

// loggingSender decorates a sender with one debug line per frame.
type loggingSender struct {
	next   sender
	logger *slog.Logger
}

func (l loggingSender) Send(v any) error {
	start := time.Now()
	err := l.next.Send(v)

	attrs := []any{slog.String("frame", frameKind(v)), slog.Duration("duration", time.Since(start))}
	if err != nil {
		l.logger.Warn("websocket send failed", append(attrs, slog.String("error", err.Error()))...)
		return err
	}
	l.logger.Debug("websocket frame sent", attrs...)
	return nil
}

func frameKind(v any) string {
	switch f := v.(type) {
	case wsReply:
		if f.Error != nil {
			return "error"
		}
		return "reply"
	case wsEvent:
		return "event:" + f.Event.Name
	default:
		return "other"
	}
}
