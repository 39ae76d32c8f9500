// Package sse streams a library's events to HTTP clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Stream-level event names. Library events keep their bus names.
const (
	EventConnected = "connected"
	EventHeartbeat = "heartbeat"
)

// ConnectedData is the first frame of every stream.
type ConnectedData struct {
	ClientID  string `json:"clientId"`
	LibraryID string `json:"libraryId"`
}

// HeartbeatData keeps idle streams from being reaped by proxies.
type HeartbeatData struct {
	Timestamp time.Time `json:"timestamp"`
}

func newHeartbeat() HeartbeatData {
	return HeartbeatData{Timestamp: time.Now()}
}

// writeFrame writes one event block:
//
//	event: <name>
//	data: <json>
func writeFrame(w io.Writer, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
