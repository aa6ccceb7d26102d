package sessionkit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one entry of the session audit trail: a lifecycle
// transition (login, refresh, logout) with its outcome and enough
// identity to join client and backend logs. InstanceID names the client
// instance that emitted the event, so streams from several processes
// sharing one state store stay distinguishable.
type AuditEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	UserID     string            `json:"user_id,omitempty"`
	Username   string            `json:"username,omitempty"`
	InstanceID string            `json:"instance_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatch goroutine, one at a
// time. Emit must tolerate being called after the Client closes and
// must never panic; a sink that blocks forever stalls the drain on
// Close, so honor ctx.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event. It is the fallback when audit is
// enabled without a sink.
type NoOpSink struct{}

// Emit does nothing.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel for the embedding
// application to range over. Emit blocks when the channel is full until
// the reader catches up or ctx ends.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink returns a ChannelSink holding up to buffer undelivered
// events.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit queues the event for the channel reader.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the delivery channel.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink appends one JSON object per line to w. Writes are
// serialized, so w does not need its own locking.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriterSink returns a sink writing JSON lines to w. A nil w
// yields an inert sink.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	s := &JSONWriterSink{}
	if w != nil {
		s.enc = json.NewEncoder(w)
	}
	return s
}

// Emit encodes the event onto the underlying writer. Encode errors are
// dropped; audit delivery is best-effort.
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}
