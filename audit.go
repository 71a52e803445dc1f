package staffauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one append-only record of a login-sequence transition.
// Username holds the raw submitted input for forensics; AccountID is empty
// when the username never resolved. Reason carries the precise internal
// failure cause that the external error deliberately hides.
type AuditEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Step      string    `json:"step"`
	AccountID string    `json:"account_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

const (
	auditEventUsernameStep = "username_step"
	auditEventPasswordStep = "password_step"
	auditEventCodeStep     = "code_step"
	auditEventCodeResend   = "code_resend"
	auditEventLogout       = "logout"
	auditEventAdminUnlock  = "admin_unlock"
)

// AuditSink receives audit events. Record must be durable before returning:
// the engine fails the current step with ErrServiceUnavailable when Record
// errors, so an authentication step can never succeed without its record.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// NoOpSink discards audit events. Only sensible with audit disabled or in
// tests.
type NoOpSink struct{}

func (NoOpSink) Record(context.Context, AuditEvent) error { return nil }

// JSONWriterSink appends one JSON object per line to the writer. Suitable for
// an append-only file or a log shipper pipe.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Record(_ context.Context, event AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(data)
	return err
}

// MemorySink retains events in memory. Used by tests and short-lived tools.
type MemorySink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// MultiSink fans out to several sinks and fails on the first error, keeping
// the fail-closed contract when any configured sink is down.
type MultiSink struct {
	sinks []AuditSink
}

func NewMultiSink(sinks ...AuditSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Record(ctx context.Context, event AuditEvent) error {
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
