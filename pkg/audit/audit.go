package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSinkClosed is returned by sinks that can no longer accept events.
var ErrSinkClosed = errors.New("audit.sink_closed")

// Event is one append-only audit record.
type Event struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Principal string    `json:"principal"`
	Operation string    `json:"operation"`
	Domain    string    `json:"domain"`
	Entity    string    `json:"entity,omitempty"`
	AuditRef  string    `json:"audit_ref,omitempty"`
}

// Sink accepts audit events. Implementations may block; the Recorder is
// expected to be wrapped around an async sink when that matters.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Recorder stamps and forwards events to a sink. Sink failures are logged,
// never returned: audit is outside the mutation's atomicity boundary.
type Recorder struct {
	sink Sink
	log  *slog.Logger
}

// NewRecorder creates a recorder. A nil logger falls back to slog.Default.
func NewRecorder(sink Sink, log *slog.Logger) *Recorder {
	if sink == nil {
		panic("audit: sink cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{sink: sink, log: log}
}

// Record fills in the event id and timestamp and hands the event to the
// sink. Failures are surfaced on the logger only.
func (r *Recorder) Record(ctx context.Context, e Event) {
	e.ID = uuid.New().String()
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if err := r.sink.Record(ctx, e); err != nil {
		r.log.WarnContext(ctx, "audit record dropped",
			slog.String("operation", e.Operation),
			slog.String("domain", e.Domain),
			slog.Any("error", err),
		)
	}
}

// MemorySink buffers events in memory for tests and single-process use.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink returns a sink that retains every event in memory.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
