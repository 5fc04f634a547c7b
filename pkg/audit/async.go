package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AsyncSink decouples the engine's write path from a slow downstream sink.
// Events are queued on a buffered channel and forwarded by a single worker;
// when the buffer is full the event is dropped with a log line, keeping the
// mutation path non-blocking per the best-effort audit contract.
type AsyncSink struct {
	next    Sink
	events  chan Event
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	log     *slog.Logger
	timeout time.Duration
}

// NewAsyncSink wraps next with a buffered forwarder. Close must be called
// to flush the queue on shutdown.
func NewAsyncSink(next Sink, buffer int, log *slog.Logger) *AsyncSink {
	if next == nil {
		panic("audit: sink cannot be nil")
	}
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = slog.Default()
	}

	s := &AsyncSink{
		next:    next,
		events:  make(chan Event, buffer),
		log:     log,
		timeout: 5 * time.Second,
	}

	s.wg.Add(1)
	go s.worker()
	return s
}

// Record enqueues the event. The read lock pins the channel open: Close
// takes the write lock before closing, so a send can never hit a closed
// channel.
func (s *AsyncSink) Record(ctx context.Context, e Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.events <- e:
		return nil
	default:
		s.log.Warn("audit buffer full, event dropped",
			slog.String("operation", e.Operation),
			slog.String("domain", e.Domain),
		)
		return nil
	}
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()
	for e := range s.events {
		// Detach from request contexts so a cancelled caller cannot
		// abort delivery of an already-accepted event.
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.next.Record(ctx, e); err != nil {
			s.log.Warn("audit forward failed",
				slog.String("operation", e.Operation),
				slog.String("domain", e.Domain),
				slog.Any("error", err),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()
	s.wg.Wait()
}
