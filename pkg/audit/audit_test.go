package audit_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/audit"
)

type failingSink struct{ err error }

func (s failingSink) Record(ctx context.Context, e audit.Event) error { return s.err }

func TestRecorderStampsEvents(t *testing.T) {
	t.Parallel()

	sink := audit.NewMemorySink()
	rec := audit.NewRecorder(sink, slog.Default())

	rec.Record(context.Background(), audit.Event{
		Principal: "user.admin",
		Operation: "putRole",
		Domain:    "media.storage",
		Entity:    "readers",
		AuditRef:  "ticket-123",
	})

	events := sink.Events()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Time.IsZero())
	assert.Equal(t, "putRole", events[0].Operation)
	assert.Equal(t, "ticket-123", events[0].AuditRef)
}

func TestRecorderSwallowsSinkFailure(t *testing.T) {
	t.Parallel()

	rec := audit.NewRecorder(failingSink{err: errors.New("sink down")}, slog.Default())

	// Must not panic or propagate: audit is best-effort.
	rec.Record(context.Background(), audit.Event{Operation: "putRole", Domain: "media"})
}

func TestAsyncSinkDelivers(t *testing.T) {
	t.Parallel()

	mem := audit.NewMemorySink()
	async := audit.NewAsyncSink(mem, 16, slog.Default())

	for i := 0; i < 5; i++ {
		require.NoError(t, async.Record(context.Background(), audit.Event{Operation: "putRole"}))
	}
	async.Close()

	assert.Len(t, mem.Events(), 5)
}

func TestAsyncSinkClosed(t *testing.T) {
	t.Parallel()

	async := audit.NewAsyncSink(audit.NewMemorySink(), 1, slog.Default())
	async.Close()

	err := async.Record(context.Background(), audit.Event{Operation: "putRole"})
	assert.ErrorIs(t, err, audit.ErrSinkClosed)
}

func TestAsyncSinkRecordRacesClose(t *testing.T) {
	t.Parallel()

	// Records racing Close must either enqueue or report the sink closed,
	// never send on a closed channel.
	for i := 0; i < 200; i++ {
		async := audit.NewAsyncSink(audit.NewMemorySink(), 4, slog.Default())

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := async.Record(context.Background(), audit.Event{Operation: "putRole"})
				if err != nil {
					assert.ErrorIs(t, err, audit.ErrSinkClosed)
				}
			}()
		}
		async.Close()
		wg.Wait()
	}
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	slow := sinkFunc(func(ctx context.Context, e audit.Event) error {
		<-blocked
		return nil
	})

	async := audit.NewAsyncSink(slow, 1, slog.Default())
	defer func() {
		close(blocked)
		async.Close()
	}()

	// Saturate the worker and the buffer, then overflow: Record must
	// return immediately instead of blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 8; i++ {
			_ = async.Record(context.Background(), audit.Event{Operation: "putRole"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
}

type sinkFunc func(ctx context.Context, e audit.Event) error

func (f sinkFunc) Record(ctx context.Context, e audit.Event) error { return f(ctx, e) }
