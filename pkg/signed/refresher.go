package signed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Refresher regenerates signed snapshots in the background. Plug Notify
// into the engine's change listener; mutations landing within the debounce
// window collapse into one rebuild per domain.
type Refresher struct {
	pub      *Publisher
	debounce time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	pending map[string]*refreshState
	closed  bool
	wg      sync.WaitGroup
}

// refreshState tracks one scheduled rebuild. dirty records notifications
// that arrived after the timer fired but before the callback ran, so the
// callback reschedules its own run instead of a Reset racing a fired timer.
type refreshState struct {
	timer *time.Timer
	dirty bool
}

// RefresherOption configures the Refresher.
type RefresherOption func(*Refresher)

// WithDebounce sets the quiet period before a rebuild. Default 500ms.
func WithDebounce(d time.Duration) RefresherOption {
	return func(r *Refresher) { r.debounce = d }
}

// WithRefresherLogger sets the logger for rebuild failures.
func WithRefresherLogger(log *slog.Logger) RefresherOption {
	return func(r *Refresher) { r.log = log }
}

// NewRefresher creates a refresher over the publisher.
func NewRefresher(pub *Publisher, opts ...RefresherOption) *Refresher {
	if pub == nil {
		panic("signed: publisher cannot be nil")
	}
	r := &Refresher{
		pub:      pub,
		debounce: 500 * time.Millisecond,
		log:      slog.Default(),
		pending:  make(map[string]*refreshState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify schedules a rebuild of the domain's snapshot. Repeated calls
// while a rebuild is pending collapse into it.
func (r *Refresher) Notify(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if st, ok := r.pending[domain]; ok {
		st.dirty = true
		return
	}
	st := &refreshState{}
	r.wg.Add(1)
	st.timer = time.AfterFunc(r.debounce, func() { r.rebuild(domain) })
	r.pending[domain] = st
}

// rebuild is the timer callback. It owns exactly one WaitGroup token: a
// dirty entry hands the token to the rescheduled run, every other path
// releases it.
func (r *Refresher) rebuild(domain string) {
	r.mu.Lock()
	st, ok := r.pending[domain]
	if !ok || r.closed {
		r.mu.Unlock()
		r.wg.Done()
		return
	}
	if st.dirty {
		st.dirty = false
		st.timer.Reset(r.debounce)
		r.mu.Unlock()
		return
	}
	delete(r.pending, domain)
	r.mu.Unlock()
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.pub.Refresh(ctx, domain); err != nil {
		r.log.Warn("signed snapshot refresh failed",
			slog.String("domain", domain),
			slog.Any("error", err))
	}
}

// Close stops pending timers and waits for in-flight rebuilds. Further
// notifications are ignored.
func (r *Refresher) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for domain, st := range r.pending {
		// A timer that already fired keeps its token; its callback sees
		// closed and releases it.
		if st.timer.Stop() {
			r.wg.Done()
		}
		delete(r.pending, domain)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
