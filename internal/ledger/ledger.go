// Package ledger records experiment events and folds them into
// per-variant aggregates.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gkobilansky/funnelstat/internal/store"
)

var (
	ErrInvalidEvent    = eris.New("invalid event")
	ErrInvalidArgument = eris.New("invalid argument")
)

// Ledger is an append-only event log over a store.Store. Writes are
// serialised, so subscribers observe events in commit order.
type Ledger struct {
	store   store.Store
	log     *zap.Logger
	now     func() time.Time
	noCache bool

	writeMu sync.Mutex

	cacheMu sync.Mutex
	cache   map[string]cachedFold

	subsMu sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Ledger)

// WithLogger sets the logger used for subscriber failures. Defaults to zap.L().
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithClock sets the clock used to stamp events without a CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithoutCache disables the aggregate cache.
func WithoutCache() Option {
	return func(l *Ledger) { l.noCache = true }
}

func New(st store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: st,
		now:   time.Now,
		cache: make(map[string]cachedFold),
		subs:  make(map[string]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) logger() *zap.Logger {
	if l.log != nil {
		return l.log
	}
	return zap.L()
}

// Record appends a single event.
func (l *Ledger) Record(ctx context.Context, event store.Event) error {
	return l.RecordBatch(ctx, []store.Event{event})
}

// RecordBatch validates every event and then appends the batch atomically.
// If any event is invalid nothing is written and the error wraps
// ErrInvalidEvent.
func (l *Ledger) RecordBatch(ctx context.Context, events []store.Event) (err error) {
	ctx, span := tracer.Start(ctx, "ledger.record_batch",
		trace.WithAttributes(attribute.Int("ledger.batch_size", len(events))),
	)
	defer func() { endSpan(span, err) }()

	if len(events) == 0 {
		return nil
	}

	now := l.now().UTC()
	batch := make([]store.Event, len(events))
	var invalid error
	for i, e := range events {
		if verr := store.ValidateEvent(&e); verr != nil {
			eventsRejected.Inc()
			if invalid == nil {
				invalid = eris.Wrapf(ErrInvalidEvent, "event %d: %v", i, verr)
			}
			continue
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		batch[i] = e
	}
	if invalid != nil {
		return invalid
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := l.store.AppendEvents(ctx, batch); err != nil {
		return eris.Wrap(err, "ledger: append events")
	}

	for _, e := range batch {
		eventsRecorded.WithLabelValues(e.Type.String()).Inc()
	}
	l.publish(batch)
	return nil
}

// Events returns a test's events in record order.
func (l *Ledger) Events(ctx context.Context, testID string) ([]store.Event, error) {
	events, err := l.store.ListEvents(ctx, testID)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: list events %s", testID)
	}
	return events, nil
}

// Close stops every subscription and waits for in-flight handlers. It
// must not be called from inside a handler.
func (l *Ledger) Close() {
	l.subsMu.Lock()
	l.closed = true
	var all []*Subscription
	for _, set := range l.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	l.subsMu.Unlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
	l.wg.Wait()
}
