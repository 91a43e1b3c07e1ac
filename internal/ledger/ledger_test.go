package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gkobilansky/funnelstat/internal/store"
)

var testClock = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, st store.Store, opts ...Option) *Ledger {
	t.Helper()
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return testClock }),
	}, opts...)
	l := New(st, opts...)
	t.Cleanup(l.Close)
	return l
}

func forEachStore(t *testing.T, fn func(t *testing.T, st store.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, store.NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) {
		st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() }) //nolint:errcheck
		fn(t, st)
	})
}

func ev(variant, participant string, typ store.EventType) store.Event {
	return store.Event{TestID: "hero", VariantID: variant, ParticipantID: participant, Type: typ}
}

func TestRecord_StampsIDAndTime(t *testing.T) {
	st := store.NewMemoryStore()
	l := newTestLedger(t, st)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, ev("a", "p1", store.EventSent)))

	events, err := l.Events(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, events[0].ID, 36)
	assert.True(t, events[0].CreatedAt.Equal(testClock))

	explicit := ev("a", "p2", store.EventSent)
	explicit.ID = "evt-1"
	explicit.CreatedAt = testClock.Add(-time.Hour)
	require.NoError(t, l.Record(ctx, explicit))

	events, err = l.Events(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", events[1].ID)
	assert.True(t, events[1].CreatedAt.Equal(testClock.Add(-time.Hour)))
}

func TestRecord_RejectsInvalidEvent(t *testing.T) {
	l := newTestLedger(t, store.NewMemoryStore())

	err := l.Record(context.Background(), store.Event{TestID: "hero", VariantID: "a", Type: store.EventSent})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = l.Record(context.Background(), ev("a", "p1", store.EventType(99)))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestRecordBatch_AllOrNothing(t *testing.T) {
	forEachStore(t, func(t *testing.T, st store.Store) {
		l := newTestLedger(t, st)
		ctx := context.Background()

		require.NoError(t, l.Record(ctx, ev("a", "seed", store.EventSent)))
		before, err := l.Aggregate(ctx, "hero")
		require.NoError(t, err)

		batch := make([]store.Event, 10)
		for i := range batch {
			batch[i] = ev("b", fmt.Sprintf("p%d", i), store.EventSent)
		}
		batch[4].ParticipantID = ""

		err = l.RecordBatch(ctx, batch)
		require.ErrorIs(t, err, ErrInvalidEvent)
		assert.Contains(t, err.Error(), "event 4")

		n, err := st.CountEvents(ctx, "hero")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		after, err := l.Aggregate(ctx, "hero")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestRecordBatch_Empty(t *testing.T) {
	l := newTestLedger(t, store.NewMemoryStore())
	assert.NoError(t, l.RecordBatch(context.Background(), nil))
}

type failingStore struct {
	store.Store
}

func (failingStore) AppendEvents(context.Context, []store.Event) error {
	return errors.New("disk full")
}

func TestRecordBatch_StoreFailureNotPublished(t *testing.T) {
	l := newTestLedger(t, failingStore{store.NewMemoryStore()})

	var called atomic.Bool
	l.Subscribe("hero", func(store.Event) error {
		called.Store(true)
		return nil
	})

	err := l.Record(context.Background(), ev("a", "p1", store.EventSent))
	assert.ErrorContains(t, err, "disk full")
	assert.Never(t, called.Load, 50*time.Millisecond, 5*time.Millisecond)
}
