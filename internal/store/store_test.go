package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
}

func heroExperiment() *Experiment {
	return &Experiment{
		ID:   "hero",
		Name: "Hero headline",
		Variants: []Variant{
			{ID: "a", Name: "Ship Faster"},
			{ID: "b", Name: "Build Better"},
		},
		ControlID: "a",
	}
}

func event(testID, variant, participant string, typ EventType) Event {
	return Event{
		ID:            participant + "-" + typ.String(),
		TestID:        testID,
		VariantID:     variant,
		ParticipantID: participant,
		Type:          typ,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_CreateAndGetExperiment(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created, err := s.CreateExperiment(ctx, heroExperiment())
		require.NoError(t, err)
		assert.Equal(t, StateRunning, created.State)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := s.GetExperiment(ctx, "hero")
		require.NoError(t, err)
		assert.Equal(t, "Hero headline", got.Name)
		require.Len(t, got.Variants, 2)
		assert.Equal(t, "Build Better", got.Variants[1].Name)
		assert.Equal(t, "a", got.Control().ID)
	})
}

func TestStore_CreateDuplicate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.CreateExperiment(ctx, heroExperiment())
		require.NoError(t, err)

		_, err = s.CreateExperiment(ctx, heroExperiment())
		assert.ErrorIs(t, err, ErrExists)
	})
}

func TestStore_GetExperimentNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.GetExperiment(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ListExperiments(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.CreateExperiment(ctx, heroExperiment())
		require.NoError(t, err)
		pricing := heroExperiment()
		pricing.ID = "pricing"
		_, err = s.CreateExperiment(ctx, pricing)
		require.NoError(t, err)

		list, err := s.ListExperiments(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}

func TestStore_UpdateExperimentState(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.CreateExperiment(ctx, heroExperiment())
		require.NoError(t, err)

		require.NoError(t, s.UpdateExperimentState(ctx, "hero", StateCompleted, "b"))

		got, err := s.GetExperiment(ctx, "hero")
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, got.State)
		assert.Equal(t, "b", got.WinnerVariant)

		err = s.UpdateExperimentState(ctx, "missing", StatePaused, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_DeleteExperimentRemovesEvents(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.CreateExperiment(ctx, heroExperiment())
		require.NoError(t, err)
		require.NoError(t, s.AppendEvents(ctx, []Event{event("hero", "a", "p1", EventSent)}))

		require.NoError(t, s.DeleteExperiment(ctx, "hero"))

		n, err := s.CountEvents(ctx, "hero")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.ErrorIs(t, s.DeleteExperiment(ctx, "hero"), ErrNotFound)
	})
}

func TestStore_AppendAndListEventsInOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		batch := []Event{
			event("hero", "a", "p1", EventSent),
			event("hero", "a", "p1", EventOpened),
			event("hero", "b", "p2", EventSent),
			event("other", "x", "p3", EventSent),
		}
		batch[1].Metadata = map[string]any{"client": "mail"}
		batch[1].TouchID = "touch-1"
		require.NoError(t, s.AppendEvents(ctx, batch))
		require.NoError(t, s.AppendEvents(ctx, []Event{event("hero", "b", "p2", EventConverted)}))

		events, err := s.ListEvents(ctx, "hero")
		require.NoError(t, err)
		require.Len(t, events, 4)
		assert.Equal(t, EventSent, events[0].Type)
		assert.Equal(t, EventOpened, events[1].Type)
		assert.Equal(t, "touch-1", events[1].TouchID)
		assert.Equal(t, "mail", events[1].Metadata["client"])
		assert.Equal(t, EventConverted, events[3].Type)
		assert.True(t, events[0].CreatedAt.Equal(batch[0].CreatedAt))

		n, err := s.CountEvents(ctx, "hero")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}

func TestStore_DuplicateEventsPreserved(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		e := event("hero", "a", "p1", EventOpened)

		require.NoError(t, s.AppendEvents(ctx, []Event{e, e}))

		n, err := s.CountEvents(ctx, "hero")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestMemoryStore_AppendHonoursCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.AppendEvents(ctx, []Event{event("hero", "a", "p1", EventSent)})
	assert.ErrorIs(t, err, context.Canceled)

	n, _ := s.CountEvents(context.Background(), "hero")
	assert.Zero(t, n)
}

func TestStore_LastEventSeqNeverRepeats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.CreateExperiment(ctx, heroExperiment())
		require.NoError(t, err)

		seq, err := s.LastEventSeq(ctx, "hero")
		require.NoError(t, err)
		assert.Zero(t, seq)

		require.NoError(t, s.AppendEvents(ctx, []Event{
			event("hero", "a", "p1", EventSent),
			event("hero", "a", "p2", EventSent),
		}))
		require.NoError(t, s.AppendEvents(ctx, []Event{event("other", "a", "p3", EventSent)}))
		first, err := s.LastEventSeq(ctx, "hero")
		require.NoError(t, err)
		assert.Positive(t, first)

		require.NoError(t, s.DeleteExperiment(ctx, "hero"))
		seq, err = s.LastEventSeq(ctx, "hero")
		require.NoError(t, err)
		assert.Zero(t, seq)

		// Same count of events as before, but a later sequence.
		_, err = s.CreateExperiment(ctx, heroExperiment())
		require.NoError(t, err)
		require.NoError(t, s.AppendEvents(ctx, []Event{
			event("hero", "b", "p4", EventSent),
			event("hero", "b", "p5", EventSent),
		}))
		second, err := s.LastEventSeq(ctx, "hero")
		require.NoError(t, err)
		assert.Greater(t, second, first)
	})
}
