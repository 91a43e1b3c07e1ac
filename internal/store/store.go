package store

import (
	"context"

	"github.com/rotisserie/eris"
)

var (
	ErrNotFound = eris.New("not found")
	ErrExists   = eris.New("already exists")
)

// Store defines the interface for experiment and event storage.
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error)
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpdateExperimentState(ctx context.Context, id string, state ExperimentState, winnerVariant string) error
	DeleteExperiment(ctx context.Context, id string) error

	// Event operations. AppendEvents persists every event or none of them.
	AppendEvents(ctx context.Context, events []Event) error
	ListEvents(ctx context.Context, testID string) ([]Event, error)
	CountEvents(ctx context.Context, testID string) (int, error)
	// LastEventSeq returns the append sequence of the test's newest event,
	// or 0 when it has none. Sequences are never reused, so any append or
	// delete changes the value.
	LastEventSeq(ctx context.Context, testID string) (int64, error)

	// Lifecycle
	Close() error
}
