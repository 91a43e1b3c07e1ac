package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps experiments and events in process memory. Batches are
// appended under a single write lock so readers never see half a batch.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	events      map[string][]Event
	seq         int64
	lastSeq     map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
		events:      make(map[string][]Event),
		lastSeq:     make(map[string]int64),
	}
}

func (s *MemoryStore) CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[exp.ID]; ok {
		return nil, ErrExists
	}

	now := time.Now().UTC()
	created := cloneExperiment(exp)
	if created.State == "" {
		created.State = StateRunning
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	s.experiments[created.ID] = created

	return cloneExperiment(created), nil
}

func (s *MemoryStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExperiment(exp), nil
}

func (s *MemoryStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		list = append(list, cloneExperiment(exp))
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) UpdateExperimentState(ctx context.Context, id string, state ExperimentState, winnerVariant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[id]
	if !ok {
		return ErrNotFound
	}
	exp.State = state
	if winnerVariant != "" {
		exp.WinnerVariant = winnerVariant
	}
	exp.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteExperiment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[id]; !ok {
		return ErrNotFound
	}
	delete(s.experiments, id)
	delete(s.events, id)
	delete(s.lastSeq, id)
	return nil
}

func (s *MemoryStore) AppendEvents(ctx context.Context, events []Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.seq++
		s.events[e.TestID] = append(s.events[e.TestID], e)
		s.lastSeq[e.TestID] = s.seq
	}
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, testID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[testID]
	events := make([]Event, len(stored))
	copy(events, stored)
	return events, nil
}

func (s *MemoryStore) CountEvents(ctx context.Context, testID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events[testID]), nil
}

func (s *MemoryStore) LastEventSeq(ctx context.Context, testID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastSeq[testID], nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneExperiment(exp *Experiment) *Experiment {
	c := *exp
	c.Variants = append([]Variant(nil), exp.Variants...)
	return &c
}
