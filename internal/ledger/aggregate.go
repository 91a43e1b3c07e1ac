package ledger

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gkobilansky/funnelstat/internal/store"
)

type cachedFold struct {
	seq  int64
	aggs map[string]store.VariantAggregate
}

// Aggregate folds a test's events into per-variant counts and rates.
// Variants declared on the experiment are present even without events.
// The result is cached until the test's last event sequence moves, which
// covers appends as well as deletes followed by new events; callers always
// receive their own copy.
func (l *Ledger) Aggregate(ctx context.Context, testID string) (_ map[string]store.VariantAggregate, err error) {
	ctx, span := tracer.Start(ctx, "ledger.aggregate",
		trace.WithAttributes(attribute.String("ledger.test_id", testID)),
	)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	defer func() { aggregateDuration.Observe(time.Since(start).Seconds()) }()

	exp, err := l.store.GetExperiment(ctx, testID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "ledger: load experiment %s", testID)
	}

	aggs, err := l.fold(ctx, testID)
	if err != nil {
		return nil, err
	}

	out := maps.Clone(aggs)
	if out == nil {
		out = make(map[string]store.VariantAggregate)
	}
	if exp != nil {
		for _, v := range exp.Variants {
			agg, ok := out[v.ID]
			if !ok {
				agg = store.VariantAggregate{TestID: testID, VariantID: v.ID}
				agg.ComputeRates()
			}
			agg.VariantName = v.Name
			if agg.VariantName == "" {
				agg.VariantName = v.ID
			}
			out[v.ID] = agg
		}
	}
	span.SetAttributes(attribute.Int("ledger.variants", len(out)))
	return out, nil
}

func (l *Ledger) fold(ctx context.Context, testID string) (map[string]store.VariantAggregate, error) {
	var seq int64
	if !l.noCache {
		var err error
		seq, err = l.store.LastEventSeq(ctx, testID)
		if err != nil {
			return nil, eris.Wrapf(err, "ledger: last event seq %s", testID)
		}
		l.cacheMu.Lock()
		cached, ok := l.cache[testID]
		l.cacheMu.Unlock()
		if ok && cached.seq == seq {
			return cached.aggs, nil
		}
	}

	events, err := l.store.ListEvents(ctx, testID)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: list events %s", testID)
	}
	aggs := Fold(testID, events)

	if !l.noCache {
		l.cacheMu.Lock()
		// Events appended after seq was read only cause a refold next time.
		l.cache[testID] = cachedFold{seq: seq, aggs: aggs}
		l.cacheMu.Unlock()
	}
	return aggs, nil
}

// Fold computes aggregates from events without touching storage.
// VariantName defaults to the variant ID.
func Fold(testID string, events []store.Event) map[string]store.VariantAggregate {
	aggs := make(map[string]store.VariantAggregate)
	for _, e := range events {
		if e.TestID != testID {
			continue
		}
		agg, ok := aggs[e.VariantID]
		if !ok {
			agg = store.VariantAggregate{TestID: testID, VariantID: e.VariantID, VariantName: e.VariantID}
		}
		agg.Add(e.Type)
		aggs[e.VariantID] = agg
	}
	for id, agg := range aggs {
		agg.ComputeRates()
		aggs[id] = agg
	}
	return aggs
}
