package ledger

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gkobilansky/funnelstat/internal/store"
)

// MaxPeriods bounds how many periods Series will allocate per variant.
const MaxPeriods = 10000

// Series is one variant's activity split into fixed periods.
type Series struct {
	VariantID   string        `json:"variant_id"`
	Start       time.Time     `json:"start"`
	Bucket      time.Duration `json:"bucket"`
	Visits      []int         `json:"visits"`
	Conversions []int         `json:"conversions"`
}

// Series buckets a test's events by CreatedAt. Visits count sent events and
// Conversions count metric events. Every variant gets the same number of
// periods, starting at the bucket of the earliest event.
func (l *Ledger) Series(ctx context.Context, testID string, bucket time.Duration, metric store.EventType) (map[string]Series, error) {
	if bucket <= 0 {
		return nil, eris.Wrapf(ErrInvalidArgument, "bucket %s must be positive", bucket)
	}
	if !metric.Valid() {
		return nil, eris.Wrapf(ErrInvalidArgument, "unknown metric %d", metric)
	}

	events, err := l.Events(ctx, testID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Series)
	if len(events) == 0 {
		return out, nil
	}

	first, last := events[0].CreatedAt, events[0].CreatedAt
	for _, e := range events[1:] {
		if e.CreatedAt.Before(first) {
			first = e.CreatedAt
		}
		if e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}
	start := first.UTC().Truncate(bucket)
	span := last.Sub(start) / bucket
	if span >= MaxPeriods {
		return nil, eris.Wrapf(ErrInvalidArgument, "bucket %s splits %s of events into more than %d periods", bucket, last.Sub(first), MaxPeriods)
	}
	periods := int(span) + 1

	for _, e := range events {
		s, ok := out[e.VariantID]
		if !ok {
			s = Series{
				VariantID:   e.VariantID,
				Start:       start,
				Bucket:      bucket,
				Visits:      make([]int, periods),
				Conversions: make([]int, periods),
			}
		}
		i := int(e.CreatedAt.Sub(start) / bucket)
		if e.Type == store.EventSent {
			s.Visits[i]++
		}
		if e.Type == metric {
			s.Conversions[i]++
		}
		out[e.VariantID] = s
	}
	return out, nil
}
