// Package report runs the inference engine over ledger data for one
// experiment.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/stats"
	"github.com/gkobilansky/funnelstat/internal/store"
)

var ErrUnknownVariant = eris.New("unknown variant")

type Reporter struct {
	store  store.Store
	ledger *ledger.Ledger
}

func New(st store.Store, l *ledger.Ledger) *Reporter {
	return &Reporter{store: st, ledger: l}
}

// Results analyzes every variant of testID. It returns store.ErrNotFound
// when the test has neither an experiment nor events.
func (r *Reporter) Results(ctx context.Context, testID string, opts stats.AnalyzeOptions) (*stats.Result, error) {
	exp, aggs, err := r.load(ctx, testID)
	if err != nil {
		return nil, err
	}
	return stats.Analyze(exp, aggs, opts)
}

type BayesianReport struct {
	ControlID   string          `json:"control_id"`
	TreatmentID string          `json:"treatment_id"`
	Metric      store.EventType `json:"metric"`
	stats.BayesianResult
}

// Bayesian compares treatment against control on metric. An empty
// treatment picks the best challenger.
func (r *Reporter) Bayesian(ctx context.Context, testID, treatment string, metric store.EventType, opts stats.BayesianOptions) (*BayesianReport, error) {
	res, err := r.Results(ctx, testID, stats.AnalyzeOptions{Metric: metric})
	if err != nil {
		return nil, err
	}
	control, challenger, err := arms(res, treatment)
	if err != nil {
		return nil, err
	}

	b, err := stats.BayesianContext(ctx, control.Sent, control.Conversions, challenger.Sent, challenger.Conversions, opts)
	if err != nil {
		return nil, err
	}
	return &BayesianReport{
		ControlID:      control.ID,
		TreatmentID:    challenger.ID,
		Metric:         res.Metric,
		BayesianResult: b,
	}, nil
}

type SequentialReport struct {
	ControlID   string             `json:"control_id"`
	TreatmentID string             `json:"treatment_id"`
	Metric      store.EventType    `json:"metric"`
	Period      string             `json:"period"`
	Start       time.Time          `json:"start"`
	Visits      stats.PeriodSeries `json:"visits"`
	Conversions stats.PeriodSeries `json:"conversions"`
	stats.SequentialResult
}

// Sequential treats every elapsed period as one look at the data.
func (r *Reporter) Sequential(ctx context.Context, testID, treatment string, metric store.EventType, period time.Duration, alpha float64) (*SequentialReport, error) {
	res, err := r.Results(ctx, testID, stats.AnalyzeOptions{Metric: metric})
	if err != nil {
		return nil, err
	}
	control, challenger, err := arms(res, treatment)
	if err != nil {
		return nil, err
	}

	series, err := r.ledger.Series(ctx, testID, period, res.Metric)
	if err != nil {
		return nil, err
	}
	c, t := series[control.ID], series[challenger.ID]
	periods := max(len(c.Visits), len(t.Visits))
	start := c.Start
	if start.IsZero() {
		start = t.Start
	}

	rep := &SequentialReport{
		ControlID:   control.ID,
		TreatmentID: challenger.ID,
		Metric:      res.Metric,
		Period:      period.String(),
		Start:       start,
		Visits: stats.PeriodSeries{
			Control:   pad(c.Visits, periods),
			Treatment: pad(t.Visits, periods),
		},
		Conversions: stats.PeriodSeries{
			Control:   pad(c.Conversions, periods),
			Treatment: pad(t.Conversions, periods),
		},
	}
	rep.SequentialResult, err = stats.Sequential(rep.Visits, rep.Conversions, alpha)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *Reporter) load(ctx context.Context, testID string) (*store.Experiment, map[string]store.VariantAggregate, error) {
	exp, err := r.store.GetExperiment(ctx, testID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, eris.Wrapf(err, "report: load experiment %s", testID)
	}
	aggs, err := r.ledger.Aggregate(ctx, testID)
	if err != nil {
		return nil, nil, err
	}
	if exp == nil && len(aggs) == 0 {
		return nil, nil, eris.Wrapf(store.ErrNotFound, "report: experiment %s", testID)
	}
	return exp, aggs, nil
}

// arms resolves the control and the treatment to compare against it.
func arms(res *stats.Result, treatment string) (control, challenger stats.VariantResult, err error) {
	control, ok := res.Variant(res.ControlID)
	if !ok {
		return control, challenger, eris.Wrap(ErrUnknownVariant, "report: no control variant")
	}
	if treatment == "" {
		treatment = res.Challenger()
	}
	if treatment == control.ID {
		return control, challenger, eris.Wrapf(ErrUnknownVariant, "report: %s is the control", treatment)
	}
	challenger, ok = res.Variant(treatment)
	if !ok {
		return control, challenger, eris.Wrapf(ErrUnknownVariant, "report: variant %q", treatment)
	}
	return control, challenger, nil
}

func pad(counts []int, n int) []int {
	out := make([]int, n)
	copy(out, counts)
	return out
}
