package stats

import (
	"cmp"
	"sort"

	"github.com/gkobilansky/funnelstat/internal/store"
)

// AnalyzeOptions selects the metric and thresholds for Analyze.
type AnalyzeOptions struct {
	// Metric is the conversion event; zero means store.EventConverted.
	Metric     store.EventType
	Confidence float64
	Power      float64
}

// Result is a report over every variant of a test.
type Result struct {
	Variants        []VariantResult `json:"variants"`
	ControlID       string          `json:"control_id"`
	LeadingVariant  string          `json:"leading_variant"`
	Metric          store.EventType `json:"metric"`
	ConfidenceLevel float64         `json:"confidence_level"`
	// Confidence is 1 - p of the leader against control (or of the best
	// challenger when control leads).
	Confidence float64 `json:"confidence"`
	Confident  bool    `json:"confident"`
}

// VariantResult contains statistics for a single variant
type VariantResult struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Sent        int     `json:"sent"`
	Conversions int     `json:"conversions"`
	Rate        float64 `json:"rate"`
	CILower     float64 `json:"ci_lower"`
	CIUpper     float64 `json:"ci_upper"`
	IsControl   bool    `json:"is_control"`
	// Undeclared marks events under a variant ID the experiment does not
	// declare. Such variants are reported but never lead.
	Undeclared bool `json:"undeclared,omitempty"`

	// Comparison is the test against control; nil for the control itself.
	Comparison      *Significance `json:"comparison,omitempty"`
	ComparisonError string        `json:"comparison_error,omitempty"`
}

// Analyze builds a report from per-variant aggregates. Variants follow the
// experiment's declaration order; without an experiment they are sorted by
// ID and the first one is the control.
func Analyze(exp *store.Experiment, aggs map[string]store.VariantAggregate, opts AnalyzeOptions) (*Result, error) {
	confidence, err := checkConfidence(opts.Confidence)
	if err != nil {
		return nil, err
	}
	power, err := checkPower(opts.Power)
	if err != nil {
		return nil, err
	}
	metric := opts.Metric
	if metric == 0 {
		metric = store.EventConverted
	}

	ids, names, controlID, declared := variantOrder(exp, aggs)

	res := &Result{
		Variants:        make([]VariantResult, len(ids)),
		ControlID:       controlID,
		Metric:          metric,
		ConfidenceLevel: confidence,
	}

	control := -1
	leading := -1
	for i, id := range ids {
		agg := aggs[id]
		conversions := agg.Count(metric)

		rate := 0.0
		if agg.Sent > 0 {
			rate = float64(conversions) / float64(agg.Sent)
		}
		lower, upper := WilsonInterval(conversions, agg.Sent, confidence)

		res.Variants[i] = VariantResult{
			ID:          id,
			Name:        names[id],
			Sent:        agg.Sent,
			Conversions: conversions,
			Rate:        rate,
			CILower:     lower,
			CIUpper:     upper,
			IsControl:   id == controlID,
			Undeclared:  i >= declared,
		}
		if id == controlID {
			control = i
		}
		if i >= declared {
			continue
		}
		if leading < 0 || rate > res.Variants[leading].Rate {
			leading = i
		}
	}
	if leading >= 0 {
		res.LeadingVariant = ids[leading]
	}
	if control < 0 {
		return res, nil
	}

	c := res.Variants[control]
	for i := range res.Variants {
		if i == control {
			continue
		}
		v := &res.Variants[i]
		sig, err := Compare(c.Sent, c.Conversions, v.Sent, v.Conversions, confidence, power)
		if err != nil {
			// Funnels are not enforced, so a metric can exceed sent.
			v.ComparisonError = err.Error()
			continue
		}
		v.Comparison = &sig
	}

	decisive := leading
	if leading == control {
		decisive = bestChallenger(res.Variants, control)
	}
	if decisive >= 0 && res.Variants[decisive].Comparison != nil {
		res.Confidence = 1 - res.Variants[decisive].Comparison.PValue
		res.Confident = res.Variants[decisive].Comparison.PValue < 1-confidence
	}

	return res, nil
}

func bestChallenger(variants []VariantResult, control int) int {
	best := -1
	for i, v := range variants {
		if i == control || v.Undeclared {
			continue
		}
		if best < 0 || v.Rate > variants[best].Rate {
			best = i
		}
	}
	return best
}

// variantOrder lists the experiment's variants in declaration order followed
// by any undeclared variant IDs found in aggs, sorted. declared is the count
// of leading IDs that belong to the experiment. Without an experiment every
// ID is sorted and the first is the control.
func variantOrder(exp *store.Experiment, aggs map[string]store.VariantAggregate) (ids []string, names map[string]string, controlID string, declared int) {
	names = make(map[string]string)
	if exp != nil && len(exp.Variants) > 0 {
		for _, v := range exp.Variants {
			ids = append(ids, v.ID)
			names[v.ID] = cmp.Or(v.Name, v.ID)
		}
		declared = len(ids)
		controlID = exp.Control().ID
	}

	var extra []string
	for id, agg := range aggs {
		if _, ok := names[id]; ok {
			continue
		}
		extra = append(extra, id)
		names[id] = cmp.Or(agg.VariantName, id)
	}
	sort.Strings(extra)
	ids = append(ids, extra...)

	if declared == 0 {
		declared = len(ids)
		if len(ids) > 0 {
			controlID = ids[0]
		}
	}
	return ids, names, controlID, declared
}

// Variant returns the result for variant id.
func (r *Result) Variant(id string) (VariantResult, bool) {
	for _, v := range r.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return VariantResult{}, false
}

// Challenger returns the best-performing non-control variant.
func (r *Result) Challenger() string {
	control := -1
	for i, v := range r.Variants {
		if v.IsControl {
			control = i
		}
	}
	if best := bestChallenger(r.Variants, control); best >= 0 {
		return r.Variants[best].ID
	}
	return ""
}
