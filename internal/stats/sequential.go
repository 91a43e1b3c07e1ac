package stats

import "github.com/rotisserie/eris"

const DefaultAlpha = 0.05

// PeriodSeries holds one count per analysis period for each arm.
type PeriodSeries struct {
	Control   []int `json:"control"`
	Treatment []int `json:"treatment"`
}

type SequentialResult struct {
	// ShouldStop reports whether stopping now keeps the Bonferroni-corrected
	// false-positive rate below alpha.
	ShouldStop bool `json:"should_stop"`
	// Significant is the uncorrected one-sided z-test verdict at alpha.
	Significant   bool    `json:"significant"`
	PValue        float64 `json:"p_value"`
	CurrentZ      float64 `json:"current_z"`
	AdjustedAlpha float64 `json:"adjusted_alpha"`
	Looks         int     `json:"looks"`
}

// Sequential evaluates a test that has been looked at once per period so
// far. The threshold is alpha divided by the number of looks, which is
// conservative rather than an optimal alpha-spending rule.
func Sequential(visits, conversions PeriodSeries, alpha float64) (SequentialResult, error) {
	if alpha == 0 {
		alpha = DefaultAlpha
	}
	if !(alpha > 0 && alpha < 1) {
		return SequentialResult{}, eris.Wrapf(ErrInvalidArgument, "alpha %v outside (0, 1)", alpha)
	}

	looks := len(visits.Control)
	for name, series := range map[string][]int{
		"treatment visits":      visits.Treatment,
		"control conversions":   conversions.Control,
		"treatment conversions": conversions.Treatment,
	} {
		if len(series) != looks {
			return SequentialResult{}, eris.Wrapf(ErrInvalidArgument, "%s has %d periods, want %d", name, len(series), looks)
		}
	}

	res := SequentialResult{PValue: 1, AdjustedAlpha: alpha, Looks: looks}
	if looks == 0 {
		return res, nil
	}

	nC, err := sum(visits.Control)
	if err != nil {
		return SequentialResult{}, err
	}
	nT, err := sum(visits.Treatment)
	if err != nil {
		return SequentialResult{}, err
	}
	xC, err := sum(conversions.Control)
	if err != nil {
		return SequentialResult{}, err
	}
	xT, err := sum(conversions.Treatment)
	if err != nil {
		return SequentialResult{}, err
	}

	z, err := ZTest(nC, xC, nT, xT, 1-alpha)
	if err != nil {
		return SequentialResult{}, err
	}

	res.PValue = z.PValue
	res.CurrentZ = z.ZScore
	res.Significant = z.Significant
	res.AdjustedAlpha = alpha / float64(looks)
	res.ShouldStop = z.PValue < res.AdjustedAlpha
	return res, nil
}

func sum(counts []int) (int, error) {
	total := 0
	for i, c := range counts {
		if c < 0 {
			return 0, eris.Wrapf(ErrInvalidArgument, "period %d count %d is negative", i, c)
		}
		total += c
	}
	return total, nil
}
