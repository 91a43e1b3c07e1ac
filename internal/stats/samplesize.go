package stats

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
)

const (
	// MinSampleSize is the per-variant floor returned by SampleSize.
	MinSampleSize = 100

	largeSampleAdvisory = 10000
	lowBaselineAdvisory = 0.05

	maxSampleSize = 1e12
)

// EffectSize returns Cohen's h between a baseline and a treatment rate.
func EffectSize(baseline, treatment float64) float64 {
	return 2*math.Asin(math.Sqrt(baseline)) - 2*math.Asin(math.Sqrt(treatment))
}

// SampleSize returns the per-variant sample needed to detect a relative
// change of mde on baseline at the given confidence and power. With more
// than two variants the critical value is inflated by sqrt(numVariants-1)
// to account for the comparisons against control.
func SampleSize(baseline, mde, confidence, power float64, numVariants int) (int, error) {
	if !(baseline > 0 && baseline < 1) {
		return 0, eris.Wrapf(ErrInvalidArgument, "baseline rate %v outside (0, 1)", baseline)
	}
	if mde == 0 || math.IsNaN(mde) || math.IsInf(mde, 0) {
		return 0, eris.Wrapf(ErrInvalidArgument, "minimum detectable effect %v must be non-zero", mde)
	}
	confidence, err := checkConfidence(confidence)
	if err != nil {
		return 0, err
	}
	power, err = checkPower(power)
	if err != nil {
		return 0, err
	}
	if numVariants == 0 {
		numVariants = 2
	}
	if numVariants < 2 {
		return 0, eris.Wrapf(ErrInvalidArgument, "need at least 2 variants, got %d", numVariants)
	}

	treatment := baseline * (1 + mde)
	if treatment < 0 || treatment > 1 {
		return 0, eris.Wrapf(ErrInvalidArgument, "treatment rate %v outside [0, 1]", treatment)
	}

	zAlpha := ZScore(confidence)
	if numVariants > 2 {
		zAlpha *= math.Sqrt(float64(numVariants - 1))
	}
	zBeta := InverseNormal(power)

	pooled := (baseline + treatment) / 2
	diff := treatment - baseline
	numerator := zAlpha*math.Sqrt(2*pooled*(1-pooled)) +
		zBeta*math.Sqrt(baseline*(1-baseline)+treatment*(1-treatment))
	n := math.Ceil(numerator * numerator / (diff * diff))

	if math.IsNaN(n) || n > maxSampleSize {
		return 0, eris.Wrapf(ErrInvalidArgument, "effect %v is too small to size", mde)
	}
	return max(int(n), MinSampleSize), nil
}

// Duration is how long an experiment must run to collect its sample.
type Duration struct {
	Days            int     `json:"days"`
	Weeks           float64 `json:"weeks"`
	TotalSamples    int     `json:"total_samples"`
	DailyPerVariant int     `json:"daily_per_variant"`
	Human           string  `json:"human"`
}

// DurationEstimate splits dailyTraffic evenly across variants and reports
// how long it takes each variant to reach samplesNeeded.
func DurationEstimate(dailyTraffic, samplesNeeded, numVariants int) (Duration, error) {
	if dailyTraffic <= 0 {
		return Duration{}, eris.Wrapf(ErrInvalidArgument, "daily traffic %d must be positive", dailyTraffic)
	}
	if samplesNeeded < 0 {
		return Duration{}, eris.Wrapf(ErrInvalidArgument, "samples needed %d are negative", samplesNeeded)
	}
	if numVariants == 0 {
		numVariants = 2
	}
	if numVariants < 1 {
		return Duration{}, eris.Wrapf(ErrInvalidArgument, "variant count %d must be positive", numVariants)
	}

	perVariant := float64(dailyTraffic) / float64(numVariants)
	days := int(math.Ceil(float64(samplesNeeded) / perVariant))

	return Duration{
		Days:            days,
		Weeks:           math.Round(float64(days)/7*10) / 10,
		TotalSamples:    samplesNeeded * numVariants,
		DailyPerVariant: int(perVariant),
		Human:           humanDays(days),
	}, nil
}

func humanDays(days int) string {
	switch {
	case days == 0:
		return "less than a day"
	case days == 1:
		return "1 day"
	case days < 14:
		return fmt.Sprintf("%d days", days)
	case days < 60:
		return fmt.Sprintf("about %s weeks", humanize.FtoaWithDigits(float64(days)/7, 1))
	default:
		return fmt.Sprintf("about %s months", humanize.FtoaWithDigits(float64(days)/30, 1))
	}
}

// PracticalSampleSize is a sample size with advisory notes for planning.
type PracticalSampleSize struct {
	PerVariant int      `json:"per_variant"`
	Total      int      `json:"total"`
	EffectSize float64  `json:"effect_size"`
	Advisories []string `json:"advisories,omitempty"`
}

// PracticalSignificanceSampleSize wraps SampleSize with planning advice for
// very large samples and low baseline rates.
func PracticalSignificanceSampleSize(baseline, mde, confidence, power float64, numVariants int) (PracticalSampleSize, error) {
	n, err := SampleSize(baseline, mde, confidence, power, numVariants)
	if err != nil {
		return PracticalSampleSize{}, err
	}
	if numVariants == 0 {
		numVariants = 2
	}

	res := PracticalSampleSize{
		PerVariant: n,
		Total:      n * numVariants,
		EffectSize: math.Abs(EffectSize(baseline, baseline*(1+mde))),
	}
	if n > largeSampleAdvisory {
		res.Advisories = append(res.Advisories, fmt.Sprintf(
			"Large sample required (%s per variant). Consider testing a bolder change or a higher-traffic step of the funnel.",
			humanize.Comma(int64(n))))
	}
	if baseline < lowBaselineAdvisory {
		res.Advisories = append(res.Advisories, fmt.Sprintf(
			"Low baseline rate (%.1f%%). Consider optimising for an earlier funnel event such as opens or clicks.",
			baseline*100))
	}
	return res, nil
}
