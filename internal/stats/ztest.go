package stats

import (
	"math"

	"github.com/rotisserie/eris"
)

var ErrInvalidArgument = eris.New("invalid argument")

const (
	DefaultConfidence = 0.95
	DefaultPower      = 0.8
)

// Arm identifies one side of a two-arm comparison.
type Arm string

const (
	ArmNone      Arm = ""
	ArmControl   Arm = "control"
	ArmTreatment Arm = "treatment"
)

// Significance is the outcome of comparing a treatment arm against control.
type Significance struct {
	ZScore             float64    `json:"z_score"`
	PValue             float64    `json:"p_value"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	StandardError      float64    `json:"standard_error"`
	// Significant is one-sided: it is only set when the treatment wins.
	Significant        bool    `json:"significant"`
	ConfidenceLevel    float64 `json:"confidence_level"`
	Winner             Arm     `json:"winner,omitempty"`
	ControlRate        float64 `json:"control_rate"`
	TreatmentRate      float64 `json:"treatment_rate"`
	AbsoluteDifference float64 `json:"absolute_difference"`
	RelativeLift       float64 `json:"relative_lift"`
	ControlSample      int     `json:"control_sample"`
	TreatmentSample    int     `json:"treatment_sample"`

	MinimumDetectableEffect float64 `json:"minimum_detectable_effect,omitempty"`
	RecommendedSampleSize   int     `json:"recommended_sample_size,omitempty"`
}

func checkConfidence(confidence float64) (float64, error) {
	if confidence == 0 {
		return DefaultConfidence, nil
	}
	if !(confidence > 0 && confidence < 1) {
		return 0, eris.Wrapf(ErrInvalidArgument, "confidence level %v outside (0, 1)", confidence)
	}
	return confidence, nil
}

func checkPower(power float64) (float64, error) {
	if power == 0 {
		return DefaultPower, nil
	}
	if !(power > 0 && power < 1) {
		return 0, eris.Wrapf(ErrInvalidArgument, "power %v outside (0, 1)", power)
	}
	return power, nil
}

func checkArm(name string, n, x int) error {
	if x < 0 {
		return eris.Wrapf(ErrInvalidArgument, "%s conversions %d are negative", name, x)
	}
	if n > 0 && x > n {
		return eris.Wrapf(ErrInvalidArgument, "%s conversions %d exceed sample %d", name, x, n)
	}
	return nil
}

// ZTest runs a two-proportion z-test of treatment (nT, xT) against control
// (nC, xC). An empty arm yields a neutral, non-significant result.
func ZTest(nC, xC, nT, xT int, confidence float64) (Significance, error) {
	confidence, err := checkConfidence(confidence)
	if err != nil {
		return Significance{}, err
	}
	if err := checkArm("control", nC, xC); err != nil {
		return Significance{}, err
	}
	if err := checkArm("treatment", nT, xT); err != nil {
		return Significance{}, err
	}

	res := Significance{
		PValue:          1,
		ConfidenceLevel: confidence,
		ControlSample:   max(nC, 0),
		TreatmentSample: max(nT, 0),
	}
	if nC <= 0 || nT <= 0 {
		return res, nil
	}

	rateC := float64(xC) / float64(nC)
	rateT := float64(xT) / float64(nT)
	res.ControlRate = rateC
	res.TreatmentRate = rateT
	res.AbsoluteDifference = rateT - rateC
	if rateC != 0 {
		res.RelativeLift = (rateT - rateC) / rateC * 100
	}

	// Pooled proportion under the null hypothesis rateC == rateT.
	pooled := float64(xC+xT) / float64(nC+nT)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(nC) + 1/float64(nT)))
	res.StandardError = se

	if se > 0 {
		res.ZScore = (rateT - rateC) / se
	}
	res.PValue = twoTailedP(res.ZScore)

	// The interval on the difference uses the unpooled standard error.
	seDiff := math.Sqrt(rateC*(1-rateC)/float64(nC) + rateT*(1-rateT)/float64(nT))
	margin := ZScore(confidence) * seDiff
	res.ConfidenceInterval = [2]float64{res.AbsoluteDifference - margin, res.AbsoluteDifference + margin}

	alpha := 1 - confidence
	if res.PValue < alpha {
		switch {
		case res.ZScore > 0:
			res.Winner = ArmTreatment
		case res.ZScore < 0:
			res.Winner = ArmControl
		}
	}
	res.Significant = res.PValue < alpha && res.ZScore > 0

	return res, nil
}

// Compare runs ZTest and adds the minimum detectable effect for the current
// sample and the per-arm sample size needed to confirm the observed lift.
func Compare(nC, xC, nT, xT int, confidence, power float64) (Significance, error) {
	res, err := ZTest(nC, xC, nT, xT, confidence)
	if err != nil {
		return res, err
	}
	power, err = checkPower(power)
	if err != nil {
		return res, err
	}
	if nC <= 0 || nT <= 0 {
		return res, nil
	}

	pooled := float64(xC+xT) / float64(nC+nT)
	smaller := float64(min(nC, nT))
	zAlpha := ZScore(res.ConfidenceLevel)
	zBeta := InverseNormal(power)
	res.MinimumDetectableEffect = (zAlpha + zBeta) * math.Sqrt(2*pooled*(1-pooled)/smaller)

	if res.ControlRate > 0 && res.ControlRate < 1 && res.RelativeLift != 0 {
		n, err := SampleSize(res.ControlRate, res.RelativeLift/100, res.ConfidenceLevel, power, 2)
		if err == nil {
			res.RecommendedSampleSize = n
		}
	}

	return res, nil
}
