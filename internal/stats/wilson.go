package stats

import "math"

// WilsonInterval bounds a conversion rate of successes/trials at the given
// confidence using the Wilson score method, which stays inside [0, 1] and
// keeps sensible width near 0% and 100%. Zero trials give [0, 0].
func WilsonInterval(successes, trials int, confidence float64) (lower, upper float64) {
	if trials <= 0 {
		return 0, 0
	}

	n := float64(trials)
	z := ZScore(confidence)
	z2n := z * z / n
	rate := min(float64(successes)/n, 1)

	scale := 1 + z2n
	mid := (rate + z2n/2) / scale
	half := z / scale * math.Sqrt(rate*(1-rate)/n+z2n/(4*n))

	return max(mid-half, 0), min(mid+half, 1)
}
