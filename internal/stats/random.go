package stats

import (
	"math"
	"math/rand/v2"
)

// sampler draws from the distributions used by the Bayesian simulation.
type sampler struct {
	r *rand.Rand
}

// uniform returns a draw in (0, 1].
func (s sampler) uniform() float64 {
	return 1 - s.r.Float64()
}

// normal draws a standard normal value with the Box-Muller transform.
func (s sampler) normal() float64 {
	u1 := s.uniform()
	u2 := s.uniform()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// gamma draws from Gamma(shape, 1) with Marsaglia-Tsang rejection sampling.
func (s sampler) gamma(shape float64) float64 {
	if shape < 1 {
		// Boost the shape and scale back: Gamma(a) = Gamma(a+1) * U^(1/a).
		return s.gamma(shape+1) * math.Pow(s.uniform(), 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := s.normal()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.uniform()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// beta draws from Beta(a, b) as a ratio of Gamma draws.
func (s sampler) beta(a, b float64) float64 {
	x := s.gamma(a)
	y := s.gamma(b)
	return x / (x + y)
}
