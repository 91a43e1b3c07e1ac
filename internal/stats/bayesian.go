package stats

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSimulations = 10000
	MaxSimulations     = 1000000

	// cancelCheckEvery is how many draws a worker makes between
	// context checks.
	cancelCheckEvery = 1024
)

type BayesianOptions struct {
	// Simulations is the number of posterior draws; zero means DefaultSimulations.
	Simulations int
	// Source seeds the simulation. Nil draws a seed from the runtime's
	// random source, so results differ between calls.
	Source rand.Source
	// Workers splits the draws across goroutines. Each worker gets its own
	// stream seeded from Source, so a fixed Source and Workers reproduce
	// the same result.
	Workers int
}

type BayesianResult struct {
	ProbabilityTreatmentWins float64    `json:"probability_treatment_wins"`
	ExpectedLift             float64    `json:"expected_lift"`
	CredibleInterval         [2]float64 `json:"credible_interval"`
	Simulations              int        `json:"simulations"`
}

// Bayesian estimates the probability that the treatment conversion rate
// exceeds control under uniform Beta(1,1) priors. Lifts are relative to
// control, in percent.
func Bayesian(nC, xC, nT, xT int, opts BayesianOptions) (BayesianResult, error) {
	return BayesianContext(context.Background(), nC, xC, nT, xT, opts)
}

// BayesianContext is Bayesian with cancellation: every worker stops at its
// next check once ctx is done and the context's error is returned.
func BayesianContext(ctx context.Context, nC, xC, nT, xT int, opts BayesianOptions) (BayesianResult, error) {
	if err := checkArm("control", nC, xC); err != nil {
		return BayesianResult{}, err
	}
	if err := checkArm("treatment", nT, xT); err != nil {
		return BayesianResult{}, err
	}
	if nC < 0 || nT < 0 {
		return BayesianResult{}, eris.Wrap(ErrInvalidArgument, "sample sizes are negative")
	}

	sims := opts.Simulations
	if sims == 0 {
		sims = DefaultSimulations
	}
	if sims < 0 || sims > MaxSimulations {
		return BayesianResult{}, eris.Wrapf(ErrInvalidArgument, "simulations %d outside [1, %d]", sims, MaxSimulations)
	}
	workers := max(opts.Workers, 1)
	workers = min(workers, sims)

	src := opts.Source
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	alphaC, betaC := 1+float64(xC), 1+float64(max(nC-xC, 0))
	alphaT, betaT := 1+float64(xT), 1+float64(max(nT-xT, 0))

	lifts := make([]float64, sims)
	wins := make([]int, workers)
	chunk := (sims + workers - 1) / workers

	draw := func(ctx context.Context, w int, r *rand.Rand) error {
		s := sampler{r: r}
		lo := w * chunk
		hi := min(lo+chunk, sims)
		for i := lo; i < hi; i++ {
			if (i-lo)%cancelCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			c := s.beta(alphaC, betaC)
			t := s.beta(alphaT, betaT)
			if t > c {
				wins[w]++
			}
			if c > 0 {
				lifts[i] = (t - c) / c * 100
			}
		}
		return nil
	}

	if workers == 1 {
		if err := draw(ctx, 0, rand.New(src)); err != nil {
			return BayesianResult{}, err
		}
	} else {
		base := rand.New(src)
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < workers; w++ {
			seed1, seed2 := base.Uint64(), base.Uint64()
			g.Go(func() error {
				return draw(gctx, w, rand.New(rand.NewPCG(seed1, seed2)))
			})
		}
		if err := g.Wait(); err != nil {
			return BayesianResult{}, err
		}
	}

	totalWins := 0
	for _, n := range wins {
		totalWins += n
	}
	sum := 0.0
	for _, l := range lifts {
		sum += l
	}
	sort.Float64s(lifts)

	return BayesianResult{
		ProbabilityTreatmentWins: float64(totalWins) / float64(sims),
		ExpectedLift:             sum / float64(sims),
		CredibleInterval:         [2]float64{percentile(lifts, 0.025), percentile(lifts, 0.975)},
		Simulations:              sims,
	}, nil
}

// percentile reads the q-th quantile from sorted values.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(q * float64(len(sorted))))
	return sorted[min(idx, len(sorted)-1)]
}
