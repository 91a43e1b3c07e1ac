// Package assign maps participants to experiment variants without any stored
// state: the same participant and variant set always produce the same variant.
package assign

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/gkobilansky/funnelstat/internal/store"
)

var ErrInvalidArgument = eris.New("invalid argument")

// hashSpace is the size of the 32-bit hash range.
const hashSpace = float64(1 << 32)

// Hash is a base-31 polynomial rolling hash over the bytes of id, followed by
// the murmur3 finalizer so adjacent identifiers spread across the range.
func Hash(id string) uint32 {
	var h uint32
	for i := 0; i < len(id); i++ {
		h = h*31 + uint32(id[i])
	}

	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

// Assign returns the variant participantID falls into. weights may be nil
// for a uniform split; otherwise it must align with variants and be positive.
func Assign(participantID string, variants []string, weights []float64) (string, error) {
	if len(variants) == 0 {
		return "", eris.Wrap(ErrInvalidArgument, "no variants")
	}

	total := float64(len(variants))
	if len(weights) > 0 {
		if len(weights) != len(variants) {
			return "", eris.Wrapf(ErrInvalidArgument, "got %d weights for %d variants", len(weights), len(variants))
		}
		total = 0
		for i, w := range weights {
			if !(w > 0) || math.IsInf(w, 0) {
				return "", eris.Wrapf(ErrInvalidArgument, "weight %d must be positive, got %v", i, w)
			}
			total += w
		}
	}

	threshold := float64(Hash(participantID)) / hashSpace * total

	cumulative := 0.0
	for i, v := range variants {
		if len(weights) > 0 {
			cumulative += weights[i]
		} else {
			cumulative++
		}
		if cumulative >= threshold {
			return v, nil
		}
	}

	// Rounding can leave the threshold just above the final cumulative weight.
	return variants[len(variants)-1], nil
}

// ForExperiment assigns participantID over the experiment's variants and weights.
func ForExperiment(exp *store.Experiment, participantID string) (store.Variant, error) {
	id, err := Assign(participantID, exp.VariantIDs(), exp.Weights())
	if err != nil {
		return store.Variant{}, eris.Wrapf(err, "assign: experiment %s", exp.ID)
	}
	v, _ := exp.Variant(id)
	return v, nil
}
