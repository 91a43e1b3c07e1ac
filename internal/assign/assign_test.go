package assign

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkobilansky/funnelstat/internal/store"
)

func TestAssign_Stable(t *testing.T) {
	variants := []string{"control", "treatment", "holdout"}
	weights := []float64{2, 1, 1}

	first, err := Assign("participant-42", variants, weights)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		got, err := Assign("participant-42", variants, weights)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestAssign_UniformRandomIDs(t *testing.T) {
	variants := []string{"a", "b"}
	counts := map[string]int{}

	const n = 100000
	for i := 0; i < n; i++ {
		v, err := Assign(uuid.NewString(), variants, []float64{1, 1})
		require.NoError(t, err)
		counts[v]++
	}

	share := float64(counts["a"]) / n
	if share < 0.47 || share > 0.53 {
		t.Errorf("variant a share %f outside [0.47, 0.53]", share)
	}
}

func TestAssign_UniformSequentialIDs(t *testing.T) {
	variants := []string{"a", "b"}
	counts := map[string]int{}

	const n = 100000
	for i := 0; i < n; i++ {
		v, err := Assign(fmt.Sprintf("user-%d", i), variants, nil)
		require.NoError(t, err)
		counts[v]++
	}

	share := float64(counts["a"]) / n
	if share < 0.47 || share > 0.53 {
		t.Errorf("variant a share %f outside [0.47, 0.53]", share)
	}
}

func TestAssign_RespectsWeights(t *testing.T) {
	variants := []string{"a", "b"}
	counts := map[string]int{}

	const n = 50000
	for i := 0; i < n; i++ {
		v, err := Assign(fmt.Sprintf("visitor-%d", i), variants, []float64{3, 1})
		require.NoError(t, err)
		counts[v]++
	}

	share := float64(counts["a"]) / n
	if share < 0.72 || share > 0.78 {
		t.Errorf("variant a share %f outside [0.72, 0.78] for 3:1 weights", share)
	}
}

func TestAssign_SingleVariant(t *testing.T) {
	v, err := Assign("anyone", []string{"only"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "only", v)
}

func TestAssign_InvalidArguments(t *testing.T) {
	tests := []struct {
		name     string
		variants []string
		weights  []float64
	}{
		{"no variants", nil, nil},
		{"mismatched weights", []string{"a", "b"}, []float64{1}},
		{"zero weight", []string{"a", "b"}, []float64{1, 0}},
		{"negative weight", []string{"a", "b"}, []float64{1, -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assign("p", tt.variants, tt.weights)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	assert.Equal(t, Hash("abc"), Hash("abc"))
	assert.NotEqual(t, Hash("user-1"), Hash("user-2"))
}

func TestForExperiment(t *testing.T) {
	exp := &store.Experiment{
		ID: "hero",
		Variants: []store.Variant{
			{ID: "a", Name: "Ship Faster", Weight: 1},
			{ID: "b", Name: "Build Better", Weight: 1},
		},
	}

	v, err := ForExperiment(exp, "participant-7")
	require.NoError(t, err)

	direct, err := Assign("participant-7", []string{"a", "b"}, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, direct, v.ID)
	assert.NotEmpty(t, v.Name)
}
