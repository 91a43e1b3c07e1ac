package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkobilansky/funnelstat/internal/stats"
)

func TestSampleSize_KnownValue(t *testing.T) {
	// 10% baseline, 20% relative lift: the classic answer is near 3,840.
	n, err := stats.SampleSize(0.10, 0.20, 0.95, 0.8, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3841, n, 40)
}

func TestSampleSize_MonotonicInEffect(t *testing.T) {
	prev := 0
	for _, mde := range []float64{0.5, 0.3, 0.2, 0.1, 0.05} {
		n, err := stats.SampleSize(0.10, mde, 0.95, 0.8, 2)
		require.NoError(t, err)
		assert.Greater(t, n, prev, "mde=%v", mde)
		prev = n
	}
}

func TestSampleSize_MoreVariantsNeedMore(t *testing.T) {
	two, err := stats.SampleSize(0.10, 0.20, 0.95, 0.8, 2)
	require.NoError(t, err)
	four, err := stats.SampleSize(0.10, 0.20, 0.95, 0.8, 4)
	require.NoError(t, err)
	assert.Greater(t, four, two)

	defaulted, err := stats.SampleSize(0.10, 0.20, 0.95, 0.8, 0)
	require.NoError(t, err)
	assert.Equal(t, two, defaulted)
}

func TestSampleSize_Floor(t *testing.T) {
	n, err := stats.SampleSize(0.30, 2.0, 0.95, 0.8, 2)
	require.NoError(t, err)
	assert.Equal(t, stats.MinSampleSize, n)
}

func TestSampleSize_NegativeEffect(t *testing.T) {
	n, err := stats.SampleSize(0.20, -0.25, 0.95, 0.8, 2)
	require.NoError(t, err)
	assert.Greater(t, n, stats.MinSampleSize)
}

func TestSampleSize_InvalidArguments(t *testing.T) {
	tests := []struct {
		name                           string
		baseline, mde, confidence, pow float64
		variants                       int
	}{
		{"zero baseline", 0, 0.1, 0.95, 0.8, 2},
		{"baseline of one", 1, 0.1, 0.95, 0.8, 2},
		{"zero effect", 0.1, 0, 0.95, 0.8, 2},
		{"treatment above one", 0.6, 1, 0.95, 0.8, 2},
		{"bad confidence", 0.1, 0.1, 1, 0.8, 2},
		{"bad power", 0.1, 0.1, 0.95, 1.2, 2},
		{"one variant", 0.1, 0.1, 0.95, 0.8, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stats.SampleSize(tt.baseline, tt.mde, tt.confidence, tt.pow, tt.variants)
			assert.ErrorIs(t, err, stats.ErrInvalidArgument)
		})
	}
}

func TestEffectSize(t *testing.T) {
	assert.Zero(t, stats.EffectSize(0.2, 0.2))
	// Cohen's h for 10% vs 12% is about 0.064.
	assert.InDelta(t, 0.064, -stats.EffectSize(0.10, 0.12), 0.002)
}

func TestDurationEstimate(t *testing.T) {
	d, err := stats.DurationEstimate(1000, 3841, 2)
	require.NoError(t, err)

	assert.Equal(t, 8, d.Days)
	assert.Equal(t, 500, d.DailyPerVariant)
	assert.Equal(t, 7682, d.TotalSamples)
	assert.InDelta(t, 1.1, d.Weeks, 1e-9)
	assert.Equal(t, "8 days", d.Human)
}

func TestDurationEstimate_HumanText(t *testing.T) {
	tests := []struct {
		samples int
		want    string
	}{
		{0, "less than a day"},
		{100, "1 day"},
		{2100, "about 3 weeks"},
		{9000, "about 3 months"},
	}
	for _, tt := range tests {
		d, err := stats.DurationEstimate(200, tt.samples, 2)
		require.NoError(t, err)
		assert.Equal(t, tt.want, d.Human, "samples=%d", tt.samples)
	}
}

func TestDurationEstimate_InvalidArguments(t *testing.T) {
	_, err := stats.DurationEstimate(0, 100, 2)
	assert.ErrorIs(t, err, stats.ErrInvalidArgument)

	_, err = stats.DurationEstimate(100, -1, 2)
	assert.ErrorIs(t, err, stats.ErrInvalidArgument)
}

func TestPracticalSignificanceSampleSize(t *testing.T) {
	res, err := stats.PracticalSignificanceSampleSize(0.02, 0.10, 0.95, 0.8, 3)
	require.NoError(t, err)

	assert.Equal(t, res.PerVariant*3, res.Total)
	assert.Greater(t, res.EffectSize, 0.0)
	require.Len(t, res.Advisories, 2)
	assert.Contains(t, res.Advisories[0], "Large sample")
	assert.Contains(t, res.Advisories[1], "Low baseline")

	quiet, err := stats.PracticalSignificanceSampleSize(0.30, 0.30, 0.95, 0.8, 2)
	require.NoError(t, err)
	assert.Empty(t, quiet.Advisories)
}
