package pumptest

import (
	"context"
	"math"
	"math/rand"
	"testing"

	mrg63k3a "github.com/maseology/goRNG/MRG63k3a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/AQUIFR/internal/hydro"
	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
)

// syntheticTest builds a noise-free observation record from known parameters
// so the inversion target is exact.
func syntheticTest(t *testing.T, p aquifer.Params, r, q float64, n int) ([]float64, []float64) {
	t.Helper()
	times := make([]float64, n)
	obs := make([]float64, n)
	// Log-spaced from 0.01 to 10, the usual span of a test record.
	for i := 0; i < n; i++ {
		times[i] = math.Pow(10, -2+3*float64(i)/float64(n-1))
		s, err := p.Theis(r, times[i], q)
		require.NoError(t, err)
		obs[i] = s
	}
	return times, obs
}

func TestFitRecoversKnownParameters(t *testing.T) {
	truth, err := aquifer.NewParams(500, 2e-4)
	require.NoError(t, err)
	times, obs := syntheticTest(t, truth, 100, 1000, 20)

	rng := rand.New(mrg63k3a.New())
	rng.Seed(42)
	res, err := Fit(context.Background(), Config{
		Distance:  100,
		Rate:      1000,
		Times:     times,
		Drawdowns: obs,
		RNG:       rng,
	})
	require.NoError(t, err)

	require.True(t, res.Converged, res.Message)
	assert.InEpsilon(t, truth.T, res.Params.T, 0.01)
	assert.InEpsilon(t, truth.S, res.Params.S, 0.01)
	assert.Less(t, res.RMSE, 1e-4)
	assert.Greater(t, res.Evaluations, 0)
	assert.NotEmpty(t, res.Message)
}

func TestFitRespectsBounds(t *testing.T) {
	truth, err := aquifer.NewParams(500, 2e-4)
	require.NoError(t, err)
	times, obs := syntheticTest(t, truth, 100, 1000, 20)

	rng := rand.New(mrg63k3a.New())
	rng.Seed(7)
	// Bounds that exclude the truth: the fit must stay inside them.
	res, err := Fit(context.Background(), Config{
		Distance:  100,
		Rate:      1000,
		Times:     times,
		Drawdowns: obs,
		TBounds:   Bounds{Lo: 1000, Hi: 10000},
		SBounds:   Bounds{Lo: 1e-6, Hi: 0.5},
		RNG:       rng,
	})
	require.NoError(t, err)
	require.True(t, res.Converged, res.Message)
	assert.GreaterOrEqual(t, res.Params.T, 1000.0)
	assert.LessOrEqual(t, res.Params.T, 10000.0)
	assert.Greater(t, res.RMSE, 0.0)
}

func TestFitValidation(t *testing.T) {
	ctx := context.Background()
	base := func() Config {
		return Config{
			Distance:  100,
			Rate:      1000,
			Times:     []float64{0.1, 1, 10},
			Drawdowns: []float64{0.1, 0.5, 0.9},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero distance", func(c *Config) { c.Distance = 0 }},
		{"zero rate", func(c *Config) { c.Rate = 0 }},
		{"too few observations", func(c *Config) { c.Times = c.Times[:2]; c.Drawdowns = c.Drawdowns[:2] }},
		{"length mismatch", func(c *Config) { c.Drawdowns = c.Drawdowns[:2] }},
		{"non-positive time", func(c *Config) { c.Times = []float64{0, 1, 10} }},
		{"nan drawdown", func(c *Config) { c.Drawdowns = []float64{0.1, math.NaN(), 0.9} }},
		{"inverted T bounds", func(c *Config) { c.TBounds = Bounds{Lo: 100, Hi: 10} }},
		{"storativity bound at 1", func(c *Config) { c.SBounds = Bounds{Lo: 1e-6, Hi: 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			_, err := Fit(ctx, cfg)
			assert.ErrorIs(t, err, hydro.ErrInvalidParameter)
		})
	}
}

func TestFitCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Fit(ctx, Config{
		Distance:  100,
		Rate:      1000,
		Times:     []float64{0.1, 1, 10},
		Drawdowns: []float64{0.1, 0.5, 0.9},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
