package allocation

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/AQUIFR/internal/hydro"
	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
)

func testParams(t *testing.T) aquifer.Params {
	t.Helper()
	p, err := aquifer.NewParams(500, 2e-4)
	require.NoError(t, err)
	return p
}

// singleWellConfig builds a one-well, one-constraint problem whose optimum is
// known in closed form: the drawdown constraint binds at
// Q* = s_allow / a, with a the per-unit drawdown coefficient at r=50, t=1
// (u = 2.5e-4, comfortably inside the Cooper-Jacob regime).
func singleWellConfig(t *testing.T, method Method) Config {
	return Config{
		Params:      testParams(t),
		Wells:       []hydro.Well{hydro.NewWell(0, 0, 0, "w1")},
		QMax:        []float64{5000},
		Constraints: []hydro.ConstraintPoint{{X: 50, Y: 0, HMin: 98, Name: "obs"}},
		H0:          100,
		Time:        1,
		Method:      method,
	}
}

func TestLinearSingleWellBindingConstraint(t *testing.T) {
	cfg := singleWellConfig(t, MethodLinear)
	res, err := New(nil).Optimize(context.Background(), cfg)
	require.NoError(t, err)

	require.True(t, res.Success, "message: %s", res.Message)
	assert.Equal(t, StatusConverged, res.Status)
	assert.NotEmpty(t, res.Message)

	// Q* = s_allow/a with a = ln(2.25·T·t/(r²S))/(4πT) = ln(2250)/(2000π).
	a := math.Log(2250) / (4 * math.Pi * 500)
	want := 2 / a
	assert.InDelta(t, want, res.Total, 0.5)
	require.Len(t, res.Rates, 1)
	assert.InDelta(t, want, res.Rates[0], 0.5)

	// The binding constraint sits exactly at the minimum head.
	require.Len(t, res.Heads, 1)
	assert.InDelta(t, 98.0, res.Heads[0], 1e-6)
}

func TestNonlinearMatchesLinearInsideCJRegime(t *testing.T) {
	lin, err := New(nil).Optimize(context.Background(), singleWellConfig(t, MethodLinear))
	require.NoError(t, err)
	require.True(t, lin.Success, "linear: %s", lin.Message)

	nl, err := New(nil).Optimize(context.Background(), singleWellConfig(t, MethodNonlinear))
	require.NoError(t, err)
	require.True(t, nl.Success, "nonlinear: %s", nl.Message)

	// With u = 2.5e-4 the two kernels agree to well under 1%.
	assert.InEpsilon(t, lin.Total, nl.Total, 0.01)
	assert.Greater(t, nl.Iterations, 0)
}

func TestOptimizerFeasibilityInvariant(t *testing.T) {
	// Any successful result must satisfy every constraint when drawdown is
	// re-evaluated with the method's exact kernel at the returned rates.
	for _, method := range []Method{MethodLinear, MethodNonlinear} {
		cfg := Config{
			Params: testParams(t),
			Wells: []hydro.Well{
				hydro.NewWell(-200, 0, 0, "a"),
				hydro.NewWell(200, 0, 0, "b"),
				hydro.NewWell(0, 300, 0, "c"),
			},
			QMax: []float64{3000, 3000, 3000},
			Constraints: []hydro.ConstraintPoint{
				{X: 0, Y: 0, HMin: 97},
				{X: 100, Y: 100, HMin: 96.5},
			},
			H0:     100,
			Time:   1,
			Method: method,
		}
		res, err := New(nil).Optimize(context.Background(), cfg)
		require.NoError(t, err)
		require.True(t, res.Success, "method %s: %s", method, res.Message)

		kernel := hydro.MethodCooperJacob
		if method == MethodNonlinear {
			kernel = hydro.MethodTheis
		}
		wells := make([]hydro.Well, len(cfg.Wells))
		copy(wells, cfg.Wells)
		for i := range wells {
			wells[i].Q = res.Rates[i]
		}
		pts := []hydro.Point{{X: 0, Y: 0}, {X: 100, Y: 100}}
		s, err := hydro.Superpose(cfg.Params, wells, pts, cfg.Time, kernel)
		require.NoError(t, err)
		for j, c := range cfg.Constraints {
			assert.GreaterOrEqual(t, cfg.H0-s[j]+1e-3, c.HMin,
				"method %s constraint %d", method, j)
		}
	}
}

func TestTwoWellSymmetricTotal(t *testing.T) {
	// Two symmetric wells, one midpoint constraint: only the total is
	// determined, Q1+Q2 = s_allow/a with a the shared coefficient at r=100.
	cfg := Config{
		Params:      testParams(t),
		Wells:       []hydro.Well{hydro.NewWell(-100, 0, 0, ""), hydro.NewWell(100, 0, 0, "")},
		QMax:        []float64{5000, 5000},
		Constraints: []hydro.ConstraintPoint{{X: 0, Y: 0, HMin: 98}},
		H0:          100,
		Time:        1,
		Method:      MethodLinear,
	}
	res, err := New(nil).Optimize(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	a := math.Log(562.5) / (4 * math.Pi * 500)
	assert.InDelta(t, 2/a, res.Total, 1.0)
}

func TestQMaxBindingWhenConstraintsSlack(t *testing.T) {
	for _, method := range []Method{MethodLinear, MethodNonlinear} {
		cfg := Config{
			Params:      testParams(t),
			Wells:       []hydro.Well{hydro.NewWell(0, 0, 0, ""), hydro.NewWell(500, 0, 0, "")},
			QMax:        []float64{800, 1000},
			Constraints: []hydro.ConstraintPoint{{X: 250, Y: 0, HMin: 0}},
			H0:          100,
			Time:        1,
			Method:      method,
		}
		res, err := New(nil).Optimize(context.Background(), cfg)
		require.NoError(t, err)
		require.True(t, res.Success, "method %s: %s", method, res.Message)
		assert.InEpsilon(t, 1800.0, res.Total, 0.01, "method %s", method)
	}
}

func TestInfeasibleUpfront(t *testing.T) {
	// A minimum head above the undisturbed head conflicts even at Q=0:
	// structured failure, not an error.
	cfg := singleWellConfig(t, MethodLinear)
	cfg.Constraints[0].HMin = 101

	res, err := New(nil).Optimize(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, StatusInfeasible, res.Status)
	assert.Contains(t, res.Message, "infeasible")
	assert.Equal(t, []float64{0}, res.Rates)
}

func TestValidationErrors(t *testing.T) {
	ctx := context.Background()
	o := New(nil)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty wells", func(c *Config) { c.Wells = nil }},
		{"empty constraints", func(c *Config) { c.Constraints = nil }},
		{"qmax mismatch", func(c *Config) { c.QMax = []float64{1, 2} }},
		{"negative qmax", func(c *Config) { c.QMax = []float64{-5} }},
		{"zero time", func(c *Config) { c.Time = 0 }},
		{"bad method", func(c *Config) { c.Method = Method("simplex-annealing") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := singleWellConfig(t, MethodLinear)
			tt.mutate(&cfg)
			_, err := o.Optimize(ctx, cfg)
			assert.ErrorIs(t, err, hydro.ErrInvalidParameter)
		})
	}

	t.Run("invalid aquifer params", func(t *testing.T) {
		cfg := singleWellConfig(t, MethodLinear)
		cfg.Params = aquifer.Params{T: -1, S: 2e-4}
		_, err := o.Optimize(ctx, cfg)
		assert.ErrorIs(t, err, aquifer.ErrInvalidParameter)
	})
}

func TestNonlinearCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(nil).Optimize(ctx, singleWellConfig(t, MethodNonlinear))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, StatusNoConvergence, res.Status)
	assert.Contains(t, res.Message, "cancelled")
}

func TestParseAllocationMethod(t *testing.T) {
	m, err := ParseMethod("linear")
	require.NoError(t, err)
	assert.Equal(t, MethodLinear, m)

	m, err = ParseMethod("nonlinear")
	require.NoError(t, err)
	assert.Equal(t, MethodNonlinear, m)

	_, err = ParseMethod("quadratic")
	assert.ErrorIs(t, err, hydro.ErrInvalidParameter)
}
