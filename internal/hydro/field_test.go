package hydro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldAddRemove(t *testing.T) {
	f, err := NewField(NewWell(0, 0, 1000, "north"), NewWell(500, 0, 800, "south"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	assert.InDelta(t, 1800.0, f.TotalRate(), 1e-12)

	err = f.Add(NewWell(10, 10, 100, "north"))
	assert.ErrorIs(t, err, ErrInvalidParameter, "duplicate non-empty name must be rejected")

	// Unnamed wells never collide.
	require.NoError(t, f.Add(NewWell(10, 10, 100, "")))
	require.NoError(t, f.Add(NewWell(20, 20, 100, "")))
	assert.Equal(t, 4, f.Len())

	assert.True(t, f.Remove("south"))
	assert.False(t, f.Remove("south"))
	assert.Equal(t, 3, f.Len())
}

func TestFieldAccessors(t *testing.T) {
	f, err := NewField(NewWell(0, 0, 1000, "a"), NewWell(500, 100, 800, "b"))
	require.NoError(t, err)

	assert.Equal(t, [][2]float64{{0, 0}, {500, 100}}, f.Positions())
	assert.Equal(t, []float64{1000, 800}, f.Rates())

	// Wells() is a copy; mutating it must not touch the field.
	ws := f.Wells()
	ws[0].Q = 0
	assert.Equal(t, []float64{1000, 800}, f.Rates())
}

func TestFieldSetRates(t *testing.T) {
	f, err := NewField(NewWell(0, 0, 1000, ""), NewWell(500, 0, 800, ""))
	require.NoError(t, err)

	require.NoError(t, f.SetRates([]float64{100, 200}))
	assert.InDelta(t, 300.0, f.TotalRate(), 1e-12)

	err = f.SetRates([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFieldZeroRadiusDefaulted(t *testing.T) {
	f, err := NewField(Well{X: 0, Y: 0, Q: 100})
	require.NoError(t, err)
	assert.Equal(t, DefaultWellRadius, f.Wells()[0].Radius)
}

func TestFieldDrawdownMatchesSuperpose(t *testing.T) {
	p := testParams(t)
	wells := []Well{NewWell(0, 0, 1000, ""), NewWell(500, 0, 800, "")}
	f, err := NewField(wells...)
	require.NoError(t, err)

	pts := []Point{{250, 0}}
	viaField, err := f.Drawdown(p, pts, 10, MethodTheis)
	require.NoError(t, err)
	direct, err := Superpose(p, wells, pts, 10, MethodTheis)
	require.NoError(t, err)
	assert.Equal(t, direct, viaField)
}
