// Package hydro holds the well-field entities and the superposition engine
// that composes the aquifer kernels across many wells and observation points.
package hydro

import (
	"math"

	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
)

// DefaultWellRadius is the physical well radius used as a distance floor when
// none is supplied, avoiding the r→0 singularity of the kernels.
const DefaultWellRadius = 0.1

// Point is an observation location.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Well is a single pumping well. Q is the pumping rate with positive values
// meaning extraction. Radius is the physical well radius; it doubles as the
// distance floor for drawdown evaluation at or near the well itself.
type Well struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Q      float64 `json:"q"`
	Radius float64 `json:"radius,omitempty"`
	Name   string  `json:"name,omitempty"`
}

// NewWell returns a well at (x, y) pumping at rate q with the default radius.
func NewWell(x, y, q float64, name string) Well {
	return Well{X: x, Y: y, Q: q, Radius: DefaultWellRadius, Name: name}
}

// DistanceTo returns the distance from the well to (x, y), floored at the
// well radius so the kernels stay finite at the well itself.
func (w Well) DistanceTo(x, y float64) float64 {
	rw := w.Radius
	if rw <= 0 {
		rw = DefaultWellRadius
	}
	if r := math.Hypot(x-w.X, y-w.Y); r > rw {
		return r
	}
	return rw
}

// DrawdownAt returns the drawdown this well alone causes at (x, y) after
// elapsed time t, using the selected kernel.
func (w Well) DrawdownAt(p aquifer.Params, x, y, t float64, m Method) (float64, error) {
	return m.Drawdown(p, w.DistanceTo(x, y), t, w.Q)
}

// ConstraintPoint is a location where the head must not fall below HMin.
type ConstraintPoint struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	HMin float64 `json:"h_min"`
	Name string  `json:"name,omitempty"`
}

// ConstraintFromMaxDrawdown builds a constraint point from the equivalent
// maximum-drawdown form, given the undisturbed head h0.
func ConstraintFromMaxDrawdown(x, y, h0, sMax float64) ConstraintPoint {
	return ConstraintPoint{X: x, Y: y, HMin: h0 - sMax}
}

// Point returns the constraint's location.
func (c ConstraintPoint) Point() Point {
	return Point{X: c.X, Y: c.Y}
}
