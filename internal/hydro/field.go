package hydro

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
)

// Field is an ordered collection of pumping wells. Non-empty well names must
// be unique; unnamed wells are always accepted. A Field owns no aquifer
// state, it is pure geometry and rates.
type Field struct {
	wells []Well
}

// NewField builds a field from the given wells, enforcing name uniqueness.
func NewField(wells ...Well) (*Field, error) {
	f := &Field{wells: make([]Well, 0, len(wells))}
	for _, w := range wells {
		if err := f.Add(w); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Add appends a well. A non-empty name that duplicates an existing well's
// name is rejected.
func (f *Field) Add(w Well) error {
	if w.Name != "" {
		for _, existing := range f.wells {
			if existing.Name == w.Name {
				return fmt.Errorf("%w: duplicate well name %q", ErrInvalidParameter, w.Name)
			}
		}
	}
	if w.Radius <= 0 {
		w.Radius = DefaultWellRadius
	}
	f.wells = append(f.wells, w)
	return nil
}

// Remove deletes the first well with the given name and reports whether a
// well was removed.
func (f *Field) Remove(name string) bool {
	for i, w := range f.wells {
		if w.Name == name {
			f.wells = append(f.wells[:i], f.wells[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of wells.
func (f *Field) Len() int { return len(f.wells) }

// Wells returns a copy of the member wells in order.
func (f *Field) Wells() []Well {
	out := make([]Well, len(f.wells))
	copy(out, f.wells)
	return out
}

// TotalRate returns the sum of the member pumping rates.
func (f *Field) TotalRate() float64 {
	return floats.Sum(f.Rates())
}

// Positions returns the well coordinates as an array for vectorized use.
func (f *Field) Positions() [][2]float64 {
	out := make([][2]float64, len(f.wells))
	for i, w := range f.wells {
		out[i] = [2]float64{w.X, w.Y}
	}
	return out
}

// Rates returns the pumping rates in well order.
func (f *Field) Rates() []float64 {
	out := make([]float64, len(f.wells))
	for i, w := range f.wells {
		out[i] = w.Q
	}
	return out
}

// SetRates replaces every member rate in order. Solvers return new rate
// vectors; this is the one sanctioned mutation path.
func (f *Field) SetRates(q []float64) error {
	if len(q) != len(f.wells) {
		return fmt.Errorf("%w: rate vector length %d does not match well count %d",
			ErrInvalidParameter, len(q), len(f.wells))
	}
	for i := range f.wells {
		f.wells[i].Q = q[i]
	}
	return nil
}

// Drawdown returns the superposed drawdown of all member wells at each point.
func (f *Field) Drawdown(p aquifer.Params, pts []Point, t float64, m Method) ([]float64, error) {
	return Superpose(p, f.wells, pts, t, m)
}
