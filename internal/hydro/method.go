package hydro

import (
	"fmt"
	"math"

	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
)

// Method selects the single-well drawdown kernel used by superposition.
type Method string

const (
	// MethodTheis uses the exact Theis solution, valid for all u.
	MethodTheis Method = "theis"
	// MethodCooperJacob uses the late-time straight-line approximation,
	// accurate only while u < aquifer.CooperJacobMaxU. The engine does not
	// check the bound; that contract belongs to the caller.
	MethodCooperJacob Method = "cooper_jacob"
)

// ParseMethod converts a string selector into a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodTheis:
		return MethodTheis, nil
	case MethodCooperJacob:
		return MethodCooperJacob, nil
	}
	return "", fmt.Errorf("%w: unknown drawdown method %q", ErrInvalidParameter, s)
}

// Drawdown evaluates the selected single-well kernel.
func (m Method) Drawdown(p aquifer.Params, r, t, Q float64) (float64, error) {
	switch m {
	case MethodTheis:
		return p.Theis(r, t, Q)
	case MethodCooperJacob:
		return p.CooperJacob(r, t, Q)
	}
	return math.NaN(), fmt.Errorf("%w: unknown drawdown method %q", ErrInvalidParameter, string(m))
}
