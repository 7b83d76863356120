// Package aquifer provides the closed-form drawdown kernels for a confined,
// homogeneous, isotropic aquifer of infinite areal extent (the standard Theis
// assumptions). All functions are pure; units are whatever consistent system
// the caller chooses (e.g. metres and days).
package aquifer

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for the two failure classes of the kernel layer.
// Callers discriminate with errors.Is.
var (
	// ErrInvalidParameter indicates a non-physical aquifer parameter.
	ErrInvalidParameter = errors.New("aquifer: invalid parameter")

	// ErrDomain indicates a kernel argument outside the function's domain.
	ErrDomain = errors.New("aquifer: argument outside domain")
)

// CooperJacobMaxU is the largest value of u = r²S/(4Tt) for which the
// Cooper-Jacob approximation tracks the Theis solution to within about 2%.
// The kernels do not enforce the bound; it is a contract the caller must
// respect when choosing the method.
const CooperJacobMaxU = 0.01

const eulerGamma = 0.57721566490153286060651209008240243

// Params holds the transmissivity and storativity of a confined aquifer.
// The zero value is not usable; construct with NewParams.
type Params struct {
	T float64 // transmissivity, length²/time
	S float64 // storativity, dimensionless
}

// NewParams validates and returns aquifer parameters. T must be positive and
// finite, S must lie in (0,1). Out-of-range values are rejected, never clamped.
func NewParams(T, S float64) (Params, error) {
	p := Params{T: T, S: S}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate reports whether the parameters are physically admissible.
func (p Params) Validate() error {
	if !(p.T > 0) || math.IsInf(p.T, 1) {
		return fmt.Errorf("%w: transmissivity T=%v must be positive and finite", ErrInvalidParameter, p.T)
	}
	if !(p.S > 0) || p.S >= 1 {
		return fmt.Errorf("%w: storativity S=%v must lie in (0,1)", ErrInvalidParameter, p.S)
	}
	return nil
}

// U returns the dimensionless Theis argument u = r²S/(4Tt).
func (p Params) U(r, t float64) float64 {
	return r * r * p.S / (4 * p.T * t)
}

// WellFunction evaluates the Theis well function W(u) = E1(u), the
// exponential integral. For u ≤ 1 it sums the alternating series
//
//	W(u) = -γ - ln u + Σ (-1)^(n+1) uⁿ/(n·n!)
//
// to machine precision; for u > 1 it uses the Abramowitz & Stegun 5.1.56
// rational approximation of u·eᵘ·E1(u) (absolute error < 2e-8). For u ≳ 745
// the e^-u factor underflows and zero is the correctly rounded result.
// Returns NaN and ErrDomain for u ≤ 0 or NaN.
func WellFunction(u float64) (float64, error) {
	if math.IsNaN(u) || u <= 0 {
		return math.NaN(), fmt.Errorf("%w: W(u) requires u > 0, got %v", ErrDomain, u)
	}
	if u <= 1 {
		sum := -eulerGamma - math.Log(u)
		pow := 1.0 // uⁿ/n!
		sign := 1.0
		for n := 1; n <= 60; n++ {
			pow *= u / float64(n)
			term := pow / float64(n)
			sum += sign * term
			if term < 1e-17*math.Abs(sum) {
				break
			}
			sign = -sign
		}
		return sum, nil
	}
	num := (((u+8.5733287401)*u+18.0590169730)*u+8.6347608925)*u + 0.2677737343
	den := (((u+9.5733223454)*u+25.6329561486)*u+21.0996530827)*u + 3.9584969228
	return math.Exp(-u) / u * num / den, nil
}

// Theis returns the transient drawdown s = Q/(4πT)·W(u) at radial distance r
// and elapsed time t for a well pumping at rate Q (positive = extraction).
// The kernel rejects r ≤ 0 and t ≤ 0 with ErrDomain; flooring the distance at
// the well radius is the caller's job.
func (p Params) Theis(r, t, Q float64) (float64, error) {
	if err := p.Validate(); err != nil {
		return math.NaN(), err
	}
	if !(r > 0) {
		return math.NaN(), fmt.Errorf("%w: Theis requires r > 0, got %v", ErrDomain, r)
	}
	if !(t > 0) {
		return math.NaN(), fmt.Errorf("%w: Theis requires t > 0, got %v", ErrDomain, t)
	}
	w, err := WellFunction(p.U(r, t))
	if err != nil {
		return math.NaN(), err
	}
	return Q / (4 * math.Pi * p.T) * w, nil
}

// CooperJacob returns the late-time straight-line approximation of Theis,
//
//	s = Q/(4πT)·ln(2.25·T·t/(r²·S))
//
// accurate only while u = r²S/(4Tt) < CooperJacobMaxU. The bound is not
// checked here; callers that cannot guarantee it should use Theis.
func (p Params) CooperJacob(r, t, Q float64) (float64, error) {
	if err := p.Validate(); err != nil {
		return math.NaN(), err
	}
	if !(r > 0) {
		return math.NaN(), fmt.Errorf("%w: CooperJacob requires r > 0, got %v", ErrDomain, r)
	}
	if !(t > 0) {
		return math.NaN(), fmt.Errorf("%w: CooperJacob requires t > 0, got %v", ErrDomain, t)
	}
	return Q / (4 * math.Pi * p.T) * math.Log(2.25*p.T*t/(r*r*p.S)), nil
}

// Thiem returns the steady-state radial drawdown s = Q/(2πT)·ln(R/r) for a
// caller-supplied influence radius R. r > R yields the negative analytic
// value; no clamp is applied.
func (p Params) Thiem(r, R, Q float64) (float64, error) {
	if err := p.Validate(); err != nil {
		return math.NaN(), err
	}
	if !(r > 0) {
		return math.NaN(), fmt.Errorf("%w: Thiem requires r > 0, got %v", ErrDomain, r)
	}
	if !(R > 0) {
		return math.NaN(), fmt.Errorf("%w: Thiem requires influence radius R > 0, got %v", ErrDomain, R)
	}
	return Q / (2 * math.Pi * p.T) * math.Log(R/r), nil
}

// ThiemHead returns the steady-state head h0 - s at distance r.
func (p Params) ThiemHead(r, R, Q, h0 float64) (float64, error) {
	s, err := p.Thiem(r, R, Q)
	if err != nil {
		return math.NaN(), err
	}
	return h0 - s, nil
}

// RadiusOfInfluence returns the Cooper-Jacob zero-drawdown radius
// √(2.25·T·t/S), a common choice for Thiem's influence radius R.
func (p Params) RadiusOfInfluence(t float64) (float64, error) {
	if err := p.Validate(); err != nil {
		return math.NaN(), err
	}
	if !(t > 0) {
		return math.NaN(), fmt.Errorf("%w: RadiusOfInfluence requires t > 0, got %v", ErrDomain, t)
	}
	return math.Sqrt(2.25 * p.T * t / p.S), nil
}
