package allocation

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// solveNonlinear maximizes total extraction with the exact Theis kernel in
// the constraints, via an augmented-Lagrangian (PHR) outer loop around
// L-BFGS inner solves. Drawdown is linear in Q even under Theis (u does not
// depend on the rate), so the constraint gradients are the constant per-unit
// coefficients in a; that keeps the inner subproblems smooth and cheap while
// still avoiding the Cooper-Jacob approximation error in the coefficients
// themselves.
func (o *Optimizer) solveNonlinear(ctx context.Context, cfg *Config, a *mat.Dense, sAllow []float64, logger *zap.Logger) *Result {
	n := len(cfg.Wells)
	m := len(sAllow)

	// Start from the conventional near-feasible guess QMax/2.
	q := make([]float64, n)
	for i := range q {
		q[i] = cfg.QMax[i] / 2
	}

	lam := make([]float64, m)  // drawdown-constraint multipliers
	muLo := make([]float64, n) // Q ≥ 0 multipliers
	muHi := make([]float64, n) // Q ≤ QMax multipliers

	// Scale the initial penalty so penalty gradients are commensurate with
	// the unit objective gradient; coefficients are O(1e-3) in typical units.
	aMax := mat.Max(a)
	if !(aMax > 0) {
		aMax = 1
	}
	rho := 1 / aMax

	g := make([]float64, m)
	constraintViolations := func(x []float64) {
		for j := 0; j < m; j++ {
			gj := -sAllow[j]
			for i := 0; i < n; i++ {
				gj += a.At(j, i) * x[i]
			}
			g[j] = gj
		}
	}

	// phr is the Powell-Hestenes-Rockafellar term for one inequality g ≤ 0:
	// ((max(0, λ+ρg))² - λ²) / (2ρ).
	phr := func(gv, lambda float64) float64 {
		if t := lambda + rho*gv; t > 0 {
			return (t*t - lambda*lambda) / (2 * rho)
		}
		return -lambda * lambda / (2 * rho)
	}

	objective := func(x []float64) float64 {
		v := 0.0
		for i := 0; i < n; i++ {
			v -= x[i]
			v += phr(-x[i], muLo[i])
			v += phr(x[i]-cfg.QMax[i], muHi[i])
		}
		for j := 0; j < m; j++ {
			gj := -sAllow[j]
			for i := 0; i < n; i++ {
				gj += a.At(j, i) * x[i]
			}
			v += phr(gj, lam[j])
		}
		return v
	}

	gradient := func(grad, x []float64) {
		for i := 0; i < n; i++ {
			grad[i] = -1
			if t := muLo[i] + rho*(-x[i]); t > 0 {
				grad[i] -= t
			}
			if t := muHi[i] + rho*(x[i]-cfg.QMax[i]); t > 0 {
				grad[i] += t
			}
		}
		for j := 0; j < m; j++ {
			gj := -sAllow[j]
			for i := 0; i < n; i++ {
				gj += a.At(j, i) * x[i]
			}
			if t := lam[j] + rho*gj; t > 0 {
				for i := 0; i < n; i++ {
					grad[i] += t * a.At(j, i)
				}
			}
		}
	}

	res := &Result{Method: cfg.Method, Rates: make([]float64, n)}
	totalIter := 0
	vPrev := math.Inf(1)
	status := StatusNoConvergence
	message := fmt.Sprintf("augmented Lagrangian exhausted %d outer iterations without reaching feasibility tolerance %g", cfg.MaxOuter, cfg.Tolerance)

	for outer := 0; outer < cfg.MaxOuter; outer++ {
		if err := ctx.Err(); err != nil {
			status = StatusNoConvergence
			message = fmt.Sprintf("cancelled after %d outer iterations: %v", outer, err)
			break
		}

		problem := optimize.Problem{Func: objective, Grad: gradient}
		settings := &optimize.Settings{
			MajorIterations:   cfg.MaxIterations,
			GradientThreshold: 1e-10,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-12,
				Iterations: 20,
			},
		}
		result, err := optimize.Minimize(problem, q, settings, &optimize.LBFGS{})
		if result != nil {
			copy(q, result.X)
			totalIter += result.Stats.MajorIterations
		} else if err != nil {
			status = StatusSolverError
			message = fmt.Sprintf("inner L-BFGS solve failed: %v", err)
			break
		}

		constraintViolations(q)
		vMax := 0.0
		for j := 0; j < m; j++ {
			if g[j] > vMax {
				vMax = g[j]
			}
		}
		for i := 0; i < n; i++ {
			if v := -q[i]; v > vMax {
				vMax = v
			}
			if v := q[i] - cfg.QMax[i]; v > vMax {
				vMax = v
			}
		}

		// First-order multiplier updates.
		for j := 0; j < m; j++ {
			lam[j] = math.Max(0, lam[j]+rho*g[j])
		}
		for i := 0; i < n; i++ {
			muLo[i] = math.Max(0, muLo[i]+rho*(-q[i]))
			muHi[i] = math.Max(0, muHi[i]+rho*(q[i]-cfg.QMax[i]))
		}

		logger.Debug("augmented Lagrangian outer iteration",
			zap.Int("outer", outer),
			zap.Float64("max_violation", vMax),
			zap.Float64("rho", rho),
		)

		if vMax <= cfg.Tolerance {
			status = StatusConverged
			message = fmt.Sprintf("converged in %d outer iterations (%d inner iterations), max constraint violation %.3g", outer+1, totalIter, vMax)
			break
		}
		// Escalate the penalty when feasibility is not improving fast enough.
		if vMax > 0.25*vPrev {
			rho = math.Min(rho*cfg.PenaltyGrowth, 1e12)
		}
		vPrev = vMax
	}

	// Project onto the box for reporting; any residual excursion is within
	// the feasibility tolerance when converged.
	for i := 0; i < n; i++ {
		res.Rates[i] = math.Min(math.Max(q[i], 0), cfg.QMax[i])
	}
	res.Iterations = totalIter
	res.Status = status
	res.Message = message
	if status == StatusNoConvergence {
		res.Message += "; attached rates are the best-found candidate and are not authoritative"
	}
	return res
}
