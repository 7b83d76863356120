package allocation

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// solveLinear assembles and solves the Cooper-Jacob LP
//
//	max Σ Q_i   s.t.  A·Q ≤ s_allow,  0 ≤ Q ≤ QMax
//
// in the standard equality form simplex expects, with one slack variable per
// drawdown constraint and one per rate bound:
//
//	min -1ᵀQ   s.t.  [A I 0; I 0 I]·[Q; s₁; s₂] = [s_allow; QMax],  all ≥ 0.
func (o *Optimizer) solveLinear(cfg *Config, a *mat.Dense, sAllow []float64) *Result {
	n := len(cfg.Wells)
	m := len(cfg.Constraints)
	nv := n + m + n

	c := make([]float64, nv)
	for i := 0; i < n; i++ {
		c[i] = -1
	}

	aeq := mat.NewDense(m+n, nv, nil)
	b := make([]float64, m+n)
	for j := 0; j < m; j++ {
		for i := 0; i < n; i++ {
			aeq.Set(j, i, a.At(j, i))
		}
		aeq.Set(j, n+j, 1)
		b[j] = sAllow[j]
	}
	for i := 0; i < n; i++ {
		aeq.Set(m+i, i, 1)
		aeq.Set(m+i, n+m+i, 1)
		b[m+i] = cfg.QMax[i]
	}

	res := &Result{Method: cfg.Method, Rates: make([]float64, n)}

	_, x, err := lp.Simplex(c, aeq, b, 0, nil)
	switch {
	case err == nil:
		copy(res.Rates, x[:n])
		res.Status = StatusConverged
		res.Message = fmt.Sprintf("simplex converged: %d wells, %d constraints", n, m)
	case errors.Is(err, lp.ErrInfeasible):
		res.Status = StatusInfeasible
		res.Message = fmt.Sprintf("infeasible: %v", err)
	case errors.Is(err, lp.ErrUnbounded):
		res.Status = StatusSolverError
		res.Message = fmt.Sprintf("unbounded program, check rate bounds: %v", err)
	default:
		res.Status = StatusSolverError
		res.Message = fmt.Sprintf("simplex failed: %v", err)
	}
	return res
}
