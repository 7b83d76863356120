// Package allocation computes pumping-rate allocations that maximize total
// extraction from a well field subject to minimum-head constraints. Two
// interchangeable formulations are provided: a linear program built on the
// Cooper-Jacob linearization and solved by simplex, and a nonlinear program
// using the exact Theis kernel solved by an augmented-Lagrangian method.
package allocation

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/AQUIFR/internal/hydro"
	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
)

// Method selects the optimization formulation.
type Method string

const (
	// MethodLinear linearizes drawdown with Cooper-Jacob and solves a single
	// LP by simplex. Deterministic, no initial guess, but inherits the
	// late-time/near-well approximation error.
	MethodLinear Method = "linear"
	// MethodNonlinear keeps the exact Theis kernel inside the constraints and
	// solves an augmented-Lagrangian sequence of smooth subproblems.
	MethodNonlinear Method = "nonlinear"
)

// ParseMethod converts a string selector into a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodLinear:
		return MethodLinear, nil
	case MethodNonlinear:
		return MethodNonlinear, nil
	}
	return "", fmt.Errorf("%w: unknown allocation method %q", hydro.ErrInvalidParameter, s)
}

// Status classifies an optimization outcome. Infeasibility and
// non-convergence are expected business outcomes, reported as data rather
// than errors.
type Status string

const (
	StatusConverged     Status = "converged"
	StatusInfeasible    Status = "infeasible"
	StatusNoConvergence Status = "no_convergence"
	StatusSolverError   Status = "solver_error"
)

// Config describes one allocation problem.
type Config struct {
	// Params are the aquifer parameters, immutable for the run.
	Params aquifer.Params
	// Wells supply geometry and radii; their Q fields are ignored.
	Wells []hydro.Well
	// QMax bounds each well's rate from above, in well order. Lower bounds
	// are zero: wells cannot inject.
	QMax []float64
	// Constraints are the minimum-head points.
	Constraints []hydro.ConstraintPoint
	// H0 is the undisturbed head.
	H0 float64
	// Time is the elapsed pumping time at which constraints are evaluated.
	Time float64
	// Method selects the formulation; defaults to MethodLinear.
	Method Method
	// MaxIterations bounds each inner solve of the nonlinear path.
	// Defaults to 200.
	MaxIterations int
	// MaxOuter bounds the nonlinear multiplier updates. Defaults to 25.
	MaxOuter int
	// PenaltyGrowth scales the penalty when feasibility stalls. Defaults to 10.
	PenaltyGrowth float64
	// Tolerance is the feasibility tolerance in head units. Defaults to 1e-4.
	Tolerance float64
	// Logger overrides the optimizer's logger for this run.
	Logger *zap.Logger
}

// Result is the immutable outcome of one optimizer invocation. Message is
// always populated, success included. When Status is StatusNoConvergence the
// Rates hold the best-found candidate for diagnosis only; it may violate
// constraints and is not authoritative.
type Result struct {
	Method     Method    `json:"method"`
	Rates      []float64 `json:"rates"`
	Total      float64   `json:"total"`
	Heads      []float64 `json:"heads"`
	Success    bool      `json:"success"`
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	Iterations int       `json:"iterations"`
}

// Optimizer solves allocation problems. It holds no per-problem state and is
// safe for concurrent use.
type Optimizer struct {
	logger *zap.Logger
}

// New returns an Optimizer logging through the given logger; nil means no-op.
func New(logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{logger: logger.Named("allocation")}
}

// Optimize finds the rate vector maximizing total extraction subject to
// 0 ≤ Q_i ≤ QMax_i and h0 - s(p_j) ≥ hmin_j at every constraint point.
// Invalid inputs return an error; infeasibility and non-convergence are
// reported in the Result.
func (o *Optimizer) Optimize(ctx context.Context, cfg Config) (*Result, error) {
	const op = "Optimizer.Optimize"
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	logger := o.logger
	if cfg.Logger != nil {
		logger = cfg.Logger.Named("allocation")
	}

	logger.Debug("optimizing allocation",
		zap.String("method", string(cfg.Method)),
		zap.Int("wells", len(cfg.Wells)),
		zap.Int("constraints", len(cfg.Constraints)),
	)

	// Allowable drawdown per constraint point. A negative value means the
	// minimum head exceeds the undisturbed head: the constraints conflict
	// even at Q = 0.
	sAllow := make([]float64, len(cfg.Constraints))
	for j, c := range cfg.Constraints {
		sAllow[j] = cfg.H0 - c.HMin
		if sAllow[j] < 0 {
			res := &Result{
				Method:  cfg.Method,
				Rates:   make([]float64, len(cfg.Wells)),
				Status:  StatusInfeasible,
				Message: fmt.Sprintf("infeasible: constraint %s requires h_min=%g above the undisturbed head h0=%g", constraintLabel(c, j), c.HMin, cfg.H0),
			}
			return o.finalize(&cfg, res, logger)
		}
	}

	a, maxU, err := coefficients(&cfg)
	if err != nil {
		return nil, hydro.WrapError(err, "assembling constraint coefficients").
			WithComponent("allocation").WithOperation(op)
	}
	if cfg.Method == MethodLinear && maxU > aquifer.CooperJacobMaxU {
		logger.Warn("cooper-jacob linearization requested outside its valid regime",
			zap.Float64("max_u", maxU),
			zap.Float64("bound", aquifer.CooperJacobMaxU),
		)
	}

	var res *Result
	switch cfg.Method {
	case MethodLinear:
		res = o.solveLinear(&cfg, a, sAllow)
	case MethodNonlinear:
		res = o.solveNonlinear(ctx, &cfg, a, sAllow, logger)
	}
	return o.finalize(&cfg, res, logger)
}

func applyDefaults(cfg *Config) {
	if cfg.Method == "" {
		cfg.Method = MethodLinear
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 200
	}
	if cfg.MaxOuter <= 0 {
		cfg.MaxOuter = 25
	}
	if cfg.PenaltyGrowth <= 1 {
		cfg.PenaltyGrowth = 10
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-4
	}
}

func validate(cfg *Config) error {
	if err := cfg.Params.Validate(); err != nil {
		return err
	}
	if _, err := ParseMethod(string(cfg.Method)); err != nil {
		return err
	}
	if len(cfg.Wells) == 0 {
		return fmt.Errorf("%w: allocation requires at least one well", hydro.ErrInvalidParameter)
	}
	if len(cfg.Constraints) == 0 {
		return fmt.Errorf("%w: allocation requires at least one constraint point", hydro.ErrInvalidParameter)
	}
	if len(cfg.QMax) != len(cfg.Wells) {
		return fmt.Errorf("%w: QMax length %d does not match well count %d",
			hydro.ErrInvalidParameter, len(cfg.QMax), len(cfg.Wells))
	}
	for i, q := range cfg.QMax {
		if q < 0 || math.IsNaN(q) || math.IsInf(q, 0) {
			return fmt.Errorf("%w: QMax[%d]=%v must be finite and non-negative",
				hydro.ErrInvalidParameter, i, q)
		}
	}
	if !(cfg.Time > 0) {
		return fmt.Errorf("%w: time %v must be positive", hydro.ErrInvalidParameter, cfg.Time)
	}
	if math.IsNaN(cfg.H0) || math.IsInf(cfg.H0, 0) {
		return fmt.Errorf("%w: h0 %v must be finite", hydro.ErrInvalidParameter, cfg.H0)
	}
	return nil
}

// coefficients builds A[j][i], the per-unit-rate drawdown contribution of
// well i at constraint point j under the method's kernel (both kernels are
// linear in Q, so the unit-rate evaluation is the coefficient). It also
// reports the worst-case u across all (well, point) pairs.
func coefficients(cfg *Config) (*mat.Dense, float64, error) {
	kernel := hydro.MethodCooperJacob
	if cfg.Method == MethodNonlinear {
		kernel = hydro.MethodTheis
	}

	n := len(cfg.Wells)
	m := len(cfg.Constraints)
	a := mat.NewDense(m, n, nil)
	maxU := 0.0
	for j, c := range cfg.Constraints {
		for i, w := range cfg.Wells {
			r := w.DistanceTo(c.X, c.Y)
			if u := cfg.Params.U(r, cfg.Time); u > maxU {
				maxU = u
			}
			s, err := kernel.Drawdown(cfg.Params, r, cfg.Time, 1)
			if err != nil {
				return nil, 0, err
			}
			a.Set(j, i, s)
		}
	}
	return a, maxU, nil
}

// finalize recomputes per-constraint heads with the kernel the method
// assumed, restates feasibility against the tolerance, and fills the totals.
func (o *Optimizer) finalize(cfg *Config, res *Result, logger *zap.Logger) (*Result, error) {
	kernel := hydro.MethodCooperJacob
	if cfg.Method == MethodNonlinear {
		kernel = hydro.MethodTheis
	}

	wells := make([]hydro.Well, len(cfg.Wells))
	copy(wells, cfg.Wells)
	for i := range wells {
		wells[i].Q = res.Rates[i]
	}
	pts := make([]hydro.Point, len(cfg.Constraints))
	for j, c := range cfg.Constraints {
		pts[j] = c.Point()
	}
	s, err := hydro.Superpose(cfg.Params, wells, pts, cfg.Time, kernel)
	if err != nil {
		return nil, hydro.WrapError(err, "recomputing constraint heads").
			WithComponent("allocation").WithOperation("Optimizer.finalize")
	}

	res.Heads = make([]float64, len(s))
	for j := range s {
		res.Heads[j] = cfg.H0 - s[j]
	}
	res.Total = floats.Sum(res.Rates)

	if res.Status == StatusConverged {
		for j, c := range cfg.Constraints {
			if res.Heads[j] < c.HMin-cfg.Tolerance {
				res.Status = StatusSolverError
				res.Message = fmt.Sprintf("solver reported convergence but constraint %s is violated: h=%g < h_min=%g", constraintLabel(c, j), res.Heads[j], c.HMin)
				break
			}
		}
	}
	res.Success = res.Status == StatusConverged

	if res.Success {
		logger.Info("allocation converged",
			zap.String("method", string(cfg.Method)),
			zap.Float64("total", res.Total),
			zap.Int("iterations", res.Iterations),
		)
	} else {
		logger.Warn("allocation did not converge",
			zap.String("method", string(cfg.Method)),
			zap.String("status", string(res.Status)),
			zap.String("message", res.Message),
		)
	}
	return res, nil
}

func constraintLabel(c hydro.ConstraintPoint, j int) string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("#%d", j)
}
