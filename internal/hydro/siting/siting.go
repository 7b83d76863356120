// Package siting searches for well placements inside a rectangular region
// that minimize drawdown-constraint violation while meeting a total demand.
// The objective is non-convex in well coordinates, so the search is
// stochastic: Latin-hypercube seeded random sampling, shuffled complex
// evolution, or a Gaussian-process surrogate over the unit cube.
package siting

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maseology/glbopt"
	"github.com/maseology/mmaths"
	"github.com/maseology/montecarlo/smpln"
	mrg63k3a "github.com/maseology/goRNG/MRG63k3a"
	"go.uber.org/zap"

	"github.com/copyleftdev/AQUIFR/internal/hydro"
	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
)

// Method selects the search strategy.
type Method string

const (
	// MethodUniform draws a Latin-hypercube batch followed by uniform random
	// candidates and keeps the best. Embarrassingly parallel.
	MethodUniform Method = "uniform"
	// MethodSCE runs shuffled complex evolution over the unit hypercube.
	MethodSCE Method = "sce"
	// MethodBayes fits a Gaussian-process surrogate to past evaluations and
	// picks candidates by expected improvement. Suited to tight budgets.
	MethodBayes Method = "bayes"
)

// ParseMethod converts a string selector into a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodUniform:
		return MethodUniform, nil
	case MethodSCE:
		return MethodSCE, nil
	case MethodBayes:
		return MethodBayes, nil
	}
	return "", fmt.Errorf("%w: unknown siting method %q", hydro.ErrInvalidParameter, s)
}

// Region is the axis-aligned rectangle candidate wells may occupy.
type Region struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`
}

func (r Region) validate() error {
	for _, v := range []float64{r.XMin, r.XMax, r.YMin, r.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: region bounds must be finite", hydro.ErrInvalidParameter)
		}
	}
	if !(r.XMax > r.XMin) || !(r.YMax > r.YMin) {
		return fmt.Errorf("%w: region must have positive extent", hydro.ErrInvalidParameter)
	}
	return nil
}

// Config describes one siting problem. Demand is split evenly across the
// wells; rate allocation at fixed positions is the allocation package's job.
type Config struct {
	// NWells is the number of wells to place.
	NWells int
	// Region bounds the candidate positions.
	Region Region
	// TotalDemand is the combined extraction rate the field must supply.
	TotalDemand float64
	// Params are the aquifer parameters.
	Params aquifer.Params
	// H0 is the undisturbed head.
	H0 float64
	// Constraints are the minimum-head points; they need not lie in Region.
	Constraints []hydro.ConstraintPoint
	// Time is the elapsed pumping time at which constraints are evaluated.
	Time float64
	// MaxIter is the evaluation budget. Defaults to 1000.
	MaxIter int
	// Epsilon is the violation below which a layout counts as feasible.
	// Defaults to 1e-6.
	Epsilon float64
	// Method selects the strategy; defaults to MethodUniform.
	Method Method
	// RNG drives the search; pass a seeded source for reproducibility.
	// Nil means a time-seeded MRG63k3a stream.
	RNG *rand.Rand
	// Workers bounds evaluation parallelism for MethodUniform and sets the
	// complex count for MethodSCE. Zero means GOMAXPROCS.
	Workers int
	// Logger overrides the searcher's logger for this run.
	Logger *zap.Logger
}

// Result is the outcome of one search. Positions are always the best layout
// seen; Feasible reports whether its violation is within Epsilon.
type Result struct {
	Positions   [][2]float64 `json:"positions"`
	PerWellRate float64      `json:"per_well_rate"`
	Violation   float64      `json:"violation"`
	Feasible    bool         `json:"feasible"`
	Evaluations int          `json:"evaluations"`
	Message     string       `json:"message"`
}

// Searcher runs siting searches. It holds no per-problem state and is safe
// for concurrent use.
type Searcher struct {
	logger *zap.Logger
}

// New returns a Searcher logging through the given logger; nil means no-op.
func New(logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{logger: logger.Named("siting")}
}

// problem is the immutable evaluation context shared by all strategies.
// Candidate layouts live in the unit hypercube [0,1]^2n; coordinate pairs
// are stretched to the region on evaluation.
type problem struct {
	cfg    *Config
	q      float64 // per-well rate, TotalDemand/NWells
	sAllow []float64
}

// violation sums Σ max(0, hmin - h) over constraint points for a unit-cube
// candidate, in head units; zero means every constraint holds. Drawdown uses
// the Cooper-Jacob kernel: the search evaluates thousands of layouts, so it
// trades kernel precision for speed. The function allocates nothing and reads
// only immutable state, so concurrent calls are safe.
func (pr *problem) violation(u []float64) float64 {
	p := pr.cfg.Params
	total := 0.0
	for j, c := range pr.cfg.Constraints {
		s := 0.0
		for i := 0; i < pr.cfg.NWells; i++ {
			x := mmaths.LinearTransform(pr.cfg.Region.XMin, pr.cfg.Region.XMax, u[2*i])
			y := mmaths.LinearTransform(pr.cfg.Region.YMin, pr.cfg.Region.YMax, u[2*i+1])
			r := math.Hypot(c.X-x, c.Y-y)
			if r < hydro.DefaultWellRadius {
				r = hydro.DefaultWellRadius
			}
			si, err := p.CooperJacob(r, pr.cfg.Time, pr.q)
			if err != nil {
				return math.Inf(1)
			}
			s += si
		}
		if v := s - pr.sAllow[j]; v > 0 {
			total += v
		}
	}
	return total
}

// positions stretches a unit-cube candidate to region coordinates.
func (pr *problem) positions(u []float64) [][2]float64 {
	out := make([][2]float64, pr.cfg.NWells)
	for i := 0; i < pr.cfg.NWells; i++ {
		out[i][0] = mmaths.LinearTransform(pr.cfg.Region.XMin, pr.cfg.Region.XMax, u[2*i])
		out[i][1] = mmaths.LinearTransform(pr.cfg.Region.YMin, pr.cfg.Region.YMax, u[2*i+1])
	}
	return out
}

// Search finds the lowest-violation layout it can within the evaluation
// budget. Invalid inputs return an error; an infeasible best layout is
// reported in the Result, not as an error.
func (s *Searcher) Search(ctx context.Context, cfg Config) (*Result, error) {
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	logger := s.logger
	if cfg.Logger != nil {
		logger = cfg.Logger.Named("siting")
	}

	pr := &problem{
		cfg:    &cfg,
		q:      cfg.TotalDemand / float64(cfg.NWells),
		sAllow: make([]float64, len(cfg.Constraints)),
	}
	for j, c := range cfg.Constraints {
		pr.sAllow[j] = cfg.H0 - c.HMin
	}

	logger.Debug("starting siting search",
		zap.String("method", string(cfg.Method)),
		zap.Int("wells", cfg.NWells),
		zap.Int("budget", cfg.MaxIter),
	)

	var (
		best *Result
		err  error
	)
	switch cfg.Method {
	case MethodUniform:
		best, err = s.searchUniform(ctx, pr)
	case MethodSCE:
		best, err = s.searchSCE(ctx, pr)
	case MethodBayes:
		best, err = s.searchBayes(ctx, pr)
	}
	if err != nil {
		return nil, err
	}

	best.PerWellRate = pr.q
	best.Feasible = best.Violation <= cfg.Epsilon
	if best.Feasible {
		logger.Info("siting search found a feasible layout",
			zap.Float64("violation", best.Violation),
			zap.Int("evaluations", best.Evaluations),
		)
	} else {
		logger.Warn("siting search exhausted its budget without a feasible layout",
			zap.Float64("violation", best.Violation),
			zap.Int("evaluations", best.Evaluations),
		)
	}
	return best, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Method == "" {
		cfg.Method = MethodUniform
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 1000
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-6
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(mrg63k3a.New())
		cfg.RNG.Seed(time.Now().UnixNano())
	}
}

func validate(cfg *Config) error {
	if err := cfg.Params.Validate(); err != nil {
		return err
	}
	if _, err := ParseMethod(string(cfg.Method)); err != nil {
		return err
	}
	if cfg.NWells < 1 {
		return fmt.Errorf("%w: NWells %d must be at least 1", hydro.ErrInvalidParameter, cfg.NWells)
	}
	if err := cfg.Region.validate(); err != nil {
		return err
	}
	if cfg.TotalDemand < 0 || math.IsNaN(cfg.TotalDemand) || math.IsInf(cfg.TotalDemand, 0) {
		return fmt.Errorf("%w: total demand %v must be finite and non-negative", hydro.ErrInvalidParameter, cfg.TotalDemand)
	}
	if len(cfg.Constraints) == 0 {
		return fmt.Errorf("%w: siting requires at least one constraint point", hydro.ErrInvalidParameter)
	}
	if !(cfg.Time > 0) {
		return fmt.Errorf("%w: time %v must be positive", hydro.ErrInvalidParameter, cfg.Time)
	}
	if math.IsNaN(cfg.H0) || math.IsInf(cfg.H0, 0) {
		return fmt.Errorf("%w: h0 %v must be finite", hydro.ErrInvalidParameter, cfg.H0)
	}
	return nil
}

// searchUniform evaluates a Latin-hypercube batch covering a quarter of the
// budget, then uniform random candidates for the remainder. Candidates are
// drawn up front from the run's RNG so results are reproducible regardless
// of worker count.
func (s *Searcher) searchUniform(ctx context.Context, pr *problem) (*Result, error) {
	cfg := pr.cfg
	ndim := 2 * cfg.NWells

	cands := make([][]float64, 0, cfg.MaxIter)
	nLHC := cfg.MaxIter / 4
	if nLHC < 1 {
		nLHC = 1
	}
	if nLHC > cfg.MaxIter {
		nLHC = cfg.MaxIter
	}
	sp := smpln.NewLHC(cfg.RNG, nLHC, ndim, false)
	for k := 0; k < nLHC; k++ {
		u := make([]float64, ndim)
		for j := 0; j < ndim; j++ {
			u[j] = sp.U[j][k]
		}
		cands = append(cands, u)
	}
	for len(cands) < cfg.MaxIter {
		u := make([]float64, ndim)
		for j := range u {
			u[j] = cfg.RNG.Float64()
		}
		cands = append(cands, u)
	}

	vals := make([]float64, len(cands))
	workers := cfg.Workers
	if workers > len(cands) {
		workers = len(cands)
	}
	if workers < 2 {
		for k, u := range cands {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			vals[k] = pr.violation(u)
		}
	} else {
		var wg sync.WaitGroup
		chunk := (len(cands) + workers - 1) / workers
		for w := 0; w < workers; w++ {
			lo := w * chunk
			hi := lo + chunk
			if hi > len(cands) {
				hi = len(cands)
			}
			if lo >= hi {
				break
			}
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				for k := lo; k < hi; k++ {
					if ctx.Err() != nil {
						vals[k] = math.Inf(1)
						continue
					}
					vals[k] = pr.violation(cands[k])
				}
			}(lo, hi)
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	bestK := 0
	for k := 1; k < len(vals); k++ {
		if vals[k] < vals[bestK] {
			bestK = k
		}
	}
	return &Result{
		Positions:   pr.positions(cands[bestK]),
		Violation:   vals[bestK],
		Evaluations: len(cands),
		Message:     fmt.Sprintf("uniform search: %d Latin-hypercube + %d random candidates", nLHC, len(cands)-nLHC),
	}, nil
}

// searchSCE wraps shuffled complex evolution. SCE controls its own
// termination; the configured budget is advisory and the true count is
// reported back.
func (s *Searcher) searchSCE(ctx context.Context, pr *problem) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := pr.cfg
	ndim := 2 * cfg.NWells

	var evals int64
	gen := func(u []float64) float64 {
		atomic.AddInt64(&evals, 1)
		return pr.violation(u)
	}

	uFinal, vFinal := glbopt.SCE(cfg.Workers, ndim, cfg.RNG, gen, true)
	return &Result{
		Positions:   pr.positions(uFinal),
		Violation:   vFinal,
		Evaluations: int(atomic.LoadInt64(&evals)),
		Message:     fmt.Sprintf("shuffled complex evolution: %d complexes over %d dimensions", cfg.Workers, ndim),
	}, nil
}
