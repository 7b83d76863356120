// Package pumptest estimates aquifer parameters from a constant-rate pumping
// test: given drawdowns observed over time at a known distance from the
// pumped well, it inverts the time-drawdown curve for transmissivity and
// storativity.
package pumptest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/maseology/objfunc"
	mrg63k3a "github.com/maseology/goRNG/MRG63k3a"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/AQUIFR/internal/hydro"
	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
)

// Bounds is a closed positive interval for one fitted parameter.
type Bounds struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

func (b Bounds) validate(name string) error {
	if !(b.Lo > 0) || !(b.Hi > b.Lo) || math.IsInf(b.Hi, 0) {
		return fmt.Errorf("%w: %s bounds [%v, %v] must satisfy 0 < lo < hi < inf",
			hydro.ErrInvalidParameter, name, b.Lo, b.Hi)
	}
	return nil
}

// Config describes one pumping-test inversion.
type Config struct {
	// Distance from the pumped well to the observation point.
	Distance float64
	// Rate is the constant pumping rate held through the test.
	Rate float64
	// Times are the observation times, each positive.
	Times []float64
	// Drawdowns are the observed drawdowns, one per time.
	Drawdowns []float64
	// TBounds bracket transmissivity. Defaults to [1e-3, 1e5].
	TBounds Bounds
	// SBounds bracket storativity. Defaults to [1e-6, 0.5].
	SBounds Bounds
	// Starts is the number of multi-start restarts. Defaults to 8.
	Starts int
	// RNG seeds the restart points; nil means a time-seeded MRG63k3a stream.
	RNG *rand.Rand
	// Logger overrides the package no-op logger for this run.
	Logger *zap.Logger
}

// FitResult holds the best parameter estimate found.
type FitResult struct {
	Params      aquifer.Params `json:"params"`
	RMSE        float64        `json:"rmse"`
	Converged   bool           `json:"converged"`
	Evaluations int            `json:"evaluations"`
	Message     string         `json:"message"`
}

// Fit inverts the Theis curve for T and S by multi-start Nelder-Mead over
// log10 parameter space. T and S span orders of magnitude, so the search
// runs in logs; candidates outside the bounds are clamped before the kernel
// sees them.
func Fit(ctx context.Context, cfg Config) (*FitResult, error) {
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("pumptest")

	lo := [2]float64{math.Log10(cfg.TBounds.Lo), math.Log10(cfg.SBounds.Lo)}
	hi := [2]float64{math.Log10(cfg.TBounds.Hi), math.Log10(cfg.SBounds.Hi)}

	evals := 0
	sim := make([]float64, len(cfg.Times))
	rmse := func(x []float64) float64 {
		evals++
		tx := math.Min(math.Max(x[0], lo[0]), hi[0])
		sx := math.Min(math.Max(x[1], lo[1]), hi[1])
		p, err := aquifer.NewParams(math.Pow(10, tx), math.Pow(10, sx))
		if err != nil {
			return math.Inf(1)
		}
		for i, t := range cfg.Times {
			s, err := p.Theis(cfg.Distance, t, cfg.Rate)
			if err != nil {
				return math.Inf(1)
			}
			sim[i] = s
		}
		return objfunc.RMSE(cfg.Drawdowns, sim)
	}

	bestX := []float64{0, 0}
	bestF := math.Inf(1)
	solved := false
	for k := 0; k < cfg.Starts; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x0 := []float64{
			lo[0] + cfg.RNG.Float64()*(hi[0]-lo[0]),
			lo[1] + cfg.RNG.Float64()*(hi[1]-lo[1]),
		}
		settings := &optimize.Settings{
			MajorIterations: 500,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Iterations: 50,
			},
		}
		method := &optimize.NelderMead{
			Reflection:  1,
			Expansion:   2,
			Contraction: 0.5,
			Shrink:      0.5,
			SimplexSize: 0.2,
		}
		result, err := optimize.Minimize(optimize.Problem{Func: rmse}, x0, settings, method)
		if result == nil {
			logger.Debug("restart failed", zap.Int("start", k), zap.Error(err))
			continue
		}
		if result.F < bestF {
			bestF = result.F
			copy(bestX, result.X)
			solved = true
		}
	}

	res := &FitResult{RMSE: bestF, Evaluations: evals}
	if !solved || math.IsInf(bestF, 1) {
		res.Message = fmt.Sprintf("no restart converged in %d attempts", cfg.Starts)
		logger.Warn("pumping-test inversion failed", zap.String("message", res.Message))
		return res, nil
	}

	tx := math.Min(math.Max(bestX[0], lo[0]), hi[0])
	sx := math.Min(math.Max(bestX[1], lo[1]), hi[1])
	p, err := aquifer.NewParams(math.Pow(10, tx), math.Pow(10, sx))
	if err != nil {
		return nil, hydro.WrapError(err, "materializing fitted parameters").
			WithComponent("pumptest").WithOperation("Fit")
	}
	res.Params = p
	res.Converged = true
	res.Message = fmt.Sprintf("fit converged: RMSE %.4g over %d observations, %d restarts", bestF, len(cfg.Times), cfg.Starts)

	logger.Info("pumping-test inversion complete",
		zap.Float64("transmissivity", p.T),
		zap.Float64("storativity", p.S),
		zap.Float64("rmse", bestF),
		zap.Int("evaluations", evals),
	)
	return res, nil
}

func applyDefaults(cfg *Config) {
	if cfg.TBounds == (Bounds{}) {
		cfg.TBounds = Bounds{Lo: 1e-3, Hi: 1e5}
	}
	if cfg.SBounds == (Bounds{}) {
		cfg.SBounds = Bounds{Lo: 1e-6, Hi: 0.5}
	}
	if cfg.Starts <= 0 {
		cfg.Starts = 8
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(mrg63k3a.New())
		cfg.RNG.Seed(time.Now().UnixNano())
	}
}

func validate(cfg *Config) error {
	if !(cfg.Distance > 0) || math.IsInf(cfg.Distance, 0) {
		return fmt.Errorf("%w: distance %v must be positive and finite", hydro.ErrInvalidParameter, cfg.Distance)
	}
	if !(cfg.Rate > 0) || math.IsInf(cfg.Rate, 0) {
		return fmt.Errorf("%w: rate %v must be positive and finite", hydro.ErrInvalidParameter, cfg.Rate)
	}
	if len(cfg.Times) < 3 {
		return fmt.Errorf("%w: at least 3 observations required, got %d", hydro.ErrInvalidParameter, len(cfg.Times))
	}
	if len(cfg.Times) != len(cfg.Drawdowns) {
		return fmt.Errorf("%w: %d times but %d drawdowns", hydro.ErrInvalidParameter, len(cfg.Times), len(cfg.Drawdowns))
	}
	for i, t := range cfg.Times {
		if !(t > 0) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: times[%d]=%v must be positive and finite", hydro.ErrInvalidParameter, i, t)
		}
	}
	for i, s := range cfg.Drawdowns {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: drawdowns[%d]=%v must be finite", hydro.ErrInvalidParameter, i, s)
		}
	}
	if err := cfg.TBounds.validate("transmissivity"); err != nil {
		return err
	}
	if err := cfg.SBounds.validate("storativity"); err != nil {
		return err
	}
	if !(cfg.SBounds.Hi < 1) {
		return fmt.Errorf("%w: storativity upper bound %v must be below 1", hydro.ErrInvalidParameter, cfg.SBounds.Hi)
	}
	return nil
}
