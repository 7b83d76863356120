package siting

import (
	"context"
	"fmt"
	"math"

	"github.com/maseology/montecarlo/smpln"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// surrogate is a small fixed-hyperparameter Gaussian process over the unit
// hypercube, used only to rank candidates between true violation
// evaluations. Lengthscale and signal variance are held constant; with the
// tight budgets bayes targets there is too little data to fit them.
type surrogate struct {
	x     [][]float64
	chol  mat.Cholesky
	alpha *mat.VecDense
	mean  float64
	std   float64
	ls    float64
	sv    float64
}

const (
	surrogateLengthscale = 0.2
	surrogateSignalVar   = 1.0
	surrogateNoise       = 1e-8
)

func matern52(a, b []float64, ls float64) float64 {
	d2 := 0.0
	for i := range a {
		d := a[i] - b[i]
		d2 += d * d
	}
	t := math.Sqrt(5*d2) / ls
	return surrogateSignalVar * (1 + t + t*t/3) * math.Exp(-t)
}

// fitSurrogate factorizes the kernel matrix, escalating jitter when the
// Cholesky fails on near-duplicate inputs.
func fitSurrogate(x [][]float64, y []float64) (*surrogate, error) {
	n := len(x)
	mean, std := 0.0, 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)
	for _, v := range y {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(n))
	if std < 1e-12 {
		std = 1e-12
	}

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.SetSym(i, j, matern52(x[i], x[j], surrogateLengthscale))
		}
	}

	sg := &surrogate{x: x, mean: mean, std: std, ls: surrogateLengthscale, sv: surrogateSignalVar}
	jitter := surrogateNoise
	for attempt := 0; ; attempt++ {
		kj := mat.NewSymDense(n, nil)
		kj.CopySym(k)
		for i := 0; i < n; i++ {
			kj.SetSym(i, i, k.At(i, i)+jitter)
		}
		if sg.chol.Factorize(kj) {
			break
		}
		if attempt >= 5 {
			return nil, fmt.Errorf("kernel matrix not positive definite after %d jitter escalations", attempt+1)
		}
		jitter *= 100
	}

	yn := mat.NewVecDense(n, nil)
	for i, v := range y {
		yn.SetVec(i, (v-mean)/std)
	}
	sg.alpha = mat.NewVecDense(n, nil)
	if err := sg.chol.SolveVecTo(sg.alpha, yn); err != nil {
		return nil, err
	}
	return sg, nil
}

// predict returns the posterior mean and standard deviation at x, in the
// original violation units.
func (sg *surrogate) predict(x []float64) (mu, sigma float64) {
	n := len(sg.x)
	ks := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		ks.SetVec(i, matern52(x, sg.x[i], sg.ls))
	}
	mu = mat.Dot(ks, sg.alpha)

	v := mat.NewVecDense(n, nil)
	if err := sg.chol.SolveVecTo(v, ks); err != nil {
		return sg.mean + mu*sg.std, sg.std
	}
	variance := sg.sv - mat.Dot(ks, v)
	if variance < 0 {
		variance = 0
	}
	return sg.mean + mu*sg.std, math.Sqrt(variance) * sg.std
}

// expectedImprovement scores a candidate for minimization with the usual
// xi-shifted EI.
func expectedImprovement(mu, sigma, best float64) float64 {
	const xi = 0.01
	if sigma < 1e-12 {
		return 0
	}
	imp := best - mu - xi
	z := imp / sigma
	return imp*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}

// searchBayes spends the budget one evaluation at a time: a Latin-hypercube
// start, then candidates chosen by expected improvement under the surrogate.
// A failed surrogate fit falls back to a random draw for that step.
func (s *Searcher) searchBayes(ctx context.Context, pr *problem) (*Result, error) {
	cfg := pr.cfg
	ndim := 2 * cfg.NWells

	nInit := 2*ndim + 2
	if nInit < 8 {
		nInit = 8
	}
	if nInit > cfg.MaxIter {
		nInit = cfg.MaxIter
	}

	xs := make([][]float64, 0, cfg.MaxIter)
	ys := make([]float64, 0, cfg.MaxIter)
	sp := smpln.NewLHC(cfg.RNG, nInit, ndim, false)
	for k := 0; k < nInit; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u := make([]float64, ndim)
		for j := 0; j < ndim; j++ {
			u[j] = sp.U[j][k]
		}
		xs = append(xs, u)
		ys = append(ys, pr.violation(u))
	}

	bestK := 0
	for k := 1; k < len(ys); k++ {
		if ys[k] < ys[bestK] {
			bestK = k
		}
	}

	nCand := 128 + 32*ndim
	for len(xs) < cfg.MaxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []float64
		if sg, err := fitSurrogate(xs, ys); err == nil {
			bestEI := math.Inf(-1)
			for c := 0; c < nCand; c++ {
				u := make([]float64, ndim)
				for j := range u {
					u[j] = cfg.RNG.Float64()
				}
				mu, sigma := sg.predict(u)
				if ei := expectedImprovement(mu, sigma, ys[bestK]); ei > bestEI {
					bestEI = ei
					next = u
				}
			}
		} else {
			next = make([]float64, ndim)
			for j := range next {
				next[j] = cfg.RNG.Float64()
			}
		}

		xs = append(xs, next)
		ys = append(ys, pr.violation(next))
		if ys[len(ys)-1] < ys[bestK] {
			bestK = len(ys) - 1
		}
	}

	return &Result{
		Positions:   pr.positions(xs[bestK]),
		Violation:   ys[bestK],
		Evaluations: len(xs),
		Message:     fmt.Sprintf("surrogate search: %d initial + %d guided evaluations", nInit, len(xs)-nInit),
	}, nil
}
