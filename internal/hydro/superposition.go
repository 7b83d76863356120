package hydro

import (
	"fmt"
	"sync"

	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
)

// SuperposeInto writes the superposed drawdown of all wells at each point
// into dst. The result is the exact linear sum of the selected single-well
// kernel, justified because the governing diffusion equation is linear in Q
// under the Theis and Cooper-Jacob assumptions. The per-well distance is
// floored at the well radius. The engine does not validate the Cooper-Jacob
// applicability bound; that is the caller's contract (see MaxArgumentU). The
// hot path performs no allocation.
func SuperposeInto(dst []float64, p aquifer.Params, wells []Well, pts []Point, t float64, m Method) error {
	if len(wells) == 0 {
		return fmt.Errorf("%w: superposition requires at least one well", ErrInvalidParameter)
	}
	if len(dst) != len(pts) {
		return fmt.Errorf("%w: dst length %d does not match point count %d",
			ErrInvalidParameter, len(dst), len(pts))
	}
	for i, pt := range pts {
		total := 0.0
		for _, w := range wells {
			s, err := w.DrawdownAt(p, pt.X, pt.Y, t, m)
			if err != nil {
				return err
			}
			total += s
		}
		dst[i] = total
	}
	return nil
}

// Superpose is the allocating convenience form of SuperposeInto.
func Superpose(p aquifer.Params, wells []Well, pts []Point, t float64, m Method) ([]float64, error) {
	dst := make([]float64, len(pts))
	if err := SuperposeInto(dst, p, wells, pts, t, m); err != nil {
		return nil, err
	}
	return dst, nil
}

// SuperposeParallel evaluates the superposition with a fork-join over
// observation points. Output is bit-identical to the serial form since each
// point is independent and workers write disjoint ranges. Falls back to the
// serial path when the batch is too small to be worth splitting.
func SuperposeParallel(p aquifer.Params, wells []Well, pts []Point, t float64, m Method, workers int) ([]float64, error) {
	const minChunk = 16
	if workers < 2 || len(pts) < workers*minChunk {
		return Superpose(p, wells, pts, t, m)
	}

	dst := make([]float64, len(pts))
	chunk := (len(pts) + workers - 1) / workers
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= len(pts) {
			break
		}
		hi := lo + chunk
		if hi > len(pts) {
			hi = len(pts)
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			errs[w] = SuperposeInto(dst[lo:hi], p, wells, pts[lo:hi], t, m)
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// MaxArgumentU returns the worst-case u = r²S/(4Tt) over all (well, point)
// pairs, so callers can check the Cooper-Jacob contract cheaply before
// requesting that method.
func MaxArgumentU(p aquifer.Params, wells []Well, pts []Point, t float64) float64 {
	max := 0.0
	for _, pt := range pts {
		for _, w := range wells {
			if u := p.U(w.DistanceTo(pt.X, pt.Y), t); u > max {
				max = u
			}
		}
	}
	return max
}

// TimeSeries returns the drawdown hydrograph at one point for a series of
// elapsed times. Arrays in, arrays out, for chart-drawing collaborators.
func TimeSeries(p aquifer.Params, wells []Well, pt Point, times []float64, m Method) ([]float64, error) {
	out := make([]float64, len(times))
	single := []Point{pt}
	var dst [1]float64
	for i, t := range times {
		if err := SuperposeInto(dst[:], p, wells, single, t, m); err != nil {
			return nil, err
		}
		out[i] = dst[0]
	}
	return out, nil
}
