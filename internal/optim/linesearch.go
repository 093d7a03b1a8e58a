package optim

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Sufficient decrease and curvature constants of the strong Wolfe conditions.
const (
	wolfeC1 = 1e-4
	wolfeC2 = 0.9
)

// directional evaluates the objective at x0 + t*d.
type directional func(t float64) (float64, []float64, error)

// cubicInterpolate returns the minimizer of the cubic through (x1, f1) and
// (x2, f2) with slopes g1 and g2, clamped to [lo, hi].
func cubicInterpolate(x1, f1, g1, x2, f2, g2, lo, hi float64) float64 {
	d1 := g1 + g2 - 3*(f1-f2)/(x1-x2)
	d2Square := d1*d1 - g1*g2
	if d2Square < 0 {
		return (lo + hi) / 2
	}
	d2 := math.Sqrt(d2Square)
	var minPos float64
	if x1 <= x2 {
		minPos = x2 - (x2-x1)*((g2+d2-d1)/(g2-g1+2*d2))
	} else {
		minPos = x1 - (x1-x2)*((g1+d2-d1)/(g1-g2+2*d2))
	}
	return math.Min(math.Max(minPos, lo), hi)
}

// bracketPoint is one end of a line search bracket.
type bracketPoint struct {
	t, f, gtd float64
	g         []float64
}

// strongWolfe searches along d from the point with loss f and gradient g
// (directional derivative gtd), starting at step t. It evaluates the
// objective at most maxLS+1 times and returns the accepted loss, gradient,
// step and evaluation count.
func strongWolfe(obj directional, t float64, d []float64, f float64, g []float64, gtd, tolChange float64, maxLS int) (float64, []float64, float64, int, error) {
	dNorm := floats.Norm(d, math.Inf(1))

	fNew, gNew, err := obj(t)
	if err != nil {
		return 0, nil, 0, 0, err
	}
	evals := 1
	gtdNew := floats.Dot(gNew, d)

	prev := bracketPoint{t: 0, f: f, g: g, gtd: gtd}
	var bracket []bracketPoint
	done := false
	lsIter := 0

	for {
		cur := bracketPoint{t: t, f: fNew, g: gNew, gtd: gtdNew}
		if fNew > f+wolfeC1*t*gtd || (lsIter > 1 && fNew >= prev.f) {
			bracket = []bracketPoint{prev, cur}
			break
		}
		if math.Abs(gtdNew) <= -wolfeC2*gtd {
			bracket = []bracketPoint{cur}
			done = true
			break
		}
		if gtdNew >= 0 {
			bracket = []bracketPoint{prev, cur}
			break
		}
		if lsIter >= maxLS {
			bracket = []bracketPoint{{t: 0, f: f, g: g, gtd: gtd}, cur}
			break
		}

		// Extrapolate.
		minStep := t + 0.01*(t-prev.t)
		maxStep := t * 10
		next := cubicInterpolate(prev.t, prev.f, prev.gtd, t, fNew, gtdNew, minStep, maxStep)
		prev = cur
		t = next

		fNew, gNew, err = obj(t)
		if err != nil {
			return 0, nil, 0, 0, err
		}
		evals++
		gtdNew = floats.Dot(gNew, d)
		lsIter++
	}

	low, high := 0, 0
	if len(bracket) == 2 {
		low, high = orderBracket(bracket)
	}

	// Zoom.
	insufficientProgress := false
	for !done && lsIter < maxLS {
		if math.Abs(bracket[1].t-bracket[0].t)*dNorm < tolChange {
			break
		}

		lo := math.Min(bracket[0].t, bracket[1].t)
		hi := math.Max(bracket[0].t, bracket[1].t)
		t = cubicInterpolate(bracket[0].t, bracket[0].f, bracket[0].gtd,
			bracket[1].t, bracket[1].f, bracket[1].gtd, lo, hi)

		// Keep t away from the bracket ends unless progress stalls twice.
		eps := 0.1 * (hi - lo)
		if math.Min(hi-t, t-lo) < eps {
			if insufficientProgress || t >= hi || t <= lo {
				if math.Abs(t-hi) < math.Abs(t-lo) {
					t = hi - eps
				} else {
					t = lo + eps
				}
				insufficientProgress = false
			} else {
				insufficientProgress = true
			}
		} else {
			insufficientProgress = false
		}

		fNew, gNew, err = obj(t)
		if err != nil {
			return 0, nil, 0, 0, err
		}
		evals++
		gtdNew = floats.Dot(gNew, d)
		lsIter++
		cur := bracketPoint{t: t, f: fNew, g: gNew, gtd: gtdNew}

		if fNew > f+wolfeC1*t*gtd || fNew >= bracket[low].f {
			bracket[high] = cur
			low, high = orderBracket(bracket)
			continue
		}
		if math.Abs(gtdNew) <= -wolfeC2*gtd {
			done = true
		} else if gtdNew*(bracket[high].t-bracket[low].t) >= 0 {
			bracket[high] = bracket[low]
		}
		bracket[low] = cur
	}

	best := bracket[low]
	return best.f, best.g, best.t, evals, nil
}

// orderBracket returns the indices of the lower and higher loss ends.
func orderBracket(bracket []bracketPoint) (low, high int) {
	if bracket[0].f <= bracket[1].f {
		return 0, 1
	}
	return 1, 0
}
