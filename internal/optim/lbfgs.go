package optim

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// LineSearch selects how L-BFGS picks its step length.
type LineSearch int

// Line search strategies.
const (
	// FixedStep takes a step of length LR along the search direction.
	FixedStep LineSearch = iota
	// StrongWolfe brackets and zooms with cubic interpolation until the
	// strong Wolfe conditions hold.
	StrongWolfe
)

// String returns the configuration name of the strategy.
func (ls LineSearch) String() string {
	if ls == StrongWolfe {
		return "strong_wolfe"
	}
	return "none"
}

// ParseLineSearch parses "", "none" or "strong_wolfe".
func ParseLineSearch(s string) (LineSearch, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return FixedStep, nil
	case "strong_wolfe", "strong-wolfe":
		return StrongWolfe, nil
	default:
		return FixedStep, fmt.Errorf("optim: unknown line search %q", s)
	}
}

// LBFGSConfig holds configuration for the L-BFGS optimizer.
type LBFGSConfig struct {
	LR              float64    // step length (default: 1)
	MaxIter         int        // iterations per Step (default: 20)
	MaxEval         int        // closure evaluations per Step (default: MaxIter*5/4)
	ToleranceGrad   float64    // first-order optimality tolerance (default: 1e-7)
	ToleranceChange float64    // loss and step tolerance (default: 1e-9)
	HistorySize     int        // curvature pairs kept (default: 100)
	LineSearch      LineSearch // default: FixedStep
}

// LBFGS implements the limited-memory BFGS quasi-Newton method with the
// semantics of PyTorch's torch.optim.LBFGS: state (search direction,
// curvature history) carries over between calls to Step, each Step runs
// up to MaxIter iterations, and the closure may be evaluated several
// times per iteration when a line search is configured.
//
// Vector algebra runs in float64; parameters stay float32.
type LBFGS struct {
	cfg    LBFGSConfig
	budget int

	funcEvals int
	nIter     int

	d        []float64 // last search direction
	t        float64   // last step length
	oldDirs  [][]float64
	oldStps  [][]float64
	ro       []float64
	hDiag    float64
	prevGrad []float64
	prevLoss float64
}

// NewLBFGS creates an L-BFGS optimizer, filling unset fields with defaults.
func NewLBFGS(cfg LBFGSConfig) *LBFGS {
	if cfg.LR == 0 {
		cfg.LR = 1
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 20
	}
	if cfg.MaxEval <= 0 {
		cfg.MaxEval = cfg.MaxIter * 5 / 4
	}
	if cfg.ToleranceGrad == 0 {
		cfg.ToleranceGrad = 1e-7
	}
	if cfg.ToleranceChange == 0 {
		cfg.ToleranceChange = 1e-9
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return &LBFGS{cfg: cfg}
}

// Name returns "lbfgs".
func (o *LBFGS) Name() string {
	return "lbfgs"
}

// Config returns the effective configuration.
func (o *LBFGS) Config() LBFGSConfig {
	return o.cfg
}

// SetMaxEvals caps the closure evaluations of the next Step.
func (o *LBFGS) SetMaxEvals(n int) {
	o.budget = n
}

// Evaluations returns the total number of closure evaluations so far.
func (o *LBFGS) Evaluations() int {
	return o.funcEvals
}

// Iterations returns the total number of iterations so far.
func (o *LBFGS) Iterations() int {
	return o.nIter
}

// Step performs one L-BFGS step and returns the loss at the starting point.
func (o *LBFGS) Step(params []float32, closure Closure) (float64, error) {
	n := len(params)
	maxEval := o.cfg.MaxEval
	if o.budget > 0 && o.budget < maxEval {
		maxEval = o.budget
	}
	o.budget = 0

	if o.d != nil && len(o.d) != n {
		o.reset()
	}

	eval := func() (float64, []float64, error) {
		loss, g, err := evaluate(closure, n)
		if err != nil {
			return 0, nil, err
		}
		grad := make([]float64, n)
		for i, v := range g {
			grad[i] = float64(v)
		}
		return loss, grad, nil
	}

	origLoss, grad, err := eval()
	if err != nil {
		return 0, err
	}
	loss := origLoss
	currentEvals := 1
	o.funcEvals++

	if floats.Norm(grad, math.Inf(1)) <= o.cfg.ToleranceGrad {
		return origLoss, nil
	}

	for nIter := 0; nIter < o.cfg.MaxIter; {
		nIter++
		o.nIter++

		if o.nIter == 1 {
			o.d = make([]float64, n)
			floats.ScaleTo(o.d, -1, grad)
			o.oldDirs, o.oldStps, o.ro = nil, nil, nil
			o.hDiag = 1
		} else {
			o.updateDirection(grad)
		}

		o.prevGrad = append(o.prevGrad[:0], grad...)
		o.prevLoss = loss

		if o.nIter == 1 {
			o.t = math.Min(1, 1/floats.Norm(grad, 1)) * o.cfg.LR
		} else {
			o.t = o.cfg.LR
		}

		gtd := floats.Dot(grad, o.d)
		if gtd > -o.cfg.ToleranceChange {
			break
		}

		lsEvals := 0
		optCond := false
		if o.cfg.LineSearch == StrongWolfe {
			maxLS := min(25, maxEval-currentEvals-1)
			if maxLS < 0 {
				break
			}
			x0 := append([]float32(nil), params...)
			obj := func(t float64) (float64, []float64, error) {
				copy(params, x0)
				addScaled(params, t, o.d)
				f, g, err := eval()
				copy(params, x0)
				return f, g, err
			}
			var t float64
			loss, grad, t, lsEvals, err = strongWolfe(obj, o.t, o.d, loss, grad, gtd, o.cfg.ToleranceChange, maxLS)
			if err != nil {
				return 0, err
			}
			o.t = t
			addScaled(params, o.t, o.d)
			optCond = floats.Norm(grad, math.Inf(1)) <= o.cfg.ToleranceGrad
		} else {
			addScaled(params, o.t, o.d)
			if nIter != o.cfg.MaxIter && currentEvals < maxEval {
				loss, grad, err = eval()
				if err != nil {
					return 0, err
				}
				lsEvals = 1
				optCond = floats.Norm(grad, math.Inf(1)) <= o.cfg.ToleranceGrad
			}
		}

		currentEvals += lsEvals
		o.funcEvals += lsEvals

		if nIter == o.cfg.MaxIter || currentEvals >= maxEval || optCond {
			break
		}
		if floats.Norm(o.d, math.Inf(1))*math.Abs(o.t) <= o.cfg.ToleranceChange {
			break
		}
		if math.Abs(loss-o.prevLoss) < o.cfg.ToleranceChange {
			break
		}
	}

	return origLoss, nil
}

// updateDirection records the newest curvature pair and computes the
// search direction with the two-loop recursion.
func (o *LBFGS) updateDirection(grad []float64) {
	n := len(grad)
	y := make([]float64, n)
	floats.SubTo(y, grad, o.prevGrad)
	s := make([]float64, n)
	floats.ScaleTo(s, o.t, o.d)

	if ys := floats.Dot(y, s); ys > 1e-10 {
		if len(o.oldDirs) == o.cfg.HistorySize {
			o.oldDirs = o.oldDirs[1:]
			o.oldStps = o.oldStps[1:]
			o.ro = o.ro[1:]
		}
		o.oldDirs = append(o.oldDirs, y)
		o.oldStps = append(o.oldStps, s)
		o.ro = append(o.ro, 1/ys)
		o.hDiag = ys / floats.Dot(y, y)
	}

	numOld := len(o.oldDirs)
	al := make([]float64, numOld)
	q := make([]float64, n)
	floats.ScaleTo(q, -1, grad)
	for i := numOld - 1; i >= 0; i-- {
		al[i] = floats.Dot(o.oldStps[i], q) * o.ro[i]
		floats.AddScaled(q, -al[i], o.oldDirs[i])
	}

	r := q
	floats.Scale(o.hDiag, r)
	for i := 0; i < numOld; i++ {
		be := floats.Dot(o.oldDirs[i], r) * o.ro[i]
		floats.AddScaled(r, al[i]-be, o.oldStps[i])
	}
	o.d = r
}

func (o *LBFGS) reset() {
	o.nIter = 0
	o.d = nil
	o.t = 0
	o.oldDirs, o.oldStps, o.ro = nil, nil, nil
	o.prevGrad = nil
}

// addScaled computes params += t*d.
func addScaled(params []float32, t float64, d []float64) {
	for i, v := range d {
		params[i] += float32(t * v)
	}
}
