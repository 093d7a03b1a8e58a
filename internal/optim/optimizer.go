// Package optim implements closure-driven optimizers over a flat float32
// parameter vector.
//
// This package provides:
//   - Optimizer interface: Step(params, closure)
//   - LBFGS: limited-memory BFGS with optional strong Wolfe line search
//   - Adam, SGD: first-order alternatives, one evaluation per step
//
// Design inspired by PyTorch's torch.optim: every Step re-evaluates the
// objective through a Closure, so optimizers that evaluate the objective
// several times per step (line searches) share one interface with those
// that do not.
//
// Example usage:
//
//	opt := optim.NewLBFGS(optim.LBFGSConfig{LineSearch: optim.StrongWolfe})
//	loss, err := opt.Step(pixels, func() (float64, []float32, error) {
//	    // evaluate the objective at pixels and return its gradient
//	})
package optim

import (
	"errors"
	"fmt"
	"strings"
)

// Closure evaluates the objective at the current parameter values and
// returns the loss and its gradient with respect to every parameter.
// The closure may modify the parameters in place (for example to project
// them back into a feasible box); optimizers read them again afterwards.
type Closure func() (loss float64, grad []float32, err error)

// Optimizer updates a parameter vector in place.
type Optimizer interface {
	// Step performs one optimization step and returns the loss of the
	// first closure evaluation of that step.
	Step(params []float32, closure Closure) (float64, error)

	// Name returns the optimizer name.
	Name() string
}

// Budgeted is implemented by optimizers that may evaluate the closure
// more than once per step. SetMaxEvals caps the evaluations of the next
// step; n <= 0 removes the cap.
type Budgeted interface {
	SetMaxEvals(n int)
}

// ErrGradientSize is returned when a closure's gradient does not match
// the parameter vector.
var ErrGradientSize = errors.New("gradient size mismatch")

// Config selects and configures an optimizer by name.
// Zero values pick each optimizer's defaults.
type Config struct {
	Name       string  // "lbfgs" (default), "adam" or "sgd"
	LR         float64 // learning rate
	MaxIter    int     // L-BFGS iterations per step
	History    int     // L-BFGS history size
	LineSearch string  // L-BFGS line search: "" or "strong_wolfe"
	Momentum   float64 // SGD momentum
}

// New creates the optimizer described by cfg.
func New(cfg Config) (Optimizer, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "lbfgs", "l-bfgs":
		ls, err := ParseLineSearch(cfg.LineSearch)
		if err != nil {
			return nil, err
		}
		return NewLBFGS(LBFGSConfig{
			LR:          cfg.LR,
			MaxIter:     cfg.MaxIter,
			HistorySize: cfg.History,
			LineSearch:  ls,
		}), nil
	case "adam":
		return NewAdam(AdamConfig{LR: cfg.LR}), nil
	case "sgd":
		return NewSGD(SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum}), nil
	default:
		return nil, fmt.Errorf("optim: unknown optimizer %q", cfg.Name)
	}
}

// evaluate runs the closure and checks the gradient length.
func evaluate(closure Closure, n int) (float64, []float32, error) {
	loss, grad, err := closure()
	if err != nil {
		return 0, nil, err
	}
	if len(grad) != n {
		return 0, nil, fmt.Errorf("%w: got %d values for %d parameters", ErrGradientSize, len(grad), n)
	}
	return loss, grad, nil
}
