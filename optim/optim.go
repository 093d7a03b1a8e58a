// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizers that drive pixel optimization.
//
// Optimizers work on a flat float32 parameter vector and a closure that
// evaluates the objective and its gradient. L-BFGS follows PyTorch's
// torch.optim.LBFGS, including the strong Wolfe line search.
//
// Example:
//
//	opt := optim.NewLBFGS(optim.LBFGSConfig{LineSearch: optim.StrongWolfe})
//	loss, err := opt.Step(params, closure)
package optim

import (
	"github.com/born-ml/stylize/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Closure evaluates the objective and its gradient.
type Closure = optim.Closure

// Budgeted is implemented by optimizers that evaluate the closure more
// than once per step.
type Budgeted = optim.Budgeted

// ErrGradientSize is returned when a gradient does not match the parameters.
var ErrGradientSize = optim.ErrGradientSize

// Config selects an optimizer by name.
type Config = optim.Config

// New builds the optimizer named in cfg.
func New(cfg Config) (Optimizer, error) {
	return optim.New(cfg)
}

// LBFGS is the limited-memory BFGS optimizer.
type LBFGS = optim.LBFGS

// LBFGSConfig holds configuration for the L-BFGS optimizer.
type LBFGSConfig = optim.LBFGSConfig

// LineSearch selects how L-BFGS picks its step length.
type LineSearch = optim.LineSearch

// Line search strategies.
const (
	FixedStep   = optim.FixedStep
	StrongWolfe = optim.StrongWolfe
)

// ParseLineSearch parses "", "none" or "strong_wolfe".
func ParseLineSearch(s string) (LineSearch, error) {
	return optim.ParseLineSearch(s)
}

// NewLBFGS creates an L-BFGS optimizer; zero fields take PyTorch's defaults.
func NewLBFGS(cfg LBFGSConfig) *LBFGS {
	return optim.NewLBFGS(cfg)
}

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
func NewAdam(config AdamConfig) *Adam {
	return optim.NewAdam(config)
}

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	return optim.NewSGD(config)
}
