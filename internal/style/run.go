package style

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/google/uuid"
)

// Default loss weights and report interval.
const (
	DefaultStyleWeight   = 1e6
	DefaultContentWeight = 1
	DefaultReportEvery   = 5
)

// Observer receives a copy of the candidate image every ReportEvery
// evaluations. It must not retain state across runs; it cannot influence
// the optimization.
type Observer func(state State, image *tensor.RawTensor)

// Config configures Run.
type Config struct {
	// MaxSteps is the number of objective evaluations to spend.
	MaxSteps int

	StyleWeight   float64
	ContentWeight float64

	// Optimizer defaults to L-BFGS with PyTorch's defaults.
	Optimizer optim.Optimizer

	// ReportEvery is the progress interval in evaluations; zero disables
	// progress logging and the observer.
	ReportEvery int
	Observer    Observer

	// Logger defaults to discarding everything.
	Logger *slog.Logger

	// RunID tags log lines and snapshots. A random UUID when empty.
	RunID string
}

// DefaultConfig returns a configuration with the default weights and
// report interval for the given evaluation budget.
func DefaultConfig(maxSteps int) Config {
	return Config{
		MaxSteps:      maxSteps,
		StyleWeight:   DefaultStyleWeight,
		ContentWeight: DefaultContentWeight,
		ReportEvery:   DefaultReportEvery,
	}
}

// State is the progress of a run, shared between the driver loop and the
// objective evaluation.
type State struct {
	RunID        string
	Evaluations  int     // objective evaluations so far
	StyleScore   float64 // unweighted sum of style losses at the last evaluation
	ContentScore float64 // unweighted sum of content losses at the last evaluation
	Total        float64 // weighted objective at the last evaluation
}

// Run optimizes a copy of input against the model's taps and returns it.
//
// The step budget counts objective evaluations, not optimizer steps:
// L-BFGS may evaluate the objective several times per step, and each
// evaluation increments State.Evaluations. The loop stops once MaxSteps
// evaluations have been spent; optimizers implementing optim.Budgeted are
// told the remaining budget so the count is exact. With MaxSteps == 0 the
// clamped input is returned unchanged.
//
// Every evaluation clamps the candidate into [0, 1], clears the tape,
// runs the model, weights and sums the loss taps, and differentiates with
// respect to the candidate only. A non-finite objective aborts the run
// with ErrNonFinite. An input of a different shape than the images the
// model was assembled from fails with ErrShapeMismatch before any
// evaluation.
func Run[B autodiff.BackwardCapable](model *Model[B], input *tensor.Tensor[B], cfg Config) (*tensor.Tensor[B], *State, error) {
	if cfg.MaxSteps < 0 {
		return nil, nil, fmt.Errorf("style: negative step budget %d", cfg.MaxSteps)
	}
	if cfg.StyleWeight < 0 || cfg.ContentWeight < 0 {
		return nil, nil, fmt.Errorf("style: negative loss weight (style %g, content %g)", cfg.StyleWeight, cfg.ContentWeight)
	}
	if len(model.StyleLosses)+len(model.ContentLosses) == 0 {
		return nil, nil, errors.New("style: model has no loss taps")
	}
	if shape := input.Shape(); len(shape) != 4 {
		return nil, nil, fmt.Errorf("style: input %v: %w", shape, ErrRank)
	} else if model.Shape != nil && !shape.Equal(model.Shape) {
		return nil, nil, fmt.Errorf("style: input %v, targets captured at %v: %w", shape, model.Shape, ErrShapeMismatch)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opt := cfg.Optimizer
	if opt == nil {
		opt = optim.NewLBFGS(optim.LBFGSConfig{})
	}
	state := &State{RunID: cfg.RunID}
	if state.RunID == "" {
		state.RunID = uuid.NewString()
	}
	logger = logger.With("run", state.RunID)

	candidate := input.Clone()
	backend := candidate.Backend()
	tape := backend.Tape()

	wasRecording := tape.IsRecording()
	candidate.RequireGrad()
	tape.StartRecording()
	defer func() {
		tape.Clear()
		tape.Unwatch(candidate.Raw())
		if !wasRecording {
			tape.StopRecording()
		}
	}()

	logger.Info("optimizing",
		"steps", cfg.MaxSteps,
		"optimizer", opt.Name(),
		"style_weight", cfg.StyleWeight,
		"content_weight", cfg.ContentWeight,
		"style_taps", len(model.StyleLosses),
		"content_taps", len(model.ContentLosses),
		"shape", fmt.Sprint(candidate.Shape()))

	closure := func() (float64, []float32, error) {
		candidate.Raw().Clamp(0, 1)
		tape.Clear()

		model.Forward(candidate)
		styleScore, contentScore := model.Scores(backend)
		total := styleScore.MulScalar(float32(cfg.StyleWeight)).
			Add(contentScore.MulScalar(float32(cfg.ContentWeight)))

		state.Evaluations++
		state.StyleScore = float64(styleScore.Item())
		state.ContentScore = float64(contentScore.Item())
		state.Total = float64(total.Item())
		if math.IsNaN(state.Total) || math.IsInf(state.Total, 0) {
			return 0, nil, fmt.Errorf("style: evaluation %d: %w", state.Evaluations, ErrNonFinite)
		}

		var grad []float32
		if g, ok := autodiff.Backward(total, backend)[candidate.Raw()]; ok {
			grad = g.Data()
		} else {
			grad = make([]float32, candidate.NumElements())
		}

		logger.Debug("evaluation", "evaluation", state.Evaluations, "total", state.Total)
		if cfg.ReportEvery > 0 && state.Evaluations%cfg.ReportEvery == 0 {
			logger.Info("progress",
				"evaluation", state.Evaluations,
				"style", state.StyleScore,
				"content", state.ContentScore)
			if cfg.Observer != nil {
				cfg.Observer(*state, candidate.Raw().Clone())
			}
		}
		return state.Total, grad, nil
	}

	params := candidate.Data()
	for state.Evaluations < cfg.MaxSteps {
		if b, ok := opt.(optim.Budgeted); ok {
			b.SetMaxEvals(cfg.MaxSteps - state.Evaluations)
		}
		if _, err := opt.Step(params, closure); err != nil {
			return nil, state, err
		}
	}

	candidate.Raw().Clamp(0, 1)
	logger.Info("done",
		"evaluations", state.Evaluations,
		"style", state.StyleScore,
		"content", state.ContentScore)
	return candidate, state, nil
}
