package optim_test

import (
	"errors"
	"testing"

	"github.com/born-ml/stylize/internal/optim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadratic returns a closure for f(x) = Σ c_i (x_i - a_i)² and a counter
// of its evaluations.
func quadratic(x []float32, c, a []float64) (optim.Closure, *int) {
	calls := 0
	return func() (float64, []float32, error) {
		calls++
		var f float64
		grad := make([]float32, len(x))
		for i := range x {
			diff := float64(x[i]) - a[i]
			f += c[i] * diff * diff
			grad[i] = float32(2 * c[i] * diff)
		}
		return f, grad, nil
	}, &calls
}

func rosenbrock(x []float32) optim.Closure {
	return func() (float64, []float32, error) {
		a, b := float64(x[0]), float64(x[1])
		f := (1-a)*(1-a) + 100*(b-a*a)*(b-a*a)
		ga := -2*(1-a) - 400*a*(b-a*a)
		gb := 200 * (b - a*a)
		return f, []float32{float32(ga), float32(gb)}, nil
	}
}

func TestLBFGSConvergesOnQuadratic(t *testing.T) {
	for _, ls := range []optim.LineSearch{optim.FixedStep, optim.StrongWolfe} {
		t.Run(ls.String(), func(t *testing.T) {
			x := []float32{5, -3, 2}
			c := []float64{1, 10, 0.5}
			a := []float64{1, 2, -1}
			closure, _ := quadratic(x, c, a)

			opt := optim.NewLBFGS(optim.LBFGSConfig{MaxIter: 50, LineSearch: ls})
			for range 3 {
				_, err := opt.Step(x, closure)
				require.NoError(t, err)
			}
			for i := range x {
				assert.InDelta(t, a[i], x[i], 1e-3, "x[%d]", i)
			}
		})
	}
}

func TestLBFGSStrongWolfeRosenbrock(t *testing.T) {
	x := []float32{-1.2, 1}
	opt := optim.NewLBFGS(optim.LBFGSConfig{MaxIter: 100, LineSearch: optim.StrongWolfe})

	first, err := opt.Step(x, rosenbrock(x))
	require.NoError(t, err)
	assert.InDelta(t, 24.2, first, 1e-4, "Step returns the loss at the starting point")

	for range 4 {
		_, err = opt.Step(x, rosenbrock(x))
		require.NoError(t, err)
	}
	assert.InDelta(t, 1, x[0], 1e-2)
	assert.InDelta(t, 1, x[1], 1e-2)
}

func TestLBFGSDefaults(t *testing.T) {
	cfg := optim.NewLBFGS(optim.LBFGSConfig{}).Config()
	assert.Equal(t, 1.0, cfg.LR)
	assert.Equal(t, 20, cfg.MaxIter)
	assert.Equal(t, 25, cfg.MaxEval)
	assert.Equal(t, 100, cfg.HistorySize)
	assert.Equal(t, 1e-7, cfg.ToleranceGrad)
	assert.Equal(t, 1e-9, cfg.ToleranceChange)
	assert.Equal(t, optim.FixedStep, cfg.LineSearch)
}

func TestLBFGSRespectsEvaluationBudget(t *testing.T) {
	for _, ls := range []optim.LineSearch{optim.FixedStep, optim.StrongWolfe} {
		t.Run(ls.String(), func(t *testing.T) {
			x := []float32{5, -3, 2}
			closure, calls := quadratic(x, []float64{1, 10, 0.5}, []float64{1, 2, -1})
			opt := optim.NewLBFGS(optim.LBFGSConfig{LineSearch: ls})

			opt.SetMaxEvals(3)
			_, err := opt.Step(x, closure)
			require.NoError(t, err)
			assert.LessOrEqual(t, *calls, 3)
			assert.Equal(t, *calls, opt.Evaluations())

			// The cap applies to one step only.
			before := *calls
			_, err = opt.Step(x, closure)
			require.NoError(t, err)
			assert.LessOrEqual(t, *calls-before, opt.Config().MaxEval+1)
		})
	}
}

func TestLBFGSStopsAtStationaryPoint(t *testing.T) {
	x := []float32{1, 2}
	closure, calls := quadratic(x, []float64{1, 1}, []float64{1, 2})
	opt := optim.NewLBFGS(optim.LBFGSConfig{})

	loss, err := opt.Step(x, closure)
	require.NoError(t, err)
	assert.Equal(t, 0.0, loss)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, []float32{1, 2}, x)
}

func TestClosureErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	failing := func() (float64, []float32, error) { return 0, nil, boom }
	short := func() (float64, []float32, error) { return 1, []float32{1}, nil }

	for _, opt := range []optim.Optimizer{
		optim.NewLBFGS(optim.LBFGSConfig{}),
		optim.NewAdam(optim.AdamConfig{}),
		optim.NewSGD(optim.SGDConfig{}),
	} {
		_, err := opt.Step([]float32{1, 2}, failing)
		assert.ErrorIs(t, err, boom, opt.Name())

		_, err = opt.Step([]float32{1, 2}, short)
		assert.ErrorIs(t, err, optim.ErrGradientSize, opt.Name())
	}
}

func TestSGD(t *testing.T) {
	x := []float32{2}
	constant := func() (float64, []float32, error) { return 0, []float32{1}, nil }

	opt := optim.NewSGD(optim.SGDConfig{LR: 0.1})
	_, err := opt.Step(x, constant)
	require.NoError(t, err)
	assert.InDelta(t, 1.9, x[0], 1e-6)

	x[0] = 1
	momentum := optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	_, err = momentum.Step(x, constant)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, x[0], 1e-6) // v = 1
	_, err = momentum.Step(x, constant)
	require.NoError(t, err)
	assert.InDelta(t, 0.71, x[0], 1e-6) // v = 1.9
}

func TestAdamFirstStepMovesByLR(t *testing.T) {
	x := []float32{1, 1}
	grads := func() (float64, []float32, error) { return 0, []float32{5, -0.01}, nil }

	opt := optim.NewAdam(optim.AdamConfig{LR: 0.1})
	_, err := opt.Step(x, grads)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, x[0], 1e-5)
	assert.InDelta(t, 1.1, x[1], 1e-4)
	assert.Equal(t, 1, opt.GetTimestep())
}

func TestAdamConvergesOnQuadratic(t *testing.T) {
	x := []float32{3, -3}
	closure, _ := quadratic(x, []float64{1, 1}, []float64{0.5, 0.25})
	opt := optim.NewAdam(optim.AdamConfig{LR: 0.05})
	for range 1000 {
		_, err := opt.Step(x, closure)
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.5, x[0], 1e-2)
	assert.InDelta(t, 0.25, x[1], 1e-2)
}

func TestNew(t *testing.T) {
	opt, err := optim.New(optim.Config{})
	require.NoError(t, err)
	assert.Equal(t, "lbfgs", opt.Name())
	_, budgeted := opt.(optim.Budgeted)
	assert.True(t, budgeted)

	opt, err = optim.New(optim.Config{Name: "lbfgs", LineSearch: "strong_wolfe", MaxIter: 7})
	require.NoError(t, err)
	cfg := opt.(*optim.LBFGS).Config()
	assert.Equal(t, optim.StrongWolfe, cfg.LineSearch)
	assert.Equal(t, 7, cfg.MaxIter)

	opt, err = optim.New(optim.Config{Name: "Adam"})
	require.NoError(t, err)
	assert.Equal(t, "adam", opt.Name())

	_, err = optim.New(optim.Config{Name: "rmsprop"})
	assert.Error(t, err)
	_, err = optim.New(optim.Config{LineSearch: "backtracking"})
	assert.Error(t, err)
}
