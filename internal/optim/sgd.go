package optim

// SGD implements gradient descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Each Step evaluates the closure exactly once.
type SGD struct {
	lr       float64
	momentum float64
	velocity []float64
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{lr: config.LR, momentum: config.Momentum}
}

// Name returns "sgd".
func (s *SGD) Name() string {
	return "sgd"
}

// Step evaluates the closure and applies one update.
func (s *SGD) Step(params []float32, closure Closure) (float64, error) {
	loss, grad, err := evaluate(closure, len(params))
	if err != nil {
		return 0, err
	}

	if s.momentum == 0 {
		for i, g := range grad {
			params[i] -= float32(s.lr * float64(g))
		}
		return loss, nil
	}

	if len(s.velocity) != len(params) {
		s.velocity = make([]float64, len(params))
	}
	for i, g := range grad {
		s.velocity[i] = s.momentum*s.velocity[i] + float64(g)
		params[i] -= float32(s.lr * s.velocity[i])
	}
	return loss, nil
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}
