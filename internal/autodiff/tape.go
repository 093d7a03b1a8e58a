package autodiff

import (
	"github.com/born-ml/stylize/internal/autodiff/ops"
	"github.com/born-ml/stylize/internal/tensor"
)

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass using reverse-mode automatic
// differentiation.
//
// Only operations that depend on a watched leaf are recorded. Everything
// else (frozen weights, constant statistics, detached targets) runs through
// the backend without leaving a trace.
//
// Usage:
//
//	tape := backend.Tape()
//	tape.Watch(x.Raw())
//	tape.StartRecording()
//	// ... perform operations ...
//	grads := tape.Backward(loss.Raw(), nil, backend)
type GradientTape struct {
	operations []ops.Operation
	recording  bool

	leaves  map[*tensor.RawTensor]struct{} // watched by the caller
	derived map[*tensor.RawTensor]struct{} // outputs of recorded operations
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 64),
		leaves:     make(map[*tensor.RawTensor]struct{}),
		derived:    make(map[*tensor.RawTensor]struct{}),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Watch marks raw as a leaf whose gradient is wanted.
func (t *GradientTape) Watch(raw *tensor.RawTensor) {
	t.leaves[raw] = struct{}{}
}

// Unwatch removes raw from the watched leaves.
func (t *GradientTape) Unwatch(raw *tensor.RawTensor) {
	delete(t.leaves, raw)
}

// Tracked reports whether raw is a watched leaf or depends on one through
// recorded operations.
func (t *GradientTape) Tracked(raw *tensor.RawTensor) bool {
	if _, ok := t.leaves[raw]; ok {
		return true
	}
	_, ok := t.derived[raw]
	return ok
}

// Record adds an operation to the tape if the tape is recording and at
// least one input is tracked. The output becomes tracked.
func (t *GradientTape) Record(op ops.Operation) {
	if !t.recording {
		return
	}
	for _, in := range op.Inputs() {
		if t.Tracked(in) {
			t.operations = append(t.operations, op)
			t.derived[op.Output()] = struct{}{}
			return
		}
	}
}

// Clear removes all recorded operations. Watched leaves and the recording
// state are preserved.
func (t *GradientTape) Clear() {
	clear(t.operations)
	t.operations = t.operations[:0]
	clear(t.derived)
}

// Reset clears the tape and forgets every watched leaf.
func (t *GradientTape) Reset() {
	t.Clear()
	clear(t.leaves)
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Backward computes gradients by walking the tape in reverse, starting from
// output with seed as its gradient (ones when seed is nil).
//
// Gradients of a tensor used several times are summed. Only tracked inputs
// receive gradients. Returns a map from RawTensor to its gradient; look up
// watched leaves in it.
func (t *GradientTape) Backward(output, seed *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
	if !t.Tracked(output) {
		return grads
	}

	// Stop recording during backward pass to prevent recording gradient operations.
	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	if seed == nil {
		seed = tensor.MustRaw(output.Shape(), output.Device())
		for i := range seed.Data() {
			seed.Data()[i] = 1
		}
	}
	grads[output] = seed

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		outputGrad, ok := grads[op.Output()]
		if !ok {
			continue
		}

		inputs := op.Inputs()
		needs := make([]bool, len(inputs))
		for j, in := range inputs {
			needs[j] = t.Tracked(in)
		}

		inputGrads := op.Backward(outputGrad, needs, backend)
		for j, in := range inputs {
			if !needs[j] || j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			if existing, ok := grads[in]; ok {
				grads[in] = backend.Add(existing, inputGrads[j])
			} else {
				grads[in] = inputGrads[j]
			}
		}
	}
	return grads
}
