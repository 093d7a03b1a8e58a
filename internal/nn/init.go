package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/stylize/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// A nil rng uses the global math/rand source.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	uniform := rand.Float64 //nolint:gosec // weight initialization is not security-critical
	if rng != nil {
		uniform = rng.Float64
	}

	t := tensor.Zeros(shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = float32((uniform()*2.0 - 1.0) * bound)
	}
	return t
}
