package style

import (
	"errors"

	"github.com/born-ml/stylize/internal/features"
)

var (
	// ErrShapeMismatch is returned when the style and content images differ
	// in height or width.
	ErrShapeMismatch = errors.New("style and content images must have the same size")

	// ErrRank is returned for a loss target that is not [N, C, H, W].
	ErrRank = errors.New("loss target must have rank 4")

	// ErrUnsupportedStage is returned when the network contains a stage
	// that is not a convolution, nonlinearity, pooling or batch norm.
	ErrUnsupportedStage = features.ErrUnsupportedStage

	// ErrUnknownLayer is returned when a requested tap layer is never
	// reached while walking the network.
	ErrUnknownLayer = features.ErrUnknownLayer

	// ErrNonFinite is returned when the objective diverges.
	ErrNonFinite = errors.New("loss is not finite")
)
