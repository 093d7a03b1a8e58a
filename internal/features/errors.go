package features

import "errors"

var (
	// ErrUnsupportedStage is returned for a stage whose kind is not one of
	// convolution, nonlinearity, pooling or batch normalization.
	ErrUnsupportedStage = errors.New("unsupported stage")

	// ErrUnknownLayer is returned when a requested layer name matches no stage.
	ErrUnknownLayer = errors.New("unknown layer")

	// ErrUnknownArchitecture is returned by Build for an unrecognized name.
	ErrUnknownArchitecture = errors.New("unknown architecture")
)
