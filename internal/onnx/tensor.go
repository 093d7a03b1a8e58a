package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/stylize/internal/tensor"
)

// Shape returns the tensor's dimensions as a tensor.Shape.
func (t *TensorProto) Shape() (tensor.Shape, error) {
	shape := make(tensor.Shape, len(t.Dims))
	for i, d := range t.Dims {
		if d < 0 || d > math.MaxInt32 {
			return nil, fmt.Errorf("%w: tensor %q has dimension %d", ErrMalformed, t.Name, d)
		}
		shape[i] = int(d)
	}
	return shape, nil
}

// Float32s decodes the tensor's elements, widening or narrowing to float32.
// FLOAT and DOUBLE tensors are supported, stored either as raw_data or in the
// typed repeated fields.
func (t *TensorProto) Float32s() ([]float32, error) {
	shape, err := t.Shape()
	if err != nil {
		return nil, err
	}
	count := shape.NumElements()

	switch t.DataType {
	case TensorProtoFloat:
		if len(t.RawData) > 0 {
			if len(t.RawData) != count*4 {
				return nil, fmt.Errorf("%w: tensor %q has %d raw bytes for %d floats",
					ErrMalformed, t.Name, len(t.RawData), count)
			}
			out := make([]float32, count)
			for i := range out {
				out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.RawData[i*4:]))
			}
			return out, nil
		}
		if len(t.FloatData) != count {
			return nil, fmt.Errorf("%w: tensor %q has %d floats, shape %v needs %d",
				ErrMalformed, t.Name, len(t.FloatData), shape, count)
		}
		return append([]float32(nil), t.FloatData...), nil

	case TensorProtoDouble:
		doubles := t.DoubleData
		if len(t.RawData) > 0 {
			if len(t.RawData) != count*8 {
				return nil, fmt.Errorf("%w: tensor %q has %d raw bytes for %d doubles",
					ErrMalformed, t.Name, len(t.RawData), count)
			}
			doubles = make([]float64, count)
			for i := range doubles {
				doubles[i] = math.Float64frombits(binary.LittleEndian.Uint64(t.RawData[i*8:]))
			}
		}
		if len(doubles) != count {
			return nil, fmt.Errorf("%w: tensor %q has %d doubles, shape %v needs %d",
				ErrMalformed, t.Name, len(doubles), shape, count)
		}
		out := make([]float32, count)
		for i, v := range doubles {
			out[i] = float32(v)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: tensor %q has data type %d", ErrUnsupported, t.Name, t.DataType)
	}
}

// Raw decodes the tensor into a host RawTensor.
func (t *TensorProto) Raw() (*tensor.RawTensor, error) {
	shape, err := t.Shape()
	if err != nil {
		return nil, err
	}
	data, err := t.Float32s()
	if err != nil {
		return nil, err
	}
	return tensor.RawFromSlice(data, shape, tensor.CPU)
}
