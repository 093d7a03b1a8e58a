// Package weights reads and writes pretrained network weights in the
// SafeTensors format and maps torchvision checkpoint keys onto feature
// networks.
package weights

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/born-ml/stylize/internal/tensor"
	"github.com/nlpodyssey/safetensors"
)

var (
	// ErrMissingTensor is returned when a checkpoint lacks a tensor the
	// network needs.
	ErrMissingTensor = errors.New("missing tensor")

	// ErrFormat is returned for malformed SafeTensors files.
	ErrFormat = errors.New("malformed safetensors file")
)

// Reader gives access to the tensors of a SafeTensors file held in memory.
type Reader struct {
	st       safetensors.SafeTensors
	header   safetensors.Metadata
	metadata map[string]string
}

// Open reads a SafeTensors file and validates its header.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: weight files are chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("weights: %s: %w", path, err)
	}
	return r, nil
}

// Parse validates a SafeTensors buffer. The reader shares data.
func Parse(data []byte) (*Reader, error) {
	_, header, err := safetensors.ReadMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	st, err := safetensors.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return &Reader{st: st, header: header, metadata: header.Metadata()}, nil
}

// Metadata returns the __metadata__ map of the header.
func (r *Reader) Metadata() map[string]string {
	return r.metadata
}

// Names returns the tensor names in sorted order.
func (r *Reader) Names() []string {
	names := r.st.Names()
	slices.Sort(names)
	return names
}

// Info returns the header entry of a tensor.
func (r *Reader) Info(name string) (safetensors.TensorInfo, error) {
	info, ok := r.header.Tensors()[name]
	if !ok {
		return safetensors.TensorInfo{}, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	return *info, nil
}

// Tensor copies a tensor out of the file, widening F16, BF16 and F64
// elements to float32.
func (r *Reader) Tensor(name string) (*tensor.RawTensor, error) {
	view, ok := r.st.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	switch view.DType() {
	case safetensors.F16, safetensors.BF16, safetensors.F32, safetensors.F64:
	default:
		return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, view.DType())
	}

	shape := make(tensor.Shape, len(view.Shape()))
	for i, d := range view.Shape() {
		shape[i] = int(d) //nolint:gosec // G115: validated against the buffer length
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	raw, err := tensor.NewRaw(shape, tensor.CPU)
	if err != nil {
		return nil, err
	}
	decode(raw.Data(), view.Data(), view.DType())
	return raw, nil
}

// decode widens little-endian elements of type dtype into dst.
func decode(dst []float32, src []byte, dtype safetensors.DType) {
	for i := range dst {
		switch dtype {
		case safetensors.F16:
			dst[i] = float16ToFloat32(binary.LittleEndian.Uint16(src[2*i:]))
		case safetensors.BF16:
			dst[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(src[2*i:])) << 16)
		case safetensors.F32:
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		case safetensors.F64:
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(src[8*i:])))
		}
	}
}

// float16ToFloat32 converts an IEEE 754 half precision value.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := int32(h>>10) & 0x1F
	mant := uint32(h & 0x3FF)

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal: normalize.
		exp = 1
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		mant &= 0x3FF
	case exp == 0x1F:
		return math.Float32frombits(sign | 0x7F800000 | mant<<13)
	}
	return math.Float32frombits(sign | uint32(exp+127-15)<<23 | mant<<13) //nolint:gosec // G115: exponent in range
}

// Save writes tensors as F32; the layout orders them by name.
func Save(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	views := make(map[string]safetensors.TensorView, len(tensors))
	for name, raw := range tensors {
		shape := make([]uint64, len(raw.Shape()))
		for i, d := range raw.Shape() {
			shape[i] = uint64(d) //nolint:gosec // G115: dimensions are positive
		}
		data := make([]byte, 0, 4*raw.NumElements())
		for _, v := range raw.Data() {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
		}
		view, err := safetensors.NewTensorView(safetensors.F32, shape, data)
		if err != nil {
			return fmt.Errorf("weights: tensor %s: %w", name, err)
		}
		views[name] = view
	}

	//nolint:gosec // G304: output path is chosen by the user
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	if err := safetensors.SerializeToWriter(views, metadata, file); err != nil {
		_ = file.Close() // Best effort close; the write error is reported
		return fmt.Errorf("weights: %s: %w", path, err)
	}
	return file.Close()
}
