package onnx

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
// Unknown fields are skipped; structural damage yields ErrMalformed.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := readModel(data, model); err != nil {
		return nil, fmt.Errorf("onnx: parse model: %w", err)
	}
	return model, nil
}

// fieldFunc decodes one field whose tag has already been consumed from b.
// It returns the number of value bytes it consumed, or -1 to skip the field.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk feeds every field of the message in b to fn.
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return wireError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func wireError(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}

func wrongType(typ protowire.Type) error {
	return fmt.Errorf("%w: unexpected wire type %d", ErrMalformed, typ)
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, wrongType(typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, wireError(n)
	}
	return v, n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, wrongType(typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, wireError(n)
	}
	return v, n, nil
}

// consumeInts reads a repeated int64 field in packed or unpacked form.
func consumeInts(dst []int64, typ protowire.Type, b []byte) ([]int64, int, error) {
	if typ == protowire.VarintType {
		v, n, err := consumeVarint(typ, b)
		return append(dst, int64(v)), n, err //nolint:gosec // G115: two's complement int64 on the wire
	}
	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return dst, 0, err
	}
	for len(packed) > 0 {
		v, m := protowire.ConsumeVarint(packed)
		if m < 0 {
			return dst, 0, wireError(m)
		}
		dst = append(dst, int64(v)) //nolint:gosec // G115
		packed = packed[m:]
	}
	return dst, n, nil
}

// consumeFloats reads a repeated float field in packed or unpacked form.
func consumeFloats(dst []float32, typ protowire.Type, b []byte) ([]float32, int, error) {
	if typ == protowire.Fixed32Type {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return dst, 0, wireError(n)
		}
		return append(dst, math.Float32frombits(v)), n, nil
	}
	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return dst, 0, err
	}
	if len(packed)%4 != 0 {
		return dst, 0, fmt.Errorf("%w: packed floats of %d bytes", ErrMalformed, len(packed))
	}
	for i := 0; i < len(packed); i += 4 {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(packed[i:])))
	}
	return dst, n, nil
}

// consumeDoubles reads a repeated double field in packed or unpacked form.
func consumeDoubles(dst []float64, typ protowire.Type, b []byte) ([]float64, int, error) {
	if typ == protowire.Fixed64Type {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return dst, 0, wireError(n)
		}
		return append(dst, math.Float64frombits(v)), n, nil
	}
	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return dst, 0, err
	}
	if len(packed)%8 != 0 {
		return dst, 0, fmt.Errorf("%w: packed doubles of %d bytes", ErrMalformed, len(packed))
	}
	for i := 0; i < len(packed); i += 8 {
		dst = append(dst, math.Float64frombits(binary.LittleEndian.Uint64(packed[i:])))
	}
	return dst, n, nil
}

func readModel(data []byte, m *ModelProto) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // ir_version
			v, n, err := consumeVarint(typ, b)
			m.IRVersion = int64(v) //nolint:gosec // G115
			return n, err
		case 2: // producer_name
			v, n, err := consumeBytes(typ, b)
			m.ProducerName = string(v)
			return n, err
		case 3: // producer_version
			v, n, err := consumeBytes(typ, b)
			m.ProducerVersion = string(v)
			return n, err
		case 4: // domain
			v, n, err := consumeBytes(typ, b)
			m.Domain = string(v)
			return n, err
		case 5: // model_version
			v, n, err := consumeVarint(typ, b)
			m.ModelVersion = int64(v) //nolint:gosec // G115
			return n, err
		case 7: // graph
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			m.Graph = &GraphProto{}
			return n, readGraph(v, m.Graph)
		case 8: // opset_import
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var opset OperatorSetID
			if err := readOpset(v, &opset); err != nil {
				return 0, err
			}
			m.OpsetImport = append(m.OpsetImport, opset)
			return n, nil
		default:
			return -1, nil
		}
	})
}

func readOpset(data []byte, o *OperatorSetID) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // domain
			v, n, err := consumeBytes(typ, b)
			o.Domain = string(v)
			return n, err
		case 2: // version
			v, n, err := consumeVarint(typ, b)
			o.Version = int64(v) //nolint:gosec // G115
			return n, err
		default:
			return -1, nil
		}
	})
}

func readGraph(data []byte, g *GraphProto) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // node
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var node NodeProto
			if err := readNode(v, &node); err != nil {
				return 0, err
			}
			g.Nodes = append(g.Nodes, node)
			return n, nil
		case 2: // name
			v, n, err := consumeBytes(typ, b)
			g.Name = string(v)
			return n, err
		case 5: // initializer
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var t TensorProto
			if err := readTensor(v, &t); err != nil {
				return 0, err
			}
			g.Initializers = append(g.Initializers, t)
			return n, nil
		case 11, 12: // input, output
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			name, err := readValueInfoName(v)
			if err != nil {
				return 0, err
			}
			if num == 11 {
				g.Inputs = append(g.Inputs, name)
			} else {
				g.Outputs = append(g.Outputs, name)
			}
			return n, nil
		default:
			return -1, nil
		}
	})
}

// readValueInfoName extracts the name of a ValueInfoProto; its type is unused.
func readValueInfoName(data []byte) (string, error) {
	var name string
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		v, n, err := consumeBytes(typ, b)
		name = string(v)
		return n, err
	})
	return name, err
}

func readNode(data []byte, node *NodeProto) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1: // input
			v, n, err := consumeBytes(typ, b)
			node.Inputs = append(node.Inputs, string(v))
			return n, err
		case 2: // output
			v, n, err := consumeBytes(typ, b)
			node.Outputs = append(node.Outputs, string(v))
			return n, err
		case 3: // name
			v, n, err := consumeBytes(typ, b)
			node.Name = string(v)
			return n, err
		case 4: // op_type
			v, n, err := consumeBytes(typ, b)
			node.OpType = string(v)
			return n, err
		case 5: // attribute
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var attr AttributeProto
			if err := readAttribute(v, &attr); err != nil {
				return 0, err
			}
			node.Attributes = append(node.Attributes, attr)
			return n, nil
		case 7: // domain
			v, n, err := consumeBytes(typ, b)
			node.Domain = string(v)
			return n, err
		default:
			return -1, nil
		}
	})
}

func readAttribute(data []byte, a *AttributeProto) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			n   int
			err error
		)
		switch num {
		case 1: // name
			var v []byte
			v, n, err = consumeBytes(typ, b)
			a.Name = string(v)
		case 2: // f
			if typ != protowire.Fixed32Type {
				return 0, wrongType(typ)
			}
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			if n < 0 {
				return 0, wireError(n)
			}
			a.F = math.Float32frombits(v)
		case 3: // i
			var v uint64
			v, n, err = consumeVarint(typ, b)
			a.I = int64(v) //nolint:gosec // G115
		case 4: // s
			a.S, n, err = consumeBytes(typ, b)
		case 5: // t
			var v []byte
			v, n, err = consumeBytes(typ, b)
			if err == nil {
				a.T = &TensorProto{}
				err = readTensor(v, a.T)
			}
		case 7: // floats
			a.Floats, n, err = consumeFloats(a.Floats, typ, b)
		case 8: // ints
			a.Ints, n, err = consumeInts(a.Ints, typ, b)
		case 20: // type
			var v uint64
			v, n, err = consumeVarint(typ, b)
			a.Type = int32(v) //nolint:gosec // G115
		default:
			return -1, nil
		}
		return n, err
	})
}

func readTensor(data []byte, t *TensorProto) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			n   int
			err error
		)
		switch num {
		case 1: // dims
			t.Dims, n, err = consumeInts(t.Dims, typ, b)
		case 2: // data_type
			var v uint64
			v, n, err = consumeVarint(typ, b)
			t.DataType = int32(v) //nolint:gosec // G115
		case 4: // float_data
			t.FloatData, n, err = consumeFloats(t.FloatData, typ, b)
		case 8: // name
			var v []byte
			v, n, err = consumeBytes(typ, b)
			t.Name = string(v)
		case 9: // raw_data
			t.RawData, n, err = consumeBytes(typ, b)
		case 10: // double_data
			t.DoubleData, n, err = consumeDoubles(t.DoubleData, typ, b)
		default:
			return -1, nil
		}
		return n, err
	})
}
