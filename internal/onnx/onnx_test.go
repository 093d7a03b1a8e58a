package onnx_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/features"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/onnx"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// Builders for the handful of ONNX messages the tests need.

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func packedInts(values ...int64) []byte {
	var b []byte
	for _, v := range values {
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func intsAttr(name string, values ...int64) []byte {
	b := appendString(nil, 1, name)
	b = appendMessage(b, 8, packedInts(values...))
	return appendVarint(b, 20, onnx.AttributeProtoInts)
}

func intAttr(name string, v int64) []byte {
	b := appendString(nil, 1, name)
	b = appendVarint(b, 3, uint64(v))
	return appendVarint(b, 20, onnx.AttributeProtoInt)
}

func floatAttr(name string, v float32) []byte {
	b := appendString(nil, 1, name)
	b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(v))
	return appendVarint(b, 20, onnx.AttributeProtoFloat)
}

// rawTensor encodes data as raw_data.
func rawTensor(name string, data []float32, dims ...int64) []byte {
	b := appendMessage(nil, 1, packedInts(dims...))
	b = appendVarint(b, 2, onnx.TensorProtoFloat)
	b = appendString(b, 8, name)
	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return appendMessage(b, 9, raw)
}

// floatTensor encodes data in the packed float_data field with unpacked dims.
func floatTensor(name string, data []float32, dims ...int64) []byte {
	var b []byte
	for _, d := range dims {
		b = appendVarint(b, 1, uint64(d))
	}
	b = appendVarint(b, 2, onnx.TensorProtoFloat)
	b = appendString(b, 8, name)
	packed := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(packed[4*i:], math.Float32bits(v))
	}
	return appendMessage(b, 4, packed)
}

func node(op string, inputs, outputs []string, attrs ...[]byte) []byte {
	var b []byte
	for _, in := range inputs {
		b = appendString(b, 1, in)
	}
	for _, out := range outputs {
		b = appendString(b, 2, out)
	}
	b = appendString(b, 3, "/"+op)
	b = appendString(b, 4, op)
	for _, a := range attrs {
		b = appendMessage(b, 5, a)
	}
	return b
}

func model(nodes, initializers [][]byte) []byte {
	var g []byte
	for _, n := range nodes {
		g = appendMessage(g, 1, n)
	}
	g = appendString(g, 2, "main_graph")
	for _, t := range initializers {
		g = appendMessage(g, 5, t)
	}
	g = appendMessage(g, 11, appendString(nil, 1, "input"))
	g = appendMessage(g, 12, appendString(nil, 1, "output"))

	m := appendVarint(nil, 1, 7)
	m = appendString(m, 2, "pytorch")
	m = appendString(m, 3, "2.1.0")
	m = appendMessage(m, 7, g)
	opset := appendString(nil, 1, "")
	opset = appendVarint(opset, 2, 13)
	return appendMessage(m, 8, opset)
}

func ramp(n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) * scale
	}
	return out
}

// featureModel is conv-relu-pool-bn-conv-relu followed by a classifier head.
func featureModel() []byte {
	nodes := [][]byte{
		node("Conv", []string{"input", "w0", "b0"}, []string{"c0"},
			intsAttr("kernel_shape", 3, 3), intsAttr("pads", 1, 1, 1, 1), intsAttr("strides", 1, 1)),
		node("Relu", []string{"c0"}, []string{"r0"}),
		node("MaxPool", []string{"r0"}, []string{"p0"},
			intsAttr("kernel_shape", 2, 2), intsAttr("strides", 2, 2)),
		node("BatchNormalization", []string{"p0", "scale", "shift", "mean", "var"}, []string{"n0"},
			floatAttr("epsilon", 1e-3)),
		node("Dropout", []string{"n0"}, []string{"d0", "mask"}),
		node("Conv", []string{"d0", "w1"}, []string{"c1"}, intsAttr("kernel_shape", 1, 1)),
		node("Relu", []string{"c1"}, []string{"r1"}),
		node("Flatten", []string{"r1"}, []string{"f"}, intAttr("axis", 1)),
		node("Gemm", []string{"f", "fc.weight", "fc.bias"}, []string{"output"}),
	}
	inits := [][]byte{
		rawTensor("w0", ramp(2*3*3*3, 0.01), 2, 3, 3, 3),
		rawTensor("b0", []float32{0.5, -0.5}, 2),
		floatTensor("scale", []float32{1, 2}, 2),
		floatTensor("shift", []float32{0, 1}, 2),
		floatTensor("mean", []float32{0.1, 0.2}, 2),
		floatTensor("var", []float32{1, 4}, 2),
		rawTensor("w1", []float32{1, 0, 0, 1}, 2, 2, 1, 1),
		rawTensor("fc.weight", ramp(10, 1), 1, 10),
		rawTensor("fc.bias", []float32{0}, 1),
	}
	return model(nodes, inits)
}

func TestParseModel(t *testing.T) {
	m, err := onnx.Parse(featureModel())
	require.NoError(t, err)

	assert.Equal(t, int64(7), m.IRVersion)
	assert.Equal(t, "pytorch", m.ProducerName)
	assert.Equal(t, "2.1.0", m.ProducerVersion)
	require.Len(t, m.OpsetImport, 1)
	assert.Equal(t, int64(13), m.OpsetImport[0].Version)

	require.NotNil(t, m.Graph)
	assert.Equal(t, "main_graph", m.Graph.Name)
	assert.Equal(t, []string{"input"}, m.Graph.Inputs)
	assert.Equal(t, []string{"output"}, m.Graph.Outputs)
	assert.Len(t, m.Graph.Nodes, 9)
	assert.Len(t, m.Graph.Initializers, 9)

	conv := m.Graph.Nodes[0]
	assert.Equal(t, "Conv", conv.OpType)
	assert.Equal(t, []string{"input", "w0", "b0"}, conv.Inputs)
	require.NotNil(t, conv.Attribute("pads"))
	assert.Equal(t, []int64{1, 1, 1, 1}, conv.Attribute("pads").Ints)
	assert.Equal(t, int32(onnx.AttributeProtoInts), conv.Attribute("pads").Type)
	assert.Nil(t, conv.Attribute("group"))

	bn := m.Graph.Nodes[3]
	assert.InDelta(t, 1e-3, bn.Attribute("epsilon").F, 1e-9)

	dims := m.Graph.Initializers[0]
	assert.Equal(t, []int64{2, 3, 3, 3}, dims.Dims)
	scale := m.Graph.Initializers[2]
	assert.Equal(t, []int64{2}, scale.Dims, "unpacked dims are accepted")
	assert.Equal(t, []float32{1, 2}, scale.FloatData)
}

func TestParseRejectsDamagedInput(t *testing.T) {
	data := featureModel()

	_, err := onnx.Parse(data[:len(data)-3])
	assert.ErrorIs(t, err, onnx.ErrMalformed)

	// ir_version encoded as a length-delimited field.
	_, err = onnx.Parse(appendString(nil, 1, "seven"))
	assert.ErrorIs(t, err, onnx.ErrMalformed)

	_, err = onnx.Parse([]byte{0xff})
	assert.ErrorIs(t, err, onnx.ErrMalformed)
}

func TestParseSkipsUnknownFields(t *testing.T) {
	data := appendString(nil, 6, "doc string")
	data = appendVarint(data, 99, 12345)
	data = append(data, appendVarint(nil, 1, 9)...)

	m, err := onnx.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, int64(9), m.IRVersion)
	assert.Nil(t, m.Graph)
}

func TestImportFeatureNetwork(t *testing.T) {
	backend := autodiff.New(cpu.New())
	m, err := onnx.Parse(featureModel())
	require.NoError(t, err)

	net, err := onnx.Import(m, backend)
	require.NoError(t, err)

	assert.Equal(t, []string{"conv_1", "relu_1", "pool_1", "bn_1", "conv_2", "relu_2"}, features.StageNames(net),
		"dropout is skipped and the head is dropped")

	conv := net.Module(0).(*nn.Conv2D[Backend])
	assert.Equal(t, 3, conv.InChannels())
	assert.Equal(t, 2, conv.OutChannels())
	assert.Equal(t, ramp(54, 0.01), conv.Weight().Tensor().Data())
	assert.Equal(t, []float32{0.5, -0.5}, conv.Bias().Tensor().Data())
	assert.Nil(t, net.Module(4).(*nn.Conv2D[Backend]).Bias())

	bn := net.Module(3).(*nn.BatchNorm2D[Backend])
	state := bn.StateDict()
	assert.Equal(t, []float32{1, 2}, state["weight"].Data())
	assert.Equal(t, []float32{1, 4}, state["running_var"].Data())
	assert.Contains(t, bn.String(), "eps=0.001")

	out := net.Forward(tensor.Zeros(tensor.Shape{1, 3, 8, 8}, backend))
	assert.Equal(t, tensor.Shape{1, 2, 4, 4}, out.Shape())
}

func TestImportOpaqueStages(t *testing.T) {
	backend := autodiff.New(cpu.New())
	nodes := [][]byte{
		node("Conv", []string{"input", "w"}, []string{"a"}, intAttr("group", 3)),
		node("Softmax", []string{"a"}, []string{"b"}),
		node("MaxPool", []string{"b"}, []string{"c"},
			intsAttr("kernel_shape", 3, 3), intsAttr("pads", 1, 1, 1, 1)),
		node("Relu", []string{"c"}, []string{"output"}),
	}
	inits := [][]byte{rawTensor("w", ramp(3*1*3*3, 1), 3, 1, 3, 3)}

	m, err := onnx.Parse(model(nodes, inits))
	require.NoError(t, err)
	net, err := onnx.Import(m, backend)
	require.NoError(t, err)

	require.Equal(t, 4, net.Len())
	for i, op := range []string{"Conv", "Softmax", "MaxPool"} {
		opaque, ok := net.Module(i).(*nn.Opaque[Backend])
		require.True(t, ok, "stage %d", i)
		assert.Equal(t, op, opaque.Op())
	}
	assert.Equal(t, []string{"", "", "", "relu_0"}, features.StageNames(net))
}

func TestImportErrors(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tests := []struct {
		name  string
		nodes [][]byte
		inits [][]byte
		want  error
	}{
		{
			name:  "missing weight",
			nodes: [][]byte{node("Conv", []string{"input", "w"}, []string{"output"})},
			want:  onnx.ErrMalformed,
		},
		{
			name:  "weight of wrong size",
			nodes: [][]byte{node("Conv", []string{"input", "w"}, []string{"output"})},
			inits: [][]byte{rawTensor("w", ramp(3, 1), 2, 3, 3, 3)},
			want:  onnx.ErrMalformed,
		},
		{
			name: "branching graph",
			nodes: [][]byte{
				node("Relu", []string{"input"}, []string{"a"}),
				node("Relu", []string{"input"}, []string{"output"}),
			},
			want: onnx.ErrUnsupported,
		},
		{
			name: "batchnorm without statistics",
			nodes: [][]byte{
				node("BatchNormalization", []string{"input", "scale"}, []string{"output"}),
			},
			inits: [][]byte{floatTensor("scale", []float32{1}, 1)},
			want:  onnx.ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := onnx.Parse(model(tt.nodes, tt.inits))
			require.NoError(t, err)
			_, err = onnx.Import(m, backend)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := onnx.Import(&onnx.ModelProto{}, backend)
	assert.ErrorIs(t, err, onnx.ErrMalformed)
}

func TestTensorDecoding(t *testing.T) {
	doubles := &onnx.TensorProto{
		Name:       "d",
		DataType:   onnx.TensorProtoDouble,
		Dims:       []int64{2},
		DoubleData: []float64{1.5, -2},
	}
	values, err := doubles.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2}, values)

	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, math.Float64bits(0.25))
	scalar := &onnx.TensorProto{Name: "s", DataType: onnx.TensorProtoDouble, RawData: raw}
	values, err = scalar.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25}, values)

	ints := &onnx.TensorProto{Name: "i", DataType: onnx.TensorProtoInt64, Dims: []int64{1}}
	_, err = ints.Float32s()
	assert.ErrorIs(t, err, onnx.ErrUnsupported)

	negative := &onnx.TensorProto{Name: "n", DataType: onnx.TensorProtoFloat, Dims: []int64{-1}}
	_, err = negative.Raw()
	assert.ErrorIs(t, err, onnx.ErrMalformed)
}

func TestLoadFile(t *testing.T) {
	backend := autodiff.New(cpu.New())
	path := filepath.Join(t.TempDir(), "features.onnx")
	require.NoError(t, os.WriteFile(path, featureModel(), 0o600))

	net, err := onnx.Load(path, backend)
	require.NoError(t, err)
	assert.Equal(t, 6, net.Len())

	_, err = onnx.Load(filepath.Join(t.TempDir(), "missing.onnx"), backend)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
