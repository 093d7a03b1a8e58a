package onnx

import (
	"errors"
	"fmt"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// Errors returned by the importer.
var (
	ErrMalformed   = errors.New("onnx: malformed model")
	ErrUnsupported = errors.New("onnx: unsupported model")
)

// defaultEpsilon is BatchNormalization's epsilon when the attribute is absent.
const defaultEpsilon = 1e-5

// headOps end the feature network. Everything from the first of them on is
// dropped.
var headOps = map[string]bool{
	"Flatten":           true,
	"Gemm":              true,
	"MatMul":            true,
	"Reshape":           true,
	"GlobalAveragePool": true,
}

// passOps forward their input unchanged at inference time.
var passOps = map[string]bool{
	"Identity": true,
	"Dropout":  true,
}

// Load parses the file at path and imports its feature network.
func Load[B tensor.Backend](path string, backend B) (*nn.Sequential[B], error) {
	model, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	net, err := Import(model, backend)
	if err != nil {
		return nil, fmt.Errorf("onnx: import %s: %w", path, err)
	}
	return net, nil
}

// Import rebuilds model's graph as a sequential network.
//
// The graph must be a chain: every imported node consumes the previous
// node's first output. Stages are named by index like a torchvision
// features block.
func Import[B tensor.Backend](model *ModelProto, backend B) (*nn.Sequential[B], error) {
	if model == nil || model.Graph == nil {
		return nil, fmt.Errorf("%w: no graph", ErrMalformed)
	}
	g := model.Graph

	inits := make(map[string]*TensorProto, len(g.Initializers))
	for i := range g.Initializers {
		inits[g.Initializers[i].Name] = &g.Initializers[i]
	}

	current := ""
	for _, name := range g.Inputs {
		if _, ok := inits[name]; !ok {
			current = name
			break
		}
	}

	net := nn.NewSequential[B]()
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if headOps[node.OpType] {
			break
		}
		if len(node.Inputs) == 0 || len(node.Outputs) == 0 {
			return nil, fmt.Errorf("%w: node %d (%s) has no inputs or outputs", ErrMalformed, i, node.OpType)
		}
		if current != "" && node.Inputs[0] != current {
			return nil, fmt.Errorf("%w: node %d (%s) reads %q, not the previous output %q",
				ErrUnsupported, i, node.OpType, node.Inputs[0], current)
		}
		current = node.Outputs[0]

		if passOps[node.OpType] {
			continue
		}
		module, err := importNode(node, inits, backend)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, node.OpType, err)
		}
		net.Add(module)
	}
	return net, nil
}

func importNode[B tensor.Backend](node *NodeProto, inits map[string]*TensorProto, backend B) (nn.Module[B], error) {
	switch node.OpType {
	case "Conv":
		return importConv(node, inits, backend)
	case "Relu":
		return nn.NewReLU[B](), nil
	case "MaxPool":
		return importMaxPool[B](node, backend), nil
	case "BatchNormalization":
		return importBatchNorm(node, inits, backend)
	default:
		return nn.NewOpaque[B](node.OpType), nil
	}
}

func importConv[B tensor.Backend](node *NodeProto, inits map[string]*TensorProto, backend B) (nn.Module[B], error) {
	weight, err := initializer(node, 1, inits)
	if err != nil {
		return nil, err
	}
	shape := weight.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: conv weight of shape %v", ErrMalformed, shape)
	}

	var bias *tensor.RawTensor
	if len(node.Inputs) > 2 && node.Inputs[2] != "" {
		if bias, err = initializer(node, 2, inits); err != nil {
			return nil, err
		}
	}

	if ints(node, "group", 1)[0] != 1 || !uniform(ints(node, "dilations", 1), 1) || !explicitPadding(node) {
		return nn.NewOpaque[B](node.OpType), nil
	}
	strides := ints(node, "strides", 1)
	pads := ints(node, "pads", 0)
	if !uniform(strides, strides[0]) || !uniform(pads, pads[0]) {
		return nn.NewOpaque[B](node.OpType), nil
	}

	conv := nn.NewConv2D(shape[1], shape[0], shape[2], shape[3],
		int(strides[0]), int(pads[0]), bias != nil, nil, backend)
	state := map[string]*tensor.RawTensor{"weight": weight}
	if bias != nil {
		state["bias"] = bias
	}
	if err := conv.LoadStateDict(state); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return conv, nil
}

func importMaxPool[B tensor.Backend](node *NodeProto, backend B) nn.Module[B] {
	kernel := ints(node, "kernel_shape", 0)
	if len(kernel) != 2 || kernel[0] != kernel[1] || kernel[0] <= 0 {
		return nn.NewOpaque[B](node.OpType)
	}
	strides := ints(node, "strides", 1)
	if !uniform(strides, strides[0]) ||
		!uniform(ints(node, "pads", 0), 0) ||
		!uniform(ints(node, "dilations", 1), 1) ||
		ints(node, "ceil_mode", 0)[0] != 0 ||
		!explicitPadding(node) {
		return nn.NewOpaque[B](node.OpType)
	}
	return nn.NewMaxPool2D(int(kernel[0]), int(strides[0]), backend)
}

func importBatchNorm[B tensor.Backend](node *NodeProto, inits map[string]*TensorProto, backend B) (nn.Module[B], error) {
	names := []string{"weight", "bias", "running_mean", "running_var"}
	state := make(map[string]*tensor.RawTensor, len(names))
	for i, name := range names {
		raw, err := initializer(node, i+1, inits)
		if err != nil {
			return nil, err
		}
		state[name] = raw
	}

	eps := float32(defaultEpsilon)
	if attr := node.Attribute("epsilon"); attr != nil {
		eps = attr.F
	}
	bn := nn.NewBatchNorm2D(state["weight"].Shape().NumElements(), eps, backend)
	if err := bn.LoadStateDict(state); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return bn, nil
}

// initializer decodes the constant feeding node's i-th input.
func initializer(node *NodeProto, i int, inits map[string]*TensorProto) (*tensor.RawTensor, error) {
	if i >= len(node.Inputs) {
		return nil, fmt.Errorf("%w: input %d missing", ErrMalformed, i)
	}
	t, ok := inits[node.Inputs[i]]
	if !ok {
		return nil, fmt.Errorf("%w: input %q is not an initializer", ErrMalformed, node.Inputs[i])
	}
	return t.Raw()
}

// ints returns an INT or INTS attribute as a slice, or []int64{def} when
// absent.
func ints(node *NodeProto, name string, def int64) []int64 {
	attr := node.Attribute(name)
	switch {
	case attr == nil:
		return []int64{def}
	case len(attr.Ints) > 0:
		return attr.Ints
	default:
		return []int64{attr.I}
	}
}

func uniform(values []int64, want int64) bool {
	for _, v := range values {
		if v != want {
			return false
		}
	}
	return true
}

// explicitPadding reports whether auto_pad is unset.
func explicitPadding(node *NodeProto) bool {
	attr := node.Attribute("auto_pad")
	return attr == nil || len(attr.S) == 0 || string(attr.S) == "NOTSET"
}
