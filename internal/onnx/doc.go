// Package onnx imports convolutional feature networks from .onnx files.
//
// The decoder reads the subset of the ONNX protobuf schema needed to
// rebuild a linear network: the graph's nodes, their attributes and the
// float initializers holding weights. Messages are decoded field by field
// with protowire; no generated code is involved.
//
// Import walks the nodes in order and maps them onto nn stages:
//   - Conv              -> nn.Conv2D (square kernel, uniform stride and padding, group 1)
//   - Relu              -> nn.ReLU
//   - MaxPool           -> nn.MaxPool2D (square kernel, no padding)
//   - BatchNormalization -> nn.BatchNorm2D
//   - Identity, Dropout -> skipped
//
// The walk stops at the classifier head (Flatten, Gemm, Reshape,
// GlobalAveragePool). Any other operator becomes an nn.Opaque stage, which
// the style transfer assembler rejects if it is reached.
//
// Example usage:
//
//	net, err := onnx.Load("vgg19.onnx", backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(features.StageNames(net))
package onnx
