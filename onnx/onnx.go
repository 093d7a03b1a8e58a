// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package onnx imports convolutional feature networks from ONNX files.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net, err := onnx.Load("vgg19.onnx", backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
package onnx

import (
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/onnx"
	"github.com/born-ml/stylize/internal/tensor"
)

// ModelProto is a decoded ONNX model.
type ModelProto = onnx.ModelProto

// Errors returned by the importer.
var (
	ErrMalformed   = onnx.ErrMalformed
	ErrUnsupported = onnx.ErrUnsupported
)

// Parse decodes an ONNX model.
func Parse(data []byte) (*ModelProto, error) {
	return onnx.Parse(data)
}

// ParseFile reads and decodes the ONNX model at path.
func ParseFile(path string) (*ModelProto, error) {
	return onnx.ParseFile(path)
}

// Load parses the file at path and imports its feature network.
func Load[B tensor.Backend](path string, backend B) (*nn.Sequential[B], error) {
	return onnx.Load(path, backend)
}

// Import rebuilds a parsed model as a sequential network.
func Import[B tensor.Backend](model *ModelProto, backend B) (*nn.Sequential[B], error) {
	return onnx.Import(model, backend)
}
