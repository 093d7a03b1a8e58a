// Package config holds the settings of a style transfer run and loads them
// from YAML files.
//
// A file only needs the keys it changes; everything else keeps the value
// from Default:
//
//	style: images/starry.jpg
//	content: images/dancer.jpg
//	size: 256
//	steps: 300
//	network:
//	  arch: vgg19
//	  weights: models/vgg19.safetensors
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/born-ml/stylize/internal/features"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/style"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for configurations that cannot describe a run.
var ErrInvalid = errors.New("config: invalid configuration")

// NoiseInput selects a standard normal starting image instead of a file.
const NoiseInput = "noise"

// Devices a run can execute on.
const (
	DeviceCPU    = "cpu"
	DeviceWebGPU = "webgpu"
)

// Config describes one style transfer run.
type Config struct {
	Size    int    `yaml:"size"`    // shorter image side in pixels; 0 keeps native size
	Style   string `yaml:"style"`   // style image path
	Content string `yaml:"content"` // content image path
	Input   string `yaml:"input"`   // starting image path, "noise", or empty for the content image
	Output  string `yaml:"output"`  // result path (.png, .jpg, .jpeg)

	Steps         int      `yaml:"steps"`
	StyleWeight   float64  `yaml:"style_weight"`
	ContentWeight float64  `yaml:"content_weight"`
	ContentLayers []string `yaml:"content_layers"`
	StyleLayers   []string `yaml:"style_layers"`

	Device      string `yaml:"device"`
	Seed        int64  `yaml:"seed"`
	ReportEvery int    `yaml:"report_every"`
	Snapshots   string `yaml:"snapshots"` // directory for progress snapshots; empty disables them

	Optimizer     Optimizer     `yaml:"optimizer"`
	Network       Network       `yaml:"network"`
	Normalization Normalization `yaml:"normalization"`
}

// Optimizer selects and tunes the optimizer.
type Optimizer struct {
	Name       string  `yaml:"name"` // lbfgs, adam or sgd
	LR         float64 `yaml:"lr"`   // 0 selects the optimizer's default
	MaxIter    int     `yaml:"max_iter"`
	History    int     `yaml:"history"`
	LineSearch string  `yaml:"line_search"` // lbfgs only: none or strong_wolfe
	Momentum   float64 `yaml:"momentum"`    // sgd only
}

// Network selects the feature network.
type Network struct {
	Arch    string `yaml:"arch"`    // vgg11, vgg13, vgg16, vgg19, optionally with _bn
	Weights string `yaml:"weights"` // safetensors checkpoint for Arch
	ONNX    string `yaml:"onnx"`    // imported network; overrides Arch and Weights

	// Layers describes a custom VGG-style network ("64", "M", "128", ...)
	// and overrides Arch.
	Layers []string `yaml:"layers,omitempty"`
}

// Normalization is the per-channel statistics the network was trained with.
type Normalization struct {
	Mean []float32 `yaml:"mean"`
	Std  []float32 `yaml:"std"`
}

// Default returns the settings of the reference run: VGG-19, content at
// conv_4, style at conv_1 through conv_5, 300 L-BFGS evaluations.
func Default() *Config {
	return &Config{
		Size:          128,
		Output:        "output/output.jpg",
		Steps:         300,
		StyleWeight:   style.DefaultStyleWeight,
		ContentWeight: style.DefaultContentWeight,
		ContentLayers: []string{"conv_4"},
		StyleLayers:   []string{"conv_1", "conv_2", "conv_3", "conv_4", "conv_5"},
		Device:        DeviceCPU,
		ReportEvery:   style.DefaultReportEvery,
		Optimizer:     Optimizer{Name: "lbfgs"},
		Network:       Network{Arch: "vgg19"},
		Normalization: Normalization{
			Mean: slices.Clone(nn.ImageNetMean[:]),
			Std:  slices.Clone(nn.ImageNetStd[:]),
		},
	}
}

// Load reads a YAML file over Default and validates the result.
//
//nolint:gosec // G304: path comes from the command line
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks the settings that do not depend on the filesystem.
// Image paths are checked when they are opened.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Size < 0 {
		add("size %d is negative", c.Size)
	}
	if c.Steps < 0 {
		add("steps %d is negative", c.Steps)
	}
	if c.StyleWeight < 0 || c.ContentWeight < 0 {
		add("weights must not be negative (style %g, content %g)", c.StyleWeight, c.ContentWeight)
	}
	if len(c.ContentLayers)+len(c.StyleLayers) == 0 {
		add("no content or style layers")
	}
	if c.ReportEvery < 0 {
		add("report_every %d is negative", c.ReportEvery)
	}
	if c.Device != DeviceCPU && c.Device != DeviceWebGPU {
		add("unknown device %q", c.Device)
	}
	if c.Output == "" {
		add("no output path")
	}
	if _, err := optim.New(c.Optimizer.Options()); err != nil {
		add("optimizer: %v", err)
	}
	switch {
	case c.Network.ONNX != "":
	case len(c.Network.Layers) > 0:
		if _, err := features.ParseConfig(c.Network.Layers); err != nil {
			add("network layers: %v", err)
		}
	case !slices.Contains(features.Architectures(), c.Network.Arch):
		add("unknown architecture %q", c.Network.Arch)
	}
	if len(c.Normalization.Mean) != 3 || len(c.Normalization.Std) != 3 {
		add("normalization needs three means and three deviations")
	}
	for _, s := range c.Normalization.Std {
		if s <= 0 {
			add("normalization std %g is not positive", s)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Options converts the block to optimizer options.
func (o Optimizer) Options() optim.Config {
	return optim.Config{
		Name:       o.Name,
		LR:         o.LR,
		MaxIter:    o.MaxIter,
		History:    o.History,
		LineSearch: o.LineSearch,
		Momentum:   o.Momentum,
	}
}
