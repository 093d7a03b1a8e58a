package main

import (
	"flag"
	"strings"

	"github.com/born-ml/stylize/internal/config"
)

// listValue is a comma separated string list flag.
type listValue struct {
	list *[]string
}

func (l listValue) String() string {
	if l.list == nil {
		return ""
	}
	return strings.Join(*l.list, ",")
}

func (l listValue) Set(s string) error {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*l.list = items
	return nil
}

// overrides copies the field behind each flag from the flag values into a
// loaded configuration.
var overrides = map[string]func(dst, src *config.Config){
	"size":           func(d, s *config.Config) { d.Size = s.Size },
	"style":          func(d, s *config.Config) { d.Style = s.Style },
	"content":        func(d, s *config.Config) { d.Content = s.Content },
	"input":          func(d, s *config.Config) { d.Input = s.Input },
	"output":         func(d, s *config.Config) { d.Output = s.Output },
	"steps":          func(d, s *config.Config) { d.Steps = s.Steps },
	"style-weight":   func(d, s *config.Config) { d.StyleWeight = s.StyleWeight },
	"content-weight": func(d, s *config.Config) { d.ContentWeight = s.ContentWeight },
	"content-layers": func(d, s *config.Config) { d.ContentLayers = s.ContentLayers },
	"style-layers":   func(d, s *config.Config) { d.StyleLayers = s.StyleLayers },
	"device":         func(d, s *config.Config) { d.Device = s.Device },
	"seed":           func(d, s *config.Config) { d.Seed = s.Seed },
	"report-every":   func(d, s *config.Config) { d.ReportEvery = s.ReportEvery },
	"snapshots":      func(d, s *config.Config) { d.Snapshots = s.Snapshots },
	"optimizer":      func(d, s *config.Config) { d.Optimizer.Name = s.Optimizer.Name },
	"line-search":    func(d, s *config.Config) { d.Optimizer.LineSearch = s.Optimizer.LineSearch },
	"lr":             func(d, s *config.Config) { d.Optimizer.LR = s.Optimizer.LR },
	"arch":           func(d, s *config.Config) { d.Network.Arch = s.Network.Arch },
	"weights":        func(d, s *config.Config) { d.Network.Weights = s.Network.Weights },
	"onnx":           func(d, s *config.Config) { d.Network.ONNX = s.Network.ONNX },
}

// bindNetworkFlags registers the flags that choose the feature network.
func bindNetworkFlags(fs *flag.FlagSet, c *config.Config) {
	fs.StringVar(&c.Network.Arch, "arch", c.Network.Arch, "network architecture (vgg11..vgg19, optional _bn suffix)")
	fs.StringVar(&c.Network.Weights, "weights", c.Network.Weights, "safetensors checkpoint for -arch")
	fs.StringVar(&c.Network.ONNX, "onnx", c.Network.ONNX, "import the network from an ONNX file instead of -arch")
	fs.StringVar(&c.Device, "device", c.Device, "compute device: cpu or webgpu")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "seed for weight initialization and noise input")
}

// bindRunFlags registers the flags of the run command.
func bindRunFlags(fs *flag.FlagSet, c *config.Config) {
	fs.IntVar(&c.Size, "size", c.Size, "shorter image side in pixels (0 keeps the native size)")
	fs.StringVar(&c.Style, "style", c.Style, "style image path")
	fs.StringVar(&c.Content, "content", c.Content, "content image path")
	fs.StringVar(&c.Input, "input", c.Input, "starting image path, or 'noise' (default: the content image)")
	fs.StringVar(&c.Output, "output", c.Output, "output image path (.png, .jpg)")
	fs.IntVar(&c.Steps, "steps", c.Steps, "objective evaluations to spend")
	fs.Float64Var(&c.StyleWeight, "style-weight", c.StyleWeight, "style loss weight")
	fs.Float64Var(&c.ContentWeight, "content-weight", c.ContentWeight, "content loss weight")
	fs.Var(listValue{&c.ContentLayers}, "content-layers", "comma separated content layers")
	fs.Var(listValue{&c.StyleLayers}, "style-layers", "comma separated style layers")
	fs.IntVar(&c.ReportEvery, "report-every", c.ReportEvery, "progress interval in evaluations (0 disables)")
	fs.StringVar(&c.Snapshots, "snapshots", c.Snapshots, "directory for progress snapshots")
	fs.StringVar(&c.Optimizer.Name, "optimizer", c.Optimizer.Name, "optimizer: lbfgs, adam or sgd")
	fs.StringVar(&c.Optimizer.LineSearch, "line-search", c.Optimizer.LineSearch, "L-BFGS line search: none or strong_wolfe")
	fs.Float64Var(&c.Optimizer.LR, "lr", c.Optimizer.LR, "learning rate (0 uses the optimizer's default)")
	bindNetworkFlags(fs, c)
}

// resolve loads the file at path (or the defaults) and applies every flag
// that was set on the command line.
func resolve(fs *flag.FlagSet, flags *config.Config, path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		if set, ok := overrides[f.Name]; ok {
			set(cfg, flags)
		}
	})
	return cfg, nil
}
