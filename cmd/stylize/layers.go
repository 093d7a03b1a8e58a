package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/born-ml/stylize/internal/config"
	"github.com/born-ml/stylize/internal/features"
	"github.com/born-ml/stylize/internal/imageio"
	"github.com/born-ml/stylize/internal/tensor"
)

// layersCommand prints the stages of the configured network with the names
// accepted by -content-layers and -style-layers. With -image it also runs
// the image through the network and prints each stage's activation shape.
func layersCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("layers", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file; flags override its values")
	imagePath := fs.String("image", "", "image to report activation shapes for")
	flags := config.Default()
	bindNetworkFlags(fs, flags)
	fs.IntVar(&flags.Size, "size", flags.Size, "shorter image side in pixels (0 keeps the native size)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := resolve(fs, flags, *configPath)
	if err != nil {
		return err
	}
	quiet := slog.New(slog.DiscardHandler)
	backend, release, err := newBackend(config.DeviceCPU, quiet)
	if err != nil {
		return err
	}
	defer release()

	// Names and shapes depend only on structure, so weights are not loaded.
	cfg.Network.Weights = ""
	net, norm, err := loadNetwork(cfg, backend, quiet)
	if err != nil {
		return err
	}
	ext := features.NewExtractor(net, norm)

	var shapes map[string]*tensor.Tensor[Backend]
	if *imagePath != "" {
		img, err := imageio.Load(*imagePath, cfg.Size, backend)
		if err != nil {
			return err
		}
		shapes = map[string]*tensor.Tensor[Backend]{}
		if names := evaluable(ext.Stages()); len(names) > 0 {
			if shapes, err = ext.Forward(img, names...); err != nil {
				return err
			}
		}
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	header := "INDEX\tNAME\tKIND\tMODULE"
	if shapes != nil {
		header += "\tSHAPE"
	}
	fmt.Fprintln(w, header)
	for _, s := range ext.Stages() {
		name := s.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s", s.Index, name, s.Kind, s.Desc)
		if shapes != nil {
			shape := "-"
			if act, ok := shapes[s.Name]; ok && s.Name != "" {
				shape = fmt.Sprint(act.Shape())
			}
			fmt.Fprintf(w, "\t%s", shape)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

// evaluable returns the names of the stages before the first unsupported one.
func evaluable(stages []features.Stage) []string {
	var names []string
	for _, s := range stages {
		if s.Kind == features.Unsupported {
			break
		}
		names = append(names, s.Name)
	}
	return names
}
