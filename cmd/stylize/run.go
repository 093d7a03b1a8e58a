package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/born-ml/stylize/internal/config"
	"github.com/born-ml/stylize/internal/imageio"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/style"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/google/uuid"
)

func runCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file; flags override its values")
	interactive := fs.Bool("interactive", false, "prompt for settings the flags leave open")
	verbose := fs.Bool("v", false, "log every evaluation")
	flags := config.Default()
	bindRunFlags(fs, flags)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := resolve(fs, flags, *configPath)
	if err != nil {
		return err
	}
	if *interactive {
		set := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if err := newPrompter(stdin, stdout).complete(cfg, set); err != nil {
			return fmt.Errorf("prompt: %w", err)
		}
	}
	if cfg.Style == "" || cfg.Content == "" {
		return fmt.Errorf("%w: -style and -content are required", errMissingImage)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return transfer(cfg, newLogger(stderr, *verbose))
}

// transfer performs one style transfer run and saves the result.
func transfer(cfg *config.Config, logger *slog.Logger) error {
	backend, release, err := newBackend(cfg.Device, logger)
	if err != nil {
		return err
	}
	defer release()

	styleImg, err := imageio.Load(cfg.Style, cfg.Size, backend)
	if err != nil {
		return err
	}
	contentImg, err := imageio.Load(cfg.Content, cfg.Size, backend)
	if err != nil {
		return err
	}
	input, err := startingImage(cfg, contentImg)
	if err != nil {
		return err
	}

	net, norm, err := loadNetwork(cfg, backend, logger)
	if err != nil {
		return err
	}
	model, err := style.Assemble(net, norm, styleImg, contentImg, cfg.ContentLayers, cfg.StyleLayers)
	if err != nil {
		return err
	}
	opt, err := optim.New(cfg.Optimizer.Options())
	if err != nil {
		return err
	}

	runCfg := style.Config{
		MaxSteps:      cfg.Steps,
		StyleWeight:   cfg.StyleWeight,
		ContentWeight: cfg.ContentWeight,
		Optimizer:     opt,
		ReportEvery:   cfg.ReportEvery,
		Logger:        logger,
		RunID:         uuid.NewString(),
	}
	if cfg.Snapshots != "" {
		runCfg.Observer = snapshotter(cfg.Snapshots, logger)
	}

	start := time.Now()
	output, state, err := style.Run(model, input, runCfg)
	if err != nil {
		return err
	}
	if err := imageio.Save(cfg.Output, output.Raw()); err != nil {
		return err
	}
	logger.Info("saved result",
		"run", state.RunID,
		"path", cfg.Output,
		"evaluations", state.Evaluations,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// startingImage returns the candidate's initial value: a copy of the
// content image, seeded noise, or another image file.
func startingImage(cfg *config.Config, content *tensor.Tensor[Backend]) (*tensor.Tensor[Backend], error) {
	switch cfg.Input {
	case "":
		return content.Clone(), nil
	case config.NoiseInput:
		return imageio.Noise(content.Shape(), cfg.Seed, content.Backend()), nil
	default:
		return imageio.Load(cfg.Input, cfg.Size, content.Backend())
	}
}

// snapshotName is the file a snapshot of run at evaluation is saved to.
func snapshotName(runID string, evaluation int) string {
	return fmt.Sprintf("snap-%s-%d.png", runID, evaluation)
}

// snapshotter returns an observer saving each reported candidate into dir.
// Failures are logged and do not stop the run.
func snapshotter(dir string, logger *slog.Logger) style.Observer {
	return func(state style.State, image *tensor.RawTensor) {
		path := filepath.Join(dir, snapshotName(state.RunID, state.Evaluations))
		if err := imageio.Save(path, image); err != nil {
			logger.Warn("snapshot failed", "path", path, "err", err)
			return
		}
		logger.Debug("saved snapshot", "path", path)
	}
}
