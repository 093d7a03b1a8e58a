package weights

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// checkpointPrefixes are stripped from checkpoint keys, outermost first.
// torchvision saves VGG feature weights as "features.N.weight"; wrapped
// models add "module." (DataParallel) or "model.".
var checkpointPrefixes = []string{"module.", "model.", "features."}

// MapName maps a checkpoint key onto a feature network key ("N.weight").
// Keys outside the feature stack (classifier, metadata) report false.
func MapName(name string) (string, bool) {
	for _, prefix := range checkpointPrefixes {
		name = strings.TrimPrefix(name, prefix)
	}
	stage, _, ok := strings.Cut(name, ".")
	if !ok {
		return "", false
	}
	for _, r := range stage {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return name, true
}

// LoadInto copies the weights of a checkpoint into net. Every tensor of
// every stateful stage must be present (ErrMissingTensor otherwise) with a
// matching shape. Checkpoint tensors that net does not use are logged at
// debug level and ignored.
func LoadInto[B tensor.Backend](net *nn.Sequential[B], path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r, err := Open(path)
	if err != nil {
		return err
	}

	wanted := net.StateDict()
	state := make(map[string]*tensor.RawTensor, len(wanted))
	for _, name := range r.Names() {
		key, ok := MapName(name)
		if _, used := wanted[key]; !ok || !used {
			logger.Debug("skipping checkpoint tensor", "name", name)
			continue
		}
		raw, err := r.Tensor(name)
		if err != nil {
			return fmt.Errorf("weights: %s: %w", path, err)
		}
		state[key] = raw
	}

	for key := range wanted {
		if _, ok := state[key]; !ok {
			return fmt.Errorf("weights: %s: %w: %s", path, ErrMissingTensor, key)
		}
	}
	if err := net.LoadStateDict(state); err != nil {
		return fmt.Errorf("weights: %s: %w", path, err)
	}
	logger.Info("loaded weights", "path", path, "tensors", len(state))
	return nil
}
