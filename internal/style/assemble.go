package style

import (
	"fmt"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/features"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// Model is a feature network instrumented with loss taps.
//
// Net starts with the normalization stage, continues with copies of the
// network's stages under their derived names (conv_i, relu_i, ...) with
// content_loss_i and style_loss_i taps spliced in, and ends right after
// the last tap.
type Model[B tensor.Backend] struct {
	// Shape is the shape of the content image the targets were captured
	// from; Run only accepts candidates of this shape.
	Shape tensor.Shape

	Net           *nn.Sequential[B]
	StyleLosses   []*StyleLoss[B]
	ContentLosses []*ContentLoss[B]
}

// Forward runs x through the network, refreshing every tap's loss.
func (m *Model[B]) Forward(x *tensor.Tensor[B]) {
	m.Net.Forward(x)
}

// Scores returns the sums of the style and content losses of the last
// Forward. A kind of loss with no taps scores a constant zero.
func (m *Model[B]) Scores(backend B) (styleScore, contentScore *tensor.Tensor[B]) {
	styleScore = tensor.Zeros(tensor.Shape{}, backend)
	for _, l := range m.StyleLosses {
		styleScore = styleScore.Add(l.Loss())
	}
	contentScore = tensor.Zeros(tensor.Shape{}, backend)
	for _, l := range m.ContentLosses {
		contentScore = contentScore.Add(l.Loss())
	}
	return styleScore, contentScore
}

// Assemble builds a Model from a frozen network.
//
// The network is deep-copied and never modified. Its stages are walked in
// order behind norm; in-place activations are replaced with allocating
// ones. After a stage whose derived name is in contentLayers, the content
// image is run through the sequence built so far (without recording
// gradients) and a ContentLoss on that activation is appended; likewise
// for styleLayers with the style image and a StyleLoss. The sequence is
// trimmed right after the last tap.
//
// Assemble fails with ErrRank or ErrShapeMismatch for malformed images,
// ErrUnsupportedStage if any stage is not a convolution, nonlinearity,
// pooling or batch norm, and ErrUnknownLayer if a requested layer is never
// reached.
func Assemble[B autodiff.BackwardCapable](
	net *nn.Sequential[B],
	norm *nn.Normalization[B],
	styleImg, contentImg *tensor.Tensor[B],
	contentLayers, styleLayers []string,
) (*Model[B], error) {
	ss, cs := styleImg.Shape(), contentImg.Shape()
	if len(ss) != 4 || len(cs) != 4 {
		return nil, fmt.Errorf("style: images %v and %v: %w", ss, cs, ErrRank)
	}
	if ss[2] != cs[2] || ss[3] != cs[3] {
		return nil, fmt.Errorf("style: style %dx%d, content %dx%d: %w", ss[2], ss[3], cs[2], cs[3], ErrShapeMismatch)
	}
	if len(contentLayers) == 0 && len(styleLayers) == 0 {
		return nil, fmt.Errorf("style: no content or style layers requested")
	}

	backend := contentImg.Backend()
	wantContent := layerSet(contentLayers)
	wantStyle := layerSet(styleLayers)

	work := net.Copy()
	model := &Model[B]{Shape: cs.Clone(), Net: nn.NewSequential[B]()}
	model.Net.AddNamed("normalization", norm)
	keep := 0

	var namer features.Namer
	for i := 0; i < work.Len(); i++ {
		stage := work.Module(i)
		kind := features.Classify(stage)
		if kind == features.Unsupported {
			return nil, fmt.Errorf("style: stage %d (%s) of kind %s: %w", i, work.Name(i), stage.Kind(), ErrUnsupportedStage)
		}
		name := namer.Next(kind)
		model.Net.AddNamed(name, features.WithoutInPlace(stage))

		if _, ok := wantContent[name]; ok {
			wantContent[name] = true
			var target *tensor.Tensor[B]
			autodiff.NoGrad(backend, func() {
				target = model.Net.Forward(contentImg)
			})
			loss, err := NewContentLoss(target)
			if err != nil {
				return nil, err
			}
			model.Net.AddNamed(fmt.Sprintf("content_loss_%d", namer.Convolutions()), loss)
			model.ContentLosses = append(model.ContentLosses, loss)
			keep = model.Net.Len()
		}

		if _, ok := wantStyle[name]; ok {
			wantStyle[name] = true
			var target *tensor.Tensor[B]
			autodiff.NoGrad(backend, func() {
				target = model.Net.Forward(styleImg)
			})
			loss, err := NewStyleLoss(target)
			if err != nil {
				return nil, err
			}
			model.Net.AddNamed(fmt.Sprintf("style_loss_%d", namer.Convolutions()), loss)
			model.StyleLosses = append(model.StyleLosses, loss)
			keep = model.Net.Len()
		}
	}

	for _, name := range contentLayers {
		if !wantContent[name] {
			return nil, fmt.Errorf("style: content layer %q: %w", name, ErrUnknownLayer)
		}
	}
	for _, name := range styleLayers {
		if !wantStyle[name] {
			return nil, fmt.Errorf("style: style layer %q: %w", name, ErrUnknownLayer)
		}
	}

	model.Net.Truncate(keep)
	return model, nil
}

func layerSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = false
	}
	return set
}
