// Package imageio converts between image files and [1,3,H,W] tensors with
// values in [0,1].
//
// PNG, JPEG and GIF decoding come from the standard library; BMP and WebP
// are registered from golang.org/x/image. Resizing uses Catmull-Rom
// resampling from golang.org/x/image/draw.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// JPEGQuality is the quality used when saving .jpg and .jpeg files.
const JPEGQuality = 95

// Errors returned by this package.
var (
	ErrFormat = errors.New("imageio: unsupported image format")
	ErrShape  = errors.New("imageio: tensor is not a [1,3,H,W] image")
)

// Load reads and decodes the image at path and converts it to a tensor.
// If size > 0 the image is resized so its shorter side equals size.
//
//nolint:gosec // G304: path comes from the command line
func Load[B tensor.Backend](path string, size int, backend B) (*tensor.Tensor[B], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imageio: open %s: %w", path, err)
	}
	defer f.Close()

	t, err := Decode(f, size, backend)
	if err != nil {
		return nil, fmt.Errorf("imageio: load %s: %w", path, err)
	}
	return t, nil
}

// Decode decodes an image from r and converts it to a tensor.
func Decode[B tensor.Backend](r io.Reader, size int, backend B) (*tensor.Tensor[B], error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return FromImage(Resize(img, size), backend), nil
}

// Resize scales img so that its shorter side equals size, preserving the
// aspect ratio. A non-positive size returns img unchanged.
func Resize(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if size <= 0 || w == 0 || h == 0 || min(w, h) == size {
		return img
	}

	var tw, th int
	if w < h {
		tw, th = size, int(math.Round(float64(h)*float64(size)/float64(w)))
	} else {
		tw, th = int(math.Round(float64(w)*float64(size)/float64(h))), size
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(tw, 1), max(th, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// FromImage converts img to a [1,3,H,W] tensor in channel-major order.
// Alpha is ignored.
func FromImage[B tensor.Backend](img image.Image, backend B) *tensor.Tensor[B] {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := tensor.Zeros(tensor.Shape{1, 3, h, w}, backend)
	data := t.Data()
	plane := w * h

	parallel.For(h, parallel.DefaultConfig(), func(y int) {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := y*w + x
			data[idx] = float32(r) / 0xffff
			data[plane+idx] = float32(g) / 0xffff
			data[2*plane+idx] = float32(bl) / 0xffff
		}
	})
	return t
}

// ToImage converts a [1,3,H,W] (or [3,H,W]) tensor to an RGBA image,
// clamping values to [0,1] and rounding to 8 bits.
func ToImage(raw *tensor.RawTensor) (*image.RGBA, error) {
	shape := raw.Shape()
	if len(shape) == 4 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 3 || shape[0] != 3 {
		return nil, fmt.Errorf("%w: got %v", ErrShape, raw.Shape())
	}
	h, w := shape[1], shape[2]
	plane := w * h
	data := raw.Data()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	parallel.For(h, parallel.DefaultConfig(), func(y int) {
		for x := 0; x < w; x++ {
			idx := y*w + x
			img.SetRGBA(x, y, color.RGBA{
				R: toByte(data[idx]),
				G: toByte(data[plane+idx]),
				B: toByte(data[2*plane+idx]),
				A: 0xff,
			})
		}
	})
	return img, nil
}

func toByte(v float32) uint8 {
	if v != v || v <= 0 { // NaN maps to black
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(math.Round(float64(v) * 0xff))
}

// Save writes raw to path, choosing the encoder from the extension
// (.png, .jpg, .jpeg). Missing parent directories are created.
func Save(path string, raw *tensor.RawTensor) error {
	format, err := formatOf(path)
	if err != nil {
		return err
	}
	img, err := ToImage(raw)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: output directory is world readable
			return fmt.Errorf("imageio: create %s: %w", dir, err)
		}
	}

	f, err := os.Create(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return fmt.Errorf("imageio: create %s: %w", path, err)
	}
	if err := encode(f, img, format); err != nil {
		f.Close()
		return fmt.Errorf("imageio: encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("imageio: close %s: %w", path, err)
	}
	return nil
}

// Encode writes raw to w in the named format ("png" or "jpeg").
func Encode(w io.Writer, raw *tensor.RawTensor, format string) error {
	img, err := ToImage(raw)
	if err != nil {
		return err
	}
	return encode(w, img, format)
}

func encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	default:
		return fmt.Errorf("%w: %q", ErrFormat, format)
	}
}

func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrFormat, filepath.Ext(path))
	}
}

// Noise returns a tensor of the given shape filled with standard normal
// values. The same seed always yields the same tensor.
func Noise[B tensor.Backend](shape tensor.Shape, seed int64, backend B) *tensor.Tensor[B] {
	return tensor.Randn(shape, rand.New(rand.NewSource(seed)), backend) //nolint:gosec // noise is not security sensitive
}
